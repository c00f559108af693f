package brutefir

/*------------------------------------------------------------------
 *
 * Purpose:	Engine configuration.
 *
 *		The runtime configuration lives in one package-global
 *		record, filled from a YAML file.  The original used its
 *		own config language; the schema here carries the same
 *		information: devices per direction, channel layout and
 *		sample format per device, per-channel delay and mute
 *		state, filter routing, and the engine tunables.
 *
 *		Physical channels are numbered globally per direction in
 *		device order.  The virtual/physical split of the original
 *		is kept in the tables (n_virtperphys, phys2virt) because
 *		the I/O layer consults them, with the configuration
 *		mapping every physical channel to exactly one virtual
 *		channel.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type bfconf_t struct {
	sample_rate     int
	filter_length   int /* the partition size in frames */
	debug           bool
	monitor_rate    bool
	allow_poll_mode bool
	blocking_io     bool
	callback_io     bool

	realtime_priority bool
	realtime_minprio  int
	realtime_midprio  int
	realtime_maxprio  int

	n_iomods int
	iomods   []*bfio_module

	n_subdevs [2]int
	subdevs   [2][]dai_subdevice

	n_physical_channels [2]int
	n_virtperphys       [2][BF_MAXCHANNELS]int
	phys2virt           [2][BF_MAXCHANNELS][]int

	/* per virtual channel */
	n_channels [2]int
	delay      [2][]int
	maxdelay   [2][]int
	mute       [2][]bool

	n_routes int
	routes   []filter_route
}

type filter_route struct {
	inchannel  int
	outchannel int
	coeffs     []float64
}

var bfconf = &bfconf_t{}

/* YAML schema */

type config_device struct {
	Module       string         `yaml:"module"`
	SampleFormat string         `yaml:"sample_format"`
	Channels     int            `yaml:"channels"`
	UsesClock    *bool          `yaml:"uses_clock"`
	Delay        []int          `yaml:"delay"`
	MaxDelay     int            `yaml:"max_delay"`
	Mute         []bool         `yaml:"mute"`
	Params       map[string]any `yaml:"params"`
}

type config_route struct {
	In     int       `yaml:"in"`
	Out    int       `yaml:"out"`
	Coeffs []float64 `yaml:"coeffs"`
	File   string    `yaml:"coeffs_file"`
}

type config_file struct {
	SampleRate       int             `yaml:"sample_rate"`
	PartitionSize    int             `yaml:"partition_size"`
	PipeSemaphores   bool            `yaml:"pipe_semaphores"`
	AllowPollMode    *bool           `yaml:"allow_poll_mode"`
	MonitorRate      bool            `yaml:"monitor_rate"`
	Debug            bool            `yaml:"debug"`
	RealtimePriority bool            `yaml:"realtime_priority"`
	RealtimeMinPrio  int             `yaml:"realtime_min_prio"`
	RealtimeMidPrio  int             `yaml:"realtime_mid_prio"`
	RealtimeMaxPrio  int             `yaml:"realtime_max_prio"`
	Inputs           []config_device `yaml:"inputs"`
	Outputs          []config_device `yaml:"outputs"`
	Routes           []config_route  `yaml:"routes"`
}

func bfconf_module_index(name string) int {
	for n := 0; n < bfconf.n_iomods; n++ {
		if bfconf.iomods[n].name == name {
			return n
		}
	}
	var newmod = bfio_module_lookup(name)
	if newmod == nil {
		return -1
	}
	bfconf.iomods = append(bfconf.iomods, newmod)
	bfconf.n_iomods++
	return bfconf.n_iomods - 1
}

func bfconf_load_devices(io int, devices []config_device) error {
	var channel_base = 0
	for _, dev := range devices {
		var modindex = bfconf_module_index(dev.Module)
		if modindex == -1 {
			return fmt.Errorf("unknown I/O module %q", dev.Module)
		}
		var mod = bfconf.iomods[modindex]
		if dev.Channels < 1 {
			return fmt.Errorf("device %q: channels must be at least 1", dev.Module)
		}
		var format = bf_sampleformat_parse(dev.SampleFormat)
		if format == BF_SAMPLE_FORMAT_AUTO && dev.SampleFormat != "" {
			return fmt.Errorf("device %q: unknown sample format %q", dev.Module, dev.SampleFormat)
		}

		var pre, ok = mod.preinit(dev.Params, io, &format, bfconf.sample_rate, dev.Channels, bfconf.debug)
		if !ok {
			return fmt.Errorf("device %q: preinit failed", dev.Module)
		}
		if format == BF_SAMPLE_FORMAT_AUTO {
			return fmt.Errorf("device %q: sample format could not be resolved", dev.Module)
		}

		var uses_clock = pre.uses_sample_clock
		if dev.UsesClock != nil {
			uses_clock = *dev.UsesClock
		}

		var sd = dai_subdevice{
			module:     modindex,
			uses_clock: uses_clock,
			params:     pre.params,
			channels: dai_channels{
				open_channels:     dev.Channels,
				used_channels:     dev.Channels,
				channel_name:      make([]int, dev.Channels),
				channel_selection: make([]int, dev.Channels),
				sf:                bf_sampleformat(format),
			},
		}
		for i := 0; i < dev.Channels; i++ {
			var ch = channel_base + i
			if ch >= BF_MAXCHANNELS {
				return fmt.Errorf("too many channels, maximum is %d", BF_MAXCHANNELS)
			}
			sd.channels.channel_name[i] = ch
			sd.channels.channel_selection[i] = i

			/* 1:1 virtual/physical mapping */
			bfconf.n_virtperphys[io][ch] = 1
			bfconf.phys2virt[io][ch] = []int{ch}

			var d = 0
			if i < len(dev.Delay) {
				d = dev.Delay[i]
			}
			var maxd = dev.MaxDelay
			if maxd < d {
				maxd = d
			}
			var m = false
			if i < len(dev.Mute) {
				m = dev.Mute[i]
			}
			bfconf.delay[io] = append(bfconf.delay[io], d)
			bfconf.maxdelay[io] = append(bfconf.maxdelay[io], maxd)
			bfconf.mute[io] = append(bfconf.mute[io], m)
		}
		channel_base += dev.Channels

		bfconf.subdevs[io] = append(bfconf.subdevs[io], sd)
		bfconf.n_subdevs[io]++
		if mod.iscallback {
			bfconf.callback_io = true
		} else {
			bfconf.blocking_io = true
		}
	}
	bfconf.n_physical_channels[io] = channel_base
	bfconf.n_channels[io] = channel_base
	return nil
}

func bfconf_load(path string) error {
	var data, err = os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config: %w", err)
	}
	return bfconf_parse(data)
}

func bfconf_parse(data []byte) error {
	*bfconf = bfconf_t{}

	var cf config_file
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("could not parse config: %w", err)
	}
	if cf.SampleRate < 1 {
		return fmt.Errorf("sample_rate must be set")
	}
	if cf.PartitionSize < 1 {
		return fmt.Errorf("partition_size must be set")
	}
	bfconf.sample_rate = cf.SampleRate
	bfconf.filter_length = cf.PartitionSize
	bfconf.debug = cf.Debug
	bfconf.monitor_rate = cf.MonitorRate
	bfconf.allow_poll_mode = true
	if cf.AllowPollMode != nil {
		bfconf.allow_poll_mode = *cf.AllowPollMode
	}
	bfconf.realtime_priority = cf.RealtimePriority
	bfconf.realtime_minprio = cf.RealtimeMinPrio
	bfconf.realtime_midprio = cf.RealtimeMidPrio
	bfconf.realtime_maxprio = cf.RealtimeMaxPrio
	if bfconf.realtime_priority {
		if bfconf.realtime_minprio == 0 {
			bfconf.realtime_minprio = 4
		}
		if bfconf.realtime_midprio == 0 {
			bfconf.realtime_midprio = bfconf.realtime_minprio + 1
		}
		if bfconf.realtime_maxprio == 0 {
			bfconf.realtime_maxprio = bfconf.realtime_midprio + 1
		}
	}
	bf_set_pipe_mode(cf.PipeSemaphores)
	pinfo_set_debug(cf.Debug)

	if len(cf.Inputs) == 0 || len(cf.Outputs) == 0 {
		return fmt.Errorf("at least one input and one output device must be configured")
	}
	if err := bfconf_load_devices(IN, cf.Inputs); err != nil {
		return err
	}
	if err := bfconf_load_devices(OUT, cf.Outputs); err != nil {
		return err
	}

	for _, r := range cf.Routes {
		if r.In < 0 || r.In >= bfconf.n_channels[IN] {
			return fmt.Errorf("route input channel %d out of range", r.In)
		}
		if r.Out < 0 || r.Out >= bfconf.n_channels[OUT] {
			return fmt.Errorf("route output channel %d out of range", r.Out)
		}
		var coeffs = r.Coeffs
		if r.File != "" {
			var loaded, err = filter_load_coeffs(r.File)
			if err != nil {
				return err
			}
			coeffs = loaded
		}
		bfconf.routes = append(bfconf.routes, filter_route{
			inchannel:  r.In,
			outchannel: r.Out,
			coeffs:     coeffs,
		})
	}
	if len(cf.Routes) == 0 {
		/* identity wiring: output channel n fed from input channel n */
		for n := 0; n < bfconf.n_channels[OUT]; n++ {
			if n >= bfconf.n_channels[IN] {
				break
			}
			bfconf.routes = append(bfconf.routes, filter_route{inchannel: n, outchannel: n})
		}
	}
	bfconf.n_routes = len(bfconf.routes)
	return nil
}
