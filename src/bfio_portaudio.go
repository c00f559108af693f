package brutefir

/*------------------------------------------------------------------
 *
 * Purpose:	PortAudio callback I/O backend.
 *
 *		The pro-audio path: PortAudio owns the realtime threads
 *		and invokes our process_callback with one device block
 *		per round, while the hardware clock paces the engine.
 *		Each subdevice gets its own stream; sample data is
 *		float32 interleaved, which is PortAudio's native format.
 *
 *		Config params:
 *		  block_size_frames: frames per callback; must divide the
 *		          partition size (defaults to it)
 *
 *---------------------------------------------------------------*/

import (
	"unsafe"

	"github.com/gordonklaus/portaudio"
)

type bfio_portaudio_dev struct {
	io           int
	stream       *portaudio.Stream
	state        any
	block_frames int
}

var bfio_portaudio_glob struct {
	devs        []*bfio_portaudio_dev
	process_cb  bf_process_callback
	initialized bool
	message     string
}

type bfio_portaudio_settings struct {
	block_frames int
}

func bfio_portaudio_preinit(config map[string]any, io int, sample_format *int, sample_rate int,
	open_channels int, debug bool) (bfio_preinit_result, bool) {
	if *sample_format == BF_SAMPLE_FORMAT_AUTO {
		*sample_format = BF_SAMPLE_FORMAT_FLOAT_LE
	}
	if *sample_format != BF_SAMPLE_FORMAT_FLOAT_LE {
		perror("portaudio I/O: only FLOAT_LE samples are supported.")
		return bfio_preinit_result{}, false
	}
	var settings = &bfio_portaudio_settings{
		block_frames: bfio_file_param_int(config, "block_size_frames"),
	}
	return bfio_preinit_result{
		params:            settings,
		uses_sample_clock: true,
		callback_sched:    true,
	}, true
}

func float32_bytes(p []float32) []byte {
	if len(p) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&p[0])), len(p)*4)
}

func bfio_portaudio_init(params any, io int, sample_format int, sample_rate int,
	open_channels int, used_channels int, channel_selection []int,
	period_size int, callback_state any,
	process_callback bf_process_callback) (int, int, bool, bool) {
	var g = &bfio_portaudio_glob
	var settings = params.(*bfio_portaudio_settings)
	g.process_cb = process_callback

	if !g.initialized {
		if err := portaudio.Initialize(); err != nil {
			perror("portaudio I/O: failed to initialize: %v.", err)
			return -1, 0, false, false
		}
		g.initialized = true
	}

	var block_frames = settings.block_frames
	if block_frames == 0 {
		block_frames = period_size
	}

	var dev = &bfio_portaudio_dev{
		io:           io,
		state:        callback_state,
		block_frames: block_frames,
	}

	var numin, numout = 0, 0
	if io == IN {
		numin = open_channels
	} else {
		numout = open_channels
	}
	var stream *portaudio.Stream
	var err error
	if io == IN {
		stream, err = portaudio.OpenDefaultStream(numin, numout,
			float64(sample_rate), block_frames,
			func(in []float32) {
				var states [2][]any
				var bufs [2][][]byte
				states[IN] = []any{dev.state}
				bufs[IN] = [][]byte{float32_bytes(in)}
				g.process_cb(states, [2]int{IN: 1}, bufs, dev.block_frames,
					BF_CALLBACK_EVENT_NORMAL)
			})
	} else {
		stream, err = portaudio.OpenDefaultStream(numin, numout,
			float64(sample_rate), block_frames,
			func(out []float32) {
				var states [2][]any
				var bufs [2][][]byte
				states[OUT] = []any{dev.state}
				bufs[OUT] = [][]byte{float32_bytes(out)}
				g.process_cb(states, [2]int{OUT: 1}, bufs, dev.block_frames,
					BF_CALLBACK_EVENT_NORMAL)
			})
	}
	if err != nil {
		perror("portaudio I/O: failed to open stream: %v.", err)
		return -1, 0, false, false
	}
	dev.stream = stream
	g.devs = append(g.devs, dev)

	return -1, block_frames, true, true
}

func bfio_portaudio_synch_start() int {
	for _, dev := range bfio_portaudio_glob.devs {
		if err := dev.stream.Start(); err != nil {
			perror("portaudio I/O: failed to start stream: %v.", err)
			return -1
		}
	}
	return 0
}

func bfio_portaudio_synch_stop() {
	for _, dev := range bfio_portaudio_glob.devs {
		dev.stream.Stop()
		dev.stream.Close()
	}
	if bfio_portaudio_glob.initialized {
		portaudio.Terminate()
		bfio_portaudio_glob.initialized = false
	}
}

func bfio_portaudio_command(fd int, params string) int {
	var g = &bfio_portaudio_glob
	switch params {
	case "info":
		var info = "portaudio:"
		for _, dev := range g.devs {
			if dev.io == IN {
				info += " capture"
			} else {
				info += " playback"
			}
		}
		g.message = info
		return 0
	default:
		g.message = "Unknown command"
		return -1
	}
}

func bfio_portaudio_message() string {
	return bfio_portaudio_glob.message
}

func bfio_portaudio_module() *bfio_module {
	bfio_portaudio_glob.devs = nil
	return &bfio_module{
		name:        "portaudio",
		iscallback:  true,
		preinit:     bfio_portaudio_preinit,
		init:        bfio_portaudio_init,
		synch_start: bfio_portaudio_synch_start,
		synch_stop:  bfio_portaudio_synch_stop,
		command:     bfio_portaudio_command,
		message:     bfio_portaudio_message,
	}
}
