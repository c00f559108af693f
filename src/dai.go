package brutefir

/*------------------------------------------------------------------
 *
 * Purpose:	Digital audio interface.
 *
 *		The scheduler core of the engine.  Pulls sample blocks
 *		from the input devices into the common input buffer,
 *		hands them to the filter stage, and drains the common
 *		output buffer into the output devices, one partition at
 *		a time, on the hardware's clock.
 *
 *		Two scheduling paths share the common buffers: the
 *		blocking path (dai_input/dai_output driving file
 *		descriptors through select), and the callback path
 *		(process_callback invoked from backend realtime threads).
 *		Both paths agree on partition indexing and on the last
 *		block through the counters in the communication area.
 *
 *---------------------------------------------------------------*/

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

const (
	CB_MSG_START = 1
	CB_MSG_STOP  = 2
)

var dai_buffer_format [2]*dai_buffer_format_t

type subdev_cb struct {
	iodelay_fill int
	curbuf       int
	frames_left  atomic.Int32
}

type subdev struct {
	finished          atomic.Bool
	uses_callback     bool
	uses_clock        bool
	isinterleaved     bool
	bad_alignment     bool
	index             int
	fd                int
	buf_size          int
	buf_offset        int
	buf_left          int
	block_size        int
	block_size_frames int
	channels          dai_channels
	db                []*delaybuffer_t
	module            *bfio_module
	cb                subdev_cb
}

/* The communication area.  Every worker sees it; cross-worker counters
   are atomics, written monotonically (only tightened) and read with a
   single load per partition. */
type comarea struct {
	blocking_stopped atomic.Bool
	lastbuf_index    atomic.Int32
	frames_left      atomic.Int32
	cb_lastbuf_index atomic.Int32
	cb_frames_left   atomic.Int32
	is_muted         [2][BF_MAXCHANNELS]atomic.Bool
	delay            [2][BF_MAXCHANNELS]atomic.Int32
	pid              [2]atomic.Int64
	callback_pid     atomic.Int64
	dev              [2][BF_MAXCHANNELS]subdev
	buffer_format    [2]dai_buffer_format_t
	cb_buf_index     [2]atomic.Int32
}

var ca *comarea

var glob struct {
	iobuffers              [2][2][]byte
	n_devs                 [2]int
	n_fd_devs              [2]int
	dev_fds                [2]unix.FdSet
	clocked_wfds           unix.FdSet
	n_clocked_devs         int
	dev_fdn                [2]int
	min_block_size         [2]int
	cb_min_block_size      [2]int
	input_poll_mode        bool
	dev                    [2][]*subdev
	fd2dev                 [2][FD_SETSIZE]*subdev
	ch2dev                 [2][BF_MAXCHANNELS]*subdev
	period_size            int
	sample_rate            int
	monitor_rate_fd        int
	synchpipe              [2]bf_sem_t
	cbmutex_pipe           [2]bf_sem_t
	cbreadywait_pipe       [2]bf_sem_t
	cbpipe_s               bf_sem_t
	cbpipe_r               bf_sem_t
	paramspipe_s           [2][2]int
	paramspipe_r           [2][2]int
	callback_ready_waiting [2]int
}

func cbmutex(io int, lock bool) {
	if lock {
		bf_sem_wait(&glob.cbmutex_pipe[io])
	} else {
		bf_sem_post(&glob.cbmutex_pipe[io])
	}
}

/* Called with cbmutex(OUT) unheld; on a true return the mutex is left
   held since the caller exits. */
func output_finish() bool {
	cbmutex(OUT, true)
	var finished = true
	for n := 0; n < glob.n_devs[OUT]; n++ {
		if !glob.dev[OUT][n].finished.Load() {
			finished = false
			break
		}
	}
	if finished {
		pinfo("Finished!")
		return true
	}
	cbmutex(OUT, false)
	return false
}

func update_devmap(idx int, io int) {
	var sd = glob.dev[io][idx]
	if sd.fd >= 0 {
		glob.dev_fds[io].Set(sd.fd)
		if sd.fd > glob.dev_fdn[io] {
			glob.dev_fdn[io] = sd.fd
		}
		glob.fd2dev[io][sd.fd] = sd
	}
	for n := 0; n < sd.channels.used_channels; n++ {
		glob.ch2dev[io][sd.channels.channel_name[n]] = sd
	}
}

/* if noninterleaved, update channel layout to fit the noninterleaved
   access mode (it is setup for interleaved layout per default). */
func noninterleave_modify(idx int, io int) {
	var sd = glob.dev[io][idx]
	if !sd.isinterleaved {
		sd.channels.open_channels = sd.channels.used_channels
		for n := 0; n < sd.channels.used_channels; n++ {
			sd.channels.channel_selection[n] = n
		}
	}
}

func update_delay(sd *subdev, io int, buf []byte) {
	if sd.db == nil {
		return
	}
	for n := 0; n < sd.channels.used_channels; n++ {
		if sd.db[n] == nil {
			continue
		}
		var bf = &dai_buffer_format[io].bf[sd.channels.channel_name[n]]
		var newdelay = int(ca.delay[io][sd.channels.channel_name[n]].Load())
		delay_update(sd.db[n], buf[bf.byte_offset:], bf.sf.bytes, bf.sample_spacing, newdelay)
	}
}

func allocate_delay_buffers(io int, sd *subdev) {
	sd.db = make([]*delaybuffer_t, sd.channels.used_channels)
	for n := 0; n < sd.channels.used_channels; n++ {
		/* check if we need a delay buffer here, that is if at least one
		   channel has a direct virtual to physical mapping */
		if bfconf.n_virtperphys[io][sd.channels.channel_name[n]] == 1 {
			var virtch = bfconf.phys2virt[io][sd.channels.channel_name[n]][0]
			sd.db[n] = delay_allocate_buffer(glob.period_size,
				bfconf.delay[io][virtch],
				bfconf.maxdelay[io][virtch],
				sd.channels.sf.bytes)
		} else {
			/* this delay is taken care of previous to feeding the
			   channel output to this module */
			sd.db[n] = nil
		}
	}
}

func do_mute(sd *subdev, io int, wsize int, buf []byte, offset int) {
	/* calculate which channels that should be cleared */
	var ch = make([]int, 0, sd.channels.used_channels)
	var bsch = make([]int, 0, sd.channels.used_channels)
	for n := 0; n < sd.channels.used_channels; n++ {
		if ca.is_muted[io][sd.channels.channel_name[n]].Load() {
			var c = sd.channels.channel_selection[n]
			ch = append(ch, c)
			bsch = append(bsch, c*sd.channels.sf.bytes)
		}
	}
	var n_mute = len(ch)
	if n_mute == 0 {
		return
	}

	if !sd.isinterleaved {
		/* non-interleaved case, trivial */
		var base = offset / sd.channels.open_channels
		for n := 0; n < n_mute; n++ {
			var p = base + ch[n]*glob.period_size*sd.channels.sf.bytes
			zerofill(buf[p : p+wsize/sd.channels.open_channels])
		}
		return
	}

	/* interleaved case, a bit more messy */
	var sfbytes = sd.channels.sf.bytes
	var framesize = sd.channels.open_channels * sfbytes
	var endp = offset + wsize
	var head = offset % framesize
	var mid_offset = offset
	if head != 0 {
		var k = 0
		for k < n_mute && bsch[k]+sfbytes <= head {
			k++
		}
		if k < n_mute {
			var p = offset
			for n := head; p < offset+framesize-head && p < endp; p, n = p+1, n+1 {
				if n >= bsch[k] && n < bsch[k]+sfbytes {
					buf[p] = 0
					if n == bsch[k]+sfbytes-1 {
						if k++; k == n_mute {
							break
						}
					}
				}
			}
		}
		if offset+framesize-head >= endp {
			return
		}
		mid_offset += framesize - head
	}
	switch sfbytes {
	case 1:
		for p := mid_offset; p < endp; p += framesize {
			for n := 0; n < n_mute; n++ {
				buf[p+ch[n]] = 0
			}
		}
	case 2:
		for p := mid_offset; p+framesize <= endp; p += framesize {
			for n := 0; n < n_mute; n++ {
				buf[p+bsch[n]] = 0
				buf[p+bsch[n]+1] = 0
			}
		}
	case 3:
		for p := mid_offset; p+framesize <= endp; p += framesize {
			for n := 0; n < n_mute; n++ {
				buf[p+bsch[n]] = 0
				buf[p+bsch[n]+1] = 0
				buf[p+bsch[n]+2] = 0
			}
		}
	case 4:
		for p := mid_offset; p+framesize <= endp; p += framesize {
			for n := 0; n < n_mute; n++ {
				zerofill(buf[p+bsch[n] : p+bsch[n]+4])
			}
		}
	case 8:
		for p := mid_offset; p+framesize <= endp; p += framesize {
			for n := 0; n < n_mute; n++ {
				zerofill(buf[p+bsch[n] : p+bsch[n]+8])
			}
		}
	default:
		perror("Sample byte size %d not supported.", sfbytes)
		bf_exit(BF_EXIT_OTHER)
	}

	var tail = (offset + wsize) % framesize
	if tail != 0 {
		var p = endp - tail
		if p >= offset {
			for n, k := 0, 0; p < endp; p, n = p+1, n+1 {
				if n >= bsch[k] && n < bsch[k]+sfbytes {
					buf[p] = 0
					if n == bsch[k]+sfbytes-1 {
						if k++; k == n_mute {
							break
						}
					}
				}
			}
		}
	}
}

func zerofill(p []byte) {
	for i := range p {
		p[i] = 0
	}
}

func init_subdev(dai_subdev *dai_subdevice, io int, idx int) bool {
	var sd = glob.dev[io][idx]
	sd.uses_callback = bfconf.iomods[dai_subdev.module].iscallback
	sd.channels = dai_subdev.channels
	sd.uses_clock = dai_subdev.uses_clock
	sd.module = bfconf.iomods[dai_subdev.module]
	sd.index = idx

	var cbstate any
	var cbfn bf_process_callback
	if sd.uses_callback {
		cbstate = sd
		cbfn = process_callback
	}
	var fd, block_size_frames, isinterleaved, ok = sd.module.init(
		dai_subdev.params, io, dai_subdev.channels.sf.format,
		glob.sample_rate,
		dai_subdev.channels.open_channels,
		dai_subdev.channels.used_channels,
		dai_subdev.channels.channel_selection,
		glob.period_size, cbstate, cbfn)
	if !ok {
		if io == IN {
			perror("Failed to init input device.")
		} else {
			perror("Failed to init output device.")
		}
		return false
	}
	sd.block_size_frames = block_size_frames
	sd.isinterleaved = isinterleaved
	if sd.uses_callback {
		sd.fd = -1
		if sd.block_size_frames == 0 || glob.period_size%sd.block_size_frames != 0 {
			perror("Invalid block size for callback device. Got %d, expected a divisor of %d.",
				sd.block_size_frames, glob.period_size)
			return false
		}
		if sd.uses_clock && (sd.block_size_frames < glob.cb_min_block_size[io] || glob.cb_min_block_size[io] == 0) {
			glob.cb_min_block_size[io] = sd.block_size_frames
		}
	} else {
		glob.n_fd_devs[io]++
		sd.fd = fd
		if io == IN && bfconf.monitor_rate && glob.monitor_rate_fd == -1 && dai_subdev.uses_clock {
			glob.monitor_rate_fd = sd.fd
		}
		if io == OUT && sd.uses_clock {
			glob.clocked_wfds.Set(sd.fd)
			glob.n_clocked_devs++
		}
		if sd.uses_clock && sd.block_size_frames != 0 &&
			(sd.block_size_frames < glob.min_block_size[io] ||
				glob.min_block_size[io] == 0) {
			glob.min_block_size[io] = sd.block_size_frames
		}
	}
	if sd.uses_clock && sd.block_size_frames != 0 && glob.period_size%sd.block_size_frames != 0 {
		sd.bad_alignment = true
	}
	noninterleave_modify(idx, io)
	sd.block_size = sd.block_size_frames * sd.channels.open_channels * sd.channels.sf.bytes
	allocate_delay_buffers(io, sd)
	update_devmap(idx, io)
	return true
}

func init_input(dai_subdev *dai_subdevice, idx int) bool {
	return init_subdev(dai_subdev, IN, idx)
}

func init_output(dai_subdev *dai_subdevice, idx int) bool {
	return init_subdev(dai_subdev, OUT, idx)
}

func calc_buffer_format(fragsize int, io int, format *dai_buffer_format_t) {
	format.n_samples = fragsize
	format.n_channels = 0
	format.n_bytes = 0
	for n := 0; n < glob.n_devs[io]; n++ {
		var sd = glob.dev[io][n]
		sd.buf_offset = format.n_bytes
		format.n_channels += sd.channels.used_channels
		for i := 0; i < sd.channels.used_channels; i++ {
			var ch = sd.channels.channel_name[i]
			format.bf[ch].sf = sd.channels.sf
			if sd.isinterleaved {
				format.bf[ch].byte_offset = format.n_bytes + sd.channels.channel_selection[i]*sd.channels.sf.bytes
				format.bf[ch].sample_spacing = sd.channels.open_channels
			} else {
				format.bf[ch].byte_offset = format.n_bytes
				format.bf[ch].sample_spacing = 1
				format.n_bytes += sd.channels.sf.bytes * fragsize
			}
		}
		sd.buf_size = sd.channels.open_channels * sd.channels.sf.bytes * fragsize
		sd.buf_left = sd.buf_size

		if sd.isinterleaved {
			format.n_bytes += sd.buf_size
		}
		if format.n_bytes%ALIGNMENT != 0 {
			format.n_bytes += ALIGNMENT - format.n_bytes%ALIGNMENT
		}
	}
}

/* Service one backend command arriving over the control pipe.  Runs on
   the worker that owns the direction's file descriptors. */
func handle_params(io int) {
	var subdev_index, size int
	if !readfd_int(glob.paramspipe_s[io][0], &subdev_index) ||
		!readfd_int(glob.paramspipe_s[io][0], &size) {
		perror("Failed to read from pipe.")
		bf_exit(BF_EXIT_OTHER)
	}
	var params = make([]byte, size)
	if !readfd(glob.paramspipe_s[io][0], params) {
		perror("Failed to read from pipe.")
		bf_exit(BF_EXIT_OTHER)
	}
	var sd = glob.dev[io][subdev_index]
	var ans int
	var msgstr string
	if sd.module.command == nil {
		ans = -1
		msgstr = "Module does not support any commands"
	} else {
		ans = sd.module.command(sd.fd, string(params))
		msgstr = sd.module.message()
	}
	if !writefd_int(glob.paramspipe_r[io][1], ans) {
		perror("Failed to write to pipe.")
		bf_exit(BF_EXIT_OTHER)
	}
	var msg = []byte(msgstr)
	if !writefd_int(glob.paramspipe_r[io][1], len(msg)) ||
		!writefd(glob.paramspipe_r[io][1], msg) {
		perror("Failed to write to pipe.")
		bf_exit(BF_EXIT_OTHER)
	}
}

func callback_init(n_subdevs [2]int, subdevs [2][]dai_subdevice) bool {
	bf_sem_init(&glob.cbreadywait_pipe[IN])
	bf_sem_init(&glob.cbreadywait_pipe[OUT])

	/* initialise inputs */
	for n := 0; n < n_subdevs[IN]; n++ {
		if !bfconf.iomods[subdevs[IN][n].module].iscallback {
			continue
		}
		if !init_input(&subdevs[IN][n], n) {
			return false
		}
	}

	/* initialise outputs */
	for n := 0; n < n_subdevs[OUT]; n++ {
		if !bfconf.iomods[subdevs[OUT][n].module].iscallback {
			continue
		}
		if !init_output(&subdevs[OUT][n], n) {
			return false
		}
	}

	for io := 0; io < 2; io++ {
		for n := 0; n < n_subdevs[io]; n++ {
			if !bfconf.iomods[subdevs[io][n].module].iscallback {
				continue
			}
			if glob.dev[io][n].bad_alignment {
				perror("No support for bad callback I/O block alignment: " +
					"the partition length must be divisable with the sound server's buffer size.")
				return false
			}
		}
	}
	return true
}

/* The callback supervisor worker.  Initialises the callback subdevices,
   acknowledges over the message semaphores, then serves start/stop
   messages forever; it leaves only through the terminal events in
   process_callback. */
func callback_process(n_subdevs [2]int, subdevs [2][]dai_subdevice) {
	bf_sem_never_wait(&glob.cbpipe_r)
	bf_sem_never_post(&glob.cbpipe_s)
	var ok = callback_init(n_subdevs, subdevs)
	bf_sem_postmsg(&glob.cbpipe_r, bool_msg(ok))
	if !ok {
		/* callback_init() failed, wait for exit */
		sleep_forever()
	}
	var msg = make([]byte, 1)
	bf_sem_waitmsg(&glob.cbpipe_s, msg)
	/* the common buffers are shared with this worker as soon as the
	   init worker has allocated them; acknowledge the attach */
	bf_sem_postmsg(&glob.cbpipe_r, bool_msg(true))
	if bfconf.realtime_priority {
		bf_make_realtime(bfconf.realtime_midprio, "callback")
	}
	for {
		bf_sem_waitmsg(&glob.cbpipe_s, msg)
		switch int(msg[0]) {
		case CB_MSG_START:
			for n := 0; n < bfconf.n_iomods; n++ {
				if !bfconf.iomods[n].iscallback {
					continue
				}
				if bfconf.iomods[n].synch_start != nil && bfconf.iomods[n].synch_start() != 0 {
					perror("Failed to start I/O module, aborting.")
					bf_exit(BF_EXIT_OTHER)
				}
			}
		case CB_MSG_STOP:
			for n := 0; n < bfconf.n_iomods; n++ {
				if !bfconf.iomods[n].iscallback {
					continue
				}
				if bfconf.iomods[n].synch_stop != nil {
					bfconf.iomods[n].synch_stop()
				}
			}
			bf_sem_postmsg(&glob.cbpipe_r, []byte{1})
		default:
			perror("Bug: invalid msg %d, aborting.", int(msg[0]))
			bf_exit(BF_EXIT_OTHER)
		}
	}
}

func bool_msg(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func dai_init(period_size int, rate int, n_subdevs [2]int, subdevs [2][]dai_subdevice, buffers *[2][2][]byte) bool {
	glob.dev_fds[IN].Zero()
	glob.dev_fds[OUT].Zero()
	glob.clocked_wfds.Zero()
	glob.fd2dev = [2][FD_SETSIZE]*subdev{}
	glob.ch2dev = [2][BF_MAXCHANNELS]*subdev{}
	glob.monitor_rate_fd = -1
	glob.n_fd_devs = [2]int{}
	glob.n_clocked_devs = 0
	glob.dev_fdn = [2]int{}
	glob.min_block_size = [2]int{}
	glob.cb_min_block_size = [2]int{}
	glob.callback_ready_waiting = [2]int{}

	bfrun_glob.cb_pacing = [2]bool{}

	dai_input_st.isfirst = true
	dai_input_st.startmeasure = true
	dai_input_st.buf_index = 0
	dai_input_st.frames = 0
	dai_input_st.curbuf = 0
	dai_output_st.isfirst = true
	dai_output_st.islast = false
	dai_output_st.buf_index = 0
	dai_output_st.curbuf = 0

	glob.period_size = period_size
	glob.sample_rate = rate

	ca = &comarea{}
	ca.frames_left.Store(-1)
	ca.cb_frames_left.Store(-1)
	for io := 0; io < 2; io++ {
		dai_buffer_format[io] = &ca.buffer_format[io]
		glob.n_devs[io] = n_subdevs[io]
		for n := 0; n < bfconf.n_physical_channels[io]; n++ {
			if bfconf.n_virtperphys[io][n] == 1 {
				ca.delay[io][n].Store(int32(bfconf.delay[io][bfconf.phys2virt[io][n][0]]))
				ca.is_muted[io][n].Store(bfconf.mute[io][bfconf.phys2virt[io][n][0]])
			} else {
				ca.delay[io][n].Store(0)
				ca.is_muted[io][n].Store(false)
			}
		}
		glob.dev[io] = make([]*subdev, glob.n_devs[io])
		for n := 0; n < glob.n_devs[io]; n++ {
			glob.dev[io][n] = &ca.dev[io][n]
		}
	}

	bf_sem_init(&glob.cbmutex_pipe[IN])
	bf_sem_init(&glob.cbmutex_pipe[OUT])
	bf_sem_init(&glob.cbpipe_s)
	bf_sem_init(&glob.cbpipe_r)

	bf_sem_post(&glob.cbmutex_pipe[IN])
	bf_sem_post(&glob.cbmutex_pipe[OUT])

	/* initialise callback io, if any.  The supervisor worker owns the
	   callback backends for its whole life; backends that dislike
	   being driven from short-lived init contexts get a stable home
	   this way. */
	if bfconf.callback_io {
		var pid = bf_fork(func(any) {
			ca.callback_pid.Store(int64(bf_getpid()))
			callback_process(n_subdevs, subdevs)
		}, nil)
		bf_register_process(pid)

		bf_sem_never_post(&glob.cbpipe_r)
		bf_sem_never_wait(&glob.cbpipe_s)
		var msg = make([]byte, 1)
		bf_sem_waitmsg(&glob.cbpipe_r, msg)
		if msg[0] == 0 {
			/* callback_init() in callback_process() failed */
			return false
		}
	}

	for io := 0; io < 2; io++ {
		var ps, pr [2]int
		if unix.Pipe(ps[:]) != nil || unix.Pipe(pr[:]) != nil {
			perror("Failed to create pipe.")
			return false
		}
		glob.paramspipe_s[io] = ps
		glob.paramspipe_r[io] = pr
		bf_sem_init(&glob.synchpipe[io])
		bf_sem_post(&glob.synchpipe[io])
	}

	/* initialise inputs */
	for n := 0; n < n_subdevs[IN]; n++ {
		if bfconf.iomods[subdevs[IN][n].module].iscallback {
			continue
		}
		if !init_input(&subdevs[IN][n], n) {
			return false
		}
	}

	/* initialise outputs */
	for n := 0; n < n_subdevs[OUT]; n++ {
		if bfconf.iomods[subdevs[OUT][n].module].iscallback {
			continue
		}
		if !init_output(&subdevs[OUT][n], n) {
			return false
		}
	}

	/* calculate buffer format, and allocate buffers */
	for io := 0; io < 2; io++ {
		calc_buffer_format(glob.period_size, io, &ca.buffer_format[io])
	}
	var buffer_size = 2*dai_buffer_format[IN].n_bytes + 2*dai_buffer_format[OUT].n_bytes
	var buffer = maybe_shmalloc(buffer_size)
	if buffer == nil {
		perror("Failed to allocate shared memory.")
		return false
	}
	var pos = 0
	for io := 0; io < 2; io++ {
		glob.iobuffers[io][0] = buffer[pos : pos+dai_buffer_format[io].n_bytes : pos+dai_buffer_format[io].n_bytes]
		pos += dai_buffer_format[io].n_bytes
		glob.iobuffers[io][1] = buffer[pos : pos+dai_buffer_format[io].n_bytes : pos+dai_buffer_format[io].n_bytes]
		pos += dai_buffer_format[io].n_bytes
		buffers[io][0] = glob.iobuffers[io][0]
		buffers[io][1] = glob.iobuffers[io][1]
	}
	if bfconf.callback_io {

		/* some magic callback I/O init values */
		for n := 0; n < glob.n_devs[OUT]; n++ {
			var sd = glob.dev[OUT][n]
			if sd.uses_callback {
				sd.buf_left = 0
				sd.cb.frames_left.Store(-1)
				sd.cb.iodelay_fill = 2*glob.period_size/sd.block_size_frames - 2
			}
		}

		/* let callback_process() attach the buffers */
		bf_sem_postmsg(&glob.cbpipe_s, []byte{1})
		var msg = make([]byte, 1)
		bf_sem_waitmsg(&glob.cbpipe_r, msg)
		if msg[0] == 0 {
			return false
		}
	}

	/* decide if to use input poll mode */
	glob.input_poll_mode = false
	var all_bad_alignment = true
	var none_clocked = true
	for n := 0; n < n_subdevs[IN]; n++ {
		var sd = glob.dev[IN][n]
		if sd.uses_clock && !sd.uses_callback {
			none_clocked = false
			if !sd.bad_alignment {
				all_bad_alignment = false
			}
		}
	}
	if bfconf.blocking_io && all_bad_alignment && !none_clocked {
		if !bfconf.allow_poll_mode {
			perror("Sound input hardware requires poll mode to be activated but current " +
				"configuration does not allow it (allow_poll_mode: false).")
			return false
		}
		glob.input_poll_mode = true
		pinfo("Input poll mode activated")
	}
	return true
}

func dai_trigger_callback_io() {
	bf_sem_postmsg(&glob.cbpipe_s, []byte{CB_MSG_START})
}

func dai_minblocksize() int {
	var size = int(^uint(0) >> 1)
	if bfconf.blocking_io {
		for io := 0; io < 2; io++ {
			if glob.min_block_size[io] != 0 && glob.min_block_size[io] < size {
				size = glob.min_block_size[io]
			}
		}
	}
	if bfconf.callback_io {
		for io := 0; io < 2; io++ {
			if glob.cb_min_block_size[io] != 0 && glob.cb_min_block_size[io] < size {
				size = glob.cb_min_block_size[io]
			}
		}
	}
	return size
}

func dai_input_poll_mode() bool {
	return glob.input_poll_mode
}

func dai_isinit() bool {
	return dai_buffer_format[IN] != nil
}

func dai_toggle_mute(io int, channel int) {
	if (io != IN && io != OUT) || channel < 0 || channel >= BF_MAXCHANNELS {
		return
	}
	ca.is_muted[io][channel].Store(!ca.is_muted[io][channel].Load())
}

func dai_change_delay(io int, channel int, delay int) int {
	if delay < 0 || channel < 0 || channel >= BF_MAXCHANNELS ||
		(io != IN && io != OUT) ||
		bfconf.n_virtperphys[io][channel] != 1 {
		return -1
	}
	ca.delay[io][channel].Store(int32(delay))
	return 0
}

/* Serialised request/reply to a running subdevice's backend.  The
   command is executed on the scheduler worker that owns the fds, at
   its next control-pipe ready event. */
func dai_subdev_command(io int, subdev_index int, params string) (int, string) {
	if io != IN && io != OUT {
		return -1, "Invalid io selection"
	}
	if subdev_index < 0 || subdev_index >= glob.n_devs[io] {
		return -1, "Invalid device index"
	}
	bf_sem_wait(&glob.synchpipe[io])

	var p = []byte(params)
	if !writefd_int(glob.paramspipe_s[io][1], subdev_index) ||
		!writefd_int(glob.paramspipe_s[io][1], len(p)) ||
		!writefd(glob.paramspipe_s[io][1], p) {
		perror("Failed to write to pipe.")
		bf_exit(BF_EXIT_OTHER)
	}

	var ans, size int
	if !readfd_int(glob.paramspipe_r[io][0], &ans) ||
		!readfd_int(glob.paramspipe_r[io][0], &size) {
		perror("Failed to read from pipe.")
		bf_exit(BF_EXIT_OTHER)
	}
	var msg = make([]byte, size)
	if !readfd(glob.paramspipe_r[io][0], msg) {
		perror("Failed to read from pipe.")
		bf_exit(BF_EXIT_OTHER)
	}
	bf_sem_post(&glob.synchpipe[io])
	return ans, string(msg)
}

/* Emergency teardown, callable from any worker.  Each worker stops only
   the backends it owns. */
func dai_die() {
	if ca == nil {
		return
	}

	var self = int64(bf_getpid())

	if self == ca.callback_pid.Load() {
		for n := 0; n < bfconf.n_iomods; n++ {
			if bfconf.iomods[n].iscallback && bfconf.iomods[n].synch_stop != nil {
				bfconf.iomods[n].synch_stop()
			}
		}
		return
	}
	if ca.blocking_stopped.Load() {
		return
	}

	if self == ca.pid[OUT].Load() {
		for n := 0; n < bfconf.n_iomods; n++ {
			if !bfconf.iomods[n].iscallback && bfconf.iomods[n].synch_stop != nil {
				bfconf.iomods[n].synch_stop()
			}
		}
	}
	for io := 0; io < 2; io++ {
		if self == ca.pid[io].Load() {
			for n := 0; n < bfconf.n_iomods; n++ {
				if !bfconf.iomods[n].iscallback && bfconf.iomods[n].stop != nil {
					bfconf.iomods[n].stop(io)
				}
			}
		}
	}
}

/* blocking input scheduler state */
var dai_input_st = struct {
	isfirst      bool
	startmeasure bool
	buf_index    int
	frames       int
	curbuf       int
	starttime    time.Time
}{
	isfirst:      true,
	startmeasure: true,
}

func dai_input() {
	var st = &dai_input_st

	if (ca.frames_left.Load() != -1 && st.buf_index == int(ca.lastbuf_index.Load())+1) ||
		(ca.cb_frames_left.Load() != -1 && st.buf_index == int(ca.cb_lastbuf_index.Load())+1) {
		for n := 0; n < bfconf.n_iomods; n++ {
			if !bfconf.iomods[n].iscallback && bfconf.iomods[n].stop != nil {
				bfconf.iomods[n].stop(IN)
			}
		}
		/* there is no more data to read, just sleep and let the output
		   worker end all workers */
		sleep_forever()
	}

	if st.isfirst {
		ca.pid[IN].Store(int64(bf_getpid()))

		if bfconf.callback_io {
			dai_trigger_callback_io()
		}
		for n := 0; n < bfconf.n_iomods; n++ {
			if bfconf.iomods[n].iscallback {
				continue
			}
			if (bfconf.iomods[n].start != nil && bfconf.iomods[n].start(IN) != 0) ||
				(bfconf.iomods[n].synch_start != nil && bfconf.iomods[n].synch_start() != 0) {
				perror("Failed to start I/O module, aborting.")
				bf_exit(BF_EXIT_OTHER)
			}
		}
	}

	var buf = glob.iobuffers[IN][st.curbuf]
	st.curbuf = 1 - st.curbuf

	var devsleft = glob.n_fd_devs[IN]
	var rfds = glob.dev_fds[IN]
	var minleft = glob.period_size
	var firstloop = true
	for devsleft != 0 {
		var fdmax = glob.dev_fdn[IN]
		if glob.paramspipe_s[IN][0] > fdmax {
			fdmax = glob.paramspipe_s[IN][0]
		}

		if glob.input_poll_mode && !firstloop {
			var usec = int64(minleft) * 1000000 / int64(glob.sample_rate)
			if glob.min_block_size[IN] > 0 {
				var usec2 = int64(glob.min_block_size[IN]) * 1000000 / int64(glob.sample_rate)
				if usec2 < usec {
					usec = usec2
				}
			}
			/* coarse sleeps for long waits, a short undershoot near the
			   deadline */
			if usec > 40000 {
				time.Sleep(time.Duration(usec) * time.Microsecond)
			} else if usec > 20000 {
				time.Sleep(10 * time.Millisecond)
			} else if usec > 2050 {
				time.Sleep(2 * time.Millisecond)
			} else if usec > 50 {
				time.Sleep(time.Duration(usec-50) * time.Microsecond)
			}
		}

		var readfds unix.FdSet
		var fdn int
		for {
			readfds = rfds
			readfds.Set(glob.paramspipe_s[IN][0])
			var ptv *unix.Timeval
			if glob.input_poll_mode {
				ptv = &unix.Timeval{}
			}
			var err error
			fdn, err = unix.Select(fdmax+1, &readfds, nil, nil, ptv)
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				perror("Select failed: %v.", err)
				bf_exit(BF_EXIT_OTHER)
			}
			break
		}

		for n := 0; n < glob.n_devs[IN]; n++ {
			var sd = glob.dev[IN][n]
			if sd.uses_clock && !sd.uses_callback && sd.fd >= 0 && !readfds.IsSet(sd.fd) &&
				rfds.IsSet(sd.fd) &&
				(glob.input_poll_mode || sd.bad_alignment) {
				readfds.Set(sd.fd)
				fdn++
			}
		}

		var fd = -1
		for ; fdn > 0; fdn-- {
			for fd++; fd <= fdmax && !readfds.IsSet(fd); fd++ {
			}
			if fd > fdmax {
				break
			}
			if fd == glob.paramspipe_s[IN][0] {
				handle_params(IN)
				continue
			}
			var sd = glob.fd2dev[IN][fd]
			if sd == nil {
				continue
			}

			var region = buf[sd.buf_offset : sd.buf_offset+sd.buf_size]
			var byte_count, rerr = sd.module.read(fd, region, sd.buf_size-sd.buf_left, sd.buf_left)

			switch {
			case byte_count == -1 || rerr != nil:
				switch rerr {
				case unix.EINTR, unix.EAGAIN:
					/* try again later */
				case unix.EIO:
					/* invalid input signal */
					perror("I/O module failed to read due to invalid input signal, aborting.")
					bf_exit(BF_EXIT_INVALID_INPUT)
				case unix.EPIPE:
					/* Actually, this should be overflow, but since we
					   have linked the devices, broken pipe on output
					   will be noted on the input as well, and it is
					   more likely that it is an underflow on the output
					   than an overflow on the input */
					perror("I/O module failed to read (probably) due to buffer underflow on output, aborting.")
					bf_exit(BF_EXIT_BUFFER_UNDERFLOW)
				default:
					perror("I/O module failed to read, aborting.")
					bf_exit(BF_EXIT_OTHER)
				}
			case byte_count == 0:
				/* end of stream; zero-fill what remains of the
				   partition */
				if sd.isinterleaved {
					zerofill(region[sd.buf_size-sd.buf_left:])
				} else {
					var i = sd.buf_size / sd.channels.open_channels
					var k = sd.buf_left / sd.channels.open_channels
					for n := 1; n <= sd.channels.open_channels; n++ {
						zerofill(region[n*i-k : n*i])
					}
				}
				devsleft--
				rfds.Clear(fd)

				var frames_left = (sd.buf_size - sd.buf_left) / sd.channels.sf.bytes / sd.channels.open_channels
				if ca.frames_left.Load() == -1 || int32(frames_left) < ca.frames_left.Load() {
					ca.frames_left.Store(int32(frames_left))
				}
				ca.lastbuf_index.Store(int32(st.buf_index))
			default:
				sd.buf_left -= byte_count
				if glob.monitor_rate_fd == fd {
					monitor_rate_update(sd, byte_count)
				}
				var frames_left = sd.buf_left / (sd.buf_size / glob.period_size)
				if sd.uses_clock && (frames_left < minleft || minleft == -1) {
					minleft = frames_left
				}
				if sd.buf_left == 0 {
					sd.buf_left = sd.buf_size
					devsleft--
					rfds.Clear(fd)
				}
			}
		}
		firstloop = false
	}

	for n := 0; n < glob.n_devs[IN]; n++ {
		var sd = glob.dev[IN][n]
		if !sd.uses_callback {
			do_mute(sd, IN, sd.buf_size, buf[sd.buf_offset:sd.buf_offset+sd.buf_size], 0)
			update_delay(sd, IN, buf)
		}
	}

	st.isfirst = false
	st.buf_index++
}

/* Accumulate frames read from the monitored input and verify the
   measured rate against the configured one once a second's worth has
   passed.  More than 2% off means a misconfigured device. */
func monitor_rate_update(sd *subdev, byte_count int) {
	var st = &dai_input_st
	if st.startmeasure {
		if sd.buf_left == 0 {
			st.startmeasure = false
			st.starttime = time.Now()
		}
		return
	}
	st.frames += byte_count / (sd.buf_size / glob.period_size)
	if st.frames >= glob.sample_rate && sd.buf_left == 0 {
		var elapsed = time.Since(st.starttime)
		var measured_rate = float64(st.frames) / elapsed.Seconds()
		pdebug("measured rate: %.3f kHz (%d frames / %v)", measured_rate/1000.0, st.frames, elapsed)
		if measured_rate < float64(glob.sample_rate)*0.98 ||
			measured_rate > float64(glob.sample_rate)/0.98 {
			perror("Configured sample rate is %.1f kHz, but measured is %.1f kHz, aborting.",
				float64(glob.sample_rate)/1000.0, measured_rate/1000.0)
			bf_exit(BF_EXIT_INVALID_INPUT)
		}
		st.startmeasure = true
		st.frames = 0
	}
}

/* blocking output scheduler state */
var dai_output_st = struct {
	isfirst   bool
	islast    bool
	buf_index int
	curbuf    int
}{
	isfirst: true,
}

func dai_output(iodelay_fill bool, synch_sem *bf_sem_t) {
	var st = &dai_output_st

	if (ca.frames_left.Load() != -1 && st.buf_index == int(ca.lastbuf_index.Load())) ||
		(ca.cb_frames_left.Load() != -1 && st.buf_index == int(ca.cb_lastbuf_index.Load())) {
		var frames_left = ca.frames_left.Load()
		if frames_left == -1 || (ca.cb_frames_left.Load() != -1 && ca.cb_frames_left.Load() < frames_left) {
			frames_left = ca.cb_frames_left.Load()
		}
		for n := 0; n < glob.n_devs[OUT]; n++ {
			var sd = glob.dev[OUT][n]
			if !sd.uses_callback {
				sd.buf_size = int(frames_left) * sd.channels.sf.bytes * sd.channels.open_channels
				sd.buf_left = sd.buf_size
			}
		}
		st.islast = true
	}

	var buf = glob.iobuffers[OUT][st.curbuf]
	st.curbuf = 1 - st.curbuf

	for n := 0; n < glob.n_devs[OUT]; n++ {
		var sd = glob.dev[OUT][n]
		if sd.uses_callback {
			continue
		}
		update_delay(sd, OUT, buf)
	}

	var devsleft int
	var wfds unix.FdSet
	if iodelay_fill {
		wfds = glob.clocked_wfds
		devsleft = glob.n_clocked_devs
	} else {
		wfds = glob.dev_fds[OUT]
		devsleft = glob.n_fd_devs[OUT]
	}

	for devsleft != 0 {
		var fdmax = glob.dev_fdn[OUT]
		if glob.paramspipe_s[OUT][0] > fdmax {
			fdmax = glob.paramspipe_s[OUT][0]
		}

		var readfds, writefds unix.FdSet
		var fdn int
		for {
			readfds.Zero()
			readfds.Set(glob.paramspipe_s[OUT][0])
			writefds = wfds
			var err error
			fdn, err = unix.Select(fdmax+1, &readfds, &writefds, nil, nil)
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				perror("Select failed: %v.", err)
				bf_exit(BF_EXIT_OTHER)
			}
			break
		}
		if readfds.IsSet(glob.paramspipe_s[OUT][0]) {
			handle_params(OUT)
			fdn--
		}

		var fd = -1
		for ; fdn > 0; fdn-- {
			for fd++; fd <= glob.dev_fdn[OUT] && !writefds.IsSet(fd); fd++ {
			}
			if fd > glob.dev_fdn[OUT] {
				break
			}
			var sd = glob.fd2dev[OUT][fd]
			if sd == nil {
				continue
			}
			var write_size int
			if sd.block_size > 0 && sd.buf_left > sd.block_size {
				write_size = sd.block_size + sd.buf_left%sd.block_size
			} else {
				write_size = sd.buf_left
			}
			var region = buf[sd.buf_offset : sd.buf_offset+sd.buf_size]
			do_mute(sd, OUT, write_size, region, sd.buf_size-sd.buf_left)

			var byte_count, werr = sd.module.write(fd, region, sd.buf_size-sd.buf_left, write_size)

			if byte_count == -1 || werr != nil {
				switch werr {
				case unix.EINTR, unix.EAGAIN:
					/* try again later */
				case unix.EPIPE:
					/* buffer underflow */
					perror("I/O module failed to write due to buffer underflow, aborting.")
					bf_exit(BF_EXIT_BUFFER_UNDERFLOW)
				default:
					perror("I/O module failed to write, aborting.")
					bf_exit(BF_EXIT_OTHER)
				}
			} else {
				sd.buf_left -= byte_count
			}
			if sd.buf_left == 0 {
				sd.buf_left = sd.buf_size
				devsleft--
				wfds.Clear(fd)
			}
		}
		if synch_sem != nil {
			bf_sem_post(synch_sem)
			sched_yield() /* let the input worker start now */
			synch_sem = nil
		}
		if !iodelay_fill && st.isfirst {
			st.isfirst = false
			for n := 0; n < bfconf.n_iomods; n++ {
				if bfconf.iomods[n].iscallback {
					continue
				}
				if bfconf.iomods[n].start != nil && bfconf.iomods[n].start(OUT) != 0 {
					perror("I/O module failed to start, aborting.")
					bf_exit(BF_EXIT_OTHER)
				}
			}
			ca.pid[OUT].Store(int64(bf_getpid()))
		}
	}

	if iodelay_fill {
		return
	}

	if st.islast {
		for n := 0; n < bfconf.n_iomods; n++ {
			if bfconf.iomods[n].iscallback {
				/* callback I/O is stopped elsewhere */
				continue
			}
			if bfconf.iomods[n].synch_stop != nil {
				bfconf.iomods[n].synch_stop()
			}
			if bfconf.iomods[n].stop != nil {
				bfconf.iomods[n].stop(OUT)
			}
		}
		ca.blocking_stopped.Store(true)
		for n := 0; n < glob.n_devs[OUT]; n++ {
			var sd = glob.dev[OUT][n]
			if !sd.uses_callback {
				sd.finished.Store(true)
			}
		}
		if output_finish() {
			bf_exit(BF_EXIT_OK)
		} else {
			sleep_forever()
		}
	}

	st.buf_index++
}

func process_callback_input(sd *subdev, cbbufs [][]byte, frame_count int) {
	var buf = glob.iobuffers[IN][sd.cb.curbuf]

	var count = frame_count * sd.channels.used_channels * sd.channels.sf.bytes
	if sd.isinterleaved {
		copy(buf[sd.buf_offset+sd.buf_size-sd.buf_left:], cbbufs[0][:count])
	} else {
		var bf = &dai_buffer_format[IN].bf[sd.channels.channel_name[0]]
		var cnt = count / sd.channels.used_channels
		var copypos = sd.buf_offset + (sd.buf_size-sd.buf_left)/sd.channels.used_channels
		for n := 0; n < sd.channels.used_channels; n++ {
			copy(buf[copypos:copypos+cnt], cbbufs[n][:cnt])
			copypos += glob.period_size * bf.sf.sbytes
		}
	}
	sd.buf_left -= count
	if sd.buf_left == 0 {
		sd.cb.curbuf = 1 - sd.cb.curbuf
		do_mute(sd, IN, sd.buf_size, buf[sd.buf_offset:sd.buf_offset+sd.buf_size], 0)
		update_delay(sd, IN, buf)
	}
}

func process_callback_output(sd *subdev, cbbufs [][]byte, frame_count int, iodelay_fill bool) {
	var buf = glob.iobuffers[OUT][sd.cb.curbuf]

	var count = frame_count * sd.channels.used_channels * sd.channels.sf.bytes

	if iodelay_fill {
		if sd.isinterleaved {
			zerofill(cbbufs[0][:count])
		} else {
			var cnt = count / sd.channels.used_channels
			for n := 0; n < sd.channels.used_channels; n++ {
				zerofill(cbbufs[n][:cnt])
			}
		}
		return
	}

	if sd.buf_left == sd.buf_size {
		update_delay(sd, OUT, buf)
	}
	var region = buf[sd.buf_offset : sd.buf_offset+sd.buf_size]
	do_mute(sd, OUT, count, region, sd.buf_size-sd.buf_left)
	if sd.isinterleaved {
		copy(cbbufs[0][:count], region[sd.buf_size-sd.buf_left:])
	} else {
		var bf = &dai_buffer_format[OUT].bf[sd.channels.channel_name[0]]
		var cnt = count / sd.channels.used_channels
		var copypos = sd.buf_offset + (sd.buf_size-sd.buf_left)/sd.channels.used_channels
		for n := 0; n < sd.channels.used_channels; n++ {
			copy(cbbufs[n][:cnt], buf[copypos:copypos+cnt])
			copypos += glob.period_size * bf.sf.sbytes
		}
	}

	sd.buf_left -= count
	if sd.buf_left == 0 {
		sd.cb.curbuf = 1 - sd.cb.curbuf
	}
}

/* The per-direction rendezvous barrier: the last arriving callback
   worker of a round releases the ones that parked.  Both take the
   cbmutex held and release it. */

func trigger_callback_ready(io int) {
	if glob.callback_ready_waiting[io] > 0 {
		bf_sem_postmany(&glob.cbreadywait_pipe[io], glob.callback_ready_waiting[io])
		glob.callback_ready_waiting[io] = 0
	}
	cbmutex(io, false)
}

func wait_callback_ready(io int) {
	glob.callback_ready_waiting[io]++
	cbmutex(io, false)
	bf_sem_wait(&glob.cbreadywait_pipe[io])
}

func process_callback(states [2][]any, state_count [2]int, buffers [2][][]byte, frame_count int, event int) int {
	switch event {
	case BF_CALLBACK_EVENT_LAST_INPUT:
		if ca.cb_frames_left.Load() == -1 || int32(frame_count) < ca.cb_frames_left.Load() {
			ca.cb_frames_left.Store(int32(frame_count))
		}
		ca.cb_lastbuf_index.Store(ca.cb_buf_index[IN].Load())
		return 0
	case BF_CALLBACK_EVENT_FINISHED:
		for n := 0; n < state_count[OUT]; n++ {
			var sd = states[OUT][n].(*subdev)
			sd.finished.Store(true)
		}
		cbmutex(IN, true)
		trigger_callback_ready(IN)
		cbmutex(OUT, true)
		trigger_callback_ready(OUT)
		if output_finish() {
			bf_exit(BF_EXIT_OK)
		}
		return -1
	case BF_CALLBACK_EVENT_ERROR:
		perror("An error occurred in a callback I/O module.")
		bf_exit(BF_EXIT_OTHER)
	case BF_CALLBACK_EVENT_NORMAL:
	default:
		perror("Invalid event: %d", event)
		bf_exit(BF_EXIT_OTHER)
	}

	if frame_count <= 0 {
		perror("Invalid parameters: frame_count: %d", frame_count)
		bf_exit(BF_EXIT_OTHER)
	}

	if state_count[IN] > 0 {

		cbmutex(IN, true)

		for n, i := 0, 0; n < state_count[IN]; n++ {
			var sd = states[IN][n].(*subdev)
			if frame_count != sd.block_size_frames {
				perror("Unexpected callback I/O block alignment (got %d, expected %d)",
					frame_count, sd.block_size_frames)
				bf_exit(BF_EXIT_OTHER)
			}
			process_callback_input(sd, buffers[IN][i:], frame_count)
			if sd.isinterleaved {
				i++
			} else {
				i += sd.channels.used_channels
			}
		}

		var sd = states[IN][0].(*subdev)
		if sd.buf_left == 0 {
			var finished = true
			for n := 0; n < glob.n_devs[IN]; n++ {
				sd = glob.dev[IN][n]
				if sd.uses_callback && sd.buf_left != 0 {
					finished = false
					break
				}
			}
			if finished {
				bf_callback_slot_wait(IN)
				for n := 0; n < glob.n_devs[IN]; n++ {
					sd = glob.dev[IN][n]
					if sd.uses_callback {
						sd.buf_left = sd.buf_size
					}
				}
				bf_callback_ready(IN)
				ca.cb_buf_index[IN].Add(1)
				trigger_callback_ready(IN)
			} else {
				wait_callback_ready(IN)
			}
		} else {
			cbmutex(IN, false)
		}
	}

	if state_count[OUT] > 0 {

		cbmutex(OUT, true)

		var unlock_output = false
		var sd = states[OUT][0].(*subdev)
		if sd.buf_left == 0 && sd.cb.iodelay_fill == 0 {
			var finished = true
			for n := 0; n < glob.n_devs[OUT]; n++ {
				sd = glob.dev[OUT][n]
				if sd.uses_callback &&
					(sd.buf_left != 0 || sd.cb.iodelay_fill != 0) {
					finished = false
					break
				}
			}
			if finished {
				bf_callback_slot_wait(OUT)
				for n := 0; n < glob.n_devs[OUT]; n++ {
					sd = glob.dev[OUT][n]
					if sd.uses_callback {
						sd.buf_left = sd.buf_size
					}
				}
				bf_callback_ready(OUT)
				ca.cb_buf_index[OUT].Add(1)
				trigger_callback_ready(OUT)
			} else {
				wait_callback_ready(OUT)
			}
		} else {
			unlock_output = true
		}

		for n, i := 0, 0; n < state_count[OUT]; n++ {
			sd = states[OUT][n].(*subdev)
			if frame_count != sd.block_size_frames {
				perror("Unexpected callback I/O block alignment (%d != %d)",
					frame_count, sd.block_size_frames)
				bf_exit(BF_EXIT_OTHER)
			}
			process_callback_output(sd, buffers[OUT][i:], frame_count, sd.cb.iodelay_fill != 0)
			if sd.cb.iodelay_fill != 0 {
				sd.cb.iodelay_fill--
			}
			if sd.isinterleaved {
				i++
			} else {
				i += sd.channels.used_channels
			}
		}

		if unlock_output {
			cbmutex(OUT, false)
		}

		/* last buffer? */
		var buf_index = ca.cb_buf_index[IN].Load()
		if ca.cb_buf_index[OUT].Load() > buf_index {
			buf_index = ca.cb_buf_index[OUT].Load()
		}
		sd = states[OUT][0].(*subdev)
		if sd.cb.frames_left.Load() == -1 &&
			((ca.frames_left.Load() != -1 && buf_index == ca.lastbuf_index.Load()+1) ||
				(ca.cb_frames_left.Load() != -1 && buf_index == ca.cb_lastbuf_index.Load()+1)) {
			if ca.frames_left.Load() == -1 ||
				(ca.frames_left.Load() > ca.cb_frames_left.Load() && ca.cb_frames_left.Load() != -1) {
				ca.frames_left.Store(ca.cb_frames_left.Load())
			}
			sd.cb.frames_left.Store(ca.frames_left.Load())
		}

		if sd.cb.frames_left.Load() != -1 {
			if sd.cb.frames_left.Load() > int32(sd.block_size_frames) {
				sd.cb.frames_left.Add(int32(-sd.block_size_frames))
				return 0
			}
			if sd.cb.frames_left.Load() == 0 {
				return -1
			}
			return int(sd.cb.frames_left.Load())
		}
	}

	return 0
}
