package brutefir

/*------------------------------------------------------------------
 *
 * Purpose:	Callback-driven file I/O backend.
 *
 *		Runs its own transfer loop on a dedicated thread and
 *		pushes complete blocks through process_callback, the way
 *		a sound server backend would.  Used for offline runs and
 *		for exercising the callback scheduler without audio
 *		hardware.
 *
 *		Config params:
 *		  path:   file to read or write (required)
 *		  skip:   bytes to skip at the start of an input file
 *		  append: append to an output file instead of truncating
 *		  block_size_frames: device block size; must divide the
 *		          partition size (defaults to it)
 *
 *---------------------------------------------------------------*/

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

type bfio_filecb_file struct {
	io         int
	fd         int
	frame_size int
	offset     int
	size       int
	buf        []byte
	complete   bool
	state      any
}

var bfio_filecb_glob struct {
	files        []*bfio_filecb_file
	debug        bool
	period_size  int
	block_frames int
	process_cb   bf_process_callback
	stop         atomic.Bool
}

func bfio_filecb_preinit(config map[string]any, io int, sample_format *int, sample_rate int,
	open_channels int, debug bool) (bfio_preinit_result, bool) {
	var settings = &bfio_file_settings{}
	var path, ok = config["path"].(string)
	if !ok || path == "" {
		perror("filecb I/O: path not set.")
		return bfio_preinit_result{}, false
	}
	settings.path = path
	settings.skipbytes = int64(bfio_file_param_int(config, "skip"))
	settings.blockframes = bfio_file_param_int(config, "block_size_frames")
	if v, ok := config["append"].(bool); ok {
		if io == IN {
			perror("filecb I/O: append on input makes no sense.")
			return bfio_preinit_result{}, false
		}
		settings.doappend = v
	}
	if *sample_format == BF_SAMPLE_FORMAT_AUTO {
		perror("filecb I/O: no support for AUTO sample format.")
		return bfio_preinit_result{}, false
	}
	bfio_filecb_glob.debug = debug
	return bfio_preinit_result{params: settings, uses_sample_clock: false, callback_sched: true}, true
}

func bfio_filecb_init(params any, io int, sample_format int, sample_rate int,
	open_channels int, used_channels int, channel_selection []int,
	period_size int, callback_state any,
	process_callback bf_process_callback) (int, int, bool, bool) {
	var settings = params.(*bfio_file_settings)
	var g = &bfio_filecb_glob
	g.process_cb = process_callback
	g.period_size = period_size

	var block_frames = settings.blockframes
	if block_frames == 0 {
		block_frames = period_size
	}
	if g.block_frames != 0 && g.block_frames != block_frames {
		perror("filecb I/O: all devices must use the same block size.")
		return -1, 0, false, false
	}
	g.block_frames = block_frames

	var fd int
	var err error
	if io == IN {
		fd, err = unix.Open(settings.path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			perror("filecb I/O: could not open %q for reading: %v.", settings.path, err)
			return -1, 0, false, false
		}
		if settings.skipbytes > 0 {
			if _, err = unix.Seek(fd, settings.skipbytes, unix.SEEK_SET); err != nil {
				perror("filecb I/O: file seek failed.")
				unix.Close(fd)
				return -1, 0, false, false
			}
		}
	} else {
		var mode = unix.O_TRUNC
		if settings.doappend {
			mode = unix.O_APPEND
		}
		fd, err = unix.Open(settings.path,
			unix.O_WRONLY|unix.O_CREAT|mode|unix.O_NONBLOCK, 0644)
		if err != nil {
			perror("filecb I/O: could not create %q for writing: %v.", settings.path, err)
			return -1, 0, false, false
		}
	}

	var file = &bfio_filecb_file{
		io:         io,
		fd:         fd,
		frame_size: open_channels * bf_sampleformat_size(sample_format),
		state:      callback_state,
	}
	file.size = block_frames * file.frame_size
	file.buf = make([]byte, file.size)
	if io == OUT {
		/* an output block is fetched through the callback before its
		   first write */
		file.offset = file.size
	}
	g.files = append(g.files, file)

	return -1, block_frames, true, true
}

/* The transfer loop.  One device block per round: gather every file's
   block, then one process_callback call delivers and fetches them
   all. */
func bfio_filecb_process_thread() {
	var g = &bfio_filecb_glob
	var frames_left = 0
	var last_input_frames = -1
	var blocks_into_partition = 0
	var blocks_per_partition = g.period_size / g.block_frames

	var all_states [2][]any
	var all_state_count [2]int
	for _, file := range g.files {
		all_states[file.io] = append(all_states[file.io], file.state)
		all_state_count[file.io]++
	}

	for !g.stop.Load() {
		var states [2][]any
		var bufs [2][][]byte
		var state_count [2]int
		var pollfds []unix.PollFd
		var filemap []*bfio_filecb_file
		for _, file := range g.files {
			if frames_left != 0 && file.io == IN {
				if file.fd != -1 {
					unix.Close(file.fd)
				}
				file.fd = -1
				continue
			}
			if file.offset == file.size || file.complete {
				bufs[file.io] = append(bufs[file.io], file.buf)
				states[file.io] = append(states[file.io], file.state)
				state_count[file.io]++
				continue
			}
			var events int16 = unix.POLLIN
			if file.io == OUT {
				events = unix.POLLOUT
			}
			pollfds = append(pollfds, unix.PollFd{Fd: int32(file.fd), Events: events})
			filemap = append(filemap, file)
		}
		if len(pollfds) == 0 {
			if frames_left != 0 {
				/* finished */
				g.process_cb(all_states, all_state_count, [2][][]byte{}, 0,
					BF_CALLBACK_EVENT_FINISHED)
				return
			}
			if last_input_frames != -1 {
				g.process_cb(all_states, all_state_count, [2][][]byte{},
					last_input_frames, BF_CALLBACK_EVENT_LAST_INPUT)
				last_input_frames = -1
			}
			var ret = g.process_cb(states, state_count,
				[2][][]byte{IN: bufs[IN], OUT: bufs[OUT]},
				g.block_frames, BF_CALLBACK_EVENT_NORMAL)
			if ret != 0 {
				frames_left = ret
			}
			if blocks_into_partition++; blocks_into_partition == blocks_per_partition {
				blocks_into_partition = 0
			}
			for _, file := range g.files {
				file.offset = 0
				if file.complete {
					/* deliver silence from here on */
					zerofill(file.buf)
				}
				if file.io == OUT {
					if frames_left > 0 {
						file.size = frames_left * file.frame_size
					} else if frames_left == -1 {
						/* the stream ended exactly on a block
						   boundary; nothing more to write */
						file.size = 0
					}
				}
			}
			continue
		}

		var n, err = unix.Poll(pollfds, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			perror("filecb I/O: poll failed: %v.", err)
			g.process_cb(all_states, all_state_count, [2][][]byte{}, 0,
				BF_CALLBACK_EVENT_ERROR)
			return
		}
		if n == 0 {
			continue
		}
		for i := range pollfds {
			var file = filemap[i]
			if file.io == IN && pollfds[i].Revents&unix.POLLIN != 0 {
				var ret, err = unix.Read(file.fd, file.buf[file.offset:file.size])
				if ret == -1 {
					if err == unix.EINTR || err == unix.EAGAIN {
						continue
					}
					perror("filecb I/O: read failed: %v.", err)
					g.process_cb(all_states, all_state_count, [2][][]byte{}, 0,
						BF_CALLBACK_EVENT_ERROR)
					return
				}
				file.offset += ret
				if ret == 0 {
					file.complete = true
					unix.Close(file.fd)
					file.fd = -1
					var frames = blocks_into_partition*g.block_frames +
						file.offset/file.frame_size
					if last_input_frames == -1 || frames < last_input_frames {
						last_input_frames = frames
					}
					/* deliver silence from here on */
					zerofill(file.buf[file.offset:])
				}
			}
			if file.io == OUT && (pollfds[i].Revents&(unix.POLLOUT|unix.POLLERR)) != 0 {
				var ret, err = unix.Write(file.fd, file.buf[file.offset:file.size])
				if ret == -1 {
					if err == unix.EINTR || err == unix.EAGAIN {
						continue
					}
					perror("filecb I/O: write failed: %v.", err)
					g.process_cb(all_states, all_state_count, [2][][]byte{}, 0,
						BF_CALLBACK_EVENT_ERROR)
					return
				}
				file.offset += ret
			}
		}
	}
}

func bfio_filecb_synch_start() int {
	/* no signals to the transfer thread; they belong to the
	   supervising worker */
	var sigs unix.Sigset_t
	sigs.Val[0] = ^uint64(0)
	var old unix.Sigset_t
	unix.PthreadSigmask(unix.SIG_BLOCK, &sigs, &old)
	go func() {
		runtime.LockOSThread()
		bfio_filecb_process_thread()
	}()
	unix.PthreadSigmask(unix.SIG_SETMASK, &old, nil)
	return 0
}

func bfio_filecb_synch_stop() {
	bfio_filecb_glob.stop.Store(true)
}

func bfio_filecb_module() *bfio_module {
	var g = &bfio_filecb_glob
	g.files = nil
	g.block_frames = 0
	g.stop.Store(false)
	return &bfio_module{
		name:        "filecb",
		iscallback:  true,
		preinit:     bfio_filecb_preinit,
		init:        bfio_filecb_init,
		synch_start: bfio_filecb_synch_start,
		synch_stop:  bfio_filecb_synch_stop,
	}
}
