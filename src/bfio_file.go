package brutefir

/*------------------------------------------------------------------
 *
 * Purpose:	Blocking file I/O backend.
 *
 *		Drives plain files, FIFOs and device nodes through the
 *		blocking schedulers.  The descriptors are opened
 *		non-blocking so a slow pipe reports EAGAIN instead of
 *		stalling the partition loop in the middle of a transfer.
 *
 *		Config params:
 *		  path:   file to read or write (required)
 *		  skip:   bytes to skip at the start of an input file
 *		  append: append to an output file instead of truncating
 *		  block_size_frames: report a native block size, which the
 *		          scheduler uses for write quanta and alignment
 *
 *---------------------------------------------------------------*/

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type bfio_file_settings struct {
	path       string
	skipbytes  int64
	doappend    bool
	blockframes int
}

func bfio_file_param_int(config map[string]any, key string) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func bfio_file_preinit(config map[string]any, io int, sample_format *int, sample_rate int,
	open_channels int, debug bool) (bfio_preinit_result, bool) {
	var settings = &bfio_file_settings{}
	var path, ok = config["path"].(string)
	if !ok || path == "" {
		perror("file I/O: path not set.")
		return bfio_preinit_result{}, false
	}
	settings.path = path
	settings.skipbytes = int64(bfio_file_param_int(config, "skip"))
	settings.blockframes = bfio_file_param_int(config, "block_size_frames")
	if v, ok := config["append"].(bool); ok {
		if io == IN {
			perror("file I/O: append on input makes no sense.")
			return bfio_preinit_result{}, false
		}
		settings.doappend = v
	}
	if *sample_format == BF_SAMPLE_FORMAT_AUTO {
		perror("file I/O: no support for AUTO sample format.")
		return bfio_preinit_result{}, false
	}
	return bfio_preinit_result{params: settings, uses_sample_clock: false}, true
}

func bfio_file_init(params any, io int, sample_format int, sample_rate int,
	open_channels int, used_channels int, channel_selection []int,
	period_size int, callback_state any,
	process_callback bf_process_callback) (int, int, bool, bool) {
	var settings = params.(*bfio_file_settings)

	var fd int
	var err error
	if io == IN {
		fd, err = unix.Open(settings.path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			perror("file I/O: could not open %q for reading: %v.", settings.path, err)
			return -1, 0, false, false
		}
		if settings.skipbytes > 0 {
			if _, err = unix.Seek(fd, settings.skipbytes, unix.SEEK_SET); err != nil {
				perror("file I/O: file seek failed: %v.", err)
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
			perror("file I/O: could not create %q for writing: %v.", settings.path, err)
			return -1, 0, false, false
		}
	}
	return fd, settings.blockframes, true, true
}

func bfio_file_read(fd int, buf []byte, offset int, count int) (int, error) {
	return unix.Read(fd, buf[offset:offset+count])
}

func bfio_file_write(fd int, buf []byte, offset int, count int) (int, error) {
	return unix.Write(fd, buf[offset:offset+count])
}

func bfio_file_stop(io int) {
	/* descriptors are closed by process exit */
}

var bfio_file_msg string

func bfio_file_command(fd int, params string) int {
	switch params {
	case "status":
		bfio_file_msg = fmt.Sprintf("fd %d open", fd)
		return 0
	}
	bfio_file_msg = "Unknown command"
	return -1
}

func bfio_file_message() string {
	return bfio_file_msg
}

func bfio_file_module() *bfio_module {
	return &bfio_module{
		name:       "file",
		iscallback: false,
		preinit:    bfio_file_preinit,
		init:       bfio_file_init,
		stop:       bfio_file_stop,
		read:       bfio_file_read,
		write:      bfio_file_write,
		command:    bfio_file_command,
		message:    bfio_file_message,
	}
}
