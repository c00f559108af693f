package brutefir

/*------------------------------------------------------------------
 *
 * Purpose:	Full-buffer read/write over raw file descriptors.
 *
 *		The control pipes carry small framed messages.  Partial
 *		transfers are continued until the whole buffer has
 *		moved; end of file or any error other than EINTR is a
 *		protocol error.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

func readfd(fd int, buf []byte) bool {
	var i = 0
	for i != len(buf) {
		var n, err = unix.Read(fd, buf[i:])
		if n < 1 {
			if n == 0 || err != unix.EINTR {
				perror("read from fd %d failed: %v", fd, err)
				return false
			}
			continue
		}
		i += n
	}
	return true
}

func writefd(fd int, buf []byte) bool {
	var i = 0
	for i != len(buf) {
		var n, err = unix.Write(fd, buf[i:])
		if n < 1 {
			if n == 0 || err != unix.EINTR {
				perror("write to fd %d failed: %v", fd, err)
				return false
			}
			continue
		}
		i += n
	}
	return true
}

/* The pipe protocol frames integers as 32-bit little endian. */

func readfd_int(fd int, value *int) bool {
	var b [4]byte
	if !readfd(fd, b[:]) {
		return false
	}
	*value = int(int32(binary.LittleEndian.Uint32(b[:])))
	return true
}

func writefd_int(fd int, value int) bool {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(int32(value)))
	return writefd(fd, b[:])
}
