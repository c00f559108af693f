package brutefir

/*------------------------------------------------------------------
 *
 * Purpose:	Allocator for the common I/O sample buffers.
 *
 *		In pipe mode the buffers come from an anonymous shared
 *		mapping, page aligned and zeroed by the kernel, the way
 *		the original allocated its System V segments.  In
 *		semaphore mode a plain Go allocation has the same access
 *		pattern since all workers share the heap.
 *
 *---------------------------------------------------------------*/

import (
	"golang.org/x/sys/unix"
)

func shmalloc(size int) []byte {
	var buf, err = unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		perror("mmap of %d bytes failed: %v", size, err)
		return nil
	}
	return buf
}

/* Only use shared memory in pipe mode, otherwise a normal allocation. */
func maybe_shmalloc(size int) []byte {
	if bf_is_pipe_mode() {
		return shmalloc(size)
	}
	return make([]byte, size)
}
