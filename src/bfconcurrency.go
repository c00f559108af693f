package brutefir

/*------------------------------------------------------------------
 *
 * Purpose:	Concurrency primitives for the engine workers.
 *
 *		The original design used fork() and pipes; modern sound
 *		servers want threads, so the primitives exist in two
 *		flavours behind one API.  Go cannot fork, so a worker is
 *		always a goroutine locked to its own OS thread, but the
 *		semaphore keeps both implementations: a pipe pair whose
 *		byte stream doubles as a tiny message channel, and a
 *		mutex/condvar with a 16 byte fifo.  Pipe mode also makes
 *		the common sample buffers come from shared mappings, which
 *		preserves the old memory layout exactly.
 *
 *		Worker identity is the kernel thread id.  Locking each
 *		worker to an OS thread keeps the id stable for its whole
 *		life, and lets bf_terminate() target it with tgkill().
 *
 *---------------------------------------------------------------*/

import (
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

const bf_sem_msg_max = 16

var pipe_mode = false

func bf_set_pipe_mode(enable bool) {
	pipe_mode = enable
}

func bf_is_pipe_mode() bool {
	return pipe_mode
}

type bf_sem_t struct {
	/* pipe flavour */
	fd [2]int

	/* semaphore flavour */
	mutex      sync.Mutex
	cond       *sync.Cond
	count      uint
	msg_data   [bf_sem_msg_max]byte
	msg_offset int
}

type bf_pid_t int

func bf_sem_init(sem *bf_sem_t) {
	if pipe_mode {
		var p [2]int
		if err := unix.Pipe(p[:]); err != nil {
			perror("Failed to create pipe: %v.", err)
			bf_exit(BF_EXIT_OTHER)
		}
		sem.fd = p
	} else {
		sem.cond = sync.NewCond(&sem.mutex)
		sem.count = 0
		sem.msg_offset = 0
	}
}

func bf_sem_postmany(sem *bf_sem_t, count int) {
	if pipe_mode {
		var dummydata = make([]byte, count)
		if !writefd(sem.fd[1], dummydata) {
			bf_exit(BF_EXIT_OTHER)
		}
	} else {
		sem.mutex.Lock()
		sem.count += uint(count)
		for i := 0; i < count; i++ {
			sem.cond.Signal()
		}
		sem.mutex.Unlock()
	}
}

func bf_sem_post(sem *bf_sem_t) {
	bf_sem_postmany(sem, 1)
}

func bf_sem_postmsg(sem *bf_sem_t, msg []byte) {
	if pipe_mode {
		if !writefd(sem.fd[1], msg) {
			bf_exit(BF_EXIT_OTHER)
		}
	} else {
		sem.mutex.Lock()
		if sem.msg_offset+len(msg) > len(sem.msg_data) {
			perror("Semaphore message buffer overflow.")
			bf_exit(BF_EXIT_OTHER)
		}
		copy(sem.msg_data[sem.msg_offset:], msg)
		sem.msg_offset += len(msg)
		sem.count++
		sem.cond.Signal()
		sem.mutex.Unlock()
	}
}

func bf_sem_waitmany(sem *bf_sem_t, count int) {
	if pipe_mode {
		var dummydata = make([]byte, count)
		if !readfd(sem.fd[0], dummydata) {
			bf_exit(BF_EXIT_OTHER)
		}
	} else {
		sem.mutex.Lock()
		for i := 0; i < count; i++ {
			for sem.count == 0 {
				sem.cond.Wait()
			}
			sem.count--
		}
		sem.mutex.Unlock()
	}
}

func bf_sem_wait(sem *bf_sem_t) {
	bf_sem_waitmany(sem, 1)
}

func bf_sem_waitmsg(sem *bf_sem_t, msg []byte) {
	if pipe_mode {
		if !readfd(sem.fd[0], msg) {
			bf_exit(BF_EXIT_OTHER)
		}
	} else {
		sem.mutex.Lock()
		for sem.count == 0 {
			sem.cond.Wait()
		}
		if sem.msg_offset < len(msg) {
			perror("Semaphore message buffer underflow.")
			bf_exit(BF_EXIT_OTHER)
		}
		copy(msg, sem.msg_data[:len(msg)])
		sem.msg_offset -= len(msg)
		if sem.msg_offset > 0 {
			copy(sem.msg_data[:], sem.msg_data[len(msg):len(msg)+sem.msg_offset])
		}
		sem.count--
		sem.mutex.Unlock()
	}
}

/* Declarations that a worker will only ever wait on (or only ever post
   to) a semaphore.  The fork-based original closed the unused pipe end
   in the calling process; here every worker shares one descriptor
   table, so closing it would sever the pipe for the peer as well.  The
   calls remain as contract markers. */

func bf_sem_never_post(sem *bf_sem_t) {
}

func bf_sem_never_wait(sem *bf_sem_t) {
}

/* Spawn a worker.  The child runs locked to its own OS thread so its
   kernel thread id is a stable identity; it is reported back before
   the child function starts. */
func bf_fork(child_func func(arg any), arg any) bf_pid_t {
	var pidchan = make(chan bf_pid_t, 1)
	go func() {
		runtime.LockOSThread()
		pidchan <- bf_getpid()
		child_func(arg)
	}()
	return <-pidchan
}

func bf_getpid() bf_pid_t {
	return bf_pid_t(unix.Gettid())
}

func bf_pid_equal(a bf_pid_t, b bf_pid_t) bool {
	return a == b
}

func bf_set_sched_fifo(priority int, name string) error {
	var attr = unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	var err = unix.SchedSetAttr(0, &attr, 0)
	if err != nil {
		return err
	}
	pdebug("%s worker set to SCHED_FIFO priority %d", name, priority)
	return nil
}

func bf_make_realtime(priority int, name string) {
	if err := bf_set_sched_fifo(priority, name); err != nil {
		perror("Could not set realtime priority for %s worker: %v. Continuing anyway.", name, err)
	}
}

func bf_terminate(pid bf_pid_t) {
	unix.Tgkill(unix.Getpid(), int(pid), unix.SIGTERM)
}

var global_thread_mutex sync.Mutex

/* Global lock for special situations.  Unlike the original this is
   needed in both modes, since workers always share one process. */
func bf_global_thread_lock(lock bool) {
	if lock {
		global_thread_mutex.Lock()
	} else {
		global_thread_mutex.Unlock()
	}
}
