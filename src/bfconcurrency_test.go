package brutefir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func sem_modes(t *testing.T, name string, fn func(t *testing.T)) {
	t.Run(name+"_sem_mode", func(t *testing.T) {
		bf_set_pipe_mode(false)
		fn(t)
	})
	t.Run(name+"_pipe_mode", func(t *testing.T) {
		bf_set_pipe_mode(true)
		defer bf_set_pipe_mode(false)
		fn(t)
	})
}

func Test_bf_sem_post_wait(t *testing.T) {
	sem_modes(t, "post_wait", func(t *testing.T) {
		var sem bf_sem_t
		bf_sem_init(&sem)

		bf_sem_postmany(&sem, 3)
		bf_sem_wait(&sem)
		bf_sem_waitmany(&sem, 2)

		/* a wait must block until a post arrives */
		var done = make(chan struct{})
		go func() {
			bf_sem_wait(&sem)
			close(done)
		}()
		select {
		case <-done:
			t.Fatal("wait returned without a post")
		case <-time.After(50 * time.Millisecond):
		}
		bf_sem_post(&sem)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("wait did not return after post")
		}
	})
}

func Test_bf_sem_msg_order(t *testing.T) {
	sem_modes(t, "msg_order", func(t *testing.T) {
		var sem bf_sem_t
		bf_sem_init(&sem)

		bf_sem_postmsg(&sem, []byte{1})
		bf_sem_postmsg(&sem, []byte{2})
		bf_sem_postmsg(&sem, []byte{3})

		var msg = make([]byte, 1)
		bf_sem_waitmsg(&sem, msg)
		assert.Equal(t, byte(1), msg[0])
		bf_sem_waitmsg(&sem, msg)
		assert.Equal(t, byte(2), msg[0])
		bf_sem_waitmsg(&sem, msg)
		assert.Equal(t, byte(3), msg[0])
	})
}

func Test_bf_sem_msg_multibyte(t *testing.T) {
	sem_modes(t, "msg_multibyte", func(t *testing.T) {
		var sem bf_sem_t
		bf_sem_init(&sem)

		bf_sem_postmsg(&sem, []byte("abcd"))
		var msg = make([]byte, 4)
		bf_sem_waitmsg(&sem, msg)
		assert.Equal(t, "abcd", string(msg))
	})
}

func Test_bf_fork_identity(t *testing.T) {
	var reported = make(chan bf_pid_t, 1)
	var pid = bf_fork(func(arg any) {
		reported <- bf_getpid()
	}, nil)

	select {
	case var_pid := <-reported:
		assert.True(t, bf_pid_equal(pid, var_pid),
			"bf_fork return value must match the child's own identity")
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not start")
	}
	assert.False(t, bf_pid_equal(pid, bf_getpid()),
		"the child identity must differ from the caller's")
}

func Test_maybe_shmalloc(t *testing.T) {
	bf_set_pipe_mode(false)
	var buf = maybe_shmalloc(4096)
	assert.Len(t, buf, 4096)

	bf_set_pipe_mode(true)
	defer bf_set_pipe_mode(false)
	var shared = maybe_shmalloc(4096)
	assert.Len(t, shared, 4096)
	for n := range shared {
		assert.Equal(t, byte(0), shared[n])
	}
	shared[0] = 0xff
	assert.Equal(t, byte(0xff), shared[0])
}

func Test_readfd_writefd(t *testing.T) {
	var p [2]int
	assert.NoError(t, unix.Pipe(p[:]))
	defer unix.Close(p[0])
	defer unix.Close(p[1])

	assert.True(t, writefd(p[1], []byte("hello")))
	var buf = make([]byte, 5)
	assert.True(t, readfd(p[0], buf))
	assert.Equal(t, "hello", string(buf))

	assert.True(t, writefd_int(p[1], -12345))
	var value int
	assert.True(t, readfd_int(p[0], &value))
	assert.Equal(t, -12345, value)
}
