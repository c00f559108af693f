package brutefir

/*------------------------------------------------------------------
 *
 * Purpose:	Engine run loop.
 *
 *		Spawns the input and output workers and wires them to
 *		the filter stage.  The filter runs synchronously with
 *		the input worker: each partition the input worker fills
 *		the current input slot, convolves into the matching
 *		output slot, and posts the filter semaphore; the output
 *		worker waits on it and drains the slot.  A free-slot
 *		semaphore provides the backpressure that keeps the
 *		pipeline within the two buffer slots.
 *
 *		Callback-driven subdevices pace the same pipeline
 *		through bf_callback_ready(), which the callback
 *		scheduler fires each time a direction completes a
 *		partition.
 *
 *---------------------------------------------------------------*/

import (
	"os"
	"runtime"
)

var bfrun_glob struct {
	filter_sem    bf_sem_t
	free_sem      bf_sem_t
	synch_sem     bf_sem_t
	cb_ready_sem  [2]bf_sem_t
	cb_slot_sem   [2]bf_sem_t
	cb_pacing     [2]bool
	has_fd_in     bool
	has_fd_out    bool
	has_cb_in     bool
	has_cb_out    bool
	n_clocked_out int
	registered    []bf_pid_t
}

/* Tests replace this to intercept the exit. */
var bf_exit_handler func(code int)

func bf_exit(code int) {
	dai_die()
	if bf_exit_handler != nil {
		bf_exit_handler(code)
		runtime.Goexit()
	}
	os.Exit(code)
}

func sleep_forever() {
	select {}
}

func sched_yield() {
	runtime.Gosched()
}

func bf_register_process(pid bf_pid_t) {
	bfrun_glob.registered = append(bfrun_glob.registered, pid)
}

/* Fired by the callback scheduler when a direction has completed one
   partition of callback I/O. */
func bf_callback_ready(io int) {
	bf_sem_post(&bfrun_glob.cb_ready_sem[io])
}

/* Called by the callback scheduler before it opens a new partition on
   a direction.  Blocks until the filter stage has made the slot about
   to be reused safe: consumed for inputs, produced for outputs.  With
   a hardware-clocked backend the credit is normally already there (the
   iodelay fill put the filter ahead); a clockless backend like the
   callback file module gets paced into lockstep instead of racing the
   filter around the two slots. */
func bf_callback_slot_wait(io int) {
	if !bfrun_glob.cb_pacing[io] {
		return
	}
	bf_sem_wait(&bfrun_glob.cb_slot_sem[io])
}

func bfrun_classify_devices() {
	var g = &bfrun_glob
	g.has_fd_in = false
	g.has_fd_out = false
	g.has_cb_in = false
	g.has_cb_out = false
	g.n_clocked_out = 0
	for n := 0; n < bfconf.n_subdevs[IN]; n++ {
		if bfconf.iomods[bfconf.subdevs[IN][n].module].iscallback {
			g.has_cb_in = true
		} else {
			g.has_fd_in = true
		}
	}
	for n := 0; n < bfconf.n_subdevs[OUT]; n++ {
		var sd = &bfconf.subdevs[OUT][n]
		if bfconf.iomods[sd.module].iscallback {
			g.has_cb_out = true
		} else {
			g.has_fd_out = true
			if sd.uses_clock {
				g.n_clocked_out++
			}
		}
	}
}

func input_worker(any) {
	var g = &bfrun_glob
	if bfconf.realtime_priority {
		bf_make_realtime(bfconf.realtime_maxprio, "input")
	}
	if g.n_clocked_out > 0 {
		/* wait until the output worker has primed the clocked
		   outputs, so input and output start on the same edge */
		bf_sem_wait(&g.synch_sem)
	}
	var out_slot = 0
	if g.n_clocked_out > 0 {
		/* the priming round consumed one output slot */
		out_slot = 1
	}
	var in_slot = 0
	for {
		bf_sem_wait(&g.free_sem)
		dai_input()
		/* the first dai_input call also starts the callback backends,
		   so the rendezvous waits must come after it */
		if g.has_cb_in {
			bf_sem_wait(&g.cb_ready_sem[IN])
		}
		if g.has_cb_out {
			bf_sem_wait(&g.cb_ready_sem[OUT])
		}
		filter_process(in_slot, out_slot)
		if g.has_cb_in {
			bf_sem_post(&g.cb_slot_sem[IN])
		}
		if g.has_cb_out {
			bf_sem_post(&g.cb_slot_sem[OUT])
		}
		bf_sem_post(&g.filter_sem)
		in_slot = 1 - in_slot
		out_slot = 1 - out_slot
	}
}

func output_worker(any) {
	var g = &bfrun_glob
	if bfconf.realtime_priority {
		bf_make_realtime(bfconf.realtime_midprio, "output")
	}
	if g.n_clocked_out > 0 {
		dai_output(true, &g.synch_sem)
	}
	for {
		bf_sem_wait(&g.filter_sem)
		dai_output(false, nil)
		bf_sem_post(&g.free_sem)
	}
}

/* Initialise the I/O layer and the filter stage, start the workers.
   Returns once the engine is running; the process terminates through
   bf_exit() from whichever worker finishes (or fails) first. */
func bfrun() bool {
	bfrun_classify_devices()
	var g = &bfrun_glob

	var buffers [2][2][]byte
	if !dai_init(bfconf.filter_length, bfconf.sample_rate, bfconf.n_subdevs, bfconf.subdevs, &buffers) {
		return false
	}
	if !filter_init(buffers) {
		return false
	}

	bf_sem_init(&g.filter_sem)
	bf_sem_init(&g.free_sem)
	bf_sem_init(&g.synch_sem)
	bf_sem_init(&g.cb_ready_sem[IN])
	bf_sem_init(&g.cb_ready_sem[OUT])
	bf_sem_init(&g.cb_slot_sem[IN])
	bf_sem_init(&g.cb_slot_sem[OUT])
	g.cb_pacing[IN] = g.has_cb_in
	g.cb_pacing[OUT] = g.has_cb_out

	/* two slots in flight on the blocking path, one initial credit on
	   each callback rendezvous (double buffering provides the slack) */
	bf_sem_postmany(&g.free_sem, 2)
	if g.has_cb_out {
		bf_sem_post(&g.cb_ready_sem[OUT])
	}
	if g.has_cb_in {
		bf_sem_post(&g.cb_slot_sem[IN])
	}

	pinfo("Engine running: %d partition frames at %d Hz, %d in / %d out subdevices.",
		bfconf.filter_length, bfconf.sample_rate,
		bfconf.n_subdevs[IN], bfconf.n_subdevs[OUT])
	pdebug("minimum clocked block size: %d frames", dai_minblocksize())

	bf_register_process(bf_fork(output_worker, nil))
	bf_register_process(bf_fork(input_worker, nil))
	return true
}
