package brutefir

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

/* Build just enough engine state to run do_mute on a fabricated
   subdevice. */
func mute_test_subdev(t testing.TB, period int, open_channels int, sfbytes int, interleaved bool, muted []bool) *subdev {
	t.Helper()
	ca = &comarea{}
	glob.period_size = period
	var sd = &subdev{
		isinterleaved: interleaved,
		channels: dai_channels{
			open_channels:     open_channels,
			used_channels:     open_channels,
			channel_name:      make([]int, open_channels),
			channel_selection: make([]int, open_channels),
			sf:                sample_format{bytes: sfbytes, sbytes: sfbytes},
		},
	}
	for n := 0; n < open_channels; n++ {
		sd.channels.channel_name[n] = n
		sd.channels.channel_selection[n] = n
		ca.is_muted[IN][n].Store(muted[n])
	}
	sd.buf_size = period * open_channels * sfbytes
	return sd
}

func Test_do_mute_idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var period = rapid.IntRange(1, 32).Draw(t, "period")
		var channels = rapid.IntRange(1, 4).Draw(t, "channels")
		var sfbytes = rapid.SampledFrom([]int{1, 2, 3, 4, 8}).Draw(t, "sfbytes")
		var interleaved = rapid.Bool().Draw(t, "interleaved")
		var muted = make([]bool, channels)
		for n := range muted {
			muted[n] = rapid.Bool().Draw(t, "muted")
		}
		var sd = mute_test_subdev(t, period, channels, sfbytes, interleaved, muted)

		var size = sd.buf_size
		var buf = rapid.SliceOfN(rapid.Byte(), size, size).Draw(t, "buf")

		var once = make([]byte, size)
		copy(once, buf)
		do_mute(sd, IN, size, once, 0)

		var twice = make([]byte, size)
		copy(twice, once)
		do_mute(sd, IN, size, twice, 0)

		assert.Equal(t, once, twice, "muting must be idempotent")
	})
}

func Test_do_mute_selectivity_interleaved(t *testing.T) {
	const period = 16
	const channels = 2
	const sfbytes = 2
	var sd = mute_test_subdev(t, period, channels, sfbytes, true, []bool{true, false})

	var buf = make([]byte, sd.buf_size)
	for n := range buf {
		buf[n] = byte(n%251 + 1)
	}
	var orig = make([]byte, len(buf))
	copy(orig, buf)

	do_mute(sd, IN, sd.buf_size, buf, 0)

	for frame := 0; frame < period; frame++ {
		var base = frame * channels * sfbytes
		assert.Equal(t, byte(0), buf[base], "channel 0 must be muted")
		assert.Equal(t, byte(0), buf[base+1])
		assert.Equal(t, orig[base+2], buf[base+2], "channel 1 must be untouched")
		assert.Equal(t, orig[base+3], buf[base+3])
	}
}

func Test_do_mute_selectivity_planar(t *testing.T) {
	const period = 16
	const channels = 2
	const sfbytes = 2
	var sd = mute_test_subdev(t, period, channels, sfbytes, false, []bool{false, true})

	var buf = make([]byte, sd.buf_size)
	for n := range buf {
		buf[n] = byte(n%251 + 1)
	}
	var orig = make([]byte, len(buf))
	copy(orig, buf)

	do_mute(sd, IN, sd.buf_size, buf, 0)

	var chsize = period * sfbytes
	assert.Equal(t, orig[:chsize], buf[:chsize], "channel 0 must be untouched")
	for n := chsize; n < 2*chsize; n++ {
		assert.Equal(t, byte(0), buf[n], "channel 1 must be muted at byte %d", n)
	}
}

func Test_do_mute_partial_window_leaves_rest(t *testing.T) {
	/* mute only a sub-window of the block; bytes outside must stay */
	const period = 8
	const channels = 2
	const sfbytes = 2
	const framesize = channels * sfbytes
	var sd = mute_test_subdev(t, period, channels, sfbytes, true, []bool{true, false})

	var buf = make([]byte, sd.buf_size)
	for n := range buf {
		buf[n] = 0xee
	}
	var orig = make([]byte, len(buf))
	copy(orig, buf)

	/* a frame-aligned window in the middle */
	var offset = 2 * framesize
	var wsize = 4 * framesize
	do_mute(sd, IN, wsize, buf, offset)

	assert.Equal(t, orig[:offset], buf[:offset], "bytes before the window must be untouched")
	assert.Equal(t, orig[offset+wsize:], buf[offset+wsize:], "bytes after the window must be untouched")
	for frame := 2; frame < 6; frame++ {
		var base = frame * framesize
		assert.Equal(t, byte(0), buf[base])
		assert.Equal(t, byte(0), buf[base+1])
		assert.Equal(t, byte(0xee), buf[base+2])
		assert.Equal(t, byte(0xee), buf[base+3])
	}
}

func Test_do_mute_unaligned_window(t *testing.T) {
	/* offset and end both land inside frames; muted samples within the
	   window are cleared, everything outside stays */
	const period = 8
	const channels = 2
	const sfbytes = 2
	const framesize = channels * sfbytes
	var sd = mute_test_subdev(t, period, channels, sfbytes, true, []bool{false, true})

	var buf = make([]byte, sd.buf_size)
	for n := range buf {
		buf[n] = 0xaa
	}
	var orig = make([]byte, len(buf))
	copy(orig, buf)

	/* start half way into frame 1, end half way into frame 5 */
	var offset = framesize + sfbytes
	var wsize = 4 * framesize
	do_mute(sd, IN, wsize, buf, offset)

	assert.Equal(t, orig[:offset], buf[:offset])
	assert.Equal(t, orig[offset+wsize:], buf[offset+wsize:])
	/* channel 1 of frames 1..4 lies fully inside the window */
	for frame := 1; frame < 5; frame++ {
		var base = frame*framesize + 1*sfbytes
		assert.Equal(t, byte(0), buf[base], "channel 1 of frame %d must be muted", frame)
		assert.Equal(t, byte(0), buf[base+1])
	}
	/* channel 0 samples inside the window must be untouched */
	for frame := 2; frame < 5; frame++ {
		var base = frame * framesize
		assert.Equal(t, byte(0xaa), buf[base], "channel 0 of frame %d must be untouched", frame)
		assert.Equal(t, byte(0xaa), buf[base+1])
	}
}

func Test_do_mute_nothing_muted(t *testing.T) {
	var sd = mute_test_subdev(t, 8, 2, 2, true, []bool{false, false})
	var buf = make([]byte, sd.buf_size)
	for n := range buf {
		buf[n] = 0x55
	}
	var orig = make([]byte, len(buf))
	copy(orig, buf)
	do_mute(sd, IN, sd.buf_size, buf, 0)
	assert.Equal(t, orig, buf)
}

/* Fabricate subdevices and verify the computed layout invariants. */
func Test_calc_buffer_format_no_overlap(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var period = rapid.SampledFrom([]int{16, 64, 128}).Draw(t, "period")
		var n_devs = rapid.IntRange(1, 4).Draw(t, "n_devs")

		var channel_base = 0
		glob.period_size = period
		glob.n_devs[IN] = n_devs
		glob.dev[IN] = make([]*subdev, n_devs)
		for n := 0; n < n_devs; n++ {
			var open = rapid.IntRange(1, 4).Draw(t, "open")
			var used = rapid.IntRange(1, open).Draw(t, "used")
			var sfbytes = rapid.SampledFrom([]int{1, 2, 3, 4, 8}).Draw(t, "sfbytes")
			var interleaved = rapid.Bool().Draw(t, "interleaved")
			var first = rapid.IntRange(0, open-used).Draw(t, "first")

			var sd = &subdev{isinterleaved: interleaved}
			sd.channels = dai_channels{
				open_channels:     open,
				used_channels:     used,
				channel_name:      make([]int, used),
				channel_selection: make([]int, used),
				sf:                sample_format{bytes: sfbytes, sbytes: sfbytes},
			}
			for i := 0; i < used; i++ {
				sd.channels.channel_name[i] = channel_base + i
				sd.channels.channel_selection[i] = first + i
			}
			if !interleaved {
				sd.channels.open_channels = used
				for i := 0; i < used; i++ {
					sd.channels.channel_selection[i] = i
				}
			}
			channel_base += used
			glob.dev[IN][n] = sd
		}

		var format dai_buffer_format_t
		calc_buffer_format(period, IN, &format)

		assert.Equal(t, 0, format.n_bytes%ALIGNMENT, "total size must be aligned")
		assert.Equal(t, channel_base, format.n_channels)

		var owner = make([]int, format.n_bytes)
		for n := range owner {
			owner[n] = -1
		}
		for n := 0; n < glob.n_devs[IN]; n++ {
			var sd = glob.dev[IN][n]
			for i := 0; i < sd.channels.used_channels; i++ {
				var ch = sd.channels.channel_name[i]
				var bf = &format.bf[ch]
				if sd.isinterleaved {
					assert.Equal(t, sd.channels.open_channels, bf.sample_spacing)
				} else {
					assert.Equal(t, 1, bf.sample_spacing)
				}
				var last = bf.byte_offset + bf.sample_spacing*(period-1)*bf.sf.bytes + bf.sf.bytes
				require.LessOrEqual(t, last, sd.buf_offset+sd.buf_size,
					"channel %d exceeds its subdevice region", ch)
				for s := 0; s < period; s++ {
					var off = bf.byte_offset + s*bf.sample_spacing*bf.sf.bytes
					for b := 0; b < bf.sf.bytes; b++ {
						require.Equal(t, -1, owner[off+b],
							"channel %d overlaps channel %d at byte %d", ch, owner[off+b], off+b)
						owner[off+b] = ch
					}
				}
			}
		}
	})
}

/* The reusable barrier behind the callback rendezvous: the last worker
   of each round releases exactly the workers that parked; nobody skips
   a round. */
func Test_callback_ready_barrier(t *testing.T) {
	bf_set_pipe_mode(false)
	bf_sem_init(&glob.cbmutex_pipe[IN])
	bf_sem_post(&glob.cbmutex_pipe[IN])
	bf_sem_init(&glob.cbreadywait_pipe[IN])
	glob.callback_ready_waiting[IN] = 0

	const workers = 4
	const rounds = 20
	var arrived = 0
	var epoch atomic.Int32

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				cbmutex(IN, true)
				var before = epoch.Load()
				arrived++
				if arrived == workers {
					arrived = 0
					epoch.Add(1)
					trigger_callback_ready(IN)
				} else {
					wait_callback_ready(IN)
				}
				var after = epoch.Load()
				assert.LessOrEqual(t, after-before, int32(1),
					"a worker must never observe the epoch skipping")
			}
		}()
	}

	var done = make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("barrier deadlocked")
	}
	assert.Equal(t, int32(rounds), epoch.Load(),
		"every round must release exactly one epoch")
}

func Test_dai_toggle_mute_bounds(t *testing.T) {
	ca = &comarea{}
	dai_toggle_mute(IN, 0)
	assert.True(t, ca.is_muted[IN][0].Load())
	dai_toggle_mute(IN, 0)
	assert.False(t, ca.is_muted[IN][0].Load())

	/* out of range requests are ignored */
	dai_toggle_mute(IN, -1)
	dai_toggle_mute(IN, BF_MAXCHANNELS)
	dai_toggle_mute(5, 0)
}

func Test_dai_change_delay_validation(t *testing.T) {
	ca = &comarea{}
	bfconf.n_virtperphys[OUT][3] = 1
	assert.Equal(t, 0, dai_change_delay(OUT, 3, 25))
	assert.Equal(t, int32(25), ca.delay[OUT][3].Load())

	assert.Equal(t, -1, dai_change_delay(OUT, 3, -1), "negative delay must be rejected")
	bfconf.n_virtperphys[OUT][4] = 2
	assert.Equal(t, -1, dai_change_delay(OUT, 4, 10), "many-to-one channels have no delay buffer")
	assert.Equal(t, -1, dai_change_delay(7, 3, 10))
}
