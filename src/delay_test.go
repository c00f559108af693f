package brutefir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func Test_delay_zero_is_identity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var period = rapid.IntRange(1, 256).Draw(t, "period")
		var sample_size = rapid.SampledFrom([]int{1, 2, 3, 4, 8}).Draw(t, "sample_size")
		var maxdelay = rapid.IntRange(0, 64).Draw(t, "maxdelay")

		var db = delay_allocate_buffer(period, 0, maxdelay, sample_size)

		var in = rapid.SliceOfN(rapid.Byte(), period*sample_size, period*sample_size).Draw(t, "in")
		var buf = make([]byte, len(in))
		copy(buf, in)

		delay_update(db, buf, sample_size, 1, 0)
		assert.Equal(t, in, buf, "Delay 0 must be the identity")

		/* and again, in case state from the first call leaks */
		delay_update(db, buf, sample_size, 1, 0)
		assert.Equal(t, in, buf)
	})
}

func Test_delay_impulse_shift(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		const period = 64
		var maxdelay = rapid.IntRange(1, 128).Draw(t, "maxdelay")
		var d = rapid.IntRange(0, maxdelay).Draw(t, "d")
		var k = rapid.IntRange(0, period-1).Draw(t, "k")

		var db = delay_allocate_buffer(period, d, maxdelay, 2)

		/* a unit impulse at sample k, then silence */
		var partitions = (k+d)/period + 2
		var out []byte
		for p := 0; p < partitions; p++ {
			var buf = make([]byte, period*2)
			if p == 0 {
				buf[2*k] = 0x01
				buf[2*k+1] = 0x7f
			}
			delay_update(db, buf, 2, 1, d)
			out = append(out, buf...)
		}

		for n := 0; n < partitions*period; n++ {
			if n == k+d {
				assert.Equal(t, byte(0x01), out[2*n], "impulse expected at sample %d", k+d)
				assert.Equal(t, byte(0x7f), out[2*n+1])
			} else {
				assert.Equal(t, byte(0), out[2*n], "unexpected signal at sample %d", n)
				assert.Equal(t, byte(0), out[2*n+1])
			}
		}
	})
}

func Test_delay_strided_access(t *testing.T) {
	/* two interleaved channels, delay only applied to the strided view */
	const period = 8
	var db = delay_allocate_buffer(period, 2, 4, 1)

	var buf = []byte{1, 101, 2, 102, 3, 103, 4, 104, 5, 105, 6, 106, 7, 107, 8, 108}
	delay_update(db, buf, 1, 2, 2)

	/* channel at offset 0 delayed by two samples, the other untouched */
	assert.Equal(t, []byte{0, 101, 0, 102, 1, 103, 2, 104, 3, 105, 4, 106, 5, 107, 6, 108}, buf)
}

func Test_delay_clamps_to_maxdelay(t *testing.T) {
	const period = 4
	var db = delay_allocate_buffer(period, 0, 2, 1)

	var buf = []byte{1, 2, 3, 4}
	delay_update(db, buf, 1, 1, 100)
	assert.Equal(t, []byte{0, 0, 1, 2}, buf, "delay must be clamped to maxdelay")
	assert.Equal(t, 2, delay_current(db))
}

func Test_delay_nil_buffer_is_noop(t *testing.T) {
	var buf = []byte{1, 2, 3}
	delay_update(nil, buf, 1, 1, 1)
	assert.Equal(t, []byte{1, 2, 3}, buf)
	assert.Nil(t, delay_allocate_buffer(16, 0, -1, 2))
}
