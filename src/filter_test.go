package brutefir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_convolver_identity(t *testing.T) {
	var cv = new_convolver(&filter_route{}, 8)
	var in = []float64{1, -2, 3, -4, 5, -6, 7, -8}
	var acc = make([]float64, 8)
	cv.convolve(in, acc)
	assert.Equal(t, in, acc)

	/* routes sum into the accumulator */
	cv.convolve(in, acc)
	for n := range in {
		assert.Equal(t, 2*in[n], acc[n])
	}
}

func Test_convolver_scale(t *testing.T) {
	var cv = new_convolver(&filter_route{coeffs: []float64{0.5}}, 4)
	var acc = make([]float64, 4)
	cv.convolve([]float64{2, 4, 6, 8}, acc)
	assert.Equal(t, []float64{1, 2, 3, 4}, acc)
}

/* FFT convolution must match direct time-domain convolution across
   partition boundaries. */
func Test_convolver_matches_direct(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var period = rapid.SampledFrom([]int{16, 64}).Draw(t, "period")
		var taps = rapid.IntRange(2, 40).Draw(t, "taps")
		var partitions = rapid.IntRange(1, 4).Draw(t, "partitions")

		var coeffs = make([]float64, taps)
		for n := range coeffs {
			coeffs[n] = rapid.Float64Range(-1, 1).Draw(t, "h")
		}
		var input = make([]float64, period*partitions)
		for n := range input {
			input[n] = rapid.Float64Range(-1, 1).Draw(t, "x")
		}

		var cv = new_convolver(&filter_route{coeffs: coeffs}, period)
		var got = make([]float64, 0, len(input))
		for p := 0; p < partitions; p++ {
			var acc = make([]float64, period)
			cv.convolve(input[p*period:(p+1)*period], acc)
			got = append(got, acc...)
		}

		for n := range input {
			var want = 0.0
			for k := 0; k < taps; k++ {
				if n-k >= 0 {
					want += coeffs[k] * input[n-k]
				}
			}
			require.InDelta(t, want, got[n], 1e-9, "sample %d", n)
		}
	})
}

func Test_sample_roundtrip(t *testing.T) {
	var formats = []int{
		BF_SAMPLE_FORMAT_S8,
		BF_SAMPLE_FORMAT_S16_LE,
		BF_SAMPLE_FORMAT_S16_BE,
		BF_SAMPLE_FORMAT_S24_LE,
		BF_SAMPLE_FORMAT_S24_4LE,
		BF_SAMPLE_FORMAT_S32_LE,
		BF_SAMPLE_FORMAT_FLOAT_LE,
		BF_SAMPLE_FORMAT_FLOAT64_BE,
	}
	for _, format := range formats {
		var sf = bf_sampleformat(format)
		var b = make([]byte, sf.bytes)
		for _, value := range []float64{0, 0.5, -0.5, 0.123, -0.999} {
			write_sample(b, sf, value)
			var got = read_sample(b, sf)
			var lsb = 1.0
			if !sf.isfloat {
				lsb = 1.0 / float64(int64(1)<<(uint(sf.sbytes*8)-1))
			} else {
				lsb = 1e-6
			}
			assert.InDelta(t, value, got, lsb,
				"%s roundtrip of %f", bf_sampleformat_name(format), value)
		}
	}
}

func Test_sample_integer_exactness(t *testing.T) {
	/* integer sample values must survive the float path bit-exactly */
	var sf = bf_sampleformat(BF_SAMPLE_FORMAT_S16_LE)
	var b = make([]byte, 2)
	for _, v := range []int64{-32768, -16000, -1, 0, 1, 16000, 32767} {
		write_int_sample(b, sf, v)
		var f = read_sample(b, sf)
		write_sample(b, sf, f)
		assert.Equal(t, v, read_int_sample(b, sf), "s16 value %d", v)
	}
}

func Test_sample_clipping(t *testing.T) {
	var sf = bf_sampleformat(BF_SAMPLE_FORMAT_S16_LE)
	var b = make([]byte, 2)
	write_sample(b, sf, 1.5)
	assert.Equal(t, int64(32767), read_int_sample(b, sf))
	write_sample(b, sf, -1.5)
	assert.Equal(t, int64(-32768), read_int_sample(b, sf))
}

func Test_next_pow2(t *testing.T) {
	assert.Equal(t, 1, next_pow2(1))
	assert.Equal(t, 64, next_pow2(64))
	assert.Equal(t, 128, next_pow2(65))
}

func Test_s24_sign_extension(t *testing.T) {
	var sf = bf_sampleformat(BF_SAMPLE_FORMAT_S24_LE)
	var b = make([]byte, 3)
	write_int_sample(b, sf, -1)
	assert.Equal(t, int64(-1), read_int_sample(b, sf))
	write_int_sample(b, sf, -(1 << 23))
	assert.Equal(t, int64(-(1<<23)), read_int_sample(b, sf))
	assert.True(t, math.Signbit(read_sample(b, sf)))
}
