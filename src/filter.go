package brutefir

/*------------------------------------------------------------------
 *
 * Purpose:	Filter stage.
 *
 *		Per-route FIR convolution between the common input and
 *		output buffers.  Routes connect one physical input
 *		channel to one physical output channel, each with its own
 *		impulse response; several routes may feed one output, in
 *		which case they sum.  An empty impulse response is the
 *		identity.
 *
 *		Convolution is overlap-save over an FFT sized to the
 *		next power of two holding partition + taps - 1 samples.
 *		Sample access goes through the buffer format computed by
 *		the I/O layer, so the stage is independent of device
 *		layout and sample format.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/mjibson/go-dsp/fft"
)

type convolver struct {
	route   *filter_route
	taps    int
	fftsize int
	window  []float64    /* sliding input window, fftsize samples */
	hfreq   []complex128 /* transformed impulse response */
}

var filter_glob struct {
	buffers  [2][2][]byte
	period   int
	convs    []*convolver
	outchans []int /* distinct output channels, in route order */
	acc      []float64
	inbuf    []float64
}

/* Raw impulse response file: float32 little endian, one tap per value. */
func filter_load_coeffs(path string) ([]float64, error) {
	var data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read coefficient file: %w", err)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("coefficient file %q is not a whole number of float32 values", path)
	}
	var coeffs = make([]float64, len(data)/4)
	for n := range coeffs {
		coeffs[n] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*n:])))
	}
	return coeffs, nil
}

func next_pow2(n int) int {
	var p = 1
	for p < n {
		p <<= 1
	}
	return p
}

func filter_init(buffers [2][2][]byte) bool {
	var g = &filter_glob
	g.buffers = buffers
	g.period = bfconf.filter_length
	g.convs = nil
	g.outchans = nil
	g.acc = make([]float64, g.period)
	g.inbuf = make([]float64, g.period)

	var seen = make(map[int]bool)
	for n := range bfconf.routes {
		var route = &bfconf.routes[n]
		g.convs = append(g.convs, new_convolver(route, g.period))
		if !seen[route.outchannel] {
			seen[route.outchannel] = true
			g.outchans = append(g.outchans, route.outchannel)
		}
	}
	return true
}

func new_convolver(route *filter_route, period int) *convolver {
	var cv = &convolver{route: route, taps: len(route.coeffs)}
	if cv.taps > 1 {
		cv.fftsize = next_pow2(period + cv.taps - 1)
		cv.window = make([]float64, cv.fftsize)
		var h = make([]float64, cv.fftsize)
		copy(h, route.coeffs)
		cv.hfreq = fft.FFTReal(h)
	}
	return cv
}

/* Run one partition through all routes: slot indices select which of
   the two common buffers each direction uses. */
func filter_process(in_slot int, out_slot int) {
	var g = &filter_glob
	var inbuf = g.buffers[IN][in_slot]
	var outbuf = g.buffers[OUT][out_slot]

	for _, outch := range g.outchans {
		for i := range g.acc {
			g.acc[i] = 0
		}
		for _, cv := range g.convs {
			if cv.route.outchannel != outch {
				continue
			}
			read_channel(inbuf, dai_buffer_format[IN], cv.route.inchannel, g.inbuf)
			cv.convolve(g.inbuf, g.acc)
		}
		write_channel(outbuf, dai_buffer_format[OUT], outch, g.acc)
	}
}

/* add this route's partition of output into acc */
func (cv *convolver) convolve(in []float64, acc []float64) {
	switch {
	case cv.taps == 0:
		for n := range acc {
			acc[n] += in[n]
		}
	case cv.taps == 1:
		var k = cv.route.coeffs[0]
		for n := range acc {
			acc[n] += k * in[n]
		}
	default:
		copy(cv.window, cv.window[len(in):])
		copy(cv.window[cv.fftsize-len(in):], in)
		var spectrum = fft.FFTReal(cv.window)
		for n := range spectrum {
			spectrum[n] *= cv.hfreq[n]
		}
		var out = fft.IFFT(spectrum)
		var base = cv.fftsize - len(in)
		for n := range acc {
			acc[n] += real(out[base+n])
		}
	}
}

/* Sample access through the computed buffer format.  Integer formats
   are normalised to [-1, 1); floats pass through. */

func read_channel(buf []byte, format *dai_buffer_format_t, channel int, out []float64) {
	var bf = &format.bf[channel]
	var stride = bf.sample_spacing * bf.sf.bytes
	var pos = bf.byte_offset
	for n := range out {
		out[n] = read_sample(buf[pos:pos+bf.sf.bytes], bf.sf)
		pos += stride
	}
}

func write_channel(buf []byte, format *dai_buffer_format_t, channel int, in []float64) {
	var bf = &format.bf[channel]
	var stride = bf.sample_spacing * bf.sf.bytes
	var pos = bf.byte_offset
	for n := range in {
		write_sample(buf[pos:pos+bf.sf.bytes], bf.sf, in[n])
		pos += stride
	}
}

func read_sample(b []byte, sf sample_format) float64 {
	if sf.isfloat {
		switch sf.bytes {
		case 4:
			var bits uint32
			if sf.islittle {
				bits = binary.LittleEndian.Uint32(b)
			} else {
				bits = binary.BigEndian.Uint32(b)
			}
			return float64(math.Float32frombits(bits))
		case 8:
			var bits uint64
			if sf.islittle {
				bits = binary.LittleEndian.Uint64(b)
			} else {
				bits = binary.BigEndian.Uint64(b)
			}
			return math.Float64frombits(bits)
		}
	}
	var v = read_int_sample(b, sf)
	var scale = float64(int64(1) << (uint(sf.sbytes*8) - 1))
	return float64(v) / scale
}

func write_sample(b []byte, sf sample_format, value float64) {
	if sf.isfloat {
		switch sf.bytes {
		case 4:
			var bits = math.Float32bits(float32(value))
			if sf.islittle {
				binary.LittleEndian.PutUint32(b, bits)
			} else {
				binary.BigEndian.PutUint32(b, bits)
			}
		case 8:
			var bits = math.Float64bits(value)
			if sf.islittle {
				binary.LittleEndian.PutUint64(b, bits)
			} else {
				binary.BigEndian.PutUint64(b, bits)
			}
		}
		return
	}
	var scale = float64(int64(1) << (uint(sf.sbytes*8) - 1))
	var max = scale - 1
	var v = math.Round(value * scale)
	if v > max {
		v = max
	}
	if v < -scale {
		v = -scale
	}
	write_int_sample(b, sf, int64(v))
}

func read_int_sample(b []byte, sf sample_format) int64 {
	var u uint64
	if sf.islittle {
		for n := sf.bytes - 1; n >= 0; n-- {
			u = u<<8 | uint64(b[n])
		}
	} else {
		for n := 0; n < sf.bytes; n++ {
			u = u<<8 | uint64(b[n])
		}
	}
	if sf.sbytes < sf.bytes {
		/* packed 24-in-32: significant bytes sit at the bottom */
		u &= (uint64(1) << (uint(sf.sbytes) * 8)) - 1
	}
	var shift = uint(64 - sf.sbytes*8)
	return int64(u<<shift) >> shift /* sign extend */
}

func write_int_sample(b []byte, sf sample_format, v int64) {
	var u = uint64(v) & ((uint64(1) << (uint(sf.sbytes) * 8)) - 1)
	if sf.sbytes == 8 {
		u = uint64(v)
	}
	if sf.islittle {
		for n := 0; n < sf.bytes; n++ {
			b[n] = byte(u >> (8 * uint(n)))
		}
	} else {
		for n := 0; n < sf.bytes; n++ {
			b[n] = byte(u >> (8 * uint(sf.bytes-1-n)))
		}
	}
}
