package brutefir

/*------------------------------------------------------------------
 *
 * Purpose:	Shared constants for the convolution engine core.
 *
 *		The values here mirror the original C headers (defs.h,
 *		bfmod.h, inout.h) so the ported translation units can
 *		keep their shapes.
 *
 *---------------------------------------------------------------*/

const (
	IN  = 0
	OUT = 1
)

const BF_MAXCHANNELS = 256

/* Each subdevice's region in the common sample buffers is padded to
   this boundary.  Channels inside a region are not padded, so only the
   region starts are aligned. */
const ALIGNMENT = 32

const FD_SETSIZE = 1024

const BF_UNDEFINED_SUBDELAY = -1000000000

/* Process exit codes.  These are stable; scripts depend on them. */
const (
	BF_EXIT_OK               = 0
	BF_EXIT_OTHER            = 1
	BF_EXIT_INVALID_CONFIG   = 2
	BF_EXIT_NO_MEMORY        = 3
	BF_EXIT_INVALID_INPUT    = 4
	BF_EXIT_BUFFER_UNDERFLOW = 5
)

/* Events passed to process_callback by callback-driven I/O modules. */
const (
	BF_CALLBACK_EVENT_NORMAL     = 0
	BF_CALLBACK_EVENT_ERROR      = 1
	BF_CALLBACK_EVENT_LAST_INPUT = 2
	BF_CALLBACK_EVENT_FINISHED   = 3
)

/* Sample formats. */
const (
	BF_SAMPLE_FORMAT_AUTO = iota
	BF_SAMPLE_FORMAT_S8
	BF_SAMPLE_FORMAT_S16_LE
	BF_SAMPLE_FORMAT_S16_BE
	BF_SAMPLE_FORMAT_S24_LE
	BF_SAMPLE_FORMAT_S24_BE
	BF_SAMPLE_FORMAT_S24_4LE
	BF_SAMPLE_FORMAT_S24_4BE
	BF_SAMPLE_FORMAT_S32_LE
	BF_SAMPLE_FORMAT_S32_BE
	BF_SAMPLE_FORMAT_FLOAT_LE
	BF_SAMPLE_FORMAT_FLOAT_BE
	BF_SAMPLE_FORMAT_FLOAT64_LE
	BF_SAMPLE_FORMAT_FLOAT64_BE
)

type sample_format struct {
	format   int
	bytes    int /* bytes occupied in the stream per sample */
	sbytes   int /* significant bytes (3 for packed 24-in-32) */
	isfloat  bool
	islittle bool
}

func bf_sampleformat(format int) sample_format {
	switch format {
	case BF_SAMPLE_FORMAT_S8:
		return sample_format{format, 1, 1, false, true}
	case BF_SAMPLE_FORMAT_S16_LE:
		return sample_format{format, 2, 2, false, true}
	case BF_SAMPLE_FORMAT_S16_BE:
		return sample_format{format, 2, 2, false, false}
	case BF_SAMPLE_FORMAT_S24_LE:
		return sample_format{format, 3, 3, false, true}
	case BF_SAMPLE_FORMAT_S24_BE:
		return sample_format{format, 3, 3, false, false}
	case BF_SAMPLE_FORMAT_S24_4LE:
		return sample_format{format, 4, 3, false, true}
	case BF_SAMPLE_FORMAT_S24_4BE:
		return sample_format{format, 4, 3, false, false}
	case BF_SAMPLE_FORMAT_S32_LE:
		return sample_format{format, 4, 4, false, true}
	case BF_SAMPLE_FORMAT_S32_BE:
		return sample_format{format, 4, 4, false, false}
	case BF_SAMPLE_FORMAT_FLOAT_LE:
		return sample_format{format, 4, 4, true, true}
	case BF_SAMPLE_FORMAT_FLOAT_BE:
		return sample_format{format, 4, 4, true, false}
	case BF_SAMPLE_FORMAT_FLOAT64_LE:
		return sample_format{format, 8, 8, true, true}
	case BF_SAMPLE_FORMAT_FLOAT64_BE:
		return sample_format{format, 8, 8, true, false}
	}
	return sample_format{BF_SAMPLE_FORMAT_AUTO, 0, 0, false, true}
}

func bf_sampleformat_size(format int) int {
	return bf_sampleformat(format).bytes
}

func bf_sampleformat_name(format int) string {
	switch format {
	case BF_SAMPLE_FORMAT_S8:
		return "S8"
	case BF_SAMPLE_FORMAT_S16_LE:
		return "S16_LE"
	case BF_SAMPLE_FORMAT_S16_BE:
		return "S16_BE"
	case BF_SAMPLE_FORMAT_S24_LE:
		return "S24_LE"
	case BF_SAMPLE_FORMAT_S24_BE:
		return "S24_BE"
	case BF_SAMPLE_FORMAT_S24_4LE:
		return "S24_4LE"
	case BF_SAMPLE_FORMAT_S24_4BE:
		return "S24_4BE"
	case BF_SAMPLE_FORMAT_S32_LE:
		return "S32_LE"
	case BF_SAMPLE_FORMAT_S32_BE:
		return "S32_BE"
	case BF_SAMPLE_FORMAT_FLOAT_LE:
		return "FLOAT_LE"
	case BF_SAMPLE_FORMAT_FLOAT_BE:
		return "FLOAT_BE"
	case BF_SAMPLE_FORMAT_FLOAT64_LE:
		return "FLOAT64_LE"
	case BF_SAMPLE_FORMAT_FLOAT64_BE:
		return "FLOAT64_BE"
	}
	return "AUTO"
}

func bf_sampleformat_parse(name string) int {
	switch name {
	case "s8", "S8":
		return BF_SAMPLE_FORMAT_S8
	case "s16_le", "S16_LE":
		return BF_SAMPLE_FORMAT_S16_LE
	case "s16_be", "S16_BE":
		return BF_SAMPLE_FORMAT_S16_BE
	case "s24_le", "S24_LE":
		return BF_SAMPLE_FORMAT_S24_LE
	case "s24_be", "S24_BE":
		return BF_SAMPLE_FORMAT_S24_BE
	case "s24_4le", "S24_4LE":
		return BF_SAMPLE_FORMAT_S24_4LE
	case "s24_4be", "S24_4BE":
		return BF_SAMPLE_FORMAT_S24_4BE
	case "s32_le", "S32_LE":
		return BF_SAMPLE_FORMAT_S32_LE
	case "s32_be", "S32_BE":
		return BF_SAMPLE_FORMAT_S32_BE
	case "float_le", "FLOAT_LE":
		return BF_SAMPLE_FORMAT_FLOAT_LE
	case "float_be", "FLOAT_BE":
		return BF_SAMPLE_FORMAT_FLOAT_BE
	case "float64_le", "FLOAT64_LE":
		return BF_SAMPLE_FORMAT_FLOAT64_LE
	case "float64_be", "FLOAT64_BE":
		return BF_SAMPLE_FORMAT_FLOAT64_BE
	}
	return BF_SAMPLE_FORMAT_AUTO
}
