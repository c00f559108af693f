package brutefir

/*------------------------------------------------------------------
 *
 * Purpose:	Diagnostics output.
 *
 *		A lightweight reimplementation of the original pinfo.h
 *		on top of charmbracelet/log.  Progress lines go through
 *		pinfo(), debug chatter through pdebug() (only shown when
 *		the debug flag is on), failures through perror().
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

var bf_logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: false,
})

var bf_debug bool

func pinfo_set_debug(debug bool) {
	bf_debug = debug
	if debug {
		bf_logger.SetLevel(log.DebugLevel)
	} else {
		bf_logger.SetLevel(log.InfoLevel)
	}
}

func pinfo(format string, a ...any) {
	bf_logger.Info(strings.TrimRight(fmt.Sprintf(format, a...), "\n"))
}

func pdebug(format string, a ...any) {
	if !bf_debug {
		return
	}
	bf_logger.Debug(strings.TrimRight(fmt.Sprintf(format, a...), "\n"))
}

func perror(format string, a ...any) {
	bf_logger.Error(strings.TrimRight(fmt.Sprintf(format, a...), "\n"))
}
