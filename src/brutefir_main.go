package brutefir

/*------------------------------------------------------------------
 *
 * Purpose:	Main program for the convolution engine.
 *
 *		Loads the configuration, brings up the digital audio
 *		interface and the filter stage, and runs until the input
 *		streams end or a signal arrives.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/pflag"
)

func dump_layout() {
	for io := 0; io < 2; io++ {
		var direction = "input"
		if io == OUT {
			direction = "output"
		}
		var format = dai_buffer_format[io]
		fmt.Printf("%s buffer: %d channels, %d frames, %d bytes per slot\n",
			direction, format.n_channels, format.n_samples, format.n_bytes)
		for ch := 0; ch < bfconf.n_physical_channels[io]; ch++ {
			var bf = &format.bf[ch]
			fmt.Printf("  channel %d: offset %d, spacing %d, format %s\n",
				ch, bf.byte_offset, bf.sample_spacing, bf_sampleformat_name(bf.sf.format))
		}
	}
}

func BrutefirMain() {
	runtime.LockOSThread()

	var debug = pflag.BoolP("debug", "d", false, "Enable debug output.")
	var pipesems = pflag.BoolP("pipe-sems", "F", false, "Use pipe-based semaphores and shared-mapping buffers.")
	var dumplayout = pflag.Bool("dump-layout", false, "Print the computed buffer layout and exit.")
	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - multi-channel convolution engine\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] CONFIG\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}
	if len(pflag.Args()) != 1 {
		fmt.Fprintf(os.Stderr, "Exactly one argument required (CONFIG) - got %s\n", pflag.Args())
		os.Exit(BF_EXIT_INVALID_CONFIG)
	}

	if err := bfconf_load(pflag.Arg(0)); err != nil {
		perror("%v", err)
		os.Exit(BF_EXIT_INVALID_CONFIG)
	}
	if *debug {
		bfconf.debug = true
		pinfo_set_debug(true)
	}
	if *pipesems {
		bf_set_pipe_mode(true)
	}

	if *dumplayout {
		/* bring up the I/O layer far enough to compute the layout */
		var buffers [2][2][]byte
		if !dai_init(bfconf.filter_length, bfconf.sample_rate, bfconf.n_subdevs, bfconf.subdevs, &buffers) {
			os.Exit(BF_EXIT_INVALID_CONFIG)
		}
		dump_layout()
		os.Exit(BF_EXIT_OK)
	}

	if !bfrun() {
		os.Exit(BF_EXIT_INVALID_CONFIG)
	}

	var sigchan = make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	var sig = <-sigchan
	pinfo("Received %v, shutting down.", sig)
	dai_die()
	os.Exit(BF_EXIT_OK)
}
