// Package cmd provides the pcapmath command line interface.
package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/ajanusdev/pcapmath/config"
	"github.com/ajanusdev/pcapmath/logging"
	"github.com/spf13/cobra"
)

// NewRootCommand creates the pcapmath command.
func NewRootCommand() *cobra.Command {
	var configPath string
	var licenses bool

	root := &cobra.Command{
		Use:   "pcapmath [flags] <file|dir>...",
		Short: "Set operations over the frames of packet captures",
		Long: `pcapmath compares packet captures frame by frame and writes the union, intersection,
differences and time bounded intersections of their frames as new captures.

Directories are expanded to the .pcap, .pcapng and .cap files they contain.
Without an operation an overview of the captures is printed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// handle licenses flag
			if licenses {
				return showLicenses(cmd.OutOrStdout())
			}
			if len(args) == 0 {
				return errors.New("at least one capture file or directory is required")
			}

			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}

			logger, closer, err := logging.New(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer.Close()

			app := &application{
				cfg:    cfg,
				logger: logger,
				out:    cmd.OutOrStdout(),
				errOut: cmd.ErrOrStderr(),
			}
			if !cfg.Progress {
				app.errOut = io.Discard
			}
			return app.run(args)
		},
	}

	flags := root.Flags()

	// operations
	flags.BoolP("union", "u", false, "write the frames of all captures")
	flags.BoolP("intersect", "i", false, "write the frames present in every capture")
	flags.BoolP("difference", "d", false, "write the frames of the first capture missing from all others")
	flags.BoolP("symmetric-difference", "s", false, "write the frames of each capture missing from all others")
	flags.BoolP("bounded-intersect", "b", false, "write the frames of each capture seen while all captures overlapped")
	flags.BoolP("inverse-bounded", "e", false, "write the bounded frames of each capture that aren't in every capture")

	// canonicalization and output
	flags.BoolP("strip-l2", "2", false, "compare frames without their link layer header")
	flags.BoolP("strip-l3", "3", false, "compare frames without their link layer header and with a neutral IPv4 header")
	flags.Bool("fail-unsupported", false, "with --strip-l3, fail on frames without an IPv4 header instead of skipping them")
	flags.BoolP("exclude-empty", "x", false, "don't write results without frames")
	flags.StringSliceP("output", "o", []string{"pcapng"}, "output formats: pcap, pcapng, txt, yaml, cbor")
	flags.String("out-dir", ".", "the directory to write the outputs to")
	flags.Bool("overwrite", false, "replace existing output files")
	flags.Int("top", 0, "the number of most frequent frames in text and report outputs, all if 0")
	flags.String("count-mode", "presence", "what makes a frame frequent: presence (captures) or occurrences (frames)")
	flags.Bool("summary", false, "print the most frequent frames of each result")
	flags.Int("workers", 0, "the maximum number of files handled in parallel, no limit if 0")
	flags.Bool("progress", true, "show loading bars on a terminal")

	// logging and configuration
	flags.BoolP("verbose", "v", false, "log debug messages")
	flags.String("log-level", "info", "the log level: debug, info, warn or error")
	flags.String("log-format", "text", "the log format: text or json")
	flags.String("log-file", "", "also log to this file, rotated")
	flags.StringVar(&configPath, "config", "", "a YAML config file")
	flags.BoolVar(&licenses, "show-licenses", false, "show the used FOSS licenses")

	return root
}

// Execute runs the pcapmath command with the arguments of the process.
func Execute() error {
	return NewRootCommand().Execute()
}

// showLicenses prints the licenses of the modules compiled into pcapmath.
func showLicenses(out io.Writer) error {
	for _, license := range usedLicenses {
		if _, err := fmt.Fprintf(out, "%s\t%s\n", license.module, license.license); err != nil {
			return err
		}
	}
	return nil
}
