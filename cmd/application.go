package cmd

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/ajanusdev/pcapmath/capture"
	"github.com/ajanusdev/pcapmath/config"
	"github.com/ajanusdev/pcapmath/loadingBar"
	"github.com/ajanusdev/pcapmath/setAlgebra"
	"github.com/ajanusdev/pcapmath/summary"
	"github.com/ajanusdev/pcapmath/writer"
	"github.com/sirupsen/logrus"
)

// summaryTop is the number of frames printed per result by --summary if --top isn't set.
const summaryTop = 10

// application is one run of pcapmath.
//
//	cfg		*config.Config	- the configuration of the run
//	logger	*logrus.Logger	- the logger to report to
//	out		io.Writer		- the output for overviews and summaries
//	errOut	io.Writer		- the output for loading bars
type application struct {
	cfg    *config.Config
	logger *logrus.Logger
	out    io.Writer
	errOut io.Writer
}

// run reads the captures, computes the selected operations and writes the outputs.
// Every operation is validated before any output is written.
func (app *application) run(args []string) error {
	paths, err := capture.ExpandPaths(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no capture files found")
	}

	captures, err := app.readCaptures(paths)
	if err != nil {
		return err
	}

	operations := app.cfg.SelectedOperations()
	if len(operations) == 0 {
		return summary.WriteOverview(app.out, summary.Overview(captures))
	}

	results, skipped, err := app.compute(captures, operations)
	if err != nil {
		return err
	}

	for _, format := range app.cfg.CaptureFormats() {
		if err := app.writeCaptures(results, format); err != nil {
			return err
		}
	}
	if err := app.writeReports(results); err != nil {
		return err
	}
	if app.cfg.Summary {
		return app.printSummary(results, captures, skipped)
	}
	return nil
}

// readCaptures is a private function to parse the capture files in parallel.
func (app *application) readCaptures(paths []string) (captures []*capture.Capture, err error) {
	err = app.withLoadingBar("reading", len(paths), func(statusChan chan int) error {
		defer close(statusChan)
		captures, err = capture.ReadFiles(paths, app.cfg.Workers, statusChan)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, input := range captures {
		app.logger.WithFields(logrus.Fields{
			"input":    input.Name,
			"format":   input.Format.String(),
			"linkType": input.LinkType.String(),
			"frames":   input.Len(),
		}).Debug("read capture")
	}
	return captures, nil
}

// compute is a private function to run the set operations, the loading bar shows the indexing.
//
// Returns:
//	[]*setAlgebra.OperationResult	- the results of the operations
//	[]int							- the number of frames per capture left out because they couldn't be keyed
//	error							- the validation or indexing error, nil if no error occurred
func (app *application) compute(
	captures []*capture.Capture,
	operations []setAlgebra.Operation,
) (results []*setAlgebra.OperationResult, skipped []int, err error) {
	engine := setAlgebra.NewEngine(captures, setAlgebra.Options{
		Canonical:         app.cfg.CanonicalOptions(),
		Workers:           app.cfg.Workers,
		FailOnUnsupported: app.cfg.FailUnsupported,
	}, app.logger)

	err = app.withLoadingBar("indexing", engine.GetCapacityForStatusUpdateChan(), func(statusChan chan int) error {
		// the engine closes the channel when the indexing is done
		if err := engine.RegisterForStatusUpdate(statusChan); err != nil {
			return err
		}
		results, err = engine.Run(operations...)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return results, engine.Skipped(), nil
}

// writeCaptures is a private function to write every result as a capture file of the given format.
func (app *application) writeCaptures(results []*setAlgebra.OperationResult, format capture.Format) error {
	return app.withLoadingBar("writing "+format.String(), len(results), func(statusChan chan int) error {
		defer close(statusChan)

		written, err := writer.WriteAll(results, writer.Options{
			Directory:    app.cfg.OutDir,
			Format:       format,
			ExcludeEmpty: app.cfg.ExcludeEmpty,
			Overwrite:    app.cfg.Overwrite,
			Workers:      app.cfg.Workers,
		}, app.logger, statusChan)
		if err != nil {
			return err
		}

		for _, file := range written {
			app.logger.WithFields(logrus.Fields{
				"path":   file.Path,
				"frames": file.Frames,
				"bytes":  file.Bytes,
			}).Info("wrote result")
		}
		return nil
	})
}

// writeReports is a private function to write the text, YAML and CBOR outputs of every result.
func (app *application) writeReports(results []*setAlgebra.OperationResult) error {
	mode := app.cfg.SummaryCountMode()

	for _, result := range results {
		if result.Len() == 0 && app.cfg.ExcludeEmpty {
			continue
		}

		if app.cfg.HasOutput(config.OutputText) {
			items := summary.TopK(result, app.cfg.Top, mode)
			if err := app.writeReport(result, config.OutputText, func(w io.Writer) error {
				return summary.WriteText(w, items)
			}); err != nil {
				return err
			}
		}

		report := summary.NewReport(result, app.cfg.Top, mode)
		if app.cfg.HasOutput(config.OutputYAML) {
			if err := app.writeReport(result, config.OutputYAML, func(w io.Writer) error {
				return summary.WriteYAML(w, report)
			}); err != nil {
				return err
			}
		}
		if app.cfg.HasOutput(config.OutputCBOR) {
			if err := app.writeReport(result, config.OutputCBOR, func(w io.Writer) error {
				return summary.WriteCBOR(w, report)
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeReport is a private function to create the report file of a result with the given extension.
func (app *application) writeReport(result *setAlgebra.OperationResult, extension string, write func(w io.Writer) error) error {
	path := filepath.Join(app.cfg.OutDir, result.Name()+"."+extension)

	if err := writer.WriteFile(path, app.cfg.Overwrite, write); err != nil {
		return err
	}

	app.logger.WithField("path", path).Info("wrote report")
	return nil
}

// printSummary is a private function to print the most frequent frames of every result
// followed by the captures whose frames were partly left out.
func (app *application) printSummary(results []*setAlgebra.OperationResult, captures []*capture.Capture, skipped []int) error {
	top := app.cfg.Top
	if top == 0 {
		top = summaryTop
	}

	for i, result := range results {
		if i > 0 {
			fmt.Fprintln(app.out)
		}
		fmt.Fprintf(app.out, "== %s: %d frames ==\n", result.Name(), result.Len())
		if err := summary.WriteText(app.out, summary.TopK(result, top, app.cfg.SummaryCountMode())); err != nil {
			return err
		}
	}

	for input, count := range skipped {
		if count > 0 {
			fmt.Fprintf(app.out, "skipped %d of %d frames of %s without an IPv4 header\n",
				count, captures[input].Len(), captures[input].Name)
		}
	}
	return nil
}

// withLoadingBar is a private function to run a phase of the program with a loading bar.
// The phase gets the status channel of the bar, the loading bar is only drawn on a terminal.
//
// Takes:
//	label		string						- the name of the phase
//	capacity	int							- the status at which the phase is done
//	phase		func(statusChan chan int) error	- the phase, reports to and closes the status channel
func (app *application) withLoadingBar(label string, capacity int, phase func(statusChan chan int) error) error {
	bar := loadingBar.InitLoadingBar(label, app.errOut, capacity)
	bar.RunLoadingBar()

	statusChan, err := bar.GetStatusChanWithCapacity(capacity)
	if err != nil {
		bar.StopLoadingBar()
		return err
	}

	if err := phase(statusChan); err != nil {
		bar.StopLoadingBar()
		return err
	}

	bar.Wait()
	bar.StopLoadingBar()
	return nil
}
