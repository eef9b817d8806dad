// Package writer turns operation results into capture files.
package writer

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/ajanusdev/pcapmath/capture"
	"github.com/ajanusdev/pcapmath/setAlgebra"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyResultSkipped is returned instead of writing a result without frames if empty results are excluded.
// It isn't a failure, check for it with errors.Is.
var ErrEmptyResultSkipped = errors.New("empty result skipped")

// Options configures how results are written.
//
//	Directory		string			- the directory the files are created in, the working directory if empty
//	Format			capture.Format	- the layout of the files
//	ExcludeEmpty	bool			- don't write results without frames
//	Overwrite		bool			- replace existing files instead of failing
//	Workers			int				- the maximum number of files written in parallel by WriteAll,
//									  no limit if below 1
type Options struct {
	Directory    string
	Format       capture.Format
	ExcludeEmpty bool
	Overwrite    bool
	Workers      int
}

// Written describes a file created for a result.
//
//	Result	*setAlgebra.OperationResult	- the result the file was created for
//	Path	string						- the path of the file
//	Frames	int							- the number of frames in the file
//	Bytes	int							- the size of the file
type Written struct {
	Result *setAlgebra.OperationResult
	Path   string
	Frames int
	Bytes  int
}

// Path returns the path of the file a result is written to.
func Path(result *setAlgebra.OperationResult, options Options) string {
	return filepath.Join(options.Directory, result.Name()+options.Format.Extension())
}

// Write serializes a result in ascending timestamp order and writes it to a new file.
// The file is created exclusively, an existing file is an error unless Overwrite is set.
//
// Takes:
//	result	*setAlgebra.OperationResult	- the result to write
//	options	Options						- the options of the writer
//
// Returns:
//	*Written	- the description of the file, nil if no file was written
//	error		- ErrEmptyResultSkipped if the result was left out, the serialization or I/O error otherwise
func Write(result *setAlgebra.OperationResult, options Options) (*Written, error) {
	if result.Len() == 0 && options.ExcludeEmpty {
		return nil, ErrEmptyResultSkipped
	}

	data, err := capture.Serialize(result.Frames(), result.LinkType(), options.Format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", result.Name(), err)
	}

	path := Path(result, options)
	if err := WriteFile(path, options.Overwrite, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return nil, err
	}

	return &Written{Result: result, Path: path, Frames: result.Len(), Bytes: len(data)}, nil
}

// WriteFile creates a new file and fills it with write.
// If write or closing the file fails the file is removed again, a later run finds no partial file.
//
// Takes:
//	path		string						- the path of the file
//	overwrite	bool						- remove an existing file instead of failing with fs.ErrExist
//	write		func(w io.Writer) error		- writes the contents of the file
//
// Returns:
//	error	- the creation error, or the error of write wrapped with the path, nil if the file was written
func WriteFile(path string, overwrite bool, write func(w io.Writer) error) error {
	file, err := createFile(path, overwrite)
	if err != nil {
		return err
	}

	err = write(file)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// createFile creates a new file for writing, an existing file is an error wrapping fs.ErrExist
// unless overwrite is set, then it is removed first.
func createFile(path string, overwrite bool) (*os.File, error) {
	if overwrite {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}

// WriteAll writes the results in parallel.
//
// Takes:
//	results		[]*setAlgebra.OperationResult	- the results to write
//	options		Options							- the options of the writer
//	logger		logrus.FieldLogger				- the logger to report to
//	statusChan	chan<- int						- receives the number of handled results after each result,
//												  may be nil, must be able to buffer len(results) values
//
// Returns:
//	[]*Written	- the written files in the order of the results, skipped empty results are left out
//	error		- the first error that occurred, nil if every result was handled
func WriteAll(
	results []*setAlgebra.OperationResult,
	options Options,
	logger logrus.FieldLogger,
	statusChan chan<- int,
) ([]*Written, error) {
	written := make([]*Written, len(results))

	group := errgroup.Group{}
	if options.Workers > 0 {
		group.SetLimit(options.Workers)
	}

	var handled atomic.Int64
	for i, result := range results {
		group.Go(func() error {
			file, err := Write(result, options)
			if statusChan != nil {
				defer func() { statusChan <- int(handled.Add(1)) }()
			}

			switch {
			case errors.Is(err, ErrEmptyResultSkipped):
				logger.WithField("result", result.Name()).Info("skipped empty result")
				return nil
			case err != nil:
				return err
			}

			written[i] = file
			logger.WithFields(logrus.Fields{
				"path":   file.Path,
				"frames": file.Frames,
			}).Debug("wrote result")
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	files := make([]*Written, 0, len(written))
	for _, file := range written {
		if file != nil {
			files = append(files, file)
		}
	}
	return files, nil
}
