// Package logging builds the logrus logger of a pcapmath run from its configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ajanusdev/pcapmath/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates a logger writing to the console and, if enabled, to a rotating log file.
//
// Takes:
//	cfg		config.LogConfig	- the logging settings
//	console	io.Writer			- the console output, os.Stderr if nil
//
// Returns:
//	*logrus.Logger	- the configured logger
//	io.Closer		- closes the log file, a no-op without a log file
//	error			- the error if a setting is invalid
func New(cfg config.LogConfig, console io.Writer) (*logrus.Logger, io.Closer, error) {
	if console == nil {
		console = os.Stderr
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, nil, fmt.Errorf("unsupported log format: %s (must be json or text)", cfg.Format)
	}

	var closer io.Closer = nopCloser{}
	writers := []io.Writer{console}

	// File output
	if cfg.File.Enabled {
		if cfg.File.Path == "" {
			return nil, nil, fmt.Errorf("file output requires a path")
		}
		file := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,  // megabytes
			MaxBackups: cfg.File.MaxBackups, // number of backups
			MaxAge:     cfg.File.MaxAgeDays, // days
			Compress:   cfg.File.Compress,   // compress the backups
		}
		writers = append(writers, file)
		closer = file
	}

	logger.SetOutput(io.MultiWriter(writers...))

	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
