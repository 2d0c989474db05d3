// Package logging builds the run logger. Every transfer run logs to the
// console and to a timestamped file named after the container/bucket pair so
// separate runs never clobber each other's logs.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options controls logger construction.
type Options struct {
	Container string
	Bucket    string
	Level     string // zerolog level name, defaults to info
	NoFile    bool   // console only, used by tests and dry runs
}

// New returns a logger writing to stdout (console format) and, unless
// disabled, to "<timestamp>_<container>_to_<bucket>.log" in the working
// directory. The file handle is returned so the caller can close it when the
// run finishes.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}

	if opts.NoFile {
		logger := zerolog.New(console).Level(level).With().Timestamp().Logger()
		return logger, nopCloser{}, nil
	}

	name := fmt.Sprintf("%s_%s_to_%s.log",
		time.Now().Format("2006-01-02_15-04-05"), opts.Container, opts.Bucket)

	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("failed to open log file %s: %w", name, err)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(console, file)).
		Level(level).
		With().
		Timestamp().
		Logger()

	return logger, file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
