// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logger configures structured logging for the receiver.
//
// There are two targets: "core" for the upload pipeline and its host,
// and "http" for request tracing. Their levels are set independently
// with a filter such as "core=debug,http=info", or a bare level for both.
package logger // import "blitznote.com/src/sendfile/logger"

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Targets which can be named in a filter.
const (
	TargetCore = "core"
	TargetHTTP = "http"
)

// DefaultFilter applies if none has been configured.
const DefaultFilter = "core=debug,http=debug"

// Options for Init. The zero value logs text to stderr using DefaultFilter.
type Options struct {
	Filter    string // "debug", or "core=debug,http=info"
	Format    string // "text" (default) or "json"
	Output    string // "stderr" (default), "stdout", or "file"
	FilePath  string // used with Output "file"
	AddSource bool
}

var (
	mu        sync.RWMutex
	core      *slog.Logger
	httpLog   *slog.Logger
	closer    io.Closer
	coreLevel = new(slog.LevelVar)
	httpLevel = new(slog.LevelVar)
)

func init() {
	_ = Init(Options{})
}

// Init (re)configures both targets. On error the previous configuration stays in place.
func Init(opts Options) error {
	filter := opts.Filter
	if filter == "" {
		filter = DefaultFilter
	}
	levels, err := ParseFilter(filter)
	if err != nil {
		return err
	}

	var (
		w io.Writer
		c io.Closer
	)
	switch strings.ToLower(opts.Output) {
	case "", "stderr", "console":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	case "file":
		if opts.FilePath == "" {
			return errors.New("logger: output 'file' needs a file path")
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return errors.Wrap(err, "logger: open log file")
		}
		w, c = f, f
	default:
		return errors.Errorf("logger: unknown output %q", opts.Output)
	}

	newHandler := func(level slog.Leveler) (slog.Handler, error) {
		ho := &slog.HandlerOptions{Level: level, AddSource: opts.AddSource}
		switch strings.ToLower(opts.Format) {
		case "", "text":
			return slog.NewTextHandler(w, ho), nil
		case "json":
			return slog.NewJSONHandler(w, ho), nil
		}
		return nil, errors.Errorf("logger: unknown format %q", opts.Format)
	}
	coreHandler, err := newHandler(coreLevel)
	if err != nil {
		if c != nil {
			c.Close()
		}
		return err
	}
	httpHandler, _ := newHandler(httpLevel)

	mu.Lock()
	defer mu.Unlock()
	coreLevel.Set(levels.Level(TargetCore))
	httpLevel.Set(levels.Level(TargetHTTP))
	core = slog.New(coreHandler).With("target", TargetCore)
	httpLog = slog.New(httpHandler).With("target", TargetHTTP)
	if closer != nil {
		closer.Close()
	}
	closer = c
	return nil
}

// SetLevel changes the level of one target, or of all if 'target' is empty.
func SetLevel(target, level string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}
	switch target {
	case "":
		coreLevel.Set(l)
		httpLevel.Set(l)
	case TargetCore:
		coreLevel.Set(l)
	case TargetHTTP:
		httpLevel.Set(l)
	default:
		return errors.Errorf("logger: unknown target %q", target)
	}
	return nil
}

// Core is the logger of the upload pipeline.
func Core() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return core
}

// HTTP is the logger for request tracing.
func HTTP() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return httpLog
}

func Debug(msg string, args ...any) { Core().Debug(msg, args...) }
func Info(msg string, args ...any)  { Core().Info(msg, args...) }
func Warn(msg string, args ...any)  { Core().Warn(msg, args...) }
func Error(msg string, args ...any) { Core().Error(msg, args...) }
