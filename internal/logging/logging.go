// Package logging provides a zerolog wrapper with defaults for the tracking CLI
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// Options configures the logger
type Options struct {
	Level        string
	Format       string
	Component    string
	Writer       io.Writer
	WithCaller   bool
	StaticFields map[string]string
}

// DefaultOptions returns console logging at info level to stderr
func DefaultOptions() Options {
	return Options{
		Level:  "info",
		Format: "console",
	}
}

var (
	once   sync.Once
	root   atomic.Pointer[zerolog.Logger]
	inited atomic.Bool
)

// Logger is the project-wide logging type
type Logger = zerolog.Logger

// New builds a logger from options without touching the process-wide root
func New(opt Options) Logger {
	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	if strings.ToLower(opt.Format) == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: opt.Writer != nil}
	}

	ctx := zerolog.New(w).Level(ParseLevel(opt.Level)).With().Timestamp()
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		ctx = ctx.Str("go_version", bi.GoVersion)
	}
	if opt.Component != "" {
		ctx = ctx.Str("component", opt.Component)
	}
	for k, v := range opt.StaticFields {
		ctx = ctx.Str(k, v)
	}

	log := ctx.Logger()
	if opt.WithCaller {
		log = log.With().Caller().Logger()
	}
	return log
}

// Init configures zerolog globals and builds the root logger, safe to call once
func Init(opt Options) {
	once.Do(func() {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
		zerolog.TimeFieldFormat = time.RFC3339Nano

		log := New(opt)
		root.Store(&log)
		inited.Store(true)
	})
}

// Get returns the process-wide root logger
func Get() *Logger {
	if !inited.Load() {
		Init(DefaultOptions())
	}
	return root.Load()
}

// Named returns a child logger with a component field
func Named(component string) Logger {
	if component == "" {
		return *Get()
	}
	return Get().With().Str("component", component).Logger()
}

// ParseLevel supports string-only levels. Unknown values fall back to info
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
