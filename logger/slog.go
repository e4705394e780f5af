package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/phsym/console-slog"
)

// EnvLogFormat selects the output format when a logger is built with FormatAuto.
const EnvLogFormat = "PTU_LOG_FORMAT"

// Format selects the slog handler used by a SlogLogger.
type Format int

const (
	// FormatAuto resolves to FormatJSON when PTU_LOG_FORMAT is "json", FormatConsole otherwise.
	FormatAuto Format = iota
	// FormatConsole writes human readable lines through console-slog.
	FormatConsole
	// FormatJSON writes one JSON object per record.
	FormatJSON
)

// ParseFormat converts "json", "console" or "auto" into a Format.
func ParseFormat(name string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return FormatAuto, true
	case "console", "text":
		return FormatConsole, true
	case "json":
		return FormatJSON, true
	default:
		return FormatAuto, false
	}
}

// Option configures a logger built by New.
type Option func(*options)

type options struct {
	level     Level
	format    Format
	addSource bool
	noColor   bool
}

// WithLevel sets the minimum enabled level.
func WithLevel(level Level) Option {
	return func(o *options) { o.level = level }
}

// WithFormat sets the output format.
func WithFormat(format Format) Option {
	return func(o *options) { o.format = format }
}

// WithSource adds the caller's source position to every record.
func WithSource(enabled bool) Option {
	return func(o *options) { o.addSource = enabled }
}

// WithNoColor disables ANSI colors in console output. Use it for file sinks.
func WithNoColor(noColor bool) Option {
	return func(o *options) { o.noColor = noColor }
}

// SlogLogger is a Logger backed by log/slog.
type SlogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

var _ Logger = (*SlogLogger)(nil)

// New creates a slog based Logger writing to w.
//
// Each probing session is expected to own its logger; the returned value holds
// no global state and may be discarded with the session.
func New(w io.Writer, opts ...Option) Logger {
	o := options{level: InfoLevel, format: FormatAuto}
	for _, opt := range opts {
		opt(&o)
	}

	if w == nil {
		w = os.Stdout
	}

	inst := &SlogLogger{level: &slog.LevelVar{}}
	inst.level.Set(toSlogLevel(o.level))

	format := o.format
	if format == FormatAuto {
		if f, ok := ParseFormat(os.Getenv(EnvLogFormat)); ok && f != FormatAuto {
			format = f
		} else {
			format = FormatConsole
		}
	}

	var handler slog.Handler
	if format == FormatConsole {
		handler = console.NewHandler(w, &console.HandlerOptions{
			AddSource: o.addSource,
			Level:     inst.level,
			NoColor:   o.noColor,
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			AddSource: o.addSource,
			Level:     inst.level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					a.Key = "ts"
				}
				return a
			},
		})
	}
	inst.logger = slog.New(handler)

	return inst
}

func (l *SlogLogger) Debug(msg string, keysAndValues ...any) {
	l.log(context.Background(), slog.LevelDebug, msg, keysAndValues...)
}

func (l *SlogLogger) Info(msg string, keysAndValues ...any) {
	l.log(context.Background(), slog.LevelInfo, msg, keysAndValues...)
}

func (l *SlogLogger) Warn(msg string, keysAndValues ...any) {
	l.log(context.Background(), slog.LevelWarn, msg, keysAndValues...)
}

func (l *SlogLogger) Error(msg string, keysAndValues ...any) {
	l.log(context.Background(), slog.LevelError, msg, keysAndValues...)
}

func (l *SlogLogger) Fatal(msg string, keysAndValues ...any) {
	l.log(context.Background(), slog.LevelError, msg, keysAndValues...)
	os.Exit(1)
}

// With returns a child logger sharing the parent's level.
func (l *SlogLogger) With(keyValues ...any) Logger {
	return &SlogLogger{
		logger: l.logger.With(keyValues...),
		level:  l.level,
	}
}

func (l *SlogLogger) Level() Level {
	switch l.level.Level() {
	case slog.LevelDebug:
		return DebugLevel
	case slog.LevelInfo:
		return InfoLevel
	case slog.LevelWarn:
		return WarnLevel
	default:
		return ErrorLevel
	}
}

func (l *SlogLogger) SetLevel(level Level) {
	l.level.Set(toSlogLevel(level))
}

// log is the low-level logging method for methods that take ...any.
// It must always be called directly by an exported logging method
// or function, because it uses a fixed call depth to obtain the pc.
func (l *SlogLogger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if !l.logger.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	// skip [runtime.Callers, this function, this function's caller]
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.logger.Handler().Handle(ctx, r)
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case InfoLevel:
		return slog.LevelInfo
	case WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
