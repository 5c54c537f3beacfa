// Package logger wraps zerolog with context-carried fields. Fields attached
// with WithField travel in the context, so downstream calls log them without
// threading a logger value around.
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gikundiro/fanpay-backend/pkg/env"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options configures a Logger. An empty Format falls back to
// FANPAY_LOG_FORMAT and then to json; a nil Output means stdout.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	WarnStack   bool
	Output      io.Writer
	Format      string
}

type Logger struct {
	root      zerolog.Logger
	warnStack bool
}

type entryKey struct{}

func New(opts Options) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	root := zerolog.New(sink(opts)).Level(level).With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger()
	return &Logger{root: root, warnStack: opts.WarnStack}
}

func sink(opts Options) io.Writer {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format = env.Get("FANPAY_LOG_FORMAT", FormatJSON)
	}
	if format == FormatConsole {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	return out
}

// ParseLevel reads a level name; anything unrecognised is info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) entry(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if e, ok := ctx.Value(entryKey{}).(*zerolog.Logger); ok {
			return e
		}
	}
	return &l.root
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.WithFields(ctx, map[string]any{key: value})
}

// WithFields returns a child context whose log lines carry fields. Values
// under sensitive keys are masked here, once.
func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	b := l.entry(ctx).With()
	for _, k := range keys {
		if sensitive(k) {
			b = b.Str(k, Mask(fields[k]))
		} else {
			b = b.Interface(k, fields[k])
		}
	}
	child := b.Logger()
	return context.WithValue(ctx, entryKey{}, &child)
}

func (l *Logger) WithRequestID(ctx context.Context, id string) context.Context {
	return l.WithField(ctx, "request_id", id)
}

func (l *Logger) WithUserID(ctx context.Context, id string) context.Context {
	return l.WithField(ctx, "user_id", id)
}

func (l *Logger) WithSmsID(ctx context.Context, id string) context.Context {
	return l.WithField(ctx, "sms_id", id)
}

func (l *Logger) WithPaymentID(ctx context.Context, id string) context.Context {
	return l.WithField(ctx, "payment_id", id)
}

func (l *Logger) Debug(ctx context.Context, msg string) { l.entry(ctx).Debug().Msg(msg) }

func (l *Logger) Info(ctx context.Context, msg string) { l.entry(ctx).Info().Msg(msg) }

func (l *Logger) Warn(ctx context.Context, msg string) {
	e := l.entry(ctx).Warn()
	if l.warnStack {
		e = e.Str("stack", stack())
	}
	e.Msg(msg)
}

// Error attaches err and, for coded errors, the code. A stack is added
// unless the code marks a caller mistake.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	e := l.entry(ctx).Error()
	trace := true
	if err != nil {
		e = e.Err(err)
		if coded := pkgerrors.As(err); coded != nil {
			e = e.Str("code", string(coded.Code()))
			trace = pkgerrors.MetadataFor(coded.Code()).Retryable
		}
	}
	if trace {
		e = e.Str("stack", stack())
	}
	e.Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
