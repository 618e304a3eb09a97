package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Console is the logging surface a test script writes to.
type Console interface {
	Log(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Debug(args ...any)
}

// interceptor forwards every call to the original console, then records it.
type interceptor struct {
	native Console
	sink   *Buffers
}

// Install wraps native so that each call is forwarded unchanged and then
// appended to sink. Install is meant to run once per page; installing twice
// over the same sink records every line twice.
func Install(native Console, sink *Buffers) Console {
	return &interceptor{native: native, sink: sink}
}

func (c *interceptor) Log(args ...any) {
	c.native.Log(args...)
	c.sink.Append(LOG, Format(args...))
}

func (c *interceptor) Warn(args ...any) {
	c.native.Warn(args...)
	c.sink.Append(WRN, Format(args...))
}

func (c *interceptor) Error(args ...any) {
	c.native.Error(args...)
	c.sink.Append(ERR, Format(args...))
}

func (c *interceptor) Debug(args ...any) {
	c.native.Debug(args...)
	c.sink.Append(DBG, Format(args...))
}

// Format renders args the way a console line is captured: each argument
// stringified, joined with a single space.
// An argument whose String method panics renders as a placeholder.
func Format(args ...any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = Stringify(a)
	}
	return strings.Join(parts, " ")
}

// Stringify converts a single argument to text, never panicking.
func Stringify(a any) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("[unprintable %T]", a)
		}
	}()
	switch v := a.(type) {
	case nil:
		return "null"
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	default:
		return fmt.Sprint(v)
	}
}

// slogConsole is the native console of a Go process: it writes to a logger.
type slogConsole struct {
	logger *slog.Logger
}

// NewSlogConsole returns a Console that writes each call to logger at the
// matching level. A nil logger discards output.
func NewSlogConsole(logger *slog.Logger) Console {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &slogConsole{logger: logger}
}

func (c *slogConsole) emit(level slog.Level, args []any) {
	c.logger.Log(context.Background(), level, "console", "line", Format(args...))
}

func (c *slogConsole) Log(args ...any)   { c.emit(slog.LevelInfo, args) }
func (c *slogConsole) Warn(args ...any)  { c.emit(slog.LevelWarn, args) }
func (c *slogConsole) Error(args ...any) { c.emit(slog.LevelError, args) }
func (c *slogConsole) Debug(args ...any) { c.emit(slog.LevelDebug, args) }
