package log

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kataras/golog"
)

// Level is a logging severity. Higher values are more verbose.
type Level = golog.Level

const (
	LevelNone  = golog.DisableLevel
	LevelError = golog.ErrorLevel
	LevelWarn  = golog.WarnLevel
	LevelInfo  = golog.InfoLevel
	LevelDebug = golog.DebugLevel
)

const prefix = "[canvas] "

// Logger is the leveled, printf-style logger used across the backend.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)

	// Named returns a logger whose lines are tagged with name.
	Named(name string) Logger
}

// ParseLevel maps a config value such as "debug" or "WARN" to a Level.
// "none" and "off" disable logging; unknown values fall back to LevelInfo.
func ParseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "none", "off":
		return LevelNone
	case "":
		return LevelInfo
	}
	if l := golog.ParseLevel(s); l != golog.DisableLevel || s == "disable" || s == "disabled" {
		return l
	}
	return LevelInfo
}

var std atomic.Pointer[loggerBox]

// loggerBox lets an interface value live in an atomic.Pointer.
type loggerBox struct{ Logger }

func init() {
	SetDefaultLogger(New(os.Stderr, LevelInfo))
}

// SetDefaultLogger replaces the package-level logger. A nil logger discards
// everything.
func SetDefaultLogger(l Logger) {
	if l == nil {
		l = Discard
	}
	std.Store(&loggerBox{l})
}

// DefaultLogger returns the package-level logger.
func DefaultLogger() Logger {
	return std.Load().Logger
}

// SetLogLevel installs a stderr logger at level.
func SetLogLevel(level Level) {
	SetDefaultLogger(New(os.Stderr, level))
}

// Named returns the package-level logger tagged with name.
func Named(name string) Logger {
	return DefaultLogger().Named(name)
}

func Debug(format string, v ...any) { DefaultLogger().Debug(format, v...) }
func Info(format string, v ...any)  { DefaultLogger().Info(format, v...) }
func Warn(format string, v ...any)  { DefaultLogger().Warn(format, v...) }
func Error(format string, v ...any) { DefaultLogger().Error(format, v...) }

// Discard drops every message.
var Discard Logger = discard{}

type discard struct{}

func (discard) Debug(string, ...any)  {}
func (discard) Info(string, ...any)   {}
func (discard) Warn(string, ...any)   {}
func (discard) Error(string, ...any)  {}
func (d discard) Named(string) Logger { return d }

// New returns a golog-backed logger writing to out.
func New(out io.Writer, level Level) *GologLogger {
	g := golog.New()
	g.SetPrefix(prefix)
	g.SetOutput(out)
	g.Level = level
	return &GologLogger{g: g}
}
