package log

import (
	"github.com/kataras/golog"
)

// GologLogger adapts a *golog.Logger to Logger. Filtering is done by golog
// using its Level field.
type GologLogger struct {
	g *golog.Logger
}

var _ Logger = (*GologLogger)(nil)

func (l *GologLogger) Debug(format string, v ...any) { l.g.Debugf(format, v...) }
func (l *GologLogger) Info(format string, v ...any)  { l.g.Infof(format, v...) }
func (l *GologLogger) Warn(format string, v ...any)  { l.g.Warnf(format, v...) }
func (l *GologLogger) Error(format string, v ...any) { l.g.Errorf(format, v...) }

// Named returns a child logger whose prefix ends with name.
func (l *GologLogger) Named(name string) Logger {
	return &GologLogger{g: l.g.Child(name)}
}
