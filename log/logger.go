package log

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Logger is the minimal logging surface embedded by asynctools helpers.
// It is intentionally small so that callers can supply their own
// implementation; New adapts a zerolog.Logger.
type Logger interface {
	// DLogf writes a debug-level trace message.
	DLogf(format string, args ...interface{})

	// ELogf writes an error-level message.
	ELogf(format string, args ...interface{})

	// Errorf creates an error from a format string, logs it at error
	// level, and returns it.
	Errorf(format string, args ...interface{}) error

	// Panic logs the arguments at panic level and panics.
	Panic(args ...interface{})
}

type zlLogger struct {
	zl zerolog.Logger
}

// New adapts a zerolog.Logger to the Logger interface.
func New(zl zerolog.Logger) Logger {
	return &zlLogger{zl: zl}
}

// Component returns a Logger annotated with the given component name,
// derived from the base logger.
func Component(component string) Logger {
	return New(WithComponent(component))
}

// Nop returns a Logger that discards everything. Panic still panics.
func Nop() Logger {
	return New(zerolog.Nop())
}

func (l *zlLogger) DLogf(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *zlLogger) ELogf(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}

func (l *zlLogger) Errorf(format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	l.zl.Error().Msg(err.Error())
	return err
}

func (l *zlLogger) Panic(args ...interface{}) {
	msg := fmt.Sprint(args...)
	l.zl.Panic().Msg(msg)
	panic(msg)
}
