// Package zlog adapts restic's global, tag-filtered debug logger
// (internal/debug) into an explicit, caller-supplied sink, per the source's
// own design note: replace the process-global reporter function pointer
// with a logger threaded through construction.
package zlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is a component-tagged leveled logger. The zero value discards all
// output, so tests never need to wire one up explicitly.
type Logger struct {
	zl   zerolog.Logger
	init bool
}

// New builds a Logger that writes to w. Passing nil defaults to os.Stderr;
// pass io.Discard to silence it entirely.
func New(w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	return Logger{zl: zerolog.New(w).With().Timestamp().Logger(), init: true}
}

// With returns a Logger tagged with component, the way restic's debug
// output is tagged by file/function.
func (l Logger) With(component string) Logger {
	if !l.init {
		l = New(io.Discard)
	}
	return Logger{zl: l.zl.With().Str("component", component).Logger(), init: true}
}

func (l Logger) Debugf(format string, args ...interface{}) { l.ensure().zl.Debug().Msgf(format, args...) }

func (l Logger) Infof(format string, args ...interface{}) { l.ensure().zl.Info().Msgf(format, args...) }

func (l Logger) Warnf(format string, args ...interface{}) { l.ensure().zl.Warn().Msgf(format, args...) }

func (l Logger) Errorf(format string, args ...interface{}) { l.ensure().zl.Error().Msgf(format, args...) }

func (l Logger) ensure() Logger {
	if !l.init {
		return New(io.Discard)
	}
	return l
}
