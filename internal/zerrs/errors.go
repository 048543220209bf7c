// Package zerrs defines the error categories used across the engine.
package zerrs

import (
	"fmt"

	"github.com/pkg/errors"
)

// category distinguishes the broad classes of failure callers need to tell apart.
type category int

const (
	categoryInvalidArgument category = iota
	categoryInvalidIndex
	categoryOverflow
	categoryNotYetImplemented
	categoryIoError
	categoryS3Error
	categoryInternalError
	categoryFatal
)

func (c category) String() string {
	switch c {
	case categoryInvalidArgument:
		return "InvalidArgument"
	case categoryInvalidIndex:
		return "InvalidIndex"
	case categoryOverflow:
		return "Overflow"
	case categoryNotYetImplemented:
		return "NotYetImplemented"
	case categoryIoError:
		return "IoError"
	case categoryS3Error:
		return "S3Error"
	case categoryFatal:
		return "Fatal"
	default:
		return "InternalError"
	}
}

// categorized wraps an underlying error with one of the categories above.
type categorized struct {
	cat category
	err error
}

func (e *categorized) Error() string { return fmt.Sprintf("%s: %s", e.cat, e.err) }
func (e *categorized) Unwrap() error { return e.err }

func wrap(cat category, err error) error {
	if err == nil {
		return nil
	}
	return &categorized{cat: cat, err: err}
}

func newf(cat category, format string, args ...interface{}) error {
	return &categorized{cat: cat, err: errors.Errorf(format, args...)}
}

// InvalidArgument reports malformed settings, dimensions, or codec parameters.
func InvalidArgument(format string, args ...interface{}) error {
	return newf(categoryInvalidArgument, format, args...)
}

// InvalidIndex reports a frame, chunk, or shard coordinate outside its valid range.
func InvalidIndex(format string, args ...interface{}) error {
	return newf(categoryInvalidIndex, format, args...)
}

// Overflow reports unsigned 64-bit arithmetic that would wrap.
func Overflow(format string, args ...interface{}) error {
	return newf(categoryOverflow, format, args...)
}

// NotYetImplemented reports a feature the engine deliberately does not support.
func NotYetImplemented(format string, args ...interface{}) error {
	return newf(categoryNotYetImplemented, format, args...)
}

// IoError wraps a filesystem failure.
func IoError(err error) error {
	return wrap(categoryIoError, errors.WithStack(err))
}

// IoErrorf wraps a filesystem failure with additional context.
func IoErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return wrap(categoryIoError, errors.Wrapf(err, format, args...))
}

// S3Error wraps an S3/object-store failure.
func S3Error(err error) error {
	return wrap(categoryS3Error, errors.WithStack(err))
}

// S3Errorf wraps an S3/object-store failure with additional context.
func S3Errorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return wrap(categoryS3Error, errors.Wrapf(err, format, args...))
}

// Internal wraps a failure that indicates a bug in the engine rather than
// caller misuse or an environmental failure.
func Internal(format string, args ...interface{}) error {
	return newf(categoryInternalError, format, args...)
}

// Is reports whether err carries the named category anywhere in its chain.
func Is(err error, name string) bool {
	var c *categorized
	for e := err; e != nil; e = errors.Unwrap(e) {
		if cc, ok := e.(*categorized); ok {
			c = cc
			if c.cat.String() == name {
				return true
			}
		}
	}
	return false
}

// fatalErr marks an invariant violation: a bug in the engine's own index
// arithmetic or state machine, not a caller or environment failure.
type fatalErr struct{ err error }

func (e *fatalErr) Error() string { return "fatal: " + e.err.Error() }
func (e *fatalErr) Unwrap() error { return e.err }

// Fatal builds a new error from format/args and marks it as a fatal
// invariant violation.
func Fatal(format string, args ...interface{}) error {
	return &fatalErr{err: errors.Errorf(format, args...)}
}

// IsFatal reports whether err (or anything it wraps) is a Fatal error.
func IsFatal(err error) bool {
	var f *fatalErr
	return errors.As(err, &f)
}
