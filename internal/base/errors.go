package base

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Error kinds. Every error the engine returns across a public boundary is
// marked with exactly one of these sentinels so that callers can test with
// errors.Is(err, base.ErrNotFound) rather than string matching (§7).
var (
	ErrNotFound      = errors.New("ldb: not found")
	ErrCorruption    = errors.New("ldb: corruption")
	ErrIO            = errors.New("ldb: io error")
	ErrInvalidArg    = errors.New("ldb: invalid argument")
	ErrNotSupported  = errors.New("ldb: not supported")
	ErrClosed        = errors.New("ldb: closed")
)

// CorruptionErrorf formats a Corruption error wrapped so errors.Is(err,
// ErrCorruption) succeeds. Block-local corruption (a single bad block) does
// not imply the whole file is unreadable; callers decide locality.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(fmt.Errorf(format, args...), ErrCorruption)
}

// IOErrorf formats an IOError wrapped so errors.Is(err, ErrIO) succeeds.
func IOErrorf(format string, args ...interface{}) error {
	return errors.Mark(fmt.Errorf(format, args...), ErrIO)
}

// InvalidArgumentf formats an InvalidArgument error.
func InvalidArgumentf(format string, args ...interface{}) error {
	return errors.Mark(fmt.Errorf(format, args...), ErrInvalidArg)
}

// NotFoundErrorf formats a NotFound error wrapped so errors.Is(err,
// ErrNotFound) succeeds.
func NotFoundErrorf(format string, args ...interface{}) error {
	return errors.Mark(fmt.Errorf(format, args...), ErrNotFound)
}

// MarkCorruption wraps an existing error as a Corruption, preserving its
// message and chain.
func MarkCorruption(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrCorruption)
}

// IsCorruption reports whether err (or any error it wraps) is a Corruption.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorruption)
}

// IsNotFound reports whether err is the distinguished not-found sentinel.
// NotFound is a normal return value for Get, never logged as an error (§7).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
