// Package check implements the fatal assertions used by the pool manager.
//
// Check is active in every build and guards conditions whose violation would
// corrupt allocator state: capacity, handles, alignment, ranges and double
// frees. DCheck guards internal consistency and is compiled in only with the
// "debug" build tag, see DCheckIsOn.
//
// A failed assertion logs the failure and panics with an assertion error
// built by github.com/cockroachdb/errors. Nothing in the allocator recovers
// from it; tests use IsFailure to recognise the panic value.
package check

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/superpool/internal/logger"
)

// Fail logs and panics with an assertion failure.
func Fail(format string, args ...any) {
	fail(2, format, args...)
}

// Check fails when cond is false.
func Check(cond bool, format string, args ...any) {
	if !cond {
		fail(2, format, args...)
	}
}

// DCheck fails when cond is false and debug checks are compiled in.
func DCheck(cond bool, format string, args ...any) {
	if DCheckIsOn && !cond {
		fail(2, format, args...)
	}
}

// IsFailure reports whether v, typically a recovered panic value, is an
// assertion failure raised by this package.
func IsFailure(v any) bool {
	err, ok := v.(error)
	return ok && errors.IsAssertionFailure(err)
}

func fail(depth int, format string, args ...any) {
	err := errors.AssertionFailedWithDepthf(depth, format, args...)
	logger.Error("assertion failed", "err", err)
	panic(err)
}
