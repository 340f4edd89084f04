package core

import "errors"

// Error classes. Every error returned by this package wraps exactly one of
// them, so callers can pick an exit status or HTTP status with errors.Is.
var (
	// ErrUsage reports missing or invalid field specifiers. Detected before any
	// data is read.
	ErrUsage = errors.New("usage error")

	// ErrInput reports an input source that cannot be read or is truncated.
	ErrInput = errors.New("input error")

	// ErrAllocation reports that a buffer or the table could not grow.
	ErrAllocation = errors.New("allocation error")
)

// Specific errors, each wrapping its class.
var (
	ErrMissingKeys     = wrapClass(ErrUsage, "key fields must be specified")
	ErrUnexpectedEOF   = wrapClass(ErrInput, "unexpected end of file")
	ErrMalformedNumber = wrapClass(ErrInput, "malformed number")
	ErrLineTooLong     = wrapClass(ErrAllocation, "line exceeds buffer limit")
	ErrTableFull       = wrapClass(ErrAllocation, "failed to store value in table")
)

// Exit statuses returned by the aggregate command.
const (
	ExitOK       = 0
	ExitHelp     = 1
	ExitFileErr  = 2
	ExitMemErr   = 3
	exitInternal = ExitHelp
)

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage):
		return ExitHelp
	case errors.Is(err, ErrInput):
		return ExitFileErr
	case errors.Is(err, ErrAllocation):
		return ExitMemErr
	default:
		return exitInternal
	}
}

type classError struct {
	class error
	msg   string
}

func wrapClass(class error, msg string) error {
	return &classError{class: class, msg: msg}
}

func (e *classError) Error() string { return e.msg }

func (e *classError) Unwrap() error { return e.class }
