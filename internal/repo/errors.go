package repo

import (
	"errors"
	"fmt"
)

// Kind classifies repository errors so callers can map them to a
// user-facing status without inspecting message text.
type Kind int

const (
	KindServerError Kind = iota
	KindNotFound
	KindConflict
	KindInvalidInput
	KindPreconditionFailed
	KindAmbiguous
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindInvalidInput:
		return "invalid input"
	case KindPreconditionFailed:
		return "precondition failed"
	case KindAmbiguous:
		return "ambiguous"
	default:
		return "server error"
	}
}

// Error is the typed failure returned by all orchestration methods.
type Error struct {
	Kind    Kind
	Message string
	Err     error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindServerError if err is not a
// repository error.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindServerError
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == k
}

func notFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func invalidInput(format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func preconditionFailed(format string, args ...any) error {
	return &Error{Kind: KindPreconditionFailed, Message: fmt.Sprintf(format, args...)}
}

func ambiguous(format string, args ...any) error {
	return &Error{Kind: KindAmbiguous, Message: fmt.Sprintf(format, args...)}
}

func serverError(msg string, err error) error {
	return &Error{Kind: KindServerError, Message: msg, Err: err}
}
