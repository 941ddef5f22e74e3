package randomx

import (
	"errors"
	"strings"
)

// Kind categorizes an Error.
type Kind string

const (
	// KindParameter reports an invalid argument: an empty key or input, an
	// empty input set, or a resource that was already closed.
	KindParameter Kind = "parameter"
	// KindFlagConfig reports flags that contradict the supplied resources.
	KindFlagConfig Kind = "flag_config"
	// KindCreation reports that the engine could not create a resource, or
	// that the requested dataset range is empty.
	KindCreation Kind = "creation"
	// KindConversion reports a value that does not fit the target type.
	KindConversion Kind = "conversion"
	// KindOther reports an engine result that cannot be valid.
	KindOther Kind = "other"
)

// Error is the error type returned by every operation in this package.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("randomx: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind, so the Err* sentinels can be used
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrParameter  = &Error{Kind: KindParameter}
	ErrFlagConfig = &Error{Kind: KindFlagConfig}
	ErrCreation   = &Error{Kind: KindCreation}
	ErrConversion = &Error{Kind: KindConversion}
	ErrOther      = &Error{Kind: KindOther}
)

// ErrClosed is the cause of the parameter error returned when a closed
// Cache, Dataset, VM or Hasher is used.
var ErrClosed = errors.New("resource is closed")

// KindOf returns the Kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, op, detail string) error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

func closedError(op string) error {
	return &Error{Kind: KindParameter, Op: op, Cause: ErrClosed}
}
