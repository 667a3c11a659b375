package charging

import (
	"errors"
	"strings"
)

// Kind classifies a charging control failure.
type Kind uint8

const (
	// KindUnsupportedOperation means no control node was found at startup.
	// It is permanent for the lifetime of the Control.
	KindUnsupportedOperation Kind = iota + 1

	// KindIllegalState means the bound node could not be opened, read or
	// written, or it held a token outside its vocabulary.
	KindIllegalState
)

func (k Kind) String() string {
	switch k {
	case KindUnsupportedOperation:
		return "unsupported_operation"
	case KindIllegalState:
		return "illegal_state"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrUnsupportedOperation = &Error{Kind: KindUnsupportedOperation, Msg: "charging control not supported on this device"}
	ErrIllegalState         = &Error{Kind: KindIllegalState, Msg: "charging control node in illegal state"}
)

// Error is returned by every failing Control operation.
type Error struct {
	Kind Kind
	// Op is "get" or "set".
	Op   string
	Path string
	Msg  string
	// Detail carries the platform error (errno name and text) for write failures.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("charging")
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Detail != "" {
		b.WriteString(" [")
		b.WriteString(e.Detail)
		b.WriteString("]")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of err, or 0 if err is not a charging error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}

func unsupported(op string) *Error {
	return &Error{Kind: KindUnsupportedOperation, Op: op, Msg: "no charging enabled node on this device"}
}

func illegalState(op, path, msg string, err error) *Error {
	return &Error{Kind: KindIllegalState, Op: op, Path: path, Msg: msg, Err: err}
}
