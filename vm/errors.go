package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Error kinds
// ---------------------------------------------------------------------------

// ErrorKind classifies script-visible errors.
type ErrorKind uint8

const (
	SyntaxError ErrorKind = iota
	TypeError
	IndexError
	RangeError
	RuntimeError
	IOError
)

var errorKindNames = [...]string{
	SyntaxError:  "Syntax error",
	TypeError:    "Type error",
	IndexError:   "Index error",
	RangeError:   "Range error",
	RuntimeError: "Runtime error",
	IOError:      "Input/output error",
}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", k)
}

// Sentinels for errors.Is matching on the kind of an *Error.
var (
	ErrSyntax  = &Error{Kind: SyntaxError}
	ErrType    = &Error{Kind: TypeError}
	ErrIndex   = &Error{Kind: IndexError}
	ErrRange   = &Error{Kind: RangeError}
	ErrRuntime = &Error{Kind: RuntimeError}
	ErrIO      = &Error{Kind: IOError}
)

// ---------------------------------------------------------------------------
// Error
// ---------------------------------------------------------------------------

// Error is the single error type raised by the scanner, parser, compiler
// and virtual machine. Line is 0 when no source position is known.
type Error struct {
	Kind    ErrorKind
	File    string
	Line    int
	Message string

	// Snippet holds the offending source line and a caret line, for syntax
	// errors only.
	Snippet string
	Hint    string

	// Value is the thrown value for errors raised by a throw statement.
	Value Value

	cause error
}

// Error formats the error as "[Kind] File "name" at line N: message".
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(e.Kind.String())
	b.WriteByte(']')
	if e.File != "" {
		fmt.Fprintf(&b, " File %q", e.File)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Snippet != "" {
		b.WriteByte('\n')
		b.WriteString(e.Snippet)
	}
	if e.Hint != "" {
		b.WriteString("\nHint: ")
		b.WriteString(e.Hint)
	}
	return b.String()
}

// Unwrap returns the underlying Go error, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error of the same kind, so that
// errors.Is(err, vm.ErrType) works for any type error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Line == 0
}

// NewError creates an error of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError turns a Go error into an *Error of the given kind, keeping the
// original as the cause.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if msg == "" {
		msg = err.Error()
	} else {
		msg += ": " + err.Error()
	}
	return &Error{Kind: kind, Message: msg, cause: err}
}

// Throw raises an *Error. Inside the VM errors travel as panics and are
// recovered at the public API boundary.
func Throw(err *Error) {
	panic(err)
}

// Throwf raises a new error of the given kind.
func Throwf(kind ErrorKind, format string, args ...any) {
	panic(NewError(kind, format, args...))
}

// AsError extracts an *Error from err, if there is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
