// Package zqe provides a mechanism to create or wrap errors with information
// that will aid in reporting them to users and returning them to api callers.
package zqe

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
)

// A Kind represents a class of error. API layers will typically convert
// these into a domain specific error representation; for example, an http
// handler can convert these to http specific status codes.
type Kind int

const (
	Other Kind = iota
	Invalid
	PlanStructure
	DeviceIncompatible
	NativeCodegen
	ResourceExhausted
	CardinalityUnknown
	Interrupted
	TimedOut
	Internal
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case Invalid:
		return "invalid operation"
	case PlanStructure:
		return "query not supported"
	case DeviceIncompatible:
		return "query must run on cpu"
	case NativeCodegen:
		return "native code generation failed"
	case ResourceExhausted:
		return "resources exhausted"
	case CardinalityUnknown:
		return "cardinality estimation required"
	case Interrupted:
		return "query interrupted"
	case TimedOut:
		return "query timed out"
	case Internal:
		return "internal error"
	}
	return "unknown error kind"
}

type Error struct {
	Kind Kind
	Err  error
}

func pad(b *bytes.Buffer, s string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(s)
}

func (e *Error) Error() string {
	b := &bytes.Buffer{}
	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		pad(b, ": ")
		b.WriteString(e.Err.Error())
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns just the Err.Error() string, if present, or the Kind
// string description. The intent is to allow zqe users a way to avoid
// embedding the Kind description as happens with Error().
func (e *Error) Message() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Kind != Other {
		return e.Kind.String()
	}
	return "no error"
}

// Function E generates an error from any mix of:
// - a Kind
// - an existing error
// - a string and optional formatting verbs, like fmt.Errorf (including support
//	for the `%w` verb).
//
// The string & format verbs must be last in the arguments, if present.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("no args to errors.E")
	}
	e := &Error{}

	for i, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			e.Kind = arg
		case error:
			e.Err = arg
		case string:
			e.Err = fmt.Errorf(arg, args[i+1:]...)
			return e
		default:
			_, file, line, _ := runtime.Caller(1)
			return fmt.Errorf("unknown type %T value %v in errors.E call at %v:%v", arg, arg, file, line)
		}
	}

	return e
}

// KindOf returns the Kind of the outermost *Error in err's chain or Other
// if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// IsKind reports whether any *Error in err's chain carries kind k.
func IsKind(err error, k Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == k {
			return true
		}
		err = e.Err
	}
	return false
}

func ErrInvalid(args ...interface{}) error {
	return E(append([]interface{}{Invalid}, args...)...)
}

func ErrPlanStructure(args ...interface{}) error {
	return E(append([]interface{}{PlanStructure}, args...)...)
}

func ErrDeviceIncompatible(args ...interface{}) error {
	return E(append([]interface{}{DeviceIncompatible}, args...)...)
}

func ErrNativeCodegen(args ...interface{}) error {
	return E(append([]interface{}{NativeCodegen}, args...)...)
}

func ErrResourceExhausted(args ...interface{}) error {
	return E(append([]interface{}{ResourceExhausted}, args...)...)
}

func ErrInterrupted(args ...interface{}) error {
	return E(append([]interface{}{Interrupted}, args...)...)
}

func ErrTimedOut(args ...interface{}) error {
	return E(append([]interface{}{TimedOut}, args...)...)
}

func ErrInternal(args ...interface{}) error {
	return E(append([]interface{}{Internal}, args...)...)
}

// RecoverError converts a recovered panic value into an error.
func RecoverError(r interface{}) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return E(Internal, err)
	}
	return E(Internal, "panic: %v", r)
}
