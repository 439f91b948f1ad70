package toolexecutor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// TypedError lets a tool name the category of its own failure
type TypedError interface {
	error
	ErrorType() string
}

// PanicError wraps a value recovered from a panicking tool
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("tool panicked: %v", e.Value)
}

// ErrorType reports recovered panics under a single category
func (e *PanicError) ErrorType() string {
	return "Panic"
}

// stdlib wrappers carry no category of their own
var genericErrorTypes = map[string]bool{
	"*errors.errorString": true,
	"*errors.joinError":   true,
	"*fmt.wrapError":      true,
	"*fmt.wrapErrors":     true,
}

// ErrorTypeName derives the category recorded for a tool failure.
// A TypedError anywhere in the chain wins; otherwise the first concrete
// non-generic type name is used, falling back to "Error".
func ErrorTypeName(err error) string {
	if err == nil {
		return ""
	}

	var typed TypedError
	if errors.As(err, &typed) {
		return typed.ErrorType()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "DeadlineExceeded"
	}
	if errors.Is(err, context.Canceled) {
		return "Cancelled"
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		if genericErrorTypes[reflect.TypeOf(e).String()] {
			continue
		}
		if name := typeName(e); name != "" {
			return name
		}
	}
	return "Error"
}

// typeName is the name of err's dynamic type with pointers stripped
func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// isNilValue reports a non-nil error interface holding a nil pointer
func isNilValue(err error) bool {
	v := reflect.ValueOf(err)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// describeError returns the category and message recorded for err and
// whether it reports a cancellation. Methods of err run under recover, so a
// typed nil or a panicking Error method still yields a description.
func describeError(err error) (errType, message string, cancelled bool) {
	defer func() {
		if r := recover(); r != nil {
			errType = typeName(err)
			if errType == "" {
				errType = "Error"
			}
			message = fmt.Sprintf("%T: error method panicked: %v", err, r)
			cancelled = false
		}
	}()

	if isNilValue(err) {
		errType = typeName(err)
		if errType == "" {
			errType = "Error"
		}
		return errType, fmt.Sprintf("tool returned a nil %T as its error", err), false
	}
	return ErrorTypeName(err), err.Error(), errors.Is(err, context.Canceled)
}
