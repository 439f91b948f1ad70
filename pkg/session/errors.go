package session

import (
	"errors"
	"fmt"
)

// Error codes
const (
	CodeStateViolation = "STATE_VIOLATION"
	CodeNotFound       = "NOT_FOUND"
	CodeToolInFlight   = "TOOL_IN_FLIGHT"
)

var (
	ErrStateViolation = errors.New("state violation")
	ErrNotFound       = errors.New("not found")
	ErrToolInFlight   = errors.New("tool call in flight")
)

// Error is a recoverable, caller-facing failure of a session operation
type Error struct {
	Code     string `json:"code"`
	Op       string `json:"op"`
	Message  string `json:"message"`
	Required State  `json:"required,omitempty"`
	Actual   State  `json:"actual,omitempty"`
	Cause    error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for the error's code
func (e *Error) Is(target error) bool {
	switch target {
	case ErrStateViolation:
		return e.Code == CodeStateViolation
	case ErrNotFound:
		return e.Code == CodeNotFound
	case ErrToolInFlight:
		return e.Code == CodeToolInFlight
	}
	return false
}

// StateViolation reports an operation attempted outside its required state
func StateViolation(op string, required, actual State) *Error {
	return &Error{
		Code:     CodeStateViolation,
		Op:       op,
		Message:  fmt.Sprintf("requires state %s, session is %s", required, actual),
		Required: required,
		Actual:   actual,
	}
}

// NotFound reports an unknown agent or tool
func NotFound(op, kind, name string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Op:      op,
		Message: fmt.Sprintf("%s %q not found", kind, name),
	}
}

// ToolInFlight reports a mutation attempted while a tool call is unresolved
func ToolInFlight(op string) *Error {
	return &Error{
		Code:    CodeToolInFlight,
		Op:      op,
		Message: "a tool call is still in progress",
	}
}
