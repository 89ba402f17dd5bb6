package errors

import (
	"errors"
	"fmt"
	"strings"
)

const maxBodyExcerpt = 512

// UnexpectedStatusError indicates the control plane answered with a status code
// the caller did not expect.
type UnexpectedStatusError struct {
	Method   string
	Path     string
	Expected []int
	Got      int
	Body     string
}

func NewUnexpectedStatusError(method, path string, got int, body []byte, expected ...int) *UnexpectedStatusError {
	b := string(body)
	if len(b) > maxBodyExcerpt {
		b = b[:maxBodyExcerpt] + "..."
	}
	return &UnexpectedStatusError{Method: method, Path: path, Expected: expected, Got: got, Body: b}
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status code %d (expected %v): %s", e.Method, e.Path, e.Got, e.Expected, e.Body)
}

// IsUnexpectedStatusError checks if the error is an UnexpectedStatusError.
func IsUnexpectedStatusError(err error) bool {
	var e *UnexpectedStatusError
	return errors.As(err, &e)
}

// StatusCode returns the status code carried by err, or 0.
func StatusCode(err error) int {
	var e *UnexpectedStatusError
	if errors.As(err, &e) {
		return e.Got
	}
	return 0
}

// ResourceNotFoundError indicates a resource was not found.
type ResourceNotFoundError struct {
	Kind string
	ID   string
}

func NewResourceNotFoundError(kind, id string) *ResourceNotFoundError {
	return &ResourceNotFoundError{Kind: kind, ID: id}
}

func NewAgentNotFoundError(id string) *ResourceNotFoundError {
	return NewResourceNotFoundError("agent", id)
}

func (e *ResourceNotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func IsResourceNotFoundError(err error) bool {
	var e *ResourceNotFoundError
	return errors.As(err, &e)
}

// InvalidOptionError indicates a payload builder was given an option it does not
// know, a value of the wrong kind, or a combination it cannot express.
type InvalidOptionError struct {
	Payload string
	Option  string
	Reason  string
}

func NewInvalidOptionError(payload, option, reason string) *InvalidOptionError {
	return &InvalidOptionError{Payload: payload, Option: option, Reason: reason}
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("%s: option %q: %s", e.Payload, e.Option, e.Reason)
}

func IsInvalidOptionError(err error) bool {
	var e *InvalidOptionError
	return errors.As(err, &e)
}

// ConditionNotMetError is raised by a caller after a bounded wait ended without
// the awaited condition.
type ConditionNotMetError struct {
	Condition   string
	Expected    string
	Observed    string
	Diagnostics string
}

func NewConditionNotMetError(condition string, expected, observed any) *ConditionNotMetError {
	return &ConditionNotMetError{
		Condition: condition,
		Expected:  fmt.Sprint(expected),
		Observed:  fmt.Sprint(observed),
	}
}

// WithDiagnostics attaches a snapshot of the system gathered after the last attempt.
func (e *ConditionNotMetError) WithDiagnostics(d string) *ConditionNotMetError {
	e.Diagnostics = d
	return e
}

func (e *ConditionNotMetError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: expected %s, observed %s", e.Condition, e.Expected, e.Observed)
	if e.Diagnostics != "" {
		sb.WriteString("\n")
		sb.WriteString(e.Diagnostics)
	}
	return sb.String()
}

func IsConditionNotMetError(err error) bool {
	var e *ConditionNotMetError
	return errors.As(err, &e)
}
