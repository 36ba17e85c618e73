package scheduler

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Dispatch after the scheduler has been closed.
var ErrClosed = errors.New("scheduler closed")

// ErrContextDone is the failure of a Stack call made through a Context whose
// handler has already returned.
var ErrContextDone = errors.New("handler context used after return")

// ErrorCode categorizes pipeline failures.
type ErrorCode string

const (
	// CodeUnhandled indicates no handler claimed the event.
	CodeUnhandled ErrorCode = "UNHANDLED"

	// CodeHandlerFailed indicates a handler returned an error or panicked.
	CodeHandlerFailed ErrorCode = "HANDLER_FAILED"

	// CodeStackDepth indicates nested Stack calls exceeded the limit.
	CodeStackDepth ErrorCode = "STACK_DEPTH"
)

// UnhandledError is the failure of an event no handler claimed.
type UnhandledError struct {
	EventType string
	EventID   string
}

func (e *UnhandledError) Error() string {
	return fmt.Sprintf("%s: no system claimed event %q", CodeUnhandled, e.EventType)
}

// Code returns CodeUnhandled.
func (e *UnhandledError) Code() ErrorCode { return CodeUnhandled }

// HandlerError wraps a handler failure with the system and event it
// happened on.
type HandlerError struct {
	System    string
	EventType string
	EventID   string
	Panicked  bool
	Err       error
}

func (e *HandlerError) Error() string {
	verb := "failed"
	if e.Panicked {
		verb = "panicked"
	}
	return fmt.Sprintf("%s: system %q %s handling %q: %v", CodeHandlerFailed, e.System, verb, e.EventType, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Code returns CodeHandlerFailed.
func (e *HandlerError) Code() ErrorCode { return CodeHandlerFailed }

// StackDepthError is the failure of a stacked event that would nest deeper
// than the configured limit.
type StackDepthError struct {
	EventType string
	Depth     int
	Limit     int
}

func (e *StackDepthError) Error() string {
	return fmt.Sprintf("%s: stacking %q at depth %d exceeds limit %d", CodeStackDepth, e.EventType, e.Depth, e.Limit)
}

// Code returns CodeStackDepth.
func (e *StackDepthError) Code() ErrorCode { return CodeStackDepth }

// IsUnhandled reports whether err is or wraps an UnhandledError.
func IsUnhandled(err error) bool {
	var ue *UnhandledError
	return errors.As(err, &ue)
}

// IsHandlerError reports whether err is or wraps a HandlerError.
func IsHandlerError(err error) bool {
	var he *HandlerError
	return errors.As(err, &he)
}

// IsStackDepth reports whether err is or wraps a StackDepthError.
func IsStackDepth(err error) bool {
	var se *StackDepthError
	return errors.As(err, &se)
}

// CodeOf returns the error code of a pipeline failure, or "" for other errors.
func CodeOf(err error) ErrorCode {
	var coded interface{ Code() ErrorCode }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}
