package system

import (
	"errors"
	"fmt"
)

// ErrDuplicateName reports two systems with the same name.
var ErrDuplicateName = errors.New("duplicate system name")

// ErrNilSystem reports a factory that returned neither a system nor an error.
var ErrNilSystem = errors.New("factory returned nil system")

// Stage identifies where initialization failed.
type Stage string

const (
	StageFactory Stage = "factory"
	StageReady   Stage = "ready"
)

// InitError is the failure of world initialization. It names the failing
// factory by declaration index, and by system name once known.
type InitError struct {
	Stage    Stage
	Index    int
	System   string
	Panicked bool
	Err      error
}

func (e *InitError) Error() string {
	who := fmt.Sprintf("#%d", e.Index)
	if e.System != "" {
		who = fmt.Sprintf("%q", e.System)
	}
	if e.Panicked {
		return fmt.Sprintf("init %s %s panicked: %v", e.Stage, who, e.Err)
	}
	return fmt.Sprintf("init %s %s: %v", e.Stage, who, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Code returns INIT_FAILED.
func (e *InitError) Code() string { return "INIT_FAILED" }

// IsInitError reports whether err is or wraps an InitError.
func IsInitError(err error) bool {
	var ie *InitError
	return errors.As(err, &ie)
}
