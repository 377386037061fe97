package engine

import (
	"errors"
	"fmt"

	"github.com/containerd/containerd/errdefs"
)

// Error kinds. Each kind also matches a containerd errdefs class.
var (
	ErrConfig   = errors.New("config error")
	ErrLoad     = errors.New("load error")
	ErrResource = errors.New("resource error")
	ErrLookup   = errors.New("lookup error")
	ErrTrap     = errors.New("execution trap")
	ErrIO       = errors.New("io error")
)

// Stage is the last state an invocation reached. Errors carry the stage
// they interrupted.
type Stage string

const (
	StageCreated          Stage = "created"
	StageModuleLoaded     Stage = "module-loaded"
	StageEnvironmentReady Stage = "environment-ready"
	StageFunctionResolved Stage = "function-resolved"
	StageRunning          Stage = "running"
)

// Error carries the failed stage, the kind and the underlying diagnostic.
type Error struct {
	Kind  error
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if c := errdefsClass(e.Kind); c != nil {
		errs = append(errs, c)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func errdefsClass(kind error) error {
	switch kind {
	case ErrConfig, ErrLoad:
		return errdefs.ErrInvalidArgument
	case ErrResource, ErrIO:
		return errdefs.ErrUnavailable
	case ErrLookup:
		return errdefs.ErrNotFound
	case ErrTrap:
		return errdefs.ErrUnknown
	}
	return nil
}

// Errorf builds an *Error.
func Errorf(kind error, stage Stage, format string, args ...interface{}) error {
	return &Error{Kind: kind, Stage: stage, Err: fmt.Errorf(format, args...)}
}

// Wrap returns nil when err is nil.
func Wrap(kind error, stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}
