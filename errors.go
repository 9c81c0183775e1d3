package dataflow

import (
	"errors"
	"strings"
)

var (
	// ErrNotToggleable is returned if a toggle key is configured for a
	// processor that does not implement Toggleable.
	ErrNotToggleable = errors.New("processor does not implement Toggleable")

	// ErrNotBound is returned if an owner-dependent method is called
	// before the node is bound to a runner.
	ErrNotBound = errors.New("node is not bound to a runner")

	// ErrAlreadyBound is returned on an attempt to bind a node twice.
	ErrAlreadyBound = errors.New("node is already bound to a runner")

	// ErrRunnerStarted is returned if a started runner is mutated or
	// started again.
	ErrRunnerStarted = errors.New("runner is already started")

	// ErrRunnerNotStarted is returned by Stop or Wait on a runner that
	// was never started.
	ErrRunnerNotStarted = errors.New("runner is not started")
)

// execErrors wraps errors collected from multiple node loops.
type execErrors []error

func (e execErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Is checks if any of collected errors match the provided sentinel error.
func (e execErrors) Is(err error) bool {
	for _, se := range e {
		if errors.Is(se, err) {
			return true
		}
	}
	return false
}

// ret returns untyped nil if error list is empty.
func (e execErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
