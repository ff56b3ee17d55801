package compose

import (
	"errors"
	"fmt"
	"strings"
)

var ErrCycle = errors.New("circular dependency detected")

// CompositionError aborts a composition. Path holds one cycle witness when
// Kind is ErrCycle.
type CompositionError struct {
	Kind error
	Msg  string
	Path []string
}

func (e *CompositionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *CompositionError) Unwrap() error { return e.Kind }

func cycleError(path []string) error {
	return &CompositionError{Kind: ErrCycle, Msg: strings.Join(path, " -> "), Path: path}
}
