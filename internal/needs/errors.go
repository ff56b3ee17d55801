package needs

import (
	"errors"
	"fmt"
)

var ErrDetection = errors.New("needs detection failed")

// DetectionError reports an unexpected internal fault while analysing a briefing.
type DetectionError struct {
	Op  string
	Err error
}

func (e *DetectionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrDetection.Error(), e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", ErrDetection.Error(), e.Op, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

func (e *DetectionError) Is(target error) bool { return target == ErrDetection }
