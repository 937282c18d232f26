package nutrition

import (
	"errors"
	"fmt"
)

// FailureReason is the kind of a NormalizationError.
type FailureReason string

const (
	ReasonMissingSchedule     FailureReason = "missingSchedule"
	ReasonMissingAnchorFields FailureReason = "missingAnchorFields"
)

var (
	ErrMissingSchedule     = errors.New("no weekly schedule with at least one meal")
	ErrMissingAnchorFields = errors.New("required top-level field absent or non-numeric")
)

// NormalizationError is returned when a parsed completion cannot be turned
// into a plan. It matches ErrMissingSchedule or ErrMissingAnchorFields with
// errors.Is.
type NormalizationError struct {
	Reason FailureReason
	Field  string
}

func (e *NormalizationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("normalization failed (%s): %s: %v", e.Reason, e.Field, e.Unwrap())
	}
	return fmt.Sprintf("normalization failed (%s): %v", e.Reason, e.Unwrap())
}

func (e *NormalizationError) Unwrap() error {
	switch e.Reason {
	case ReasonMissingSchedule:
		return ErrMissingSchedule
	case ReasonMissingAnchorFields:
		return ErrMissingAnchorFields
	}
	return nil
}
