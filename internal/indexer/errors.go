package indexer

import (
	"errors"
	"fmt"
)

var (
	// ErrTableWrite marks a failure to create or fill the output sheet.
	ErrTableWrite = errors.New("table write failed")
	// ErrFormatting marks a failed row-height request.
	ErrFormatting = errors.New("row formatting failed")
)

// Step names a fatal stage of a run.
type Step string

const (
	StepParse       Step = "parse"
	StepCreateSheet Step = "create_sheet"
	StepWriteRange  Step = "write_range"
	StepFormatRows  Step = "format_rows"
)

// StepError is the single terminal error of a failed run.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// FailedStep returns the step a run failed at, or "" if err is not a
// StepError.
func FailedStep(err error) Step {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
