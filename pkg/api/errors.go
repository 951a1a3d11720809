package api

import (
	"errors"
	"fmt"
)

var (
	// ErrDirectoryUnavailable is returned when the session directory is
	// missing, not a directory, or not writable.
	ErrDirectoryUnavailable = errors.New("working directory unavailable")

	// ErrInvalidThreshold is returned for NaN or infinite thresholds.
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrInvalidThresholdRange is returned when a range classification has
	// low >= high.
	ErrInvalidThresholdRange = errors.New("invalid threshold range")

	// ErrExternalOperation is matched by every ExternalOperationError.
	ErrExternalOperation = errors.New("external operation failed")

	// ErrArtifactNotFound is returned when a step references an artifact
	// that is unknown or was never produced.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrDuplicateArtifact is returned when two steps declare the same output.
	ErrDuplicateArtifact = errors.New("duplicate artifact")

	// ErrUnknownKind is returned for unrecognised artifact kinds.
	ErrUnknownKind = errors.New("unknown artifact kind")
)

// ExternalOperationError reports a failure of the geoprocessing engine or
// the vector-table library.
type ExternalOperationError struct {
	Tool string
	// Output holds the tail of the tool's diagnostic output, if any.
	Output string
	Err    error
}

func (e *ExternalOperationError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrExternalOperation, e.Tool)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *ExternalOperationError) Unwrap() error { return e.Err }

func (e *ExternalOperationError) Is(target error) bool {
	return target == ErrExternalOperation
}

// NewExternalOperationError wraps err as a failure of tool.
func NewExternalOperationError(tool string, err error, output string) error {
	return &ExternalOperationError{Tool: tool, Err: err, Output: output}
}

// StepError records which step of which workflow failed.
type StepError struct {
	Workflow string
	Step     string
	Index    int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow %s: step %d (%s): %v", e.Workflow, e.Index, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
