package common

import (
	"errors"
	"fmt"
)

var (
	// ErrExternalService wraps provider call failures that persist after
	// retries. Callers may retry the whole operation later; partial
	// progress is preserved.
	ErrExternalService = errors.New("external service failure")

	// ErrChunkingInProgress is returned when a chunking or embedding run
	// is requested for a document another run currently owns.
	ErrChunkingInProgress = errors.New("document is already being processed")

	// ErrCapacityExceeded is returned when a context budget cannot be met
	// even after everything truncatable has been dropped.
	ErrCapacityExceeded = errors.New("context exceeds token budget")
)

// ValidationError reports malformed data that must not be persisted, such
// as an embedding vector with the wrong dimensionality or non-finite values.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// PartialFailure reports a batch that completed with some failed sub-units.
// The surrounding operation succeeded for every unit not listed.
type PartialFailure struct {
	Op     string
	Failed int
	Total  int
	Units  []string
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%s: %d of %d units failed", e.Op, e.Failed, e.Total)
}
