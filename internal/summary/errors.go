package summary

import (
	"errors"
	"fmt"
)

// ErrMissingReviews is returned when a summary has to be generated but the
// request carried no review batch.
var ErrMissingReviews = errors.New("missing required data field: reviews")

// Phase names the step of Summarize that failed.
type Phase string

const (
	PhaseKey      Phase = "key"
	PhaseLookup   Phase = "lookup"
	PhaseReviews  Phase = "reviews"
	PhaseGenerate Phase = "generate"
	PhaseStore    Phase = "store"
)

// Error carries the phase and serialized key of a failed request. Use
// errors.Is with the cache, llm and summary sentinels to classify it.
type Error struct {
	Phase Phase
	Key   string
	Err   error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("summary %s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("summary %s %s: %v", e.Phase, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
