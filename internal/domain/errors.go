package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration marks invalid parameters (e.g. overlap >= unit size).
// Configuration errors are fatal and surfaced immediately.
var ErrConfiguration = errors.New("invalid configuration")

// ErrServiceUnavailable marks an unreachable or erroring external collaborator.
var ErrServiceUnavailable = errors.New("service unavailable")

// ChunkFailure records one chunk that could not be committed.
type ChunkFailure struct {
	ChunkID string
	Err     error
}

// PartialIndexError reports an indexing pass where some chunks failed to
// commit after the retry budget was exhausted. Callers can re-submit only
// the failed items.
type PartialIndexError struct {
	Committed int
	Failed    []ChunkFailure
}

func (e *PartialIndexError) Error() string {
	ids := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		ids[i] = f.ChunkID
	}
	return fmt.Sprintf("indexed %d chunks, %d failed: %s",
		e.Committed, len(e.Failed), strings.Join(ids, ", "))
}

// Unwrap exposes the first underlying failure for errors.Is checks.
func (e *PartialIndexError) Unwrap() error {
	if len(e.Failed) == 0 {
		return nil
	}
	return e.Failed[0].Err
}
