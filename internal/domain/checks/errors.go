package checks

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned by lookups for ids that are in no partition.
	ErrNotFound = errors.New("check not found")
	// ErrInvalidTransition indicates a status change outside the transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrNoValidImages     = errors.New("no valid images")
	ErrMalformedEvent    = errors.New("malformed capture event")
	// ErrCommandDropped is recorded when a device command finds the channel closed.
	ErrCommandDropped = errors.New("scanner command channel not ready, command dropped")
)

// IngestError aborts a single capture event before extraction starts.
type IngestError struct {
	Reason string
	Err    error
}

func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingest: %s: %v", e.Reason, e.Err)
	}
	return "ingest: " + e.Reason
}

func (e *IngestError) Unwrap() error { return e.Err }

// ExtractionError aborts a single capture event during OCR or decoding.
type ExtractionError struct {
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction (%s): %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// WorkflowError reports a rejected status change.
type WorkflowError struct {
	ID   CheckID
	From Status
	To   Status
	Err  error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("check %s: %s -> %s: %v", e.ID, e.From, e.To, e.Err)
}

func (e *WorkflowError) Unwrap() error { return e.Err }

// BatchError collects per-record failures of a batch operation.
type BatchError struct {
	Failures map[CheckID]error
}

func (e *BatchError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.Failures[CheckID(id)]))
	}
	return fmt.Sprintf("%d record(s) failed: %s", len(ids), strings.Join(parts, "; "))
}

// Unwrap exposes every per-record error to errors.Is / errors.As.
func (e *BatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		out = append(out, err)
	}
	return out
}
