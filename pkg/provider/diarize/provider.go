// Package diarize defines the Provider interface for speaker diarization
// backends.
//
// A diarization provider splits a recording into time segments labelled by
// which speaker is talking. Labels are pipeline-local identifiers (e.g.
// "SPEAKER_00") with no meaning across calls or recordings; reconciling
// them against known identities is the caller's job, typically by encoding
// a per-segment audio slice and comparing voiceprints.
//
// Diarization is an optional capability: whether a provider exists at all
// is decided once at process startup, based on an external credential.
package diarize

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable is returned when diarization was not configured at
// startup. The capability never becomes available later in the process
// lifetime; there is no lazy loading.
var ErrUnavailable = errors.New("diarize: diarization not available")

// InferenceError wraps a runtime failure raised by the diarization
// pipeline. It is never retried internally.
type InferenceError struct {
	Pipeline string
	Cause    error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("diarize: pipeline %s failed: %v", e.Pipeline, e.Cause)
}

func (e *InferenceError) Unwrap() error { return e.Cause }

// Segment is one speaker turn in a recording. Times are seconds from the
// start of the recording, rounded to millisecond precision, with
// Start < End.
type Segment struct {
	// Speaker is a pipeline-local label such as "SPEAKER_00". It is not a
	// stable identity.
	Speaker string `json:"speaker"`

	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Provider is the abstraction over any diarization backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Diarize splits the audio file at path into ordered speaker segments.
	// The file must exist for the duration of the call; the caller owns its
	// lifecycle. Runtime failures are returned as a *InferenceError.
	Diarize(ctx context.Context, path string) ([]Segment, error)

	// ModelID returns the diarization pipeline identifier, for logging.
	ModelID() string
}
