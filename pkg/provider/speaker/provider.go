// Package speaker defines the Provider interface for speaker embedding
// backends.
//
// A speaker provider wraps a pretrained speaker-verification model (e.g.
// ECAPA-TDNN) that maps a canonical waveform to a fixed-length voiceprint
// vector. Vectors from the same provider instance can be compared with the
// voiceprint package; vectors from different models must never be mixed in
// the same comparison.
//
// Implementations must be safe for concurrent use after Load has returned.
package speaker

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxmem/speakerd/pkg/audio"
)

// ErrNotLoaded is returned by Encode when the embedding model has not
// finished loading. Callers must check Ready and fail fast rather than
// invoke the model early.
var ErrNotLoaded = errors.New("speaker: embedding model not loaded")

// InferenceError wraps a runtime failure raised by a loaded model. It is
// never retried internally; the caller decides whether to retry.
type InferenceError struct {
	Model string
	Cause error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("speaker: inference with %s failed: %v", e.Model, e.Cause)
}

func (e *InferenceError) Unwrap() error { return e.Cause }

// Provider is the abstraction over any speaker embedding backend.
//
// The lifecycle is: construct, Load exactly once at process startup, then
// Encode for the lifetime of the process. Load is blocking and may take
// several seconds; Encode must not be called before Load returns.
type Provider interface {
	// Load prepares the model for inference. It blocks until the model is
	// ready or ctx is cancelled and must be called exactly once, before the
	// first Encode.
	Load(ctx context.Context) error

	// Ready reports whether Load has completed successfully.
	Ready() bool

	// Encode computes the embedding vector for a single waveform (a
	// one-item batch; no batching occurs across requests). The result has
	// length Dimensions and is deterministic for identical input and model
	// weights. Returns ErrNotLoaded before Load completes and a
	// *InferenceError for runtime model failures.
	Encode(ctx context.Context, w audio.Waveform) ([]float32, error)

	// Dimensions returns the fixed length of every embedding vector
	// produced by this provider.
	Dimensions() int

	// ModelID returns the model identifier, for logging and for ensuring
	// embeddings are only compared within one model space.
	ModelID() string
}
