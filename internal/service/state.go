// Package service tracks process-wide model readiness.
//
// A single [State] value is constructed at startup, mutated only during the
// startup sequence, and read by every request handler afterwards. It makes
// the not-loaded/loading/ready lifecycle an explicit, testable value rather
// than implicit global mutation.
package service

import "sync/atomic"

// ModelState is the lifecycle position of the embedding model. Transitions
// are monotonic: NotLoaded → Loading → Ready, never backwards.
type ModelState int32

const (
	ModelNotLoaded ModelState = iota
	ModelLoading
	ModelReady
)

// String returns the lifecycle state name as reported in logs and health
// responses.
func (s ModelState) String() string {
	switch s {
	case ModelNotLoaded:
		return "not_loaded"
	case ModelLoading:
		return "loading"
	case ModelReady:
		return "ready"
	}
	return "unknown"
}

// State holds the readiness of both models. The embedding model is
// required and moves through the full lifecycle during startup; diarization
// is an optional capability flagged available at most once, at startup,
// and never revoked.
//
// All methods are safe for concurrent use.
type State struct {
	embedding   atomic.Int32
	diarization atomic.Bool
}

// NewState returns a State with the embedding model not loaded and
// diarization unavailable.
func NewState() *State {
	return &State{}
}

// MarkLoading records the start of the blocking model load. It only
// transitions forward from NotLoaded; later states are preserved.
func (s *State) MarkLoading() {
	s.embedding.CompareAndSwap(int32(ModelNotLoaded), int32(ModelLoading))
}

// MarkReady records a completed model load. The state never leaves Ready
// afterwards.
func (s *State) MarkReady() {
	s.embedding.Store(int32(ModelReady))
}

// EnableDiarization flags the optional diarization capability as available.
// Called at most once, during startup, when the external credential was
// present and the pipeline constructed successfully.
func (s *State) EnableDiarization() {
	s.diarization.Store(true)
}

// EmbeddingState returns the embedding model lifecycle position.
func (s *State) EmbeddingState() ModelState {
	return ModelState(s.embedding.Load())
}

// ModelsLoaded reports whether the embedding model is ready for inference.
func (s *State) ModelsLoaded() bool {
	return s.EmbeddingState() == ModelReady
}

// DiarizationAvailable reports whether the diarization capability was
// enabled at startup.
func (s *State) DiarizationAvailable() bool {
	return s.diarization.Load()
}
