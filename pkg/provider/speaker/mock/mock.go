// Package mock provides a test double for the speaker.Provider interface.
//
// Use Provider to return pre-canned or deterministically derived embedding
// vectors without a live model. When EncodeFunc is nil, embeddings are
// derived from an FNV hash of the waveform samples, so identical waveforms
// always produce identical vectors — mirroring the determinism contract of
// real backends.
package mock

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"sync"

	"github.com/voxmem/speakerd/pkg/audio"
	"github.com/voxmem/speakerd/pkg/provider/speaker"
)

// EncodeCall records a single invocation of Encode.
type EncodeCall struct {
	// Ctx is the context passed to Encode.
	Ctx context.Context
	// Samples is the length of the waveform passed to Encode.
	Samples int
}

// Provider is a mock implementation of speaker.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// LoadErr, if non-nil, is returned by Load.
	LoadErr error

	// LoadDelayFunc, if non-nil, runs inside Load before it returns,
	// allowing tests to simulate a slow model load.
	LoadDelayFunc func(ctx context.Context)

	// EncodeFunc overrides embedding generation. If nil, a deterministic
	// hash-derived vector of DimensionsValue length is returned.
	EncodeFunc func(w audio.Waveform) []float32

	// EncodeErr, if non-nil, is returned as the error from Encode.
	EncodeErr error

	// DimensionsValue is returned by Dimensions. Defaults to 192 when zero.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// SkipReadyCheck disables the ErrNotLoaded guard in Encode, for tests
	// that do not care about lifecycle.
	SkipReadyCheck bool

	// --- Call records ---

	// LoadCallCount is the number of times Load was called.
	LoadCallCount int

	// EncodeCalls records every call to Encode in order.
	EncodeCalls []EncodeCall

	ready bool
}

// Load records the call and marks the provider ready unless LoadErr is set.
func (p *Provider) Load(ctx context.Context) error {
	p.mu.Lock()
	p.LoadCallCount++
	delay := p.LoadDelayFunc
	p.mu.Unlock()

	if delay != nil {
		delay(ctx)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.LoadErr != nil {
		return p.LoadErr
	}
	p.ready = true
	return nil
}

// Ready reports whether a successful Load has occurred.
func (p *Provider) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Encode records the call and returns either EncodeFunc's result or a
// deterministic hash-derived embedding.
func (p *Provider) Encode(ctx context.Context, w audio.Waveform) ([]float32, error) {
	p.mu.Lock()
	p.EncodeCalls = append(p.EncodeCalls, EncodeCall{Ctx: ctx, Samples: len(w.Samples)})
	ready := p.ready || p.SkipReadyCheck
	encodeFn := p.EncodeFunc
	encodeErr := p.EncodeErr
	dim := p.dimensionsLocked()
	p.mu.Unlock()

	if !ready {
		return nil, speaker.ErrNotLoaded
	}
	if encodeErr != nil {
		return nil, encodeErr
	}
	if encodeFn != nil {
		return encodeFn(w), nil
	}
	return deriveEmbedding(w, dim), nil
}

// Dimensions returns DimensionsValue, defaulting to 192.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dimensionsLocked()
}

func (p *Provider) dimensionsLocked() int {
	if p.DimensionsValue > 0 {
		return p.DimensionsValue
	}
	return 192
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// deriveEmbedding produces a unit-norm vector seeded by an FNV hash of the
// sample data. Identical waveforms yield identical embeddings.
func deriveEmbedding(w audio.Waveform, dim int) []float32 {
	h := fnv.New64a()
	buf := make([]byte, 4)
	for _, s := range w.Samples {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(s))
		h.Write(buf)
	}
	seed := h.Sum64()

	vec := make([]float32, dim)
	var norm float64
	state := seed
	for i := range vec {
		// xorshift64 over the seed keeps the sequence reproducible.
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		v := float64(int64(state)) / float64(math.MaxInt64)
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

// Ensure Provider implements speaker.Provider at compile time.
var _ speaker.Provider = (*Provider)(nil)
