// Package mock provides a test double for the diarize.Provider interface.
//
// Use Provider to return scripted segments without a live pipeline and to
// verify which audio paths were submitted for diarization.
package mock

import (
	"context"
	"sync"

	"github.com/voxmem/speakerd/pkg/provider/diarize"
)

// DiarizeCall records a single invocation of Diarize.
type DiarizeCall struct {
	// Ctx is the context passed to Diarize.
	Ctx context.Context
	// Path is the audio file path passed to Diarize.
	Path string
}

// Provider is a mock implementation of diarize.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Segments is returned by Diarize. If nil, an empty slice is returned.
	Segments []diarize.Segment

	// Err, if non-nil, is returned as the error from Diarize.
	Err error

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// --- Call records ---

	// DiarizeCalls records every call to Diarize in order.
	DiarizeCalls []DiarizeCall
}

// Diarize records the call and returns Segments, Err.
func (p *Provider) Diarize(ctx context.Context, path string) ([]diarize.Segment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DiarizeCalls = append(p.DiarizeCalls, DiarizeCall{Ctx: ctx, Path: path})
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([]diarize.Segment, len(p.Segments))
	copy(out, p.Segments)
	return out, nil
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// Ensure Provider implements diarize.Provider at compile time.
var _ diarize.Provider = (*Provider)(nil)
