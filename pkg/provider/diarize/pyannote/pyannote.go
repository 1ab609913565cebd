// Package pyannote provides a diarize.Provider backed by a pyannote
// pipeline sidecar binary.
//
// The sidecar wraps the pyannote speaker-diarization pipeline and is
// invoked once per request with the audio file path; it prints the
// resulting segments as a JSON array on stdout. The pretrained pipeline is
// gated behind a Hugging Face access token, which is passed to the child
// process environment and validated at construction time — a missing token
// means diarization is simply unavailable for the life of the process.
package pyannote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/voxmem/speakerd/pkg/provider/diarize"
)

const (
	// DefaultBinary is the sidecar executable resolved via $PATH unless
	// overridden.
	DefaultBinary = "pyannote-audio"

	// DefaultModel is the pretrained diarization pipeline identifier.
	DefaultModel = "pyannote/speaker-diarization-3.1"
)

// Compile-time assertion that Pipeline implements diarize.Provider.
var _ diarize.Provider = (*Pipeline)(nil)

// Option is a functional option for configuring a Pipeline.
type Option func(*Pipeline)

// WithBinary overrides the sidecar executable path. Defaults to
// "pyannote-audio" resolved via $PATH.
func WithBinary(path string) Option {
	return func(p *Pipeline) {
		if path != "" {
			p.binary = path
		}
	}
}

// WithModel overrides the pretrained pipeline identifier.
func WithModel(model string) Option {
	return func(p *Pipeline) {
		if model != "" {
			p.model = model
		}
	}
}

// WithRunner replaces the sidecar subprocess invocation. The runner returns
// the sidecar's stdout. Used by tests to avoid a real pyannote dependency.
func WithRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) Option {
	return func(p *Pipeline) {
		p.runner = runner
	}
}

// Pipeline implements diarize.Provider by executing the pyannote sidecar
// once per request. It holds no cross-request state and is safe for
// concurrent use.
type Pipeline struct {
	binary string
	model  string
	token  string
	runner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// New creates a Pipeline using the given Hugging Face token. It fails when
// the token is empty or the sidecar binary cannot be resolved — the
// capability decision is made here, once, at startup.
func New(token string, opts ...Option) (*Pipeline, error) {
	if token == "" {
		return nil, errors.New("pyannote: access token required")
	}
	p := &Pipeline{
		binary: DefaultBinary,
		model:  DefaultModel,
		token:  token,
	}
	for _, o := range opts {
		o(p)
	}
	if p.runner == nil {
		resolved, err := exec.LookPath(p.binary)
		if err != nil {
			return nil, fmt.Errorf("pyannote: sidecar binary %q not found: %w", p.binary, err)
		}
		p.binary = resolved
	}
	return p, nil
}

// Diarize runs the sidecar on the audio file at path and returns the
// speaker segments ordered by start time, with times rounded to
// millisecond precision.
func (p *Pipeline) Diarize(ctx context.Context, path string) ([]diarize.Segment, error) {
	args := []string{
		"--model", p.model,
		"--output-format", "json",
		path,
	}

	start := time.Now()
	out, err := p.run(ctx, args)
	if err != nil {
		return nil, &diarize.InferenceError{Pipeline: p.model, Cause: err}
	}

	var raw []diarize.Segment
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, &diarize.InferenceError{Pipeline: p.model, Cause: fmt.Errorf("parse sidecar output: %w", err)}
	}

	segments := make([]diarize.Segment, 0, len(raw))
	for _, s := range raw {
		s.Start = roundMs(s.Start)
		s.End = roundMs(s.End)
		if s.End <= s.Start {
			continue
		}
		segments = append(segments, s)
	}
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })

	slog.Debug("diarization complete",
		"model", p.model,
		"segments", len(segments),
		"elapsed", time.Since(start),
	)
	return segments, nil
}

// ModelID returns the diarization pipeline identifier.
func (p *Pipeline) ModelID() string { return p.model }

// run executes the sidecar, passing the token through the child
// environment rather than argv so it never shows up in process listings.
func (p *Pipeline) run(ctx context.Context, args []string) ([]byte, error) {
	if p.runner != nil {
		return p.runner(ctx, p.binary, args...)
	}

	cmd := exec.CommandContext(ctx, p.binary, args...) //nolint:gosec
	cmd.Env = append(os.Environ(), "HF_TOKEN="+p.token)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s: %w: %s", p.binary, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", p.binary, err)
	}
	return out, nil
}

func roundMs(s float64) float64 {
	return math.Round(s*1000) / 1000
}
