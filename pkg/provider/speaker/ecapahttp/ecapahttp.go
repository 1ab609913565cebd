// Package ecapahttp provides a speaker.Provider backed by an ECAPA-TDNN
// model server.
//
// It connects to a running embedding server (which holds the speechbrain
// ECAPA-TDNN weights in memory and exposes a small REST API) and submits
// each waveform as a WAV file in a multipart request. The server loads its
// weights once at startup; Load polls the server's readiness endpoint and
// blocks until the model reports loaded.
//
// Usage:
//
//	p, err := ecapahttp.New("http://localhost:5051")
//	if err := p.Load(ctx); err != nil { ... }
//	vec, err := p.Encode(ctx, waveform)
package ecapahttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/voxmem/speakerd/pkg/audio"
	"github.com/voxmem/speakerd/pkg/provider/speaker"
)

const (
	defaultModelID    = "speechbrain/spkrec-ecapa-voxceleb"
	defaultDimensions = 192

	// defaultPollInterval is the delay between readiness probes during Load.
	defaultPollInterval = 500 * time.Millisecond
)

// Compile-time assertion that Provider implements speaker.Provider.
var _ speaker.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModelID overrides the model identifier reported by ModelID. Defaults
// to "speechbrain/spkrec-ecapa-voxceleb".
func WithModelID(id string) Option {
	return func(p *Provider) {
		if id != "" {
			p.modelID = id
		}
	}
}

// WithDimensions overrides the expected embedding dimensionality. Defaults
// to 192 (ECAPA-TDNN). Responses with a different length are rejected.
func WithDimensions(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.dimensions = n
		}
	}
}

// WithHTTPClient replaces the HTTP client, e.g. to adjust timeouts.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithPollInterval sets the delay between readiness probes during Load.
func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// Provider implements speaker.Provider backed by an embedding model server.
// It is safe for concurrent use once Load has returned.
type Provider struct {
	serverURL    string
	modelID      string
	dimensions   int
	pollInterval time.Duration
	httpClient   *http.Client

	ready atomic.Bool
}

// New creates a Provider that connects to the embedding server at serverURL
// (e.g., "http://localhost:5051"). serverURL must be non-empty. The model
// is not probed until Load is called.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("ecapahttp: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:    serverURL,
		modelID:      defaultModelID,
		dimensions:   defaultDimensions,
		pollInterval: defaultPollInterval,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Load blocks until the model server reports its weights loaded, polling
// the readiness endpoint. It returns ctx.Err when cancelled first. Load is
// intended to run exactly once, before the HTTP listener starts accepting
// traffic.
func (p *Provider) Load(ctx context.Context) error {
	start := time.Now()
	for {
		loaded, err := p.probe(ctx)
		if err == nil && loaded {
			p.ready.Store(true)
			slog.Info("embedding model ready", "model", p.modelID, "elapsed", time.Since(start))
			return nil
		}
		if err != nil {
			slog.Debug("embedding server not reachable yet", "err", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("ecapahttp: load interrupted: %w", ctx.Err())
		case <-time.After(p.pollInterval):
		}
	}
}

// probe asks the model server whether its weights are loaded.
func (p *Provider) probe(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+"/health", nil)
	if err != nil {
		return false, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("ecapahttp: health returned HTTP %d", resp.StatusCode)
	}

	var status struct {
		ModelLoaded bool `json:"model_loaded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("ecapahttp: parse health response: %w", err)
	}
	return status.ModelLoaded, nil
}

// Ready reports whether Load has completed successfully.
func (p *Provider) Ready() bool { return p.ready.Load() }

// Encode submits w as a single-item batch and returns the model's output
// vector. The server computes the embedding from the exact sample data, so
// identical waveforms yield identical vectors.
func (p *Provider) Encode(ctx context.Context, w audio.Waveform) ([]float32, error) {
	if !p.ready.Load() {
		return nil, speaker.ErrNotLoaded
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, &speaker.InferenceError{Model: p.modelID, Cause: fmt.Errorf("create form file: %w", err)}
	}
	if _, err := fw.Write(w.WAV()); err != nil {
		return nil, &speaker.InferenceError{Model: p.modelID, Cause: fmt.Errorf("write wav data: %w", err)}
	}
	if err := mw.Close(); err != nil {
		return nil, &speaker.InferenceError{Model: p.modelID, Cause: fmt.Errorf("close multipart writer: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/embed", &body)
	if err != nil {
		return nil, &speaker.InferenceError{Model: p.modelID, Cause: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &speaker.InferenceError{Model: p.modelID, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &speaker.InferenceError{
			Model: p.modelID,
			Cause: fmt.Errorf("server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg)),
		}
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &speaker.InferenceError{Model: p.modelID, Cause: fmt.Errorf("parse response: %w", err)}
	}
	if len(result.Embedding) != p.dimensions {
		return nil, &speaker.InferenceError{
			Model: p.modelID,
			Cause: fmt.Errorf("embedding has %d dimensions, want %d", len(result.Embedding), p.dimensions),
		}
	}
	return result.Embedding, nil
}

// Dimensions returns the fixed embedding vector length.
func (p *Provider) Dimensions() int { return p.dimensions }

// ModelID returns the embedding model identifier.
func (p *Provider) ModelID() string { return p.modelID }
