// Package app wires all speakerd subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run loads the models and serves HTTP until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithEncoder, WithDiarizer, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/voxmem/speakerd/internal/config"
	"github.com/voxmem/speakerd/internal/httpapi"
	"github.com/voxmem/speakerd/internal/infer"
	"github.com/voxmem/speakerd/internal/observe"
	"github.com/voxmem/speakerd/internal/service"
	"github.com/voxmem/speakerd/pkg/audio"
	"github.com/voxmem/speakerd/pkg/provider/diarize"
	"github.com/voxmem/speakerd/pkg/provider/diarize/pyannote"
	"github.com/voxmem/speakerd/pkg/provider/speaker"
	"github.com/voxmem/speakerd/pkg/provider/speaker/ecapahttp"
	"github.com/voxmem/speakerd/pkg/voiceprint"
)

// App owns all subsystem lifetimes and serves the speaker identification API.
type App struct {
	cfg   *config.Config
	state *service.State

	ingestor *audio.Ingestor
	encoder  speaker.Provider
	diarizer diarize.Provider
	metrics  *observe.Metrics

	server *http.Server

	// mu guards listener, which Run sets from its own goroutine.
	mu       sync.Mutex
	listener net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithEncoder injects an embedding provider instead of creating one from config.
func WithEncoder(p speaker.Provider) Option {
	return func(a *App) { a.encoder = p }
}

// WithDiarizer injects a diarization provider instead of creating one from config.
func WithDiarizer(p diarize.Provider) Option {
	return func(a *App) { a.diarizer = p }
}

// WithIngestor injects an audio ingestor instead of creating one from config.
func WithIngestor(g *audio.Ingestor) Option {
	return func(a *App) { a.ingestor = g }
}

// WithMetrics injects a metrics instance instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// Diarization is strictly optional: when no Hugging Face token is configured
// the capability stays disabled and /diarize answers 503, which is a
// deployment choice rather than an error. A configured token with a missing
// sidecar binary logs a warning and likewise disables the capability.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:   cfg,
		state: service.NewState(),
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Audio ingestion ───────────────────────────────────────────────
	if a.ingestor == nil {
		a.ingestor = audio.NewIngestor(
			audio.WithFFmpegBinary(cfg.Audio.FFmpegBinary),
			audio.WithExtensions(cfg.Audio.Extensions),
		)
	}

	// ── 2. Embedding backend ─────────────────────────────────────────────
	if a.encoder == nil {
		enc, err := ecapahttp.New(cfg.Embedding.ServerURL,
			ecapahttp.WithModelID(cfg.Embedding.Model),
			ecapahttp.WithDimensions(cfg.Embedding.Dimensions),
		)
		if err != nil {
			return nil, fmt.Errorf("app: create embedding provider: %w", err)
		}
		a.encoder = enc
	}

	// ── 3. Diarization (optional) ────────────────────────────────────────
	if a.diarizer == nil {
		if cfg.Diarization.HFToken == "" {
			slog.Info("diarization disabled: HF_TOKEN not set")
		} else {
			dia, err := pyannote.New(cfg.Diarization.HFToken,
				pyannote.WithBinary(cfg.Diarization.Binary),
				pyannote.WithModel(cfg.Diarization.Model),
			)
			if err != nil {
				slog.Warn("diarization disabled", "err", err)
			} else {
				a.diarizer = dia
			}
		}
	}

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	api := httpapi.New(httpapi.Config{
		State:          a.state,
		Ingestor:       a.ingestor,
		Encoder:        a.encoder,
		Diarizer:       a.diarizer,
		Comparator:     voiceprint.NewComparator(cfg.Compare.Threshold),
		Pool:           infer.NewPool(cfg.Server.InferenceWorkers),
		Metrics:        a.metrics,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	a.server = &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run loads the embedding model, binds the listener, and serves HTTP until
// ctx is cancelled or the server fails.
//
// The model load is a startup barrier: the listener is not bound until Load
// returns, so no request can ever observe a partially loaded model. When ctx
// is done, Run returns context.Canceled; call Shutdown to drain in-flight
// requests.
func (a *App) Run(ctx context.Context) error {
	// ── Load models before accepting traffic ─────────────────────────────
	a.state.MarkLoading()
	slog.Info("loading embedding model", "model", a.encoder.ModelID())

	start := time.Now()
	if err := a.encoder.Load(ctx); err != nil {
		return fmt.Errorf("app: load embedding model: %w", err)
	}
	a.state.MarkReady()
	slog.Info("embedding model ready",
		"model", a.encoder.ModelID(),
		"dimensions", a.encoder.Dimensions(),
		"took", time.Since(start),
	)

	if a.diarizer != nil {
		a.state.EnableDiarization()
		slog.Info("diarization available", "pipeline", a.diarizer.ModelID())
	}

	// ── Bind and serve ───────────────────────────────────────────────────
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen on %s: %w", a.cfg.Server.ListenAddr, err)
	}
	a.mu.Lock()
	a.listener = ln
	a.mu.Unlock()
	slog.Info("listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the bound listen address, or "" before Run binds the listener.
// Useful with a ":0" listen address in tests.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// State exposes the model state machine, primarily for tests.
func (a *App) State() *service.State {
	return a.state
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown gracefully stops the HTTP server, draining in-flight requests
// until ctx expires, then runs all registered closers. Safe to call more
// than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		var errs []error
		if a.server != nil {
			if e := a.server.Shutdown(ctx); e != nil {
				errs = append(errs, e)
			}
		}
		for _, c := range a.closers {
			if e := c(); e != nil {
				errs = append(errs, e)
			}
		}
		err = errors.Join(errs...)
	})
	return err
}
