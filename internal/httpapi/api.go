// Package httpapi exposes the speaker identification HTTP/JSON surface.
//
// The API struct owns the request handlers for /embed, /compare and /diarize
// and assembles them, together with the health and metrics endpoints, into a
// single [http.Handler] wrapped in CORS and observability middleware.
//
// Handlers translate the domain error taxonomy into HTTP status codes:
// validation failures (unsupported format, undecodable bytes, embedding shape
// mismatch) map to 400, readiness failures (model not loaded, diarization not
// configured) map to 503, and model runtime failures map to 500.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxmem/speakerd/internal/health"
	"github.com/voxmem/speakerd/internal/infer"
	"github.com/voxmem/speakerd/internal/observe"
	"github.com/voxmem/speakerd/internal/resilience"
	"github.com/voxmem/speakerd/internal/service"
	"github.com/voxmem/speakerd/pkg/audio"
	"github.com/voxmem/speakerd/pkg/provider/diarize"
	"github.com/voxmem/speakerd/pkg/provider/speaker"
	"github.com/voxmem/speakerd/pkg/voiceprint"
)

// DefaultMaxUploadBytes caps multipart upload size when the config does not
// specify one.
const DefaultMaxUploadBytes = 25 << 20

// Request-level validation errors. These never leave the package except as
// HTTP 400 responses.
var (
	errMissingFile = errors.New(`multipart form field "file" is required`)
	errBadJSON     = errors.New("request body is not valid JSON")
)

// Config holds the dependencies and limits for the API surface.
type Config struct {
	// State is the process-wide model state machine. Required.
	State *service.State

	// Ingestor decodes uploaded blobs into canonical waveforms. Required
	// for /embed.
	Ingestor *audio.Ingestor

	// Encoder computes speaker embeddings. Required for /embed.
	Encoder speaker.Provider

	// Diarizer splits recordings into speaker turns. Nil when diarization
	// is not configured; /diarize then answers 503 on every call.
	Diarizer diarize.Provider

	// Comparator scores embedding pairs. Defaults to the standard 0.80
	// threshold when nil.
	Comparator *voiceprint.Comparator

	// Pool bounds concurrent inference calls. Defaults to a GOMAXPROCS
	// sized pool when nil.
	Pool *infer.Pool

	// Metrics receives per-stage instrumentation. Defaults to
	// [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics

	// Breaker guards the embedding backend. A dead model server trips it
	// after consecutive failures and /embed fails fast with 503 until the
	// backend recovers. Defaults to a breaker with standard tuning.
	Breaker *resilience.CircuitBreaker

	// AllowedOrigins lists browser origins granted CORS access.
	AllowedOrigins []string

	// MaxUploadBytes caps the size of multipart uploads. Defaults to
	// [DefaultMaxUploadBytes] when zero.
	MaxUploadBytes int64
}

// API serves the speaker identification endpoints. Construct with [New].
type API struct {
	cfg Config
}

// New creates an API, filling in defaults for optional dependencies.
func New(cfg Config) *API {
	if cfg.State == nil {
		cfg.State = service.NewState()
	}
	if cfg.Ingestor == nil {
		cfg.Ingestor = audio.NewIngestor()
	}
	if cfg.Comparator == nil {
		cfg.Comparator = voiceprint.NewComparator(voiceprint.DefaultThreshold)
	}
	if cfg.Pool == nil {
		cfg.Pool = infer.NewPool(0)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Breaker == nil {
		cfg.Breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: "embedding",
		})
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &API{cfg: cfg}
}

// Handler assembles the complete HTTP surface: domain routes, health and
// metrics endpoints, CORS, and the tracing/metrics/logging middleware.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", health.Status(a.cfg.State))
	probes := health.New(
		health.Checker{Name: "embedding", Check: a.checkEmbedding},
		health.Checker{Name: "diarization", Check: a.checkDiarization},
	)
	probes.Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /embed", a.handleEmbed)
	mux.HandleFunc("POST /compare", a.handleCompare)
	mux.HandleFunc("POST /diarize", a.handleDiarize)

	var handler http.Handler = mux
	handler = CORS(a.cfg.AllowedOrigins)(handler)
	handler = observe.Middleware(a.cfg.Metrics)(handler)
	return handler
}

// checkEmbedding is the readiness check for the embedding model.
func (a *API) checkEmbedding(context.Context) error {
	if !a.cfg.State.ModelsLoaded() {
		return errors.New("embedding model not loaded")
	}
	return nil
}

// checkDiarization reports diarization availability. An unset credential is
// a deliberate deployment choice, not a failure, so this only fails when a
// diarizer was configured but never became available.
func (a *API) checkDiarization(context.Context) error {
	if a.cfg.Diarizer != nil && !a.cfg.State.DiarizationAvailable() {
		return errors.New("diarization pipeline not available")
	}
	return nil
}

// ─── Handlers ────────────────────────────────────────────────────────────────

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	DurationS float64   `json:"duration_s"`
}

func (a *API) handleEmbed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !a.cfg.State.ModelsLoaded() {
		a.writeError(w, r, speaker.ErrNotLoaded)
		return
	}

	data, filename, err := a.readUpload(w, r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	ingestStart := time.Now()
	wave, err := a.cfg.Ingestor.Ingest(ctx, data, filename)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.cfg.Metrics.IngestDuration.Record(ctx, time.Since(ingestStart).Seconds())

	var embedding []float32
	err = a.cfg.Breaker.Execute(func() error {
		return a.cfg.Pool.Do(ctx, func() error {
			a.cfg.Metrics.ActiveInferences.Add(ctx, 1)
			defer a.cfg.Metrics.ActiveInferences.Add(ctx, -1)

			start := time.Now()
			var encErr error
			embedding, encErr = a.cfg.Encoder.Encode(ctx, wave)
			a.cfg.Metrics.EncodeDuration.Record(ctx, time.Since(start).Seconds())
			return encErr
		})
	})
	if err != nil {
		a.cfg.Metrics.RecordInference(ctx, "encode", "error")
		a.cfg.Metrics.RecordInferenceError(ctx, "encode")
		a.writeError(w, r, err)
		return
	}
	a.cfg.Metrics.RecordInference(ctx, "encode", "ok")

	writeJSON(w, http.StatusOK, embedResponse{
		Embedding: embedding,
		DurationS: roundTo(wave.Duration(), 3),
	})
}

type compareRequest struct {
	EmbeddingA []float32 `json:"embedding_a"`
	EmbeddingB []float32 `json:"embedding_b"`
}

type compareResponse struct {
	Similarity float64 `json:"similarity"`
	IsMatch    bool    `json:"is_match"`
}

func (a *API) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	body := http.MaxBytesReader(w, r.Body, a.cfg.MaxUploadBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		a.writeError(w, r, errBadJSON)
		return
	}

	res, err := a.cfg.Comparator.Compare(req.EmbeddingA, req.EmbeddingB)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, compareResponse{
		Similarity: res.Similarity,
		IsMatch:    res.IsMatch,
	})
}

type diarizeResponse struct {
	Segments []diarize.Segment `json:"segments"`
}

func (a *API) handleDiarize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if a.cfg.Diarizer == nil || !a.cfg.State.DiarizationAvailable() {
		a.writeError(w, r, diarize.ErrUnavailable)
		return
	}

	data, filename, err := a.readUpload(w, r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	// The sidecar reads from disk; stage the blob in a temp file scoped to
	// this request.
	path, cleanup, err := audio.StageTemp(data, filename)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	defer cleanup()

	var segments []diarize.Segment
	err = a.cfg.Pool.Do(ctx, func() error {
		a.cfg.Metrics.ActiveInferences.Add(ctx, 1)
		defer a.cfg.Metrics.ActiveInferences.Add(ctx, -1)

		start := time.Now()
		var diaErr error
		segments, diaErr = a.cfg.Diarizer.Diarize(ctx, path)
		a.cfg.Metrics.DiarizeDuration.Record(ctx, time.Since(start).Seconds())
		return diaErr
	})
	if err != nil {
		a.cfg.Metrics.RecordInference(ctx, "diarize", "error")
		a.cfg.Metrics.RecordInferenceError(ctx, "diarize")
		a.writeError(w, r, err)
		return
	}
	a.cfg.Metrics.RecordInference(ctx, "diarize", "ok")

	if segments == nil {
		segments = []diarize.Segment{}
	}
	writeJSON(w, http.StatusOK, diarizeResponse{Segments: segments})
}

// ─── Request / response plumbing ─────────────────────────────────────────────

// readUpload extracts the "file" part of a multipart upload, enforcing the
// configured size cap.
func (a *API) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	if r.ContentLength > a.cfg.MaxUploadBytes {
		return nil, "", &http.MaxBytesError{Limit: a.cfg.MaxUploadBytes}
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, "", maxErr
		}
		return nil, "", errMissingFile
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, "", maxErr
		}
		return nil, "", err
	}

	filename := header.Filename
	if filename == "" {
		filename = "audio.wav"
	}
	return data, filename, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps err onto the HTTP status taxonomy and writes a JSON error
// body. Server-side failures are logged with the underlying cause; client
// errors are the caller's problem and stay at debug level.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path, "err", err)
	} else {
		slog.DebugContext(r.Context(), "request rejected",
			"path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFromError translates the domain error taxonomy into an HTTP status.
func statusFromError(err error) int {
	var (
		decodeErr *audio.DecodeError
		shapeErr  *voiceprint.ShapeError
		maxErr    *http.MaxBytesError
	)
	switch {
	case errors.Is(err, audio.ErrUnsupportedFormat),
		errors.As(err, &decodeErr),
		errors.As(err, &shapeErr),
		errors.Is(err, errMissingFile),
		errors.Is(err, errBadJSON):
		return http.StatusBadRequest
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, speaker.ErrNotLoaded),
		errors.Is(err, diarize.ErrUnavailable),
		errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

// roundTo rounds v to the given number of decimal places.
func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
