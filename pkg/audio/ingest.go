package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultExtensions is the default allow-list of accepted filename
// extensions. Entries are lowercase and include the leading dot.
var DefaultExtensions = []string{".wav", ".mp3", ".ogg", ".webm", ".m4a", ".flac", ".aac"}

// defaultFFmpegBinary is resolved via $PATH unless overridden.
const defaultFFmpegBinary = "ffmpeg"

// IngestorOption is a functional option for configuring an [Ingestor].
type IngestorOption func(*Ingestor)

// WithFFmpegBinary overrides the ffmpeg binary path. Defaults to "ffmpeg"
// resolved via $PATH.
func WithFFmpegBinary(path string) IngestorOption {
	return func(g *Ingestor) {
		if path != "" {
			g.ffmpegBinary = path
		}
	}
}

// WithExtensions replaces the accepted extension allow-list. Entries are
// normalised to lowercase with a leading dot.
func WithExtensions(exts []string) IngestorOption {
	return func(g *Ingestor) {
		if len(exts) == 0 {
			return
		}
		g.allowed = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			g.allowed[normaliseExt(ext)] = struct{}{}
		}
	}
}

// WithDecodeRunner replaces the decoder subprocess invocation. The runner
// receives the ffmpeg argument list and returns the decoder's stdout. Used
// by tests to avoid a real ffmpeg dependency.
func WithDecodeRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) IngestorOption {
	return func(g *Ingestor) {
		g.runner = runner
	}
}

// Ingestor decodes uploaded audio bytes into canonical [Waveform] values:
// mono, CanonicalRate, float32 samples. It is stateless apart from its
// configuration and safe for concurrent use.
type Ingestor struct {
	ffmpegBinary string
	allowed      map[string]struct{}
	runner       func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewIngestor creates an Ingestor with the default extension allow-list and
// ffmpeg binary. Use options to override either.
func NewIngestor(opts ...IngestorOption) *Ingestor {
	g := &Ingestor{ffmpegBinary: defaultFFmpegBinary}
	WithExtensions(DefaultExtensions)(g)
	for _, o := range opts {
		o(g)
	}
	return g
}

// Supported reports whether the filename's extension is in the allow-list.
func (g *Ingestor) Supported(filename string) bool {
	_, ok := g.allowed[normaliseExt(filepath.Ext(filename))]
	return ok
}

// Ingest decodes data into a mono waveform at [CanonicalRate].
//
// The filename's extension must be in the allow-list; otherwise Ingest fails
// with [ErrUnsupportedFormat] before any decoding is attempted. The bytes
// are written to a temporary file that is removed on every exit path, and
// decoded by the external ffmpeg binary. Decoder failures are returned as a
// [*DecodeError]; no partial waveform is ever returned.
func (g *Ingestor) Ingest(ctx context.Context, data []byte, filename string) (Waveform, error) {
	ext := normaliseExt(filepath.Ext(filename))
	if _, ok := g.allowed[ext]; !ok {
		return Waveform{}, fmt.Errorf("audio: extension %q: %w", ext, ErrUnsupportedFormat)
	}

	tmpPath, cleanup, err := writeTemp(data, ext)
	if err != nil {
		return Waveform{}, fmt.Errorf("audio: stage upload: %w", err)
	}
	defer cleanup()

	start := time.Now()
	raw, err := g.decode(ctx, tmpPath)
	if err != nil {
		return Waveform{}, &DecodeError{Filename: filename, Cause: err}
	}

	pcm, rate, channels, err := decodeWAV(raw)
	if err != nil {
		return Waveform{}, &DecodeError{Filename: filename, Cause: err}
	}

	samples := pcmToFloat32Mono(pcm, channels)
	if rate != CanonicalRate {
		samples, err = resampleMono(samples, rate, CanonicalRate)
		if err != nil {
			return Waveform{}, &DecodeError{Filename: filename, Cause: err}
		}
	}
	if len(samples) == 0 {
		return Waveform{}, &DecodeError{Filename: filename, Cause: fmt.Errorf("decoded stream contains no samples")}
	}

	slog.Debug("audio ingested",
		"filename", filename,
		"native_rate", rate,
		"native_channels", channels,
		"samples", len(samples),
		"elapsed", time.Since(start),
	)

	return Waveform{Samples: samples, Rate: CanonicalRate}, nil
}

// decode runs ffmpeg on the staged file and returns a WAV stream at the
// source's native sample rate and channel count.
func (g *Ingestor) decode(ctx context.Context, path string) ([]byte, error) {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-vn",
		"-sn",
		"-dn",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"-",
	}
	if g.runner != nil {
		return g.runner(ctx, g.ffmpegBinary, args...)
	}

	cmd := exec.CommandContext(ctx, g.ffmpegBinary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// StageTemp writes data to a temporary file whose suffix matches filename's
// extension (".wav" when the filename has none), for consumers that need the
// upload on disk, such as the diarization pipeline. The returned cleanup
// func removes the file and must be deferred by the caller.
func StageTemp(data []byte, filename string) (string, func(), error) {
	ext := normaliseExt(filepath.Ext(filename))
	if ext == "" {
		ext = ".wav"
	}
	return writeTemp(data, ext)
}

// writeTemp stages data in a temporary file with the given extension. The
// returned cleanup func removes the file and must be deferred by the caller.
func writeTemp(data []byte, ext string) (string, func(), error) {
	f, err := os.CreateTemp("", "speakerd-*"+ext)
	if err != nil {
		return "", nil, err
	}
	path := f.Name()
	cleanup := func() { os.Remove(path) }

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

func normaliseExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
