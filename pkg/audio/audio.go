// Package audio converts uploaded audio files into canonical waveforms for
// speaker model inference.
//
// The central type is [Ingestor], which decodes arbitrary container/codec
// formats via an external ffmpeg binary, downmixes to mono, and resamples to
// the canonical 16 kHz rate. The resulting [Waveform] is what the embedding
// model consumes.
package audio

import (
	"errors"
	"fmt"
)

// CanonicalRate is the sample rate (Hz) every waveform is normalised to
// before model inference.
const CanonicalRate = 16000

// ErrUnsupportedFormat is returned by [Ingestor.Ingest] when the filename
// extension is not in the allow-list. Use errors.Is to detect it.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// DecodeError indicates the external decoder could not parse the uploaded
// bytes as audio. The underlying cause (including decoder stderr output) is
// available via Unwrap.
type DecodeError struct {
	Filename string
	Cause    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio: decode %q: %v", e.Filename, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// Waveform is a mono audio signal at a fixed sample rate. It is derived from
// an uploaded file by [Ingestor.Ingest], consumed within a single request,
// and never shared across requests.
type Waveform struct {
	// Samples are normalised to [-1.0, 1.0].
	Samples []float32

	// Rate is the sample rate in Hz. Always CanonicalRate after ingestion.
	Rate int
}

// Duration returns the waveform length in seconds.
func (w Waveform) Duration() float64 {
	if w.Rate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.Rate)
}

// WAV renders the waveform as a mono 16-bit RIFF/WAV byte stream, suitable
// for handing to a model server as a file upload.
func (w Waveform) WAV() []byte {
	return EncodeWAV(float32ToPCM(w.Samples), w.Rate, 1)
}
