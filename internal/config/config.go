// Package config provides the configuration schema, loader, and environment
// overlay for the speakerd service.
package config

import (
	"github.com/voxmem/speakerd/pkg/audio"
	"github.com/voxmem/speakerd/pkg/provider/diarize/pyannote"
	"github.com/voxmem/speakerd/pkg/voiceprint"
)

// LogLevel controls log verbosity for the speakerd server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for speakerd.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader]
// and then overlaid with environment variables via [ApplyEnv].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Audio       AudioConfig       `yaml:"audio"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Diarization DiarizationConfig `yaml:"diarization"`
	Compare     CompareConfig     `yaml:"compare"`
}

// ServerConfig holds network and logging settings for the speakerd server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":5050").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins lists cross-origin caller hosts permitted to reach the
	// API from browsers. Origins not in the list receive no CORS headers.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxUploadBytes caps the size of an uploaded audio file.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// InferenceWorkers bounds concurrent model inference calls.
	// Zero means one worker per CPU.
	InferenceWorkers int `yaml:"inference_workers"`
}

// AudioConfig controls upload decoding.
type AudioConfig struct {
	// FFmpegBinary is the decoder executable. Defaults to "ffmpeg" on $PATH.
	FFmpegBinary string `yaml:"ffmpeg_binary"`

	// Extensions is the allow-list of accepted upload extensions.
	Extensions []string `yaml:"extensions"`
}

// EmbeddingConfig selects the speaker embedding backend.
type EmbeddingConfig struct {
	// ServerURL is the address of the embedding model server.
	ServerURL string `yaml:"server_url"`

	// Model is the embedding model identifier, for logging and health output.
	Model string `yaml:"model"`

	// Dimensions is the expected embedding vector length.
	Dimensions int `yaml:"dimensions"`
}

// DiarizationConfig selects the optional diarization pipeline. The
// capability is gated on the HF_TOKEN environment variable; without it the
// pipeline is never constructed and these settings are inert.
type DiarizationConfig struct {
	// Binary is the pyannote sidecar executable.
	Binary string `yaml:"binary"`

	// Model is the pretrained diarization pipeline identifier.
	Model string `yaml:"model"`

	// HFToken is the Hugging Face access token gating the pretrained
	// pipeline. Environment-only (HF_TOKEN); never read from the YAML file
	// so the credential cannot end up committed with the config.
	HFToken string `yaml:"-" env:"HF_TOKEN"`
}

// CompareConfig tunes voiceprint comparison.
type CompareConfig struct {
	// Threshold is the cosine similarity at or above which two embeddings
	// count as the same speaker.
	Threshold float64 `yaml:"threshold"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero-valued fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":5050"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = []string{
			"http://localhost:3000",
			"http://localhost:5173",
			"http://127.0.0.1:3000",
		}
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 25 << 20
	}
	if cfg.Audio.FFmpegBinary == "" {
		cfg.Audio.FFmpegBinary = "ffmpeg"
	}
	if cfg.Audio.Extensions == nil {
		cfg.Audio.Extensions = append([]string(nil), audio.DefaultExtensions...)
	}
	if cfg.Embedding.ServerURL == "" {
		cfg.Embedding.ServerURL = "http://localhost:5051"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "speechbrain/spkrec-ecapa-voxceleb"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 192
	}
	if cfg.Diarization.Binary == "" {
		cfg.Diarization.Binary = pyannote.DefaultBinary
	}
	if cfg.Diarization.Model == "" {
		cfg.Diarization.Model = pyannote.DefaultModel
	}
	if cfg.Compare.Threshold == 0 {
		cfg.Compare.Threshold = voiceprint.DefaultThreshold
	}
}
