package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOverrides are the environment variables recognised on top of the
// config file. Environment values win over file values. The HF credential
// is deliberately env-only.
type envOverrides struct {
	HFToken      string `env:"HF_TOKEN"`
	ListenAddr   string `env:"SPEAKERD_LISTEN_ADDR"`
	LogLevel     string `env:"SPEAKERD_LOG_LEVEL"`
	EmbeddingURL string `env:"SPEAKERD_EMBEDDING_URL"`
	FFmpegBinary string `env:"SPEAKERD_FFMPEG_BINARY"`
}

// ApplyEnv overlays recognised environment variables onto cfg and
// re-validates. Call after [Load]/[Default], before wiring the application.
func ApplyEnv(cfg *Config) error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}

	if overrides.HFToken != "" {
		cfg.Diarization.HFToken = overrides.HFToken
	}
	if overrides.ListenAddr != "" {
		cfg.Server.ListenAddr = overrides.ListenAddr
	}
	if overrides.LogLevel != "" {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(overrides.LogLevel))
	}
	if overrides.EmbeddingURL != "" {
		cfg.Embedding.ServerURL = overrides.EmbeddingURL
	}
	if overrides.FFmpegBinary != "" {
		cfg.Audio.FFmpegBinary = overrides.FFmpegBinary
	}

	return Validate(cfg)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must not be negative"))
	}
	if cfg.Server.InferenceWorkers < 0 {
		errs = append(errs, fmt.Errorf("server.inference_workers must not be negative"))
	}
	if cfg.Embedding.ServerURL == "" {
		errs = append(errs, fmt.Errorf("embedding.server_url must not be empty"))
	}
	if cfg.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive"))
	}
	if len(cfg.Audio.Extensions) == 0 {
		errs = append(errs, fmt.Errorf("audio.extensions must list at least one accepted extension"))
	}
	if cfg.Compare.Threshold <= 0 || cfg.Compare.Threshold > 1 {
		errs = append(errs, fmt.Errorf("compare.threshold %v is out of range (0, 1]", cfg.Compare.Threshold))
	}

	return errors.Join(errs...)
}
