package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jvbeek/palimpsest/internal/align"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Correction engine parameters
	cor := cfg.Correction
	if cor.NGramLength < 0 {
		errs = append(errs, fmt.Errorf("correction.ngram_length %d must not be negative", cor.NGramLength))
	}
	if cor.DistancePerWord < 0 {
		errs = append(errs, fmt.Errorf("correction.distance_per_word %d must not be negative", cor.DistancePerWord))
	}
	if cor.MaxProportionalDistance < 0 || cor.MaxProportionalDistance > 1 {
		errs = append(errs, fmt.Errorf("correction.max_proportional_distance %.2f is out of range [0, 1]", cor.MaxProportionalDistance))
	}
	if cor.FallbackProportionalDistance < 0 || cor.FallbackProportionalDistance > 1 {
		errs = append(errs, fmt.Errorf("correction.fallback_proportional_distance %.2f is out of range [0, 1]", cor.FallbackProportionalDistance))
	}
	if (cor.FallbackMinLength != 0) != (cor.FallbackMaxLength != 0) {
		errs = append(errs, errors.New("correction.fallback_min_length and fallback_max_length must be set together"))
	}
	if cor.FallbackMinLength != 0 && cor.FallbackMaxLength != 0 {
		if cor.FallbackMinLength < 1 {
			errs = append(errs, fmt.Errorf("correction.fallback_min_length %d must be at least 1", cor.FallbackMinLength))
		}
		if cor.FallbackMaxLength < cor.FallbackMinLength {
			errs = append(errs, fmt.Errorf("correction.fallback_max_length %d is smaller than fallback_min_length %d", cor.FallbackMaxLength, cor.FallbackMinLength))
		}
	}
	if cor.Unmatched != "" && !align.UnmatchedPolicy(cor.Unmatched).IsValid() {
		errs = append(errs, fmt.Errorf("correction.unmatched %q is invalid; valid values: bracket, keep", cor.Unmatched))
	}

	// Auth ↔ database cross-validation
	if cfg.Auth.Enabled && cfg.Database.DSN == "" && len(cfg.Auth.Keys) == 0 {
		errs = append(errs, errors.New("auth.enabled requires database.dsn or at least one entry in auth.keys"))
	}
	for i, key := range cfg.Auth.Keys {
		if key.Secret == "" {
			errs = append(errs, fmt.Errorf("auth.keys[%d].secret is required", i))
		}
	}
	if !cfg.Auth.Enabled && len(cfg.Auth.Keys) > 0 {
		slog.Warn("auth.keys are configured but auth.enabled is false; requests will not be authenticated")
	}
	if cfg.Database.DSN != "" && len(cfg.Auth.Keys) > 0 {
		slog.Warn("both database.dsn and auth.keys are configured; static keys are ignored in favour of the database")
	}

	return errors.Join(errs...)
}
