// Package config provides configuration loading and validation for the retry
// governor. Settings live under a `governor:` block in a YAML file; every field
// is optional and falls back to a default.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default governor settings.
const (
	DefaultMaxRetries              = 20
	DefaultBaseDelay               = 1 * time.Second
	DefaultMaxDelay                = 300 * time.Second
	DefaultJitterFactor            = 0.25
	DefaultCircuitBreakerThreshold = 10
	DefaultCircuitBreakerTimeout   = 300 * time.Second
)

// Duration wraps time.Duration so YAML can carry either a Go duration string
// ("300s", "5m") or a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs float64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value at line %d", value.Line)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// GovernorCfg holds the retry/backoff/circuit-breaker settings for one governor.
type GovernorCfg struct {
	MaxRetries              int      `yaml:"max_retries"`
	BaseDelay               Duration `yaml:"base_delay"`
	MaxDelay                Duration `yaml:"max_delay"`
	JitterFactor            float64  `yaml:"jitter_factor"`
	CircuitBreakerThreshold int      `yaml:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   Duration `yaml:"circuit_breaker_timeout"`
	// Provider error vocabulary varies; both sets are overridable.
	RateLimitStatusCodes []int    `yaml:"rate_limit_status_codes"`
	RateLimitKeywords    []string `yaml:"rate_limit_keywords"`
}

// Config is the root of the governor YAML configuration file.
type Config struct {
	Governor GovernorCfg `yaml:"governor"`
}

// DefaultGovernorCfg returns the default governor settings.
func DefaultGovernorCfg() GovernorCfg {
	return GovernorCfg{
		MaxRetries:              DefaultMaxRetries,
		BaseDelay:               Duration(DefaultBaseDelay),
		MaxDelay:                Duration(DefaultMaxDelay),
		JitterFactor:            DefaultJitterFactor,
		CircuitBreakerThreshold: DefaultCircuitBreakerThreshold,
		CircuitBreakerTimeout:   Duration(DefaultCircuitBreakerTimeout),
	}
}

// Default returns a config populated with defaults.
func Default() *Config {
	return &Config{Governor: DefaultGovernorCfg()}
}

// Load reads and validates a YAML config file. Fields absent from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	g := &c.Governor

	if g.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", g.MaxRetries)
	}
	if g.BaseDelay.Std() <= 0 {
		return fmt.Errorf("base_delay must be positive, got %s", g.BaseDelay.Std())
	}
	if g.MaxDelay.Std() < g.BaseDelay.Std() {
		return fmt.Errorf("max_delay %s must be >= base_delay %s", g.MaxDelay.Std(), g.BaseDelay.Std())
	}
	if g.JitterFactor < 0 || g.JitterFactor > 1 {
		return fmt.Errorf("jitter_factor must be in [0, 1], got %g", g.JitterFactor)
	}
	if g.CircuitBreakerThreshold < 1 {
		return fmt.Errorf("circuit_breaker_threshold must be >= 1, got %d", g.CircuitBreakerThreshold)
	}
	if g.CircuitBreakerTimeout.Std() <= 0 {
		return fmt.Errorf("circuit_breaker_timeout must be positive, got %s", g.CircuitBreakerTimeout.Std())
	}
	return nil
}
