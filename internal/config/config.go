package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the intent engine.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Engine      EngineConfig      `yaml:"engine"`
	Thresholds  Thresholds        `yaml:"thresholds"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig defines HTTP server settings.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// EngineConfig defines scheduler loop settings.
type EngineConfig struct {
	UserID             string  `yaml:"user_id"`
	CycleInterval      string  `yaml:"cycle_interval"`
	ErrorBackoff       string  `yaml:"error_backoff"`
	StopTimeout        string  `yaml:"stop_timeout"`
	MiningProbability  float64 `yaml:"mining_probability"`
	PersistProbability float64 `yaml:"persist_probability"`
	PatternFireProb    float64 `yaml:"pattern_fire_probability"`
	MaxAttempts        int     `yaml:"max_attempts"`
	PatternMaxAge      string  `yaml:"pattern_max_age"`
}

// GetCycleInterval returns the sweep interval as a time.Duration.
func (e *EngineConfig) GetCycleInterval() time.Duration {
	return parseDuration(e.CycleInterval, 10*time.Second)
}

// GetErrorBackoff returns the post-error sleep as a time.Duration.
func (e *EngineConfig) GetErrorBackoff() time.Duration {
	return parseDuration(e.ErrorBackoff, 60*time.Second)
}

// GetStopTimeout returns the bounded join timeout for Stop.
func (e *EngineConfig) GetStopTimeout() time.Duration {
	return parseDuration(e.StopTimeout, 2*time.Second)
}

// GetPatternMaxAge returns how long discovered patterns are retained.
func (e *EngineConfig) GetPatternMaxAge() time.Duration {
	return parseDuration(e.PatternMaxAge, 30*24*time.Hour)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// Thresholds gate the engine's confidence-based decision points.
type Thresholds struct {
	AutoComplete float64 `yaml:"auto_complete" json:"auto_complete"`
	Suggestion   float64 `yaml:"suggestion" json:"suggestion"`
	Prediction   float64 `yaml:"prediction" json:"prediction"`
	Routine      float64 `yaml:"routine" json:"routine"`
}

// PersistenceConfig selects and configures the state backend.
type PersistenceConfig struct {
	Backend string      `yaml:"backend"` // file | sqlite | redis | none
	Dir     string      `yaml:"dir"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig defines Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 18700
	}
	if c.Engine.UserID == "" {
		c.Engine.UserID = "default"
	}
	if c.Engine.MiningProbability == 0 {
		c.Engine.MiningProbability = 1.0 / 360
	}
	if c.Engine.PersistProbability == 0 {
		c.Engine.PersistProbability = 0.1
	}
	if c.Engine.PatternFireProb == 0 {
		c.Engine.PatternFireProb = 0.05
	}
	if c.Thresholds == (Thresholds{}) {
		c.Thresholds = Thresholds{
			AutoComplete: 0.8,
			Suggestion:   0.6,
			Prediction:   0.7,
			Routine:      0.75,
		}
	}
	if c.Persistence.Backend == "" {
		c.Persistence.Backend = "file"
	}
	if c.Persistence.Dir == "" {
		c.Persistence.Dir = "data/intent"
	}
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	for name, v := range map[string]float64{
		"auto_complete": c.Thresholds.AutoComplete,
		"suggestion":    c.Thresholds.Suggestion,
		"prediction":    c.Thresholds.Prediction,
		"routine":       c.Thresholds.Routine,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold %s out of range [0,1]: %f", name, v)
		}
	}
	for name, p := range map[string]float64{
		"mining_probability":       c.Engine.MiningProbability,
		"persist_probability":      c.Engine.PersistProbability,
		"pattern_fire_probability": c.Engine.PatternFireProb,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("probability %s out of range [0,1]: %f", name, p)
		}
	}
	switch c.Persistence.Backend {
	case "file", "sqlite", "redis", "none":
	default:
		return fmt.Errorf("unknown persistence backend: %q", c.Persistence.Backend)
	}
	if c.Engine.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must be >= 0, got %d", c.Engine.MaxAttempts)
	}
	return nil
}
