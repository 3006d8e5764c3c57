// Package config loads the engine configuration: YAML file with defaults,
// then environment overrides for deployment knobs.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/motorwatch/motorwatch/internal/domain"
)

// Config is the full engine configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Redis       RedisConfig       `yaml:"redis"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Detector    DetectorConfig    `yaml:"detector"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Events      EventsConfig      `yaml:"events"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
}

// StoreConfig selects and tunes the durable sample store.
type StoreConfig struct {
	// Backend is "memory" or "postgres".
	Backend string        `yaml:"backend"`
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// RedisConfig enables the optional event publisher.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

// PipelineConfig tunes the ingest path.
type PipelineConfig struct {
	WindowSize        int     `yaml:"window_size"`
	HistoryCapacity   int     `yaml:"history_capacity"`
	BaselineTolerance float64 `yaml:"baseline_tolerance"`
	MinBaselineRows   int     `yaml:"min_baseline_rows"`
	BaselineDir       string  `yaml:"baseline_dir"`
}

// DetectorConfig carries the isolation forest hyperparameters.
type DetectorConfig struct {
	Trees         int     `yaml:"trees"`
	Contamination float64 `yaml:"contamination"`
	Seed          int64   `yaml:"seed"`
	MinWindows    int     `yaml:"min_windows"`
}

// ScoringConfig tunes score interpretation.
type ScoringConfig struct {
	// BlendPolicy is "weighted" or "max".
	BlendPolicy    string  `yaml:"blend_policy"`
	HealthyScore   float64 `yaml:"healthy_score_threshold"`
	FaultScore     float64 `yaml:"fault_score_threshold"`
	EventThreshold float64 `yaml:"event_threshold"`
}

// EventsConfig tunes transition detection.
type EventsConfig struct {
	DebounceTicks int `yaml:"debounce_ticks"`
	LogCapacity   int `yaml:"log_capacity"`
}

// CalibrationConfig tunes the calibration run.
type CalibrationConfig struct {
	Samples      int   `yaml:"samples"`
	PersistEvery int   `yaml:"persist_every"`
	ReportEvery  int   `yaml:"report_every"`
	Seed         int64 `yaml:"seed"`
}

// LogConfig sets the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       200,
			RateBurst:       400,
		},
		Store: StoreConfig{
			Backend: "memory",
			Timeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			Channel: "motorwatch:events",
		},
		Pipeline: PipelineConfig{
			WindowSize:        100,
			HistoryCapacity:   1000,
			BaselineTolerance: 0.10,
			MinBaselineRows:   10,
			BaselineDir:       "artifacts/baselines",
		},
		Detector: DetectorConfig{
			Trees:         150,
			Contamination: 0.05,
			Seed:          42,
			MinWindows:    10,
		},
		Scoring: ScoringConfig{
			BlendPolicy:    "weighted",
			HealthyScore:   0.65,
			FaultScore:     0.5,
			EventThreshold: 0.5,
		},
		Events: EventsConfig{
			DebounceTicks: 2,
			LogCapacity:   500,
		},
		Calibration: CalibrationConfig{
			Samples:      1000,
			PersistEvery: 10,
			ReportEvery:  100,
			Seed:         42,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.Wrap(domain.KindValidation, "config.load", err, "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.Wrap(domain.KindValidation, "config.load", err, "parse config YAML")
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides deployment knobs from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("MOTORWATCH_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MOTORWATCH_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("MOTORWATCH_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("MOTORWATCH_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("MOTORWATCH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MOTORWATCH_DEBOUNCE_TICKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Events.DebounceTicks = n
		}
	}
	if v := os.Getenv("MOTORWATCH_HEALTHY_SCORE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Scoring.HealthyScore = f
		}
	}
	if v := os.Getenv("MOTORWATCH_FAULT_SCORE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Scoring.FaultScore = f
		}
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	const op = "config.validate"
	if c.Store.Backend != "memory" && c.Store.Backend != "postgres" {
		return domain.E(domain.KindValidation, op, "unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Store.DSN == "" {
		return domain.E(domain.KindValidation, op, "postgres backend requires a DSN")
	}
	if c.Scoring.BlendPolicy != "weighted" && c.Scoring.BlendPolicy != "max" {
		return domain.E(domain.KindValidation, op, "unknown blend policy %q", c.Scoring.BlendPolicy)
	}
	if c.Pipeline.WindowSize < 10 {
		return domain.E(domain.KindValidation, op, "window_size must be at least 10, got %d", c.Pipeline.WindowSize)
	}
	if c.Pipeline.HistoryCapacity < c.Pipeline.WindowSize {
		return domain.E(domain.KindValidation, op, "history_capacity %d smaller than window_size %d",
			c.Pipeline.HistoryCapacity, c.Pipeline.WindowSize)
	}
	if c.Detector.Contamination <= 0 || c.Detector.Contamination >= 0.5 {
		return domain.E(domain.KindValidation, op, "contamination must be in (0, 0.5), got %g", c.Detector.Contamination)
	}
	if c.Events.DebounceTicks < 1 {
		return domain.E(domain.KindValidation, op, "debounce_ticks must be positive, got %d", c.Events.DebounceTicks)
	}
	return nil
}
