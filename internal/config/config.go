// Package config loads engine settings. Values come from built-in defaults,
// then an optional YAML file, then environment variables with the
// HUMBBOT_MEMORY_ prefix.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/humbrol2/humbbot-memory/internal/compact"
	"github.com/humbrol2/humbbot-memory/internal/embedding"
	"github.com/humbrol2/humbbot-memory/internal/recorder"
	"github.com/humbrol2/humbbot-memory/internal/relevance"
	"github.com/humbrol2/humbbot-memory/internal/tier"
)

const envPrefix = "HUMBBOT_MEMORY_"

// Config holds every tunable of the engine.
type Config struct {
	// DataDir holds one directory per session.
	DataDir      string            `yaml:"data_dir"`
	Embedding    embedding.Options `yaml:"embedding"`
	VectorIndex  VectorIndexConfig `yaml:"vector_index"`
	Tiers        tier.Policy       `yaml:"tiers"`
	Relevance    relevance.Weights `yaml:"relevance"`
	Significance recorder.Policy   `yaml:"significance"`
	Assembly     AssemblyConfig    `yaml:"assembly"`
	Compaction   CompactionConfig  `yaml:"compaction"`
	Log          LogConfig         `yaml:"log"`
}

// VectorIndexConfig selects and tunes the vector index.
type VectorIndexConfig struct {
	// Backend is "flat" (SQLite-backed linear scan) or "chromem".
	Backend string `yaml:"backend"`
	// Compress gzips chromem documents on disk.
	Compress      bool    `yaml:"compress"`
	K             int     `yaml:"k"`
	MinSimilarity float64 `yaml:"min_similarity"`
}

// AssemblyConfig tunes context assembly.
type AssemblyConfig struct {
	Budget            int           `yaml:"budget"`
	LookBack          int           `yaml:"look_back"`
	SemanticThreshold float64       `yaml:"semantic_threshold"`
	ImmediateWindow   time.Duration `yaml:"immediate_window"`
}

// CompactionConfig tunes the compactor.
type CompactionConfig struct {
	Schedule           string        `yaml:"schedule"`
	Timeout            time.Duration `yaml:"timeout"`
	HotThreshold       int           `yaml:"hot_threshold"`
	RetainSignificance float64       `yaml:"retain_significance"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(home, ".humbbot-memory"),
		Embedding: embedding.Options{
			Provider:        "",
			Timeout:         5 * time.Second,
			RateLimit:       10,
			Burst:           5,
			BreakerFailures: 3,
			BreakerTimeout:  30 * time.Second,
			CacheSize:       8 << 20,
		},
		VectorIndex: VectorIndexConfig{
			Backend:       "flat",
			K:             10,
			MinSimilarity: 0.3,
		},
		Tiers:        tier.DefaultPolicy(),
		Relevance:    relevance.DefaultWeights(),
		Significance: recorder.DefaultPolicy(),
		Assembly: AssemblyConfig{
			Budget:            1000,
			LookBack:          50,
			SemanticThreshold: 0.7,
			ImmediateWindow:   time.Hour,
		},
		Compaction: CompactionConfig{
			Schedule:           "@every 1h",
			Timeout:            time.Minute,
			HotThreshold:       50,
			RetainSignificance: 0.8,
		},
		Log: LogConfig{Level: "warn", Format: "json"},
	}
}

// DefaultPath is where Load looks when no file is named.
func DefaultPath() string {
	if env := os.Getenv(envPrefix + "CONFIG"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".humbbot-memory", "config.yaml")
}

// Load builds the configuration. A named path must exist; with an empty
// path the default location is read when present.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.DataDir = getEnv("DIR", c.DataDir)
	c.Embedding.Provider = getEnv("EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = getEnv("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.URL = getEnv("EMBEDDING_URL", c.Embedding.URL)
	c.Embedding.APIKey = getEnv("EMBEDDING_API_KEY", c.Embedding.APIKey)
	c.VectorIndex.Backend = getEnv("VECTOR_BACKEND", c.VectorIndex.Backend)
	c.Compaction.Schedule = getEnv("COMPACTION_SCHEDULE", c.Compaction.Schedule)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	var err error
	if c.Embedding.Timeout, err = getEnvDuration("EMBEDDING_TIMEOUT", c.Embedding.Timeout); err != nil {
		return err
	}
	if c.Assembly.Budget, err = getEnvInt("BUDGET", c.Assembly.Budget); err != nil {
		return err
	}
	if c.Assembly.LookBack, err = getEnvInt("LOOK_BACK", c.Assembly.LookBack); err != nil {
		return err
	}
	if c.Compaction.HotThreshold, err = getEnvInt("HOT_THRESHOLD", c.Compaction.HotThreshold); err != nil {
		return err
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	switch c.Embedding.Provider {
	case "", "none", "ollama", "openai", "hash":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q (valid: ollama, openai, hash, none)", c.Embedding.Provider))
	}
	switch c.VectorIndex.Backend {
	case "flat", "chromem":
	default:
		errs = append(errs, fmt.Errorf("vector_index.backend %q (valid: flat, chromem)", c.VectorIndex.Backend))
	}
	if c.VectorIndex.K <= 0 {
		errs = append(errs, errors.New("vector_index.k must be positive"))
	}
	if !in01(c.VectorIndex.MinSimilarity) || !in01(c.Assembly.SemanticThreshold) {
		errs = append(errs, errors.New("similarity thresholds must be within [0,1]"))
	}
	if err := c.Tiers.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !in01(c.Relevance.VectorWeight) {
		errs = append(errs, errors.New("relevance.vector_weight must be within [0,1]"))
	}
	if c.Assembly.Budget <= 0 {
		errs = append(errs, errors.New("assembly.budget must be positive"))
	}
	if c.Assembly.LookBack < 0 {
		errs = append(errs, errors.New("assembly.look_back must not be negative"))
	}
	if c.Compaction.HotThreshold <= 0 {
		errs = append(errs, errors.New("compaction.hot_threshold must be positive"))
	}
	if !in01(c.Compaction.RetainSignificance) {
		errs = append(errs, errors.New("compaction.retain_significance must be within [0,1]"))
	}
	if c.Compaction.Schedule != "" {
		if err := compact.ValidateSchedule(c.Compaction.Schedule); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func in01(f float64) bool { return f >= 0 && f <= 1 }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return d, nil
}
