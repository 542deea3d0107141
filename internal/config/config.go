// Package config loads the engine configuration from YAML with TRIAGE_*
// environment overrides.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
)

var ErrInvalidConfig = errors.New("invalid config")

// Weight source kinds.
const (
	SourceFile  = "file"
	SourceSQL   = "sql"
	SourceRedis = "redis"
)

// #region types
// Config is the full configuration.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Weights    WeightsConfig    `yaml:"weights"`
	Fusion     FusionConfig     `yaml:"fusion"`
	Sanitizer  SanitizerConfig  `yaml:"sanitizer"`
	Controller ControllerConfig `yaml:"controller"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Gate       GateConfig       `yaml:"gate"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	DBName  string `yaml:"db_name"` // relative to DataDir unless absolute
}

// WeightsConfig selects where weight tables come from.
type WeightsConfig struct {
	Source    string   `yaml:"source"` // file, sql, redis
	Dir       string   `yaml:"dir"`    // file source root, default <data_dir>/weights
	RedisAddr string   `yaml:"redis_addr"`
	Preload   []string `yaml:"preload"`
}

type FusionConfig struct {
	WeightRatio float64 `yaml:"weight_ratio"`
}

type SanitizerConfig struct {
	DefaultBucket string   `yaml:"default_bucket"`
	ValidBuckets  []string `yaml:"valid_buckets"`
}

type ControllerConfig struct {
	StaleAfter string `yaml:"stale_after"` // Go duration, e.g. "168h"
	CycleSize  int    `yaml:"cycle_size"`
}

// RetrievalConfig points at the external evidence search service.
// An empty SearchAddr disables retrieval.
type RetrievalConfig struct {
	SearchAddr string  `yaml:"search_addr"`
	MinScore   float64 `yaml:"min_score"`
	TopK       int     `yaml:"top_k"`
	Timeout    string  `yaml:"timeout"`
}

type GateConfig struct {
	SkipOnRedFlag bool `yaml:"skip_on_red_flag"`
}

type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type LoggingConfig struct {
	Mode string `yaml:"mode"` // dev, prod
}

// #endregion types

// #region defaults
// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: "./data",
			DBName:  "triage.db",
		},
		Weights: WeightsConfig{
			Source: SourceFile,
		},
		Fusion: FusionConfig{
			WeightRatio: 0.6,
		},
		Sanitizer: SanitizerConfig{
			DefaultBucket: string(bucket.OA),
		},
		Controller: ControllerConfig{
			StaleAfter: "168h",
			CycleSize:  3,
		},
		Retrieval: RetrievalConfig{
			MinScore: 0.35,
			TopK:     10,
			Timeout:  "5s",
		},
		Gate: GateConfig{
			SkipOnRedFlag: true,
		},
		Server: ServerConfig{
			GRPCAddr:    ":50051",
			MetricsAddr: ":9090",
		},
		Logging: LoggingConfig{
			Mode: "dev",
		},
	}
}

// #endregion defaults

// #region load
// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error; an empty path
// skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, errors.Wrap(err, "read config")
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", path)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// #endregion load

// #region env
// applyEnvOverrides applies TRIAGE_* environment variables.
func (c *Config) applyEnvOverrides() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("TRIAGE_DATA_DIR", &c.Storage.DataDir)
	str("TRIAGE_DB_NAME", &c.Storage.DBName)
	str("TRIAGE_WEIGHT_SOURCE", &c.Weights.Source)
	str("TRIAGE_WEIGHTS_DIR", &c.Weights.Dir)
	str("TRIAGE_REDIS_ADDR", &c.Weights.RedisAddr)
	str("TRIAGE_DEFAULT_BUCKET", &c.Sanitizer.DefaultBucket)
	str("TRIAGE_STALE_AFTER", &c.Controller.StaleAfter)
	str("TRIAGE_SEARCH_ADDR", &c.Retrieval.SearchAddr)
	str("TRIAGE_GRPC_ADDR", &c.Server.GRPCAddr)
	str("TRIAGE_METRICS_ADDR", &c.Server.MetricsAddr)
	str("TRIAGE_LOG_MODE", &c.Logging.Mode)

	if v, ok := os.LookupEnv("TRIAGE_PRELOAD"); ok && v != "" {
		c.Weights.Preload = splitList(v)
	}
	if v, ok := os.LookupEnv("TRIAGE_VALID_BUCKETS"); ok && v != "" {
		c.Sanitizer.ValidBuckets = splitList(v)
	}
	if v, ok := os.LookupEnv("TRIAGE_WEIGHT_RATIO"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "TRIAGE_WEIGHT_RATIO=%q", v)
		}
		c.Fusion.WeightRatio = f
	}
	if v, ok := os.LookupEnv("TRIAGE_MIN_SEARCH_SCORE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "TRIAGE_MIN_SEARCH_SCORE=%q", v)
		}
		c.Retrieval.MinScore = f
	}
	if v, ok := os.LookupEnv("TRIAGE_CYCLE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "TRIAGE_CYCLE_SIZE=%q", v)
		}
		c.Controller.CycleSize = n
	}
	if v, ok := os.LookupEnv("TRIAGE_SKIP_ON_RED_FLAG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "TRIAGE_SKIP_ON_RED_FLAG=%q", v)
		}
		c.Gate.SkipOnRedFlag = b
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// #endregion env

// #region validate
// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if math.IsNaN(c.Fusion.WeightRatio) || c.Fusion.WeightRatio < 0 || c.Fusion.WeightRatio > 1 {
		return errors.Wrapf(ErrInvalidConfig, "weight_ratio %v outside [0, 1]", c.Fusion.WeightRatio)
	}
	if c.Controller.CycleSize < 1 {
		return errors.Wrapf(ErrInvalidConfig, "cycle_size %d below 1", c.Controller.CycleSize)
	}
	stale, err := time.ParseDuration(c.Controller.StaleAfter)
	if err != nil || stale <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "stale_after %q must be a positive duration", c.Controller.StaleAfter)
	}
	if _, err := c.RetrievalTimeout(); err != nil {
		return err
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return errors.Wrapf(ErrInvalidConfig, "min_score %v outside [0, 1]", c.Retrieval.MinScore)
	}
	def, err := c.DefaultBucket()
	if err != nil {
		return err
	}
	valid, err := c.ValidBuckets()
	if err != nil {
		return err
	}
	if !lo.Contains(valid, def) {
		return errors.Wrapf(ErrInvalidConfig, "default bucket %s not in valid set %v", def, valid)
	}
	for _, name := range c.Weights.Preload {
		if _, err := bucket.ParseCategory(name); err != nil {
			return errors.Wrap(ErrInvalidConfig, err.Error())
		}
	}
	switch c.Weights.Source {
	case SourceFile, SourceSQL:
	case SourceRedis:
		if c.Weights.RedisAddr == "" {
			return errors.Wrap(ErrInvalidConfig, "redis weight source needs redis_addr")
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown weight source %q", c.Weights.Source)
	}
	return nil
}

// #endregion validate

// #region accessors
// DBPath is the SQLite file path.
func (c *Config) DBPath() string {
	if filepath.IsAbs(c.Storage.DBName) || c.Storage.DBName == ":memory:" {
		return c.Storage.DBName
	}
	return filepath.Join(c.Storage.DataDir, c.Storage.DBName)
}

// WeightsDir is the file source root.
func (c *Config) WeightsDir() string {
	if c.Weights.Dir != "" {
		return c.Weights.Dir
	}
	return filepath.Join(c.Storage.DataDir, "weights")
}

func (c *Config) StaleAfter() time.Duration {
	d, _ := time.ParseDuration(c.Controller.StaleAfter)
	return d
}

func (c *Config) RetrievalTimeout() (time.Duration, error) {
	if c.Retrieval.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Retrieval.Timeout)
	if err != nil || d < 0 {
		return 0, errors.Wrapf(ErrInvalidConfig, "retrieval timeout %q", c.Retrieval.Timeout)
	}
	return d, nil
}

func (c *Config) DefaultBucket() (bucket.Code, error) {
	code, err := bucket.Parse(c.Sanitizer.DefaultBucket)
	if err != nil {
		return "", errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return code, nil
}

// ValidBuckets parses the sanitizer's valid set; empty means every bucket.
func (c *Config) ValidBuckets() ([]bucket.Code, error) {
	if len(c.Sanitizer.ValidBuckets) == 0 {
		return append([]bucket.Code(nil), bucket.All...), nil
	}
	out := make([]bucket.Code, 0, len(c.Sanitizer.ValidBuckets))
	for _, raw := range c.Sanitizer.ValidBuckets {
		code, err := bucket.Parse(raw)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidConfig, err.Error())
		}
		out = append(out, code)
	}
	return out, nil
}

// PreloadCategories parses Weights.Preload.
func (c *Config) PreloadCategories() []bucket.Category {
	var out []bucket.Category
	for _, name := range c.Weights.Preload {
		if cat, err := bucket.ParseCategory(name); err == nil {
			out = append(out, cat)
		}
	}
	return out
}

// #endregion accessors
