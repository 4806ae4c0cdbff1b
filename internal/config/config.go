package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CYCLE_ENGINE_"

// Config captures the settings required to boot the cycle engine service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	History   HistoryConfig   `yaml:"history"`
	Engine    EngineConfig    `yaml:"engine"`
	Inference InferenceConfig `yaml:"inference"`
	Flags     FlagsConfig     `yaml:"flags"`
	Privacy   PrivacyConfig   `yaml:"privacy"`
	Cache     CacheConfig     `yaml:"cache"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
	// File, when set, receives a copy of every log line.
	File string `yaml:"file"`
}

// HistoryConfig selects where cycle history is read from.
type HistoryConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// EngineConfig mirrors the tunable engine constants. Zero values fall back to engine defaults.
type EngineConfig struct {
	HistoryWindow       int           `yaml:"historyWindow"`
	OvulationLead       int           `yaml:"ovulationLead"`
	OvulationLag        int           `yaml:"ovulationLag"`
	LutealLength        int           `yaml:"lutealLength"`
	FertileLead         int           `yaml:"fertileLead"`
	FertileLag          int           `yaml:"fertileLag"`
	MinRuleConfidence   float64       `yaml:"minRuleConfidence"`
	MaxRuleConfidence   float64       `yaml:"maxRuleConfidence"`
	MinSample           int           `yaml:"minSample"`
	FrequencyMultiplier float64       `yaml:"frequencyMultiplier"`
	PairThreshold       float64       `yaml:"pairThreshold"`
	AdaptiveTimeout     time.Duration `yaml:"adaptiveTimeout"`
	// Scorer picks the adaptive delegate: "http" or "trend".
	Scorer     string  `yaml:"scorer"`
	TrendDecay float64 `yaml:"trendDecay"`
}

// InferenceConfig configures the HTTP scorer.
type InferenceConfig struct {
	BaseURL     string        `yaml:"baseURL"`
	PredictPath string        `yaml:"predictPath"`
	Timeout     time.Duration `yaml:"timeout"`
}

// FlagsConfig seeds the flag resolver.
type FlagsConfig struct {
	Defaults  map[string]bool `yaml:"defaults"`
	Overrides map[string]bool `yaml:"overrides"`
	// RemoteKey is the cache key (under the cache prefix) holding remote overrides.
	RemoteKey string `yaml:"remoteKey"`
}

// PrivacyConfig controls reduced exposures.
type PrivacyConfig struct {
	Bucket int `yaml:"bucket"`
}

// CacheConfig controls the shared store used for the widget mirror and flag overrides.
type CacheConfig struct {
	Backend         string        `yaml:"backend"`
	Addr            string        `yaml:"addr"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	DialTimeout     time.Duration `yaml:"dialTimeout"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	MaxRetries      int           `yaml:"maxRetries"`
	Prefix          string        `yaml:"prefix"`
	WidgetTTL       time.Duration `yaml:"widgetTTL"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
}

// ScheduleConfig controls background recompute triggers.
type ScheduleConfig struct {
	Timezone        string        `yaml:"timezone"`
	RolloverCron    string        `yaml:"rolloverCron"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
	TriggerRate     float64       `yaml:"triggerRate"`
	TriggerBurst    int           `yaml:"triggerBurst"`
}

// Load initialises Config from a YAML file, an optional .env file and environment overrides.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv reads CYCLE_ENGINE_ENV_FILE (or ./.env) without overriding variables already set.
func loadDotEnv() error {
	file := os.Getenv(envPrefix + "ENV_FILE")
	if file == "" {
		file = ".env"
	}
	if _, err := os.Stat(file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(file); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		History: HistoryConfig{Backend: "file", Path: "configs/history.yaml"},
		Engine: EngineConfig{
			AdaptiveTimeout: 750 * time.Millisecond,
			Scorer:          "trend",
			TrendDecay:      0.5,
		},
		Inference: InferenceConfig{
			PredictPath: "/v1/predict",
			Timeout:     2 * time.Second,
		},
		Flags:   FlagsConfig{RemoteKey: "flags"},
		Privacy: PrivacyConfig{Bucket: 5},
		Cache: CacheConfig{
			Backend:         "memory",
			DialTimeout:     2 * time.Second,
			ReadTimeout:     500 * time.Millisecond,
			WriteTimeout:    500 * time.Millisecond,
			MaxRetries:      2,
			Prefix:          "cycle-engine",
			WidgetTTL:       26 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Schedule: ScheduleConfig{
			Timezone:        "UTC",
			RolloverCron:    "0 0 * * *",
			RefreshInterval: 15 * time.Minute,
			TriggerRate:     0.2,
			TriggerBurst:    2,
		},
	}
}

// Validate checks ranges and syntax that would otherwise fail late.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Server.Address) == "" {
		add("server.address is required")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level %q is not one of debug|info|warn|error", c.Logging.Level)
	}

	switch c.History.Backend {
	case "file":
	case "sqlite":
		if c.History.Path == "" {
			add("history.path is required for the sqlite backend")
		}
	default:
		add("history.backend %q is not one of file|sqlite", c.History.Backend)
	}

	if c.Engine.HistoryWindow < 0 || c.Engine.MinSample < 0 {
		add("engine.historyWindow and engine.minSample must not be negative")
	}
	if c.Engine.MinRuleConfidence < 0 || c.Engine.MaxRuleConfidence > 1 ||
		(c.Engine.MaxRuleConfidence > 0 && c.Engine.MaxRuleConfidence < c.Engine.MinRuleConfidence) {
		add("engine rule confidence band [%v,%v] is invalid", c.Engine.MinRuleConfidence, c.Engine.MaxRuleConfidence)
	}
	if c.Engine.PairThreshold < 0 || c.Engine.PairThreshold > 1 {
		add("engine.pairThreshold must be within [0,1]")
	}
	switch c.Engine.Scorer {
	case "trend":
	case "http":
		if c.Inference.BaseURL == "" {
			add("inference.baseURL is required when engine.scorer is http")
		}
	default:
		add("engine.scorer %q is not one of trend|http", c.Engine.Scorer)
	}

	if c.Privacy.Bucket < 1 {
		add("privacy.bucket must be at least 1")
	}

	switch c.Cache.Backend {
	case "none", "memory":
	case "redis":
		if c.Cache.Addr == "" {
			add("cache.addr is required for the redis backend")
		}
	default:
		add("cache.backend %q is not one of none|memory|redis", c.Cache.Backend)
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		add("schedule.timezone: %v", err)
	}
	if c.Schedule.RolloverCron != "" {
		if _, err := cron.ParseStandard(c.Schedule.RolloverCron); err != nil {
			add("schedule.rolloverCron: %v", err)
		}
	}
	if c.Schedule.RefreshInterval < 0 {
		add("schedule.refreshInterval must not be negative")
	}
	if c.Schedule.TriggerRate <= 0 || c.Schedule.TriggerBurst < 1 {
		add("schedule.triggerRate must be positive and schedule.triggerBurst at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Location resolves the schedule timezone, defaulting to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func applyEnvOverrides(cfg *Config) {
	if v := getenv("SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := getenv("METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := getenv("LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := getenv("LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := getenv("HISTORY_BACKEND"); v != "" {
		cfg.History.Backend = v
	}
	if v := getenv("HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := getenv("SCORER"); v != "" {
		cfg.Engine.Scorer = v
	}
	if v := getenv("ADAPTIVE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.AdaptiveTimeout = d
		}
	}
	if v := getenv("INFERENCE_URL"); v != "" {
		cfg.Inference.BaseURL = v
	}
	if v := getenv("INFERENCE_PATH"); v != "" {
		cfg.Inference.PredictPath = v
	}
	if v := getenv("INFERENCE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Inference.Timeout = d
		}
	}
	if v := getenv("CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := getenv("CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := getenv("CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := getenv("CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := getenv("CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := getenv("CACHE_PREFIX"); v != "" {
		cfg.Cache.Prefix = v
	}
	if v := getenv("CACHE_WIDGET_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.WidgetTTL = d
		}
	}
	if v := getenv("TIMEZONE"); v != "" {
		cfg.Schedule.Timezone = v
	}
	if v := getenv("ROLLOVER_CRON"); v != "" {
		cfg.Schedule.RolloverCron = v
	}
	if v := getenv("REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Schedule.RefreshInterval = d
		}
	}
	if v := getenv("PRIVACY_BUCKET"); v != "" {
		if b, err := strconv.Atoi(v); err == nil {
			cfg.Privacy.Bucket = b
		}
	}
	applyFlagOverrides(cfg)
}

// applyFlagOverrides maps CYCLE_ENGINE_FLAG_<NAME>=<bool> onto the override layer.
func applyFlagOverrides(cfg *Config) {
	const flagPrefix = envPrefix + "FLAG_"
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, flagPrefix) {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, flagPrefix))
		enabled, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil || name == "" {
			continue
		}
		if cfg.Flags.Overrides == nil {
			cfg.Flags.Overrides = make(map[string]bool)
		}
		cfg.Flags.Overrides[name] = enabled
	}
}

func getenv(name string) string {
	return os.Getenv(envPrefix + name)
}
