package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/deepforge-ai/trainer/internal/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// NatsConfig holds the optional NATS status-reporting configuration.
// Reporting is disabled entirely when URL is empty.
type NatsConfig struct {
	URL            string        `yaml:"url,omitempty"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`
	MaxReconnects  int           `yaml:"max_reconnects"`
	StatusSubject  string        `yaml:"status_subject"`
}

// SourceConfig describes one logical corpus. Path may point at a single
// shard file or at a directory, in which case it is expanded into one
// pseudo-corpus per matching file before training starts. LabelDirs are
// optional roots holding per-shard label files laid out with the same
// relative paths as the corpus directory.
type SourceConfig struct {
	Path      string   `yaml:"path"`
	LabelDirs []string `yaml:"label_dirs,omitempty"`
}

// Config holds the application configuration for the trainer.
type Config struct {
	RunName  string `yaml:"run_name"`
	LogLevel string `yaml:"log_level"`

	// WorldSize is the number of parallel workers. 0 runs the training
	// step inline with no accelerator; 1 runs inline on device 0.
	WorldSize int `yaml:"world_size"`
	// GPUIDs maps worker ordinal to device ordinal. When empty, devices
	// are auto-detected and assigned 0..WorldSize-1.
	GPUIDs []int `yaml:"gpu_ids,omitempty"`
	// QueueCapacity is the per-worker batch channel capacity. The global
	// in-flight budget is WorldSize * QueueCapacity.
	QueueCapacity int `yaml:"queue_capacity"`

	Seed           int64  `yaml:"seed"`
	BatchSize      int    `yaml:"batch_size"`
	MaxSteps       uint64 `yaml:"max_steps,omitempty"`
	ShardExtension string `yaml:"shard_extension"`

	Data map[string]SourceConfig `yaml:"data"`

	// TrainFrom points at a checkpoint metadata file to resume from.
	TrainFrom string `yaml:"train_from,omitempty"`
	// SaveData is the directory holding prepared vocab/fields artifacts.
	SaveData string `yaml:"save_data,omitempty"`

	ReportInterval uint64     `yaml:"report_interval"`
	MetricsAddr    string     `yaml:"metrics_addr,omitempty"`
	NatsConfig     NatsConfig `yaml:"nats"`

	Logger *zap.Logger `yaml:"-"`
}

// LoadConfig reads configuration from the given YAML file path. It creates
// a default config file if it doesn't exist.
func LoadConfig(path string, logger *zap.Logger) (*Config, error) {
	defaults := defaultConfig()

	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		data, marshalErr := yaml.Marshal(defaults)
		if marshalErr != nil {
			return nil, fmt.Errorf("failed to marshal default config: %w", marshalErr)
		}
		if mkdirErr := os.MkdirAll(filepath.Dir(path), 0755); mkdirErr != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", mkdirErr)
		}
		if writeErr := os.WriteFile(path, data, 0644); writeErr != nil {
			return nil, fmt.Errorf("failed to write default config file: %w", writeErr)
		}
		logger.Info("Default configuration file created", zap.String("path", path))
		defaults.Logger = logger
		return defaults, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to check config file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}

	applyDefaultsIfNotSet(&cfg, defaults)
	cfg.Logger = logger

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() *Config {
	hostname, _ := os.Hostname()
	runName := "train-" + hostname
	if runName == "train-" {
		runName = "train-unknown"
	}
	return &Config{
		RunName:        runName,
		LogLevel:       "info",
		WorldSize:      0,
		QueueCapacity:  40,
		Seed:           3435,
		BatchSize:      32,
		ShardExtension: ".json",
		Data:           make(map[string]SourceConfig),
		ReportInterval: 50,
		NatsConfig: NatsConfig{
			ConnectTimeout: 5 * time.Second,
			ReconnectWait:  3 * time.Second,
			MaxReconnects:  10,
			StatusSubject:  "trainer.run.status",
		},
	}
}

// applyDefaultsIfNotSet applies default values to cfg fields if they are
// zero-valued.
func applyDefaultsIfNotSet(cfg *Config, defaults *Config) {
	if cfg.RunName == "" {
		cfg.RunName = defaults.RunName
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = defaults.QueueCapacity
	}
	if cfg.Seed == 0 {
		cfg.Seed = defaults.Seed
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.ShardExtension == "" {
		cfg.ShardExtension = defaults.ShardExtension
	}
	if cfg.Data == nil {
		cfg.Data = defaults.Data
	}
	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = defaults.ReportInterval
	}
	if cfg.NatsConfig.ConnectTimeout == 0 {
		cfg.NatsConfig.ConnectTimeout = defaults.NatsConfig.ConnectTimeout
	}
	if cfg.NatsConfig.ReconnectWait == 0 {
		cfg.NatsConfig.ReconnectWait = defaults.NatsConfig.ReconnectWait
	}
	if cfg.NatsConfig.MaxReconnects == 0 {
		cfg.NatsConfig.MaxReconnects = defaults.NatsConfig.MaxReconnects
	}
	if cfg.NatsConfig.StatusSubject == "" {
		cfg.NatsConfig.StatusSubject = defaults.NatsConfig.StatusSubject
	}
}

// Validate rejects configurations the orchestrator cannot run with. All
// violations are pre-flight and abort before any worker is spawned.
func (c *Config) Validate() error {
	if c.WorldSize < 0 {
		return fmt.Errorf("%w: world_size must be >= 0, got %d", models.ErrInvalidConfig, c.WorldSize)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("%w: queue_capacity must be > 0, got %d", models.ErrInvalidConfig, c.QueueCapacity)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be > 0, got %d", models.ErrInvalidConfig, c.BatchSize)
	}
	if len(c.GPUIDs) != 0 && len(c.GPUIDs) != c.WorldSize {
		return fmt.Errorf("%w: gpu_ids lists %d devices for world_size %d",
			models.ErrInvalidConfig, len(c.GPUIDs), c.WorldSize)
	}
	return nil
}
