package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration for the settlement scheduler. Values
// come from an optional YAML file with environment-variable overrides for the
// deployment-specific fields.
type Config struct {
	DataDir   string          `yaml:"data_dir" default:"./settlement-data"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LedgerConfig contains the RPC endpoint, contract binding and signing
// credential. A missing signing key is a fatal startup condition.
type LedgerConfig struct {
	RPCURL             string `yaml:"rpc_url" validate:"required"`
	ChainID            int64  `yaml:"chain_id" default:"84532"`
	ContractAddress    string `yaml:"contract_address" validate:"required"`
	CoordinatorAddress string `yaml:"coordinator_address"`
	PrivateKey         string `yaml:"private_key" validate:"required"`
	GasLimit           uint64 `yaml:"gas_limit" default:"500000"`
}

// SchedulerConfig contains the loop cadences and retry budget. Intervals are
// milliseconds, matching the persisted scheduler state.
type SchedulerConfig struct {
	SettlementIntervalMs  int64 `yaml:"settlement_interval_ms" default:"60000"`
	EventPollIntervalMs   int64 `yaml:"event_poll_interval_ms" default:"30000"`
	HeartbeatIntervalMs   int64 `yaml:"heartbeat_interval_ms" default:"15000"`
	MaxSettlementAttempts int   `yaml:"max_settlement_attempts" default:"5" validate:"gte=1"`
	SettlementBatchSize   int   `yaml:"settlement_batch_size" default:"5" validate:"gte=1"`
}

// ServerConfig contains the admin HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host" default:"0.0.0.0"`
	Port int    `yaml:"port" default:"8080"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level" default:"info"`
	Format     string `yaml:"format" default:"json"`
	OutputPath string `yaml:"output_path" default:"stdout"`
}

// SettlementInterval returns the settlement loop cadence.
func (c *SchedulerConfig) SettlementInterval() time.Duration {
	return time.Duration(c.SettlementIntervalMs) * time.Millisecond
}

// EventPollInterval returns the event-poll loop cadence.
func (c *SchedulerConfig) EventPollInterval() time.Duration {
	return time.Duration(c.EventPollIntervalMs) * time.Millisecond
}

// HeartbeatInterval returns the liveness-log cadence.
func (c *SchedulerConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

// Load reads configuration from an optional YAML file, applies defaults and
// environment overrides, then validates. An empty path skips the file and
// configures from defaults plus environment only.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	applyEnv(&cfg)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// applyEnv overlays deployment-specific values from the environment, taking
// precedence over the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Ledger.RPCURL = v
	}
	if v := os.Getenv("CONTRACT_ADDRESS"); v != "" {
		cfg.Ledger.ContractAddress = v
	}
	if v := os.Getenv("COORDINATOR_ADDRESS"); v != "" {
		cfg.Ledger.CoordinatorAddress = v
	}
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		cfg.Ledger.PrivateKey = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
}
