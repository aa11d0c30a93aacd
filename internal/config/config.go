// Package config holds the qagent service configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "QAGENT"

// Config holds all qagent configuration
type Config struct {
	Agent      AgentConfig      `mapstructure:"agent"`
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
}

// AgentConfig describes the learner and its default estimator
type AgentConfig struct {
	StateDims      []string `mapstructure:"state_dims"`
	ActionDims     []string `mapstructure:"action_dims"`
	LearningRate   float64  `mapstructure:"learning_rate"`
	DiscountFactor float64  `mapstructure:"discount_factor"`
	Accuracy       float64  `mapstructure:"accuracy"`
	DefaultQ       float64  `mapstructure:"default_q"`

	// kNN estimator
	K        int `mapstructure:"k"`
	Capacity int `mapstructure:"capacity"` // 0 keeps every point

	// Seed for exploration draws; 0 seeds from the clock
	Seed int64 `mapstructure:"seed"`
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the snapshot store
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // memory, sqlite or postgres
	DSN    string `mapstructure:"dsn"`

	// Postgres connection parts, used when DSN is empty
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	RestoreOnStart bool `mapstructure:"restore_on_start"`
}

// NATSConfig holds event publishing configuration
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// CheckpointConfig holds periodic snapshot configuration
type CheckpointConfig struct {
	Interval time.Duration `mapstructure:"interval"` // 0 disables
	Keep     int           `mapstructure:"keep"`
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			LearningRate:   0.2,
			DiscountFactor: 0.25,
			Accuracy:       0.9,
			DefaultQ:       0,
			K:              3,
		},
		Server: ServerConfig{
			GRPCAddr:        ":50051",
			HTTPAddr:        ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Driver:  DriverMemory,
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "qagent",
			SSLMode: "disable",
		},
		NATS: NATSConfig{
			URL:     "nats://localhost:4222",
			Subject: "qagent",
		},
		Checkpoint: CheckpointConfig{
			Interval: 5 * time.Minute,
			Keep:     10,
		},
		LogLevel: "info",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Agent.StateDims) == 0 {
		return fmt.Errorf("agent.state_dims is required")
	}
	if len(c.Agent.ActionDims) == 0 {
		return fmt.Errorf("agent.action_dims is required")
	}
	if c.Agent.LearningRate <= 0 || c.Agent.LearningRate >= 1 {
		return fmt.Errorf("agent.learning_rate must be in (0,1)")
	}
	if c.Agent.DiscountFactor <= 0 || c.Agent.DiscountFactor >= 1 {
		return fmt.Errorf("agent.discount_factor must be in (0,1)")
	}
	if c.Agent.Accuracy <= 0 || c.Agent.Accuracy >= 1 {
		return fmt.Errorf("agent.accuracy must be in (0,1)")
	}
	if c.Agent.K < 1 {
		return fmt.Errorf("agent.k must be positive")
	}
	if c.Agent.Capacity < 0 {
		return fmt.Errorf("agent.capacity must not be negative")
	}
	if c.Server.GRPCAddr == "" && c.Server.HTTPAddr == "" {
		return fmt.Errorf("at least one of server.grpc_addr or server.http_addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	switch c.Storage.Driver {
	case DriverMemory, DriverPostgres:
	case DriverSQLite:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for sqlite")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.NATS.Enabled && (c.NATS.URL == "" || c.NATS.Subject == "") {
		return fmt.Errorf("nats.url and nats.subject are required when nats is enabled")
	}
	if c.Checkpoint.Interval < 0 {
		return fmt.Errorf("checkpoint.interval must not be negative")
	}
	if c.Checkpoint.Keep < 0 {
		return fmt.Errorf("checkpoint.keep must not be negative")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// ConnectionString returns the postgres connection string
func (s StorageConfig) ConnectionString() string {
	if s.DSN != "" {
		return s.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		s.Host, s.Port, s.User, s.Password, s.DBName, s.SSLMode)
}

// SetDefaults registers every key with its default value so that
// environment variables and config files can override it.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("agent.state_dims", d.Agent.StateDims)
	v.SetDefault("agent.action_dims", d.Agent.ActionDims)
	v.SetDefault("agent.learning_rate", d.Agent.LearningRate)
	v.SetDefault("agent.discount_factor", d.Agent.DiscountFactor)
	v.SetDefault("agent.accuracy", d.Agent.Accuracy)
	v.SetDefault("agent.default_q", d.Agent.DefaultQ)
	v.SetDefault("agent.k", d.Agent.K)
	v.SetDefault("agent.capacity", d.Agent.Capacity)
	v.SetDefault("agent.seed", d.Agent.Seed)

	v.SetDefault("server.grpc_addr", d.Server.GRPCAddr)
	v.SetDefault("server.http_addr", d.Server.HTTPAddr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.dsn", d.Storage.DSN)
	v.SetDefault("storage.host", d.Storage.Host)
	v.SetDefault("storage.port", d.Storage.Port)
	v.SetDefault("storage.user", d.Storage.User)
	v.SetDefault("storage.password", d.Storage.Password)
	v.SetDefault("storage.dbname", d.Storage.DBName)
	v.SetDefault("storage.sslmode", d.Storage.SSLMode)
	v.SetDefault("storage.restore_on_start", d.Storage.RestoreOnStart)

	v.SetDefault("nats.enabled", d.NATS.Enabled)
	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("nats.subject", d.NATS.Subject)

	v.SetDefault("checkpoint.interval", d.Checkpoint.Interval)
	v.SetDefault("checkpoint.keep", d.Checkpoint.Keep)

	v.SetDefault("log_level", d.LogLevel)
}

// Load reads configuration from v, its bound flags, an optional config file
// and QAGENT_* environment variables (QAGENT_AGENT_STATE_DIMS=x,y). The
// result is not validated.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
