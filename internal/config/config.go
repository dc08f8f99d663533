package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Seed       SeedConfig       `mapstructure:"seed"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// WebhookConfig holds delivery engine tuning. The defaults mirror the
// documented contract: 3 attempts, 1s base delay doubling, 5s per-attempt timeout.
type WebhookConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	TimeoutMs   int `mapstructure:"timeout_ms"`
}

// SimulationConfig tunes the error-simulation scenarios.
type SimulationConfig struct {
	WindowMs  int     `mapstructure:"window_ms"`
	ErrorRate float64 `mapstructure:"error_rate"`
}

type SeedConfig struct {
	ContactsPerTenant  int `mapstructure:"contacts_per_tenant"`
	DealsPerTenant     int `mapstructure:"deals_per_tenant"`
	CompaniesPerTenant int `mapstructure:"companies_per_tenant"`
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../..")

	viper.SetDefault("server.port", 8000)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.pool_size", 10)
	viper.SetDefault("database.name", "mock-crm")
	viper.SetDefault("database.path", "./data")
	viper.SetDefault("webhook.max_attempts", 3)
	viper.SetDefault("webhook.base_delay_ms", 1000)
	viper.SetDefault("webhook.timeout_ms", 5000)
	viper.SetDefault("simulation.window_ms", 30000)
	viper.SetDefault("simulation.error_rate", 0.3)
	viper.SetDefault("seed.contacts_per_tenant", 100)
	viper.SetDefault("seed.deals_per_tenant", 50)
	viper.SetDefault("seed.companies_per_tenant", 30)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; defaults cover a full local run.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
