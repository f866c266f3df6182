package postgres

import (
	"fmt"
	"time"

	"github.com/vitaliisemenov/pgrestgw/internal/config"
)

// PostgresConfig holds the settings needed to establish and tune the
// pooled connection the Introspector and Query Synthesizer share.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	URL      string

	SSLMode string

	MaxConns int32
	MinConns int32

	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

// FromAppConfig adapts the gateway's own DatabaseConfig section into a
// PostgresConfig, the shape this package's pool constructor expects.
func FromAppConfig(c config.DatabaseConfig) *PostgresConfig {
	return &PostgresConfig{
		Host:              c.Host,
		Port:              c.Port,
		Database:          c.Database,
		User:              c.Username,
		Password:          c.Password,
		URL:               c.URL,
		SSLMode:           c.SSLMode,
		MaxConns:          c.MaxConnections,
		MinConns:          c.MinConnections,
		MaxConnLifetime:   c.MaxConnLifetime,
		MaxConnIdleTime:   c.MaxConnIdleTime,
		HealthCheckPeriod: 30 * time.Second,
		ConnectTimeout:    c.ConnectTimeout,
	}
}

// Validate checks that the configuration is sufficient to dial Postgres.
func (c *PostgresConfig) Validate() error {
	if c.URL != "" {
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535")
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("max connections must be greater than 0")
	}
	if c.MinConns < 0 || c.MinConns > c.MaxConns {
		return fmt.Errorf("min connections must be between 0 and max connections")
	}
	return nil
}

// DSN returns the pgx connection string, preferring an explicit URL.
func (c *PostgresConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode)
}
