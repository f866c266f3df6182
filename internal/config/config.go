package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server       ServerConfig  `mapstructure:"server"`
	Database     DatabaseConfig `mapstructure:"database"`
	ControlPlane RedisConfig   `mapstructure:"control_plane"`
	DataPlane    RedisConfig   `mapstructure:"data_plane"`
	Cache        CacheConfig   `mapstructure:"cache"`
	Log          LogConfig     `mapstructure:"log"`
	App          AppConfig     `mapstructure:"app"`
	Metrics      MetricsConfig `mapstructure:"metrics"`
	Schema       SchemaConfig  `mapstructure:"schema"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port                    int           `mapstructure:"port"`
	Host                    string        `mapstructure:"host"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	IdleTimeout             time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
	RequestTimeout          time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig holds the gateway's single required binding: a connection
// to PostgreSQL, plus pool tuning.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int32         `mapstructure:"max_connections"`
	MinConnections  int32         `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	URL             string        `mapstructure:"url"`
}

// RedisConfig holds Redis-related configuration. The gateway binds two
// logical instances of this shape: ControlPlane (component G — version
// tokens, schema cache, OpenAPI doc) and DataPlane (component H — cached
// query responses). Both are optional; an empty Addr disables that tier
// and the gateway falls through to direct database reads.
type RedisConfig struct {
	Addr            string        `mapstructure:"addr"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// Enabled reports whether this Redis binding was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// CacheConfig holds sizing and TTL configuration for the three cache tiers.
type CacheConfig struct {
	CodePlaneMaxEntries  int           `mapstructure:"code_plane_max_entries"`
	DataPlaneTTL         time.Duration `mapstructure:"data_plane_ttl"`
	DataPlaneCompression bool          `mapstructure:"data_plane_compression"`
}

// LogConfig holds logging-related configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AppConfig holds application-specific configuration.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// MetricsConfig holds metrics-related configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// SchemaConfig holds the introspection naming conventions of §3: which
// column name is treated as the primary key, and which column names are
// recognised as soft-delete markers.
type SchemaConfig struct {
	PrimaryKeyName    string   `mapstructure:"primary_key_name"`
	SoftDeleteColumns []string `mapstructure:"soft_delete_columns"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	// Set default values first
	setDefaults()

	// Enable automatic environment variable binding
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Try to read configuration file if it exists
	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found, continue with defaults and env vars
		}
	}

	// Unmarshal configuration
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigFromEnv loads configuration from environment variables only.
func LoadConfigFromEnv() (*Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.graceful_shutdown_timeout", "30s")
	viper.SetDefault("server.request_timeout", "30s")

	// Database defaults — Postgres is the single required binding (§6)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "postgres")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.min_connections", 5)
	viper.SetDefault("database.max_conn_lifetime", "1h")
	viper.SetDefault("database.max_conn_idle_time", "30m")
	viper.SetDefault("database.connect_timeout", "10s")
	viper.SetDefault("database.query_timeout", "30s")

	// Control-plane Redis defaults — addr empty, tier disabled until configured
	viper.SetDefault("control_plane.addr", "")
	viper.SetDefault("control_plane.db", 0)
	viper.SetDefault("control_plane.pool_size", 10)
	viper.SetDefault("control_plane.min_idle_conns", 2)
	viper.SetDefault("control_plane.dial_timeout", "5s")
	viper.SetDefault("control_plane.read_timeout", "3s")
	viper.SetDefault("control_plane.write_timeout", "3s")
	viper.SetDefault("control_plane.max_retries", 3)
	viper.SetDefault("control_plane.min_retry_backoff", "100ms")
	viper.SetDefault("control_plane.max_retry_backoff", "500ms")

	// Data-plane Redis defaults
	viper.SetDefault("data_plane.addr", "")
	viper.SetDefault("data_plane.db", 1)
	viper.SetDefault("data_plane.pool_size", 10)
	viper.SetDefault("data_plane.min_idle_conns", 2)
	viper.SetDefault("data_plane.dial_timeout", "5s")
	viper.SetDefault("data_plane.read_timeout", "3s")
	viper.SetDefault("data_plane.write_timeout", "3s")
	viper.SetDefault("data_plane.max_retries", 3)
	viper.SetDefault("data_plane.min_retry_backoff", "100ms")
	viper.SetDefault("data_plane.max_retry_backoff", "500ms")

	// Cache tier defaults
	viper.SetDefault("cache.code_plane_max_entries", 512)
	viper.SetDefault("cache.data_plane_ttl", "60s")
	viper.SetDefault("cache.data_plane_compression", true)

	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.filename", "")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// App defaults
	viper.SetDefault("app.name", "pgrestgw")
	viper.SetDefault("app.version", "0.1.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.port", 8080)

	// Schema convention defaults
	viper.SetDefault("schema.primary_key_name", "id")
	viper.SetDefault("schema.soft_delete_columns", []string{"deleted_at", "is_deleted"})
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	if c.Database.URL == "" && c.Database.Host == "" {
		return fmt.Errorf("database connection is required: set database.url or database.host")
	}

	if c.Database.URL == "" && c.Database.Database == "" {
		return fmt.Errorf("database name cannot be empty")
	}

	if c.Log.Level == "" {
		return fmt.Errorf("log level cannot be empty")
	}

	if c.App.Name == "" {
		return fmt.Errorf("app name cannot be empty")
	}

	if c.Schema.PrimaryKeyName == "" {
		return fmt.Errorf("schema.primary_key_name cannot be empty")
	}

	return nil
}

// GetDatabaseURL constructs the pgx connection string from configuration,
// preferring an explicit URL when one is set.
func (c *Config) GetDatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}

	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		sslMode,
	)
}

// IsDevelopment returns true if the application is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDebug returns true if debug mode is enabled.
func (c *Config) IsDebug() bool {
	return c.App.Debug || c.IsDevelopment()
}
