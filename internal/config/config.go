// Package config loads the backlink engine configuration from a YAML file
// with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Default configuration values.
const (
	defaultServerHost      = "0.0.0.0"
	defaultServerPort      = 8070
	defaultServerTimeout   = 30 * time.Second
	defaultDatabasePort    = 5432
	defaultDatabaseHost    = "localhost"
	defaultDatabaseUser    = "postgres"
	defaultDatabaseName    = "backlink_engine"
	defaultDatabaseSSL     = "disable"
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultRedisAddress    = "localhost:6379"

	defaultDailyReceiveCap  = 3
	defaultMaxTaskRetries   = 3
	defaultPlacementTimeout = 30 * time.Second
	defaultVerifyTimeout    = 10 * time.Second
	defaultDoHResolver      = "https://dns.google/resolve"
	defaultDripWindowStart  = 9
	defaultDripWindowEnd    = 17
	defaultDailyCap         = 5
	defaultMonthlyCap       = 100
	defaultCycleSchedule    = "*/5 * * * *"

	defaultRateLimitRequests = 60
	defaultRateLimitWindow   = time.Minute

	defaultLogLevel = "info"
)

// Config holds the application configuration.
type Config struct {
	Debug    bool           `env:"APP_DEBUG" yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host              string        `env:"SERVER_HOST" yaml:"host"`
	Port              int           `env:"SERVER_PORT" yaml:"port"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	CORSOrigins       []string      `yaml:"cors_origins"`
	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `env:"DB_HOST"     yaml:"host"`
	Port            int           `env:"DB_PORT"     yaml:"port"`
	User            string        `env:"DB_USER"     yaml:"user"`
	Password        string        `env:"DB_PASSWORD" yaml:"password"`
	DBName          string        `env:"DB_NAME"     yaml:"dbname"`
	SSLMode         string        `env:"DB_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis configuration for event publishing.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"        yaml:"address"`
	Password string `env:"REDIS_PASSWORD"       yaml:"password"`
	DB       int    `env:"REDIS_DB"             yaml:"db"`
	Enabled  bool   `env:"REDIS_EVENTS_ENABLED" yaml:"enabled"`
}

// EngineConfig holds tunables for the exchange and scheduling engine.
type EngineConfig struct {
	// DailyReceiveCap is the maximum reciprocal links a participant may
	// receive per day.
	DailyReceiveCap int `yaml:"daily_receive_cap"`
	// MaxTaskRetries bounds how many times a failed backlink task may be
	// requeued.
	MaxTaskRetries int `yaml:"max_task_retries"`
	// PlacementEndpoint is the CMS publishing gateway used by the HTTP
	// placement executor.
	PlacementEndpoint string        `env:"PLACEMENT_ENDPOINT" yaml:"placement_endpoint"`
	PlacementTimeout  time.Duration `yaml:"placement_timeout"`
	// DoHResolver is the DNS-over-HTTPS resolver used for TXT record
	// ownership verification.
	DoHResolver   string        `env:"DOH_RESOLVER" yaml:"doh_resolver"`
	VerifyTimeout time.Duration `yaml:"verify_timeout"`
	// IntegrationEndpoint is the CMS adapter lookup backing the API
	// verification method. Empty leaves that method failing closed.
	IntegrationEndpoint string `env:"INTEGRATION_ENDPOINT" yaml:"integration_endpoint"`
	// DripWindowStart/End bound the local working-day hours used when
	// assigning placement times.
	DripWindowStart int `yaml:"drip_window_start"`
	DripWindowEnd   int `yaml:"drip_window_end"`
	// DailyBacklinkCap/MonthlyBacklinkCap are the fallback plan limits used
	// when no billing service supplies per-user limits.
	DailyBacklinkCap   int `yaml:"daily_backlink_cap"`
	MonthlyBacklinkCap int `yaml:"monthly_backlink_cap"`
	// CycleSchedule is the cron expression the cycle daemon runs on.
	CycleSchedule string `env:"CYCLE_SCHEDULE" yaml:"cycle_schedule"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" yaml:"level"`
}

// Load reads configuration from the given path. A missing file yields a
// config built from defaults and environment variables.
func Load(path string) (*Config, error) {
	return load(path)
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = defaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultServerPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = defaultServerTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = defaultServerTimeout
	}
	if c.Server.RateLimitRequests == 0 {
		c.Server.RateLimitRequests = defaultRateLimitRequests
	}
	if c.Server.RateLimitWindow == 0 {
		c.Server.RateLimitWindow = defaultRateLimitWindow
	}

	if c.Database.Host == "" {
		c.Database.Host = defaultDatabaseHost
	}
	if c.Database.Port == 0 {
		c.Database.Port = defaultDatabasePort
	}
	if c.Database.User == "" {
		c.Database.User = defaultDatabaseUser
	}
	if c.Database.DBName == "" {
		c.Database.DBName = defaultDatabaseName
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = defaultDatabaseSSL
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = defaultMaxOpenConns
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = defaultMaxIdleConns
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = defaultConnMaxLifetime
	}

	if c.Redis.Address == "" {
		c.Redis.Address = defaultRedisAddress
	}

	if c.Engine.DailyReceiveCap == 0 {
		c.Engine.DailyReceiveCap = defaultDailyReceiveCap
	}
	if c.Engine.MaxTaskRetries == 0 {
		c.Engine.MaxTaskRetries = defaultMaxTaskRetries
	}
	if c.Engine.PlacementTimeout == 0 {
		c.Engine.PlacementTimeout = defaultPlacementTimeout
	}
	if c.Engine.DoHResolver == "" {
		c.Engine.DoHResolver = defaultDoHResolver
	}
	if c.Engine.VerifyTimeout == 0 {
		c.Engine.VerifyTimeout = defaultVerifyTimeout
	}
	if c.Engine.DripWindowStart == 0 {
		c.Engine.DripWindowStart = defaultDripWindowStart
	}
	if c.Engine.DripWindowEnd == 0 {
		c.Engine.DripWindowEnd = defaultDripWindowEnd
	}
	if c.Engine.DailyBacklinkCap == 0 {
		c.Engine.DailyBacklinkCap = defaultDailyCap
	}
	if c.Engine.MonthlyBacklinkCap == 0 {
		c.Engine.MonthlyBacklinkCap = defaultMonthlyCap
	}
	if c.Engine.CycleSchedule == "" {
		c.Engine.CycleSchedule = defaultCycleSchedule
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Engine.DailyReceiveCap < 0 {
		return errors.New("engine.daily_receive_cap must not be negative")
	}
	if c.Engine.DripWindowEnd <= c.Engine.DripWindowStart {
		return errors.New("engine.drip_window_end must be after drip_window_start")
	}
	return nil
}
