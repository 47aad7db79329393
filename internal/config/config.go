// Package config provides configuration for the application
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported database drivers
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Provisioning modes
const (
	ProvisioningInline   = "inline"
	ProvisioningQueue    = "queue"
	ProvisioningDisabled = "disabled"
)

const defaultTokenExpiry = time.Hour

// Password hashing algorithms
const (
	PasswordBcrypt   = "bcrypt"
	PasswordArgon2id = "argon2id"
)

// Config holds all configuration for the application
type Config struct {
	Database     DatabaseConfig
	Server       ServerConfig
	Logging      LoggingConfig
	CORS         CORSConfig
	JWT          JWTConfig
	Password     PasswordConfig
	Seed         SeedConfig
	Provisioning ProvisioningConfig
	Redis        RedisConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string        `envconfig:"DB_DRIVER" default:"mysql"`
	DSN             string        `envconfig:"DB_DSN" required:"true"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	AutoMigrate     bool          `envconfig:"DB_AUTO_MIGRATE" default:"true"`
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port               int           `envconfig:"SERVER_PORT" default:"5000"`
	ReadTimeout        time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout       time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout    time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	MaxRequestSize     int64         `envconfig:"SERVER_MAX_REQUEST_SIZE" default:"1048576"`
	SwaggerEnabled     bool          `envconfig:"SWAGGER_ENABLED" default:"false"`
	DiagnosticsEnabled bool          `envconfig:"DIAGNOSTICS_ENABLED" default:"false"`
	Production         bool          `envconfig:"PRODUCTION" default:"false"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// JWTConfig holds JWT token configuration
type JWTConfig struct {
	Secret            string        `envconfig:"JWT_SECRET" required:"true"`
	AccessTokenExpiry time.Duration `envconfig:"JWT_ACCESS_TOKEN_EXPIRY" default:"1h"`
}

// PasswordConfig holds password hashing settings
type PasswordConfig struct {
	Algorithm  string `envconfig:"PASSWORD_ALGORITHM" default:"bcrypt"`
	BcryptCost int    `envconfig:"BCRYPT_COST" default:"12"`
}

// SeedConfig holds bootstrap account settings
type SeedConfig struct {
	Enabled       bool   `envconfig:"SEED_ENABLED" default:"true"`
	AdminUsername string `envconfig:"SEED_ADMIN_USERNAME" default:"admin"`
	AdminEmail    string `envconfig:"SEED_ADMIN_EMAIL" default:"admin@example.com"`
	AdminPassword string `envconfig:"SEED_ADMIN_PASSWORD" default:"admin123"`
	TestUser      bool   `envconfig:"SEED_TEST_USER" default:"false"`
}

// ProvisioningConfig holds namespace provisioning settings
type ProvisioningConfig struct {
	Mode              string        `envconfig:"PROVISIONING_MODE" default:"inline"`
	Timeout           time.Duration `envconfig:"PROVISIONING_TIMEOUT" default:"10s"`
	Kubeconfig        string        `envconfig:"KUBECONFIG"`
	WorkerConcurrency int           `envconfig:"PROVISIONING_WORKER_CONCURRENCY" default:"5"`
}

// RedisConfig holds Redis connection settings used by the provisioning queue
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	return load("")
}

// LoadWorker reads only the sections the provisioning worker uses, so it starts
// without database or JWT settings
func LoadWorker() (*Config, error) {
	_ = godotenv.Load()

	return loadWorker("")
}

func load(prefix string) (*Config, error) {
	cfg := &Config{}
	err := process(prefix,
		&cfg.Database,
		&cfg.Server,
		&cfg.Logging,
		&cfg.CORS,
		&cfg.JWT,
		&cfg.Password,
		&cfg.Seed,
		&cfg.Provisioning,
		&cfg.Redis,
	)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadWorker(prefix string) (*Config, error) {
	cfg := &Config{}
	if err := process(prefix, &cfg.Server, &cfg.Logging, &cfg.Provisioning, &cfg.Redis); err != nil {
		return nil, err
	}

	if err := cfg.validateProvisioning(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func process(prefix string, parts ...any) error {
	for _, part := range parts {
		if err := envconfig.Process(prefix, part); err != nil {
			return fmt.Errorf("failed to process config: %w", err)
		}
	}
	return nil
}

// Validate checks values that envconfig cannot express with tags
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("invalid DB_DRIVER %q: must be one of mysql, postgres, sqlite", c.Database.Driver)
	}

	if err := c.validateProvisioning(); err != nil {
		return err
	}

	switch c.Password.Algorithm {
	case PasswordBcrypt, PasswordArgon2id:
	default:
		return fmt.Errorf("invalid PASSWORD_ALGORITHM %q: must be bcrypt or argon2id", c.Password.Algorithm)
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.JWT.AccessTokenExpiry <= 0 {
		return fmt.Errorf("JWT_ACCESS_TOKEN_EXPIRY must be positive")
	}

	origins := make([]string, 0, len(c.CORS.AllowedOrigins))
	for _, origin := range c.CORS.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	// If no valid origins found, default to allow all
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c.CORS.AllowedOrigins = origins

	return nil
}

func (c *Config) validateProvisioning() error {
	switch c.Provisioning.Mode {
	case ProvisioningInline, ProvisioningQueue, ProvisioningDisabled:
	default:
		return fmt.Errorf("invalid PROVISIONING_MODE %q: must be one of inline, queue, disabled", c.Provisioning.Mode)
	}

	if c.Provisioning.Timeout <= 0 {
		return fmt.Errorf("PROVISIONING_TIMEOUT must be positive")
	}

	if c.Provisioning.WorkerConcurrency < 1 {
		return fmt.Errorf("PROVISIONING_WORKER_CONCURRENCY must be at least 1")
	}

	return nil
}
