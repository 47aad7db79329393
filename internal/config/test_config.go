package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LoadTestConfig loads the configuration for integration tests from TEST_* environment variables.
// If TEST_DB_DSN is not set, a SQLite database in dir is used so tests run without external services.
func LoadTestConfig(dir string) (*Config, error) {
	// Try loading from project root
	_ = godotenv.Load("../../.env")
	_ = godotenv.Load()

	cfg := &Config{}
	parts := []any{
		&cfg.Server,
		&cfg.Logging,
		&cfg.CORS,
		&cfg.Password,
		&cfg.Seed,
		&cfg.Provisioning,
		&cfg.Redis,
	}
	for _, part := range parts {
		if err := envconfig.Process("TEST", part); err != nil {
			return nil, fmt.Errorf("failed to process test config: %w", err)
		}
	}

	var db struct {
		Driver string `envconfig:"DB_DRIVER" default:"sqlite"`
		DSN    string `envconfig:"DB_DSN"`
	}
	if err := envconfig.Process("TEST", &db); err != nil {
		return nil, fmt.Errorf("failed to process test config: %w", err)
	}
	if db.DSN == "" {
		db.Driver = DriverSQLite
		db.DSN = fmt.Sprintf("file:%s/test.db?_time_format=sqlite&_pragma=busy_timeout(5000)", dir)
	}
	cfg.Database = DatabaseConfig{
		Driver:       db.Driver,
		DSN:          db.DSN,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		AutoMigrate:  true,
	}

	var jwt struct {
		Secret string `envconfig:"JWT_SECRET" default:"integration-test-secret"`
	}
	if err := envconfig.Process("TEST", &jwt); err != nil {
		return nil, fmt.Errorf("failed to process test config: %w", err)
	}
	cfg.JWT = JWTConfig{Secret: jwt.Secret, AccessTokenExpiry: defaultTokenExpiry}

	// Tests never talk to a real cluster
	cfg.Provisioning.Mode = ProvisioningDisabled
	// Keep hashing fast in tests
	cfg.Password.BcryptCost = 4

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
