package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadTestConfig loads the configuration from environment variables for
// integration tests. If the variables are not set, returns a Config with
// empty values which allows tests to use fallback DSN values.
func LoadTestConfig() (*Config, error) {
	cfg := &Config{}

	// Integration tests always get a usable session-token setup
	cfg.JWT.Secret = os.Getenv("TEST_JWT_SECRET")
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = "integration-test-secret"
	}
	cfg.JWT.AccessTokenExpiry = time.Hour
	cfg.Video.TokenTTL = 5 * time.Minute
	cfg.Storage.URLTTL = 15 * time.Minute
	cfg.Storage.Bucket = "course-assets"

	dbHost := os.Getenv("TEST_DB_HOST")
	if dbHost == "" {
		// Return config without DB settings to allow fallback DSN in tests
		return cfg, nil
	}
	cfg.Database.Host = dbHost

	dbPortStr := os.Getenv("TEST_DB_PORT")
	if dbPortStr == "" {
		return cfg, nil
	}
	dbPort, err := strconv.Atoi(dbPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid TEST_DB_PORT: %w", err)
	}
	cfg.Database.Port = dbPort

	dbUser := os.Getenv("TEST_DB_USER")
	if dbUser == "" {
		return cfg, nil
	}
	cfg.Database.User = dbUser

	dbPassword := os.Getenv("TEST_DB_PASSWORD")
	if dbPassword == "" {
		return cfg, nil
	}
	cfg.Database.Password = dbPassword

	dbName := os.Getenv("TEST_DB_NAME")
	if dbName == "" {
		return cfg, nil
	}
	cfg.Database.DBName = dbName

	return cfg, nil
}
