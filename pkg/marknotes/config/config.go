// Package config resolves process configuration from the environment once
// at startup. A .env file in the working directory is loaded first if present;
// variables already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mikepea/marknotes/pkg/marknotes/auth"
	"github.com/mikepea/marknotes/pkg/marknotes/documents"
	"github.com/mikepea/marknotes/pkg/marknotes/vault"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config holds every setting the server needs.
type Config struct {
	Environment string
	Port        string

	DBPath       string
	DocumentRoot string

	// EncryptionKey is the decoded 32-byte AES key.
	EncryptionKey []byte
	JWTSecret     []byte

	SessionTTL     time.Duration
	Retention      time.Duration
	PurgeInterval  time.Duration
	LoginPerMinute int

	AllowedOrigins []string
	LogLevel       string
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Load reads .env (if any) and then the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Environment:  getEnvWithDefault("MARKNOTES_ENV", EnvProduction),
		Port:         getEnvWithDefault("PORT", "8080"),
		DBPath:       getEnvWithDefault("MARKNOTES_DB_PATH", "marknotes.db"),
		DocumentRoot: getEnvWithDefault("MARKNOTES_DOCUMENT_ROOT", "data/documents"),
		LogLevel:     getEnvWithDefault("LOG_LEVEL", "info"),
	}
	if cfg.Environment != EnvProduction && cfg.Environment != EnvDevelopment {
		return nil, fmt.Errorf("MARKNOTES_ENV must be %q or %q, got %q", EnvProduction, EnvDevelopment, cfg.Environment)
	}

	var problems []error

	keyHex := strings.TrimSpace(os.Getenv("ENCRYPTION_KEY"))
	if keyHex == "" {
		problems = append(problems, errors.New("ENCRYPTION_KEY is required"))
	} else if key, err := vault.ParseHexKey(keyHex); err != nil {
		problems = append(problems, fmt.Errorf("ENCRYPTION_KEY: %w", err))
	} else {
		cfg.EncryptionKey = key
	}

	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		problems = append(problems, errors.New("JWT_SECRET is required"))
	}
	cfg.JWTSecret = []byte(secret)

	var err error
	if cfg.SessionTTL, err = getEnvDuration("SESSION_TTL", auth.DefaultSessionTTL); err != nil {
		problems = append(problems, err)
	}
	if cfg.Retention, err = getEnvDuration("TRASH_RETENTION", documents.DefaultRetention); err != nil {
		problems = append(problems, err)
	}
	if cfg.PurgeInterval, err = getEnvDuration("PURGE_INTERVAL", time.Hour); err != nil {
		problems = append(problems, err)
	}
	if cfg.LoginPerMinute, err = getEnvInt("LOGIN_RATE_PER_MINUTE", 10); err != nil {
		problems = append(problems, err)
	}

	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	if len(cfg.AllowedOrigins) == 0 && !cfg.IsProduction() {
		cfg.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if err := errors.Join(problems...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
