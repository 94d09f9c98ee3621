package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Environment string
	ServerPort  string

	StoreDriver string
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string
	SQLitePath  string

	JWTSecret string

	MatchThreshold float64
	VerifyTimeout  time.Duration
	ResultDisplay  time.Duration

	VisionURL     string
	VisionTimeout time.Duration

	SeedStudentsFile string
	AllowedOrigins   []string
}

// Load reads the configuration from the environment. Call godotenv.Load first
// to pick up a .env file.
func Load() (*Config, error) {
	var errs []error

	cfg := &Config{
		Environment:      getEnv("ENVIRONMENT", "development"),
		ServerPort:       getEnv("PORT", "8080"),
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getInt("DB_PORT", 5432, &errs),
		DBUser:           getEnv("DB_USER", "postgres"),
		DBPassword:       getEnv("DB_PASSWORD", ""),
		DBName:           getEnv("DB_NAME", "qr_attendance"),
		DBSSLMode:        getEnv("DB_SSLMODE", "disable"),
		SQLitePath:       getEnv("SQLITE_PATH", "attendance.db"),
		JWTSecret:        getEnv("JWT_SECRET", "your-secret-key"),
		MatchThreshold:   getFloat("MATCH_THRESHOLD", 0.8, &errs),
		VerifyTimeout:    getDuration("VERIFY_TIMEOUT", 5*time.Second, &errs),
		ResultDisplay:    getDuration("RESULT_DISPLAY", 1500*time.Millisecond, &errs),
		VisionURL:        getEnv("VISION_URL", "http://localhost:5001"),
		VisionTimeout:    getDuration("VISION_TIMEOUT", 10*time.Second, &errs),
		SeedStudentsFile: getEnv("SEED_STUDENTS_FILE", ""),
		AllowedOrigins:   getList("ALLOWED_ORIGINS"),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be postgres, sqlite or memory, got %q", c.StoreDriver))
	}
	if c.DBPort <= 0 || c.DBPort > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT out of range: %d", c.DBPort))
	}
	if c.MatchThreshold <= 0 || math.IsNaN(c.MatchThreshold) || math.IsInf(c.MatchThreshold, 0) {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD must be positive, got %v", c.MatchThreshold))
	}
	if c.VerifyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("VERIFY_TIMEOUT must be positive, got %s", c.VerifyTimeout))
	}
	if c.ResultDisplay < 0 {
		errs = append(errs, fmt.Errorf("RESULT_DISPLAY must not be negative, got %s", c.ResultDisplay))
	}
	if c.VisionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("VISION_TIMEOUT must be positive, got %s", c.VisionTimeout))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}
	if c.Environment == "production" && c.JWTSecret == "your-secret-key" {
		errs = append(errs, errors.New("JWT_SECRET must be changed in production"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getFloat(key string, defaultValue float64, errs *[]error) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return f
}

// getDuration accepts Go durations ("5s") or plain milliseconds ("5000").
func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
