package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"STORE_DRIVER", "DB_PORT", "MATCH_THRESHOLD", "VERIFY_TIMEOUT", "RESULT_DISPLAY", "ALLOWED_ORIGINS", "ENVIRONMENT", "JWT_SECRET"} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreDriver != DriverPostgres || cfg.DBPort != 5432 {
		t.Errorf("unexpected store defaults: %+v", cfg)
	}
	if cfg.MatchThreshold != 0.8 || cfg.VerifyTimeout != 5*time.Second || cfg.ResultDisplay != 1500*time.Millisecond {
		t.Errorf("unexpected check-in defaults: threshold=%v timeout=%v display=%v", cfg.MatchThreshold, cfg.VerifyTimeout, cfg.ResultDisplay)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Errorf("expected no origins, got %v", cfg.AllowedOrigins)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("MATCH_THRESHOLD", "0.65")
	t.Setenv("VERIFY_TIMEOUT", "3000")
	t.Setenv("RESULT_DISPLAY", "2s")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreDriver != DriverSQLite {
		t.Errorf("driver = %q", cfg.StoreDriver)
	}
	if cfg.MatchThreshold != 0.65 || cfg.VerifyTimeout != 3*time.Second || cfg.ResultDisplay != 2*time.Second {
		t.Errorf("threshold=%v timeout=%v display=%v", cfg.MatchThreshold, cfg.VerifyTimeout, cfg.ResultDisplay)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"STORE_DRIVER", "mongo", "STORE_DRIVER"},
		{"DB_PORT", "abc", "DB_PORT"},
		{"DB_PORT", "70000", "DB_PORT"},
		{"MATCH_THRESHOLD", "-1", "MATCH_THRESHOLD"},
		{"VERIFY_TIMEOUT", "soon", "VERIFY_TIMEOUT"},
		{"VERIFY_TIMEOUT", "0", "VERIFY_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate_ProductionSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Error("expected default secret to be rejected in production")
	}
	t.Setenv("JWT_SECRET", "s3cret")
	if _, err := Load(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
