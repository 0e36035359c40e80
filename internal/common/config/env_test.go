package config

import (
	"testing"
	"time"
)

func TestIntFromEnv(t *testing.T) {
	key := "TEST_INT_ENV"

	t.Run("default", func(t *testing.T) {
		got, err := IntFromEnv(key, 42)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 42 {
			t.Errorf("expected 42, got %d", got)
		}
	})

	t.Run("valid", func(t *testing.T) {
		t.Setenv(key, "100")
		got, err := IntFromEnv(key, 42)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 100 {
			t.Errorf("expected 100, got %d", got)
		}
	})

	t.Run("whitespace_falls_back", func(t *testing.T) {
		t.Setenv(key, "   ")
		got, err := IntFromEnv(key, 42)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 42 {
			t.Errorf("expected 42, got %d", got)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv(key, "not_int")
		_, err := IntFromEnv(key, 42)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestBoolFromEnv(t *testing.T) {
	key := "TEST_BOOL_ENV"

	tests := []struct {
		val  string
		want bool
	}{
		{"true", true},
		{"1", true},
		{"yes", true},
		{"false", false},
		{"0", false},
		{"no", false},
	}

	for _, tt := range tests {
		t.Run(tt.val, func(t *testing.T) {
			t.Setenv(key, tt.val)
			got, err := BoolFromEnv(key, false)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	t.Run("invalid", func(t *testing.T) {
		t.Setenv(key, "maybe")
		_, err := BoolFromEnv(key, false)
		if err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestDurationFromEnv(t *testing.T) {
	key := "TEST_DURATION_ENV"

	t.Setenv(key, "10")

	d, err := DurationSecondsFromEnv(key, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 10*time.Second {
		t.Errorf("expected 10s, got %v", d)
	}

	d, err = DurationMillisFromEnv(key, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 10*time.Millisecond {
		t.Errorf("expected 10ms, got %v", d)
	}

	t.Setenv(key, "-1")
	if _, err := DurationSecondsFromEnv(key, 0); err == nil {
		t.Fatal("expected error for negative seconds")
	}
	if _, err := DurationMillisFromEnv(key, 0); err == nil {
		t.Fatal("expected error for negative millis")
	}
}

func TestStringFromEnvFirstNonEmpty(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		got := StringFromEnvFirstNonEmpty([]string{"TEST_FOO", "TEST_BAR"}, "default")
		if got != "default" {
			t.Errorf("expected default, got %q", got)
		}
	})

	t.Run("first_non_empty_wins", func(t *testing.T) {
		t.Setenv("TEST_FOO", "foo")
		t.Setenv("TEST_BAR", "bar")
		got := StringFromEnvFirstNonEmpty([]string{"TEST_FOO", "TEST_BAR"}, "default")
		if got != "foo" {
			t.Errorf("expected foo, got %q", got)
		}
	})

	t.Run("skips_empty", func(t *testing.T) {
		t.Setenv("TEST_FOO", "  ")
		t.Setenv("TEST_BAR", "bar")
		got := StringFromEnvFirstNonEmpty([]string{"TEST_FOO", "TEST_BAR"}, "default")
		if got != "bar" {
			t.Errorf("expected bar, got %q", got)
		}
	})
}

func TestIntFromEnvFirstNonEmpty(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		got, err := IntFromEnvFirstNonEmpty([]string{"TEST_INT_FOO", "TEST_INT_BAR"}, 7)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 7 {
			t.Errorf("expected 7, got %d", got)
		}
	})

	t.Run("fallback", func(t *testing.T) {
		t.Setenv("TEST_INT_FOO", "  ")
		t.Setenv("TEST_INT_BAR", "10")
		got, err := IntFromEnvFirstNonEmpty([]string{"TEST_INT_FOO", "TEST_INT_BAR"}, 7)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 10 {
			t.Errorf("expected 10, got %d", got)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("TEST_INT_FOO", "oops")
		_, err := IntFromEnvFirstNonEmpty([]string{"TEST_INT_FOO", "TEST_INT_BAR"}, 7)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestReadServerConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := ReadServerConfigFromEnv(8080)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Host != "0.0.0.0" {
			t.Errorf("expected 0.0.0.0, got %q", cfg.Host)
		}
		if cfg.Port != 8080 {
			t.Errorf("expected 8080, got %d", cfg.Port)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("SERVER_HOST", "127.0.0.1")
		t.Setenv("SERVER_PORT", "9000")
		cfg, err := ReadServerConfigFromEnv(8080)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Host != "127.0.0.1" || cfg.Port != 9000 {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})
}

func TestReadServerTuningConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := ReadServerTuningConfigFromEnv()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.ReadHeaderTimeout != 5*time.Second {
			t.Errorf("expected ReadHeaderTimeout=5s, got %v", cfg.ReadHeaderTimeout)
		}
		if cfg.IdleTimeout != 90*time.Second {
			t.Errorf("expected IdleTimeout=90s, got %v", cfg.IdleTimeout)
		}
		if cfg.MaxHeaderBytes != 1<<20 {
			t.Errorf("expected MaxHeaderBytes=1MiB, got %d", cfg.MaxHeaderBytes)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("SERVER_READ_HEADER_TIMEOUT_SECONDS", "7")
		t.Setenv("SERVER_IDLE_TIMEOUT_SECONDS", "60")
		t.Setenv("SERVER_MAX_HEADER_BYTES", "8192")
		cfg, err := ReadServerTuningConfigFromEnv()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.ReadHeaderTimeout != 7*time.Second {
			t.Errorf("expected ReadHeaderTimeout=7s, got %v", cfg.ReadHeaderTimeout)
		}
		if cfg.IdleTimeout != 60*time.Second {
			t.Errorf("expected IdleTimeout=60s, got %v", cfg.IdleTimeout)
		}
		if cfg.MaxHeaderBytes != 8192 {
			t.Errorf("expected MaxHeaderBytes=8192, got %d", cfg.MaxHeaderBytes)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("SERVER_MAX_HEADER_BYTES", "-1")
		_, err := ReadServerTuningConfigFromEnv()
		if err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestReadRedisConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := ReadRedisConfigFromEnv(
			[]string{"TEST_RD_HOST"}, []string{"TEST_RD_PORT"}, []string{"TEST_RD_PASS"},
			"localhost", 6379, "",
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Host != "localhost" || cfg.Port != 6379 || cfg.Password != "" {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("first_key_wins", func(t *testing.T) {
		t.Setenv("TEST_RD_HOST", "valkey.internal")
		t.Setenv("TEST_RD_HOST2", "other")
		t.Setenv("TEST_RD_PORT", "6380")
		cfg, err := ReadRedisConfigFromEnv(
			[]string{"TEST_RD_HOST", "TEST_RD_HOST2"}, []string{"TEST_RD_PORT"}, []string{"TEST_RD_PASS"},
			"localhost", 6379, "",
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Host != "valkey.internal" || cfg.Port != 6380 {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})
}

func TestReadLogConfigFromEnv(t *testing.T) {
	t.Run("empty_dir_disables_file_logging", func(t *testing.T) {
		cfg, err := ReadLogConfigFromEnv()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Dir != "" {
			t.Errorf("expected empty dir, got %q", cfg.Dir)
		}
	})

	t.Run("reads_rotation_settings", func(t *testing.T) {
		t.Setenv("LOG_DIR", "/var/log/anonchat")
		t.Setenv("LOG_FILE_MAX_SIZE_MB", "5")
		t.Setenv("LOG_FILE_MAX_BACKUPS", "3")
		t.Setenv("LOG_FILE_MAX_AGE_DAYS", "14")
		t.Setenv("LOG_FILE_COMPRESS", "false")

		cfg, err := ReadLogConfigFromEnv()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Dir != "/var/log/anonchat" {
			t.Errorf("unexpected dir: %q", cfg.Dir)
		}
		if cfg.MaxSizeMB != 5 || cfg.MaxBackups != 3 || cfg.MaxAgeDays != 14 {
			t.Errorf("unexpected rotation settings: %+v", cfg)
		}
		if cfg.Compress {
			t.Error("expected Compress=false")
		}
	})

	t.Run("invalid_size", func(t *testing.T) {
		t.Setenv("LOG_DIR", "/var/log/anonchat")
		t.Setenv("LOG_FILE_MAX_SIZE_MB", "0")
		if _, err := ReadLogConfigFromEnv(); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}
