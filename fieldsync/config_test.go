package fieldsync

import (
	"testing"
	"time"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	if cfg.DeviceID == "" {
		t.Error("device ID not generated")
	}
	if cfg.SyncInterval != 30*time.Second {
		t.Errorf("sync interval = %v, want 30s", cfg.SyncInterval)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("max attempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.Timeout != 15*time.Second {
		t.Errorf("timeout = %v, want 15s", cfg.Timeout)
	}
	if cfg.Debounce != 2*time.Second {
		t.Errorf("debounce = %v, want 2s", cfg.Debounce)
	}
}

func TestConfigWithDefaultsKeepsExplicitValues(t *testing.T) {
	in := Config{
		DeviceID:    "device-7",
		MaxAttempts: 5,
		Timeout:     time.Second,
	}
	cfg := in.withDefaults()

	if cfg.DeviceID != "device-7" || cfg.MaxAttempts != 5 || cfg.Timeout != time.Second {
		t.Fatalf("explicit values overwritten: %+v", cfg)
	}
}

func TestConfigGetRetryConfig(t *testing.T) {
	if got := (Config{}).GetRetryConfig(); got != DefaultRetryConfig() {
		t.Errorf("zero retry config = %+v, want defaults", got)
	}

	custom := RetryConfig{MaxAttempts: 7, InitialWait: time.Second, Multiplier: 3}
	if got := (Config{Retry: custom}).GetRetryConfig(); got != custom {
		t.Errorf("custom retry config = %+v, want %+v", got, custom)
	}
}
