package fieldsync

import (
	"time"

	"github.com/google/uuid"
)

// Config controls sync client behavior.
type Config struct {
	BaseURL      string        // remote API base, e.g. https://api.example.com
	DeviceID     string        // stable device identifier (generated if empty)
	SyncInterval time.Duration // periodic sync tick (default: 30s)
	MaxAttempts  int           // upload/download attempt budget per entry (default: 3)
	Timeout      time.Duration // HTTP client timeout (default: 15s)
	Debounce     time.Duration // minimum gap between reconnect-triggered syncs (default: 2s)
	Retry        RetryConfig   // retry settings for callers using WithRetry (zero uses defaults)
}

func (c Config) withDefaults() Config {
	if c.DeviceID == "" {
		c.DeviceID = uuid.NewString()
	}
	if c.SyncInterval == 0 {
		c.SyncInterval = 30 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Debounce == 0 {
		c.Debounce = 2 * time.Second
	}
	return c
}

// GetRetryConfig returns Retry config or defaults if not set.
func (c Config) GetRetryConfig() RetryConfig {
	if c.Retry.MaxAttempts == 0 {
		return DefaultRetryConfig()
	}
	return c.Retry
}
