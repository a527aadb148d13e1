package fieldsync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.InitialWait != 500*time.Millisecond {
		t.Errorf("InitialWait = %v, want 500ms", cfg.InitialWait)
	}
	if cfg.MaxWait != 30*time.Second {
		t.Errorf("MaxWait = %v, want 30s", cfg.MaxWait)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v, want 2.0", cfg.Multiplier)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network failure", ErrNetworkFailure, true},
		{"wrapped network failure", fmt.Errorf("send: %w", ErrNetworkFailure), true},
		{"server error", ErrServerError, true},
		{"no token", ErrNoToken, false},
		{"unknown resource", ErrUnknownResource, false},
		{"storage fault", storageErr("save farm", errors.New("disk full")), false},
		{"plain error", errors.New("whatever"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithRetrySuccess(t *testing.T) {
	calls := 0
	got, err := WithRetry(context.Background(), DefaultRetryConfig(), "op", func() (int, error) {
		calls++
		return 42, nil
	})
	if err != nil || got != 42 || calls != 1 {
		t.Fatalf("got %d (calls=%d), err=%v", got, calls, err)
	}
}

func TestWithRetryRecoversFromTransientFailure(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, Multiplier: 2}
	calls := 0
	got, err := WithRetry(context.Background(), cfg, "op", func() (string, error) {
		calls++
		if calls < 3 {
			return "", ErrNetworkFailure
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("got %q, err=%v", got, err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, Multiplier: 2}
	calls := 0
	_, err := WithRetry(context.Background(), cfg, "sync", func() (int, error) {
		calls++
		return 0, ErrNetworkFailure
	})
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	var opErr *OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("err = %T, want *OpError", err)
	}
	if opErr.Op != "sync" || opErr.Attempts != 3 {
		t.Fatalf("op error = %+v", opErr)
	}
	if !errors.Is(err, ErrNetworkFailure) {
		t.Fatalf("cause not preserved: %v", err)
	}
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), DefaultRetryConfig(), "op", func() (int, error) {
		calls++
		return 0, ErrNoToken
	})
	if calls != 1 {
		t.Fatalf("permanent error retried, calls = %d", calls)
	}
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("err = %v", err)
	}
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{MaxAttempts: 3, InitialWait: time.Hour}
	_, err := WithRetry(ctx, cfg, "op", func() (int, error) {
		return 0, ErrNetworkFailure
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
