// ABOUTME: Typed errors for the offline sync core.
// ABOUTME: Enables programmatic error handling with errors.Is() and errors.As().
package fieldsync

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for programmatic handling.
var (
	ErrNotInitialized  = errors.New("store not initialized")
	ErrNoToken         = errors.New("no access token")
	ErrUnknownResource = errors.New("unknown resource")
	ErrNetworkFailure  = errors.New("network failure")
	ErrServerError     = errors.New("server error")
	ErrStorage         = errors.New("storage fault")
	ErrOffline         = errors.New("device offline")
)

// StorageError wraps a local store I/O fault with the failing operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// OpError wraps sync operation failures with attempt context.
type OpError struct {
	Op       string // "upload", "download", "refresh", "photo-upload"
	Err      error  // underlying typed error
	Attempts int    // attempts made
	Detail   string // server message if any
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// ErrorType classifies recoverable failures surfaced to the UI.
type ErrorType string

const (
	NetworkError    ErrorType = "NETWORK_ERROR"
	ValidationError ErrorType = "VALIDATION_ERROR"
	ServerError     ErrorType = "SERVER_ERROR"
	StorageFault    ErrorType = "STORAGE_ERROR"
)

// SyncError is a UI-facing record of a recoverable sync failure. It is a
// status artifact, not a Go error; the error taxonomy above feeds it.
type SyncError struct {
	ID        int64     `json:"id"`
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}
