package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidBrief    = errors.New("invalid brief")
	ErrInvalidState    = errors.New("invalid state")
	ErrNotAwaiting     = errors.New("job is not awaiting follow-up")
	ErrAlreadyTerminal = errors.New("job already terminal")
	ErrVersionConflict = errors.New("version conflict")
	ErrBusy            = errors.New("job busy, retry later")
	ErrShuttingDown    = errors.New("orchestrator is shutting down")
	ErrLeaseHeld       = errors.New("job is owned by another instance")
	ErrLeaseLost       = errors.New("job ownership lost")
)

// ProviderError is a transient failure of an external provider call
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NotifyError is a failed terminal-state notification
type NotifyError struct {
	Destination string
	Err         error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Destination, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}
