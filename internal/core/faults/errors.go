package faults

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed marks a provider response that could not be parsed into findings.
	ErrMalformed = errors.New("malformed response")
	// ErrRejected marks a provider that refused the call (quota, auth, safety block).
	ErrRejected = errors.New("request rejected")
	// ErrUnavailable marks a provider that is configured out or temporarily down.
	ErrUnavailable = errors.New("provider unavailable")
)

type ProviderError struct {
	Provider string
	Kind     Kind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ValidationError rejects a request before any provider is called.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

type ConfigError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// StorageError wraps a failed store operation. Store is one of
// "relational", "vector" or "graph".
type StorageError struct {
	Store string
	Op    string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s store: %s: %v", e.Store, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
