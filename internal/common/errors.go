// Package common defines the error taxonomy shared by the client layers and a
// few small helpers. Callers match errors with errors.Is / errors.As.
package common

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNetwork marks timeouts and connection failures. Retried transiently
	// by the request pipeline before surfacing.
	ErrNetwork = errors.New("network error")

	// ErrAuth marks an expired or invalid session that requires a new login.
	ErrAuth = errors.New("authentication required")

	// ErrValidation marks a 4xx response rejected by the backend.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is matched in addition to ErrValidation for 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrServer marks a 5xx response.
	ErrServer = errors.New("server error")

	// ErrCacheMiss means neither the network nor the local store produced data.
	ErrCacheMiss = errors.New("no data available")

	// ErrStorage marks a local database failure.
	ErrStorage = errors.New("storage error")

	// ErrNoSession is returned when no access token is held.
	ErrNoSession = errors.New("no active session")

	// ErrFinalStatus is returned when a client tries to change a completed or
	// cancelled order.
	ErrFinalStatus = errors.New("order status is final")
)

// ValidationError carries the backend-provided field errors of a 4xx response.
type ValidationError struct {
	Status  int
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		if e.Message != "" {
			return e.Message
		}
		return fmt.Sprintf("request rejected with status %d", e.Status)
	}

	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], ", "))
	}
	return strings.Join(parts, "; ")
}

// Is makes every ValidationError match ErrValidation, and 404s match ErrNotFound.
func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	return target == ErrNotFound && e.Status == 404
}

// NetworkError wraps err so that it matches ErrNetwork.
func NetworkError(err error) error {
	if err == nil || errors.Is(err, ErrNetwork) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}

// StorageError wraps a local database failure for operation op.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
