package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendNotFound is returned when no engine is registered under a name.
	ErrBackendNotFound = errors.New("cache: backend not found")
	// ErrStorageUnavailable wraps every failure of the underlying store.
	ErrStorageUnavailable = errors.New("cache: storage unavailable")
)

// Unavailable wraps err with ErrStorageUnavailable, keeping err in the chain.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
