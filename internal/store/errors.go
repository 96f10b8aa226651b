package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entry does not exist. It is the
	// cache-miss signal and never reaches HTTP clients.
	ErrNotFound = errors.New("not found")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store closed")
)

// StorageError wraps a failed store operation on a named cache.
type StorageError struct {
	Op    string
	Cache string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Cache, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Wrap returns err as a *StorageError unless it is nil or ErrNotFound.
func Wrap(op, cache string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Cache: cache, Err: err}
}
