package errors

import (
	"errors"
	"fmt"
)

// Standard errors
var (
	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned when the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrDimensionMismatch is returned when an embedding's dimensionality
	// does not match the store's fixed dimension
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrCapacityExceeded is returned when the memory store is at its
	// configured limit and refuses further inserts
	ErrCapacityExceeded = errors.New("memory store capacity exceeded")

	// ErrProviderUnavailable is returned when an individual search provider
	// fails or times out
	ErrProviderUnavailable = errors.New("search provider unavailable")

	// ErrNoResults is returned when all search providers failed or returned
	// nothing
	ErrNoResults = errors.New("no search results found")

	// ErrDuplicateTopic is returned when a topic is registered twice; callers
	// losing a promotion race treat it as a no-op
	ErrDuplicateTopic = errors.New("topic already registered")

	// ErrStaleRunning is returned when a topic has been stuck in the running
	// state past the sanity timeout
	ErrStaleRunning = errors.New("topic stuck in running state")

	// ErrStoreUnavailable is returned when the backing memory store is unreachable
	ErrStoreUnavailable = errors.New("memory store unavailable")

	// ErrLuaExecution is returned when there's an error executing a Lua script
	ErrLuaExecution = errors.New("lua script execution error")
)

// Wrap wraps an error with additional context
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience function that wraps errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target, and if so, sets
// target to that error value and returns true. Otherwise, it returns false.
// This is a convenience function that wraps errors.As
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
