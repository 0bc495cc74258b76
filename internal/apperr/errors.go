// Package apperr defines the sentinel errors shared by storage, index and engine.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidPath   = errors.New("invalid note path")
	// ErrIO wraps failures of the underlying storage medium.
	ErrIO = errors.New("io failure")
	// ErrPoisoned is returned once an engine operation panicked while holding
	// the engine lock. The engine must be re-created.
	ErrPoisoned = errors.New("engine state poisoned")
)
