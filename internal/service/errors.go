package service

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound is returned when a task does not exist for the user.
	ErrTaskNotFound = errors.New("task not found")
	// ErrProfileNotFound is returned when a user has no profile record.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrInvalidUsername is returned for empty or overlong usernames.
	ErrInvalidUsername = errors.New("username must be between 1 and 64 characters")
	// ErrInvalidTask is returned for tasks without an owner, without a name or
	// with an overlong name.
	ErrInvalidTask = errors.New("task needs an owner and a name of at most 256 characters")
)

// PersistenceError wraps a failed write or read against the document store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
