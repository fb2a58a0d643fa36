package shared

import (
	"errors"
	"fmt"
)

// Sentinel errors for the authorization core. Validation errors are detected
// before any write and surface to the caller without partial effects.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness constraint was violated.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrCycle occurs when a role mutation would make the role hierarchy cyclic.
	ErrCycle = errors.New("role hierarchy cycle")
	// ErrGraphCorruption occurs when a cycle is detected while reading the
	// role hierarchy, meaning data was inserted outside the graph API.
	ErrGraphCorruption = errors.New("role hierarchy corrupted")
	// ErrAmbiguousSubject occurs when an object grant names both a user and a role.
	ErrAmbiguousSubject = errors.New("object grant subject is ambiguous")
	// ErrMissingSubject occurs when an object grant names neither a user nor a role.
	ErrMissingSubject = errors.New("object grant subject is missing")
	// ErrUnknownUser indicates the referenced user does not exist.
	ErrUnknownUser = errors.New("unknown user")
	// ErrUnknownObjectType indicates the referenced object type is not registered.
	ErrUnknownObjectType = errors.New("unknown object type")
	// ErrVersionConflict indicates a document version write-write race that
	// retries could not resolve.
	ErrVersionConflict = errors.New("concurrent version conflict")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// PersistenceError wraps an underlying store failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying store error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persistence wraps err as a PersistenceError, passing nil through.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
