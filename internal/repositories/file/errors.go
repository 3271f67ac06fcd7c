// Package file implements the local filesystem repositories: the catalog
// row source, the index artifact store, and the report writer.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// Error implements repositories.RepositoryError for file backed repositories.
type Error struct {
	op          string
	err         error
	notFound    bool
	unavailable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether the error represents a missing file.
func (e *Error) IsNotFound() bool {
	return e != nil && e.notFound
}

// IsConflict always reports false; file repositories have no conflicting
// writers.
func (e *Error) IsConflict() bool {
	return false
}

// IsUnavailable reports whether the error represents an inaccessible path.
func (e *Error) IsUnavailable() bool {
	return e != nil && e.unavailable
}

// WrapError annotates filesystem errors with repository semantics. Context
// cancellations are passed through untouched.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var repoErr *Error
	if errors.As(err, &repoErr) {
		if op != "" && repoErr.op == "" {
			repoErr.op = op
		}
		return repoErr
	}

	e := &Error{op: op, err: err}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		e.notFound = true
	case errors.Is(err, fs.ErrPermission):
		e.unavailable = true
	}
	return e
}
