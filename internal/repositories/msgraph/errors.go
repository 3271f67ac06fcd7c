// Package msgraph implements the DirectoryRepository against the Microsoft
// Graph API. It collects licensed users, subscribed SKUs, and conditional
// access policies, and resolves the tenant context from the access token.
package msgraph

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	odataerror "github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
)

// Error implements repositories.RepositoryError for Graph backed repositories.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
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

// IsNotFound reports whether the error represents a missing directory object.
func (e *Error) IsNotFound() bool {
	return e != nil && e.notFound
}

// IsConflict reports whether the error represents a conflicting update.
func (e *Error) IsConflict() bool {
	return e != nil && e.conflict
}

// IsUnavailable reports whether the error represents a transient service or
// authentication failure.
func (e *Error) IsUnavailable() bool {
	return e != nil && e.unavailable
}

func newError(op string, err error) *Error {
	if err == nil {
		return nil
	}

	e := &Error{op: op, err: err}

	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		e.unavailable = true
		return e
	}

	var odataErr *odataerror.ODataError
	if errors.As(err, &odataErr) {
		switch odataErr.ResponseStatusCode {
		case http.StatusNotFound:
			e.notFound = true
		case http.StatusConflict, http.StatusPreconditionFailed:
			e.conflict = true
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			e.unavailable = true
		}
	}
	return e
}

// WrapError annotates Graph errors with repository semantics. Context
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
	return newError(op, err)
}
