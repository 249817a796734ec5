package model

import (
	"errors"
	"fmt"
)

// NotFoundError reports that a registry lookup failed for the given entity
// kind and id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no such %s: %s", e.Kind, e.ID)
}

// NewNotFoundError creates a NotFoundError for the given entity kind.
func NewNotFoundError(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

var (
	// ErrNoSuchPath is returned when a device tree path does not resolve to
	// an existing node.
	ErrNoSuchPath = errors.New("no such device tree path")

	// ErrClientNotSubscribed is returned when an unsubscription targets a
	// path the client is not subscribed to.
	ErrClientNotSubscribed = errors.New("client not subscribed to this path")

	// ErrNotSupported is returned by a driver that lacks the requested
	// capability.
	ErrNotSupported = errors.New("operation not supported")

	// ErrNotImplemented is returned by a driver capability that declines the
	// requested operation.
	ErrNotImplemented = errors.New("operation not implemented")
)
