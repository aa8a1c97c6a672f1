package messages

import "errors"

var (
	// ErrDuplicateKind is returned when a (owner, kind) pair is registered twice.
	ErrDuplicateKind = errors.New("duplicate message kind")
	// ErrUnknownKind is returned when a (owner, kind) pair is not registered.
	ErrUnknownKind = errors.New("unknown message kind")
	// ErrRegistryFrozen is returned when registering after startup.
	ErrRegistryFrozen = errors.New("registry is frozen")
	// ErrOwnershipViolation is returned when a sender publishes a kind it does not own.
	ErrOwnershipViolation = errors.New("ownership violation")
	// ErrEndpointClosed is returned when a torn-down endpoint is used.
	ErrEndpointClosed = errors.New("endpoint closed")
)
