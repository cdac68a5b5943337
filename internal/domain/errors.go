package domain

import "errors"

var (
	// ErrTimeout reports an RPC or REST call that exceeded its
	// deadline. The caller retries at the next poll cycle, never
	// within the same cycle.
	ErrTimeout = errors.New("operation timed out")

	// ErrConnectionLost reports a dropped socket. All pending RPC
	// calls fail with it; the transport reconnects on its own.
	ErrConnectionLost = errors.New("connection lost")

	// ErrUnsupported reports an operation the active transport
	// variant has no protocol equivalent for.
	ErrUnsupported = errors.New("operation not supported by this transport")

	// ErrNotFound reports an entity resolution miss.
	ErrNotFound = errors.New("entity not found")
)
