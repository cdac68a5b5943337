package domain

import "context"

// Transport is the interface for chat backend I/O. Two variants exist:
// a long-polling REST client and a persistent JSON-RPC socket client.
// Callers never know which variant they hold; both deliver messages
// already normalized to InboundMessage.
type Transport interface {
	Name() string

	// SendMessage delivers text to the given target. Failures are
	// reported, never retried internally.
	SendMessage(ctx context.Context, target ReplyTarget, text string) error

	// ReceiveMessages returns zero or more pending inbound messages.
	// The polling variant blocks up to its long-poll window; the socket
	// variant drains its push queue without blocking.
	ReceiveMessages(ctx context.Context) ([]InboundMessage, error)

	// ListGroups and CreateGroup are defined for REST-style access
	// only; the socket variant returns ErrUnsupported.
	ListGroups(ctx context.Context) ([]GroupInfo, error)
	CreateGroup(ctx context.Context, name string, members []string) (string, error)

	Close() error
}
