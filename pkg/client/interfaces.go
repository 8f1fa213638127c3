package client

import (
	"context"

	"github.com/aeolun/kindred/pkg/protocol"
)

// Dialer opens live-update transports. Dial blocks until the handshake
// completes or fails; it is always called off the event loop.
type Dialer interface {
	Dial(ctx context.Context, token string) (Transport, error)
}

// Transport is one established live-update connection
type Transport interface {
	// Run starts delivering inbound frames to handler. It does not block.
	Run(handler TransportHandler)
	// Send queues an outbound frame without blocking
	Send(data []byte) error
	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// TransportHandler receives a running transport's events. Both methods are
// called from transport goroutines. HandleClose is called exactly once.
type TransportHandler interface {
	HandleFrame(data []byte)
	HandleClose(err error)
}

// Sink is the part of the Store the live-update channel reads and mutates
type Sink interface {
	Token() string
	InboxRoom() string
	ActiveRoom() string
	ApplyLiveMessage(m protocol.Message)
	SetTyping(room, userID string, typing bool)
	SetChannelStatus(status string)
}

// Announcer broadcasts presence on channel transitions
type Announcer interface {
	Online()
	Offline()
}

// StateInterface defines the interface for client state persistence
// This allows for mocking in tests while the real State implements all these methods
type StateInterface interface {
	GetConfig(key string) (string, error)
	SetConfig(key, value string) error

	// Session token
	GetToken() string
	SetToken(token string) error
	ClearToken() error

	GetStateDir() string
	Close() error
}
