package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// Transport names used in diagnostics.
const (
	TransportDataChannel = "data-channel"
	TransportRelay       = "relay"
)

// Endpoint is one side of the relay bridge.
type Endpoint interface {
	IsOpen() bool
	Send(Frame) error
	// OnMessage registers the single inbound handler.
	OnMessage(func(Frame))
}

// RelaySocket abstracts the persistent side channel to the relay server.
// Owned by the session; only the session closes it.
type RelaySocket interface {
	Endpoint
	OnClose(func())
	Close() error
}

type RelayDialer interface {
	Dial(ctx context.Context) (RelaySocket, error)
}

// Signaler exchanges the local offer for the remote answer in one request/response.
type Signaler interface {
	CreateSession(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
}
