package core

import (
	"context"

	"github.com/dkeye/VoiceBridge/internal/media"
	"github.com/pion/webrtc/v4"
)

// DataChannel is the event sub-channel of a peer connection.
type DataChannel interface {
	Endpoint
	Label() string
	OnOpen(func())
	OnClose(func())
	Close() error
}

type PeerConnection interface {
	// AddTrack attaches a local track as outbound media.
	AddTrack(webrtc.TrackLocal) error
	CreateDataChannel(label string) (DataChannel, error)
	// CreateOffer creates an offer, commits it as local description and returns
	// the local description once candidate gathering finished.
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	// OnRemoteStream sets a callback invoked for every inbound audio stream.
	OnRemoteStream(func(*media.RemoteStream))
	// OnFailed sets a callback invoked when the connection fails.
	OnFailed(func())
	Close() error
}

type PeerFactory interface {
	NewPeerConnection() (PeerConnection, error)
}

// MediaCapturer acquires the local capture device.
type MediaCapturer interface {
	Capture(ctx context.Context, c media.Constraints) (*media.LocalStream, error)
}
