package core

import (
	"errors"
	"fmt"
)

var (
	ErrTransportNotReady = errors.New("transport not ready")
	ErrSessionStopped    = errors.New("session stopped")
	ErrBackpressure      = errors.New("backpressure")
)

// Step names one stage of session activation.
type Step string

const (
	StepPeerConnection    Step = "peer-connection"
	StepRelayDial         Step = "relay-dial"
	StepAcquireMedia      Step = "acquire-media"
	StepAddTrack          Step = "add-track"
	StepCreateDataChannel Step = "create-data-channel"
	StepCreateOffer       Step = "create-offer"
	StepExchange          Step = "exchange"
	StepSetRemote         Step = "set-remote-description"
	StepChannelOpen       Step = "channel-open"
)

// HandshakeError reports the activation step that failed.
type HandshakeError struct {
	Step Step
	Err  error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake %s: %v", e.Step, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// MediaAcquisitionError means the capture device was unavailable or denied.
type MediaAcquisitionError struct {
	Err error
}

func (e *MediaAcquisitionError) Error() string {
	return fmt.Sprintf("media acquisition: %v", e.Err)
}

func (e *MediaAcquisitionError) Unwrap() error { return e.Err }

// TransportNotReadyError is returned when sending on a closed data channel or relay socket.
type TransportNotReadyError struct {
	Transport string
}

func (e *TransportNotReadyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Transport, ErrTransportNotReady)
}

func (e *TransportNotReadyError) Is(target error) bool { return target == ErrTransportNotReady }

// MessageParseError is a malformed payload received on a transport.
type MessageParseError struct {
	Source string
	Err    error
}

func (e *MessageParseError) Error() string {
	return fmt.Sprintf("parse %s message: %v", e.Source, e.Err)
}

func (e *MessageParseError) Unwrap() error { return e.Err }
