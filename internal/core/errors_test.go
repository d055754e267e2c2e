package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrors(t *testing.T) {
	cause := errors.New("cause")

	he := fmt.Errorf("start: %w", &HandshakeError{Step: StepCreateOffer, Err: cause})
	var target *HandshakeError
	if !errors.As(he, &target) || target.Step != StepCreateOffer || !errors.Is(he, cause) {
		t.Fatalf("HandshakeError not matched: %v", he)
	}

	me := &MediaAcquisitionError{Err: cause}
	if !errors.Is(me, cause) {
		t.Fatal("MediaAcquisitionError does not unwrap")
	}

	tnr := &TransportNotReadyError{Transport: TransportRelay}
	if !errors.Is(tnr, ErrTransportNotReady) {
		t.Fatal("TransportNotReadyError does not match sentinel")
	}
	if tnr.Error() != "relay: transport not ready" {
		t.Fatalf("message = %q", tnr.Error())
	}
}
