package bridge

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VoiceBridge/internal/core"
	"github.com/dkeye/VoiceBridge/internal/core/coretest"
	"github.com/rs/zerolog"
)

func setup(t *testing.T, opts Options) (*coretest.DataChannel, *coretest.Relay, *Bridge) {
	t.Helper()
	dc := coretest.NewDataChannel("oai-events")
	dc.SetOpen(true)
	relay := coretest.NewRelay()
	opts.Logger = zerolog.Nop()
	b := New(dc, relay, opts)
	b.Start()
	t.Cleanup(b.Stop)
	return dc, relay, b
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRelayEventReachesPeerVerbatim(t *testing.T) {
	dc, relay, b := setup(t, Options{})

	msg := core.Frame(`{"type":"response.create", "event_id":"e1", "x":[1,2]}`)
	relay.Deliver(msg)

	waitFor(t, "forward", func() bool { return len(dc.Sent()) == 1 })
	if got := string(dc.Sent()[0]); got != string(msg) {
		t.Fatalf("forwarded %q, want %q", got, msg)
	}
	if s := b.Stats(RelayToPeer); s.Forwarded != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestPeerEventReachesRelay(t *testing.T) {
	dc, relay, b := setup(t, Options{})

	dc.Deliver(core.Frame(`{"type":"session.created"}`))
	waitFor(t, "forward", func() bool { return len(relay.Sent()) == 1 })
	if len(dc.Sent()) != 0 {
		t.Fatal("event echoed back to the peer")
	}
	if s := b.Stats(PeerToRelay); s.Forwarded != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestOrderPreservedPerTransport(t *testing.T) {
	dc, relay, _ := setup(t, Options{})

	const n = 100
	for i := 0; i < n; i++ {
		relay.Deliver(core.Frame(fmt.Sprintf(`{"type":"t","seq":%d}`, i)))
	}
	waitFor(t, "all forwarded", func() bool { return len(dc.Sent()) == n })
	for i, f := range dc.Sent() {
		want := fmt.Sprintf(`{"type":"t","seq":%d}`, i)
		if string(f) != want {
			t.Fatalf("message %d = %s, want %s", i, f, want)
		}
	}
}

func TestUnparsableMessageDroppedAlone(t *testing.T) {
	dc, relay, b := setup(t, Options{})

	relay.Deliver(core.Frame(`not json`))
	relay.Deliver(core.Frame(`[1,2]`))
	relay.Deliver(core.Frame(`{"type":"ok"}`))

	waitFor(t, "valid forwarded", func() bool { return len(dc.Sent()) == 1 })
	if s := b.Stats(RelayToPeer); s.Invalid != 2 || s.Forwarded != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestClosedDestinationDropsWithoutBuffering(t *testing.T) {
	dc, relay, b := setup(t, Options{})
	relay.SetOpen(false)

	dc.Deliver(core.Frame(`{"type":"a"}`))
	waitFor(t, "drop", func() bool { return b.Stats(PeerToRelay).Dropped == 1 })

	relay.SetOpen(true)
	dc.Deliver(core.Frame(`{"type":"b"}`))
	waitFor(t, "forward", func() bool { return len(relay.Sent()) == 1 })
	if got := string(relay.Sent()[0]); got != `{"type":"b"}` {
		t.Fatalf("dropped message was retried: %s", got)
	}
}

func TestDuplicatesForwarded(t *testing.T) {
	dc, relay, _ := setup(t, Options{})
	m := core.Frame(`{"type":"x","event_id":"same"}`)
	relay.Deliver(m)
	relay.Deliver(m)
	waitFor(t, "both", func() bool { return len(dc.Sent()) == 2 })
}

func TestTapSeesEveryAcceptedEvent(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	dc, relay, _ := setup(t, Options{Tap: func(d Direction, env core.Envelope, _ core.Frame) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, d.String()+" "+env.Type)
	}})

	dc.Deliver(core.Frame(`{"type":"up"}`))
	waitFor(t, "up", func() bool { return len(relay.Sent()) == 1 })
	relay.Deliver(core.Frame(`{"type":"down"}`))
	waitFor(t, "down", func() bool { return len(dc.Sent()) == 1 })

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "peer->relay up" || seen[1] != "relay->peer down" {
		t.Fatalf("tap saw %v", seen)
	}
}

func TestStopDiscardsLaterMessages(t *testing.T) {
	dc, relay, b := setup(t, Options{})
	b.Stop()
	b.Stop()

	relay.Deliver(core.Frame(`{"type":"late"}`))
	time.Sleep(10 * time.Millisecond)
	if len(dc.Sent()) != 0 {
		t.Fatal("forwarded after Stop")
	}
	b.Start()
	if len(dc.Sent()) != 0 {
		t.Fatal("restart after Stop forwarded")
	}
}

func TestMessagesQueuedBeforeStart(t *testing.T) {
	dc := coretest.NewDataChannel("oai-events")
	relay := coretest.NewRelay()
	b := New(dc, relay, Options{Logger: zerolog.Nop()})
	defer b.Stop()

	relay.Deliver(core.Frame(`{"type":"early"}`))
	dc.SetOpen(true)
	b.Start()

	waitFor(t, "early forwarded", func() bool { return len(dc.Sent()) == 1 })
}

func TestFullQueueWaitsInsteadOfDropping(t *testing.T) {
	dc := coretest.NewDataChannel("oai-events")
	dc.SetOpen(true)
	relay := coretest.NewRelay()
	b := New(dc, relay, Options{QueueSize: 1, Logger: zerolog.Nop()})
	defer b.Stop()

	delivered := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			relay.Deliver(core.Frame(fmt.Sprintf(`{"type":"burst","n":%d}`, i)))
		}
		close(delivered)
	}()

	select {
	case <-delivered:
		t.Fatal("reader was not held back by the full queue")
	case <-time.After(20 * time.Millisecond):
	}

	b.Start()
	<-delivered
	waitFor(t, "burst forwarded", func() bool { return len(dc.Sent()) == 10 })
	if s := b.Stats(RelayToPeer); s.Dropped != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestStopReleasesBlockedReader(t *testing.T) {
	dc := coretest.NewDataChannel("oai-events")
	relay := coretest.NewRelay()
	b := New(dc, relay, Options{QueueSize: 1, Logger: zerolog.Nop()})

	done := make(chan struct{})
	go func() {
		relay.Deliver(core.Frame(`{"type":"a"}`))
		relay.Deliver(core.Frame(`{"type":"b"}`))
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	b.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reader still blocked after Stop")
	}
	if s := b.Stats(RelayToPeer); s.Dropped != 1 {
		t.Fatalf("stats = %+v", s)
	}
}
