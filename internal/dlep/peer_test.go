package dlep_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/go-dlep/dlep/internal/dlep"
)

// fakeStream records every Write, standing in for the TCP byte stream a
// real transport would supply (spec.md §1's injected Stream collaborator).
type fakeStream struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (s *fakeStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(p))
	copy(buf, p)
	s.frames = append(s.frames, buf)
	return len(p), nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// drain returns every frame written since the last drain, concatenated.
func (s *fakeStream) drain() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for _, f := range s.frames {
		out = append(out, f...)
	}
	s.frames = nil
	return out
}

// recordingCallbacks captures every ClientCallbacks invocation for
// assertion, grounded on the same spy-callback idiom internal/bfd's
// callback tests use.
type recordingCallbacks struct {
	mu               sync.Mutex
	ups              []dlep.PeerInfo
	downs            []string
	downReasons      []error
	destinationsUp   []dlep.Mac
	destinationsDown []dlep.Mac
}

func (r *recordingCallbacks) PeerUp(info dlep.PeerInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ups = append(r.ups, info)
}

func (r *recordingCallbacks) PeerDown(peerID string, reason error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downs = append(r.downs, peerID)
	r.downReasons = append(r.downReasons, reason)
}

func (r *recordingCallbacks) DestinationUp(peerID string, mac dlep.Mac, items []dlep.DataItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destinationsUp = append(r.destinationsUp, mac)
}

func (r *recordingCallbacks) DestinationUpdate(string, dlep.Mac, []dlep.DataItem) {}

func (r *recordingCallbacks) DestinationDown(peerID string, mac dlep.Mac) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destinationsDown = append(r.destinationsDown, mac)
}

func (r *recordingCallbacks) PeerUpdate(string, []dlep.DataItem) {}

func (r *recordingCallbacks) upCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ups)
}

func (r *recordingCallbacks) downCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.downs)
}

var _ dlep.ClientCallbacks = (*recordingCallbacks)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newTestPeer builds a Peer of role against its own fresh InformationBase,
// writing to stream and reporting to cb. localItems, if non-nil, is
// declared on the peer's own local data before construction, so the
// handshake this Peer sends (router side) or responds with (modem side)
// carries them — required for any metric id the test later exercises on a
// destination or Session_Update, since validateBatchLocked now checks a
// peer's own declared-metrics set rather than the catalogue alone.
func newTestPeer(t *testing.T, cat dlep.ProtocolConfig, clock dlep.Clock, id string, role dlep.Role, stream dlep.Stream, cb dlep.ClientCallbacks, localItems ...dlep.DataItem) *dlep.Peer {
	t.Helper()
	ib := dlep.NewInformationBase()
	ib.AddPeer(id)
	if len(localItems) > 0 {
		if err := ib.UpdatePeerItems(cat, id, localItems); err != nil {
			t.Fatalf("UpdatePeerItems (seed local data): %v", err)
		}
	}
	return dlep.NewPeer(ib, dlep.PeerConfig{
		ID:                       id,
		Role:                     role,
		Catalogue:                cat,
		Codec:                    dlep.NewTLVCodec(),
		Stream:                   stream,
		Clock:                    clock,
		Callbacks:                cb,
		Logger:                   testLogger(),
		HeartbeatInterval:        1 * time.Second,
		RetryInterval:            1 * time.Second,
		MaxRetries:               3,
		MissedHeartbeatThreshold: 4,
	})
}

// handshake drives router and modem through Session_Initialization /
// Session_Initialization_Response to in_session, synchronously.
func handshake(t *testing.T, router, modem *dlep.Peer, routerStream, modemStream *fakeStream) {
	t.Helper()
	if err := router.Start(); err != nil {
		t.Fatalf("router.Start: %v", err)
	}
	if err := modem.Feed(routerStream.drain()); err != nil {
		t.Fatalf("modem.Feed(init): %v", err)
	}
	if err := router.Feed(modemStream.drain()); err != nil {
		t.Fatalf("router.Feed(init resp): %v", err)
	}
	if router.State() != dlep.StateInSession {
		t.Fatalf("router.State() = %v, want in_session", router.State())
	}
	if modem.State() != dlep.StateInSession {
		t.Fatalf("modem.State() = %v, want in_session", modem.State())
	}
}

func TestPeerHandshakeReachesInSessionBothSides(t *testing.T) {
	t.Parallel()

	cat := dlep.NewStaticCatalogue()
	clock := clockwork.NewFakeClock()

	routerStream, modemStream := &fakeStream{}, &fakeStream{}
	routerCB, modemCB := &recordingCallbacks{}, &recordingCallbacks{}

	router := newTestPeer(t, cat, clock, "peer-a", dlep.RoleRouter, routerStream, routerCB)
	modem := newTestPeer(t, cat, clock, "peer-a", dlep.RoleModem, modemStream, modemCB)

	handshake(t, router, modem, routerStream, modemStream)

	if routerCB.upCount() != 1 {
		t.Errorf("router PeerUp calls = %d, want 1", routerCB.upCount())
	}
	if modemCB.upCount() != 1 {
		t.Errorf("modem PeerUp calls = %d, want 1", modemCB.upCount())
	}
}

func TestPeerModemStartIsNoop(t *testing.T) {
	t.Parallel()

	cat := dlep.NewStaticCatalogue()
	clock := clockwork.NewFakeClock()
	stream := &fakeStream{}
	modem := newTestPeer(t, cat, clock, "peer-a", dlep.RoleModem, stream, dlep.NopCallbacks{})

	if err := modem.Start(); err != nil {
		t.Fatalf("modem.Start: %v", err)
	}
	if len(stream.drain()) != 0 {
		t.Error("modem.Start wrote bytes, want none (modem waits for the router to open)")
	}
	if modem.State() != dlep.StateConnected {
		t.Errorf("modem.State() = %v, want connected", modem.State())
	}
}

func TestPeerDestinationUpLifecycle(t *testing.T) {
	t.Parallel()

	cat := dlep.NewStaticCatalogue().WithMetric(10)
	clock := clockwork.NewFakeClock()

	routerStream, modemStream := &fakeStream{}, &fakeStream{}
	routerCB, modemCB := &recordingCallbacks{}, &recordingCallbacks{}

	// Router declares metric 10 in its own handshake batch, so the modem
	// (which learns its per-peer declared-metrics set from that batch)
	// will later accept a Destination_Up carrying it.
	router := newTestPeer(t, cat, clock, "peer-a", dlep.RoleRouter, routerStream, routerCB, dlep.DataItem{ID: 10, Value: []byte{0}})
	modem := newTestPeer(t, cat, clock, "peer-a", dlep.RoleModem, modemStream, modemCB)
	handshake(t, router, modem, routerStream, modemStream)

	mac := dlep.Mac{1, 2, 3, 4, 5, 6}
	items := []dlep.DataItem{{ID: 10, Value: []byte{42}}}

	if err := router.EnqueueDestinationUp(mac, items); err != nil {
		t.Fatalf("EnqueueDestinationUp: %v", err)
	}

	if err := modem.Feed(routerStream.drain()); err != nil {
		t.Fatalf("modem.Feed(destination up): %v", err)
	}
	if modemCB.destinationsUp == nil || modemCB.destinationsUp[0] != mac {
		t.Fatalf("modem DestinationUp callback not invoked with mac %v: got %v", mac, modemCB.destinationsUp)
	}

	if err := router.Feed(modemStream.drain()); err != nil {
		t.Fatalf("router.Feed(destination up response): %v", err)
	}

	// Now Destination_Down closes it out.
	if err := router.EnqueueDestinationDown(mac); err != nil {
		t.Fatalf("EnqueueDestinationDown: %v", err)
	}
	if err := modem.Feed(routerStream.drain()); err != nil {
		t.Fatalf("modem.Feed(destination down): %v", err)
	}
	if len(modemCB.destinationsDown) != 1 || modemCB.destinationsDown[0] != mac {
		t.Fatalf("modem DestinationDown callback not invoked: got %v", modemCB.destinationsDown)
	}
	if err := router.Feed(modemStream.drain()); err != nil {
		t.Fatalf("router.Feed(destination down response): %v", err)
	}
}

func TestPeerTerminateSendsSessionTermination(t *testing.T) {
	t.Parallel()

	cat := dlep.NewStaticCatalogue()
	clock := clockwork.NewFakeClock()
	routerStream, modemStream := &fakeStream{}, &fakeStream{}
	routerCB, modemCB := &recordingCallbacks{}, &recordingCallbacks{}

	router := newTestPeer(t, cat, clock, "peer-a", dlep.RoleRouter, routerStream, routerCB)
	modem := newTestPeer(t, cat, clock, "peer-a", dlep.RoleModem, modemStream, modemCB)
	handshake(t, router, modem, routerStream, modemStream)

	router.Terminate(errors.New("boom"))
	if router.State() != dlep.StateTerminating {
		t.Fatalf("router.State() = %v, want terminating", router.State())
	}

	wire := routerStream.drain()
	if len(wire) == 0 {
		t.Fatal("Terminate did not write Session_Termination")
	}

	if err := modem.Feed(wire); err != nil {
		t.Fatalf("modem.Feed(session termination): %v", err)
	}
	if modem.State() != dlep.StateDestroyed {
		t.Fatalf("modem.State() = %v, want destroyed", modem.State())
	}
	if modemCB.downCount() != 1 {
		t.Errorf("modem PeerDown calls = %d, want 1", modemCB.downCount())
	}

	if err := router.Feed(modemStream.drain()); err != nil {
		t.Fatalf("router.Feed(session termination response): %v", err)
	}
	if router.State() != dlep.StateDestroyed {
		t.Fatalf("router.State() = %v, want destroyed", router.State())
	}
	if routerCB.downCount() != 1 {
		t.Errorf("router PeerDown calls = %d, want 1", routerCB.downCount())
	}
}

func TestPeerRunDestroysOnTerminationTimeout(t *testing.T) {
	t.Parallel()

	cat := dlep.NewStaticCatalogue()
	clock := clockwork.NewFakeClock()
	stream := &fakeStream{}
	cb := &recordingCallbacks{}

	router := newTestPeer(t, cat, clock, "peer-a", dlep.RoleRouter, stream, cb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go router.Run(ctx)

	// Force straight to terminating without a modem on the other end, so
	// no Session_Termination_Response will ever arrive.
	router.Terminate(errors.New("boom"))

	// Three timers are outstanding by now: heartbeat, acktivity (both
	// armed at construction) and termination (armed by Terminate above).
	clock.BlockUntil(3)

	// Mirrors Peer.terminateLocked's retryInterval*(maxRetries+1)
	// termination-timer wait, using the same RetryInterval/MaxRetries
	// newTestPeer configures.
	const terminationWait = 1 * time.Second * 4
	clock.Advance(terminationWait)

	select {
	case <-router.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the termination timer fired")
	}
	if router.State() != dlep.StateDestroyed {
		t.Fatalf("router.State() = %v, want destroyed", router.State())
	}
	if cb.downCount() != 1 {
		t.Errorf("PeerDown calls = %d, want 1", cb.downCount())
	}
}
