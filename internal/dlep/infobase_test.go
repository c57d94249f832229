package dlep_test

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/go-dlep/dlep/internal/dlep"
)

func testCatalogue() *dlep.StaticCatalogue {
	return dlep.NewStaticCatalogue().WithMetric(10).WithIPAddress(20)
}

func mustAddr(t *testing.T, s string) netip.Addr {
	t.Helper()
	addr, err := netip.ParseAddr(s)
	if err != nil {
		t.Fatalf("ParseAddr(%q): %v", s, err)
	}
	return addr
}

func TestInformationBaseAddPeerIdempotentDestinations(t *testing.T) {
	t.Parallel()

	ib := dlep.NewInformationBase()
	ib.AddPeer("peer-1")

	macs, err := ib.Destinations("peer-1")
	if err != nil {
		t.Fatalf("Destinations: %v", err)
	}
	if len(macs) != 0 {
		t.Errorf("Destinations = %v, want empty", macs)
	}

	if _, err := ib.Destinations("peer-unknown"); !errors.Is(err, dlep.ErrUnknownPeer) {
		t.Errorf("Destinations(unknown) error = %v, want ErrUnknownPeer", err)
	}
}

func TestInformationBaseAddDestinationRejectsDuplicate(t *testing.T) {
	t.Parallel()

	cat := testCatalogue()
	ib := dlep.NewInformationBase()
	ib.AddPeer("peer-1")

	mac := dlep.Mac{0, 1, 2, 3, 4, 5}

	if _, err := ib.AddDestination(cat, "peer-1", mac, nil); err != nil {
		t.Fatalf("AddDestination: %v", err)
	}

	if _, err := ib.AddDestination(cat, "peer-1", mac, nil); !errors.Is(err, dlep.ErrDestinationExists) {
		t.Errorf("AddDestination duplicate error = %v, want ErrDestinationExists", err)
	}
}

func TestInformationBaseAddDestinationRejectsUndeclaredMetric(t *testing.T) {
	t.Parallel()

	cat := testCatalogue()
	ib := dlep.NewInformationBase()
	ib.AddPeer("peer-1")

	mac := dlep.Mac{0, 1, 2, 3, 4, 5}
	items := []dlep.DataItem{{ID: 99, Value: []byte{1}}}

	if _, err := ib.AddDestination(cat, "peer-1", mac, items); !errors.Is(err, dlep.ErrInvalidMetric) {
		t.Errorf("AddDestination undeclared metric error = %v, want ErrInvalidMetric", err)
	}

	// Nothing should have been created.
	if _, err := ib.Destination("peer-1", mac); !errors.Is(err, dlep.ErrUnknownDestination) {
		t.Errorf("Destination after rejected batch error = %v, want ErrUnknownDestination", err)
	}
}

// TestInformationBaseUpdatePeerItemsRejectsPeerUndeclaredMetric is spec.md
// §8 Scenario 2: a metric id the catalogue knows about but this particular
// peer never declared during its own handshake must still be rejected, even
// though a catalogue-global check alone would accept it.
func TestInformationBaseUpdatePeerItemsRejectsPeerUndeclaredMetric(t *testing.T) {
	t.Parallel()

	const latency, rlq, throughput = 10, 11, 12
	cat := dlep.NewStaticCatalogue().WithMetric(latency).WithMetric(rlq).WithMetric(throughput)
	ib := dlep.NewInformationBase()
	ib.AddPeer("peer-1")

	// P1 declares {LATENCY, RLQ} at handshake.
	declare := []dlep.DataItem{
		{ID: latency, Value: []byte{1}},
		{ID: rlq, Value: []byte{2}},
	}
	if err := ib.UpdatePeerItems(cat, "peer-1", declare); err != nil {
		t.Fatalf("UpdatePeerItems (declare): %v", err)
	}

	// A later Session_Update naming THROUGHPUT — catalogue-valid, but
	// never declared by this peer — must be rejected atomically.
	update := []dlep.DataItem{{ID: throughput, Value: []byte{42}}}
	if err := ib.UpdatePeerItems(cat, "peer-1", update); !errors.Is(err, dlep.ErrInvalidMetric) {
		t.Errorf("UpdatePeerItems(THROUGHPUT) error = %v, want ErrInvalidMetric", err)
	}

	local, err := ib.PeerLocalData("peer-1")
	if err != nil {
		t.Fatalf("PeerLocalData: %v", err)
	}
	if _, ok := local.Metric(throughput); ok {
		t.Error("rejected batch mutated the peer's metric store")
	}

	// LATENCY and RLQ, the declared metrics, remain independently
	// updatable.
	if err := ib.UpdatePeerItems(cat, "peer-1", []dlep.DataItem{{ID: latency, Value: []byte{9}}}); err != nil {
		t.Errorf("UpdatePeerItems(LATENCY) after rejected batch: %v", err)
	}
}

// TestInformationBaseAddDestinationRejectsPeerUndeclaredMetric covers the
// same per-peer declared-metrics rule as it applies to destination-scoped
// batches (spec.md §4.1: destination metrics ride on the peer-level
// declared set, not a separate catalogue-global or per-destination one).
func TestInformationBaseAddDestinationRejectsPeerUndeclaredMetric(t *testing.T) {
	t.Parallel()

	const latency, throughput = 10, 12
	cat := dlep.NewStaticCatalogue().WithMetric(latency).WithMetric(throughput)
	ib := dlep.NewInformationBase()
	ib.AddPeer("peer-1")

	if err := ib.UpdatePeerItems(cat, "peer-1", []dlep.DataItem{{ID: latency, Value: []byte{1}}}); err != nil {
		t.Fatalf("UpdatePeerItems (declare): %v", err)
	}

	mac := dlep.Mac{0, 1, 2, 3, 4, 5}
	items := []dlep.DataItem{{ID: throughput, Value: []byte{42}}}
	if _, err := ib.AddDestination(cat, "peer-1", mac, items); !errors.Is(err, dlep.ErrInvalidMetric) {
		t.Errorf("AddDestination(THROUGHPUT) error = %v, want ErrInvalidMetric", err)
	}
	if _, err := ib.Destination("peer-1", mac); !errors.Is(err, dlep.ErrUnknownDestination) {
		t.Errorf("Destination after rejected batch error = %v, want ErrUnknownDestination", err)
	}
}

func TestInformationBaseIPUniquenessAcrossPeers(t *testing.T) {
	t.Parallel()

	cat := testCatalogue()
	ib := dlep.NewInformationBase()
	ib.AddPeer("peer-1")
	ib.AddPeer("peer-2")

	addr := mustAddr(t, "10.0.0.1")
	ipItem := dlep.DataItem{ID: 20, Op: dlep.IPAdd, Addr: addr, PrefixLen: 32}

	mac1 := dlep.Mac{0, 0, 0, 0, 0, 1}
	if _, err := ib.AddDestination(cat, "peer-1", mac1, []dlep.DataItem{ipItem}); err != nil {
		t.Fatalf("AddDestination peer-1: %v", err)
	}

	owner, ok := ib.FindIPOwner(ipItem)
	if !ok || owner != "peer-1" {
		t.Fatalf("FindIPOwner = (%q, %v), want (peer-1, true)", owner, ok)
	}

	mac2 := dlep.Mac{0, 0, 0, 0, 0, 2}
	if _, err := ib.AddDestination(cat, "peer-2", mac2, []dlep.DataItem{ipItem}); !errors.Is(err, dlep.ErrIPConflict) {
		t.Errorf("AddDestination conflicting IP error = %v, want ErrIPConflict", err)
	}

	// Conflict rejection must be atomic: peer-2 gets no destination at all.
	if _, err := ib.Destination("peer-2", mac2); !errors.Is(err, dlep.ErrUnknownDestination) {
		t.Errorf("Destination(peer-2) after rejected batch error = %v, want ErrUnknownDestination", err)
	}
}

func TestInformationBaseIPReleasedOnRemoveDestination(t *testing.T) {
	t.Parallel()

	cat := testCatalogue()
	ib := dlep.NewInformationBase()
	ib.AddPeer("peer-1")

	addr := mustAddr(t, "10.0.0.1")
	ipItem := dlep.DataItem{ID: 20, Op: dlep.IPAdd, Addr: addr, PrefixLen: 32}
	mac := dlep.Mac{0, 0, 0, 0, 0, 1}

	if _, err := ib.AddDestination(cat, "peer-1", mac, []dlep.DataItem{ipItem}); err != nil {
		t.Fatalf("AddDestination: %v", err)
	}

	if _, err := ib.RemoveDestination("peer-1", mac); err != nil {
		t.Fatalf("RemoveDestination: %v", err)
	}

	if _, ok := ib.FindIPOwner(ipItem); ok {
		t.Error("FindIPOwner still reports an owner after RemoveDestination")
	}

	// The address should now be available to another peer.
	ib.AddPeer("peer-2")
	if _, err := ib.AddDestination(cat, "peer-2", mac, []dlep.DataItem{ipItem}); err != nil {
		t.Errorf("AddDestination after release: %v", err)
	}
}

func TestInformationBaseIPReleasedOnRemovePeer(t *testing.T) {
	t.Parallel()

	cat := testCatalogue()
	ib := dlep.NewInformationBase()
	ib.AddPeer("peer-1")

	addr := mustAddr(t, "10.0.0.1")
	ipItem := dlep.DataItem{ID: 20, Op: dlep.IPAdd, Addr: addr, PrefixLen: 32}
	mac := dlep.Mac{0, 0, 0, 0, 0, 1}

	if _, err := ib.AddDestination(cat, "peer-1", mac, []dlep.DataItem{ipItem}); err != nil {
		t.Fatalf("AddDestination: %v", err)
	}

	ib.RemovePeer("peer-1")

	if _, ok := ib.FindIPOwner(ipItem); ok {
		t.Error("FindIPOwner still reports an owner after RemovePeer")
	}
}

func TestInformationBaseUpdateDestinationMetricReplacesById(t *testing.T) {
	t.Parallel()

	cat := testCatalogue()
	ib := dlep.NewInformationBase()
	ib.AddPeer("peer-1")

	// A peer's first UpdatePeerItems call is its declaring handshake
	// batch; metric 10 must be in it before any destination of this peer
	// may carry it.
	if err := ib.UpdatePeerItems(cat, "peer-1", []dlep.DataItem{{ID: 10, Value: []byte{0}}}); err != nil {
		t.Fatalf("UpdatePeerItems (declare): %v", err)
	}

	mac := dlep.Mac{0, 0, 0, 0, 0, 1}
	if _, err := ib.AddDestination(cat, "peer-1", mac, []dlep.DataItem{{ID: 10, Value: []byte{1}}}); err != nil {
		t.Fatalf("AddDestination: %v", err)
	}

	if err := ib.UpdateDestination(cat, "peer-1", mac, []dlep.DataItem{{ID: 10, Value: []byte{2}}}); err != nil {
		t.Fatalf("UpdateDestination: %v", err)
	}

	dest, err := ib.Destination("peer-1", mac)
	if err != nil {
		t.Fatalf("Destination: %v", err)
	}

	metric, ok := dest.Metric(10)
	if !ok {
		t.Fatal("Metric(10) not found")
	}
	if len(metric.Value) != 1 || metric.Value[0] != 2 {
		t.Errorf("Metric(10).Value = %v, want [2]", metric.Value)
	}
}

func TestInformationBaseUpdateDestinationUnknownMac(t *testing.T) {
	t.Parallel()

	cat := testCatalogue()
	ib := dlep.NewInformationBase()
	ib.AddPeer("peer-1")

	mac := dlep.Mac{9, 9, 9, 9, 9, 9}
	if err := ib.UpdateDestination(cat, "peer-1", mac, nil); !errors.Is(err, dlep.ErrUnknownDestination) {
		t.Errorf("UpdateDestination unknown mac error = %v, want ErrUnknownDestination", err)
	}
}

func TestInformationBasePeerLocalDataRoundTrip(t *testing.T) {
	t.Parallel()

	cat := testCatalogue()
	ib := dlep.NewInformationBase()
	ib.AddPeer("peer-1")

	items := []dlep.DataItem{{ID: 10, Value: []byte{7}}}
	if err := ib.UpdatePeerItems(cat, "peer-1", items); err != nil {
		t.Fatalf("UpdatePeerItems: %v", err)
	}

	local, err := ib.PeerLocalData("peer-1")
	if err != nil {
		t.Fatalf("PeerLocalData: %v", err)
	}
	metric, ok := local.Metric(10)
	if !ok || len(metric.Value) != 1 || metric.Value[0] != 7 {
		t.Errorf("Metric(10) = %v, %v, want {7} true", metric, ok)
	}
}
