package dlep_test

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/go-dlep/dlep/internal/dlep"
)

func TestPeerIDDerivesFromAddrPort(t *testing.T) {
	t.Parallel()

	remote := netip.MustParseAddrPort("10.0.0.5:4321")
	id := dlep.PeerID(remote)
	if id != "10.0.0.5:4321" {
		t.Errorf("PeerID = %q, want %q", id, "10.0.0.5:4321")
	}

	// Same endpoint always derives the same id.
	if got := dlep.PeerID(remote); got != id {
		t.Errorf("PeerID not deterministic: %q != %q", got, id)
	}
}

func TestPeerIDRegistryReserveRelease(t *testing.T) {
	t.Parallel()

	reg := dlep.NewPeerIDRegistry()

	if err := reg.Reserve("peer-1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	if err := reg.Reserve("peer-1"); !errors.Is(err, dlep.ErrPeerExists) {
		t.Errorf("Reserve duplicate error = %v, want ErrPeerExists", err)
	}

	reg.Release("peer-1")

	if err := reg.Reserve("peer-1"); err != nil {
		t.Errorf("Reserve after Release: %v", err)
	}
}

func TestPeerIDRegistryReleaseUnknownIsNoop(t *testing.T) {
	t.Parallel()

	reg := dlep.NewPeerIDRegistry()
	reg.Release("never-reserved")
}
