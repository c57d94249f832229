package dlep

import (
	"fmt"
	"net/netip"
	"sync"
)

// PeerID derives the stable peer-id string for a peer from its remote
// endpoint address and port (spec.md §3: "a stable peer-id string derived
// from the remote endpoint address and port").
func PeerID(remote netip.AddrPort) string {
	return fmt.Sprintf("%s:%d", remote.Addr(), remote.Port())
}

// PeerIDRegistry guards against two live peers colliding on the same
// derived id — e.g. a stale entry from a not-yet-completed teardown racing
// a reconnect from the same endpoint. Adapted from
// internal/bfd/discriminator.go's DiscriminatorAllocator: same
// allocate/release-against-a-set shape, but keyed on the deterministic
// PeerID instead of a random uint32, since DLEP peer ids are not random.
type PeerIDRegistry struct {
	mu    sync.Mutex
	taken map[string]struct{}
}

// NewPeerIDRegistry constructs an empty registry.
func NewPeerIDRegistry() *PeerIDRegistry {
	return &PeerIDRegistry{taken: make(map[string]struct{})}
}

// Reserve claims id for a new peer. It fails if id is already reserved,
// which signals the caller (Manager) should finish tearing down the stale
// peer before accepting the reconnect.
func (r *PeerIDRegistry) Reserve(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.taken[id]; ok {
		return fmt.Errorf("reserve peer id %s: %w", id, ErrPeerExists)
	}
	r.taken[id] = struct{}{}
	return nil
}

// Release frees id for reuse by a future reconnect.
func (r *PeerIDRegistry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.taken, id)
}
