package dlep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrManagerClosed is returned by Manager operations attempted after Close.
var ErrManagerClosed = errors.New("dlep: manager closed")

// ManagerConfig carries the parameters shared by every peer a Manager
// creates (spec.md §6's configuration inputs).
type ManagerConfig struct {
	Role                     Role
	Catalogue                ProtocolConfig
	Codec                    Codec
	Clock                    Clock
	Callbacks                ClientCallbacks
	Logger                   *slog.Logger
	HeartbeatInterval        time.Duration
	RetryInterval            time.Duration
	MaxRetries               int
	MissedHeartbeatThreshold int
	SupportedExtensions      []ExtensionID
}

// Manager owns the Information Base, the peer-id registry, and every active
// Peer, grounded on internal/bfd/manager.go's Manager: the same
// register-under-lock / goroutine-per-connection / sentinel-error shape,
// generalized from BFD sessions to DLEP peers and supplemented with the
// client command fan-out of spec.md §6 ("push to every peer currently
// in_session") that BFD's point-to-point sessions never needed.
type Manager struct {
	mu sync.RWMutex

	ib      *InformationBase
	ids     *PeerIDRegistry
	peers   map[string]*peerEntry
	cfg     ManagerConfig
	logger  *slog.Logger
	metrics ManagerMetrics
	closed  bool
}

// peerEntry holds a Peer and its cancellation function, mirroring
// internal/bfd/manager.go's sessionEntry.
type peerEntry struct {
	peer   *Peer
	cancel context.CancelFunc
}

// ManagerMetrics is the narrow metrics-reporting seam the Manager writes
// through, implemented by internal/dlepmetrics.Collector in production and
// by a no-op in tests (grounded on internal/bfd/manager.go's
// MetricsReporter pattern).
type ManagerMetrics interface {
	PeerAdded(peerID string)
	PeerRemoved(peerID string)
}

// NopManagerMetrics implements ManagerMetrics with no-ops.
type NopManagerMetrics struct{}

func (NopManagerMetrics) PeerAdded(string)   {}
func (NopManagerMetrics) PeerRemoved(string) {}

var _ ManagerMetrics = NopManagerMetrics{}

// NewManager constructs an empty Manager. cfg.Logger and cfg.Callbacks must
// be non-nil; NopCallbacks{} and slog.Default() are reasonable defaults.
func NewManager(cfg ManagerConfig, metrics ManagerMetrics) *Manager {
	if metrics == nil {
		metrics = NopManagerMetrics{}
	}
	return &Manager{
		ib:      NewInformationBase(),
		ids:     NewPeerIDRegistry(),
		peers:   make(map[string]*peerEntry),
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: metrics,
	}
}

// AddPeer registers a new peer bound to stream, reserves its id, adds it to
// the Information Base, constructs its Peer, performs the role-asymmetric
// opening move, and spawns its timer goroutine under ctx.
//
// Grounded on internal/bfd/manager.go's CreateSession/registerAndStart
// split: allocate identity, build, register under lock, start the
// goroutine, with rollback of the reservation and Information Base entry on
// any failure (spec.md §3: "peer ids ... generated deterministically from
// the remote endpoint address and port").
func (m *Manager) AddPeer(ctx context.Context, peerAddr netip.AddrPort, stream Stream) (*Peer, error) {
	id := PeerID(peerAddr)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.mu.Unlock()

	if err := m.ids.Reserve(id); err != nil {
		return nil, fmt.Errorf("add peer: %w", err)
	}

	m.ib.AddPeer(id)

	peer := NewPeer(m.ib, PeerConfig{
		ID:                       id,
		Role:                     m.cfg.Role,
		Catalogue:                m.cfg.Catalogue,
		Codec:                    m.cfg.Codec,
		Stream:                   stream,
		Clock:                    m.cfg.Clock,
		Callbacks:                m.wrapCallbacks(),
		Logger:                   m.logger,
		HeartbeatInterval:        m.cfg.HeartbeatInterval,
		RetryInterval:            m.cfg.RetryInterval,
		MaxRetries:               m.cfg.MaxRetries,
		MissedHeartbeatThreshold: m.cfg.MissedHeartbeatThreshold,
		SupportedExtensions:      m.cfg.SupportedExtensions,
	})

	if err := peer.Start(); err != nil {
		m.ib.RemovePeer(id)
		m.ids.Release(id)
		return nil, fmt.Errorf("add peer %s: %w", id, err)
	}

	peerCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		m.ib.RemovePeer(id)
		m.ids.Release(id)
		return nil, ErrManagerClosed
	}
	m.peers[id] = &peerEntry{peer: peer, cancel: cancel}
	m.mu.Unlock()

	go peer.Run(peerCtx)

	m.metrics.PeerAdded(id)
	m.logger.Info("peer added", slog.String("peer_id", id), slog.String("role", roleString(m.cfg.Role)))

	return peer, nil
}

// RemovePeer cancels peerID's goroutine and releases its id for reuse. It is
// idempotent; removing an unknown peer id is not an error, matching
// internal/bfd/manager.go's tolerant DestroySession-adjacent cleanup paths
// used during shutdown.
func (m *Manager) RemovePeer(peerID string) {
	m.mu.Lock()
	entry, ok := m.peers[peerID]
	if ok {
		delete(m.peers, peerID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	entry.peer.Terminate(nil)
	entry.cancel()
	m.ids.Release(peerID)
	m.metrics.PeerRemoved(peerID)
	m.logger.Info("peer removed", slog.String("peer_id", peerID))
}

// Peer returns the Peer registered under peerID, if any.
func (m *Manager) Peer(peerID string) (*Peer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.peers[peerID]
	if !ok {
		return nil, false
	}
	return entry.peer, true
}

// Peers returns a snapshot of every currently registered Peer.
func (m *Manager) Peers() []*Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Peer, 0, len(m.peers))
	for _, entry := range m.peers {
		out = append(out, entry.peer)
	}
	return out
}

// inSessionPeers returns every peer currently in_session, the fan-out
// target set for the client command surface (spec.md §6).
func (m *Manager) inSessionPeers() []*Peer {
	all := m.Peers()
	out := make([]*Peer, 0, len(all))
	for _, p := range all {
		if p.State() == StateInSession {
			out = append(out, p)
		}
	}
	return out
}

// BroadcastDestinationUp fans a local Destination_Up command out to every
// in_session peer concurrently (spec.md §6), grounded on the teacher's use
// of errgroup.WithContext in cmd/gobfd/main.go's runServers for
// concurrently-started, independently-failing goroutines. A per-peer
// failure is logged and does not prevent delivery to the others.
func (m *Manager) BroadcastDestinationUp(ctx context.Context, mac Mac, items []DataItem) error {
	return m.fanOut(ctx, func(p *Peer) error {
		return p.EnqueueDestinationUp(mac, items)
	})
}

// BroadcastDestinationUpdate fans a Destination_Update out to every
// in_session peer.
func (m *Manager) BroadcastDestinationUpdate(ctx context.Context, mac Mac, items []DataItem) error {
	return m.fanOut(ctx, func(p *Peer) error {
		return p.SendDestinationUpdate(mac, items)
	})
}

// BroadcastDestinationDown fans a Destination_Down command out to every
// in_session peer.
func (m *Manager) BroadcastDestinationDown(ctx context.Context, mac Mac) error {
	return m.fanOut(ctx, func(p *Peer) error {
		return p.EnqueueDestinationDown(mac)
	})
}

func (m *Manager) fanOut(ctx context.Context, send func(*Peer) error) error {
	peers := m.inSessionPeers()
	g, _ := errgroup.WithContext(ctx)
	for _, p := range peers {
		p := p
		g.Go(func() error {
			if err := send(p); err != nil {
				m.logger.Warn("fan-out to peer failed",
					slog.String("peer_id", p.ID()), slog.String("err", err.Error()))
			}
			return nil
		})
	}
	return g.Wait()
}

// Close terminates every registered peer and releases Manager resources. It
// blocks until every peer goroutine has exited, mirroring
// internal/bfd/manager.go's DrainAllSessions/Close shutdown sequence.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	entries := make([]*peerEntry, 0, len(m.peers))
	for _, entry := range m.peers {
		entries = append(entries, entry)
	}
	m.peers = make(map[string]*peerEntry)
	m.mu.Unlock()

	for _, entry := range entries {
		entry.peer.Terminate(nil)
		entry.cancel()
		<-entry.peer.Done()
	}
}

// wrapCallbacks installs a PeerDown hook that also removes the peer from
// the Manager's registry, so a peer-initiated termination (liveness
// expiry, peer-sent Session_Termination) reaches the same cleanup path as
// an explicit RemovePeer call.
func (m *Manager) wrapCallbacks() ClientCallbacks {
	return managerCallbacks{Manager: m, inner: m.cfg.Callbacks}
}

type managerCallbacks struct {
	*Manager
	inner ClientCallbacks
}

func (c managerCallbacks) PeerUp(info PeerInfo) { c.inner.PeerUp(info) }

func (c managerCallbacks) PeerDown(peerID string, reason error) {
	c.inner.PeerDown(peerID, reason)
	go c.Manager.forgetPeer(peerID)
}

func (c managerCallbacks) DestinationUp(peerID string, mac Mac, items []DataItem) {
	c.inner.DestinationUp(peerID, mac, items)
}

func (c managerCallbacks) DestinationUpdate(peerID string, mac Mac, items []DataItem) {
	c.inner.DestinationUpdate(peerID, mac, items)
}

func (c managerCallbacks) DestinationDown(peerID string, mac Mac) {
	c.inner.DestinationDown(peerID, mac)
}

func (c managerCallbacks) PeerUpdate(peerID string, items []DataItem) {
	c.inner.PeerUpdate(peerID, items)
}

var _ ClientCallbacks = managerCallbacks{}

// forgetPeer removes bookkeeping for a peer that destroyed itself (as
// opposed to RemovePeer, which is caller-initiated); the Peer and its
// Information Base footprint are already torn down by the time PeerDown
// fires (Peer.destroyLocked runs before notifying callbacks), so this only
// drops the Manager's own map entry and releases the id.
func (m *Manager) forgetPeer(peerID string) {
	m.mu.Lock()
	entry, ok := m.peers[peerID]
	if ok {
		delete(m.peers, peerID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	entry.cancel()
	m.ids.Release(peerID)
	m.metrics.PeerRemoved(peerID)
}

func roleString(r Role) string {
	if r == RoleRouter {
		return "router"
	}
	return "modem"
}
