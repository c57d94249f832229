package dlep

import (
	"fmt"
	"sync"
)

// InformationBase is the in-memory store of peers, their destinations, and
// the global IP-address uniqueness index (spec.md §3, §4.1), grounded on
// original_source/InfoBaseMgr.{h,cpp}'s InfoBaseMgr and on the
// single-registry-with-one-mutex pattern of internal/bfd/manager.go's
// session map.
//
// Every mutation goes through InformationBase while holding mu, realizing
// spec.md §5's "single logical executor": no Peer or Destination method is
// safe to call concurrently without this lock held.
type InformationBase struct {
	mu sync.RWMutex

	peers map[string]*peerRecord

	// ipOwners maps an IP key (address/prefix-length) to the peer id that
	// currently owns it, enforcing the cross-peer/cross-destination
	// uniqueness invariant of spec.md §4.1.
	ipOwners map[string]string
}

// peerRecord is the Information Base's bookkeeping for one peer: its
// session-level data and its destinations, keyed by MAC.
type peerRecord struct {
	local        *PeerData
	destinations map[Mac]*Destination

	// declared reports whether UpdatePeerItems has run its declaring call
	// for this peer yet (its Session_Initialization or
	// Session_Initialization_Response handshake batch). Before that call,
	// there is no declared-metrics set to validate against; the handshake
	// batch itself populates it.
	declared bool
}

// NewInformationBase constructs an empty Information Base.
func NewInformationBase() *InformationBase {
	return &InformationBase{
		peers:    make(map[string]*peerRecord),
		ipOwners: make(map[string]string),
	}
}

// AddPeer registers a new, empty peer record. It returns ErrDestinationExists-
// shaped behavior is not applicable here; instead it is idempotent-unsafe by
// design: callers (Manager) are expected to generate unique peer ids via
// peerid.go and never call AddPeer twice for the same id.
func (ib *InformationBase) AddPeer(peerID string) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	ib.peers[peerID] = &peerRecord{
		local:        newPeerData(),
		destinations: make(map[Mac]*Destination),
	}
}

// RemovePeer deletes peerID's record and releases every IP address it or its
// destinations owned back into the uniqueness index.
func (ib *InformationBase) RemovePeer(peerID string) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	ib.removePeerLocked(peerID)
}

// removePeerLocked is RemovePeer's body, exposed for Peer.destroyLocked,
// which already holds ib.mu when an FSM transition to StateDestroyed
// fires.
func (ib *InformationBase) removePeerLocked(peerID string) {
	rec, ok := ib.peers[peerID]
	if !ok {
		return
	}
	for _, item := range rec.local.IPs() {
		ib.releaseIPLocked(item, peerID)
	}
	for _, dest := range rec.destinations {
		for _, item := range dest.IPs() {
			ib.releaseIPLocked(item, peerID)
		}
	}
	delete(ib.peers, peerID)
}

func (ib *InformationBase) releaseIPLocked(item DataItem, peerID string) {
	if owner, ok := ib.ipOwners[item.ipKey()]; ok && owner == peerID {
		delete(ib.ipOwners, item.ipKey())
	}
}

// UpdatePeerItems applies a Session_Initialization(_Response) or
// Session_Update batch of data items to peerID's session-level store.
//
// The first call for a peer is its declaring handshake batch: every metric
// id it names becomes that peer's declared-metrics set (spec.md §3: "not
// declared during that peer's initialization"), and the batch is only
// checked against the catalogue. Every later call (Session_Update) is
// checked against that peer's own declared set, not the catalogue's global
// one (spec.md §4.1, §8 Scenario 2; original_source/InfoBaseMgr.cpp's
// PeerData::update_data_items checks the peer's own stored map). Either way
// the whole batch is rejected atomically on any invalid metric id
// (ErrInvalidMetric, spec.md §9 Open Question 1) or IP conflict
// (ErrIPConflict, spec.md §9 Open Question 2): nothing is applied.
func (ib *InformationBase) UpdatePeerItems(cat ProtocolConfig, peerID string, items []DataItem) error {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	rec, ok := ib.peers[peerID]
	if !ok {
		return fmt.Errorf("update peer items: %w", ErrUnknownPeer)
	}
	initial := !rec.declared
	if err := ib.validateBatchLocked(cat, peerID, rec, items, initial); err != nil {
		return err
	}
	for _, item := range items {
		switch cat.DataItemKind(item.ID) {
		case KindIPAddress:
			if rec.local.applyIP(item) {
				ib.recordIPOwnerLocked(item, peerID)
			}
		default:
			rec.local.updateMetrics([]DataItem{item})
		}
	}
	if initial {
		rec.local.declareMetrics(metricItems(cat, items))
		rec.declared = true
	}
	return nil
}

// metricItems filters items down to those the catalogue classifies as
// KindMetric.
func metricItems(cat ProtocolConfig, items []DataItem) []DataItem {
	out := make([]DataItem, 0, len(items))
	for _, item := range items {
		if cat.DataItemKind(item.ID) == KindMetric {
			out = append(out, item)
		}
	}
	return out
}

// AddDestination creates a new Destination for peerID identified by mac,
// populated with the given initial data items. It fails without creating
// anything if mac already has a destination for this peer, if any metric id
// is undeclared, or if any IP item conflicts with an address already owned
// elsewhere (spec.md §9, Open Question 2: atomic validation).
func (ib *InformationBase) AddDestination(cat ProtocolConfig, peerID string, mac Mac, items []DataItem) (*Destination, error) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	rec, ok := ib.peers[peerID]
	if !ok {
		return nil, fmt.Errorf("add destination: %w", ErrUnknownPeer)
	}
	if _, exists := rec.destinations[mac]; exists {
		return nil, fmt.Errorf("add destination %s: %w", mac, ErrDestinationExists)
	}
	if err := ib.validateBatchLocked(cat, peerID, rec, items, false); err != nil {
		return nil, err
	}
	dest := newDestination(mac)
	for _, item := range items {
		switch cat.DataItemKind(item.ID) {
		case KindIPAddress:
			if dest.applyIP(item) {
				ib.recordIPOwnerLocked(item, peerID)
			}
		default:
			dest.updateMetrics([]DataItem{item})
		}
	}
	rec.destinations[mac] = dest
	return dest, nil
}

// UpdateDestination applies a Destination_Update batch to an existing
// destination, with the same atomic validation rules as AddDestination.
func (ib *InformationBase) UpdateDestination(cat ProtocolConfig, peerID string, mac Mac, items []DataItem) error {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	rec, ok := ib.peers[peerID]
	if !ok {
		return fmt.Errorf("update destination: %w", ErrUnknownPeer)
	}
	dest, ok := rec.destinations[mac]
	if !ok {
		return fmt.Errorf("update destination %s: %w", mac, ErrUnknownDestination)
	}
	if err := ib.validateBatchLocked(cat, peerID, rec, items, false); err != nil {
		return err
	}
	for _, item := range items {
		switch cat.DataItemKind(item.ID) {
		case KindIPAddress:
			if dest.applyIP(item) {
				ib.recordIPOwnerLocked(item, peerID)
			}
		default:
			dest.updateMetrics([]DataItem{item})
		}
	}
	return nil
}

// RemoveDestination deletes peerID's destination for mac, releasing any IP
// addresses it owned.
func (ib *InformationBase) RemoveDestination(peerID string, mac Mac) (*Destination, error) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	rec, ok := ib.peers[peerID]
	if !ok {
		return nil, fmt.Errorf("remove destination: %w", ErrUnknownPeer)
	}
	dest, ok := rec.destinations[mac]
	if !ok {
		return nil, fmt.Errorf("remove destination %s: %w", mac, ErrUnknownDestination)
	}
	for _, item := range dest.IPs() {
		ib.releaseIPLocked(item, peerID)
	}
	delete(rec.destinations, mac)
	return dest, nil
}

// Destination returns a peer's destination record for mac.
func (ib *InformationBase) Destination(peerID string, mac Mac) (*Destination, error) {
	ib.mu.RLock()
	defer ib.mu.RUnlock()
	rec, ok := ib.peers[peerID]
	if !ok {
		return nil, fmt.Errorf("get destination: %w", ErrUnknownPeer)
	}
	dest, ok := rec.destinations[mac]
	if !ok {
		return nil, fmt.Errorf("get destination %s: %w", mac, ErrUnknownDestination)
	}
	return dest, nil
}

// PeerLocalData returns peerID's session-level data store.
func (ib *InformationBase) PeerLocalData(peerID string) (*PeerData, error) {
	ib.mu.RLock()
	defer ib.mu.RUnlock()
	rec, ok := ib.peers[peerID]
	if !ok {
		return nil, fmt.Errorf("peer local data: %w", ErrUnknownPeer)
	}
	return rec.local, nil
}

// Destinations returns a snapshot of every MAC currently registered for
// peerID.
func (ib *InformationBase) Destinations(peerID string) ([]Mac, error) {
	ib.mu.RLock()
	defer ib.mu.RUnlock()
	rec, ok := ib.peers[peerID]
	if !ok {
		return nil, fmt.Errorf("destinations: %w", ErrUnknownPeer)
	}
	out := make([]Mac, 0, len(rec.destinations))
	for mac := range rec.destinations {
		out = append(out, mac)
	}
	return out, nil
}

// FindIPOwner returns the peer id that currently owns addr, if any.
func (ib *InformationBase) FindIPOwner(item DataItem) (string, bool) {
	ib.mu.RLock()
	defer ib.mu.RUnlock()
	owner, ok := ib.ipOwners[item.ipKey()]
	return owner, ok
}

// validateBatchLocked checks every item in the batch against the catalogue,
// peerID's own declared-metrics set, and the global IP index, without
// mutating anything. mu must already be held for writing by the caller.
//
// initialDeclaration is true only for a peer's first UpdatePeerItems call
// (its Session_Initialization(_Response) handshake): that batch is the
// declaration, so it is checked against the catalogue only. Every other
// caller — later UpdatePeerItems calls, and AddDestination/UpdateDestination,
// which per spec.md §4.1 ride on the peer-level declared set rather than a
// destination-scoped one — checks metric ids against rec.local's declared
// set (spec.md §3, §8 Scenario 2).
func (ib *InformationBase) validateBatchLocked(cat ProtocolConfig, peerID string, rec *peerRecord, items []DataItem, initialDeclaration bool) error {
	for _, item := range items {
		if !cat.Declared(item.ID) {
			return fmt.Errorf("validate data item %d: %w", item.ID, ErrInvalidMetric)
		}
		switch cat.DataItemKind(item.ID) {
		case KindMetric:
			if !initialDeclaration && !rec.local.DeclaredMetric(item.ID) {
				return fmt.Errorf("validate metric %d: %w", item.ID, ErrInvalidMetric)
			}
		case KindIPAddress:
			if item.Op != IPAdd {
				continue
			}
			if owner, ok := ib.ipOwners[item.ipKey()]; ok && owner != peerID {
				return fmt.Errorf("validate %s: %w", item, ErrIPConflict)
			}
		}
	}
	return nil
}

// recordIPOwnerLocked records peerID as the owner of item's address, or
// clears the record when item is a remove. mu must already be held for
// writing by the caller.
func (ib *InformationBase) recordIPOwnerLocked(item DataItem, peerID string) {
	if item.Op == IPRemove {
		delete(ib.ipOwners, item.ipKey())
		return
	}
	ib.ipOwners[item.ipKey()] = peerID
}
