package dlep

// PeerInfo is a snapshot of a peer's negotiated handshake state, passed to
// ClientCallbacks.PeerUp.
type PeerInfo struct {
	PeerID            string
	HeartbeatInterval int
	MutualExtensions  []ExtensionID
	LocalData         []DataItem
}

// ClientCallbacks is the embedder-facing notification surface (spec.md §6:
// "the embedder sees only these events"). Grounded on
// internal/bfd/callback.go's StateCallback, generalized from BFD's single
// state-change event to DLEP's peer/destination event set.
//
// Callbacks are invoked synchronously from within the handler that produced
// the event, under the Information Base's lock (spec.md §5): implementations
// must not block or call back into the core, and should dispatch
// long-running work asynchronously, exactly as internal/bfd/callback.go
// documents for StateCallback.
type ClientCallbacks interface {
	// PeerUp is invoked when a peer reaches in_session.
	PeerUp(info PeerInfo)

	// PeerDown is invoked when a peer is destroyed, naming why.
	PeerDown(peerID string, reason error)

	// DestinationUp is invoked when the receiver of a Destination_Up adds
	// the destination to its Information Base. The side that sent the
	// Destination_Up neither adds the destination nor invokes this
	// callback when the response arrives.
	DestinationUp(peerID string, mac Mac, items []DataItem)

	// DestinationUpdate is invoked on a Destination_Update.
	DestinationUpdate(peerID string, mac Mac, items []DataItem)

	// DestinationDown is invoked when a destination is removed.
	DestinationDown(peerID string, mac Mac)

	// PeerUpdate is invoked on a Session_Update.
	PeerUpdate(peerID string, items []DataItem)
}

// NopCallbacks is a ClientCallbacks that does nothing, useful for tests
// that only need the core's state transitions, not its notifications.
type NopCallbacks struct{}

var _ ClientCallbacks = NopCallbacks{}

func (NopCallbacks) PeerUp(PeerInfo)                           {}
func (NopCallbacks) PeerDown(string, error)                    {}
func (NopCallbacks) DestinationUp(string, Mac, []DataItem)     {}
func (NopCallbacks) DestinationUpdate(string, Mac, []DataItem) {}
func (NopCallbacks) DestinationDown(string, Mac)               {}
func (NopCallbacks) PeerUpdate(string, []DataItem)             {}
