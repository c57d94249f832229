package dlep

import "errors"

// Sentinel errors returned by the session core, matching the
// internal/bfd convention of package-level errors.New values wrapped with
// fmt.Errorf("...: %w") at the call site.
var (
	// ErrUnknownPeer is returned when an operation names a peer id the
	// Information Base has no record of.
	ErrUnknownPeer = errors.New("dlep: unknown peer")

	// ErrUnknownDestination is returned when an operation names a MAC the
	// addressed peer has no Destination for.
	ErrUnknownDestination = errors.New("dlep: unknown destination")

	// ErrDestinationExists is returned by Destination_Up when the peer
	// already has a destination for that MAC.
	ErrDestinationExists = errors.New("dlep: destination already exists")

	// ErrIPConflict is returned when an IP-address data item collides
	// with an address already owned by a different peer or destination
	// (spec.md §4.1's global IP-uniqueness invariant).
	ErrIPConflict = errors.New("dlep: ip address already in use")

	// ErrInvalidMetric is returned when a batch of data items names a
	// metric id the catalogue has not declared.
	ErrInvalidMetric = errors.New("dlep: undeclared metric data item")

	// ErrNotInSession is returned when a Destination_* or Session_Update
	// signal arrives for a peer whose FSM is not in the in-session state.
	ErrNotInSession = errors.New("dlep: peer is not in session")

	// ErrUnexpectedResponse is returned when a response's MAC/signal does
	// not match the head of the corresponding transaction queue, escalated
	// by Peer to a protocol violation (spec.md §9, Open Question 3).
	ErrUnexpectedResponse = errors.New("dlep: unexpected response")

	// ErrQueueFull names a transaction already in flight for a
	// destination. TransactionQueue.Enqueue does not return it: a request
	// for a MAC whose head is still in flight waits behind it in FIFO
	// order.
	ErrQueueFull = errors.New("dlep: transaction already in flight")

	// ErrTerminating names a peer session that is already tearing down.
	// Peer operations on such a peer return ErrNotInSession; no function
	// in this package returns ErrTerminating.
	ErrTerminating = errors.New("dlep: peer session is terminating")

	// ErrTimedOut is the terminal reason recorded when a peer's
	// retransmission budget or acktivity timer expires.
	ErrTimedOut = errors.New("dlep: peer timed out")

	// ErrPeerExists is returned when a peer id is already reserved,
	// typically a reconnect racing a not-yet-finished teardown.
	ErrPeerExists = errors.New("dlep: peer id already in use")
)
