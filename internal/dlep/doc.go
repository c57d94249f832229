// Package dlep implements the session-state core of the Dynamic Link
// Exchange Protocol: the peer session FSM, the destination/peer
// Information Base, the per-destination transaction queue, the heartbeat
// and retransmission timers, and inbound/outbound message dispatch.
//
// The core consumes a ProtocolConfig catalogue, an established
// bidirectional byte stream per peer, a clockwork.Clock, and a
// ClientCallbacks implementation. It does not open sockets, parse the XML
// catalogue document, or discover peers; those are external collaborators.
package dlep
