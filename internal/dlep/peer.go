package dlep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Stream is the established bidirectional byte stream to one peer
// (spec.md §1: "an established bidirectional byte stream to a single
// peer" is an injected collaborator; TCP bootstrap itself is out of
// scope). Write must be safe to call from Peer's own goroutine only; Peer
// never calls it concurrently with itself.
type Stream interface {
	Write(p []byte) (n int, err error)
	Close() error
}

// Role distinguishes the two asymmetric DLEP endpoints (spec.md §4.2,
// GLOSSARY).
type Role uint8

const (
	// RoleRouter sends Session_Initialization on entering connected.
	RoleRouter Role = iota
	// RoleModem waits for Session_Initialization and replies with
	// Session_Initialization_Response.
	RoleModem
)

// PeerConfig carries the per-peer parameters a Manager supplies at
// construction (spec.md §6's configuration inputs, scoped to one peer).
type PeerConfig struct {
	ID                       string
	Role                     Role
	Catalogue                ProtocolConfig
	Codec                    Codec
	Stream                   Stream
	Clock                    Clock
	Callbacks                ClientCallbacks
	Logger                   *slog.Logger
	HeartbeatInterval        time.Duration
	RetryInterval            time.Duration
	MaxRetries               int
	MissedHeartbeatThreshold int
	SupportedExtensions      []ExtensionID
}

// Peer is the per-connection protocol engine tying the FSM, the
// Information Base, the Transaction Queue, the Timer Subsystem, and
// Message Dispatch together (spec.md §4), grounded on
// internal/bfd/session.go's Session and original_source/Peer.h's Peer.
//
// Every method that mutates Peer or InformationBase state takes ib.mu
// before doing so and releases it before returning, realizing spec.md
// §5's single logical executor as one shared coarse-grained mutex rather
// than an actual cooperative scheduler: a goroutine blocked acquiring the
// lock is observably equivalent to an event queued for the executor.
type Peer struct {
	id     string
	role   Role
	ib     *InformationBase
	cat    ProtocolConfig
	codec  Codec
	stream Stream
	clock  Clock
	cb     ClientCallbacks
	logger *slog.Logger

	framer *Framer
	queue  *TransactionQueue
	timers *Timers

	localHeartbeatInterval   time.Duration
	peerHeartbeatInterval    time.Duration
	retryInterval            time.Duration
	maxRetries               int
	missedHeartbeatThreshold int
	localExtensions          []ExtensionID
	mutualExtensions         []ExtensionID

	state             State
	lastReceive       time.Time
	notInterested     map[Mac]struct{}
	terminationReason error

	doneCh chan struct{}
}

// NewPeer constructs a Peer in StateConnected. The caller must call
// ib.AddPeer(cfg.ID) before or immediately after constructing the Peer,
// and must call Run to start its timer goroutine.
func NewPeer(ib *InformationBase, cfg PeerConfig) *Peer {
	acktivityInterval := cfg.RetryInterval
	if cfg.HeartbeatInterval > 0 && cfg.HeartbeatInterval < acktivityInterval {
		acktivityInterval = cfg.HeartbeatInterval
	}

	p := &Peer{
		id:                       cfg.ID,
		role:                     cfg.Role,
		ib:                       ib,
		cat:                      cfg.Catalogue,
		codec:                    cfg.Codec,
		stream:                   cfg.Stream,
		clock:                    cfg.Clock,
		cb:                       cfg.Callbacks,
		logger:                   cfg.Logger.With(slog.String("peer_id", cfg.ID)),
		framer:                   NewFramer(cfg.Codec, cfg.Catalogue),
		queue:                    NewTransactionQueue(cfg.Clock),
		localHeartbeatInterval:   cfg.HeartbeatInterval,
		retryInterval:            cfg.RetryInterval,
		maxRetries:               cfg.MaxRetries,
		missedHeartbeatThreshold: cfg.MissedHeartbeatThreshold,
		localExtensions:          cfg.SupportedExtensions,
		state:                    StateConnected,
		lastReceive:              cfg.Clock.Now(),
		notInterested:            make(map[Mac]struct{}),
		doneCh:                   make(chan struct{}),
	}
	p.timers = NewTimers(cfg.Clock, cfg.HeartbeatInterval, acktivityInterval)
	return p
}

// ID returns the peer's stable id.
func (p *Peer) ID() string { return p.id }

// State returns the peer's current FSM state.
func (p *Peer) State() State {
	p.ib.mu.RLock()
	defer p.ib.mu.RUnlock()
	return p.state
}

// Start performs the role-asymmetric handshake opening move: a router
// sends Session_Initialization; a modem waits (spec.md §4.2).
func (p *Peer) Start() error {
	p.ib.mu.Lock()
	defer p.ib.mu.Unlock()
	if p.role != RoleRouter {
		return nil
	}
	return p.sendSessionInitializationLocked()
}

func (p *Peer) sendSessionInitializationLocked() error {
	local, err := p.ib.PeerLocalData(p.id)
	if err != nil {
		return err
	}
	items := p.handshakeItems(local.AllDataItems())
	signal, ok := p.cat.SignalID(SigSessionInitialization)
	if !ok {
		return fmt.Errorf("peer %s: %w", p.id, ErrUnknownPeer)
	}
	wire, err := BuildMessage(p.codec, p.cat, signal, items)
	if err != nil {
		return fmt.Errorf("peer %s: build session init: %w", p.id, err)
	}
	_, err = p.stream.Write(wire)
	return err
}

// Run starts the per-peer goroutine that drives the heartbeat, acktivity,
// and termination timers (spec.md §4.4). It returns when ctx is canceled
// or the peer is destroyed.
func (p *Peer) Run(ctx context.Context) {
	defer close(p.doneCh)
	for {
		var heartbeatCh <-chan time.Time
		if p.timers.Heartbeat != nil {
			heartbeatCh = p.timers.Heartbeat.Chan()
		}
		var terminationCh <-chan time.Time
		if p.timers.Termination != nil {
			terminationCh = p.timers.Termination.Chan()
		}

		select {
		case <-ctx.Done():
			return
		case <-heartbeatCh:
			if p.handleHeartbeatTimer() {
				return
			}
		case <-p.timers.Acktivity.Chan():
			if p.handleAcktivityTimer() {
				return
			}
		case <-terminationCh:
			p.handleTerminationTimer()
			return
		}
	}
}

// Done returns a channel closed when Run returns.
func (p *Peer) Done() <-chan struct{} { return p.doneCh }

func (p *Peer) handleHeartbeatTimer() (destroyed bool) {
	p.ib.mu.Lock()
	defer p.ib.mu.Unlock()
	if p.state == StateDestroyed {
		return true
	}
	signal, ok := p.cat.SignalID(SigHeartbeat)
	if ok {
		if wire, err := BuildMessage(p.codec, p.cat, signal, nil); err == nil {
			_, _ = p.stream.Write(wire)
		}
	}
	p.timers.ResetHeartbeat()
	return false
}

func (p *Peer) handleAcktivityTimer() (destroyed bool) {
	p.ib.mu.Lock()
	defer p.ib.mu.Unlock()
	if p.state == StateDestroyed {
		return true
	}

	result, err := p.queue.Sweep(p.retryInterval, p.maxRetries, func(wire []byte) error {
		_, werr := p.stream.Write(wire)
		return werr
	})
	if err == nil && result.TimedOut != nil {
		p.terminateLocked(ErrTimedOut)
	} else if p.peerHeartbeatInterval > 0 {
		deadline := time.Duration(p.missedHeartbeatThreshold) * p.peerHeartbeatInterval
		if p.clock.Now().Sub(p.lastReceive) > deadline {
			p.terminationReason = ErrTimedOut
			p.applyLocked(EventLivenessExpired, nil)
			return p.state == StateDestroyed
		}
	}

	acktivityInterval := p.retryInterval
	if p.peerHeartbeatInterval > 0 && p.peerHeartbeatInterval < acktivityInterval {
		acktivityInterval = p.peerHeartbeatInterval
	}
	p.timers.ResetAcktivity(acktivityInterval)
	return p.state == StateDestroyed
}

func (p *Peer) handleTerminationTimer() {
	p.ib.mu.Lock()
	defer p.ib.mu.Unlock()
	if p.state != StateTerminating {
		return
	}
	p.applyLocked(EventTerminationTimeout, nil)
}

// Feed delivers inbound bytes read from the Stream by the transport layer
// (spec.md §4.5's inbound path). It frames, decodes, and routes every
// complete signal now available, serialized under ib.mu.
func (p *Peer) Feed(data []byte) error {
	p.ib.mu.Lock()
	defer p.ib.mu.Unlock()

	messages, ferr := p.framer.Feed(data)
	for _, msg := range messages {
		p.lastReceive = p.clock.Now()
		if err := p.handleMessageLocked(msg); err != nil {
			p.terminateLocked(err)
			return nil
		}
	}
	if ferr != nil {
		p.terminateLocked(ferr)
	}
	return nil
}

// handleMessageLocked routes msg to its handler based on (state, signal).
// ib.mu is already held.
func (p *Peer) handleMessageLocked(msg ProtocolMessage) error {
	name, ok := p.cat.SignalName(msg.Signal)
	if !ok {
		return fmt.Errorf("peer %s: %w", p.id, ErrInvalidMetric)
	}

	switch p.state {
	case StateTerminating:
		switch name {
		case SigSessionTerminationResponse:
			p.applyLocked(EventRecvPeerTermResp, nil)
		default:
			// terminating: every other signal is dropped (spec.md §4.2).
		}
		return nil
	case StateDestroyed:
		return nil
	}

	switch name {
	case SigSessionInitialization:
		return p.handleSessionInitLocked(msg)
	case SigSessionInitializationResponse:
		return p.handleSessionInitRespLocked(msg)
	case SigSessionUpdate:
		return p.handleSessionUpdateLocked(msg)
	case SigSessionTermination:
		p.applyLocked(EventRecvPeerTerm, func(a Action) error {
			if a == ActionSendTermResp {
				return p.sendStatusResponseLocked(SigSessionTerminationResponse, StatusSuccess)
			}
			return nil
		})
		return nil
	case SigDestinationUp:
		return p.handleDestinationUpLocked(msg)
	case SigDestinationUpResponse:
		return p.handleDestinationUpRespLocked(msg)
	case SigDestinationUpdate:
		return p.handleDestinationUpdateLocked(msg)
	case SigDestinationDown:
		return p.handleDestinationDownLocked(msg)
	case SigDestinationDownResponse:
		return p.handleDestinationDownRespLocked(msg)
	case SigDestinationAnnounce:
		return p.handleDestinationAnnounceLocked(msg)
	case SigHeartbeat:
		return nil
	default:
		if p.state == StateConnected {
			return fmt.Errorf("peer %s: unexpected signal %s in connected", p.id, name)
		}
		return nil
	}
}

func (p *Peer) handleSessionInitLocked(msg ProtocolMessage) error {
	if p.role != RoleModem || p.state != StateConnected {
		return fmt.Errorf("peer %s: unexpected Session_Initialization", p.id)
	}
	peerExtensions, rest := splitExtensions(p.cat, msg.Items)
	if interval, remaining, ok := splitHeartbeatInterval(p.cat, rest); ok {
		p.peerHeartbeatInterval = interval
		rest = remaining
	}
	if err := p.ib.UpdatePeerItems(p.cat, p.id, rest); err != nil {
		return err
	}
	p.mutualExtensions = intersectExtensions(p.localExtensions, peerExtensions)
	p.applyLocked(EventRecvPeerInit, func(a Action) error {
		switch a {
		case ActionSendInitResp:
			return p.sendSessionInitRespLocked(true)
		case ActionNotifyPeerUp:
			p.notifyPeerUpLocked()
		}
		return nil
	})
	return nil
}

func (p *Peer) sendSessionInitRespLocked(success bool) error {
	local, err := p.ib.PeerLocalData(p.id)
	if err != nil {
		return err
	}
	items := p.handshakeItems(local.AllDataItems())
	signalName := SigSessionInitializationResponse
	signal, ok := p.cat.SignalID(signalName)
	if !ok {
		return fmt.Errorf("peer %s: catalogue missing %s", p.id, signalName)
	}
	wire, err := BuildMessage(p.codec, p.cat, signal, items)
	if err != nil {
		return err
	}
	_, err = p.stream.Write(wire)
	return err
}

func (p *Peer) handleSessionInitRespLocked(msg ProtocolMessage) error {
	if p.role != RoleRouter || p.state != StateConnected {
		return fmt.Errorf("peer %s: unexpected Session_Initialization_Response", p.id)
	}
	if !responseIsSuccess(p.cat, msg.Items) {
		return fmt.Errorf("peer %s: session init rejected: %w", p.id, ErrInvalidMetric)
	}
	peerExtensions, rest := splitExtensions(p.cat, msg.Items)
	if interval, remaining, ok := splitHeartbeatInterval(p.cat, rest); ok {
		p.peerHeartbeatInterval = interval
		rest = remaining
	}
	if err := p.ib.UpdatePeerItems(p.cat, p.id, rest); err != nil {
		return err
	}
	p.mutualExtensions = intersectExtensions(p.localExtensions, peerExtensions)
	p.applyLocked(EventRecvPeerInitResp, func(a Action) error {
		if a == ActionNotifyPeerUp {
			p.notifyPeerUpLocked()
		}
		return nil
	})
	return nil
}

func (p *Peer) handleSessionUpdateLocked(msg ProtocolMessage) error {
	if p.state != StateInSession {
		return fmt.Errorf("peer %s: %w", p.id, ErrNotInSession)
	}
	err := p.ib.UpdatePeerItems(p.cat, p.id, msg.Items)
	status := StatusSuccess
	if err != nil {
		status = StatusInvalidMessage
	}
	if werr := p.sendStatusResponseLocked(SigSessionUpdateResponse, status); werr != nil {
		return werr
	}
	if err == nil {
		p.cb.PeerUpdate(p.id, msg.Items)
	}
	return nil
}

func (p *Peer) handleDestinationUpLocked(msg ProtocolMessage) error {
	if p.state != StateInSession {
		return fmt.Errorf("peer %s: %w", p.id, ErrNotInSession)
	}
	mac, items := p.splitMac(msg.Items)
	_, err := p.ib.AddDestination(p.cat, p.id, mac, items)
	status := StatusSuccess
	switch {
	case err == nil:
	case errors.Is(err, ErrIPConflict):
		status = StatusIPConflict
	default:
		status = StatusInvalidMessage
	}
	if werr := p.sendDestinationResponseLocked(SigDestinationUpResponse, mac, status); werr != nil {
		return werr
	}
	if err == nil {
		p.cb.DestinationUp(p.id, mac, items)
	}
	return nil
}

func (p *Peer) handleDestinationUpRespLocked(msg ProtocolMessage) error {
	mac, _ := p.splitMac(msg.Items)
	_, err := p.queue.MatchResponse(mac, SigDestinationUpResponse, func(wire []byte) error {
		_, werr := p.stream.Write(wire)
		return werr
	})
	if err != nil {
		return err
	}
	if statusOf(p.cat, msg.Items) == StatusNotInterested {
		p.notInterested[mac] = struct{}{}
	}
	return nil
}

func (p *Peer) handleDestinationUpdateLocked(msg ProtocolMessage) error {
	if p.state != StateInSession {
		return fmt.Errorf("peer %s: %w", p.id, ErrNotInSession)
	}
	mac, items := p.splitMac(msg.Items)
	if err := p.ib.UpdateDestination(p.cat, p.id, mac, items); err != nil {
		return err
	}
	p.cb.DestinationUpdate(p.id, mac, items)
	return nil
}

func (p *Peer) handleDestinationDownLocked(msg ProtocolMessage) error {
	if p.state != StateInSession {
		return fmt.Errorf("peer %s: %w", p.id, ErrNotInSession)
	}
	mac, _ := p.splitMac(msg.Items)
	if _, err := p.ib.RemoveDestination(p.id, mac); err != nil {
		return err
	}
	if err := p.sendDestinationResponseLocked(SigDestinationDownResponse, mac, StatusSuccess); err != nil {
		return err
	}
	p.cb.DestinationDown(p.id, mac)
	return nil
}

func (p *Peer) handleDestinationDownRespLocked(msg ProtocolMessage) error {
	mac, _ := p.splitMac(msg.Items)
	_, err := p.queue.MatchResponse(mac, SigDestinationDownResponse, func(wire []byte) error {
		_, werr := p.stream.Write(wire)
		return werr
	})
	return err
}

func (p *Peer) handleDestinationAnnounceLocked(msg ProtocolMessage) error {
	mac, items := p.splitMac(msg.Items)
	delete(p.notInterested, mac)
	return p.sendDestinationResponseLocked(SigDestinationAnnounceResponse, mac, StatusSuccess)
}

// sendStatusResponseLocked sends a session-level response carrying only a
// Status data item.
func (p *Peer) sendStatusResponseLocked(signalName string, status Status) error {
	signal, ok := p.cat.SignalID(signalName)
	if !ok {
		return fmt.Errorf("catalogue missing %s", signalName)
	}
	wire, err := BuildMessage(p.codec, p.cat, signal, []DataItem{statusItem(p.cat, status)})
	if err != nil {
		return err
	}
	_, err = p.stream.Write(wire)
	return err
}

// sendDestinationResponseLocked sends a destination-scoped response
// carrying the MAC and a Status data item.
func (p *Peer) sendDestinationResponseLocked(signalName string, mac Mac, status Status) error {
	signal, ok := p.cat.SignalID(signalName)
	if !ok {
		return fmt.Errorf("catalogue missing %s", signalName)
	}
	items := []DataItem{
		{ID: p.cat.MacDataItemID(), Value: mac[:]},
		statusItem(p.cat, status),
	}
	wire, err := BuildMessage(p.codec, p.cat, signal, items)
	if err != nil {
		return err
	}
	_, err = p.stream.Write(wire)
	return err
}

// EnqueueDestinationUp sends (or queues) a Destination_Up request for mac,
// part of the client command fan-out (spec.md §6).
func (p *Peer) EnqueueDestinationUp(mac Mac, items []DataItem) error {
	p.ib.mu.Lock()
	defer p.ib.mu.Unlock()
	if p.state != StateInSession {
		return fmt.Errorf("peer %s: %w", p.id, ErrNotInSession)
	}
	if _, skip := p.notInterested[mac]; skip {
		return nil
	}
	signal, ok := p.cat.SignalID(SigDestinationUp)
	if !ok {
		return fmt.Errorf("catalogue missing %s", SigDestinationUp)
	}
	withMac := append([]DataItem{{ID: p.cat.MacDataItemID(), Value: mac[:]}}, items...)
	wire, err := BuildMessage(p.codec, p.cat, signal, withMac)
	if err != nil {
		return err
	}
	req := &PendingRequest{
		Signal:         SigDestinationUp,
		ResponseSignal: SigDestinationUpResponse,
		Mac:            mac,
		Wire:           wire,
	}
	return p.queue.Enqueue(req, func(w []byte) error {
		_, werr := p.stream.Write(w)
		return werr
	})
}

// EnqueueDestinationDown sends (or queues) a Destination_Down request.
func (p *Peer) EnqueueDestinationDown(mac Mac) error {
	p.ib.mu.Lock()
	defer p.ib.mu.Unlock()
	if p.state != StateInSession {
		return fmt.Errorf("peer %s: %w", p.id, ErrNotInSession)
	}
	if _, skip := p.notInterested[mac]; skip {
		return nil
	}
	signal, ok := p.cat.SignalID(SigDestinationDown)
	if !ok {
		return fmt.Errorf("catalogue missing %s", SigDestinationDown)
	}
	wire, err := BuildMessage(p.codec, p.cat, signal, []DataItem{{ID: p.cat.MacDataItemID(), Value: mac[:]}})
	if err != nil {
		return err
	}
	req := &PendingRequest{
		Signal:         SigDestinationDown,
		ResponseSignal: SigDestinationDownResponse,
		Mac:            mac,
		Wire:           wire,
	}
	return p.queue.Enqueue(req, func(w []byte) error {
		_, werr := p.stream.Write(w)
		return werr
	})
}

// SendDestinationUpdate is fire-and-forget (spec.md §4.2: no response
// expected), sent directly rather than through the Transaction Queue.
func (p *Peer) SendDestinationUpdate(mac Mac, items []DataItem) error {
	p.ib.mu.Lock()
	defer p.ib.mu.Unlock()
	if p.state != StateInSession {
		return fmt.Errorf("peer %s: %w", p.id, ErrNotInSession)
	}
	if _, skip := p.notInterested[mac]; skip {
		return nil
	}
	signal, ok := p.cat.SignalID(SigDestinationUpdate)
	if !ok {
		return fmt.Errorf("catalogue missing %s", SigDestinationUpdate)
	}
	withMac := append([]DataItem{{ID: p.cat.MacDataItemID(), Value: mac[:]}}, items...)
	wire, err := BuildMessage(p.codec, p.cat, signal, withMac)
	if err != nil {
		return err
	}
	_, err = p.stream.Write(wire)
	return err
}

// Terminate initiates the termination handshake with reason (spec.md
// §4.2/§7).
func (p *Peer) Terminate(reason error) {
	p.ib.mu.Lock()
	defer p.ib.mu.Unlock()
	p.terminateLocked(reason)
}

func (p *Peer) terminateLocked(reason error) {
	if p.state == StateTerminating || p.state == StateDestroyed {
		return
	}
	p.terminationReason = reason
	p.applyLocked(EventFatalError, func(a Action) error {
		if a == ActionSendTerm {
			p.timers.ArmTermination(p.retryInterval * time.Duration(p.maxRetries+1))
			return p.sendStatusResponseLocked(SigSessionTermination, statusFor(reason))
		}
		return nil
	})
}

// applyLocked runs the FSM for event and executes each action via run (if
// non-nil), then performs the bookkeeping every transition needs: logging
// and, on entering destroyed, tearing down the peer's Information Base
// footprint, queues, and timers.
func (p *Peer) applyLocked(event Event, run func(Action) error) {
	result := ApplyEvent(p.state, event)
	p.state = result.NewState
	if result.Changed {
		p.logger.Info("peer state transition",
			slog.String("old_state", result.OldState.String()),
			slog.String("new_state", result.NewState.String()),
			slog.String("event", event.String()))
	}
	for _, action := range result.Actions {
		if run != nil {
			if err := run(action); err != nil {
				p.logger.Warn("action failed", slog.String("action", action.String()), slog.String("err", err.Error()))
			}
		}
		if action == ActionNotifyPeerDown {
			p.destroyLocked()
			p.cb.PeerDown(p.id, p.terminationReason)
		}
	}
}

func (p *Peer) notifyPeerUpLocked() {
	local, err := p.ib.PeerLocalData(p.id)
	var items []DataItem
	if err == nil {
		items = local.AllDataItems()
	}
	p.cb.PeerUp(PeerInfo{
		PeerID:            p.id,
		HeartbeatInterval: int(p.peerHeartbeatInterval / time.Second),
		MutualExtensions:  p.mutualExtensions,
		LocalData:         items,
	})
}

func (p *Peer) destroyLocked() {
	p.timers.StopAll()
	p.queue.Drain()
	p.ib.removePeerLocked(p.id)
}

// handshakeItems appends the outbound heartbeat-interval and supported-
// extension data items to base, for Session_Initialization(_Response)
// (spec.md §4.2).
func (p *Peer) handshakeItems(base []DataItem) []DataItem {
	items := make([]DataItem, 0, len(base)+1+len(p.localExtensions))
	items = append(items, base...)
	items = append(items, heartbeatIntervalItem(p.cat, p.localHeartbeatInterval))
	items = append(items, extensionDataItems(p.cat, p.localExtensions)...)
	return items
}

// intersectExtensions returns the numeric-id intersection of local and
// peer extension sets (spec.md §4.2: "Mutual extensions are the set
// intersection taken on numeric extension ids").
func intersectExtensions(local, peer []ExtensionID) []ExtensionID {
	peerSet := make(map[ExtensionID]struct{}, len(peer))
	for _, id := range peer {
		peerSet[id] = struct{}{}
	}
	var out []ExtensionID
	for _, id := range local {
		if _, ok := peerSet[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// splitMac extracts the destination MAC data item (identified by the
// catalogue's MacDataItemID) from a destination-scoped signal's item
// list, returning the MAC and the remaining items.
func (p *Peer) splitMac(items []DataItem) (Mac, []DataItem) {
	macID := p.cat.MacDataItemID()
	var mac Mac
	rest := make([]DataItem, 0, len(items))
	for _, item := range items {
		if item.ID == macID {
			copy(mac[:], item.Value)
			continue
		}
		rest = append(rest, item)
	}
	return mac, rest
}
