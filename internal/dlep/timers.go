package dlep

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Timers bundles the three timer classes spec.md §4.4 assigns to every
// Peer: heartbeat emission, the combined liveness/retransmit "acktivity"
// sweep, and the bounded wait for a termination response. Grounded on
// internal/bfd/session.go's runLoop/resetTxTimer/resetDetectTimer shape,
// generalized from two timers to three and retargeted onto clockwork.Clock
// so tests can drive them deterministically with a fake clock.
type Timers struct {
	clock Clock

	// Heartbeat fires every HeartbeatInterval to emit a keepalive. Nil
	// (never created) when heartbeats are disabled (interval == 0).
	Heartbeat clockwork.Timer

	// Acktivity fires every min(HeartbeatInterval, RetryInterval) to sweep
	// pending-request queues and check liveness.
	Acktivity clockwork.Timer

	// Termination fires once, started on entry to terminating, bounding
	// the wait for Session_Termination_Response.
	Termination clockwork.Timer

	heartbeatInterval time.Duration
	acktivityInterval time.Duration
}

// NewTimers constructs a Timers bundle. heartbeatInterval of 0 disables
// the heartbeat timer, per spec.md §4.4. acktivityInterval should be
// min(peer_heartbeat_interval, retry_interval) as computed by the caller.
func NewTimers(clock Clock, heartbeatInterval, acktivityInterval time.Duration) *Timers {
	t := &Timers{
		clock:             clock,
		heartbeatInterval: heartbeatInterval,
		acktivityInterval: acktivityInterval,
	}
	if heartbeatInterval > 0 {
		t.Heartbeat = clock.NewTimer(heartbeatInterval)
	}
	t.Acktivity = clock.NewTimer(acktivityInterval)
	return t
}

// ResetHeartbeat re-arms the heartbeat timer, if enabled.
func (t *Timers) ResetHeartbeat() {
	if t.Heartbeat == nil {
		return
	}
	t.Heartbeat.Reset(t.heartbeatInterval)
}

// ResetAcktivity re-arms the acktivity timer with a (possibly updated)
// interval, used when the peer's heartbeat interval or retry interval
// changes after handshake.
func (t *Timers) ResetAcktivity(interval time.Duration) {
	t.acktivityInterval = interval
	t.Acktivity.Reset(interval)
}

// ArmTermination starts the bounded wait for a termination response.
func (t *Timers) ArmTermination(wait time.Duration) {
	t.Termination = t.clock.NewTimer(wait)
}

// StopAll cancels every armed timer, called on peer destruction (spec.md
// §5: "entry to terminating cancels them all" — extended here to cover
// final teardown after terminating completes too).
func (t *Timers) StopAll() {
	if t.Heartbeat != nil {
		t.Heartbeat.Stop()
	}
	if t.Acktivity != nil {
		t.Acktivity.Stop()
	}
	if t.Termination != nil {
		t.Termination.Stop()
	}
}
