package dlep

// This file implements the DLEP Peer Session FSM (spec.md §4.2) as a pure
// function over a transition table, in the same shape as
// internal/bfd/fsm.go's ApplyEvent: no side effects, no Peer dependency, so
// the table is trivially testable and auditable on its own.
//
// State diagram (spec.md §4.2):
//
//	connected --PeerInit/PeerInitResp--> in_session
//	connected --fatal/PeerTerm--> terminating
//	in_session --PeerInit/PeerInitResp/fatal/PeerTerm--> terminating
//	terminating --PeerTermResp/liveness expired--> destroyed
//	connected/in_session --liveness expired--> destroyed

// State is a Peer session FSM state (spec.md §4.2).
type State uint8

const (
	// StateConnected is the initial state after TCP accept/connect, before
	// the handshake has completed.
	StateConnected State = iota

	// StateInSession is entered once the handshake completes successfully.
	StateInSession

	// StateTerminating is entered on any fatal error, protocol violation,
	// or termination handshake; exactly one Session_Termination is sent
	// (if not already received) and a bounded wait for its response begins.
	StateTerminating

	// StateDestroyed is the terminal state: the peer has been torn down
	// and removed from the Information Base.
	StateDestroyed

	// StateNonexistent is a synthetic value never stored on a real Peer;
	// it is what lookups return for a peer id that is gone (spec.md §4.2).
	StateNonexistent
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInSession:
		return "in_session"
	case StateTerminating:
		return "terminating"
	case StateDestroyed:
		return "destroyed"
	default:
		return "nonexistent"
	}
}

// Event is a Peer session FSM event (spec.md §4.2).
type Event uint8

const (
	// EventRecvPeerInit is receipt of Session_Initialization (modem side).
	EventRecvPeerInit Event = iota

	// EventRecvPeerInitResp is receipt of Session_Initialization_Response
	// with a Success status (router side). A non-success status is
	// reported to the FSM as EventFatalError instead (spec.md §4.2:
	// "A non-success status causes immediate terminating").
	EventRecvPeerInitResp

	// EventFatalError is any protocol violation, decode error, or
	// unexpected signal for the current state (spec.md §4.5, §7 kind 2).
	EventFatalError

	// EventRecvPeerTerm is receipt of Session_Termination.
	EventRecvPeerTerm

	// EventRecvPeerTermResp is receipt of Session_Termination_Response.
	EventRecvPeerTermResp

	// EventLivenessExpired is the acktivity timer detecting the peer has
	// gone silent past its detection deadline (spec.md §4.4).
	EventLivenessExpired

	// EventTerminationTimeout is the bounded wait for
	// Session_Termination_Response expiring (spec.md §4.2: "on response OR
	// on expiry of the wait, the Peer is destroyed").
	EventTerminationTimeout
)

// String returns the human-readable name of the event.
func (e Event) String() string {
	switch e {
	case EventRecvPeerInit:
		return "RecvPeerInit"
	case EventRecvPeerInitResp:
		return "RecvPeerInitResp"
	case EventFatalError:
		return "FatalError"
	case EventRecvPeerTerm:
		return "RecvPeerTerm"
	case EventRecvPeerTermResp:
		return "RecvPeerTermResp"
	case EventLivenessExpired:
		return "LivenessExpired"
	case EventTerminationTimeout:
		return "TerminationTimeout"
	default:
		return "Unknown"
	}
}

// Action represents a side-effect the caller (Peer) must execute after an
// FSM transition. The FSM itself never performs I/O or mutates the
// Information Base.
type Action uint8

const (
	// ActionSendInitResp sends Session_Initialization_Response (modem
	// side, on entering in_session from connected).
	ActionSendInitResp Action = iota + 1

	// ActionNotifyPeerUp invokes ClientCallbacks.PeerUp.
	ActionNotifyPeerUp

	// ActionSendTerm sends Session_Termination and arms the termination
	// timer.
	ActionSendTerm

	// ActionSendTermResp sends Session_Termination_Response.
	ActionSendTermResp

	// ActionNotifyPeerDown invokes ClientCallbacks.PeerDown and tears down
	// every destination and timer owned by this peer.
	ActionNotifyPeerDown
)

// String returns the human-readable name of the action.
func (a Action) String() string {
	switch a {
	case ActionSendInitResp:
		return "SendInitResp"
	case ActionNotifyPeerUp:
		return "NotifyPeerUp"
	case ActionSendTerm:
		return "SendTerm"
	case ActionSendTermResp:
		return "SendTermResp"
	case ActionNotifyPeerDown:
		return "NotifyPeerDown"
	default:
		return "Unknown"
	}
}

// stateEvent is the FSM transition table key.
type stateEvent struct {
	state State
	event Event
}

// transition describes the target state and side-effects of a single
// transition.
type transition struct {
	newState State
	actions  []Action
}

// FSMResult holds the outcome of applying an event.
type FSMResult struct {
	// OldState is the state before the event was applied.
	OldState State

	// NewState is the state after the event was applied. Equal to
	// OldState when the event is ignored (dropped) in this state.
	NewState State

	// Actions lists the side-effects the caller must execute, in order.
	Actions []Action

	// Changed is true when NewState differs from OldState.
	Changed bool
}

// fsmTable is the complete Peer session FSM transition table (spec.md
// §4.2). Unlisted (state, event) pairs are dropped: no state change, no
// actions — matching the "terminating: drop" row of the spec's table for
// PeerInit/PeerInitResp/PeerTerm, and the dashes for events that cannot
// occur in a given state.
var fsmTable = map[stateEvent]transition{
	// connected: handshake completes in either role.
	{StateConnected, EventRecvPeerInit}: {
		newState: StateInSession,
		actions:  []Action{ActionSendInitResp, ActionNotifyPeerUp},
	},
	{StateConnected, EventRecvPeerInitResp}: {
		newState: StateInSession,
		actions:  []Action{ActionNotifyPeerUp},
	},
	{StateConnected, EventFatalError}: {
		newState: StateTerminating,
		actions:  []Action{ActionSendTerm},
	},
	{StateConnected, EventRecvPeerTerm}: {
		newState: StateTerminating,
		actions:  []Action{ActionSendTermResp},
	},
	{StateConnected, EventLivenessExpired}: {
		newState: StateDestroyed,
		actions:  []Action{ActionNotifyPeerDown},
	},

	// in_session: any handshake signal here is a protocol violation —
	// the handshake only ever happens once, in connected.
	{StateInSession, EventRecvPeerInit}: {
		newState: StateTerminating,
		actions:  []Action{ActionSendTerm},
	},
	{StateInSession, EventRecvPeerInitResp}: {
		newState: StateTerminating,
		actions:  []Action{ActionSendTerm},
	},
	{StateInSession, EventFatalError}: {
		newState: StateTerminating,
		actions:  []Action{ActionSendTerm},
	},
	{StateInSession, EventRecvPeerTerm}: {
		newState: StateTerminating,
		actions:  []Action{ActionSendTermResp},
	},
	{StateInSession, EventLivenessExpired}: {
		newState: StateDestroyed,
		actions:  []Action{ActionNotifyPeerDown},
	},

	// terminating: PeerInit/PeerInitResp/PeerTerm are dropped (no entry
	// needed — the default "unlisted pair" behavior already drops them).
	// Only the termination response or its timeout, or a liveness
	// expiry racing the termination handshake, move out of this state.
	{StateTerminating, EventRecvPeerTermResp}: {
		newState: StateDestroyed,
		actions:  []Action{ActionNotifyPeerDown},
	},
	{StateTerminating, EventTerminationTimeout}: {
		newState: StateDestroyed,
		actions:  []Action{ActionNotifyPeerDown},
	},
	{StateTerminating, EventLivenessExpired}: {
		newState: StateDestroyed,
		actions:  []Action{ActionNotifyPeerDown},
	},
}

// ApplyEvent applies an FSM event to the given state and returns the
// result. Pure function, no side effects: the caller executes Actions.
//
// If the (state, event) pair has no entry in the transition table, the
// event is dropped: FSMResult.Changed is false and Actions is empty. This
// is the explicit behavior spec.md §4.2 calls for in the terminating row
// ("drop") and for any cell marked "—".
func ApplyEvent(current State, event Event) FSMResult {
	tr, ok := fsmTable[stateEvent{state: current, event: event}]
	if !ok {
		return FSMResult{OldState: current, NewState: current, Changed: false}
	}
	return FSMResult{
		OldState: current,
		NewState: tr.newState,
		Actions:  tr.actions,
		Changed:  current != tr.newState,
	}
}
