package dlep_test

import (
	"testing"

	"github.com/go-dlep/dlep/internal/dlep"
)

// TestFSMTransitionTable verifies every transition in the Peer session FSM
// table against the table in the DLEP session-state specification §4.2.
func TestFSMTransitionTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		state       dlep.State
		event       dlep.Event
		wantState   dlep.State
		wantChanged bool
		wantActions []dlep.Action
	}{
		{
			name:        "connected+RecvPeerInit->in_session (modem)",
			state:       dlep.StateConnected,
			event:       dlep.EventRecvPeerInit,
			wantState:   dlep.StateInSession,
			wantChanged: true,
			wantActions: []dlep.Action{dlep.ActionSendInitResp, dlep.ActionNotifyPeerUp},
		},
		{
			name:        "connected+RecvPeerInitResp->in_session (router)",
			state:       dlep.StateConnected,
			event:       dlep.EventRecvPeerInitResp,
			wantState:   dlep.StateInSession,
			wantChanged: true,
			wantActions: []dlep.Action{dlep.ActionNotifyPeerUp},
		},
		{
			name:        "connected+FatalError->terminating",
			state:       dlep.StateConnected,
			event:       dlep.EventFatalError,
			wantState:   dlep.StateTerminating,
			wantChanged: true,
			wantActions: []dlep.Action{dlep.ActionSendTerm},
		},
		{
			name:        "connected+RecvPeerTerm->terminating",
			state:       dlep.StateConnected,
			event:       dlep.EventRecvPeerTerm,
			wantState:   dlep.StateTerminating,
			wantChanged: true,
			wantActions: []dlep.Action{dlep.ActionSendTermResp},
		},
		{
			name:        "connected+LivenessExpired->destroyed",
			state:       dlep.StateConnected,
			event:       dlep.EventLivenessExpired,
			wantState:   dlep.StateDestroyed,
			wantChanged: true,
			wantActions: []dlep.Action{dlep.ActionNotifyPeerDown},
		},
		{
			name:        "connected+RecvPeerTermResp dropped (no entry)",
			state:       dlep.StateConnected,
			event:       dlep.EventRecvPeerTermResp,
			wantState:   dlep.StateConnected,
			wantChanged: false,
			wantActions: nil,
		},
		{
			name:        "in_session+RecvPeerInit->terminating (protocol violation)",
			state:       dlep.StateInSession,
			event:       dlep.EventRecvPeerInit,
			wantState:   dlep.StateTerminating,
			wantChanged: true,
			wantActions: []dlep.Action{dlep.ActionSendTerm},
		},
		{
			name:        "in_session+RecvPeerInitResp->terminating (protocol violation)",
			state:       dlep.StateInSession,
			event:       dlep.EventRecvPeerInitResp,
			wantState:   dlep.StateTerminating,
			wantChanged: true,
			wantActions: []dlep.Action{dlep.ActionSendTerm},
		},
		{
			name:        "in_session+FatalError->terminating",
			state:       dlep.StateInSession,
			event:       dlep.EventFatalError,
			wantState:   dlep.StateTerminating,
			wantChanged: true,
			wantActions: []dlep.Action{dlep.ActionSendTerm},
		},
		{
			name:        "in_session+RecvPeerTerm->terminating",
			state:       dlep.StateInSession,
			event:       dlep.EventRecvPeerTerm,
			wantState:   dlep.StateTerminating,
			wantChanged: true,
			wantActions: []dlep.Action{dlep.ActionSendTermResp},
		},
		{
			name:        "in_session+LivenessExpired->destroyed",
			state:       dlep.StateInSession,
			event:       dlep.EventLivenessExpired,
			wantState:   dlep.StateDestroyed,
			wantChanged: true,
			wantActions: []dlep.Action{dlep.ActionNotifyPeerDown},
		},
		{
			name:        "terminating+RecvPeerInit dropped",
			state:       dlep.StateTerminating,
			event:       dlep.EventRecvPeerInit,
			wantState:   dlep.StateTerminating,
			wantChanged: false,
			wantActions: nil,
		},
		{
			name:        "terminating+RecvPeerTerm dropped",
			state:       dlep.StateTerminating,
			event:       dlep.EventRecvPeerTerm,
			wantState:   dlep.StateTerminating,
			wantChanged: false,
			wantActions: nil,
		},
		{
			name:        "terminating+RecvPeerTermResp->destroyed",
			state:       dlep.StateTerminating,
			event:       dlep.EventRecvPeerTermResp,
			wantState:   dlep.StateDestroyed,
			wantChanged: true,
			wantActions: []dlep.Action{dlep.ActionNotifyPeerDown},
		},
		{
			name:        "terminating+TerminationTimeout->destroyed",
			state:       dlep.StateTerminating,
			event:       dlep.EventTerminationTimeout,
			wantState:   dlep.StateDestroyed,
			wantChanged: true,
			wantActions: []dlep.Action{dlep.ActionNotifyPeerDown},
		},
		{
			name:        "terminating+LivenessExpired->destroyed",
			state:       dlep.StateTerminating,
			event:       dlep.EventLivenessExpired,
			wantState:   dlep.StateDestroyed,
			wantChanged: true,
			wantActions: []dlep.Action{dlep.ActionNotifyPeerDown},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := dlep.ApplyEvent(tt.state, tt.event)

			if got.OldState != tt.state {
				t.Errorf("OldState = %v, want %v", got.OldState, tt.state)
			}
			if got.NewState != tt.wantState {
				t.Errorf("NewState = %v, want %v", got.NewState, tt.wantState)
			}
			if got.Changed != tt.wantChanged {
				t.Errorf("Changed = %v, want %v", got.Changed, tt.wantChanged)
			}
			if len(got.Actions) != len(tt.wantActions) {
				t.Fatalf("Actions = %v, want %v", got.Actions, tt.wantActions)
			}
			for i := range got.Actions {
				if got.Actions[i] != tt.wantActions[i] {
					t.Errorf("Actions[%d] = %v, want %v", i, got.Actions[i], tt.wantActions[i])
				}
			}
		})
	}
}

// TestFSMUnlistedPairDropped verifies the default-drop behavior documented
// on ApplyEvent for a state/event pair with no table entry.
func TestFSMUnlistedPairDropped(t *testing.T) {
	t.Parallel()
	got := dlep.ApplyEvent(dlep.StateDestroyed, dlep.EventRecvPeerInit)
	if got.Changed {
		t.Fatalf("expected no change from a destroyed-state peer, got %+v", got)
	}
}
