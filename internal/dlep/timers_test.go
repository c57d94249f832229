package dlep_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/go-dlep/dlep/internal/dlep"
)

func TestNewTimersDisablesHeartbeatWhenIntervalZero(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	timers := dlep.NewTimers(clock, 0, 500*time.Millisecond)

	if timers.Heartbeat != nil {
		t.Error("Heartbeat timer should be nil when heartbeatInterval is 0")
	}
	if timers.Acktivity == nil {
		t.Fatal("Acktivity timer should always be armed")
	}

	// Must not panic even though Heartbeat is nil.
	timers.ResetHeartbeat()
	timers.StopAll()
}

func TestNewTimersArmsHeartbeatWhenIntervalPositive(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	timers := dlep.NewTimers(clock, 1*time.Second, 500*time.Millisecond)

	if timers.Heartbeat == nil {
		t.Fatal("Heartbeat timer should be armed when heartbeatInterval > 0")
	}

	clock.Advance(1 * time.Second)
	select {
	case <-timers.Heartbeat.Chan():
	default:
		t.Error("Heartbeat timer did not fire after advancing the clock past its interval")
	}
}

func TestResetHeartbeatRearmsTimer(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	timers := dlep.NewTimers(clock, 1*time.Second, 1*time.Second)

	clock.Advance(1 * time.Second)
	<-timers.Heartbeat.Chan()

	timers.ResetHeartbeat()

	clock.Advance(1 * time.Second)
	select {
	case <-timers.Heartbeat.Chan():
	default:
		t.Error("Heartbeat timer did not re-fire after ResetHeartbeat + advancing one more interval")
	}
}

func TestResetAcktivityChangesInterval(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	timers := dlep.NewTimers(clock, 0, 1*time.Second)

	timers.ResetAcktivity(200 * time.Millisecond)

	clock.Advance(200 * time.Millisecond)
	select {
	case <-timers.Acktivity.Chan():
	default:
		t.Error("Acktivity timer did not fire after its interval was shortened via ResetAcktivity")
	}
}

func TestArmTerminationFiresAfterWait(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	timers := dlep.NewTimers(clock, 0, 1*time.Second)

	timers.ArmTermination(2 * time.Second)
	if timers.Termination == nil {
		t.Fatal("ArmTermination should arm Termination")
	}

	clock.Advance(2 * time.Second)
	select {
	case <-timers.Termination.Chan():
	default:
		t.Error("Termination timer did not fire after the wait elapsed")
	}
}

func TestStopAllStopsEveryArmedTimer(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	timers := dlep.NewTimers(clock, 1*time.Second, 1*time.Second)
	timers.ArmTermination(1 * time.Second)

	timers.StopAll()

	clock.Advance(5 * time.Second)
	select {
	case <-timers.Heartbeat.Chan():
		t.Error("Heartbeat fired after StopAll")
	case <-timers.Acktivity.Chan():
		t.Error("Acktivity fired after StopAll")
	case <-timers.Termination.Chan():
		t.Error("Termination fired after StopAll")
	default:
	}
}
