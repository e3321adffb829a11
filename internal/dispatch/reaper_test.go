package dispatch

import (
	"sync"
	"testing"
	"time"
)

type recordingTelemetry struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingTelemetry) WriteDispatchCounters(int, uint64, uint64, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
}

func (r *recordingTelemetry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestReaper_KillsStuckSequence(t *testing.T) {
	reg := NewRegistry(10)

	// A synthetic executor that never returns: registered, never
	// deregistered, with tight thresholds so the loop catches it fast.
	stuck := &Sequence{
		TaskID:    "stuck",
		Target:    ShadeTarget(1),
		deadline:  time.Minute,
		warnAfter: 10 * time.Millisecond,
		killAfter: 30 * time.Millisecond,
		cancel:    func() {},
	}
	reg.PreemptAndRegister(stuck)

	sink := &recordingSink{}
	telemetry := &recordingTelemetry{}
	reaper := NewReaper(reg, 20*time.Millisecond)
	reaper.SetEvents(sink)
	reaper.SetTelemetry(telemetry)
	reaper.Start()
	defer reaper.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if reg.Snapshot().ZombiesCleaned == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	snap := reg.Snapshot()
	if snap.ZombiesCleaned != 1 {
		t.Fatalf("expected stuck task cleaned exactly once, got %+v", snap)
	}
	if snap.ActiveCount != 0 {
		t.Errorf("stuck task still registered: %+v", snap)
	}

	if got := len(sink.ofType(EventZombieKilled)); got != 1 {
		t.Errorf("expected one zombie.killed event, got %d", got)
	}
	if telemetry.count() == 0 {
		t.Error("expected counter snapshots written to telemetry")
	}
}

func TestReaper_StopTerminatesLoop(t *testing.T) {
	reaper := NewReaper(NewRegistry(10), 10*time.Millisecond)
	reaper.Start()

	done := make(chan struct{})
	go func() {
		reaper.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not terminate the reaper loop")
	}
}

func TestReaper_StartIsIdempotent(t *testing.T) {
	reaper := NewReaper(NewRegistry(10), 10*time.Millisecond)
	reaper.Start()
	reaper.Start()
	reaper.Stop()
}
