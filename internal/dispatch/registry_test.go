package dispatch

import (
	"sync/atomic"
	"testing"
	"time"
)

func testSequence(id, target string, cancelled *atomic.Int32) *Sequence {
	return &Sequence{
		TaskID:    id,
		Target:    target,
		deadline:  10 * time.Second,
		warnAfter: 8 * time.Second,
		killAfter: 12 * time.Second,
		cancel: func() {
			if cancelled != nil {
				cancelled.Add(1)
			}
		},
	}
}

func TestRegistry_SingleFlightPerTarget(t *testing.T) {
	reg := NewRegistry(10)
	var cancelled atomic.Int32

	first := testSequence("t1", ShadeTarget(14), &cancelled)
	if got := reg.PreemptAndRegister(first); got != "" {
		t.Errorf("expected no preemption on idle target, got %q", got)
	}

	second := testSequence("t2", ShadeTarget(14), nil)
	if got := reg.PreemptAndRegister(second); got != "t1" {
		t.Errorf("expected t1 preempted, got %q", got)
	}
	if cancelled.Load() != 1 {
		t.Errorf("expected first sequence cancelled once, got %d", cancelled.Load())
	}

	snap := reg.Snapshot()
	if snap.ActiveCount != 1 || snap.ActiveByTargetCount != 1 {
		t.Errorf("expected exactly one live task, got %+v", snap)
	}
	if snap.CancelledCount != 1 {
		t.Errorf("expected one cancelled id recorded, got %d", snap.CancelledCount)
	}
}

func TestRegistry_CancelIdempotent(t *testing.T) {
	reg := NewRegistry(10)
	var cancelled atomic.Int32
	reg.PreemptAndRegister(testSequence("t1", ShadeTarget(1), &cancelled))

	if target, ok := reg.Cancel("t1"); !ok || target != ShadeTarget(1) {
		t.Fatalf("expected successful cancel of t1, got %q %v", target, ok)
	}
	if _, ok := reg.Cancel("t1"); ok {
		t.Error("second cancel of same task must return false")
	}
	if _, ok := reg.Cancel("never-existed"); ok {
		t.Error("cancelling an unknown task must return false")
	}
	if cancelled.Load() != 1 {
		t.Errorf("cancel handle invoked %d times, want 1", cancelled.Load())
	}
}

func TestRegistry_DeregisterPreservesNewOwner(t *testing.T) {
	reg := NewRegistry(10)

	old := testSequence("old", ShadeTarget(5), nil)
	reg.PreemptAndRegister(old)
	reg.PreemptAndRegister(testSequence("new", ShadeTarget(5), nil))

	// The preempted executor deregisters itself late; it must not remove
	// the new owner's target mapping.
	reg.Deregister("old")

	snap := reg.Snapshot()
	if snap.ActiveByTargetCount != 1 {
		t.Errorf("new owner's target mapping was lost: %+v", snap)
	}
	if _, ok := reg.Cancel("new"); !ok {
		t.Error("new task should still be cancellable")
	}
}

func TestRegistry_CancelledHistoryBounded(t *testing.T) {
	reg := NewRegistry(3)

	for i := 0; i < 6; i++ {
		seq := testSequence(string(rune('a'+i)), ShadeTarget(i), nil)
		reg.PreemptAndRegister(seq)
		reg.Cancel(seq.TaskID)
	}

	recent := reg.RecentlyCancelled()
	if len(recent) != 3 {
		t.Fatalf("expected history bounded to 3, got %d", len(recent))
	}
	if recent[0] != "d" || recent[2] != "f" {
		t.Errorf("expected oldest entries evicted, got %v", recent)
	}
}

func TestRegistry_ZombieLifecycle(t *testing.T) {
	reg := NewRegistry(10)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	reg.SetClock(func() time.Time { return now })

	var cancelled atomic.Int32
	reg.PreemptAndRegister(testSequence("stuck", ShadeTarget(7), &cancelled))

	// Young task: no action.
	warned, killed := reg.ReapPass()
	if len(warned) != 0 || len(killed) != 0 {
		t.Fatalf("expected no action on young task, got warned=%v killed=%v", warned, killed)
	}

	// Past the warning threshold: warned once, counted once.
	now = now.Add(9 * time.Second)
	warned, killed = reg.ReapPass()
	if len(warned) != 1 || warned[0] != "stuck" {
		t.Fatalf("expected stuck warned, got %v", warned)
	}
	if len(killed) != 0 {
		t.Fatalf("expected no kill yet, got %v", killed)
	}

	// A second pass at the same age must not double-count the warning.
	warned, _ = reg.ReapPass()
	if len(warned) != 0 {
		t.Errorf("task warned twice: %v", warned)
	}
	if snap := reg.Snapshot(); snap.ZombiesDetected != 1 || snap.ZombiesToday != 1 {
		t.Errorf("unexpected warning counters: %+v", snap)
	}

	// Past the kill threshold: force-cancelled exactly once.
	now = now.Add(4 * time.Second)
	_, killed = reg.ReapPass()
	if len(killed) != 1 || killed[0] != "stuck" {
		t.Fatalf("expected stuck killed, got %v", killed)
	}
	if cancelled.Load() != 1 {
		t.Errorf("cancel handle invoked %d times, want 1", cancelled.Load())
	}

	snap := reg.Snapshot()
	if snap.ZombiesCleaned != 1 {
		t.Errorf("expected zombiesCleaned=1, got %d", snap.ZombiesCleaned)
	}
	if snap.ActiveCount != 0 || snap.ZombieWarningCount != 0 {
		t.Errorf("expected empty registry after kill, got %+v", snap)
	}

	// Further passes change nothing.
	_, killed = reg.ReapPass()
	if len(killed) != 0 {
		t.Errorf("dead task killed again: %v", killed)
	}
	if snap := reg.Snapshot(); snap.ZombiesCleaned != 1 {
		t.Errorf("zombiesCleaned incremented twice: %+v", snap)
	}
}

func TestRegistry_WarnedTaskResolvesNaturally(t *testing.T) {
	reg := NewRegistry(10)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	reg.SetClock(func() time.Time { return now })

	reg.PreemptAndRegister(testSequence("slow", ShadeTarget(2), nil))

	now = now.Add(9 * time.Second)
	if warned, _ := reg.ReapPass(); len(warned) != 1 {
		t.Fatalf("expected slow task warned, got %v", warned)
	}

	// The executor finishes on its own before the kill threshold.
	reg.Deregister("slow")

	now = now.Add(4 * time.Second)
	_, killed := reg.ReapPass()
	if len(killed) != 0 {
		t.Errorf("naturally resolved task was killed: %v", killed)
	}

	snap := reg.Snapshot()
	if snap.ZombiesCleaned != 0 {
		t.Errorf("kill counter incremented for a task that resolved on its own: %+v", snap)
	}
	if snap.ZombieWarningCount != 0 {
		t.Errorf("stale warning entry not removed: %+v", snap)
	}
}

func TestRegistry_DailyRollover(t *testing.T) {
	reg := NewRegistry(10)
	now := time.Date(2026, 8, 30, 23, 50, 0, 0, time.UTC)
	reg.SetClock(func() time.Time { return now })
	// Reset the date baseline to the fake clock.
	reg.ReapPass()

	reg.PreemptAndRegister(testSequence("z1", ShadeTarget(1), nil))
	now = now.Add(9 * time.Second)
	reg.ReapPass()

	before := reg.Snapshot()
	if before.ZombiesToday != 1 || before.ZombiesDetected != 1 {
		t.Fatalf("unexpected counters before midnight: %+v", before)
	}

	// Cross midnight: the per-day counter resets, lifetime counters stay.
	now = now.Add(time.Hour)
	reg.ReapPass()

	after := reg.Snapshot()
	if after.ZombiesToday != 0 {
		t.Errorf("expected zombiesToday reset to 0, got %d", after.ZombiesToday)
	}
	if after.ZombiesDetected != 1 {
		t.Errorf("lifetime zombiesDetected changed across rollover: %d", after.ZombiesDetected)
	}
	if after.LastResetDate != "2026-08-31" {
		t.Errorf("expected lastResetDate advanced, got %s", after.LastResetDate)
	}
}
