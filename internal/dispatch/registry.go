package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Target key namespaces. Scene parents and shade sequences live in distinct
// namespaces so preempting one never touches the other.
const (
	shadeTargetPrefix = "shade:"
	sceneTargetPrefix = "scene:"
)

// ShadeTarget returns the registry target key for a shade.
func ShadeTarget(shadeID int) string {
	return fmt.Sprintf("%s%d", shadeTargetPrefix, shadeID)
}

// SceneTarget returns the registry target key for a scene.
func SceneTarget(name string) string {
	return sceneTargetPrefix + name
}

// Sequence is one live background transmission sequence.
//
// A Sequence is owned by the Executor goroutine that runs it and tracked by
// the Registry; it is removed from all maps on completion, cancellation or
// reaper kill.
type Sequence struct {
	TaskID    string
	Target    string
	StartedAt time.Time

	// Firings is the number of planned transmissions, kept for the task
	// listing. Zero for scene parents, which fire nothing themselves.
	Firings int

	// deadline is the hard outer deadline for this sequence. warnAfter
	// and killAfter are the zombie thresholds; they scale with the
	// deadline so long scene plans are not reaped mid-flight.
	deadline  time.Duration
	warnAfter time.Duration
	killAfter time.Duration

	cancel context.CancelFunc
}

// TaskInfo is a read-only view of one live sequence.
type TaskInfo struct {
	TaskID    string        `json:"task_id"`
	Target    string        `json:"target"`
	StartedAt time.Time     `json:"started_at"`
	Age       time.Duration `json:"age"`
	Firings   int           `json:"firings"`
}

// Registry is the authoritative owner of all live sequence state.
//
// All five structures (activeTasks, activeByTarget, cancelledIDs,
// zombieWarnings, counters) are mutated together inside one critical section
// per operation, so no caller can ever observe a task present in one map and
// absent from another.
//
// The clock is injectable for tests; production uses time.Now.
type Registry struct {
	mu sync.Mutex

	activeTasks    map[string]*Sequence
	activeByTarget map[string]string

	// cancelledIDs is a bounded FIFO of recently cancelled task IDs,
	// for diagnostics only.
	cancelledIDs []string
	maxCancelled int

	// zombieWarnings holds tasks past their warning age but not yet
	// killed, keyed by task ID with the first-warned timestamp.
	zombieWarnings map[string]time.Time

	counters counters

	now func() time.Time
}

// counters are the reaper and deadline metrics, guarded by Registry.mu.
type counters struct {
	zombiesDetected uint64
	zombiesCleaned  uint64
	timeoutKills    uint64
	zombiesToday    uint64
	lastResetDate   string
}

// NewRegistry creates an empty registry retaining up to historySize
// recently cancelled task IDs.
func NewRegistry(historySize int) *Registry {
	if historySize <= 0 {
		historySize = 50
	}
	now := time.Now
	return &Registry{
		activeTasks:    make(map[string]*Sequence),
		activeByTarget: make(map[string]string),
		maxCancelled:   historySize,
		zombieWarnings: make(map[string]time.Time),
		counters:       counters{lastResetDate: now().Format("2006-01-02")},
		now:            now,
	}
}

// SetClock overrides the registry's clock. Tests only.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Now returns the registry's current time.
func (r *Registry) Now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now()
}

// PreemptAndRegister atomically cancels any sequence registered for
// seq.Target and installs seq in its place. The lookup, cancel, removal and
// insert happen inside one critical section, so there is never a window
// where two sequences for one target are simultaneously registered.
//
// Returns the cancelled task ID, or "" if the target was idle.
func (r *Registry) PreemptAndRegister(seq *Sequence) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancelled := r.removeByTargetLocked(seq.Target)

	seq.StartedAt = r.now()
	r.activeTasks[seq.TaskID] = seq
	r.activeByTarget[seq.Target] = seq.TaskID
	return cancelled
}

// PreemptScenes cancels every registered scene-namespace parent.
// Returns the cancelled task IDs.
func (r *Registry) PreemptScenes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var cancelled []string
	for target := range r.activeByTarget {
		if strings.HasPrefix(target, sceneTargetPrefix) {
			if id := r.removeByTargetLocked(target); id != "" {
				cancelled = append(cancelled, id)
			}
		}
	}
	return cancelled
}

// Cancel cancels a sequence by task ID.
//
// Idempotent: cancelling an unknown, completed or already-cancelled task
// returns ok=false and mutates nothing. The returned target identifies what
// was cancelled, for event reporting.
func (r *Registry) Cancel(taskID string) (target string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq, exists := r.activeTasks[taskID]
	if !exists {
		return "", false
	}
	r.removeLocked(seq, true)
	return seq.Target, true
}

// Deregister removes a sequence after its executor finishes.
//
// The activeByTarget entry is removed only if it still points at this task;
// a preempting command may already own the target. Idempotent against a
// concurrent Cancel or reaper kill.
func (r *Registry) Deregister(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq, exists := r.activeTasks[taskID]
	if !exists {
		return
	}
	r.removeLocked(seq, false)
}

// RecordTimeoutKill increments the hard-deadline kill counter.
func (r *Registry) RecordTimeoutKill() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.timeoutKills++
}

// ReapPass performs one reaper scan inside a single critical section.
//
// Tasks older than their warning threshold are recorded in zombieWarnings
// and counted once. Tasks older than their kill threshold are cancelled and
// removed outright. Warning entries whose task has already gone away are
// dropped without touching the kill counters. The daily zombie counter
// rolls over when the date changes.
//
// Returns the task IDs newly warned and killed on this pass.
func (r *Registry) ReapPass() (warned, killed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	// Daily rollover. Lifetime counters are preserved.
	if today := now.Format("2006-01-02"); today != r.counters.lastResetDate {
		r.counters.zombiesToday = 0
		r.counters.lastResetDate = today
	}

	for id, seq := range r.activeTasks {
		age := now.Sub(seq.StartedAt)

		if age > seq.killAfter {
			r.removeLocked(seq, true)
			r.counters.zombiesCleaned++
			killed = append(killed, id)
			continue
		}

		if age > seq.warnAfter {
			if _, already := r.zombieWarnings[id]; !already {
				r.zombieWarnings[id] = now
				r.counters.zombiesDetected++
				r.counters.zombiesToday++
				warned = append(warned, id)
			}
		}
	}

	// A warned task that disappeared on its own resolved normally, just
	// slowly. Drop the stale entry without counting a kill.
	for id := range r.zombieWarnings {
		if _, alive := r.activeTasks[id]; !alive {
			delete(r.zombieWarnings, id)
		}
	}

	return warned, killed
}

// Snapshot returns a read-only aggregation of registry state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{
		ActiveCount:         len(r.activeTasks),
		ActiveByTargetCount: len(r.activeByTarget),
		CancelledCount:      len(r.cancelledIDs),
		ZombieWarningCount:  len(r.zombieWarnings),
		ZombiesDetected:     r.counters.zombiesDetected,
		ZombiesCleaned:      r.counters.zombiesCleaned,
		TimeoutKills:        r.counters.timeoutKills,
		ZombiesToday:        r.counters.zombiesToday,
		LastResetDate:       r.counters.lastResetDate,
	}
}

// ActiveTasks returns a view of every live sequence, sorted by start time.
func (r *Registry) ActiveTasks() []TaskInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	tasks := make([]TaskInfo, 0, len(r.activeTasks))
	for _, seq := range r.activeTasks {
		tasks = append(tasks, TaskInfo{
			TaskID:    seq.TaskID,
			Target:    seq.Target,
			StartedAt: seq.StartedAt,
			Age:       now.Sub(seq.StartedAt),
			Firings:   seq.Firings,
		})
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].StartedAt.Before(tasks[j].StartedAt) })
	return tasks
}

// RecentlyCancelled returns the bounded cancelled-task history, newest last.
func (r *Registry) RecentlyCancelled() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.cancelledIDs))
	copy(out, r.cancelledIDs)
	return out
}

// removeByTargetLocked cancels and removes whatever sequence owns target.
// Caller must hold r.mu. Returns the removed task ID or "".
func (r *Registry) removeByTargetLocked(target string) string {
	id, ok := r.activeByTarget[target]
	if !ok {
		return ""
	}
	seq, ok := r.activeTasks[id]
	if !ok {
		// Should not happen; the maps are mutated together.
		delete(r.activeByTarget, target)
		return ""
	}
	r.removeLocked(seq, true)
	return id
}

// removeLocked removes seq from every structure. Caller must hold r.mu.
// When cancelled is true the sequence's context is cancelled and the ID is
// recorded in the bounded history.
func (r *Registry) removeLocked(seq *Sequence, cancelled bool) {
	delete(r.activeTasks, seq.TaskID)
	if owner, ok := r.activeByTarget[seq.Target]; ok && owner == seq.TaskID {
		delete(r.activeByTarget, seq.Target)
	}
	delete(r.zombieWarnings, seq.TaskID)

	if cancelled {
		seq.cancel()
		r.cancelledIDs = append(r.cancelledIDs, seq.TaskID)
		if len(r.cancelledIDs) > r.maxCancelled {
			r.cancelledIDs = r.cancelledIDs[len(r.cancelledIDs)-r.maxCancelled:]
		}
	}
}
