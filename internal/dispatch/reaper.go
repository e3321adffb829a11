package dispatch

import (
	"sync"
	"time"
)

// ReaperTelemetry receives counter snapshots after each reaper pass.
// Optional; satisfied by the InfluxDB client.
type ReaperTelemetry interface {
	WriteDispatchCounters(active int, zombiesDetected, zombiesCleaned, timeoutKills uint64)
}

// Reaper is the periodic safety net for leaked sequences.
//
// The hard per-sequence deadline is the tight, task-local guarantee; the
// reaper is the coarse backstop that catches anything that escapes it, such
// as a transmitter call that ignores its own timeout. On each tick it scans
// the registry, warns on sequences past their warning age, force-cancels
// sequences past their kill age and rolls the per-day counter over at
// midnight.
type Reaper struct {
	registry  *Registry
	interval  time.Duration
	logger    Logger
	events    EventSink
	telemetry ReaperTelemetry

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewReaper creates a reaper scanning registry every interval.
func NewReaper(registry *Registry, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		registry: registry,
		interval: interval,
		logger:   noopLogger{},
		events:   noopSink{},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetLogger sets the logger for the reaper.
func (r *Reaper) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetEvents sets the event sink for zombie kill notifications.
func (r *Reaper) SetEvents(sink EventSink) {
	if sink != nil {
		r.events = sink
	}
}

// SetTelemetry sets the optional counter snapshot sink.
func (r *Reaper) SetTelemetry(t ReaperTelemetry) {
	r.telemetry = t
}

// Start launches the reaper loop. Safe to call once; subsequent calls are
// no-ops.
func (r *Reaper) Start() {
	r.startOnce.Do(func() {
		go r.loop()
		r.logger.Info("zombie reaper started", "interval", r.interval)
	})
}

// Stop terminates the loop and waits for it to exit.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	<-r.done
}

func (r *Reaper) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

// tick performs one scan. Exported behaviour lives in Registry.ReapPass;
// this adds logging, events and telemetry around it.
func (r *Reaper) tick() {
	warned, killed := r.registry.ReapPass()

	for _, id := range warned {
		r.logger.Warn("zombie suspected", "task_id", id)
	}
	for _, id := range killed {
		r.logger.Error("zombie killed", "task_id", id)
		r.events.Emit(Event{
			Type:   EventZombieKilled,
			TaskID: id,
			At:     time.Now(),
			Detail: "exceeded kill threshold",
		})
	}

	if r.telemetry != nil {
		snap := r.registry.Snapshot()
		r.telemetry.WriteDispatchCounters(snap.ActiveCount, snap.ZombiesDetected, snap.ZombiesCleaned, snap.TimeoutKills)
	}
}
