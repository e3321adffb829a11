package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DOUGSKEEZ/monty-sub006/internal/catalog"
	"github.com/DOUGSKEEZ/monty-sub006/internal/infrastructure/config"
)

// Result is the outcome of one transmission attempt.
type Result struct {
	Success bool
	Message string
}

// Transmitter attempts one physical transmission. The context carries the
// per-shot deadline; Send must return by then and must never panic past
// this boundary. Failures are expected and reported through the Result.
type Transmitter interface {
	Send(ctx context.Context, shadeID int, action catalog.Action) Result
}

// Catalog resolves shades and scenes to their configured commands.
// *catalog.Registry satisfies this interface.
type Catalog interface {
	GetShade(ctx context.Context, id int) (*catalog.Shade, error)
	GetScene(ctx context.Context, name string) (*catalog.Scene, error)
}

// Telemetry receives per-transmission outcomes. Optional.
type Telemetry interface {
	WriteTransmission(shadeID int, action string, success bool, latency time.Duration)
}

// sceneGrace is how much slack a scene's hard deadline gets beyond its
// plan's last firing, and how far the parent's deadline sits beyond the
// children's, so a healthy scene never trips its own wrapper.
const sceneGrace = 2 * time.Second

// Dispatcher is the submission surface of the command coordinator.
//
// Submissions are serialized and fast: one preemption check, plan
// computation, registration, goroutine launch. No I/O happens on the
// caller's path; the caller gets a task ID back before any transmission
// occurs.
//
// Thread Safety: all methods are safe for concurrent use.
type Dispatcher struct {
	cfg             config.DispatchConfig
	perTransmission time.Duration

	registry    *Registry
	catalog     Catalog
	transmitter Transmitter
	events      EventSink
	telemetry   Telemetry
	logger      Logger

	// submitMu serializes submissions so preempt-then-register for a
	// target is run-to-completion relative to any competing submission.
	submitMu sync.Mutex
	closed   bool

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
//
// Parameters:
//   - cfg: timing configuration (validated by config.Load)
//   - perTransmission: per-shot transmitter timeout
//   - cat: shade/scene catalog
//   - tx: physical transmitter
func NewDispatcher(cfg config.DispatchConfig, perTransmission time.Duration, cat Catalog, tx Transmitter) *Dispatcher {
	if perTransmission <= 0 {
		perTransmission = 50 * time.Millisecond
	}
	return &Dispatcher{
		cfg:             cfg,
		perTransmission: perTransmission,
		registry:        NewRegistry(cfg.CancelledHistory),
		catalog:         cat,
		transmitter:     tx,
		events:          noopSink{},
		logger:          noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// SetEvents sets the task lifecycle event sink.
func (d *Dispatcher) SetEvents(sink EventSink) {
	if sink != nil {
		d.events = sink
	}
}

// SetTelemetry sets the optional transmission telemetry sink.
func (d *Dispatcher) SetTelemetry(t Telemetry) {
	d.telemetry = t
}

// Registry exposes the task registry, for the reaper and health endpoints.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Submit accepts a command for one shade and returns immediately with the
// task ID of the background sequence.
//
// Any still-running sequence for the same shade is cancelled first (latest
// command wins), including a scene's sub-sequence for that shade. Unknown
// shades and unmapped actions are configuration errors surfaced here,
// before anything is registered.
func (d *Dispatcher) Submit(ctx context.Context, shadeID int, action catalog.Action) (string, error) {
	// Catalog resolution can hit SQLite on a cache miss; it stays outside
	// submitMu so a slow lookup never stalls other submitters.
	shade, err := d.catalog.GetShade(ctx, shadeID)
	if err != nil {
		return "", fmt.Errorf("resolving shade %d: %w", shadeID, err)
	}
	if _, err := shade.CodeFor(action); err != nil {
		return "", err
	}
	plan := planShade(d.cfg.RetryOffsets, shadeID, action)

	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	if d.closed {
		return "", ErrShuttingDown
	}

	seq := d.newSequence(ShadeTarget(shadeID), len(plan), d.cfg.HardDeadline)

	runCtx := d.startSequence(seq)
	d.launch(runCtx, seq, plan)

	d.logger.Info("command submitted",
		"task_id", seq.TaskID, "shade_id", shadeID, "action", action, "firings", len(plan))
	return seq.TaskID, nil
}

// SubmitScene activates a named scene and returns immediately with the
// parent task ID.
//
// Every running scene is preempted first (latest scene wins), then one
// sub-sequence per distinct shade is registered in the shade namespace,
// each preempting any direct command for that shade and each independently
// preemptable by a later direct command. The parent completes when all of
// its children are gone, tolerating children that disappear early.
func (d *Dispatcher) SubmitScene(ctx context.Context, sceneName string) (string, error) {
	// Resolution, validation and planning all run before submitMu is
	// taken; only preempt-and-register needs the lock.
	scene, err := d.catalog.GetScene(ctx, sceneName)
	if err != nil {
		return "", fmt.Errorf("resolving scene %q: %w", sceneName, err)
	}
	if len(scene.Commands) == 0 {
		return "", fmt.Errorf("%w: %q", ErrEmptyScene, sceneName)
	}

	// Validate every command before registering anything; a configuration
	// error must not leave a partial scene behind.
	for _, cmd := range scene.Commands {
		shade, err := d.catalog.GetShade(ctx, cmd.ShadeID)
		if err != nil {
			return "", fmt.Errorf("scene %q: resolving shade %d: %w", sceneName, cmd.ShadeID, err)
		}
		if _, err := shade.CodeFor(cmd.Action); err != nil {
			return "", fmt.Errorf("scene %q: %w", sceneName, err)
		}
	}

	plans := planScene(scene, d.cfg.InterCommandDelay, d.cfg.InterCycleDelay)

	// Long scene plans push the hard deadline out; the zombie thresholds
	// scale with it in newSequence so the reaper stays a pure safety net.
	deadline := d.cfg.HardDeadline
	if end := scenePlanEnd(plans) + sceneGrace; end > deadline {
		deadline = end
	}

	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	if d.closed {
		return "", ErrShuttingDown
	}

	for _, id := range d.registry.PreemptScenes() {
		d.emitCancelled(id, SceneTarget(sceneName), "preempted by scene "+sceneName)
	}

	parent := d.newSequence(SceneTarget(sceneName), 0, deadline+sceneGrace)
	parentCtx := d.startSequence(parent)

	var children sync.WaitGroup
	for shadeID, plan := range plans {
		child := d.newSequence(ShadeTarget(shadeID), len(plan), deadline)
		childCtx, childCancel := context.WithTimeout(parentCtx, deadline)
		child.cancel = childCancel

		if preempted := d.registry.PreemptAndRegister(child); preempted != "" {
			d.emitCancelled(preempted, child.Target, "preempted")
		}
		d.events.Emit(Event{Type: EventTaskStarted, TaskID: child.TaskID, Target: child.Target, At: time.Now()})

		children.Add(1)
		d.wg.Add(1)
		go func(seq *Sequence, p Plan, c context.Context) {
			defer d.wg.Done()
			defer children.Done()
			d.run(c, seq, p)
		}(child, plan, childCtx)
	}

	// The parent fires nothing itself; it waits for its children and then
	// deregisters. Children cancelled early (a direct command preempted
	// their shade) still count down the group.
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		children.Wait()
		d.finish(parentCtx, parent)
		parent.cancel()
	}()

	d.logger.Info("scene submitted",
		"task_id", parent.TaskID, "scene", sceneName, "shades", len(plans), "deadline", deadline)
	return parent.TaskID, nil
}

// Cancel cancels a live task by ID.
//
// Idempotent: cancelling a completed, reaped or already-cancelled task
// returns false and has no effect. Cancelling a scene parent cancels its
// remaining children through context inheritance.
func (d *Dispatcher) Cancel(taskID string) bool {
	target, ok := d.registry.Cancel(taskID)
	if !ok {
		return false
	}
	d.emitCancelled(taskID, target, "cancelled by request")
	d.logger.Info("task cancelled", "task_id", taskID, "target", target)
	return true
}

// Snapshot returns the current metrics snapshot.
func (d *Dispatcher) Snapshot() Snapshot {
	return d.registry.Snapshot()
}

// ActiveTasks lists all live sequences.
func (d *Dispatcher) ActiveTasks() []TaskInfo {
	return d.registry.ActiveTasks()
}

// Close stops accepting submissions, cancels every live sequence and waits
// for all executor goroutines to exit.
func (d *Dispatcher) Close() {
	d.submitMu.Lock()
	d.closed = true
	d.submitMu.Unlock()

	for _, task := range d.registry.ActiveTasks() {
		if _, ok := d.registry.Cancel(task.TaskID); ok {
			d.emitCancelled(task.TaskID, task.Target, "shutdown")
		}
	}
	d.wg.Wait()
	d.logger.Info("dispatcher drained")
}

// newSequence builds an unregistered sequence with zombie thresholds scaled
// to its deadline, keeping warn < kill < deadline for every plan length.
func (d *Dispatcher) newSequence(target string, firings int, deadline time.Duration) *Sequence {
	warn, kill := d.cfg.WarnAfter, d.cfg.KillAfter
	if deadline > d.cfg.HardDeadline && d.cfg.HardDeadline > 0 {
		scale := float64(deadline) / float64(d.cfg.HardDeadline)
		warn = time.Duration(float64(warn) * scale)
		kill = time.Duration(float64(kill) * scale)
	}
	return &Sequence{
		TaskID:    uuid.NewString(),
		Target:    target,
		Firings:   firings,
		deadline:  deadline,
		warnAfter: warn,
		killAfter: kill,
	}
}

// startSequence attaches the hard-deadline context to the sequence,
// registers it (preempting any previous owner of its target) and reports
// the start.
func (d *Dispatcher) startSequence(seq *Sequence) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), seq.deadline)
	seq.cancel = cancel

	if preempted := d.registry.PreemptAndRegister(seq); preempted != "" {
		d.emitCancelled(preempted, seq.Target, "preempted")
	}
	d.events.Emit(Event{Type: EventTaskStarted, TaskID: seq.TaskID, Target: seq.Target, At: time.Now()})
	return ctx
}

// launch runs a sequence on its own goroutine, tracked for Close.
func (d *Dispatcher) launch(ctx context.Context, seq *Sequence, plan Plan) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx, seq, plan)
	}()
}

func (d *Dispatcher) emitCancelled(taskID, target, detail string) {
	d.events.Emit(Event{
		Type:   EventTaskCancelled,
		TaskID: taskID,
		Target: target,
		At:     time.Now(),
		Detail: detail,
	})
}
