package dispatch

import (
	"context"
	"time"
)

// run executes one planned sequence to completion.
//
// For each firing it sleeps until the firing's offset has elapsed since
// start, honouring cancellation during the sleep, then attempts one
// transmission. Transmission failures are logged and skipped; they never
// abort the sequence. The surrounding context carries the hard per-sequence
// deadline, so a stuck sequence is cut off even if the reaper never sees it.
//
// On exit the executor deregisters itself; if a preempting command already
// owns the target mapping, deregistration leaves it untouched.
func (d *Dispatcher) run(ctx context.Context, seq *Sequence, plan Plan) {
	start := time.Now()

	for _, firing := range plan {
		if wait := firing.Offset - time.Since(start); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				d.finish(ctx, seq)
				return
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			d.finish(ctx, seq)
			return
		}

		d.transmit(ctx, seq, firing)
	}

	d.finish(ctx, seq)
}

// transmit attempts one transmission under the per-transmission timeout.
//
// Silent-failure policy: the result is logged and reported to telemetry,
// never escalated. A failed or timed-out shot simply means this particular
// transmission is skipped.
func (d *Dispatcher) transmit(ctx context.Context, seq *Sequence, firing Firing) {
	sendCtx, cancel := context.WithTimeout(ctx, d.perTransmission)
	defer cancel()

	started := time.Now()
	result := d.transmitter.Send(sendCtx, firing.ShadeID, firing.Action)
	latency := time.Since(started)

	if result.Success {
		d.logger.Debug("transmission sent",
			"task_id", seq.TaskID, "shade_id", firing.ShadeID, "action", firing.Action, "latency", latency)
	} else {
		d.logger.Warn("transmission failed, continuing sequence",
			"task_id", seq.TaskID, "shade_id", firing.ShadeID, "action", firing.Action, "message", result.Message)
	}

	if d.telemetry != nil {
		d.telemetry.WriteTransmission(firing.ShadeID, string(firing.Action), result.Success, latency)
	}

	detail := string(firing.Action)
	if !result.Success {
		detail += " failed: " + result.Message
	}
	d.events.Emit(Event{
		Type:   EventTransmission,
		TaskID: seq.TaskID,
		Target: seq.Target,
		At:     time.Now(),
		Detail: detail,
	})
}

// finish deregisters the sequence and reports its terminal state.
//
// All three terminal states (completed, cancelled, hard-deadline kill)
// converge here; deregistration is idempotent against a concurrent Cancel
// or reaper kill, so racing with either is harmless.
func (d *Dispatcher) finish(ctx context.Context, seq *Sequence) {
	switch ctx.Err() {
	case nil:
		d.registry.Deregister(seq.TaskID)
		d.events.Emit(Event{
			Type:   EventTaskCompleted,
			TaskID: seq.TaskID,
			Target: seq.Target,
			At:     time.Now(),
		})
		d.logger.Debug("sequence completed", "task_id", seq.TaskID, "target", seq.Target)

	case context.DeadlineExceeded:
		d.registry.RecordTimeoutKill()
		d.registry.Deregister(seq.TaskID)
		d.events.Emit(Event{
			Type:   EventTaskCancelled,
			TaskID: seq.TaskID,
			Target: seq.Target,
			At:     time.Now(),
			Detail: "hard deadline exceeded",
		})
		d.logger.Warn("sequence killed by hard deadline", "task_id", seq.TaskID, "target", seq.Target)

	default:
		// Cancelled by preemption, an explicit Cancel or the reaper. The
		// canceller already removed the registry entries and reported the
		// event; this deregistration is a no-op safety pass.
		d.registry.Deregister(seq.TaskID)
		d.logger.Debug("sequence cancelled", "task_id", seq.TaskID, "target", seq.Target)
	}
}
