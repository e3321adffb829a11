package dispatch

import (
	"time"

	"github.com/DOUGSKEEZ/monty-sub006/internal/catalog"
)

// Firing is one planned transmission: fire (ShadeID, Action) at Offset
// relative to sequence start.
type Firing struct {
	Offset  time.Duration
	ShadeID int
	Action  catalog.Action
}

// Plan is an ordered list of firings. Offsets are non-decreasing.
type Plan []Firing

// Duration returns the offset of the last firing, i.e. when the final
// transmission of the plan begins.
func (p Plan) Duration() time.Duration {
	if len(p) == 0 {
		return 0
	}
	return p[len(p)-1].Offset
}

// planShade builds the fixed redundant plan for a single shade command.
//
// The offsets come from config; the defaults {0, 650, 1500, 2500} ms are
// derived from the RF link: one transmission occupies roughly 750 ms of
// airtime, so the first retry clears that window and the later retries add
// margin for a flaky receiver. An empty offsets list degrades to a single
// immediate shot.
func planShade(offsets []time.Duration, shadeID int, action catalog.Action) Plan {
	if len(offsets) == 0 {
		return Plan{{Offset: 0, ShadeID: shadeID, Action: action}}
	}

	plan := make(Plan, 0, len(offsets))
	for _, off := range offsets {
		if off < 0 {
			off = 0
		}
		plan = append(plan, Firing{Offset: off, ShadeID: shadeID, Action: action})
	}
	return plan
}

// planScene builds per-shade plans for a scene activation.
//
// The scene's command list is replayed cycleCount times. Within a cycle,
// each command after the first is spaced by its own delay, falling back to
// interCommand when the command has none. Cycles are separated by
// interCycle. Offsets are absolute from scene start, so every shade's
// sub-sequence can run against the same clock.
//
// Zero or negative cycle counts and delays degrade to a single pass with no
// spacing; they never fail.
func planScene(scene *catalog.Scene, interCommand, interCycle time.Duration) map[int]Plan {
	cycles := scene.CycleCount
	if cycles <= 0 {
		cycles = 1
	}
	if interCommand < 0 {
		interCommand = 0
	}
	if interCycle < 0 {
		interCycle = 0
	}

	plans := make(map[int]Plan)
	var t time.Duration
	for cycle := 0; cycle < cycles; cycle++ {
		if cycle > 0 {
			t += interCycle
		}
		for i, cmd := range scene.Commands {
			if i > 0 {
				gap := time.Duration(cmd.DelayMS) * time.Millisecond
				if gap <= 0 {
					gap = interCommand
				}
				t += gap
			}
			plans[cmd.ShadeID] = append(plans[cmd.ShadeID], Firing{
				Offset:  t,
				ShadeID: cmd.ShadeID,
				Action:  cmd.Action,
			})
		}
	}
	return plans
}

// scenePlanEnd returns the latest firing offset across all per-shade plans.
func scenePlanEnd(plans map[int]Plan) time.Duration {
	var end time.Duration
	for _, plan := range plans {
		if d := plan.Duration(); d > end {
			end = d
		}
	}
	return end
}
