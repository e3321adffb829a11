// Package dispatch is the fire-and-forget command coordinator for shadecore.
//
// RF shades are driven over a single-shot radio link with no acknowledgement
// from the shade itself, so every logical command is executed as a bounded
// sequence of redundant transmissions at fixed offsets. The dispatcher
// guarantees at most one live sequence per target ("latest command wins"),
// returns to the caller before any transmission happens, and force-terminates
// sequences that outlive their expected lifetime.
//
// Components:
//
//   - Planner: pure computation of firing plans (offsets, shade, action)
//   - Registry: mutex-owned map of live sequences, indexed by task ID and
//     by target key, plus zombie bookkeeping and counters
//   - Executor: runs one plan with cancellable sleeps and silent-failure
//     transmissions, under a hard per-sequence deadline
//   - Dispatcher: submission surface and latest-command-wins preemption
//   - Reaper: periodic safety net that warns on and kills stuck sequences
//
// Scenes register one parent task under the scene: namespace and one child
// sub-sequence per distinct shade under the shade: namespace. A direct shade
// command preempts only that child; a new scene preempts every running scene.
package dispatch
