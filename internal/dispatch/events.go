package dispatch

import "time"

// Event types published over the event sink.
const (
	EventTaskStarted   = "task.started"
	EventTaskCompleted = "task.completed"
	EventTaskCancelled = "task.cancelled"
	EventZombieKilled  = "zombie.killed"
	EventTransmission  = "transmission.result"
)

// Event is a task lifecycle notification, fanned out to MQTT and WebSocket
// subscribers. Emission is best-effort and must never block the dispatch
// path.
type Event struct {
	Type   string    `json:"type"`
	TaskID string    `json:"task_id"`
	Target string    `json:"target"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}

// EventSink receives task lifecycle events. Implementations must be
// non-blocking; the dispatcher calls Emit from executor goroutines and
// from the submission path while its submit lock is held.
type EventSink interface {
	Emit(event Event)
}

// noopSink discards all events.
type noopSink struct{}

func (noopSink) Emit(Event) {}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
