package transmitter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DOUGSKEEZ/monty-sub006/internal/catalog"
	"github.com/DOUGSKEEZ/monty-sub006/internal/dispatch"
	"github.com/DOUGSKEEZ/monty-sub006/internal/infrastructure/mqtt"
)

// Commands are published at QoS 0. A duplicate delivered late by a
// retrying broker would move the shade at the wrong moment; the
// dispatcher's own redundancy handles loss.
const commandQoS = 0

// defaultPublishWait bounds the broker acknowledgement wait when the
// caller's context carries no deadline.
const defaultPublishWait = 50 * time.Millisecond

// Publisher is the MQTT surface the bridge needs. *mqtt.Client satisfies it.
type Publisher interface {
	PublishTimeout(topic string, payload []byte, qos byte, retained bool, timeout time.Duration) error
}

// CodeSource resolves shades to their RF codes. *catalog.Registry
// satisfies it.
type CodeSource interface {
	GetShade(ctx context.Context, id int) (*catalog.Shade, error)
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// frame is the wire format of one transmit command to the RF bridge.
type frame struct {
	ShadeID  int    `json:"shade_id"`
	RemoteID int    `json:"remote_id"`
	Channel  int    `json:"channel"`
	Action   string `json:"action"`
	Code     int    `json:"code"`
	SentAt   string `json:"sent_at"`
}

// RFBridge publishes transmit frames to the RF bridge over MQTT.
type RFBridge struct {
	publisher Publisher
	shades    CodeSource
	topics    mqtt.Topics
	logger    Logger
}

// New creates an RF bridge transmitter.
func New(publisher Publisher, shades CodeSource) *RFBridge {
	return &RFBridge{
		publisher: publisher,
		shades:    shades,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the bridge.
func (b *RFBridge) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Send attempts one physical transmission.
//
// It resolves the shade's RF code, publishes one frame and waits for
// broker acknowledgement until ctx's deadline. Failures of any kind come
// back as an unsuccessful Result; nothing escapes this boundary, including
// panics from a misbehaving collaborator.
func (b *RFBridge) Send(ctx context.Context, shadeID int, action catalog.Action) (result dispatch.Result) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("transmitter panic recovered", "shade_id", shadeID, "panic", r)
			result = dispatch.Result{Success: false, Message: fmt.Sprintf("panic: %v", r)}
		}
	}()

	shade, err := b.shades.GetShade(ctx, shadeID)
	if err != nil {
		return dispatch.Result{Success: false, Message: fmt.Sprintf("resolving shade: %v", err)}
	}
	code, err := shade.CodeFor(action)
	if err != nil {
		return dispatch.Result{Success: false, Message: err.Error()}
	}

	payload, err := json.Marshal(frame{
		ShadeID:  shade.ID,
		RemoteID: shade.RemoteID,
		Channel:  shade.Channel,
		Action:   string(action),
		Code:     code,
		SentAt:   time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return dispatch.Result{Success: false, Message: fmt.Sprintf("encoding frame: %v", err)}
	}

	wait := defaultPublishWait
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	if wait <= 0 {
		return dispatch.Result{Success: false, Message: "deadline already expired"}
	}

	topic := b.topics.TransmitFrame(shadeID)
	if err := b.publisher.PublishTimeout(topic, payload, commandQoS, false, wait); err != nil {
		b.logger.Warn("transmit publish failed", "shade_id", shadeID, "action", action, "error", err)
		return dispatch.Result{Success: false, Message: err.Error()}
	}

	b.logger.Debug("frame published", "shade_id", shadeID, "action", action, "code", code)
	return dispatch.Result{Success: true, Message: "published"}
}
