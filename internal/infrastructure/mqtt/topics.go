package mqtt

import "fmt"

// Topic prefixes for the shadecore MQTT namespace.
//
// The RF bridge subscribes to transmit frames; dashboards subscribe to task
// events. All topics live under a single "shadecore" root so broker ACLs can
// scope access with one prefix rule.
const (
	// TopicPrefix is the root of all shadecore topics.
	TopicPrefix = "shadecore"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "shadecore/system"
)

// Topics provides builders for shadecore MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	frameTopic := topics.TransmitFrame(14)
//	// Returns: "shadecore/transmit/14"
type Topics struct{}

// TransmitFrame returns the topic the RF bridge listens on for command
// frames addressed to a shade.
//
// Example: shadecore/transmit/14
func (Topics) TransmitFrame(shadeID int) string {
	return fmt.Sprintf("%s/transmit/%d", TopicPrefix, shadeID)
}

// TaskEvent returns the topic for task lifecycle events.
//
// Example: shadecore/task/event/task.cancelled
func (Topics) TaskEvent(eventType string) string {
	return fmt.Sprintf("%s/task/event/%s", TopicPrefix, eventType)
}

// SceneActivated returns the topic for scene activation events.
//
// Example: shadecore/scene/good-night/activated
func (Topics) SceneActivated(sceneName string) string {
	return fmt.Sprintf("%s/scene/%s/activated", TopicPrefix, sceneName)
}

// SystemStatus returns the system status topic (online/offline, LWT).
//
// Example: shadecore/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllTransmitFrames returns a pattern matching every transmit frame.
//
// Pattern: shadecore/transmit/+
func (Topics) AllTransmitFrames() string {
	return fmt.Sprintf("%s/transmit/+", TopicPrefix)
}

// AllTaskEvents returns a pattern matching all task lifecycle events.
//
// Pattern: shadecore/task/event/+
func (Topics) AllTaskEvents() string {
	return fmt.Sprintf("%s/task/event/+", TopicPrefix)
}

// AllTopics returns a pattern matching all shadecore topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: shadecore/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
