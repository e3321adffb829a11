// Package transmitter adapts the RF bridge into the dispatcher's
// Transmitter interface.
//
// One transmission is one MQTT frame published to the bridge's transmit
// topic. The publish waits for broker acknowledgement within the
// per-transmission timeout; a slow or dead broker surfaces as a failed
// shot, never a hang. Failures are reported through the Result and are
// expected under normal operation; the dispatcher's redundancy covers them.
package transmitter
