// Package mqtt provides MQTT client connectivity for shadecore.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// shadecore uses MQTT as its outward bus: the RF bridge that physically keys
// the transmitter listens on the command frame topic, and dashboards consume
// task lifecycle events.
//
//	shadecore ↔ MQTT Broker ↔ RF bridge / dashboards
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.TransmitFrame(14)
//	client.Publish(topic, []byte(`{"action":"down"}`), 1, false)
package mqtt
