// Package influxdb provides time-series telemetry for shadecore.
//
// This package manages:
//   - Connection to InfluxDB v2 with token authentication
//   - Non-blocking, batched writes of transmission outcomes
//   - Periodic dispatch/reaper counter snapshots
//
// Telemetry is strictly optional: when disabled in config, callers receive
// ErrDisabled and run without a sink. Writes never block the dispatch path;
// the underlying WriteAPI batches asynchronously and surfaces errors through
// a callback.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.WriteTransmission(14, "down", true, 12*time.Millisecond)
package influxdb
