package influxdb

import "errors"

var (
	// ErrNotConnected is returned when an operation requires an active
	// connection but the client is not connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed is returned when the initial ping to the
	// InfluxDB server fails.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when telemetry is disabled in
	// configuration. Callers treat this as a soft skip, not a fault.
	ErrDisabled = errors.New("influxdb: disabled by configuration")
)
