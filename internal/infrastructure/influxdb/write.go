package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTransmission records the outcome of one RF transmission attempt.
//
// The write is non-blocking; data is batched and sent asynchronously. The
// dispatch path calls this for every shot, success or failure, so transient
// RF link quality shows up directly in the series.
func (c *Client) WriteTransmission(shadeID int, action string, success bool, latency time.Duration) {
	if !c.IsConnected() {
		return
	}

	okVal := 0.0
	if success {
		okVal = 1.0
	}

	point := write.NewPoint(
		"transmissions",
		map[string]string{
			"shade_id": strconv.Itoa(shadeID),
			"action":   action,
		},
		map[string]interface{}{
			"success":    okVal,
			"latency_ms": float64(latency.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDispatchCounters records a snapshot of dispatcher/reaper counters.
//
// Called on each reaper tick so zombie detection trends are queryable
// alongside transmission outcomes.
func (c *Client) WriteDispatchCounters(active int, zombiesDetected, zombiesCleaned, timeoutKills uint64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"dispatch",
		map[string]string{},
		map[string]interface{}{
			"active_tasks":     active,
			"zombies_detected": float64(zombiesDetected),
			"zombies_cleaned":  float64(zombiesCleaned),
			"timeout_kills":    float64(timeoutKills),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
