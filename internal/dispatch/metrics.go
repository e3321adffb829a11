package dispatch

// Snapshot is a read-only aggregation of registry and reaper state, served
// by the health and metrics endpoints. Producing one never mutates the
// registry.
type Snapshot struct {
	ActiveCount         int    `json:"active_count"`
	ActiveByTargetCount int    `json:"active_by_target_count"`
	CancelledCount      int    `json:"cancelled_count"`
	ZombieWarningCount  int    `json:"zombie_warning_count"`
	ZombiesDetected     uint64 `json:"zombies_detected"`
	ZombiesCleaned      uint64 `json:"zombies_cleaned"`
	TimeoutKills        uint64 `json:"timeout_kills"`
	ZombiesToday        uint64 `json:"zombies_today"`
	LastResetDate       string `json:"last_reset_date"`
}
