package models

import "time"

// ConnectivityState is the aggregate, system-wide connectivity classification.
type ConnectivityState string

const (
	StateOnline   ConnectivityState = "online"
	StateDegraded ConnectivityState = "degraded"
	StateOffline  ConnectivityState = "offline"
)

// Severity orders states for worst-of aggregation (offline > degraded > online).
func (s ConnectivityState) Severity() int {
	switch s {
	case StateOffline:
		return 2
	case StateDegraded:
		return 1
	default:
		return 0
	}
}

// Target roles are display hints only; probing treats every target the same.
const (
	RoleGateway  = "gateway"
	RoleResolver = "resolver"
)

// Target defines a monitored network endpoint.
type Target struct {
	Name    string `yaml:"name" json:"name"`
	Address string `yaml:"address" json:"address"`
	Role    string `yaml:"role,omitempty" json:"role,omitempty"`
}

// ProbeOutcome captures the result of a single reachability probe.
// The ID is unique per probe so duplicate deliveries can be dropped.
type ProbeOutcome struct {
	ID         string    `json:"id"`
	Target     string    `json:"target"`
	TargetName string    `json:"target_name"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
	LatencyMS  *float64  `json:"latency_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
}
