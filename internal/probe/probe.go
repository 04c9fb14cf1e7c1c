// Package probe issues reachability probes and path traces by shelling
// out to the system ping and traceroute binaries, and schedules probe
// rounds across the configured targets.
package probe

import (
	"context"

	"netwatch/internal/models"
)

// PingResult is the outcome of one probe attempt. Unreachability is a
// normal result, not an error; Error describes why the probe failed.
type PingResult struct {
	Success   bool
	LatencyMS *float64
	Error     string
}

// Pinger runs a single round-trip reachability probe.
type Pinger interface {
	Ping(ctx context.Context, address string) PingResult
}

// Tracer runs a single path trace toward an address.
type Tracer interface {
	Trace(ctx context.Context, address string, trigger models.TraceTrigger) models.TraceSnapshot
}
