package models

import (
	"fmt"
	"time"
)

// TraceTrigger records why a path trace was run.
type TraceTrigger string

const (
	TriggerStateChange TraceTrigger = "state_change"
	TriggerPeriodic    TraceTrigger = "periodic"
	TriggerManual      TraceTrigger = "manual"
)

// ParseTraceTrigger converts a stored trigger string back to a TraceTrigger.
func ParseTraceTrigger(s string) (TraceTrigger, error) {
	switch TraceTrigger(s) {
	case TriggerStateChange, TriggerPeriodic, TriggerManual:
		return TraceTrigger(s), nil
	}
	return "", fmt.Errorf("unknown trace trigger %q", s)
}

// HopResult is a single hop in a path trace. A timed-out hop has no
// address and no round-trip time.
type HopResult struct {
	Number  int      `json:"number"`
	Address string   `json:"address,omitempty"`
	RTTMS   *float64 `json:"rtt_ms,omitempty"`
	Timeout bool     `json:"timeout"`
}

// TraceSnapshot is one complete path-trace run. Immutable once produced.
type TraceSnapshot struct {
	Target    string       `json:"target"`
	Timestamp time.Time    `json:"timestamp"`
	Trigger   TraceTrigger `json:"trigger"`
	Hops      []HopResult  `json:"hops"`
	// Reached is true when the final hop responded and matches the target.
	Reached bool `json:"reached"`
}

// Culprit identifies the last hop that responded before the path went
// silent. The hop after it is the presumed failure location.
type Culprit struct {
	Hop     int    `json:"hop"`
	Address string `json:"address"`
}

// HopLabel gives the conventional meaning of a hop position on a
// residential path. Presentation only.
func HopLabel(hop int) string {
	switch hop {
	case 1:
		return "Gateway"
	case 2:
		return "ISP Modem"
	case 3:
		return "ISP Router"
	default:
		return "ISP Backbone"
	}
}
