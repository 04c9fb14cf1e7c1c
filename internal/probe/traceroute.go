package probe

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"netwatch/internal/models"
)

// ExecTracer runs path traces with the system traceroute binary: numeric
// output, one query per hop, bounded per-hop wait.
type ExecTracer struct {
	timeout time.Duration
	maxHops int
	logger  zerolog.Logger
}

// NewExecTracer creates a tracer with the given per-hop wait and hop limit.
func NewExecTracer(timeout time.Duration, maxHops int, logger zerolog.Logger) *ExecTracer {
	if timeout < time.Second {
		timeout = time.Second
	}
	if maxHops <= 0 {
		maxHops = 30
	}
	return &ExecTracer{timeout: timeout, maxHops: maxHops, logger: logger}
}

// Trace runs one path trace. An execution failure yields a snapshot with
// no hops; an incident proceeds without path evidence rather than failing.
func (t *ExecTracer) Trace(ctx context.Context, address string, trigger models.TraceTrigger) models.TraceSnapshot {
	snapshot := models.TraceSnapshot{
		Target:    address,
		Timestamp: time.Now().UTC(),
		Trigger:   trigger,
	}

	// worst case every hop waits for the full timeout
	overall := t.timeout*time.Duration(t.maxHops) + 10*time.Second
	ctx, cancel := context.WithTimeout(ctx, overall)
	defer cancel()

	waitSecs := int(t.timeout / time.Second)
	cmd := exec.CommandContext(ctx, "traceroute",
		"-n", "-q", "1",
		"-w", strconv.Itoa(waitSecs),
		"-m", strconv.Itoa(t.maxHops),
		address)

	out, err := cmd.Output()
	if err != nil && len(out) == 0 {
		t.logger.Error().Err(err).Str("target", address).Msg("failed to execute traceroute")
		return snapshot
	}

	snapshot.Hops = parseTracerouteOutput(string(out))
	snapshot.Reached = reachedTarget(snapshot.Hops, address)
	return snapshot
}

// parseTracerouteOutput converts traceroute stdout into hop results,
// skipping the header line.
func parseTracerouteOutput(output string) []models.HopResult {
	var hops []models.HopResult
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "traceroute to") {
			continue
		}
		if hop, ok := parseHopLine(line); ok {
			hops = append(hops, hop)
		}
	}
	return hops
}

// parseHopLine parses a single hop line, e.g.
//
//	" 1  192.168.1.1  1.234 ms"
//	" 3  * * *"
func parseHopLine(line string) (models.HopResult, bool) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return models.HopResult{}, false
	}

	number, err := strconv.Atoi(parts[0])
	if err != nil {
		return models.HopResult{}, false
	}

	if parts[1] == "*" {
		return models.HopResult{Number: number, Timeout: true}, true
	}

	hop := models.HopResult{Number: number, Address: parts[1]}
	for i := 2; i < len(parts); i++ {
		if parts[i] == "ms" && i > 2 {
			if rtt, err := strconv.ParseFloat(parts[i-1], 64); err == nil {
				hop.RTTMS = &rtt
				break
			}
		}
	}
	return hop, true
}

// reachedTarget reports whether the final hop responded with the target
// address itself.
func reachedTarget(hops []models.HopResult, target string) bool {
	if len(hops) == 0 {
		return false
	}
	last := hops[len(hops)-1]
	return !last.Timeout && last.Address == target
}
