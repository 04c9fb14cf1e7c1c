package probe

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ExecPinger probes targets with the system ping binary: one packet,
// numeric output, bounded wait.
type ExecPinger struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewExecPinger creates a pinger with the given per-probe timeout.
func NewExecPinger(timeout time.Duration, logger zerolog.Logger) *ExecPinger {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ExecPinger{timeout: timeout, logger: logger}
}

// Ping runs one probe. An unreachable target yields Success=false; a
// failure to invoke ping at all is folded into the same shape but logged
// separately so operators can tell the two apart.
func (p *ExecPinger) Ping(ctx context.Context, address string) PingResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	waitSecs := int(p.timeout / time.Second)
	if waitSecs < 1 {
		waitSecs = 1
	}

	cmd := exec.CommandContext(ctx, "ping", "-n", "-c", "1", "-W", strconv.Itoa(waitSecs), address)
	out, err := cmd.Output()
	stdout := string(out)

	if err == nil {
		res := PingResult{Success: true}
		if latency, ok := parseLatency(stdout); ok {
			res.LatencyMS = &latency
		}
		return res
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return PingResult{Error: "request timed out"}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ping ran but the target did not answer
		return PingResult{Error: parsePingError(stdout, string(exitErr.Stderr))}
	}

	// the primitive itself could not be invoked
	p.logger.Error().Err(err).Str("target", address).Msg("failed to execute ping")
	return PingResult{Error: "probe execution failed: " + err.Error()}
}

// parseLatency extracts the round-trip time from ping output, looking
// for the "time=14.123 ms" token.
func parseLatency(output string) (float64, bool) {
	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, "time=")
		if idx < 0 {
			continue
		}
		rest := line[idx+len("time="):]
		end := strings.IndexAny(rest, " m")
		if end < 0 {
			end = len(rest)
		}
		if latency, err := strconv.ParseFloat(rest[:end], 64); err == nil {
			return latency, true
		}
	}
	return 0, false
}

// parsePingError maps ping output to a short operator-facing message.
func parsePingError(stdout, stderr string) string {
	switch {
	case strings.Contains(stdout, "100% packet loss"),
		strings.Contains(stdout, "100.0% packet loss"):
		return "request timeout"
	case strings.Contains(stdout, "No route to host"),
		strings.Contains(stderr, "No route to host"):
		return "no route to host"
	case strings.Contains(stdout, "Network is unreachable"),
		strings.Contains(stderr, "Network is unreachable"):
		return "network unreachable"
	case strings.Contains(stderr, "Name or service not known"),
		strings.Contains(stderr, "cannot resolve"):
		return "dns resolution failed"
	}
	if stderr != "" {
		if line, _, _ := strings.Cut(strings.TrimSpace(stderr), "\n"); line != "" {
			return line
		}
	}
	return "ping failed"
}
