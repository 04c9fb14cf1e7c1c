package probe

import (
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"netwatch/internal/models"
)

// DetectGateway resolves the default gateway address from the routing
// table ("ip route show default"). Returns false when no default route
// exists or the tool is unavailable.
func DetectGateway() (string, bool) {
	out, err := exec.Command("ip", "route", "show", "default").Output()
	if err != nil {
		return "", false
	}
	return parseDefaultRoute(string(out))
}

// parseDefaultRoute extracts the next-hop address from output like
// "default via 192.168.1.1 dev eth0 proto dhcp metric 100".
func parseDefaultRoute(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		for i, f := range fields {
			if f == "via" && i+1 < len(fields) {
				return fields[i+1], true
			}
		}
	}
	return "", false
}

// ResolveTargets fills in gateway targets that have no address via route
// table detection. Targets whose gateway cannot be detected are dropped
// with a warning rather than probed with an empty address.
func ResolveTargets(targets []models.Target, logger zerolog.Logger) []models.Target {
	resolved := make([]models.Target, 0, len(targets))
	for _, t := range targets {
		if t.Address == "" && t.Role == models.RoleGateway {
			addr, ok := DetectGateway()
			if !ok {
				logger.Warn().Str("target", t.Name).Msg("could not detect default gateway, dropping target")
				continue
			}
			t.Address = addr
			logger.Info().Str("target", t.Name).Str("address", addr).Msg("detected default gateway")
		}
		if t.Address == "" {
			logger.Warn().Str("target", t.Name).Msg("target has no address, dropping")
			continue
		}
		resolved = append(resolved, t)
	}
	return resolved
}
