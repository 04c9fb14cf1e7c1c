package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pingSuccessOutput = `PING 8.8.8.8 (8.8.8.8) 56(84) bytes of data.
64 bytes from 8.8.8.8: icmp_seq=1 ttl=117 time=14.2 ms

--- 8.8.8.8 ping statistics ---
1 packets transmitted, 1 received, 0% packet loss, time 0ms
rtt min/avg/max/mdev = 14.235/14.235/14.235/0.000 ms
`

const pingLossOutput = `PING 8.8.8.8 (8.8.8.8) 56(84) bytes of data.

--- 8.8.8.8 ping statistics ---
1 packets transmitted, 0 received, 100% packet loss, time 0ms
`

func TestParseLatency(t *testing.T) {
	latency, ok := parseLatency(pingSuccessOutput)
	require.True(t, ok)
	assert.InDelta(t, 14.2, latency, 0.001)
}

func TestParseLatencyAbsent(t *testing.T) {
	_, ok := parseLatency(pingLossOutput)
	assert.False(t, ok)
}

func TestParsePingError(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		stderr string
		want   string
	}{
		{"packet loss", pingLossOutput, "", "request timeout"},
		{"no route", "", "ping: connect: No route to host", "no route to host"},
		{"network unreachable", "", "ping: connect: Network is unreachable", "network unreachable"},
		{"dns failure", "", "ping: bad.example: Name or service not known", "dns resolution failed"},
		{"unknown stderr", "", "ping: something odd happened", "ping: something odd happened"},
		{"nothing to go on", "", "", "ping failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parsePingError(tt.stdout, tt.stderr))
		})
	}
}
