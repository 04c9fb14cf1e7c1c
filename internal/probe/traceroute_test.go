package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netwatch/internal/models"
)

const tracerouteReachedOutput = `traceroute to 8.8.8.8 (8.8.8.8), 30 hops max, 60 byte packets
 1  192.168.1.1  1.234 ms
 2  10.20.0.1  8.911 ms
 3  100.64.12.1  12.002 ms
 4  8.8.8.8  14.120 ms
`

const tracerouteBrokenOutput = `traceroute to 8.8.8.8 (8.8.8.8), 30 hops max, 60 byte packets
 1  192.168.1.1  1.102 ms
 2  10.20.0.1  9.450 ms
 3  * * *
 4  * * *
 5  * * *
`

func TestParseTracerouteReached(t *testing.T) {
	hops := parseTracerouteOutput(tracerouteReachedOutput)
	require.Len(t, hops, 4)

	assert.Equal(t, 1, hops[0].Number)
	assert.Equal(t, "192.168.1.1", hops[0].Address)
	require.NotNil(t, hops[0].RTTMS)
	assert.InDelta(t, 1.234, *hops[0].RTTMS, 0.001)
	assert.False(t, hops[0].Timeout)

	assert.Equal(t, "8.8.8.8", hops[3].Address)
	assert.True(t, reachedTarget(hops, "8.8.8.8"))
}

func TestParseTracerouteBrokenPath(t *testing.T) {
	hops := parseTracerouteOutput(tracerouteBrokenOutput)
	require.Len(t, hops, 5)

	assert.False(t, hops[1].Timeout)
	assert.Equal(t, "10.20.0.1", hops[1].Address)

	for _, hop := range hops[2:] {
		assert.True(t, hop.Timeout)
		assert.Empty(t, hop.Address)
	}
	assert.False(t, reachedTarget(hops, "8.8.8.8"))
}

func TestParseHopLine(t *testing.T) {
	hop, ok := parseHopLine("7  142.250.46.128  23.881 ms")
	require.True(t, ok)
	assert.Equal(t, 7, hop.Number)
	assert.Equal(t, "142.250.46.128", hop.Address)
	require.NotNil(t, hop.RTTMS)
	assert.InDelta(t, 23.881, *hop.RTTMS, 0.001)

	hop, ok = parseHopLine("3  * * *")
	require.True(t, ok)
	assert.True(t, hop.Timeout)

	_, ok = parseHopLine("garbage line")
	assert.False(t, ok)

	_, ok = parseHopLine("")
	assert.False(t, ok)
}

func TestReachedTargetEmpty(t *testing.T) {
	assert.False(t, reachedTarget(nil, "8.8.8.8"))
	assert.False(t, reachedTarget([]models.HopResult{{Number: 1, Timeout: true}}, "8.8.8.8"))
}

func TestParseDefaultRoute(t *testing.T) {
	addr, ok := parseDefaultRoute("default via 192.168.1.1 dev eth0 proto dhcp metric 100\n")
	require.True(t, ok)
	assert.Equal(t, "192.168.1.1", addr)

	_, ok = parseDefaultRoute("")
	assert.False(t, ok)

	_, ok = parseDefaultRoute("default dev tun0 scope link\n")
	assert.False(t, ok)
}
