package transit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relaymesh/transit/pkg/packet"
)

// S4 — PING/PONG skew.
func TestComputeSkewMatchesLiteralScenario(t *testing.T) {
	elapsed, timeDiff := computeSkew(1000, 1040, 1100)
	assert.Equal(t, int64(100), elapsed)
	assert.Equal(t, int64(10), timeDiff)
}

func TestComputeSkewZeroOffset(t *testing.T) {
	elapsed, timeDiff := computeSkew(1000, 1050, 1100)
	assert.Equal(t, int64(100), elapsed)
	assert.Equal(t, int64(0), timeDiff)
}

func TestSelfEchoAllowedExemptionList(t *testing.T) {
	cases := map[string]bool{
		"EVENT":      true,
		"REQUEST":    true,
		"RESPONSE":   true,
		"DISCOVER":   false,
		"INFO":       false,
		"DISCONNECT": false,
		"HEARTBEAT":  false,
		"PING":       false,
		"PONG":       false,
	}
	for cmd, want := range cases {
		assert.Equal(t, want, selfEchoAllowed(packet.Command(cmd)), cmd)
	}
}
