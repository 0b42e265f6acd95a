// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaddingSizeSeparatesConsecutiveTTLsByAtLeast50Bytes(t *testing.T) {
	hash := connHash("conn-a")
	for ttl := 1; ttl < MaxTTL; ttl++ {
		diff := paddingSize(ttl+1, hash) - paddingSize(ttl, hash)
		assert.Equal(t, ttlSizeStepBytes, diff)
	}
}

func TestConnHashIsStableAndBounded(t *testing.T) {
	h1 := connHash("conn-xyz")
	h2 := connHash("conn-xyz")
	assert.Equal(t, h1, h2)
	assert.GreaterOrEqual(t, h1, 0)
	assert.Less(t, h1, 10)
}

func TestBuildProbePadsToTargetSize(t *testing.T) {
	raw := buildProbe(1, "conn-a", 4, 400)
	assert.Equal(t, 400, len(raw))
}

func TestDifferentConnectionsGetDifferentPaddingOffsets(t *testing.T) {
	a := connHash("conn-a")
	b := connHash("conn-completely-different")
	if a == b {
		t.Skip("hash collision for these two identifiers, not a correctness failure")
	}
	assert.NotEqual(t, paddingSize(5, a), paddingSize(5, b))
}
