// SPDX-License-Identifier: Apache-2.0

package sendpath

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	calls []SendOptions
	err   error
}

func (r *recordingSender) SendWithOptions(_ context.Context, _ []byte, opts SendOptions) error {
	r.calls = append(r.calls, opts)
	return r.err
}

func TestChainForwardsOptionsUnchangedWhenBypassing(t *testing.T) {
	bottom := &recordingSender{}
	chain := Build(bottom, NewStats(), 1200)

	opts := SendOptions{
		TTL:                     U8(5),
		DFBit:                   Bool(true),
		BypassDTLS:              true,
		BypassSCTPFragmentation: true,
		TrackForMs:              5000,
	}

	require.NoError(t, chain.SendWithOptions(t.Context(), []byte("hello"), opts))
	require.Len(t, bottom.calls, 1)
	assert.Equal(t, opts, bottom.calls[0])
}

func TestChainFragmentsWhenNotBypassing(t *testing.T) {
	bottom := &recordingSender{}
	chain := Build(bottom, NewStats(), 4)

	payload := []byte("0123456789")
	require.NoError(t, chain.SendWithOptions(t.Context(), payload, SendOptions{}))

	require.Len(t, bottom.calls, 3) // ceil(10/4)
}

func TestChainDropsOptionsWhenDTLSNotBypassed(t *testing.T) {
	bottom := &recordingSender{}
	chain := Build(bottom, NewStats(), 1200)

	opts := SendOptions{TTL: U8(5), BypassSCTPFragmentation: true}
	require.NoError(t, chain.SendWithOptions(t.Context(), []byte("x"), opts))

	require.Len(t, bottom.calls, 1)
	assert.True(t, bottom.calls[0].IsZero(), "options must be dropped, not silently carried, once DTLS is not bypassed")
}

func TestChainRejectsSTUNPayloads(t *testing.T) {
	bottom := &recordingSender{}
	chain := Build(bottom, NewStats(), 1200)

	stun := make([]byte, 20)
	stun[4], stun[5], stun[6], stun[7] = 0x21, 0x12, 0xA4, 0x42

	err := chain.SendWithOptions(t.Context(), stun, SendOptions{BypassDTLS: true, BypassSCTPFragmentation: true})
	require.ErrorIs(t, err, errSTUNOnSendPath)
	require.Empty(t, bottom.calls)
}
