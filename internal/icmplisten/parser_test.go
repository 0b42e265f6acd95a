// SPDX-License-Identifier: Apache-2.0

package icmplisten

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

func buildTimeExceededV4(t *testing.T, destIP net.IP, destPort, udpLength int) []byte {
	t.Helper()

	ipHeader := make([]byte, ipv4.HeaderLen)
	ipHeader[0] = 0x45 // version 4, IHL 5
	copy(ipHeader[16:20], destIP.To4())

	udpHeader := make([]byte, 8)
	udpHeader[0] = 48
	udpHeader[1] = 57 // arbitrary source port, 12345
	udpHeader[2] = byte(destPort >> 8)
	udpHeader[3] = byte(destPort)
	udpHeader[4] = byte(udpLength >> 8)
	udpHeader[5] = byte(udpLength)

	quoted := append(ipHeader, udpHeader...)

	msg := icmp.Message{
		Type: ipv4.ICMPTypeTimeExceeded,
		Code: 0,
		Body: &icmp.TimeExceeded{Data: quoted},
	}
	raw, err := msg.Marshal(nil)
	require.NoError(t, err)
	return raw
}

func TestParseICMPv4TimeExceeded(t *testing.T) {
	src := &net.UDPAddr{IP: net.ParseIP("198.51.100.1")}
	destIP := net.ParseIP("203.0.113.5")

	raw := buildTimeExceededV4(t, destIP, 5000, 250)

	parsed, err := parseICMPv4(src, raw)
	require.NoError(t, err)
	assert.Equal(t, 250, parsed.UDPLength)
	assert.True(t, parsed.IsTimeExceeded())
	assert.False(t, parsed.IsFragmentationNeeded())

	udpAddr, ok := parsed.EmbeddedDest.(*net.UDPAddr)
	require.True(t, ok)
	assert.Equal(t, 5000, udpAddr.Port)
	assert.True(t, udpAddr.IP.Equal(destIP))
}

func TestParseICMPv4TooShortIsNotFatal(t *testing.T) {
	_, err := parseICMPv4(&net.UDPAddr{}, []byte{0x0b, 0x00, 0x00, 0x00})
	assert.Error(t, err)
}
