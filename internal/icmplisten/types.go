// SPDX-License-Identifier: Apache-2.0

// Package icmplisten captures ICMP and ICMPv6 errors and recovers the
// correlation key of the probe that triggered them: the destination socket
// address and UDP length carried in the 8 bytes of original payload ICMP is
// guaranteed to quote.
package icmplisten

import (
	"net"
	"time"
)

// ICMP types and codes this system cares about (RFC 792 / RFC 4443).
const (
	TypeTimeExceededV4        = 11
	TypeDestUnreachableV4     = 3
	CodeFragmentationNeededV4 = 4

	TypeTimeExceededV6        = 3
	TypeDestUnreachableV6     = 1
	CodeFragmentationNeededV6 = 2 // "Packet Too Big" is its own ICMPv6 type in practice; kept distinct below.
	TypePacketTooBigV6        = 2

	TypeParamProblemV4 = 12
	TypeParamProblemV6 = 4
)

// ParsedIcmpError is the result of successfully decoding one inbound ICMP or
// ICMPv6 datagram whose embedded payload identifies an originating probe.
type ParsedIcmpError struct {
	SourceAddr   net.Addr
	EmbeddedDest net.Addr
	UDPLength    int
	ICMPType     uint8
	ICMPCode     uint8
	// MTU is set only for Fragmentation-Needed / Packet-Too-Big errors,
	// taken from the next-hop-MTU field reserved in the ICMP header.
	MTU         *int
	ReceivedAt  time.Time
}

// IsFragmentationNeeded reports whether this error reports a path MTU
// constraint, the signal the MTU orchestrator listens for.
func (p ParsedIcmpError) IsFragmentationNeeded() bool {
	v4 := p.ICMPType == TypeDestUnreachableV4 && p.ICMPCode == CodeFragmentationNeededV4
	v6 := p.ICMPType == TypePacketTooBigV6
	return v4 || v6
}

// IsTimeExceeded reports whether this error is a TTL-expiry notification,
// the signal the traceroute orchestrator listens for. The type is read
// against the embedded destination's address family, since ICMPv6 Time
// Exceeded and ICMPv4 Destination Unreachable share type number 3.
func (p ParsedIcmpError) IsTimeExceeded() bool {
	if dest, ok := p.EmbeddedDest.(*net.UDPAddr); ok && dest.IP.To4() == nil {
		return p.ICMPType == TypeTimeExceededV6
	}
	return p.ICMPType == TypeTimeExceededV4
}
