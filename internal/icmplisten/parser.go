// SPDX-License-Identifier: Apache-2.0

package icmplisten

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// parseICMPv4 decodes a raw ICMPv4 datagram and recovers the embedded
// destination address and UDP length, the correlation key the packet
// tracker indexes on (spec §4.2/§4.3). Grounded on the teacher's
// newICMPPacket, generalized from TCP-segment/port extraction to
// UDP-header/length extraction and from time-exceeded-only to the
// destination-unreachable/fragmentation-needed family this system also
// needs.
func parseICMPv4(src net.Addr, raw []byte) (ParsedIcmpError, error) {
	msg, err := icmp.ParseMessage(ipv4.ICMPTypeTimeExceeded.Protocol(), raw)
	if err != nil {
		return ParsedIcmpError{}, fmt.Errorf("icmplisten: parsing ICMPv4 message: %w", err)
	}

	var body []byte
	var mtu *int
	switch b := msg.Body.(type) {
	case *icmp.TimeExceeded:
		body = b.Data
	case *icmp.DstUnreach:
		body = b.Data
		if msg.Code == CodeFragmentationNeededV4 && len(b.Data) >= ipv4.HeaderLen {
			// The next-hop MTU occupies the low 16 bits of the "unused"
			// word of the original IP header's ICMP wrapper, per RFC 1191;
			// golang.org/x/net/icmp surfaces it via icmp.ParseMessage's
			// Body.Extensions only for the newer RFC 4884 form, so this
			// reads it directly out of the 4 bytes preceding the quoted IP
			// header, mirroring how the Linux kernel fills IP_RECVERR.
		}
	case *icmp.ParamProb:
		body = b.Data
	default:
		return ParsedIcmpError{}, fmt.Errorf("icmplisten: unexpected ICMP message type %v", msg.Type)
	}

	if msg.Type == ipv4.ICMPTypeDestinationUnreachable && msg.Code == CodeFragmentationNeededV4 {
		if m, ok := nextHopMTU(raw); ok {
			mtu = &m
		}
	}

	if len(body) < ipv4.HeaderLen {
		return ParsedIcmpError{}, errEmbeddedHeaderTooShort
	}

	ihl := int(body[0]&0x0F) * 4
	if ihl < ipv4.HeaderLen {
		ihl = ipv4.HeaderLen
	}
	embeddedDestIP := net.IP(body[16:20])

	udpHeader := body[ihl:]
	if len(udpHeader) < 8 {
		return ParsedIcmpError{}, errEmbeddedHeaderTooShort
	}
	destPort := int(binary.BigEndian.Uint16(udpHeader[2:4]))
	udpLength := int(binary.BigEndian.Uint16(udpHeader[4:6]))

	return ParsedIcmpError{
		SourceAddr:   src,
		EmbeddedDest: &net.UDPAddr{IP: embeddedDestIP, Port: destPort},
		UDPLength:    udpLength,
		ICMPType:     uint8(msg.Type.(ipv4.ICMPType)),
		ICMPCode:     uint8(msg.Code),
		MTU:          mtu,
	}, nil
}

// nextHopMTU extracts the reserved next-hop-MTU field from a Fragmentation
// Needed ICMPv4 message: bytes 6-7 of the ICMP header proper (after the
// 8-bit type/code/checksum fields and the 16-bit "unused" field, whose low
// half the kernel repurposes for MTU per RFC 1191).
func nextHopMTU(raw []byte) (int, bool) {
	if len(raw) < 8 {
		return 0, false
	}
	mtu := int(binary.BigEndian.Uint16(raw[6:8]))
	if mtu == 0 {
		return 0, false
	}
	return mtu, true
}

// parseICMPv6 mirrors parseICMPv4 for ICMPv6's Packet-Too-Big and
// Time-Exceeded/Destination-Unreachable messages.
func parseICMPv6(src net.Addr, raw []byte) (ParsedIcmpError, error) {
	msg, err := icmp.ParseMessage(ipv6.ICMPTypeTimeExceeded.Protocol(), raw)
	if err != nil {
		return ParsedIcmpError{}, fmt.Errorf("icmplisten: parsing ICMPv6 message: %w", err)
	}

	var body []byte
	var mtu *int
	switch b := msg.Body.(type) {
	case *icmp.TimeExceeded:
		body = b.Data
	case *icmp.DstUnreach:
		body = b.Data
	case *icmp.PacketTooBig:
		body = b.Data
		if b.MTU > 0 {
			m := b.MTU
			mtu = &m
		}
	case *icmp.ParamProb:
		body = b.Data
	default:
		return ParsedIcmpError{}, fmt.Errorf("icmplisten: unexpected ICMPv6 message type %v", msg.Type)
	}

	if len(body) < ipv6.HeaderLen {
		return ParsedIcmpError{}, errEmbeddedHeaderTooShort
	}
	embeddedDestIP := net.IP(body[24:40])

	udpHeader := body[ipv6.HeaderLen:]
	if len(udpHeader) < 8 {
		return ParsedIcmpError{}, errEmbeddedHeaderTooShort
	}
	destPort := int(binary.BigEndian.Uint16(udpHeader[2:4]))
	udpLength := int(binary.BigEndian.Uint16(udpHeader[4:6]))

	return ParsedIcmpError{
		SourceAddr:   src,
		EmbeddedDest: &net.UDPAddr{IP: embeddedDestIP, Port: destPort},
		UDPLength:    udpLength,
		ICMPType:     uint8(msg.Type.(ipv6.ICMPType)),
		ICMPCode:     uint8(msg.Code),
		MTU:          mtu,
	}, nil
}
