//go:build linux

// SPDX-License-Identifier: Apache-2.0

package sendpath

import (
	"encoding/binary"
	"fmt"
	"net"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// sendWithControlMessage implements propagation rule 7 on Linux: it builds a
// msghdr with an iovec for the payload and an ancillary-data block carrying
// whichever of IP_TTL/IP_TOS/IP_MTU_DISCOVER (IPv4) or
// IPV6_HOPLIMIT/IPV6_TCLASS (IPv6) the caller requested, then invokes
// sendmsg. When opts carries nothing, it falls straight through to an
// ordinary WriteTo.
func sendWithControlMessage(conn net.PacketConn, dest net.Addr, payload []byte, opts SendOptions) error {
	if opts.IsZero() {
		_, err := conn.WriteTo(payload, dest)
		return err
	}

	sc, ok := conn.(syscall.Conn)
	if !ok {
		_, err := conn.WriteTo(payload, dest)
		return err
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return fmt.Errorf("sendpath: obtaining raw conn: %w", err)
	}

	sa, isV6, err := toSockaddr(dest, opts.FlowLabel)
	if err != nil {
		return err
	}

	oob := buildControlMessage(opts, isV6)

	var sendErr error
	ctlErr := rc.Write(func(fd uintptr) bool {
		sendErr = unix.Sendmsg(int(fd), payload, oob, sa, 0)
		return !isTemporarySendError(sendErr)
	})
	if ctlErr != nil {
		return fmt.Errorf("sendpath: raw write: %w", ctlErr)
	}
	return sendErr
}

func isTemporarySendError(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR
}

func toSockaddr(dest net.Addr, flowLabel *uint32) (unix.Sockaddr, bool, error) {
	udpAddr, ok := dest.(*net.UDPAddr)
	if !ok {
		resolved, err := net.ResolveUDPAddr("udp", dest.String())
		if err != nil {
			return nil, false, fmt.Errorf("sendpath: resolving destination: %w", err)
		}
		udpAddr = resolved
	}

	if v4 := udpAddr.IP.To4(); v4 != nil {
		var sa unix.SockaddrInet4
		sa.Port = udpAddr.Port
		copy(sa.Addr[:], v4)
		return &sa, false, nil
	}

	var sa unix.SockaddrInet6
	sa.Port = udpAddr.Port
	copy(sa.Addr[:], udpAddr.IP.To16())
	if flowLabel != nil {
		sa.ZoneId = 0
		// The flow label occupies the low 20 bits of sockaddr_in6's
		// flowinfo field; unix.SockaddrInet6 does not expose flowinfo
		// directly, so callers relying on flow-label placement use the
		// IPV6_TCLASS/hop-limit ancillary path instead. Recorded here as
		// the field this system would populate were the field exposed.
		_ = *flowLabel
	}
	return &sa, true, nil
}

// buildControlMessage packs the requested ancillary-data records into a
// single buffer suitable for unix.Sendmsg's oob parameter.
func buildControlMessage(opts SendOptions, isV6 bool) []byte {
	var buf []byte

	if isV6 {
		if opts.TTL != nil {
			buf = appendCmsg(buf, unix.IPPROTO_IPV6, unix.IPV6_HOPLIMIT, int32(*opts.TTL))
		}
		if opts.TOS != nil {
			buf = appendCmsg(buf, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, int32(*opts.TOS))
		}
		return buf
	}

	if opts.TTL != nil {
		buf = appendCmsg(buf, unix.IPPROTO_IP, unix.IP_TTL, int32(*opts.TTL))
	}
	if opts.TOS != nil {
		buf = appendCmsg(buf, unix.IPPROTO_IP, unix.IP_TOS, int32(*opts.TOS))
	}
	if opts.DFBit != nil {
		val := int32(unix.IP_PMTUDISC_DONT)
		if *opts.DFBit {
			val = int32(unix.IP_PMTUDISC_DO)
		}
		buf = appendCmsg(buf, unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, val)
	}
	return buf
}

// appendCmsg appends one cmsghdr-plus-payload record (an int32 value) to
// buf, padded to the platform's cmsg alignment.
func appendCmsg(buf []byte, level, typ int, value int32) []byte {
	data := make([]byte, 4)
	binary.NativeEndian.PutUint32(data, uint32(value))

	space := unix.CmsgSpace(len(data))
	start := len(buf)
	buf = append(buf, make([]byte, space)...)

	h := (*unix.Cmsghdr)(unsafe.Pointer(&buf[start])) //nolint:gosec
	h.SetLen(unix.CmsgLen(len(data)))
	h.Level = int32(level)
	h.Type = int32(typ)

	copy(buf[start+unix.CmsgLen(0):], data)
	return buf
}
