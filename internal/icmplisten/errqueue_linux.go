//go:build linux

// SPDX-License-Identifier: Apache-2.0

package icmplisten

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// errQueueListener is the non-privileged fallback: it reads ICMP errors off
// a UDP socket's own kernel error queue (IP_RECVERR/IPV6_RECVERR), which
// requires no CAP_NET_RAW. Grounded directly on the teacher's
// errQueueListener in internal/traceroute/icmp_nonroot.go, generalized from
// "extract one destination port" to "extract the full (dest, udp_length)
// correlation key" this system's tracker needs.
type errQueueListener struct {
	rawConn syscall.RawConn
	conn    net.PacketConn
	oobBuf  []byte
	dataBuf []byte
}

const (
	oobBufSize  = 512
	dataBufSize = 128
)

// NewErrQueueListener wraps the shared UDP socket, which must have
// IP_RECVERR (and IPV6_RECVERR for v6) enabled by the caller at socket
// construction time.
func NewErrQueueListener(conn net.PacketConn) (Listener, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("icmplisten: connection does not implement syscall.Conn: %T", conn)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("icmplisten: obtaining raw conn: %w", err)
	}
	return &errQueueListener{
		conn:    conn,
		rawConn: rc,
		oobBuf:  make([]byte, oobBufSize),
		dataBuf: make([]byte, dataBufSize),
	}, nil
}

func (l *errQueueListener) Read(ctx context.Context) (ParsedIcmpError, error) {
	for {
		select {
		case <-ctx.Done():
			return ParsedIcmpError{}, ctx.Err()
		default:
		}

		parsed, err := l.recvOnce()
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return ParsedIcmpError{}, err
		}
		return parsed, nil
	}
}

func (l *errQueueListener) recvOnce() (ParsedIcmpError, error) {
	var n, oobn int
	var recvErr error
	err := l.rawConn.Read(func(fd uintptr) bool {
		n, oobn, _, _, recvErr = unix.Recvmsg(int(fd), l.dataBuf, l.oobBuf, unix.MSG_ERRQUEUE)
		return !errors.Is(recvErr, unix.EAGAIN)
	})
	if err != nil {
		return ParsedIcmpError{}, fmt.Errorf("icmplisten: raw read: %w", err)
	}
	if recvErr != nil {
		return ParsedIcmpError{}, recvErr
	}
	if n < 8 {
		return ParsedIcmpError{}, errEmbeddedHeaderTooShort
	}

	ee, ok := parseSockExtendedErr(l.oobBuf[:oobn])
	if !ok {
		return ParsedIcmpError{}, errors.New("icmplisten: no IP_RECVERR control message found")
	}

	data := l.dataBuf[:n]
	ihl := int(data[0]&0x0F) * 4
	if ihl < 20 || len(data) < ihl+8 {
		return ParsedIcmpError{}, errEmbeddedHeaderTooShort
	}
	destIP := net.IP(append([]byte(nil), data[16:20]...))
	destPort := int(binary.BigEndian.Uint16(data[ihl+2 : ihl+4]))
	udpLength := int(binary.BigEndian.Uint16(data[ihl+4 : ihl+6]))

	var mtu *int
	if ee.Type == TypeDestUnreachableV4 && ee.Code == CodeFragmentationNeededV4 && ee.Info > 0 {
		m := int(ee.Info)
		mtu = &m
	}

	return ParsedIcmpError{
		SourceAddr:   sockaddrToAddr(ee),
		EmbeddedDest: &net.UDPAddr{IP: destIP, Port: destPort},
		UDPLength:    udpLength,
		ICMPType:     ee.Type,
		ICMPCode:     ee.Code,
		MTU:          mtu,
		ReceivedAt:   time.Now(),
	}, nil
}

func (l *errQueueListener) Close() error {
	return l.conn.Close()
}

const minExtendedErrSize = 16

// parseSockExtendedErr decodes the first SOL_IP/IP_RECVERR (or
// SOL_IPV6/IPV6_RECVERR) control message in a cmsg buffer.
func parseSockExtendedErr(oob []byte) (unix.SockExtendedErr, bool) {
	cms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return unix.SockExtendedErr{}, false
	}
	for _, cm := range cms {
		isIPv4 := cm.Header.Level == unix.SOL_IP && cm.Header.Type == unix.IP_RECVERR
		isIPv6 := cm.Header.Level == unix.SOL_IPV6 && cm.Header.Type == unix.IPV6_RECVERR
		if !isIPv4 && !isIPv6 {
			continue
		}
		if len(cm.Data) < minExtendedErrSize {
			continue
		}
		return unix.SockExtendedErr{
			Errno:  binary.LittleEndian.Uint32(cm.Data[0:4]),
			Origin: cm.Data[4],
			Type:   cm.Data[5],
			Code:   cm.Data[6],
			Info:   binary.LittleEndian.Uint32(cm.Data[8:12]),
			Data:   binary.LittleEndian.Uint32(cm.Data[12:16]),
		}, true
	}
	return unix.SockExtendedErr{}, false
}

// sockaddrToAddr is a minimal stand-in: the kernel attaches the offending
// router's address separately (SO_EE_OFFENDER, a trailing sockaddr in the
// same cmsg) which this minimal decoder does not unpack; callers needing
// the router hop address should prefer the raw-socket listener, which
// carries it directly as the packet's source address.
func sockaddrToAddr(_ unix.SockExtendedErr) net.Addr {
	return nil
}
