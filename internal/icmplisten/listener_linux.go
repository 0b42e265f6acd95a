//go:build linux

// SPDX-License-Identifier: Apache-2.0

package icmplisten

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dt-netlab/pathcast/internal/logger"
	"golang.org/x/net/icmp"
	"golang.org/x/sys/unix"
)

const readBufferSize = 1500

// rawListener captures ICMP and ICMPv6 on two raw sockets. It requires
// CAP_NET_RAW; NewRawListener reports ErrICMPNotAvailable rather than
// failing outright when that capability is missing, so callers can fall
// back to the err-queue listener per spec §1 "other platforms degrade
// gracefully" (extended here to "other privilege levels").
type rawListener struct {
	v4 *icmp.PacketConn
	v6 *icmp.PacketConn

	packets chan rawRead
	done    chan struct{}
}

type rawRead struct {
	src net.Addr
	raw []byte
	v6  bool
}

// NewRawListener opens raw ICMP/ICMPv6 sockets and starts background readers
// feeding a shared channel. Returns ErrICMPNotAvailable (not an error) when
// neither socket can be opened due to missing privileges.
func NewRawListener(ctx context.Context) (Listener, error) {
	v4, errV4 := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	v6, errV6 := icmp.ListenPacket("ip6:ipv6-icmp", "::")

	if v4 == nil && v6 == nil {
		if errors.Is(errV4, unix.EPERM) && errors.Is(errV6, unix.EPERM) {
			return nil, ErrICMPNotAvailable
		}
		return nil, fmt.Errorf("icmplisten: opening raw sockets: v4=%w v6=%w", errV4, errV6)
	}

	l := &rawListener{
		v4:      v4,
		v6:      v6,
		packets: make(chan rawRead, 64),
		done:    make(chan struct{}),
	}

	if v4 != nil {
		go l.readLoop(ctx, v4, false)
	}
	if v6 != nil {
		go l.readLoop(ctx, v6, true)
	}
	return l, nil
}

func (l *rawListener) readLoop(ctx context.Context, conn *icmp.PacketConn, isV6 bool) {
	log := logger.FromContext(ctx)
	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, src, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			log.DebugContext(ctx, "icmp read error", "error", err, "v6", isV6)
			continue
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])

		select {
		case l.packets <- rawRead{src: src, raw: raw, v6: isV6}:
		default:
			log.WarnContext(ctx, "icmp listener packet channel full, dropping")
		}
	}
}

func (l *rawListener) Read(ctx context.Context) (ParsedIcmpError, error) {
	select {
	case <-ctx.Done():
		return ParsedIcmpError{}, ctx.Err()
	case pkt := <-l.packets:
		var parsed ParsedIcmpError
		var err error
		if pkt.v6 {
			parsed, err = parseICMPv6(pkt.src, pkt.raw)
		} else {
			parsed, err = parseICMPv4(pkt.src, pkt.raw)
		}
		if err != nil {
			logger.FromContext(ctx).Log(ctx, traceLevel, "dropping unparseable ICMP datagram", "error", err)
			return ParsedIcmpError{}, err
		}
		parsed.ReceivedAt = time.Now()
		return parsed, nil
	}
}

func (l *rawListener) Close() error {
	close(l.done)
	var errs []error
	if l.v4 != nil {
		errs = append(errs, l.v4.Close())
	}
	if l.v6 != nil {
		errs = append(errs, l.v6.Close())
	}
	return errors.Join(errs...)
}
