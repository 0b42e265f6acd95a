// SPDX-License-Identifier: Apache-2.0

package icmplisten

import (
	"context"
	"errors"
	"net"

	"github.com/dt-netlab/pathcast/internal/logger"
)

// Open tries the raw-socket listener first and falls back to the
// err-queue listener bound to sharedConn when CAP_NET_RAW is unavailable,
// satisfying spec §4.2's "non-privileged fallback" note and §1's
// degrade-gracefully mandate in the privilege dimension as well as the
// platform one.
func Open(ctx context.Context, sharedConn net.PacketConn) (Listener, error) {
	log := logger.FromContext(ctx)

	raw, err := NewRawListener(ctx)
	if err == nil {
		log.InfoContext(ctx, "icmp listener using raw sockets")
		return raw, nil
	}
	if !errors.Is(err, ErrICMPNotAvailable) {
		return nil, err
	}

	log.WarnContext(ctx, "raw ICMP sockets unavailable, falling back to socket error queue", "error", err)
	eq, err := NewErrQueueListener(sharedConn)
	if err != nil {
		return nil, err
	}
	return eq, nil
}
