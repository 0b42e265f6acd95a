//go:build !linux

// SPDX-License-Identifier: Apache-2.0

package icmplisten

import (
	"context"
	"net"
)

// NewRawListener is unavailable outside Linux; per spec §1 other platforms
// degrade gracefully to unoptioned sends, and correspondingly have no ICMP
// correlation available.
func NewRawListener(_ context.Context) (Listener, error) {
	return nil, ErrICMPNotAvailable
}

// NewErrQueueListener is likewise Linux-only (IP_RECVERR/MSG_ERRQUEUE).
func NewErrQueueListener(_ net.PacketConn) (Listener, error) {
	return nil, ErrICMPNotAvailable
}
