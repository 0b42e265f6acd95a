//go:build !linux

// SPDX-License-Identifier: Apache-2.0

package sendpath

import "net"

// sendWithControlMessage on non-Linux platforms degrades to an ordinary
// send, per spec: "other platforms degrade gracefully to unoptioned sends."
func sendWithControlMessage(conn net.PacketConn, dest net.Addr, payload []byte, _ SendOptions) error {
	_, err := conn.WriteTo(payload, dest)
	return err
}
