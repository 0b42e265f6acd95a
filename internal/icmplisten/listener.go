// SPDX-License-Identifier: Apache-2.0

package icmplisten

import (
	"context"
	"net"
)

// Listener reads ICMP/ICMPv6 errors and yields a parsed correlation key for
// each, or a parse failure that callers must TRACE-log and drop (spec §7).
//
//go:generate go tool moq -out listener_moq.go . Listener
type Listener interface {
	// Read blocks until one ICMP error arrives, ctx is cancelled, or a parse
	// failure occurs; parse failures are never fatal.
	Read(ctx context.Context) (ParsedIcmpError, error)
	Close() error
}

// Matcher is the subset of the packet tracker's surface the listener's
// dispatch loop needs; defined here so this package never imports
// internal/tracker.
type Matcher interface {
	MatchICMP(p ParsedIcmpError) (matched bool)
}

// SessionIndex resolves a destination address to a session so unmatched
// ICMP errors can still count against that session's error threshold (spec
// §4.2 dispatch). Implemented by pkg/session.Manager.
type SessionIndex interface {
	NoteICMPErrorFromPeer(addr net.Addr)
}

// Dispatch runs the listener's receive loop for the lifetime of ctx, offering
// every parsed error to matcher first and, on a miss, to the session index
// so the five-errors-per-second cleanup trigger (spec §4.2) can fire.
func Dispatch(ctx context.Context, l Listener, matcher Matcher, sessions SessionIndex) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		parsed, err := l.Read(ctx)
		if err != nil {
			if isBenign(err) {
				return
			}
			continue
		}

		if !matcher.MatchICMP(parsed) {
			sessions.NoteICMPErrorFromPeer(parsed.EmbeddedDest)
		}
	}
}
