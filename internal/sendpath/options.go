// SPDX-License-Identifier: Apache-2.0

// Package sendpath implements the option-carrying send path: a chain of
// capability decorators mirroring data channel -> SCTP stream -> SCTP
// association -> DTLS -> ICE -> UDP socket, each able to honor a
// [SendOptions] value or log-and-fall-back to an ordinary send.
package sendpath

// SendOptions is attached to an individual outbound packet. Pointer fields
// are true optionals: a nil pointer means "do not touch this socket option",
// distinct from a zero value.
type SendOptions struct {
	TTL       *uint8
	DFBit     *bool
	TOS       *uint8
	FlowLabel *uint32

	// TrackForMs is how long the packet tracker should retain this probe
	// after send. Zero means "do not track".
	TrackForMs uint32

	// BypassDTLS sends the cleartext payload straight to the underlying
	// connection instead of through encryption.
	BypassDTLS bool

	// BypassSCTPFragmentation forces a single chunk for the whole message
	// regardless of the configured max payload size.
	BypassSCTPFragmentation bool
}

// IsZero reports whether o carries no instructions at all, in which case
// every layer of the chain must behave exactly like an ordinary send.
func (o SendOptions) IsZero() bool {
	return o.TTL == nil && o.DFBit == nil && o.TOS == nil && o.FlowLabel == nil &&
		o.TrackForMs == 0 && !o.BypassDTLS && !o.BypassSCTPFragmentation
}

// U8, U32 and Bool are small helpers for constructing optional fields
// without spelling out a local variable at every call site.
func U8(v uint8) *uint8    { return &v }
func U32(v uint32) *uint32 { return &v }
func Bool(v bool) *bool    { return &v }
