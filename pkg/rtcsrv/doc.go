// SPDX-License-Identifier: Apache-2.0

// Package rtcsrv owns the real pion/webrtc peer-connection/data-channel
// skeleton the rest of the core plugs into (spec §4.4 Contract "Creates the
// four data channels on peer connection establishment"). It is the minimal
// real WebRTC harness: the measurement logic itself never touches pion
// directly, since spec §1 treats the SCTP/DTLS/ICE implementations as
// external collaborators exposed only via internal/sendpath's hooks.
//
// One shared UDP socket backs every peer connection (spec §5 "the
// underlying UDP socket is shared across all sessions"), multiplexed by
// pion's ice.UDPMuxDefault. The same socket is handed to internal/sendpath
// as the bottom of each session's option-carrying send chain, so an
// option-carrying probe leaves the kernel on the exact 5-tuple the
// signaling-negotiated peer connection is using, letting the ICMP listener
// correlate replies back to it.
package rtcsrv
