// SPDX-License-Identifier: Apache-2.0

package rtcsrv

import (
	"net"

	"github.com/pion/webrtc/v4"
)

// resolvePeerAddr reads pc's nominated candidate pair from its ICE stats and
// returns the remote candidate's address (spec §9 Design Notes: resolve
// peer_address on the Connected transition via ICE stats, never lazily on a
// later poll, which was the historical bug this system's data model fixes).
// Returns nil if no nominated pair is found yet, which callers must treat as
// "no destination available" rather than an error.
func resolvePeerAddr(pc *webrtc.PeerConnection) net.Addr {
	report := pc.GetStats()

	var remoteCandidateID string
	for _, stat := range report {
		pair, ok := stat.(webrtc.ICECandidatePairStats)
		if !ok {
			continue
		}
		if pair.Nominated && pair.State == webrtc.StatsICECandidatePairStateSucceeded {
			remoteCandidateID = pair.RemoteCandidateID
			break
		}
	}
	if remoteCandidateID == "" {
		return nil
	}

	stat, ok := report[remoteCandidateID]
	if !ok {
		return nil
	}
	cand, ok := stat.(webrtc.ICECandidateStats)
	if !ok {
		return nil
	}

	return &net.UDPAddr{IP: net.ParseIP(cand.IP), Port: cand.Port}
}
