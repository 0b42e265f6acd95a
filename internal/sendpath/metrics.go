// SPDX-License-Identifier: Apache-2.0

package sendpath

import "github.com/prometheus/client_golang/prometheus"

// Stats counts sends by layer and by whether options were honored or
// dropped in favor of an unoptioned fallback. Every stateful component in
// this codebase exposes its own collectors rather than relying on a global
// registry, mirroring the teacher's per-check GetMetricCollectors pattern.
type Stats struct {
	sent     *prometheus.CounterVec
	fallback *prometheus.CounterVec
}

// NewStats builds a fresh, unregistered set of collectors.
func NewStats() *Stats {
	return &Stats{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pathcast_sendpath_packets_total",
			Help: "Packets handed to the option-carrying send path, by layer.",
		}, []string{"layer"}),
		fallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pathcast_sendpath_fallback_total",
			Help: "Packets for which a layer lacked a send_with_options override and fell back to an ordinary send.",
		}, []string{"layer"}),
	}
}

// Collectors returns the collectors to register on the admin API's registry.
func (s *Stats) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.sent, s.fallback}
}

func (s *Stats) observeSend(layer string) {
	if s == nil {
		return
	}
	s.sent.WithLabelValues(layer).Inc()
}

func (s *Stats) observeFallback(layer string) {
	if s == nil {
		return
	}
	s.fallback.WithLabelValues(layer).Inc()
}
