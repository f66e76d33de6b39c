// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package dockerprobe

import (
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/siemens/dockerprobe/derive"
)

// Snapshot is the outcome of a single probe: the metric samples derived from
// the engine's answers, together with the probe's duration and the number of
// failed engine queries. A Snapshot is never modified after its probe
// completed.
type Snapshot struct {
	ID         uuid.UUID           // identifies the probe in logs.
	Metrics    []prometheus.Metric // immutable const metrics.
	Duration   time.Duration       // from start of enumeration to end of derivation.
	Failures   int                 // failed engine queries in this probe.
	Containers int                 // successfully queried containers.
}

var _ prometheus.Collector = (*Snapshot)(nil)

// Describe sends the descriptors of the complete metric catalog, even if a
// snapshot only carries some of the families.
func (s *Snapshot) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range derive.Descs() {
		ch <- desc
	}
}

// Collect sends the snapshot's metrics.
func (s *Snapshot) Collect(ch chan<- prometheus.Metric) {
	for _, m := range s.Metrics {
		ch <- m
	}
}
