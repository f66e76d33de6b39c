// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

/*
Package exposition renders probe snapshots in the Prometheus text exposition
format and serves them via HTTP.

Rendering always goes through a fresh pedantic registry, so metric families
and samples come out sorted, and inconsistent samples (such as duplicate label
sets of containers sharing the same name) get dropped instead of failing the
whole exposition.
*/
package exposition

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/siemens/dockerprobe"

	log "github.com/sirupsen/logrus"
)

// ContentType is the content type of the rendered text exposition.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

// Render writes the metrics of the specified snapshot together with the
// metrics of any additional (lifetime) collectors in text exposition format.
// Samples that fail the consistency checks are dropped and logged, while the
// remaining samples are still rendered. Render only fails if writing fails or
// the collectors cannot be registered together.
func Render(w io.Writer, snap *dockerprobe.Snapshot, lifetime ...prometheus.Collector) error {
	reg := prometheus.NewPedanticRegistry()
	if snap != nil {
		if err := reg.Register(snap); err != nil {
			return fmt.Errorf("cannot register snapshot: %w", err)
		}
	}
	for _, c := range lifetime {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("cannot register lifetime collector: %w", err)
		}
	}
	families, err := reg.Gather()
	if err != nil {
		if snap != nil {
			log.Warnf("probe %s: dropping inconsistent samples: %s", snap.ID, err.Error())
		} else {
			log.Warnf("dropping inconsistent samples: %s", err.Error())
		}
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return fmt.Errorf("cannot render metric family %s: %w", family.GetName(), err)
		}
	}
	return nil
}
