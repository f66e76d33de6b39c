// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package dockerprobe

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/siemens/dockerprobe/derive"
	"github.com/siemens/dockerprobe/engine"
	"github.com/siemens/dockerprobe/fanout"

	log "github.com/sirupsen/logrus"
)

// DefaultQueryTimeout is the maximum duration of an individual engine query,
// unless specified otherwise using [WithQueryTimeout].
const DefaultQueryTimeout = 15 * time.Second

// DefaultBuckets are the upper bounds of the probe duration histogram buckets:
// 1, 2, 4, ..., 64 seconds.
var DefaultBuckets = prometheus.ExponentialBuckets(1, 2, 7)

// Engine is what a Prober needs to query from a container engine.
// [engine.Client] implements it.
type Engine interface {
	Containers(ctx context.Context) ([]engine.ContainerRef, error)
	ContainerStats(ctx context.Context, ref engine.ContainerRef) (engine.ContainerRecord, error)
	Images(ctx context.Context) ([]engine.ImageRecord, error)
	Volumes(ctx context.Context) ([]engine.VolumeRecord, error)
}

var _ Engine = (*engine.Client)(nil)

// Prober probes a container engine for metrics. Except for the probe duration
// histogram and the failure counter a Prober keeps no state between probes.
type Prober struct {
	engine     Engine
	numworkers int           // max number of parallel container queries.
	pool       *fanout.Pool  // bounded pool shared by all probes.
	timeout    time.Duration // per engine query.
	images     bool          // probe images?
	volumes    bool          // probe volumes?
	buckets    []float64     // duration histogram bucket upper bounds.
	duration   prometheus.Histogram
	failures   prometheus.Counter
}

// New returns a Prober for the specified engine. By default, only container
// metrics get probed; use [WithImages] and [WithVolumes] to additionally probe
// images and volumes.
func New(eng Engine, opts ...NewOption) *Prober {
	p := &Prober{
		engine: eng,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.timeout <= 0 {
		p.timeout = DefaultQueryTimeout
	}
	if len(p.buckets) == 0 {
		p.buckets = DefaultBuckets
	}
	p.pool = fanout.New(p.numworkers)
	p.duration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "docker_probe_duration_seconds",
		Help:    "How long it takes to query Docker for the complete data set. Includes failed requests.",
		Buckets: p.buckets,
	})
	p.failures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docker_probe_failures_total",
		Help: "The number of times any individual Docker query failed (because of a timeout or other reasons).",
	})
	return p
}

// Collectors returns the collectors for the probe duration histogram and the
// failure counter, accumulating over the lifetime of this Prober.
func (p *Prober) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.duration, p.failures}
}

// Probe runs a single probe, returning its snapshot. Engine failures don't
// fail the probe; instead they leave out the affected samples and are counted
// in the snapshot as well as the lifetime failure counter.
//
// Cancelling ctx doesn't abort a probe in progress: only the individual query
// timeouts bound it, so a scraper hanging up never shows up as failures.
func (p *Prober) Probe(ctx context.Context) *Snapshot {
	ctx = context.WithoutCancel(ctx)
	snap := &Snapshot{ID: uuid.New()}
	phase := PhaseIdle
	enter := func(next Phase) {
		log.Debugf("probe %s: %s -> %s", snap.ID, phase, next)
		phase = next
	}

	start := time.Now()
	enter(PhaseEnumerating)
	refs, ok := enumerate(ctx, p, snap.ID, "containers", p.engine.Containers)
	if !ok {
		snap.Failures++
	}
	var images []engine.ImageRecord
	if p.images {
		if images, ok = enumerate(ctx, p, snap.ID, "images", p.engine.Images); !ok {
			snap.Failures++
		}
	}
	var volumes []engine.VolumeRecord
	if p.volumes {
		if volumes, ok = enumerate(ctx, p, snap.ID, "volumes", p.engine.Volumes); !ok {
			snap.Failures++
		}
	}

	enter(PhaseAggregating)
	records, errs := fanout.Gather(ctx, p.pool, refs, p.timeout, p.engine.ContainerStats)
	for _, err := range errs {
		if engine.IsNotFound(err) {
			log.Debugf("probe %s: container vanished: %s", snap.ID, err.Error())
			continue
		}
		log.Warnf("probe %s: %s", snap.ID, err.Error())
	}
	snap.Failures += len(errs)
	snap.Containers = len(records)

	enter(PhaseDeriving)
	metrics := make([]prometheus.Metric, 0,
		len(records)*len(derive.ContainerDescs())+
			len(images)*len(derive.ImageDescs())+
			len(volumes)*len(derive.VolumeDescs()))
	for _, rec := range records {
		metrics = append(metrics, derive.Container(rec)...)
	}
	for _, img := range images {
		metrics = append(metrics, derive.Image(img)...)
	}
	for _, vol := range volumes {
		metrics = append(metrics, derive.Volume(vol)...)
	}
	snap.Metrics = metrics
	snap.Duration = time.Since(start)

	p.duration.Observe(snap.Duration.Seconds())
	p.failures.Add(float64(snap.Failures))
	enter(PhaseDone)
	log.Debugf("probe %s: %d containers, %d samples, %d failures, took %s",
		snap.ID, snap.Containers, len(snap.Metrics), snap.Failures, snap.Duration)
	return snap
}

// enumerate a family of engine objects under the query timeout, returning
// false if the listing failed.
func enumerate[T any](ctx context.Context, p *Prober, id uuid.UUID, family string, list func(context.Context) ([]T, error)) ([]T, bool) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	objs, err := list(ctx)
	if err != nil {
		log.Warnf("probe %s: cannot list %s: %s", id, family, err.Error())
		return nil, false
	}
	log.Debugf("probe %s: listed %d %s", id, len(objs), family)
	return objs, true
}
