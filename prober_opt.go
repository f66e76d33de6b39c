// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package dockerprobe

import "time"

// NewOption represents options to New when creating a new prober.
type NewOption func(*Prober)

// WithWorkers sets the maximum number of parallel container queries on the
// same Prober. A maximum number of zero or less is taken as GOMAXPROCS
// instead. Please note that this maximum applies to all concurrent
// [Prober.Probe] calls, and not to individual [Prober.Probe] calls separately.
func WithWorkers(num int) NewOption {
	return func(p *Prober) {
		p.numworkers = num
	}
}

// WithQueryTimeout sets the maximum duration of each individual engine query,
// both when listing and when querying individual containers. A zero or
// negative duration is taken as [DefaultQueryTimeout] instead.
func WithQueryTimeout(d time.Duration) NewOption {
	return func(p *Prober) {
		p.timeout = d
	}
}

// WithImages enables or disables collecting image metrics.
func WithImages(enable bool) NewOption {
	return func(p *Prober) {
		p.images = enable
	}
}

// WithVolumes enables or disables collecting volume metrics.
func WithVolumes(enable bool) NewOption {
	return func(p *Prober) {
		p.volumes = enable
	}
}

// WithBuckets sets the upper bounds of the probe duration histogram buckets,
// in seconds. An empty list is taken as [DefaultBuckets] instead.
func WithBuckets(buckets []float64) NewOption {
	return func(p *Prober) {
		p.buckets = buckets
	}
}
