/*
Package dockerprobe probes a [Docker] engine for the current state and
resource usage of its containers, and optionally its images and volumes,
turning them into Prometheus metric samples.

# Quick Start

That's all that is necessary:

	eng, err := engine.New(engine.DefaultSocket)
	if err != nil { ... }
	prober := dockerprobe.New(eng)
	http.Handle("/metrics", exposition.Handler(prober))

Each [Prober.Probe] is a fresh and independent probe of the engine: there is
no history, no rate calculation, and no caching between probes. The Prober is
safe to be used in concurrent probes.

# Probe Cycle

A single probe passes through the following phases:

  - enumerating: lists the containers and, if enabled, the images and volumes.
  - aggregating: queries each container for its state and resource usage, in
    parallel, bounded by a worker pool that is shared by all probes of the same
    Prober. Each container query is subject to its own timeout.
  - deriving: turns the records into immutable const metrics.

The result is a [Snapshot] of metric samples together with the number of
failed engine queries. A failed listing leaves out the samples of only that
family of metrics, and a failed container query leaves out only the samples
of that particular container. Failures thus degrade a probe, but never fail
it.

# Lifetime Metrics

Additionally, a Prober maintains two metrics over its whole lifetime:

  - docker_probe_duration_seconds: histogram of the probe durations.
  - docker_probe_failures_total: counter of the failed engine queries.

Use [Prober.Collectors] to gather them alongside a snapshot.

[Docker]: https://docker.com
*/
package dockerprobe
