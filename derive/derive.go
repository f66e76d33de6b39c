// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

/*
Package derive turns the records queried from a Docker engine into Prometheus
metric samples. It does no I/O and keeps no state: each call returns fresh,
immutable const metrics.

Container and volume samples are labelled "name", image samples "tag". Label
values are never empty: containers without a usable name fall back to their
short ID, and untagged images to their full image ID.
*/
package derive

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/siemens/dockerprobe/engine"
)

// UntaggedImage is what the engine reports as the repository tag of images
// without any tag.
const UntaggedImage = "<none>:<none>"

var (
	containerLabels = []string{"name"}
	imageLabels     = []string{"tag"}
	volumeLabels    = []string{"name"}
)

var (
	ContainerCPUCapacity = prometheus.NewDesc(
		"docker_container_cpu_capacity_total",
		"All potential CPU usage available to a container, in unspecified units, averaged for all logical CPUs usable by the container. Start point of measurement is undefined - only relative values should be used in analytics.",
		containerLabels, nil)
	ContainerCPUUsed = prometheus.NewDesc(
		"docker_container_cpu_used_total",
		"Accumulated CPU usage of a container, in unspecified units, averaged for all logical CPUs usable by the container.",
		containerLabels, nil)
	ContainerMemoryUsed = prometheus.NewDesc(
		"docker_container_memory_used_bytes",
		"Memory usage of a container.",
		containerLabels, nil)
	ContainerNetworkIn = prometheus.NewDesc(
		"docker_container_network_in_bytes",
		"Total bytes received by the container's network interfaces.",
		containerLabels, nil)
	ContainerNetworkOut = prometheus.NewDesc(
		"docker_container_network_out_bytes",
		"Total bytes sent by the container's network interfaces.",
		containerLabels, nil)
	ContainerDiskRead = prometheus.NewDesc(
		"docker_container_disk_read_bytes",
		"Total bytes read from disk by a container.",
		containerLabels, nil)
	ContainerDiskWrite = prometheus.NewDesc(
		"docker_container_disk_write_bytes",
		"Total bytes written to disk by a container.",
		containerLabels, nil)
	ContainerRestartCount = prometheus.NewDesc(
		"docker_container_restart_count",
		"Number of times the runtime has restarted this container without explicit user action, since the container was last started.",
		containerLabels, nil)
	ContainerStartTime = prometheus.NewDesc(
		"docker_container_start_time_seconds",
		"Timestamp indicating when the container was started. Does not get reset by automatic restarts.",
		containerLabels, nil)
	ContainerRunningState = prometheus.NewDesc(
		"docker_container_running_state",
		"Whether the container is running (1), restarting (0.5) or stopped (0).",
		containerLabels, nil)

	ImageContainerCount = prometheus.NewDesc(
		"docker_image_container_count",
		"The number of containers based on an image.",
		imageLabels, nil)
	ImageSize = prometheus.NewDesc(
		"docker_image_size_bytes",
		"The size of on an image in bytes.",
		imageLabels, nil)

	VolumeContainerCount = prometheus.NewDesc(
		"docker_volume_container_count",
		"The number of containers using a volume.",
		volumeLabels, nil)
	VolumeSize = prometheus.NewDesc(
		"docker_volume_size_bytes",
		"Size of a volume in bytes.",
		volumeLabels, nil)
)

// ContainerDescs returns the descriptors of all container metrics.
func ContainerDescs() []*prometheus.Desc {
	return []*prometheus.Desc{
		ContainerCPUCapacity,
		ContainerCPUUsed,
		ContainerMemoryUsed,
		ContainerNetworkIn,
		ContainerNetworkOut,
		ContainerDiskRead,
		ContainerDiskWrite,
		ContainerRestartCount,
		ContainerStartTime,
		ContainerRunningState,
	}
}

// ImageDescs returns the descriptors of all image metrics.
func ImageDescs() []*prometheus.Desc {
	return []*prometheus.Desc{ImageContainerCount, ImageSize}
}

// VolumeDescs returns the descriptors of all volume metrics.
func VolumeDescs() []*prometheus.Desc {
	return []*prometheus.Desc{VolumeContainerCount, VolumeSize}
}

// Descs returns the descriptors of the complete metric catalog.
func Descs() []*prometheus.Desc {
	descs := ContainerDescs()
	descs = append(descs, ImageDescs()...)
	return append(descs, VolumeDescs()...)
}

// RunningState maps a container state onto the running state metric value.
func RunningState(state engine.State) float64 {
	switch state {
	case engine.StateRunning:
		return 1
	case engine.StateRestarting:
		return 0.5
	default:
		return 0
	}
}

// ImageTag returns the label value to use for an image: its first repository
// tag, or its ID if untagged.
func ImageTag(img engine.ImageRecord) string {
	if len(img.RepoTags) > 0 {
		if tag := img.RepoTags[0]; tag != "" && tag != UntaggedImage {
			return tag
		}
	}
	return img.ID
}

// containerName returns a non-empty label value for a container.
func containerName(ref engine.ContainerRef) string {
	if name := strings.TrimSpace(ref.Name); name != "" {
		return name
	}
	if len(ref.ID) > 12 {
		return ref.ID[:12]
	}
	return ref.ID
}

// Container returns one sample for each container metric.
func Container(rec engine.ContainerRecord) []prometheus.Metric {
	name := containerName(rec.ContainerRef)
	return []prometheus.Metric{
		prometheus.MustNewConstMetric(ContainerCPUCapacity, prometheus.CounterValue, float64(rec.CPUCapacity), name),
		prometheus.MustNewConstMetric(ContainerCPUUsed, prometheus.CounterValue, float64(rec.CPUUsed), name),
		prometheus.MustNewConstMetric(ContainerMemoryUsed, prometheus.GaugeValue, float64(rec.MemoryUsed), name),
		prometheus.MustNewConstMetric(ContainerNetworkIn, prometheus.GaugeValue, float64(rec.NetworkIn), name),
		prometheus.MustNewConstMetric(ContainerNetworkOut, prometheus.GaugeValue, float64(rec.NetworkOut), name),
		prometheus.MustNewConstMetric(ContainerDiskRead, prometheus.GaugeValue, float64(rec.DiskRead), name),
		prometheus.MustNewConstMetric(ContainerDiskWrite, prometheus.GaugeValue, float64(rec.DiskWrite), name),
		prometheus.MustNewConstMetric(ContainerRestartCount, prometheus.GaugeValue, float64(rec.RestartCount), name),
		prometheus.MustNewConstMetric(ContainerStartTime, prometheus.GaugeValue, float64(rec.StartedAt), name),
		prometheus.MustNewConstMetric(ContainerRunningState, prometheus.GaugeValue, RunningState(rec.State), name),
	}
}

// Image returns one sample for each image metric.
func Image(rec engine.ImageRecord) []prometheus.Metric {
	tag := ImageTag(rec)
	return []prometheus.Metric{
		prometheus.MustNewConstMetric(ImageContainerCount, prometheus.GaugeValue, float64(rec.Containers), tag),
		prometheus.MustNewConstMetric(ImageSize, prometheus.GaugeValue, float64(rec.Size), tag),
	}
}

// Volume returns one sample for each volume metric.
func Volume(rec engine.VolumeRecord) []prometheus.Metric {
	return []prometheus.Metric{
		prometheus.MustNewConstMetric(VolumeContainerCount, prometheus.GaugeValue, float64(rec.RefCount), rec.Name),
		prometheus.MustNewConstMetric(VolumeSize, prometheus.GaugeValue, float64(rec.Size), rec.Name),
	}
}
