// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/versions"
	"github.com/docker/docker/client"
	"github.com/docker/go-units"
	"golang.org/x/exp/slices"

	log "github.com/sirupsen/logrus"
)

// DefaultSocket is the well-known path of the Docker engine's API socket.
const DefaultSocket = "/var/run/docker.sock"

// MinAPIVersion is the oldest engine API version we know to deliver
// everything we need, including the disk usage report for images and
// volumes.
const MinAPIVersion = "1.25"

// Client talks to a Docker engine via its API socket. Each operation is a
// single request/response exchange without any retries; it's up to callers to
// decide what to make of failures. A Client can be used from multiple
// goroutines and reuses its socket connections.
type Client struct {
	api    client.APIClient
	socket string
	floor  string
}

// New returns a Client for the engine API reachable at the specified unix
// domain socket path (an optional "unix://" scheme is accepted). New doesn't
// contact the engine yet; use [Client.Check] to make sure that the engine is
// reachable.
func New(socket string, opts ...NewOption) (*Client, error) {
	c := &Client{
		socket: strings.TrimPrefix(socket, "unix://"),
		floor:  MinAPIVersion,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.api != nil {
		return c, nil
	}
	if c.socket == "" {
		return nil, errors.New("no engine API socket path specified")
	}
	api, err := client.NewClientWithOpts(
		client.WithHost("unix://"+c.socket),
		client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("cannot create engine client for %s: %w", c.socket, err)
	}
	c.api = api
	return c, nil
}

// Close releases the connections of this client.
func (c *Client) Close() error {
	return c.api.Close()
}

// Socket returns the API socket path.
func (c *Client) Socket() string { return c.socket }

// Check pings the engine and ensures that it speaks at least the minimum
// required API version.
func (c *Client) Check(ctx context.Context) error {
	const op, endpoint = "ping", "/_ping"
	ping, err := c.api.Ping(ctx)
	if err != nil {
		return classify(ctx, op, endpoint, err)
	}
	if ping.APIVersion == "" {
		return &DecodeError{Op: op, Endpoint: endpoint,
			Err: errors.New("engine did not report its API version")}
	}
	if versions.LessThan(ping.APIVersion, c.floor) {
		return fmt.Errorf("engine at %s speaks API version %s, but at least %s is required",
			c.socket, ping.APIVersion, c.floor)
	}
	log.Debugf("engine at %s speaks API version %s", c.socket, ping.APIVersion)
	return nil
}

// Containers lists all containers, regardless of their state.
func (c *Client) Containers(ctx context.Context) ([]ContainerRef, error) {
	const op, endpoint = "list containers", "/containers/json"
	cntrs, err := c.api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, classify(ctx, op, endpoint, err)
	}
	refs := make([]ContainerRef, 0, len(cntrs))
	for _, cntr := range cntrs {
		if cntr.ID == "" {
			return nil, &DecodeError{Op: op, Endpoint: endpoint,
				Err: errors.New("container without ID")}
		}
		refs = append(refs, ContainerRef{
			ID:   cntr.ID,
			Name: displayName(cntr.ID, cntr.Names),
		})
	}
	return refs, nil
}

// Images lists all images together with their sizes and the number of
// containers using them. As only the engine's disk usage report carries the
// container counts, this is what we ask for.
func (c *Client) Images(ctx context.Context) ([]ImageRecord, error) {
	const op, endpoint = "list images", "/system/df?type=image"
	du, err := c.api.DiskUsage(ctx, types.DiskUsageOptions{
		Types: []types.DiskUsageObject{types.ImageObject},
	})
	if err != nil {
		return nil, classify(ctx, op, endpoint, err)
	}
	images := make([]ImageRecord, 0, len(du.Images))
	for _, img := range du.Images {
		if img == nil || img.ID == "" {
			return nil, &DecodeError{Op: op, Endpoint: endpoint,
				Err: errors.New("image without ID")}
		}
		log.Debugf("image %s: %d containers, %s", img.ID,
			img.Containers, units.HumanSize(float64(img.Size)))
		images = append(images, ImageRecord{
			ID:         img.ID,
			RepoTags:   slices.Clone(img.RepoTags),
			Size:       max(img.Size, 0),
			Containers: max(img.Containers, 0), // -1 means "not calculated"
		})
	}
	return images, nil
}

// Volumes lists all volumes together with their sizes and reference counts,
// taken from the engine's disk usage report.
func (c *Client) Volumes(ctx context.Context) ([]VolumeRecord, error) {
	const op, endpoint = "list volumes", "/system/df?type=volume"
	du, err := c.api.DiskUsage(ctx, types.DiskUsageOptions{
		Types: []types.DiskUsageObject{types.VolumeObject},
	})
	if err != nil {
		return nil, classify(ctx, op, endpoint, err)
	}
	volumes := make([]VolumeRecord, 0, len(du.Volumes))
	for _, vol := range du.Volumes {
		if vol == nil || vol.Name == "" {
			return nil, &DecodeError{Op: op, Endpoint: endpoint,
				Err: errors.New("volume without name")}
		}
		rec := VolumeRecord{Name: vol.Name}
		if vol.UsageData != nil {
			rec.Size = max(vol.UsageData.Size, 0)
			rec.RefCount = max(vol.UsageData.RefCount, 0)
		}
		log.Debugf("volume %s: %d references, %s", rec.Name,
			rec.RefCount, units.HumanSize(float64(rec.Size)))
		volumes = append(volumes, rec)
	}
	return volumes, nil
}

// Inspection is the part of a container's details we're interested in.
type Inspection struct {
	State        State
	Running      bool // also true while restarting or paused.
	StartedAt    int64
	RestartCount int
}

// Inspect returns the current state details of the specified container.
func (c *Client) Inspect(ctx context.Context, id string) (Inspection, error) {
	const op = "inspect container"
	endpoint := "/containers/" + id + "/json"
	details, err := c.api.ContainerInspect(ctx, id)
	if err != nil {
		return Inspection{}, classify(ctx, op, endpoint, err)
	}
	if details.ContainerJSONBase == nil || details.State == nil {
		return Inspection{}, &DecodeError{Op: op, Endpoint: endpoint,
			Err: errors.New("missing container state")}
	}
	return Inspection{
		State:        stateFromStatus(string(details.State.Status)),
		Running:      details.State.Running,
		StartedAt:    unixSeconds(details.State.StartedAt),
		RestartCount: details.RestartCount,
	}, nil
}

// unixSeconds converts an RFC3339 timestamp into unix seconds. Missing,
// malformed, and "zero" timestamps (the engine reports 0001-01-01 for
// containers never started) all yield zero.
func unixSeconds(timestamp string) int64 {
	if timestamp == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return 0
	}
	return max(t.Unix(), 0)
}

// Stats returns a single statistics document for the specified container. The
// engine gathers two samples for it, some time apart, so the document carries
// both the current and the previous CPU counters.
func (c *Client) Stats(ctx context.Context, id string) (container.StatsResponse, error) {
	const op = "container stats"
	endpoint := "/containers/" + id + "/stats?stream=false"
	resp, err := c.api.ContainerStats(ctx, id, false)
	if err != nil {
		return container.StatsResponse{}, classify(ctx, op, endpoint, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return container.StatsResponse{}, classify(ctx, op, endpoint, err)
	}
	stats, err := decodeStats(body)
	if err != nil {
		return container.StatsResponse{}, &DecodeError{Op: op, Endpoint: endpoint, Err: err}
	}
	return stats, nil
}

// ContainerStats queries the state and resource usage of the referenced
// container. Containers that aren't running are only inspected, leaving their
// resource counters at zero.
func (c *Client) ContainerStats(ctx context.Context, ref ContainerRef) (ContainerRecord, error) {
	rec := ContainerRecord{ContainerRef: ref}
	details, err := c.Inspect(ctx, ref.ID)
	if err != nil {
		return rec, err
	}
	rec.State = details.State
	rec.StartedAt = details.StartedAt
	rec.RestartCount = details.RestartCount
	if !details.Running {
		return rec, nil
	}
	stats, err := c.Stats(ctx, ref.ID)
	if err != nil {
		return rec, err
	}
	fillUsage(&rec, &stats)
	return rec, nil
}

// fillUsage sets the resource usage counters of a container record from a
// stats document.
func fillUsage(rec *ContainerRecord, stats *container.StatsResponse) {
	rec.CPUUsed = stats.CPUStats.CPUUsage.TotalUsage
	rec.CPUCapacity = stats.CPUStats.SystemUsage
	rec.MemoryUsed = memoryUsed(stats.MemoryStats)
	for _, netif := range stats.Networks {
		rec.NetworkIn += netif.RxBytes
		rec.NetworkOut += netif.TxBytes
	}
	for _, entry := range stats.BlkioStats.IoServiceBytesRecursive {
		switch {
		case strings.EqualFold(entry.Op, "read"):
			rec.DiskRead += entry.Value
		case strings.EqualFold(entry.Op, "write"):
			rec.DiskWrite += entry.Value
		}
	}
}

// memoryUsed returns the memory usage without the inactive file cache, the
// same way the Docker CLI calculates it. cgroup v1 reports the cache as
// "total_inactive_file", cgroup v2 as "inactive_file".
func memoryUsed(mem container.MemoryStats) uint64 {
	inactive, ok := mem.Stats["total_inactive_file"]
	if !ok {
		inactive = mem.Stats["inactive_file"]
	}
	if inactive > mem.Usage {
		return 0
	}
	return mem.Usage - inactive
}
