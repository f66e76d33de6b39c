// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

/*
Package fakeengine provides a minimal fake Docker engine API server listening
on a unix domain socket, serving canned containers, images, and volumes. It
supports just the handful of API endpoints needed to test probing: ping,
container listing, inspection, and single-shot stats, as well as the disk
usage report.

Responses can be delayed per container in order to test query timeouts, and
individual endpoints can be made to fail with a specific HTTP status code.
*/
package fakeengine

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultAPIVersion is the API version the fake engine reports when pinged.
const DefaultAPIVersion = "1.43"

// Container describes a fake container.
type Container struct {
	ID           string
	Names        []string // as listed, that is, with leading slashes.
	Status       string   // "running", "restarting", "exited", ...
	StartedAt    string   // RFC3339; empty for "0001-01-01T00:00:00Z".
	RestartCount int
	Stats        any           // stats document; nil generates an all-zero document.
	Delay        time.Duration // delays inspect and stats responses.
}

// Image describes a fake image.
type Image struct {
	ID         string
	RepoTags   []string
	Size       int64
	Containers int64
}

// Volume describes a fake volume.
type Volume struct {
	Name     string
	Size     int64
	RefCount int64
}

// Engine is a fake Docker engine API server.
type Engine struct {
	socket   string
	listener net.Listener
	server   *http.Server
	mux      *http.ServeMux
	done     chan struct{}
	requests atomic.Int64

	mu         sync.Mutex
	apiVersion string
	containers []Container
	images     []Image
	volumes    []Volume
	failures   map[string]int // route name to HTTP status code.
}

// Route names for Fail.
const (
	RouteList    = "list"
	RouteInspect = "inspect"
	RouteStats   = "stats"
	RouteDF      = "df"
	RoutePing    = "ping"
)

// New starts a fake engine serving its API at "docker.sock" inside the
// specified directory.
func New(dir string) (*Engine, error) {
	e := &Engine{
		socket:     filepath.Join(dir, "docker.sock"),
		mux:        http.NewServeMux(),
		done:       make(chan struct{}),
		apiVersion: DefaultAPIVersion,
		failures:   map[string]int{},
	}
	e.mux.HandleFunc("/_ping", e.ping)
	e.mux.HandleFunc("GET /containers/json", e.list)
	e.mux.HandleFunc("GET /containers/{id}/json", e.inspect)
	e.mux.HandleFunc("GET /containers/{id}/stats", e.stats)
	e.mux.HandleFunc("GET /system/df", e.df)
	l, err := net.Listen("unix", e.socket)
	if err != nil {
		return nil, fmt.Errorf("cannot listen on %s: %w", e.socket, err)
	}
	e.listener = l
	e.server = &http.Server{Handler: e}
	go func() {
		defer close(e.done)
		_ = e.server.Serve(l)
	}()
	return e, nil
}

// Socket returns the path of the API socket.
func (e *Engine) Socket() string { return e.socket }

// Requests returns the number of API requests served so far.
func (e *Engine) Requests() int64 { return e.requests.Load() }

// Close shuts down the fake engine, dropping any open connections.
func (e *Engine) Close() {
	_ = e.server.Close()
	<-e.done
}

// SetAPIVersion sets the API version reported when pinged.
func (e *Engine) SetAPIVersion(v string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.apiVersion = v
}

// SetContainers replaces the containers of the fake engine.
func (e *Engine) SetContainers(cntrs ...Container) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.containers = cntrs
}

// SetImages replaces the images of the fake engine.
func (e *Engine) SetImages(imgs ...Image) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images = imgs
}

// SetVolumes replaces the volumes of the fake engine.
func (e *Engine) SetVolumes(vols ...Volume) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volumes = vols
}

// Fail makes the named route answer with the specified HTTP status code; a
// zero status code makes the route work normally again.
func (e *Engine) Fail(route string, status int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if status == 0 {
		delete(e.failures, route)
		return
	}
	e.failures[route] = status
}

var versionPrefix = regexp.MustCompile(`^/v[0-9]+\.[0-9]+`)

// ServeHTTP strips any API version prefix before routing the request.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.requests.Add(1)
	r.URL.Path = versionPrefix.ReplaceAllString(r.URL.Path, "")
	r.URL.RawPath = ""
	e.mux.ServeHTTP(w, r)
}

// failed answers the request with an error if the route has been told to
// fail, returning true in that case.
func (e *Engine) failed(w http.ResponseWriter, route string) bool {
	e.mu.Lock()
	status, ok := e.failures[route]
	e.mu.Unlock()
	if !ok {
		return false
	}
	writeJSON(w, status, map[string]string{"message": "fake engine failure: " + route})
	return true
}

func (e *Engine) ping(w http.ResponseWriter, r *http.Request) {
	if e.failed(w, RoutePing) {
		return
	}
	e.mu.Lock()
	v := e.apiVersion
	e.mu.Unlock()
	w.Header().Set("Api-Version", v)
	w.Header().Set("Ostype", "linux")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte("OK"))
	}
}

func (e *Engine) list(w http.ResponseWriter, r *http.Request) {
	if e.failed(w, RouteList) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cntrs := make([]map[string]any, 0, len(e.containers))
	for _, c := range e.containers {
		cntrs = append(cntrs, map[string]any{
			"Id":     c.ID,
			"Names":  c.Names,
			"State":  c.Status,
			"Status": c.Status,
		})
	}
	writeJSON(w, http.StatusOK, cntrs)
}

// container returns the container with the specified ID or name, waiting for
// its configured delay (or the request to get cancelled) first.
func (e *Engine) container(w http.ResponseWriter, r *http.Request) (Container, bool) {
	id := r.PathValue("id")
	e.mu.Lock()
	var cntr *Container
	for idx := range e.containers {
		if c := &e.containers[idx]; c.ID == id {
			cntr = c
			break
		}
	}
	var c Container
	if cntr != nil {
		c = *cntr
	}
	e.mu.Unlock()
	if cntr == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"message": "No such container: " + id,
		})
		return Container{}, false
	}
	if c.Delay > 0 {
		t := time.NewTimer(c.Delay)
		select {
		case <-t.C:
		case <-r.Context().Done():
			t.Stop()
			return Container{}, false
		}
	}
	return c, true
}

func (e *Engine) inspect(w http.ResponseWriter, r *http.Request) {
	if e.failed(w, RouteInspect) {
		return
	}
	c, ok := e.container(w, r)
	if !ok {
		return
	}
	startedAt := c.StartedAt
	if startedAt == "" {
		startedAt = "0001-01-01T00:00:00Z"
	}
	name := ""
	if len(c.Names) > 0 {
		name = c.Names[0]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"Id":           c.ID,
		"Name":         name,
		"RestartCount": c.RestartCount,
		"State": map[string]any{
			"Status":     c.Status,
			"Running":    c.Status == "running" || c.Status == "restarting" || c.Status == "paused",
			"Paused":     c.Status == "paused",
			"Restarting": c.Status == "restarting",
			"StartedAt":  startedAt,
			"FinishedAt": "0001-01-01T00:00:00Z",
		},
	})
}

func (e *Engine) stats(w http.ResponseWriter, r *http.Request) {
	if e.failed(w, RouteStats) {
		return
	}
	c, ok := e.container(w, r)
	if !ok {
		return
	}
	if c.Stats == nil {
		writeJSON(w, http.StatusOK, StatsDocument(0, 0, 0))
		return
	}
	writeJSON(w, http.StatusOK, c.Stats)
}

func (e *Engine) df(w http.ResponseWriter, r *http.Request) {
	if e.failed(w, RouteDF) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	images := make([]map[string]any, 0, len(e.images))
	for _, img := range e.images {
		images = append(images, map[string]any{
			"Id":          img.ID,
			"RepoTags":    img.RepoTags,
			"Size":        img.Size,
			"SharedSize":  -1,
			"Containers":  img.Containers,
			"ParentId":    "",
			"RepoDigests": []string{},
			"Created":     0,
			"Labels":      map[string]string{},
		})
	}
	volumes := make([]map[string]any, 0, len(e.volumes))
	for _, vol := range e.volumes {
		volumes = append(volumes, map[string]any{
			"Name":       vol.Name,
			"Driver":     "local",
			"Mountpoint": "/var/lib/docker/volumes/" + vol.Name + "/_data",
			"Scope":      "local",
			"Labels":     map[string]string{},
			"Options":    map[string]string{},
			"UsageData": map[string]any{
				"Size":     vol.Size,
				"RefCount": vol.RefCount,
			},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"LayersSize": 0,
		"Images":     images,
		"Containers": []any{},
		"Volumes":    volumes,
	})
}

// StatsDocument returns a single-shot stats document with the specified CPU
// and memory counters.
func StatsDocument(cpuUsed, cpuCapacity, memory uint64) map[string]any {
	return map[string]any{
		"read":    "2023-07-22T04:26:40Z",
		"preread": "2023-07-22T04:26:39Z",
		"cpu_stats": map[string]any{
			"cpu_usage":        map[string]any{"total_usage": cpuUsed},
			"system_cpu_usage": cpuCapacity,
			"online_cpus":      1,
		},
		"precpu_stats": map[string]any{
			"cpu_usage":        map[string]any{"total_usage": 0},
			"system_cpu_usage": 0,
		},
		"memory_stats": map[string]any{
			"usage": memory,
			"stats": map[string]uint64{},
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
