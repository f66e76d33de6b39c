// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package engine

import "strings"

// State is the coarse running state of a container.
type State int

const (
	StateOther      State = iota // created, paused, removing, ...
	StateRunning                 // up and running.
	StateRestarting              // in the process of being restarted by the engine.
	StateStopped                 // exited or dead.
)

// String returns the engine's name of a state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateRestarting:
		return "restarting"
	case StateStopped:
		return "stopped"
	}
	return "other"
}

// stateFromStatus maps the engine's container status text to a State.
func stateFromStatus(status string) State {
	switch status {
	case "running":
		return StateRunning
	case "restarting":
		return StateRestarting
	case "exited", "dead":
		return StateStopped
	}
	return StateOther
}

// ContainerRef identifies a container as listed by the engine.
type ContainerRef struct {
	ID   string
	Name string // display name, never empty.
}

// shortIDLen is the length of the abbreviated container IDs shown by the
// Docker CLI.
const shortIDLen = 12

// displayName returns the first listed container name without its leading
// slash. Containers without any usable name get their abbreviated ID instead.
func displayName(id string, names []string) string {
	if len(names) > 0 {
		if name := strings.TrimLeft(strings.TrimSpace(names[0]), "/"); name != "" {
			return name
		}
	}
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

// ContainerRecord is the state and resource usage of a single container at
// the time of a probe. The CPU counters are passed through from the engine
// unmodified; their starting point is undefined, so only their rates carry
// meaning.
type ContainerRecord struct {
	ContainerRef
	State        State
	StartedAt    int64 // unix seconds, zero if never started.
	RestartCount int

	CPUUsed     uint64
	CPUCapacity uint64
	MemoryUsed  uint64
	NetworkIn   uint64
	NetworkOut  uint64
	DiskRead    uint64
	DiskWrite   uint64
}

// ImageRecord describes an image and how many containers use it.
type ImageRecord struct {
	ID         string
	RepoTags   []string
	Size       int64
	Containers int64
}

// VolumeRecord describes a volume and how many containers reference it.
type VolumeRecord struct {
	Name     string
	Size     int64
	RefCount int64
}
