// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package dockerprobe

// Phase of a single probe.
type Phase int

// The phases a probe passes through, in this order.
const (
	PhaseIdle Phase = iota
	PhaseEnumerating
	PhaseAggregating
	PhaseDeriving
	PhaseDone
)

var phaseNames = [...]string{
	PhaseIdle:        "idle",
	PhaseEnumerating: "enumerating",
	PhaseAggregating: "aggregating",
	PhaseDeriving:    "deriving",
	PhaseDone:        "done",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}
