// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package matcher

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/siemens/dockerprobe/engine"

	g "github.com/onsi/gomega"
	"github.com/onsi/gomega/types"
)

// HaveContainerNameID succeeds if ACTUAL is either an engine.ContainerRef,
// *engine.ContainerRef, engine.ContainerRecord, or *engine.ContainerRecord
// with the specified name or ID. Alternatively of a name/ID string, a
// GomegaMatcher can also be specified for matching the name or ID, such as
// ContainSubstring and MatchRegexp.
func HaveContainerNameID(nameorid interface{}) types.GomegaMatcher {
	nameoridMatcher := stringMatcher("nameorid", nameorid)
	return g.SatisfyAny(
		g.WithTransform(func(actual interface{}) (string, error) {
			ref, err := containerRef(actual)
			return ref.ID, err
		}, nameoridMatcher),
		g.WithTransform(func(actual interface{}) (string, error) {
			ref, err := containerRef(actual)
			return ref.Name, err
		}, nameoridMatcher),
	)
}

func containerRef(actual interface{}) (engine.ContainerRef, error) {
	switch cntr := actual.(type) {
	case engine.ContainerRef:
		return cntr, nil
	case *engine.ContainerRef:
		return *cntr, nil
	case engine.ContainerRecord:
		return cntr.ContainerRef, nil
	case *engine.ContainerRecord:
		return cntr.ContainerRef, nil
	}
	return engine.ContainerRef{}, fmt.Errorf(
		"HaveContainerNameID expects an engine.ContainerRef or engine.ContainerRecord, but got %T", actual)
}

// Sample is the name-less essence of a single metric sample with a single
// label, as derived from a probe.
type Sample struct {
	Desc  *prometheus.Desc
	Label string
	Value float64
}

// HaveSample succeeds if ACTUAL is a prometheus.Metric with the specified
// descriptor, carrying a single label with the specified value, and a gauge,
// counter, or untyped value as specified. Instead of a *prometheus.Desc or
// label string, GomegaMatchers can also be specified; the same goes for the
// value, which otherwise must be a float64.
func HaveSample(desc interface{}, label interface{}, value interface{}) types.GomegaMatcher {
	var descMatcher types.GomegaMatcher
	switch desc := desc.(type) {
	case *prometheus.Desc:
		descMatcher = g.BeIdenticalTo(desc)
	case types.GomegaMatcher:
		descMatcher = desc
	default:
		panic("desc argument must be *prometheus.Desc or GomegaMatcher")
	}
	labelMatcher := stringMatcher("label", label)
	var valueMatcher types.GomegaMatcher
	switch value := value.(type) {
	case float64:
		valueMatcher = g.Equal(value)
	case types.GomegaMatcher:
		valueMatcher = value
	default:
		panic("value argument must be float64 or GomegaMatcher")
	}
	return g.WithTransform(func(actual interface{}) (Sample, error) {
		m, ok := actual.(prometheus.Metric)
		if !ok {
			return Sample{}, fmt.Errorf("HaveSample expects a prometheus.Metric, but got %T", actual)
		}
		return sampleOf(m)
	}, g.And(
		g.HaveField("Desc", descMatcher),
		g.HaveField("Label", labelMatcher),
		g.HaveField("Value", valueMatcher),
	))
}

func sampleOf(m prometheus.Metric) (Sample, error) {
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		return Sample{}, err
	}
	if len(pb.Label) != 1 {
		return Sample{}, fmt.Errorf("expected a single label, got %d", len(pb.Label))
	}
	s := Sample{Desc: m.Desc(), Label: pb.Label[0].GetValue()}
	switch {
	case pb.Gauge != nil:
		s.Value = pb.Gauge.GetValue()
	case pb.Counter != nil:
		s.Value = pb.Counter.GetValue()
	case pb.Untyped != nil:
		s.Value = pb.Untyped.GetValue()
	default:
		return Sample{}, fmt.Errorf("expected a gauge, counter, or untyped metric")
	}
	return s, nil
}

func stringMatcher(argname string, arg interface{}) types.GomegaMatcher {
	switch arg := arg.(type) {
	case string:
		return g.Equal(arg)
	case types.GomegaMatcher:
		return arg
	default:
		panic(argname + " argument must be string or GomegaMatcher")
	}
}
