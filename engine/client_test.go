// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/siemens/dockerprobe/internal/test"
	"github.com/siemens/dockerprobe/internal/test/fakeengine"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/thediveo/success"
)

const (
	webID = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	dbID  = "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210"
)

// stubAPI answers pings without an API version and container queries with
// canned inspection details and stats documents.
type stubAPI struct {
	client.APIClient
	inspect container.InspectResponse
	stats   string
	closed  bool
}

func (s *stubAPI) Ping(context.Context) (types.Ping, error) { return types.Ping{}, nil }

func (s *stubAPI) ContainerInspect(context.Context, string) (container.InspectResponse, error) {
	return s.inspect, nil
}

func (s *stubAPI) ContainerStats(context.Context, string, bool) (container.StatsResponseReader, error) {
	return container.StatsResponseReader{Body: io.NopCloser(strings.NewReader(s.stats))}, nil
}

func (s *stubAPI) Close() error {
	s.closed = true
	return nil
}

var _ = Describe("engine client", func() {

	DescribeTable("container display names",
		func(id string, names []string, expected string) {
			Expect(displayName(id, names)).To(Equal(expected))
		},
		Entry("first name without slash", webID, []string{"/web", "/alias"}, "web"),
		Entry("no names", webID, nil, "0123456789ab"),
		Entry("only a slash", webID, []string{"/"}, "0123456789ab"),
		Entry("blank name", webID, []string{" "}, "0123456789ab"),
		Entry("short ID", "abc", nil, "abc"),
	)

	DescribeTable("container states",
		func(status string, expected State) {
			Expect(stateFromStatus(status)).To(Equal(expected))
		},
		Entry(nil, "running", StateRunning),
		Entry(nil, "restarting", StateRestarting),
		Entry(nil, "exited", StateStopped),
		Entry(nil, "dead", StateStopped),
		Entry(nil, "paused", StateOther),
		Entry(nil, "created", StateOther),
		Entry(nil, "", StateOther),
	)

	DescribeTable("start timestamps",
		func(timestamp string, expected int64) {
			Expect(unixSeconds(timestamp)).To(Equal(expected))
		},
		Entry("never started", "0001-01-01T00:00:00Z", int64(0)),
		Entry("empty", "", int64(0)),
		Entry("garbage", "yesterday", int64(0)),
		Entry("started", "2023-07-22T04:26:40.123456789Z", int64(1690000000)),
	)

	It("subtracts inactive file cache from memory usage", func() {
		Expect(memoryUsed(container.MemoryStats{Usage: 1000})).To(Equal(uint64(1000)))
		Expect(memoryUsed(container.MemoryStats{Usage: 1000,
			Stats: map[string]uint64{"total_inactive_file": 300, "inactive_file": 100}})).
			To(Equal(uint64(700)))
		Expect(memoryUsed(container.MemoryStats{Usage: 1000,
			Stats: map[string]uint64{"inactive_file": 100}})).
			To(Equal(uint64(900)))
		Expect(memoryUsed(container.MemoryStats{Usage: 10,
			Stats: map[string]uint64{"inactive_file": 100}})).
			To(BeZero())
	})

	It("sums network and disk counters", func() {
		stats := Successful(decodeStats([]byte(`{
			"cpu_stats": {"cpu_usage": {"total_usage": 100}, "system_cpu_usage": 400},
			"precpu_stats": {"cpu_usage": {"total_usage": 50}, "system_cpu_usage": 200},
			"memory_stats": {"usage": 42},
			"networks": {
				"eth0": {"rx_bytes": 1, "tx_bytes": 10},
				"eth1": {"rx_bytes": 2, "tx_bytes": 20}
			},
			"blkio_stats": {"io_service_bytes_recursive": [
				{"major": 8, "minor": 0, "op": "Read", "value": 100},
				{"major": 8, "minor": 0, "op": "Write", "value": 1000},
				{"major": 8, "minor": 16, "op": "read", "value": 200},
				{"major": 8, "minor": 16, "op": "write", "value": 2000},
				{"major": 8, "minor": 16, "op": "Total", "value": 3300}
			]}
		}`)))
		var rec ContainerRecord
		fillUsage(&rec, &stats)
		Expect(rec).To(And(
			HaveField("CPUUsed", uint64(100)),
			HaveField("CPUCapacity", uint64(400)),
			HaveField("MemoryUsed", uint64(42)),
			HaveField("NetworkIn", uint64(3)),
			HaveField("NetworkOut", uint64(30)),
			HaveField("DiskRead", uint64(300)),
			HaveField("DiskWrite", uint64(3000)),
		))
	})

	DescribeTable("rejecting unexpected stats documents",
		func(doc string) {
			Expect(decodeStats([]byte(doc))).Error().To(HaveOccurred())
		},
		Entry("not JSON", `{"cpu_stats":`),
		Entry("not an object", `[]`),
		Entry("empty object", `{}`),
		Entry("missing previous sample", `{"cpu_stats": {"cpu_usage": {"total_usage": 1}}, "memory_stats": {}}`),
		Entry("missing total usage", `{"cpu_stats": {"cpu_usage": {}}, "precpu_stats": {}, "memory_stats": {}}`),
		Entry("negative counter", `{"cpu_stats": {"cpu_usage": {"total_usage": -1}}, "precpu_stats": {}, "memory_stats": {}}`),
		Entry("text counter", `{"cpu_stats": {"cpu_usage": {"total_usage": "1"}}, "precpu_stats": {}, "memory_stats": {}}`),
		Entry("incomplete network", `{"cpu_stats": {"cpu_usage": {"total_usage": 1}}, "precpu_stats": {}, "memory_stats": {},
			"networks": {"eth0": {"rx_bytes": 1}}}`),
	)

	It("accepts null optional sections", func() {
		Expect(decodeStats([]byte(`{
			"cpu_stats": {"cpu_usage": {"total_usage": 1}},
			"precpu_stats": {},
			"memory_stats": {"stats": null},
			"networks": null,
			"blkio_stats": {"io_service_bytes_recursive": null}
		}`))).Error().NotTo(HaveOccurred())
	})

	It("rejects missing socket paths", func() {
		Expect(New("")).Error().To(HaveOccurred())
		Expect(New("unix://")).Error().To(HaveOccurred())
	})

	When("using a specific API client", func() {

		It("reports engines not telling their API version", func(ctx context.Context) {
			api := &stubAPI{}
			c := Successful(New("", WithAPIClient(api)))
			Expect(c.Check(ctx)).To(And(
				beErrorOf[*DecodeError](),
				MatchError(ContainSubstring("did not report its API version"))))
			Expect(c.Close()).To(Succeed())
			Expect(api.closed).To(BeTrue())
		})

		It("reports inspections without state as decoding failures", func(ctx context.Context) {
			c := Successful(New("", WithAPIClient(&stubAPI{})))
			_, err := c.ContainerStats(ctx, ContainerRef{ID: webID, Name: "web"})
			Expect(err).To(And(
				beErrorOf[*DecodeError](),
				MatchError(ContainSubstring("missing container state"))))
		})

		It("reports garbled stats documents as decoding failures", func(ctx context.Context) {
			c := Successful(New("", WithAPIClient(&stubAPI{
				inspect: container.InspectResponse{
					ContainerJSONBase: &container.ContainerJSONBase{
						State:        &container.State{Status: container.StateRunning, Running: true},
						RestartCount: 3,
					},
				},
				stats: `{"cpu_stats": `,
			})))
			rec, err := c.ContainerStats(ctx, ContainerRef{ID: webID, Name: "web"})
			Expect(err).To(And(
				beErrorOf[*DecodeError](),
				MatchError(ContainSubstring("container stats (/containers/"+webID+"/stats?stream=false)"))))
			Expect(rec.State).To(Equal(StateRunning))
			Expect(rec.RestartCount).To(Equal(3))
		})

	})

	When("talking to an engine", func() {

		var fake *fakeengine.Engine
		var c *Client

		BeforeEach(test.LogToGinkgo)

		BeforeEach(func() {
			fake = Successful(fakeengine.New(GinkgoT().TempDir()))
			DeferCleanup(fake.Close)
			c = Successful(New("unix://" + fake.Socket()))
			DeferCleanup(c.Close)
			Expect(c.Socket()).To(Equal(fake.Socket()))
		})

		It("checks the engine API version", func(ctx context.Context) {
			Expect(c.Check(ctx)).To(Succeed())

			fake.SetAPIVersion("1.24")
			old := Successful(New(fake.Socket()))
			defer old.Close()
			Expect(old.Check(ctx)).To(MatchError(ContainSubstring("at least 1.25 is required")))

			lenient := Successful(New(fake.Socket(), WithVersionFloor("1.24")))
			defer lenient.Close()
			Expect(lenient.Check(ctx)).To(Succeed())
		})

		It("reports an unreachable engine as a transport failure", func(ctx context.Context) {
			gone := Successful(New(filepath.Join(GinkgoT().TempDir(), "nothere.sock")))
			defer gone.Close()
			Expect(gone.Check(ctx)).To(beErrorOf[*TransportError]())
			Expect(gone.Containers(ctx)).Error().To(beErrorOf[*TransportError]())
		})

		It("lists containers", func(ctx context.Context) {
			fake.SetContainers(
				fakeengine.Container{ID: webID, Names: []string{"/web"}, Status: "running"},
				fakeengine.Container{ID: dbID, Status: "exited"},
			)
			Expect(c.Containers(ctx)).To(ConsistOf(
				ContainerRef{ID: webID, Name: "web"},
				ContainerRef{ID: dbID, Name: "fedcba987654"},
			))
		})

		It("reports listing errors", func(ctx context.Context) {
			fake.Fail(fakeengine.RouteList, http.StatusInternalServerError)
			Expect(c.Containers(ctx)).Error().To(And(
				beErrorOf[*TransportError](),
				MatchError(ContainSubstring("list containers (/containers/json)"))))
		})

		It("queries a running container", func(ctx context.Context) {
			fake.SetContainers(fakeengine.Container{
				ID:           webID,
				Names:        []string{"/web"},
				Status:       "running",
				StartedAt:    "2023-07-22T04:26:40Z",
				RestartCount: 2,
				Stats:        fakeengine.StatsDocument(100, 400, 1048576),
			})
			rec := Successful(c.ContainerStats(ctx, ContainerRef{ID: webID, Name: "web"}))
			Expect(rec).To(Equal(ContainerRecord{
				ContainerRef: ContainerRef{ID: webID, Name: "web"},
				State:        StateRunning,
				StartedAt:    1690000000,
				RestartCount: 2,
				CPUUsed:      100,
				CPUCapacity:  400,
				MemoryUsed:   1048576,
			}))
		})

		It("only inspects containers that aren't running", func(ctx context.Context) {
			fake.SetContainers(fakeengine.Container{ID: dbID, Status: "exited", RestartCount: 1})
			fake.Fail(fakeengine.RouteStats, http.StatusInternalServerError)
			rec := Successful(c.ContainerStats(ctx, ContainerRef{ID: dbID, Name: "db"}))
			Expect(rec.State).To(Equal(StateStopped))
			Expect(rec.RestartCount).To(Equal(1))
			Expect(rec.StartedAt).To(BeZero())
			Expect(rec.CPUUsed).To(BeZero())
		})

		It("gets stats for restarting containers", func(ctx context.Context) {
			fake.SetContainers(fakeengine.Container{ID: webID, Status: "restarting",
				Stats: fakeengine.StatsDocument(1, 2, 3)})
			rec := Successful(c.ContainerStats(ctx, ContainerRef{ID: webID, Name: "web"}))
			Expect(rec.State).To(Equal(StateRestarting))
			Expect(rec.MemoryUsed).To(Equal(uint64(3)))
		})

		It("reports vanished containers", func(ctx context.Context) {
			_, err := c.ContainerStats(ctx, ContainerRef{ID: webID, Name: "web"})
			Expect(err).To(beErrorOf[*TransportError]())
			Expect(IsNotFound(err)).To(BeTrue())
		})

		It("reports unexpected stats documents as decoding failures", func(ctx context.Context) {
			fake.SetContainers(fakeengine.Container{ID: webID, Status: "running",
				Stats: map[string]any{"read": "2023-07-22T04:26:40Z"}})
			_, err := c.ContainerStats(ctx, ContainerRef{ID: webID, Name: "web"})
			Expect(err).To(beErrorOf[*DecodeError]())
			Expect(IsNotFound(err)).To(BeFalse())
		})

		It("reports slow queries as timeouts", func(ctx context.Context) {
			fake.SetContainers(fakeengine.Container{ID: dbID, Status: "running",
				Delay: 5 * time.Second})
			ctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
			defer cancel()
			start := time.Now()
			_, err := c.ContainerStats(ctx, ContainerRef{ID: dbID, Name: "db"})
			Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))
			Expect(err).To(beErrorOf[*TimeoutError]())
		})

		It("lists images and volumes", func(ctx context.Context) {
			fake.SetImages(
				fakeengine.Image{ID: "sha256:1111", RepoTags: []string{"busybox:latest"}, Size: 4096, Containers: 2},
				fakeengine.Image{ID: "sha256:2222", Size: 1, Containers: -1},
			)
			fake.SetVolumes(fakeengine.Volume{Name: "data", Size: 512, RefCount: 1})
			Expect(c.Images(ctx)).To(ConsistOf(
				ImageRecord{ID: "sha256:1111", RepoTags: []string{"busybox:latest"}, Size: 4096, Containers: 2},
				And(HaveField("ID", "sha256:2222"), HaveField("Containers", int64(0))),
			))
			Expect(c.Volumes(ctx)).To(ConsistOf(
				VolumeRecord{Name: "data", Size: 512, RefCount: 1},
			))
		})

		It("reports disk usage errors", func(ctx context.Context) {
			fake.Fail(fakeengine.RouteDF, http.StatusInternalServerError)
			Expect(c.Images(ctx)).Error().To(beErrorOf[*TransportError]())
			Expect(c.Volumes(ctx)).Error().To(beErrorOf[*TransportError]())
		})

	})

})
