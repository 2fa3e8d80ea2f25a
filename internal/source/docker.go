package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/hostmetry/agent/internal/errors"
	"github.com/hostmetry/agent/internal/metric"
)

const (
	dockerRequestTimeout = 10 * time.Second
	dockerStatsParallel  = 8
)

type dockerAPI interface {
	ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error)
	ContainerStatsOneShot(ctx context.Context, containerID string) (types.ContainerStats, error)
}

// Docker polls the container runtime for per-container CPU, memory and
// network statistics. Stats of independent containers are fetched
// concurrently; a single container's failure only drops that container from
// the sample.
type Docker struct {
	api    dockerAPI
	logger *zap.SugaredLogger
}

func NewDocker(logger *zap.SugaredLogger) (*Docker, error) {
	api, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Docker{api: api, logger: logger}, nil
}

func newDockerWithAPI(api dockerAPI, logger *zap.SugaredLogger) *Docker {
	return &Docker{api: api, logger: logger}
}

func (s *Docker) Name() string { return "docker" }

func (s *Docker) Acquire(ctx context.Context) (metric.Sample, error) {
	timestamp := now()

	ctx, cancel := context.WithTimeout(ctx, dockerRequestTimeout)
	defer cancel()

	containers, err := s.api.ContainerList(ctx, types.ContainerListOptions{})
	if err != nil {
		return metric.Sample{}, fmt.Errorf("%w: %v", apperrors.ErrReadFailed, err)
	}

	var mu sync.Mutex
	series := make([]metric.Series, 0, len(containers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dockerStatsParallel)
	for _, ctr := range containers {
		g.Go(func() error {
			stats, err := s.containerStats(gctx, ctr.ID)
			if err != nil {
				s.logger.Warnf("failed to get container stats (%s): %v", ctr.ID, err)
				return nil
			}
			mu.Lock()
			series = append(series, containerSeries(ctr, stats))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return metric.Sample{}, fmt.Errorf("%w: %v", apperrors.ErrReadFailed, err)
	}

	return metric.Sample{Timestamp: timestamp, Series: series}, nil
}

func (s *Docker) containerStats(ctx context.Context, id string) (types.StatsJSON, error) {
	resp, err := s.api.ContainerStatsOneShot(ctx, id)
	if err != nil {
		return types.StatsJSON{}, err
	}
	defer resp.Body.Close()

	var stats types.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return types.StatsJSON{}, fmt.Errorf("%w: %v", apperrors.ErrParseFailed, err)
	}
	return stats, nil
}

// containerSeries maps one container's stats into a Series. CPU counters stay
// in nanoseconds; the utilization fraction is derived later in Refine, so the
// common scale cancels out. Network counters are summed across interfaces.
func containerSeries(ctr types.Container, stats types.StatsJSON) metric.Series {
	name := stats.Name
	if name == "" && len(ctr.Names) > 0 {
		name = ctr.Names[0]
	}
	name = strings.TrimPrefix(name, "/")

	var rx, tx uint64
	for _, network := range stats.Networks {
		rx += network.RxBytes
		tx += network.TxBytes
	}

	return metric.Series{
		Key:   name,
		Attrs: map[string]string{"state": ctr.State},
		Counters: []metric.Counter{
			{Name: "cpu_total", Value: float64(stats.CPUStats.CPUUsage.TotalUsage)},
			{Name: "cpu_system", Value: float64(stats.CPUStats.SystemUsage)},
			{Name: "rx", Value: float64(rx)},
			{Name: "tx", Value: float64(tx)},
		},
		Gauges: []metric.Gauge{
			{Name: "memory_usage", Value: float64(stats.MemoryStats.Usage)},
			{Name: "memory_cache", Value: float64(stats.MemoryStats.Stats["cache"])},
		},
	}
}

// Refine replaces the raw cpu_total/cpu_system rates with a single cpu_usage
// value: the container's share of host CPU time over the interval.
func (s *Docker) Refine(m *metric.Metric) {
	for i := range m.Entries {
		entry := &m.Entries[i]
		cpuRate, okCPU := entry.Lookup("cpu_total")
		sysRate, okSys := entry.Lookup("cpu_system")
		entry.Drop("cpu_total")
		entry.Drop("cpu_system")
		if !okCPU || !okSys || sysRate == 0 {
			continue
		}
		entry.Set("cpu_usage", cpuRate/sysRate)
	}
}
