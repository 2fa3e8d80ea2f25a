package source

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/net"

	apperrors "github.com/hostmetry/agent/internal/errors"
	"github.com/hostmetry/agent/internal/metric"
)

// Network reads per-interface cumulative byte counters. Differenced into
// bytes-per-second rx/tx rates.
type Network struct{}

func NewNetwork() *Network { return &Network{} }

func (s *Network) Name() string { return "network" }

func (s *Network) Acquire(ctx context.Context) (metric.Sample, error) {
	sample := metric.Sample{Timestamp: now()}

	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return metric.Sample{}, fmt.Errorf("%w: %v", apperrors.ErrReadFailed, err)
	}

	for _, stat := range counters {
		sample.Series = append(sample.Series, metric.Series{
			Key: stat.Name,
			Counters: []metric.Counter{
				{Name: "rx", Value: float64(stat.BytesRecv)},
				{Name: "tx", Value: float64(stat.BytesSent)},
			},
		})
	}
	return sample, nil
}
