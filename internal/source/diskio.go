package source

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"

	apperrors "github.com/hostmetry/agent/internal/errors"
	"github.com/hostmetry/agent/internal/metric"
)

// DiskIO reads per-device cumulative byte counters. Differenced into
// bytes-per-second read/write rates.
type DiskIO struct{}

func NewDiskIO() *DiskIO { return &DiskIO{} }

func (s *DiskIO) Name() string { return "io" }

func (s *DiskIO) Acquire(ctx context.Context) (metric.Sample, error) {
	sample := metric.Sample{Timestamp: now()}

	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return metric.Sample{}, fmt.Errorf("%w: %v", apperrors.ErrReadFailed, err)
	}

	for device, stat := range counters {
		sample.Series = append(sample.Series, metric.Series{
			Key: device,
			Counters: []metric.Counter{
				{Name: "read", Value: float64(stat.ReadBytes)},
				{Name: "write", Value: float64(stat.WriteBytes)},
			},
		})
	}
	return sample, nil
}
