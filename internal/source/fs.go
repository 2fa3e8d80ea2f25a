package source

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"

	apperrors "github.com/hostmetry/agent/internal/errors"
	"github.com/hostmetry/agent/internal/metric"
)

// Pseudo and overlay filesystems carry no capacity information worth
// recording.
var excludedFilesystems = map[string]bool{
	"squashfs": true,
	"devtmpfs": true,
	"tmpfs":    true,
	"fuse":     true,
	"overlay":  true,
}

// Filesystem reads total and used bytes per mounted filesystem. Absolute
// quantities, so the source feeds a gauge collector.
type Filesystem struct{}

func NewFilesystem() *Filesystem { return &Filesystem{} }

func (s *Filesystem) Name() string { return "fs" }

func (s *Filesystem) Acquire(ctx context.Context) (metric.Sample, error) {
	sample := metric.Sample{Timestamp: now()}

	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return metric.Sample{}, fmt.Errorf("%w: %v", apperrors.ErrReadFailed, err)
	}

	seen := make(map[string]bool, len(partitions))
	for _, p := range partitions {
		if excludedFilesystems[p.Fstype] || seen[p.Device] {
			continue
		}
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			// A single unreadable mountpoint does not fail the whole sample.
			continue
		}
		seen[p.Device] = true
		sample.Series = append(sample.Series, metric.Series{
			Key: p.Device,
			Gauges: []metric.Gauge{
				{Name: "total", Value: float64(usage.Total)},
				{Name: "used", Value: float64(usage.Used)},
			},
		})
	}
	return sample, nil
}
