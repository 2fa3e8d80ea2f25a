// Package source contains the adapters that acquire raw Samples from the
// operating system, the container runtime, the reverse proxy and the
// database. Each adapter knows only how to read its source; differencing,
// persistence and scheduling live elsewhere.
package source

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"

	apperrors "github.com/hostmetry/agent/internal/errors"
	"github.com/hostmetry/agent/internal/metric"
)

// CPU reads per-core cumulative CPU time counters. The derived rates are the
// fraction of wall time each core spent in every state.
type CPU struct{}

func NewCPU() *CPU { return &CPU{} }

func (s *CPU) Name() string { return "cpu" }

func (s *CPU) Acquire(ctx context.Context) (metric.Sample, error) {
	sample := metric.Sample{Timestamp: now()}

	times, err := cpu.TimesWithContext(ctx, true)
	if err != nil {
		return metric.Sample{}, fmt.Errorf("%w: %v", apperrors.ErrReadFailed, err)
	}

	for _, t := range times {
		sample.Series = append(sample.Series, metric.Series{
			Key: t.CPU,
			Counters: []metric.Counter{
				{Name: "user", Value: t.User},
				{Name: "nice", Value: t.Nice},
				{Name: "system", Value: t.System},
				{Name: "idle", Value: t.Idle},
				{Name: "iowait", Value: t.Iowait},
				{Name: "irq", Value: t.Irq},
				{Name: "softirq", Value: t.Softirq},
				{Name: "steal", Value: t.Steal},
				{Name: "guest", Value: t.Guest},
				{Name: "guest_nice", Value: t.GuestNice},
			},
		})
	}
	return sample, nil
}
