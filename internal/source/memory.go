package source

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"

	apperrors "github.com/hostmetry/agent/internal/errors"
	"github.com/hostmetry/agent/internal/metric"
)

// Memory reads current virtual memory and swap usage. The quantities are
// absolute, so the source feeds a gauge collector.
type Memory struct{}

func NewMemory() *Memory { return &Memory{} }

func (s *Memory) Name() string { return "memory" }

func (s *Memory) Acquire(ctx context.Context) (metric.Sample, error) {
	timestamp := now()

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return metric.Sample{}, fmt.Errorf("%w: %v", apperrors.ErrReadFailed, err)
	}
	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return metric.Sample{}, fmt.Errorf("%w: %v", apperrors.ErrReadFailed, err)
	}

	return metric.Sample{
		Timestamp: timestamp,
		Series: []metric.Series{{
			Gauges: []metric.Gauge{
				{Name: "total", Value: float64(vm.Total)},
				{Name: "free", Value: float64(vm.Free)},
				{Name: "available", Value: float64(vm.Available)},
				{Name: "buffers", Value: float64(vm.Buffers)},
				{Name: "cached", Value: float64(vm.Cached)},
				{Name: "swap_total", Value: float64(swap.Total)},
				{Name: "swap_free", Value: float64(swap.Free)},
			},
		}},
	}, nil
}
