package source

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/load"

	apperrors "github.com/hostmetry/agent/internal/errors"
	"github.com/hostmetry/agent/internal/metric"
)

// LoadAverage reads the one/five/fifteen minute load averages. Already a
// rate-like quantity, so the source feeds a gauge collector.
type LoadAverage struct{}

func NewLoadAverage() *LoadAverage { return &LoadAverage{} }

func (s *LoadAverage) Name() string { return "load_average" }

func (s *LoadAverage) Acquire(ctx context.Context) (metric.Sample, error) {
	timestamp := now()

	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return metric.Sample{}, fmt.Errorf("%w: %v", apperrors.ErrReadFailed, err)
	}

	return metric.Sample{
		Timestamp: timestamp,
		Series: []metric.Series{{
			Gauges: []metric.Gauge{
				{Name: "one", Value: avg.Load1},
				{Name: "five", Value: avg.Load5},
				{Name: "fifteen", Value: avg.Load15},
			},
		}},
	}, nil
}
