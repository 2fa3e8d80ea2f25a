package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/hostmetry/agent/internal/errors"
	"github.com/hostmetry/agent/internal/metric"
)

const nginxRequestTimeout = 5 * time.Second

// Nginx scrapes a stub_status endpoint for the cumulative handled-request
// counter. The derived figure is requests per whole elapsed minute. Disabled
// when no endpoint is configured.
type Nginx struct {
	endpoint string
	client   *http.Client
}

func NewNginx(endpoint string) *Nginx {
	return &Nginx{
		endpoint: endpoint,
		client:   &http.Client{Timeout: nginxRequestTimeout},
	}
}

func (s *Nginx) Name() string { return "nginx" }

func (s *Nginx) Acquire(ctx context.Context) (metric.Sample, error) {
	if s.endpoint == "" {
		return metric.Sample{}, apperrors.ErrNotConfigured
	}

	timestamp := now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return metric.Sample{}, fmt.Errorf("%w: %v", apperrors.ErrReadFailed, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return metric.Sample{}, fmt.Errorf("%w: %v", apperrors.ErrReadFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return metric.Sample{}, fmt.Errorf("%w: %v", apperrors.ErrReadFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return metric.Sample{}, fmt.Errorf("%w: status endpoint returned %d", apperrors.ErrReadFailed, resp.StatusCode)
	}

	requests, err := parseStubStatus(string(body))
	if err != nil {
		return metric.Sample{}, err
	}

	return metric.Sample{
		Timestamp: timestamp,
		Series: []metric.Series{{
			Counters: []metric.Counter{
				{Name: "handled_requests", Value: requests, Kind: metric.KindPerMinute},
			},
		}},
	}, nil
}

// parseStubStatus extracts the total request count from stub_status output:
//
//	Active connections: 291
//	server accepts handled requests
//	 16630948 16630948 31070465
//	Reading: 6 Writing: 179 Waiting: 106
//
// The third field of the third line is the cumulative request counter.
func parseStubStatus(body string) (float64, error) {
	lines := strings.Split(body, "\n")
	if len(lines) < 3 {
		return 0, fmt.Errorf("%w: unexpected stub_status layout", apperrors.ErrParseFailed)
	}
	fields := strings.Fields(lines[2])
	if len(fields) < 3 {
		return 0, fmt.Errorf("%w: unexpected stub_status counters line", apperrors.ErrParseFailed)
	}
	requests, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrParseFailed, err)
	}
	return float64(requests), nil
}
