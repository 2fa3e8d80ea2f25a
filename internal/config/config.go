package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseDSN         string
	ReportInterval      time.Duration
	MaxMetricAge        time.Duration
	CleanupEveryNCycles int
	Hostname            string
	DebugAddress        string
	NginxStatusEndpoint string
	DatabaseToMonitor   string
}

// New parses args (without the program name) and applies environment
// overrides on top of flag values.
func New(args []string) (*Config, error) {
	flags := flag.NewFlagSet("agent", flag.ContinueOnError)

	databaseDSN := flags.String("d", "", "database dsn for metric persistence")
	reportInterval := flags.Int("i", int(DefaultReportInterval.Seconds()), "metric report interval in seconds")
	maxMetricAge := flags.String("a", DefaultMaxMetricAge.String(), "max age of persisted metrics (Go duration)")
	cleanupEvery := flags.Int("c", DefaultCleanupEveryNCycles, "run retention cleanup once per this many cycles")
	hostname := flags.String("n", "", "host identity recorded with every metric (default: OS hostname)")
	debugAddress := flags.String("l", DefaultDebugAddress, "listen address of the debug endpoint")
	nginxEndpoint := flags.String("e", "", "nginx stub_status endpoint url")
	databaseToMonitor := flags.String("m", "", "postgres database to monitor internals of")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	envStrVars := map[string]*string{
		"DATABASE_DSN":          databaseDSN,
		"MAX_METRIC_AGE":        maxMetricAge,
		"HOST":                  hostname,
		"DEBUG_ADDRESS":         debugAddress,
		"NGINX_STATUS_ENDPOINT": nginxEndpoint,
		"DATABASE_TO_MONITOR":   databaseToMonitor,
	}
	for envVar, value := range envStrVars {
		if envValue := os.Getenv(envVar); envValue != "" {
			*value = envValue
		}
	}

	envIntVars := map[string]*int{
		"REPORT_INTERVAL":        reportInterval,
		"CLEANUP_EVERY_N_CYCLES": cleanupEvery,
	}
	for envVar, value := range envIntVars {
		if envValue := os.Getenv(envVar); envValue != "" {
			parsed, err := strconv.Atoi(envValue)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value %q: %w", envVar, envValue, err)
			}
			*value = parsed
		}
	}

	age, err := time.ParseDuration(*maxMetricAge)
	if err != nil {
		return nil, fmt.Errorf("invalid max metric age %q: %w", *maxMetricAge, err)
	}

	host := *hostname
	if host == "" {
		host, err = os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("failed to get hostname: %w", err)
		}
	}

	return &Config{
		DatabaseDSN:         *databaseDSN,
		ReportInterval:      time.Duration(*reportInterval) * time.Second,
		MaxMetricAge:        age,
		CleanupEveryNCycles: *cleanupEvery,
		Hostname:            host,
		DebugAddress:        *debugAddress,
		NginxStatusEndpoint: *nginxEndpoint,
		DatabaseToMonitor:   *databaseToMonitor,
	}, nil
}
