// Package probe measures the client's downlink by timing an HTTP GET of a
// large object. The rest of the system only consumes the numeric result.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmylchreest/vodarr/internal/httpclient"
	"github.com/jmylchreest/vodarr/internal/observability"
)

// ErrNoURL is returned when the prober has no object to fetch.
var ErrNoURL = errors.New("no probe url configured")

// minSampleBytes guards against measuring a redirect page or error body
// and reporting a nonsense rate.
const minSampleBytes = 64 * 1024

// Result is one downlink measurement.
type Result struct {
	Mbps     float64
	Bytes    int64
	Duration time.Duration
}

// Prober measures downlink bandwidth.
type Prober struct {
	client  *httpclient.Client
	url     string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a prober fetching the given URL.
func New(url string, timeout time.Duration, logger *slog.Logger) *Prober {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = timeout
	cfg.RetryAttempts = 0 // a retry would skew the timing
	cfg.Logger = logger

	return &Prober{
		client:  httpclient.New(cfg),
		url:     url,
		timeout: timeout,
		logger:  observability.WithComponent(logger, "probe"),
	}
}

// Measure downloads the probe object once and returns the observed rate.
func (p *Prober) Measure(ctx context.Context) (Result, error) {
	if p.url == "" {
		return Result{}, ErrNoURL
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.Get(ctx, p.url)
	if err != nil {
		return Result{}, fmt.Errorf("fetching probe object: %w", err)
	}
	defer resp.Body.Close()

	bytes, err := io.Copy(io.Discard, resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		return Result{}, fmt.Errorf("reading probe object: %w", err)
	}
	if bytes < minSampleBytes {
		return Result{}, fmt.Errorf("probe object too small for a measurement: %d bytes", bytes)
	}

	result := Result{
		Mbps:     float64(bytes) * 8 / 1e6 / elapsed.Seconds(),
		Bytes:    bytes,
		Duration: elapsed,
	}
	p.logger.Info("downlink measured",
		"mbps", result.Mbps,
		"bytes", result.Bytes,
		"duration", result.Duration,
	)
	return result, nil
}
