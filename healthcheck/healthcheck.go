// Package healthcheck probes an HTTP endpoint with a bounded backoff poll.
// Early startup races are expected, so the caller decides whether a timeout
// is fatal or only worth a warning.
package healthcheck

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Prober polls an HTTP health endpoint until it answers with a 2xx status
// or the overall timeout elapses. Attempts back off exponentially from the
// base interval.
type Prober struct {
	client   *http.Client
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
}

// NewProber creates a prober. interval is the initial delay between
// attempts, timeout bounds the whole poll.
func NewProber(interval, timeout time.Duration, log *slog.Logger) *Prober {
	return &Prober{
		client:   &http.Client{Timeout: 5 * time.Second},
		interval: interval,
		timeout:  timeout,
		log:      log,
	}
}

// Probe polls url. Returns nil on the first 2xx response, or the last
// observed error once the timeout elapses.
func (p *Prober) Probe(ctx context.Context, url string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.interval
	bo.MaxInterval = 8 * p.interval
	bo.MaxElapsedTime = p.timeout

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		return p.probeOnce(ctx, url)
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return fmt.Errorf("health probe gave up after %d attempts: %w", attempt, err)
	}

	p.log.Debug("Health probe succeeded", "url", url, "attempt", attempt)
	return nil
}

func (p *Prober) probeOnce(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
