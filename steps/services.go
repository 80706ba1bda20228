package steps

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/securenotes/provisioner/config"
	"github.com/securenotes/provisioner/healthcheck"
	"github.com/securenotes/provisioner/interfaces"
	"github.com/securenotes/provisioner/pipeline"
)

// StartServices starts the application service, restarts the reverse proxy,
// enables both for boot, then verifies. Verification is a bounded poll of
// systemctl is-active rather than a fixed sleep; a non-active service is
// fatal with a journalctl tail logged as diagnostic. The final HTTP health
// probe only warns, since early-startup races are expected.
type StartServices struct {
	cfg    *config.Config
	runner interfaces.CommandRunner
	prober *healthcheck.Prober
	log    *slog.Logger

	// HealthURL is overridable for tests; empty derives the local proxy URL.
	HealthURL string
}

func NewStartServices(cfg *config.Config, runner interfaces.CommandRunner, prober *healthcheck.Prober, log *slog.Logger) *StartServices {
	return &StartServices{cfg: cfg, runner: runner, prober: prober, log: log}
}

func (s *StartServices) Name() string { return "start-services" }

func (s *StartServices) Run(ctx context.Context) error {
	s.log.Info("Starting application service", "service", s.cfg.ServiceName)
	if err := s.runner.Run(ctx, "systemctl", "start", s.cfg.ServiceName); err != nil {
		return fmt.Errorf("could not start %s: %w", s.cfg.ServiceName, err)
	}

	s.log.Info("Restarting reverse proxy")
	if err := s.runner.Run(ctx, "systemctl", "restart", "nginx"); err != nil {
		return fmt.Errorf("could not restart nginx: %w", err)
	}

	for _, svc := range []string{s.cfg.ServiceName, "nginx"} {
		if err := s.runner.Run(ctx, "systemctl", "enable", svc); err != nil {
			return fmt.Errorf("could not enable %s: %w", svc, err)
		}
	}

	if err := s.awaitActive(ctx, s.cfg.ServiceName); err != nil {
		s.dumpDiagnostics(ctx, s.cfg.ServiceName)
		return err
	}
	if err := s.awaitActive(ctx, "nginx"); err != nil {
		s.dumpDiagnostics(ctx, "nginx")
		return err
	}

	url := s.HealthURL
	if url == "" {
		url = "http://127.0.0.1/health"
	}
	if err := s.prober.Probe(ctx, url); err != nil {
		return pipeline.Warnf("health endpoint not answering yet (app may still be warming up): %v", err)
	}

	s.log.Info("Deployment verified", "health", url)
	return nil
}

// awaitActive polls systemctl is-active within the configured health window.
func (s *StartServices) awaitActive(ctx context.Context, service string) error {
	deadline := time.Now().Add(s.cfg.HealthTimeout)
	for {
		out, err := s.runner.Output(ctx, "systemctl", "is-active", service)
		if err == nil && out == "active" {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("service %s did not become active within %s", service, s.cfg.HealthTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.HealthInterval):
		}
	}
}

func (s *StartServices) dumpDiagnostics(ctx context.Context, service string) {
	out, err := s.runner.Output(ctx, "journalctl", "-u", service, "-n", "50", "--no-pager")
	if err != nil {
		s.log.Error("Could not collect service diagnostics", "service", service, "err", err)
		return
	}
	s.log.Error("Service failed to start, recent log follows", "service", service, "log", out)
}
