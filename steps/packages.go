// Package steps implements the ordered provisioning actions the pipeline
// runs: package install, firewall, service account, source install, runtime
// build, config materialization, service registration, reverse proxy,
// certificate issuance, service start/verify, operator tooling and the
// completion summary.
package steps

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/securenotes/provisioner/config"
	"github.com/securenotes/provisioner/interfaces"
)

// InstallPackages installs the fixed OS package set. An apt failure aborts
// the run; there is no per-step retry.
type InstallPackages struct {
	cfg    *config.Config
	runner interfaces.CommandRunner
	log    *slog.Logger
}

func NewInstallPackages(cfg *config.Config, runner interfaces.CommandRunner, log *slog.Logger) *InstallPackages {
	return &InstallPackages{cfg: cfg, runner: runner, log: log}
}

func (s *InstallPackages) Name() string { return "install-packages" }

func (s *InstallPackages) Run(ctx context.Context) error {
	s.log.Info("Updating package index")
	if err := s.runner.Run(ctx, "apt-get", "update", "-qq"); err != nil {
		return fmt.Errorf("apt-get update failed: %w", err)
	}

	s.log.Info("Installing packages", "count", len(s.cfg.Packages))
	args := append([]string{"install", "-y", "-qq"}, s.cfg.Packages...)
	if err := s.runner.Run(ctx, "apt-get", args...); err != nil {
		return fmt.Errorf("package installation failed: %w", err)
	}
	return nil
}
