package steps

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/securenotes/provisioner/config"
	"github.com/securenotes/provisioner/interfaces"
)

// BuildRuntime creates the isolated Python environment under the install
// path and installs the declared dependencies plus gunicorn. Every command
// impersonates the service user, never the elevated caller.
type BuildRuntime struct {
	cfg    *config.Config
	runner interfaces.CommandRunner
	log    *slog.Logger
}

func NewBuildRuntime(cfg *config.Config, runner interfaces.CommandRunner, log *slog.Logger) *BuildRuntime {
	return &BuildRuntime{cfg: cfg, runner: runner, log: log}
}

func (s *BuildRuntime) Name() string { return "build-runtime" }

func (s *BuildRuntime) Run(ctx context.Context) error {
	venv := s.cfg.VenvPath()
	pip := filepath.Join(venv, "bin", "pip")
	user := s.cfg.ServiceUser

	s.log.Info("Creating virtual environment", "path", venv)
	if err := s.runner.RunAs(ctx, user, "python3", "-m", "venv", venv); err != nil {
		return fmt.Errorf("could not create virtual environment: %w", err)
	}

	if err := s.runner.RunAs(ctx, user, pip, "install", "--quiet", "--upgrade", "pip"); err != nil {
		return fmt.Errorf("could not upgrade pip: %w", err)
	}

	requirements := filepath.Join(s.cfg.InstallPath, "requirements.txt")
	if _, err := os.Stat(requirements); err == nil {
		s.log.Info("Installing application dependencies", "manifest", requirements)
		if err := s.runner.RunAs(ctx, user, pip, "install", "--quiet", "-r", requirements); err != nil {
			return fmt.Errorf("dependency installation failed: %w", err)
		}
	} else {
		s.log.Warn("No requirements.txt in application tree, installing base runtime only")
	}

	// gunicorn is the production server referenced by the service unit.
	if err := s.runner.RunAs(ctx, user, pip, "install", "--quiet", "gunicorn"); err != nil {
		return fmt.Errorf("could not install gunicorn: %w", err)
	}
	return nil
}
