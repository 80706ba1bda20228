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

// EntryFile is the application entry point whose presence marks a valid
// source tree.
const EntryFile = "app.py"

// InstallSources fetches the application tree into the install path and
// hands ownership to the service user. A tree without the entry file aborts
// the run.
type InstallSources struct {
	cfg     *config.Config
	fetcher interfaces.SourceFetcher
	runner  interfaces.CommandRunner
	log     *slog.Logger
}

func NewInstallSources(cfg *config.Config, fetcher interfaces.SourceFetcher, runner interfaces.CommandRunner, log *slog.Logger) *InstallSources {
	return &InstallSources{cfg: cfg, fetcher: fetcher, runner: runner, log: log}
}

func (s *InstallSources) Name() string { return "install-sources" }

func (s *InstallSources) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.InstallPath, 0755); err != nil {
		return fmt.Errorf("could not create install path: %w", err)
	}

	s.log.Info("Installing application source", "fetcher", s.fetcher.Name(), "dst", s.cfg.InstallPath)
	if err := s.fetcher.Fetch(ctx, s.cfg.InstallPath); err != nil {
		return err
	}

	entry := filepath.Join(s.cfg.InstallPath, EntryFile)
	if _, err := os.Stat(entry); err != nil {
		return fmt.Errorf("%w: %s (is the source URI pointing at the application checkout?)",
			interfaces.ErrEntryFileMissing, entry)
	}

	owner := s.cfg.ServiceUser + ":" + s.cfg.ServiceUser
	if err := s.runner.Run(ctx, "chown", "-R", owner, s.cfg.InstallPath); err != nil {
		return fmt.Errorf("could not assign ownership: %w", err)
	}
	return nil
}
