package steps

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/securenotes/provisioner/config"
	"github.com/securenotes/provisioner/interfaces"
)

// CreateServiceUser creates the privilege-restricted account the application
// runs as. Existence-checked, so this step is naturally idempotent.
type CreateServiceUser struct {
	cfg    *config.Config
	runner interfaces.CommandRunner
	log    *slog.Logger

	// userExists is swappable for tests.
	userExists func(name string) bool
}

func NewCreateServiceUser(cfg *config.Config, runner interfaces.CommandRunner, log *slog.Logger, userExists func(string) bool) *CreateServiceUser {
	return &CreateServiceUser{cfg: cfg, runner: runner, log: log, userExists: userExists}
}

func (s *CreateServiceUser) Name() string { return "create-service-user" }

func (s *CreateServiceUser) Run(ctx context.Context) error {
	if s.userExists(s.cfg.ServiceUser) {
		s.log.Info("Service user already exists", "user", s.cfg.ServiceUser)
		return nil
	}

	s.log.Info("Creating service user", "user", s.cfg.ServiceUser)
	err := s.runner.Run(ctx, "useradd",
		"--system",
		"--shell", "/usr/sbin/nologin",
		"--home-dir", s.cfg.InstallPath,
		"--no-create-home",
		s.cfg.ServiceUser)
	if err != nil {
		return fmt.Errorf("could not create user %s: %w", s.cfg.ServiceUser, err)
	}
	return nil
}
