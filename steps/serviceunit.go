package steps

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/template"

	"github.com/securenotes/provisioner/config"
	"github.com/securenotes/provisioner/interfaces"
)

// unitTemplate binds the service account, working directory, environment
// file and the gunicorn start command to a restart-always unit. gunicorn is
// bound to loopback only; the reverse proxy is the sole public surface.
var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Secure Notes application
After=network.target

[Service]
Type=simple
User={{.ServiceUser}}
Group={{.ServiceUser}}
WorkingDirectory={{.InstallPath}}
EnvironmentFile={{.EnvFile}}
ExecStart={{.Gunicorn}} --workers {{.Workers}} --bind 127.0.0.1:{{.Port}} app:app
Restart=always
RestartSec=5

[Install]
WantedBy=multi-user.target
`))

type unitParams struct {
	ServiceUser string
	InstallPath string
	EnvFile     string
	Gunicorn    string
	Workers     int
	Port        int
}

// InstallServiceUnit renders and registers the systemd unit. Each run fully
// overwrites the previous definition; the service is enabled for boot but
// not started here.
type InstallServiceUnit struct {
	cfg    *config.Config
	runner interfaces.CommandRunner
	log    *slog.Logger

	// UnitPath is overridable for tests.
	UnitPath string
}

func NewInstallServiceUnit(cfg *config.Config, runner interfaces.CommandRunner, log *slog.Logger) *InstallServiceUnit {
	return &InstallServiceUnit{cfg: cfg, runner: runner, log: log, UnitPath: cfg.UnitFilePath()}
}

func (s *InstallServiceUnit) Name() string { return "install-service-unit" }

func (s *InstallServiceUnit) Run(ctx context.Context) error {
	unit, err := RenderServiceUnit(s.cfg)
	if err != nil {
		return err
	}

	s.log.Info("Installing service unit", "path", s.UnitPath)
	if err := os.WriteFile(s.UnitPath, []byte(unit), 0644); err != nil {
		return fmt.Errorf("could not write service unit: %w", err)
	}

	if err := s.runner.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("daemon-reload failed: %w", err)
	}
	if err := s.runner.Run(ctx, "systemctl", "enable", s.cfg.ServiceName); err != nil {
		return fmt.Errorf("could not enable %s: %w", s.cfg.ServiceName, err)
	}
	return nil
}

// RenderServiceUnit produces the unit file content for the config.
func RenderServiceUnit(cfg *config.Config) (string, error) {
	var buf bytes.Buffer
	err := unitTemplate.Execute(&buf, unitParams{
		ServiceUser: cfg.ServiceUser,
		InstallPath: cfg.InstallPath,
		EnvFile:     cfg.EnvFilePath(),
		Gunicorn:    cfg.VenvPath() + "/bin/gunicorn",
		Workers:     cfg.GunicornWorkers,
		Port:        cfg.AppPort,
	})
	if err != nil {
		return "", fmt.Errorf("could not render service unit: %w", err)
	}
	return buf.String(), nil
}
