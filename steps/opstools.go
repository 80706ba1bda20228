package steps

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/securenotes/provisioner/config"
	"github.com/securenotes/provisioner/sysutil"
)

// InstallOpsTools writes the operator convenience commands. Overwrite-
// idempotent; the only failure mode is a filesystem error.
type InstallOpsTools struct {
	cfg *config.Config
	log *slog.Logger

	// BinDir is overridable for tests.
	BinDir string
}

func NewInstallOpsTools(cfg *config.Config, log *slog.Logger) *InstallOpsTools {
	return &InstallOpsTools{cfg: cfg, log: log, BinDir: "/usr/local/bin"}
}

func (s *InstallOpsTools) Name() string { return "install-ops-tools" }

func (s *InstallOpsTools) Run(ctx context.Context) error {
	for name, body := range OpsToolScripts(s.cfg) {
		path := filepath.Join(s.BinDir, name)
		if err := sysutil.WriteExecutable(path, []byte(body)); err != nil {
			return fmt.Errorf("could not install %s: %w", name, err)
		}
		s.log.Info("Installed operator command", "command", name)
	}
	return nil
}

// OpsToolScripts returns the three operator commands keyed by file name.
func OpsToolScripts(cfg *config.Config) map[string]string {
	svc := cfg.ServiceName
	restart := fmt.Sprintf("#!/bin/sh\nsystemctl restart %s && systemctl restart nginx\n", svc)
	logs := fmt.Sprintf("#!/bin/sh\nexec journalctl -u %s -f\n", svc)
	status := fmt.Sprintf(
		"#!/bin/sh\nsystemctl status %s --no-pager\necho\ncurl -fsS http://127.0.0.1:%d/health && echo\n",
		svc, cfg.AppPort)

	return map[string]string{
		cfg.AppName + "-restart": restart,
		cfg.AppName + "-logs":    logs,
		cfg.AppName + "-status":  status,
	}
}
