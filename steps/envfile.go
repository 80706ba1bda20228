package steps

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/securenotes/provisioner/config"
	"github.com/securenotes/provisioner/sysutil"
)

// WriteEnvFile materializes the environment file, the sole channel by which
// runtime secrets reach the application. The file is regenerated wholesale
// on every run; manual edits between runs are lost.
type WriteEnvFile struct {
	cfg *config.Config
	log *slog.Logger

	// writeOwned is swappable for tests that run without the service user.
	writeOwned func(path string, data []byte, mode os.FileMode, owner string) error
}

func NewWriteEnvFile(cfg *config.Config, log *slog.Logger) *WriteEnvFile {
	return &WriteEnvFile{cfg: cfg, log: log, writeOwned: sysutil.WriteFileOwned}
}

func (s *WriteEnvFile) Name() string { return "write-env-file" }

func (s *WriteEnvFile) Run(ctx context.Context) error {
	path := s.cfg.EnvFilePath()
	s.log.Info("Writing environment file", "path", path)

	if err := s.writeOwned(path, []byte(RenderEnvFile(s.cfg)), 0600, s.cfg.ServiceUser); err != nil {
		return fmt.Errorf("could not materialize environment file: %w", err)
	}
	return nil
}

// RenderEnvFile produces the env file content. Deterministic for a given
// config, which is what makes re-runs idempotent.
func RenderEnvFile(cfg *config.Config) string {
	return fmt.Sprintf(
		"SECRET_KEY=%s\nMONGO_URI=%s\nFLASK_ENV=production\nPORT=%d\n",
		cfg.SecretKey, cfg.MongoURI, cfg.AppPort)
}
