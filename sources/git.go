package sources

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/securenotes/provisioner/interfaces"
)

// GitFetcher clones the application repository with the git CLI installed by
// the package step.
type GitFetcher struct {
	remote string
	ref    string
	runner interfaces.CommandRunner
	log    *slog.Logger
}

// NewGitFetcher creates a fetcher cloning remote at ref (empty means the
// remote default branch).
func NewGitFetcher(remote, ref string, runner interfaces.CommandRunner, log *slog.Logger) *GitFetcher {
	return &GitFetcher{remote: remote, ref: ref, runner: runner, log: log}
}

// Fetch shallow-clones into a scratch directory, then moves the checkout
// into dstDir without the .git metadata.
func (g *GitFetcher) Fetch(ctx context.Context, dstDir string) error {
	scratch, err := os.MkdirTemp("", "secure-notes-src-*")
	if err != nil {
		return fmt.Errorf("could not create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	args := []string{"clone", "--depth", "1"}
	if g.ref != "" {
		args = append(args, "--branch", g.ref)
	}
	args = append(args, g.remote, scratch)

	g.log.Info("Cloning application source", "remote", g.remote, "ref", g.ref)
	if err := g.runner.Run(ctx, "git", args...); err != nil {
		return fmt.Errorf("git clone failed: %w", err)
	}

	if err := os.RemoveAll(filepath.Join(scratch, ".git")); err != nil {
		return fmt.Errorf("could not strip VCS metadata: %w", err)
	}

	local := NewFileFetcher(scratch, g.log)
	return local.Fetch(ctx, dstDir)
}

func (g *GitFetcher) Name() string {
	return fmt.Sprintf("git-%s", filepath.Base(g.remote))
}
