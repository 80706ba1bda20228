// Package sysutil wraps execution of external system tools and the small
// amount of user/file plumbing the steps share.
package sysutil

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"

	"github.com/securenotes/provisioner/interfaces"
)

// ExecRunner runs commands on the local host. It captures combined output
// and folds it into the error on failure, since apt/ufw/certbot diagnostics
// only exist on their stdout/stderr.
type ExecRunner struct {
	log *slog.Logger
}

// NewExecRunner creates the production command runner.
func NewExecRunner(log *slog.Logger) *ExecRunner {
	return &ExecRunner{log: log}
}

var _ interfaces.CommandRunner = (*ExecRunner)(nil)

// Run executes a command, returning an error containing the tool's output on
// non-zero exit.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	return r.run(ctx, name, args...)
}

// RunAs executes a command impersonating a system user. Package installs
// into the venv must never run as the elevated caller.
func (r *ExecRunner) RunAs(ctx context.Context, asUser string, name string, args ...string) error {
	full := append([]string{"-u", asUser, "--", name}, args...)
	return r.run(ctx, "runuser", full...)
}

// Output executes a command and returns its trimmed stdout.
func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	r.log.Debug("Executing", "cmd", name, "args", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "DEBIAN_FRONTEND=noninteractive")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", commandError(name, args, stderr.Bytes(), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (r *ExecRunner) run(ctx context.Context, name string, args ...string) error {
	r.log.Debug("Executing", "cmd", name, "args", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "DEBIAN_FRONTEND=noninteractive")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return commandError(name, args, out, err)
	}
	return nil
}

func commandError(name string, args []string, out []byte, err error) error {
	tail := strings.TrimSpace(string(out))
	if len(tail) > 2048 {
		tail = "..." + tail[len(tail)-2048:]
	}
	if tail == "" {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return fmt.Errorf("%s %s: %w\n%s", name, strings.Join(args, " "), err, tail)
}

// WriteExecutable writes a world-executable script, forcing the mode even
// when the file already exists.
func WriteExecutable(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0755); err != nil {
		return err
	}
	return os.Chmod(path, 0755)
}

// UserExists reports whether a system account is already present.
func UserExists(name string) bool {
	_, err := user.Lookup(name)
	return err == nil
}

// WriteFileOwned writes a file with the given mode and hands ownership to
// the named user (primary group). The mode is forced even when the file
// already exists.
func WriteFileOwned(path string, data []byte, mode os.FileMode, owner string) error {
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("could not write %s: %w", path, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("could not chmod %s: %w", path, err)
	}

	u, err := user.Lookup(owner)
	if err != nil {
		return fmt.Errorf("could not look up user %s: %w", owner, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("invalid uid for %s: %w", owner, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("invalid gid for %s: %w", owner, err)
	}
	if err := os.Chown(path, uid, gid); err != nil {
		return fmt.Errorf("could not chown %s: %w", path, err)
	}
	return nil
}
