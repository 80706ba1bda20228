// Package interfaces defines the contracts between the provisioner's
// components without implementation details.
package interfaces

import (
	"context"
	"errors"
)

// Sentinel errors shared across implementations.
var (
	// ErrUnsupportedScheme is returned by the source fetcher factory for an
	// unknown location URI scheme.
	ErrUnsupportedScheme = errors.New("unsupported source scheme")

	// ErrEntryFileMissing is returned when the fetched application tree does
	// not contain the expected entry-point file.
	ErrEntryFileMissing = errors.New("application entry file not found")

	// ErrSecretUnavailable is returned when a secret source cannot produce
	// the signing key.
	ErrSecretUnavailable = errors.New("secret unavailable")
)

// CommandRunner executes external system tools (apt, ufw, systemctl, certbot,
// nginx, git). Their contract is "exit code 0 on success"; implementations
// fold captured output into the returned error.
type CommandRunner interface {
	// Run executes a command, discarding output unless it fails.
	Run(ctx context.Context, name string, args ...string) error

	// RunAs executes a command impersonating the given system user.
	RunAs(ctx context.Context, user string, name string, args ...string) error

	// Output executes a command and returns its trimmed stdout.
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// SourceFetcher materializes the application source tree at a destination
// directory. Implementations are created by the sources factory from a
// location URI.
type SourceFetcher interface {
	// Fetch populates dstDir with the application tree.
	Fetch(ctx context.Context, dstDir string) error

	// Name returns a short identifier for logging.
	Name() string
}

// SecretSource produces the application signing key.
type SecretSource interface {
	// SecretKey returns the signing key value.
	SecretKey(ctx context.Context) (string, error)

	// Name returns a short identifier for logging ("static", "generated", "vault").
	Name() string
}

// PublicIPResolver discovers the host's externally reachable address,
// best-effort. Implementations return an empty string when discovery fails.
type PublicIPResolver interface {
	PublicIP(ctx context.Context) string
}
