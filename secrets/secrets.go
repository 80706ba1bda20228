// Package secrets resolves the application signing key. Three sources exist:
// a static value handed in by the operator, a generated random key, and a
// Vault KV v2 field for fleets that centralize secrets.
package secrets

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	vault "github.com/hashicorp/vault/api"

	"github.com/securenotes/provisioner/interfaces"
)

// StaticSource returns a key supplied via flag or environment.
type StaticSource struct {
	Key string
}

func (s *StaticSource) SecretKey(ctx context.Context) (string, error) {
	if s.Key == "" {
		return "", interfaces.ErrSecretUnavailable
	}
	return s.Key, nil
}

func (s *StaticSource) Name() string { return "static" }

// GeneratedSource creates a fresh 256-bit key, hex encoded. The value is not
// persisted anywhere except the rendered env file, so the caller must log it
// exactly once for operator capture.
type GeneratedSource struct{}

func (s *GeneratedSource) SecretKey(ctx context.Context) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate secret key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *GeneratedSource) Name() string { return "generated" }

// VaultSource reads the signing key from a KV v2 secret. The client honors
// the standard VAULT_ADDR/VAULT_TOKEN environment.
type VaultSource struct {
	client *vault.Client
	mount  string
	path   string
	field  string
	log    *slog.Logger
}

// NewVaultSource creates a Vault-backed secret source. secretPath has the
// form "<mount>/<path>", e.g. "secret/secure-notes"; the key is read from
// the "secret_key" field.
func NewVaultSource(secretPath string, log *slog.Logger) (*VaultSource, error) {
	mount, path, ok := strings.Cut(strings.Trim(secretPath, "/"), "/")
	if !ok || mount == "" || path == "" {
		return nil, fmt.Errorf("invalid vault secret path %q, expected <mount>/<path>", secretPath)
	}

	client, err := vault.NewClient(vault.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not create vault client: %w", err)
	}

	return &VaultSource{
		client: client,
		mount:  mount,
		path:   path,
		field:  "secret_key",
		log:    log,
	}, nil
}

func (s *VaultSource) SecretKey(ctx context.Context) (string, error) {
	secret, err := s.client.KVv2(s.mount).Get(ctx, s.path)
	if err != nil {
		return "", fmt.Errorf("vault read %s/%s: %w", s.mount, s.path, err)
	}

	value, ok := secret.Data[s.field].(string)
	if !ok || value == "" {
		s.log.Warn("Vault secret present but field missing", "mount", s.mount, "path", s.path, "field", s.field)
		return "", interfaces.ErrSecretUnavailable
	}
	return value, nil
}

func (s *VaultSource) Name() string { return "vault" }
