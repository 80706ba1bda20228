package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInputs() Inputs {
	return Inputs{
		MongoURI:  "mongodb://localhost/notes",
		SecretKey: "k",
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(validInputs())
	require.NoError(t, err)

	assert.Equal(t, "secure-notes", cfg.AppName)
	assert.Equal(t, "secure-notes", cfg.ServiceName)
	assert.Equal(t, "/opt/secure-notes", cfg.InstallPath)
	assert.Equal(t, "notes", cfg.ServiceUser)
	assert.Equal(t, 8000, cfg.AppPort)
	assert.Equal(t, 3, cfg.GunicornWorkers)
	assert.Equal(t, SentinelDomain, cfg.DomainName)
	assert.Equal(t, "file://.", cfg.SourceURI)
	assert.Equal(t, "/var/lib/secure-notes/deploy.db", cfg.StateDB)
	assert.Equal(t, DefaultPackages, cfg.Packages)
	assert.Equal(t, 2*time.Second, cfg.HealthInterval)
	assert.Equal(t, 30*time.Second, cfg.HealthTimeout)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Inputs)
	}{
		{"missing mongo uri", func(in *Inputs) { in.MongoURI = "" }},
		{"blank mongo uri", func(in *Inputs) { in.MongoURI = "   " }},
		{"unresolved secret", func(in *Inputs) { in.SecretKey = "" }},
		{"port out of range", func(in *Inputs) { in.AppPort = 70000 }},
		{"negative port", func(in *Inputs) { in.AppPort = -1 }},
		{"relative install path", func(in *Inputs) { in.InstallPath = "opt/notes" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInputs()
			tt.mutate(&in)
			_, err := Load(in)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingMongoURIIsNamedError(t *testing.T) {
	_, err := Load(Inputs{SecretKey: "k"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingMongoURI)
	assert.Contains(t, err.Error(), "MONGO_URI", "the operator must learn which variable to set")
}

func TestConfig_DomainHelpers(t *testing.T) {
	tests := []struct {
		domain     string
		hasDomain  bool
		looksValid bool
	}{
		{"localhost", false, false},
		{"notes.example.com", true, true},
		{"notes-internal", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			in := validInputs()
			in.DomainName = tt.domain
			cfg, err := Load(in)
			require.NoError(t, err)
			assert.Equal(t, tt.hasDomain, cfg.HasDomain())
			assert.Equal(t, tt.looksValid, cfg.DomainLooksValid())
		})
	}
}

func TestConfig_Paths(t *testing.T) {
	cfg, err := Load(validInputs())
	require.NoError(t, err)

	assert.Equal(t, "/opt/secure-notes/.env", cfg.EnvFilePath())
	assert.Equal(t, "/opt/secure-notes/venv", cfg.VenvPath())
	assert.Equal(t, "/etc/systemd/system/secure-notes.service", cfg.UnitFilePath())
}

func TestLoad_Manifest(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "deploy.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
packages: [python3, nginx]
app_port: 9000
gunicorn:
  workers: 5
service_user: webapp
health:
  interval: 500ms
  timeout: 1m
`), 0644))

	in := validInputs()
	in.ManifestPath = manifest
	cfg, err := Load(in)
	require.NoError(t, err)

	assert.Equal(t, []string{"python3", "nginx"}, cfg.Packages)
	assert.Equal(t, 9000, cfg.AppPort)
	assert.Equal(t, 5, cfg.GunicornWorkers)
	assert.Equal(t, "webapp", cfg.ServiceUser)
	assert.Equal(t, 500*time.Millisecond, cfg.HealthInterval)
	assert.Equal(t, time.Minute, cfg.HealthTimeout)
}

func TestLoad_ManifestPartial(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "deploy.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("app_port: 8080\n"), 0644))

	in := validInputs()
	in.ManifestPath = manifest
	cfg, err := Load(in)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.AppPort)
	assert.Equal(t, DefaultPackages, cfg.Packages, "unset manifest fields keep defaults")
	assert.Equal(t, "notes", cfg.ServiceUser)
}

func TestLoad_ManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "packages: ["},
		{"invalid duration", "health:\n  interval: soon\n"},
		{"port override out of range", "app_port: 123456\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manifest := filepath.Join(t.TempDir(), "deploy.yaml")
			require.NoError(t, os.WriteFile(manifest, []byte(tt.content), 0644))

			in := validInputs()
			in.ManifestPath = manifest
			_, err := Load(in)
			assert.Error(t, err)
		})
	}
}

func TestLoad_ManifestMissingFile(t *testing.T) {
	in := validInputs()
	in.ManifestPath = filepath.Join(t.TempDir(), "nope.yaml")
	_, err := Load(in)
	assert.Error(t, err)
}
