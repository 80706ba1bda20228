package steps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securenotes/provisioner/config"
	"github.com/securenotes/provisioner/pipeline"
)

func certConfig(t *testing.T, domain string) *config.Config {
	t.Helper()
	cfg, err := config.Load(config.Inputs{
		MongoURI:   "mongodb://localhost/notes",
		SecretKey:  "k",
		DomainName: domain,
	})
	require.NoError(t, err)
	return cfg
}

func TestIssueCertificate_SkipStates(t *testing.T) {
	tests := []struct {
		name   string
		domain string
	}{
		{"sentinel domain", config.SentinelDomain},
		{"empty domain defaults to sentinel", ""},
		{"dotless domain", "notes-internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			step := NewIssueCertificate(certConfig(t, tt.domain), runner, &fakeResolver{}, testLogger())

			err := step.Run(context.Background())
			require.Error(t, err)
			assert.True(t, pipeline.IsWarning(err), "skip must be a warning, not a failure")
			assert.False(t, runner.calledPrefix("certbot"), "no issuance attempt expected")
		})
	}
}

func TestIssueCertificate_IssuanceFailureIsWarning(t *testing.T) {
	runner := newFakeRunner()
	certbotLine := "certbot --nginx -d notes.example.com --non-interactive --agree-tos --register-unsafely-without-email --redirect"
	runner.fail[certbotLine] = errors.New("acme challenge failed")

	step := NewIssueCertificate(certConfig(t, "notes.example.com"), runner, &fakeResolver{}, testLogger())
	step.nameserver = "127.0.0.1:1" // unreachable, preflight warns and moves on
	step.RenewCronPath = filepath.Join(t.TempDir(), "renew")

	err := step.Run(context.Background())
	require.Error(t, err)
	assert.True(t, pipeline.IsWarning(err))
	assert.True(t, runner.called(certbotLine))

	_, statErr := os.Stat(step.RenewCronPath)
	assert.True(t, os.IsNotExist(statErr), "failed issuance must not register renewal")
}

func TestIssueCertificate_SuccessRegistersRenewal(t *testing.T) {
	runner := newFakeRunner()
	step := NewIssueCertificate(certConfig(t, "notes.example.com"), runner, &fakeResolver{ip: "203.0.113.7"}, testLogger())
	step.nameserver = "127.0.0.1:1"
	step.RenewCronPath = filepath.Join(t.TempDir(), "renew")

	require.NoError(t, step.Run(context.Background()))
	assert.True(t, runner.calledPrefix("certbot --nginx -d notes.example.com"))

	cron, err := os.ReadFile(step.RenewCronPath)
	require.NoError(t, err)
	assert.Contains(t, string(cron), "certbot renew --quiet")
	assert.Contains(t, string(cron), "systemctl reload nginx")
}
