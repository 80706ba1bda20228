package steps

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securenotes/provisioner/config"
	"github.com/securenotes/provisioner/hostinfo"
)

func TestRenderSummary(t *testing.T) {
	tests := []struct {
		name     string
		domain   string
		publicIP string
		wantURL  string
	}{
		{"domain configured", "notes.example.com", "203.0.113.7", "https://notes.example.com"},
		{"sentinel domain uses ip", config.SentinelDomain, "203.0.113.7", "http://203.0.113.7"},
		{"ip discovery failed", config.SentinelDomain, "", "http://" + hostinfo.IPPlaceholder},
		{"dotless domain falls back to ip", "notes-internal", "203.0.113.7", "http://203.0.113.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			banner := RenderSummary(certConfig(t, tt.domain), tt.publicIP)
			assert.Contains(t, banner, "Application URL:  "+tt.wantURL)
		})
	}
}

func TestRenderSummary_GeneratedSecretNote(t *testing.T) {
	cfg, err := config.Load(config.Inputs{
		MongoURI:     "mongodb://localhost/notes",
		SecretKey:    "generated-value",
		GeneratedKey: true,
	})
	require.NoError(t, err)

	banner := RenderSummary(cfg, "")
	assert.Contains(t, banner, "SECRET_KEY was generated")

	cfg.GeneratedSecret = false
	assert.NotContains(t, RenderSummary(cfg, ""), "SECRET_KEY was generated")
}

func TestSummaryStep(t *testing.T) {
	var out bytes.Buffer
	step := NewSummary(testConfig(), &fakeResolver{ip: "198.51.100.2"}, &out, testLogger())

	require.NoError(t, step.Run(context.Background()))
	assert.Contains(t, out.String(), "deployment complete")
	assert.Contains(t, out.String(), "198.51.100.2")
	assert.Contains(t, out.String(), "secure-notes-restart")
}
