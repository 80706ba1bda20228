package steps

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallPackages(t *testing.T) {
	cfg := testConfig()
	runner := newFakeRunner()

	step := NewInstallPackages(cfg, runner, testLogger())
	require.NoError(t, step.Run(context.Background()))

	assert.True(t, runner.called("apt-get update -qq"))
	assert.True(t, runner.called("apt-get install -y -qq "+strings.Join(cfg.Packages, " ")))
}

func TestInstallPackages_UpdateFailureAborts(t *testing.T) {
	runner := newFakeRunner()
	runner.fail["apt-get update -qq"] = errors.New("mirror unreachable")

	step := NewInstallPackages(testConfig(), runner, testLogger())
	err := step.Run(context.Background())
	require.Error(t, err)
	assert.False(t, runner.calledPrefix("apt-get install"), "install must not run after a failed update")
}
