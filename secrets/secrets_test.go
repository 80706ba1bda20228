package secrets

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securenotes/provisioner/interfaces"
)

func TestStaticSource(t *testing.T) {
	src := &StaticSource{Key: "operator-supplied"}
	key, err := src.SecretKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "operator-supplied", key)
	assert.Equal(t, "static", src.Name())

	_, err = (&StaticSource{}).SecretKey(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrSecretUnavailable)
}

func TestGeneratedSource(t *testing.T) {
	src := &GeneratedSource{}

	first, err := src.SecretKey(context.Background())
	require.NoError(t, err)
	assert.Len(t, first, 64, "256-bit key, hex encoded")
	_, err = hex.DecodeString(first)
	require.NoError(t, err)

	second, err := src.SecretKey(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, "generated", src.Name())
}

func TestNewVaultSource_PathParsing(t *testing.T) {
	tests := []struct {
		path      string
		wantMount string
		wantPath  string
		wantErr   bool
	}{
		{"secret/secure-notes", "secret", "secure-notes", false},
		{"/secret/apps/notes/", "secret", "apps/notes", false},
		{"secret", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			src, err := NewVaultSource(tt.path, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMount, src.mount)
			assert.Equal(t, tt.wantPath, src.path)
			assert.Equal(t, "vault", src.Name())
		})
	}
}
