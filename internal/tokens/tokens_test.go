package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/sparta-security/sparta/internal/errors"
)

func TestTokenForOrg_MapEntryWins(t *testing.T) {
	t.Parallel()

	p := NewMapProvider(map[string]string{"acme": "ghp_acme"}, "ghp_default")

	token, err := p.TokenForOrg("acme")
	require.NoError(t, err)
	assert.Equal(t, "ghp_acme", token)
}

func TestTokenForOrg_FallsBackToDefault(t *testing.T) {
	t.Parallel()

	p := NewMapProvider(map[string]string{"acme": "ghp_acme"}, "ghp_default")

	token, err := p.TokenForOrg("globex")
	require.NoError(t, err)
	assert.Equal(t, "ghp_default", token)
}

func TestTokenForOrg_EmptyMapEntryFallsBack(t *testing.T) {
	t.Parallel()

	p := NewMapProvider(map[string]string{"acme": ""}, "ghp_default")

	token, err := p.TokenForOrg("acme")
	require.NoError(t, err)
	assert.Equal(t, "ghp_default", token)
}

func TestTokenForOrg_NoCredential(t *testing.T) {
	t.Parallel()

	p := NewMapProvider(nil, "")

	_, err := p.TokenForOrg("acme")
	require.Error(t, err)
	assert.True(t, apperrors.IsCredentialUnavailable(err))
	assert.Contains(t, err.Error(), "acme")
}
