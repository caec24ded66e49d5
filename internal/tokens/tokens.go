// Package tokens resolves the bearer credential for each organization.
// Token issuance itself is an external collaborator; this package only
// maps organizations onto already-issued tokens.
package tokens

import (
	apperrors "github.com/sparta-security/sparta/internal/errors"
)

// Provider supplies a bearer credential per organization.
type Provider interface {
	TokenForOrg(org string) (string, error)
}

// mapProvider resolves tokens from a per-organization map with a single
// default fallback.
type mapProvider struct {
	tokenMap     map[string]string
	defaultToken string
}

// NewMapProvider creates a Provider backed by a per-org token map and a
// default fallback token.
func NewMapProvider(tokenMap map[string]string, defaultToken string) Provider {
	return &mapProvider{
		tokenMap:     tokenMap,
		defaultToken: defaultToken,
	}
}

// TokenForOrg returns the token for an organization: the map entry if
// present, else the default token. With neither, the organization is
// skipped by the orchestrator via CredentialUnavailable.
func (p *mapProvider) TokenForOrg(org string) (string, error) {
	if token, ok := p.tokenMap[org]; ok && token != "" {
		return token, nil
	}
	if p.defaultToken != "" {
		return p.defaultToken, nil
	}
	return "", apperrors.NewCredentialUnavailableError(org)
}
