package collector

import (
	"context"

	"github.com/sparta-security/sparta/internal/domain"
)

// Lister defines the interface for listing organization repositories
type Lister interface {
	// ListRepositories retrieves all repositories for an organization
	ListRepositories(ctx context.Context, org string) ([]domain.Repository, error)
}

// ListerFactory builds a Lister bound to one organization's credential.
// The orchestrator creates a fresh lister per organization because each
// one may use a different token.
type ListerFactory func(token string) Lister
