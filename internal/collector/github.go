package collector

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"

	"github.com/sparta-security/sparta/internal/domain"
	apperrors "github.com/sparta-security/sparta/internal/errors"
)

// githubLister implements Lister using the GitHub API
type githubLister struct {
	client      *github.Client
	rateLimiter RateLimiter
}

// NewGitHubLister creates a new GitHub repository lister authenticated
// with the given token
func NewGitHubLister(token string) Lister {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	client := github.NewClient(tc)

	return &githubLister{
		client:      client,
		rateLimiter: NewRateLimiter(),
	}
}

// ListRepositories retrieves all repositories for an organization.
// Repositories with names that fail validation are skipped with a
// warning rather than failing the whole listing.
func (c *githubLister) ListRepositories(ctx context.Context, org string) ([]domain.Repository, error) {
	if err := domain.ValidateOrgName(org); err != nil {
		return nil, apperrors.NewBadRequestError(err.Error())
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var allRepos []domain.Repository
	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		repos, resp, err := c.client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, classifyAPIError(org, resp, err)
		}

		c.updateRateLimitFromResponse(resp)

		for _, repo := range repos {
			if err := domain.ValidateRepoName(repo.GetName()); err != nil {
				fmt.Printf("Warning: skipping repository %s: %v\n", repo.GetName(), err)
				continue
			}
			branch := repo.GetDefaultBranch()
			if branch == "" {
				branch = "main"
			}
			allRepos = append(allRepos, domain.Repository{
				Org:           org,
				Name:          repo.GetName(),
				FullName:      repo.GetFullName(),
				IsPrivate:     repo.GetPrivate(),
				DefaultBranch: branch,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return allRepos, nil
}

// classifyAPIError maps a GitHub API failure onto the retry taxonomy.
// Auth and missing-org responses are permanent; rate limits and server
// errors are transient.
func classifyAPIError(org string, resp *github.Response, err error) error {
	wrapped := fmt.Errorf("failed to list repositories for %s: %w", org, err)
	if resp == nil {
		return apperrors.NewTransientError("github api unreachable", wrapped)
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return apperrors.NewPermanentError("github api rejected request", wrapped)
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return apperrors.NewTransientError("github api unavailable", wrapped)
	}
	return apperrors.NewInternalError("github api request failed", wrapped)
}

// updateRateLimitFromResponse updates the rate limiter from API response
func (c *githubLister) updateRateLimitFromResponse(resp *github.Response) {
	if resp != nil && resp.Rate.Remaining >= 0 {
		c.rateLimiter.UpdateLimit(resp.Rate.Remaining, resp.Rate.Reset.Time)
	}
}
