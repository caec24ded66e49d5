package scanner

import (
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sparta-security/sparta/internal/domain"
)

// Cloner acquires a repository's content for scanning.
type Cloner interface {
	Clone(ctx context.Context, repo domain.Repository, destDir, token string) error
}

// GitCloner shallow-clones repositories with the git CLI. The token
// travels in an auth header set per invocation, never in the clone URL,
// so it cannot leak through process listings or git output.
type GitCloner struct {
	Timeout time.Duration
}

// NewGitCloner creates a cloner with the given per-clone timeout.
func NewGitCloner(timeout time.Duration) *GitCloner {
	return &GitCloner{Timeout: timeout}
}

// Clone performs a depth-1 clone of the repository's default branch
// into destDir.
func (g *GitCloner) Clone(ctx context.Context, repo domain.Repository, destDir, token string) error {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	args := []string{"-c", "credential.helper="}
	if token != "" {
		auth := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + token))
		args = append(args, "-c", "http.https://github.com/.extraheader=Authorization: Basic "+auth)
	}
	args = append(args, "clone", "--depth", "1", "--branch", repo.DefaultBranch, repo.CloneURL(), destDir)

	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("git clone timeout for %s after %s", repo.FullName, g.Timeout)
	}
	if err != nil {
		msg := Redact(strings.TrimSpace(string(out)), token)
		return fmt.Errorf("git clone failed for %s: %s", repo.FullName, msg)
	}
	return nil
}
