package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateOrgName(t *testing.T) {
	t.Parallel()

	valid := []string{"acme", "Acme-Corp", "a", "org123", strings.Repeat("a", 39)}
	for _, name := range valid {
		assert.NoError(t, ValidateOrgName(name), "org %q", name)
	}

	invalid := []string{"", "-leading", "has space", "org/evil", "../escape",
		"org;rm", strings.Repeat("a", 40)}
	for _, name := range invalid {
		assert.Error(t, ValidateOrgName(name), "org %q", name)
	}
}

func TestValidateRepoName(t *testing.T) {
	t.Parallel()

	valid := []string{"api", "my-repo", "my.repo", "my_repo", "Repo123", strings.Repeat("r", 100)}
	for _, name := range valid {
		assert.NoError(t, ValidateRepoName(name), "repo %q", name)
	}

	invalid := []string{"", "has space", "repo/evil", "repo;rm -rf", "répo",
		strings.Repeat("r", 101)}
	for _, name := range invalid {
		assert.Error(t, ValidateRepoName(name), "repo %q", name)
	}
}

func TestValidateRepoFullName(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateRepoFullName("acme/api"))
	assert.Error(t, ValidateRepoFullName("acme"))
	assert.Error(t, ValidateRepoFullName("acme/api/extra"))
	assert.Error(t, ValidateRepoFullName("-bad/api"))
	assert.Error(t, ValidateRepoFullName("acme/bad name"))
}

func TestBatchID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "batch-1", BatchID("acme", 0, false))
	assert.Equal(t, "batch-3", BatchID("acme", 2, false))
	assert.Equal(t, "acme-batch-1", BatchID("acme", 0, true))
	assert.Equal(t, "globex-batch-2", BatchID("globex", 1, true))
}

func TestCloneURL(t *testing.T) {
	t.Parallel()

	repo := Repository{Org: "acme", Name: "api", FullName: "acme/api"}
	assert.Equal(t, "https://github.com/acme/api.git", repo.CloneURL())
}

func TestReportPath(t *testing.T) {
	t.Parallel()

	path := ReportPath("vulnerability-reports", "acme", "api", "20260831")
	assert.Equal(t, "vulnerability-reports/acme/api/20260831", path)
}
