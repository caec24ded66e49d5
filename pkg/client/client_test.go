package client

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparta-security/sparta/internal/api"
	"github.com/sparta-security/sparta/internal/domain"
	"github.com/sparta-security/sparta/internal/state"
)

func setupServer(t *testing.T) (*Client, *state.Store, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	reportsDir := filepath.Join(dir, "reports")
	store := state.NewStore(dir, 100, 3)
	server := httptest.NewServer(api.SetupRoutes(api.NewHandler(reportsDir, store)))
	t.Cleanup(server.Close)
	return NewClient(server.URL), store, reportsDir
}

func TestHealthCheck(t *testing.T) {
	c, _, _ := setupServer(t)
	assert.NoError(t, c.HealthCheck())
}

func TestGetOrgState(t *testing.T) {
	c, store, _ := setupServer(t)
	_, err := store.Initialize("acme", "20260831", []domain.Repository{
		{Org: "acme", Name: "api", FullName: "acme/api"},
	})
	require.NoError(t, err)

	summary, err := c.GetOrgState("acme", "20260831")
	require.NoError(t, err)
	assert.Equal(t, "acme", summary.Org)
	assert.Equal(t, 1, summary.Pending)
}

func TestGetSummaryAndCVE(t *testing.T) {
	c, _, reportsDir := setupServer(t)

	reportDir := domain.ReportPath(reportsDir, "acme", "api", "20260831")
	require.NoError(t, os.MkdirAll(reportDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(reportDir, domain.ReportFileName),
		[]byte(`{"Results":[{"Vulnerabilities":[{"VulnerabilityID":"CVE-2024-1111","Severity":"CRITICAL","PkgName":"openssl"}]}]}`), 0o644))

	stats, err := c.GetSummary()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalScans)

	findings, err := c.GetCVE("CVE-2024-1111")
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "acme/api", findings[0].Repository)
}

func TestErrorResponsesSurfaceAsErrors(t *testing.T) {
	c, _, _ := setupServer(t)

	_, err := c.GetOrgState("acme", "20260831")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API error")
}
