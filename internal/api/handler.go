package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sparta-security/sparta/internal/aggregator"
	apperrors "github.com/sparta-security/sparta/internal/errors"
	"github.com/sparta-security/sparta/internal/state"
)

// Handler serves read-only scan results from the committed file tree.
type Handler struct {
	reportsDir string
	store      *state.Store
}

// NewHandler creates a new API handler
func NewHandler(reportsDir string, store *state.Store) *Handler {
	return &Handler{
		reportsDir: reportsDir,
		store:      store,
	}
}

// HealthCheck returns the service status
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetSummary returns the aggregated scan statistics
// GET /api/v1/summary
func (h *Handler) GetSummary(c *gin.Context) {
	reports, err := aggregator.LoadReports(h.reportsDir)
	if err != nil {
		respondError(c, apperrors.NewNotFoundError("scan reports"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": aggregator.Aggregate(reports),
	})
}

// GetOrgState returns the scan state summary for an organization
// GET /api/v1/orgs/:org/state?date=YYYYMMDD
func (h *Handler) GetOrgState(c *gin.Context) {
	org := c.Param("org")
	scanDate := c.Query("date")
	if scanDate == "" {
		scanDate = time.Now().UTC().Format("20060102")
	}

	summary, err := h.store.Summary(org, scanDate)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": summary,
	})
}

// GetCVE returns every occurrence of a CVE across stored reports
// GET /api/v1/cves/:cve
func (h *Handler) GetCVE(c *gin.Context) {
	findings, err := aggregator.FindCVE(h.reportsDir, c.Param("cve"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  findings,
		"count": len(findings),
	})
}

// respondError maps application errors onto HTTP statuses
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeBadRequest:
			status = http.StatusBadRequest
		case apperrors.ErrCodeStateCorrupt:
			status = http.StatusUnprocessableEntity
		}
	}

	c.JSON(status, gin.H{
		"error": err.Error(),
	})
}
