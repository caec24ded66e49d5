package domain

import (
	"path/filepath"
	"time"
)

// ReportFileName is the artifact the external scanner writes for each
// repository scan. The orchestration core decides placement, not content.
const ReportFileName = "trivy-report.json"

// ReportPath returns the report directory for one repository scan:
// {reports-root}/{org}/{repo}/{date}.
func ReportPath(reportsRoot, org, repo, scanDate string) string {
	return filepath.Join(reportsRoot, org, repo, scanDate)
}

// ErrorReport is the human-facing record of one terminal scan failure.
// Reports are append-only and independent of the scan state.
type ErrorReport struct {
	Error      string    `json:"error"`
	Repository string    `json:"repository"`
	Timestamp  time.Time `json:"timestamp"`
	CloneURL   string    `json:"clone_url"`
	RetryCount int       `json:"retry_count"`
	RunID      string    `json:"run_id,omitempty"`
}

// BatchResult is the artifact one batch executor writes for itself so
// that parallel batches never mutate the shared state file concurrently.
// Results are merged into the authoritative per-org state by a single
// reconciliation step after all batches report.
type BatchResult struct {
	BatchID    string          `json:"batch_id"`
	Org        string          `json:"org"`
	Completed  []string        `json:"completed"`
	Failed     []FailureRecord `json:"failed"`
	FinishedAt time.Time       `json:"finished_at"`
}

// FailureRecord is one failure entry for a repository. The current
// status of a repository is given by its latest record.
type FailureRecord struct {
	Repo       string    `json:"repo"`
	Error      string    `json:"error"`
	RetryCount int       `json:"retry_count"`
	Timestamp  time.Time `json:"timestamp"`
}
