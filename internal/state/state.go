// Package state persists per-organization scan progress as a JSON file
// in the repository tree. The file is the only durable cross-run
// artifact: every mutation is a read-modify-atomic-rewrite cycle so a
// crash loses at most one in-flight update.
package state

import (
	"time"

	"github.com/sparta-security/sparta/internal/domain"
)

// Batch statuses tracked in the scan state.
const (
	BatchPending   = "pending"
	BatchRunning   = "running"
	BatchCompleted = "completed"
	BatchFailed    = "failed"
)

// BatchRecord tracks one batch's status inside the scan state.
type BatchRecord struct {
	Status      string     `json:"status"`
	Repos       []string   `json:"repos"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ScanState is the durable progress record for one organization on one
// scan date. Field names are part of the on-disk format and must stay
// backward-readable.
type ScanState struct {
	Org            string                 `json:"org"`
	ScanDate       string                 `json:"scan_date"`
	BatchSize      int                    `json:"batch_size"`
	TotalRepos     int                    `json:"total_repos"`
	CompletedRepos []string               `json:"completed_repos"`
	FailedRepos    []domain.FailureRecord `json:"failed_repos"`
	PendingRepos   []string               `json:"pending_repos"`
	Batches        map[string]BatchRecord `json:"batches"`
	LastUpdated    time.Time              `json:"last_updated"`
}

// HasProgress reports whether any repository has been completed or
// failed. Initialize refuses to overwrite state with progress.
func (s *ScanState) HasProgress() bool {
	return len(s.CompletedRepos) > 0 || len(s.FailedRepos) > 0
}

// IsCompleted reports whether the repository has finished successfully.
// Completed repositories never return to pending or failed.
func (s *ScanState) IsCompleted(repo string) bool {
	for _, name := range s.CompletedRepos {
		if name == repo {
			return true
		}
	}
	return false
}

// IsPending reports whether the repository is queued for scanning.
func (s *ScanState) IsPending(repo string) bool {
	for _, name := range s.PendingRepos {
		if name == repo {
			return true
		}
	}
	return false
}

// LatestFailure returns the most recent failure record for the
// repository, or nil if it has never failed.
func (s *ScanState) LatestFailure(repo string) *domain.FailureRecord {
	for i := len(s.FailedRepos) - 1; i >= 0; i-- {
		if s.FailedRepos[i].Repo == repo {
			return &s.FailedRepos[i]
		}
	}
	return nil
}

// RetryEligible returns the latest failure record of every repository
// whose retry budget is not yet exhausted.
func (s *ScanState) RetryEligible(maxRetries int) []domain.FailureRecord {
	seen := map[string]bool{}
	var eligible []domain.FailureRecord
	for i := len(s.FailedRepos) - 1; i >= 0; i-- {
		rec := s.FailedRepos[i]
		if seen[rec.Repo] {
			continue
		}
		seen[rec.Repo] = true
		if rec.RetryCount < maxRetries {
			eligible = append(eligible, rec)
		}
	}
	return eligible
}

// Summary holds the aggregate progress counters for one scan state.
type Summary struct {
	Org             string    `json:"org"`
	ScanDate        string    `json:"scan_date"`
	TotalRepos      int       `json:"total_repos"`
	Completed       int       `json:"completed"`
	Failed          int       `json:"failed"`
	Pending         int       `json:"pending"`
	ProgressPercent float64   `json:"progress_percent"`
	LastUpdated     time.Time `json:"last_updated"`
}

// Summarize computes the progress counters.
func (s *ScanState) Summarize() Summary {
	progress := 0.0
	if s.TotalRepos > 0 {
		progress = float64(len(s.CompletedRepos)) / float64(s.TotalRepos) * 100
	}
	return Summary{
		Org:             s.Org,
		ScanDate:        s.ScanDate,
		TotalRepos:      s.TotalRepos,
		Completed:       len(s.CompletedRepos),
		Failed:          len(s.FailedRepos),
		Pending:         len(s.PendingRepos),
		ProgressPercent: progress,
		LastUpdated:     s.LastUpdated,
	}
}
