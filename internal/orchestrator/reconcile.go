package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sparta-security/sparta/internal/domain"
	"github.com/sparta-security/sparta/internal/executor"
	"github.com/sparta-security/sparta/internal/state"
)

// reconcile merges independently-produced batch results into the
// authoritative per-organization state. It runs after all of the
// organization's batches have reported, so it is the only writer.
func (o *Orchestrator) reconcile(org string, results []*domain.BatchResult) error {
	for _, result := range results {
		if result == nil {
			continue
		}
		for _, repo := range result.Completed {
			if err := o.store.MarkCompleted(org, o.scanDate, repo); err != nil {
				return fmt.Errorf("reconciliation failed for %s: %w", repo, err)
			}
		}
		for _, f := range result.Failed {
			if err := o.store.MarkFailed(org, o.scanDate, f.Repo, f.Error, f.RetryCount); err != nil {
				return fmt.Errorf("reconciliation failed for %s: %w", f.Repo, err)
			}
		}
	}
	return nil
}

// ReconcileArtifacts merges batch result artifacts from disk, for
// deployments where each batch ran as a separate job and only the
// artifacts survive. Missing artifacts are reported but do not stop
// the merge of the others.
func (o *Orchestrator) ReconcileArtifacts(org string, batchIDs []string) error {
	var results []*domain.BatchResult
	for _, id := range batchIDs {
		result, err := executor.ReadResult(executor.ResultPath(o.cfg.StateDir, id))
		if err != nil {
			fmt.Printf("Warning: skipping batch %s: %v\n", id, err)
			continue
		}
		results = append(results, result)
	}
	return o.reconcile(org, results)
}

// ErrorReportPath returns the per-organization error report collection
// path: errors-{org}-{date}.json.
func ErrorReportPath(stateDir, org, scanDate string) string {
	return filepath.Join(stateDir, fmt.Sprintf("errors-%s-%s.json", org, scanDate))
}

// WriteErrorReports appends one report per terminal failure to the
// organization's error report collection, stamped with the run that
// produced it. Existing entries are kept; repositories already reported
// are not duplicated.
func WriteErrorReports(path string, s *state.ScanState, maxRetries int, runID string) error {
	var reports []domain.ErrorReport
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &reports); err != nil {
			return fmt.Errorf("failed to parse error reports %s: %w", path, err)
		}
	}

	reported := map[string]bool{}
	for _, r := range reports {
		reported[r.Repository] = true
	}

	for _, f := range s.FailedRepos {
		if f.RetryCount < maxRetries {
			continue
		}
		fullName := s.Org + "/" + f.Repo
		if reported[fullName] {
			continue
		}
		reports = append(reports, domain.ErrorReport{
			Error:      f.Error,
			Repository: fullName,
			Timestamp:  f.Timestamp,
			CloneURL:   "https://github.com/" + fullName + ".git",
			RetryCount: f.RetryCount,
			RunID:      runID,
		})
		reported[fullName] = true
	}

	if len(reports) == 0 {
		return nil
	}
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode error reports: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write error reports: %w", err)
	}
	return nil
}
