// Package executor runs the repositories of one batch through the
// external clone and scan collaborators, applying the retry policy and
// recording per-repository outcomes. One repository's failure never
// aborts the rest of the batch.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sparta-security/sparta/internal/domain"
	apperrors "github.com/sparta-security/sparta/internal/errors"
	"github.com/sparta-security/sparta/internal/retry"
	"github.com/sparta-security/sparta/internal/scanner"
	"github.com/sparta-security/sparta/internal/state"
)

// Executor processes one batch at a time, sequentially within the
// batch. Parallelism happens across executors, not inside one.
type Executor struct {
	cloner     scanner.Cloner
	scan       scanner.Scanner
	classifier *retry.Classifier
	maxRetries int
	reportsDir string
	workDir    string
	selfRepo   string // full name of the repository hosting this run

	// sleep is context-aware and replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a batch executor.
func New(cloner scanner.Cloner, scan scanner.Scanner, classifier *retry.Classifier,
	maxRetries int, reportsDir, workDir, selfRepo string) *Executor {
	if classifier == nil {
		classifier = retry.NewClassifier()
	}
	if workDir == "" {
		workDir = "."
	}
	return &Executor{
		cloner:     cloner,
		scan:       scan,
		classifier: classifier,
		maxRetries: maxRetries,
		reportsDir: reportsDir,
		workDir:    workDir,
		selfRepo:   selfRepo,
		sleep:      sleepContext,
	}
}

// Execute iterates the batch's repositories in order. Repositories that
// the prior state shows as completed or terminally failed (no longer
// pending) are skipped, which is what makes runs resumable. Outcomes go
// to the recorder (when given) and to the returned BatchResult, which
// is persisted to resultPath after every outcome when resultPath is
// non-empty.
func (e *Executor) Execute(ctx context.Context, batch domain.Batch, scanDate, token string,
	prior *state.ScanState, rec Recorder, resultPath string) (*domain.BatchResult, error) {

	result := &domain.BatchResult{
		BatchID:   batch.BatchID,
		Org:       batch.Org,
		Completed: []string{},
		Failed:    []domain.FailureRecord{},
	}

	for _, repo := range batch.Repos {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if prior != nil && !prior.IsPending(repo.Name) {
			if prior.IsCompleted(repo.Name) {
				fmt.Printf("Skipping %s (already completed)\n", repo.FullName)
			}
			continue
		}

		startAttempt := 0
		if prior != nil {
			if f := prior.LatestFailure(repo.Name); f != nil {
				startAttempt = f.RetryCount + 1
			}
		}

		e.scanRepo(ctx, repo, scanDate, token, startAttempt, rec, result)

		if resultPath != "" {
			if err := writeResult(result, resultPath); err != nil {
				return result, err
			}
		}
	}

	result.FinishedAt = time.Now().UTC()
	if resultPath != "" {
		if err := writeResult(result, resultPath); err != nil {
			return result, err
		}
	}
	return result, nil
}

// scanRepo attempts one repository with backoff-and-retry. Attempt
// indices double as consumed retries: the attempt at index maxRetries
// is the last one, so a repository that keeps failing transiently is
// retried exactly maxRetries times before failing terminally.
func (e *Executor) scanRepo(ctx context.Context, repo domain.Repository, scanDate, token string,
	startAttempt int, rec Recorder, result *domain.BatchResult) {

	fmt.Printf("Scanning %s\n", repo.FullName)

	for attempt := startAttempt; ; attempt++ {
		err := e.attempt(ctx, repo, scanDate, token)
		if err == nil {
			recordCompleted(rec, result, repo.Name)
			fmt.Printf("  Scan completed for %s\n", repo.FullName)
			return
		}

		errMsg := scanner.Redact(failureText(err), token)
		class := e.classify(err, errMsg)
		fmt.Printf("  Scan failed for %s (%s, attempt %d): %s\n", repo.FullName, class, attempt+1, errMsg)

		if class == retry.Transient && attempt < e.maxRetries {
			// Persist the intermediate failure so a killed job resumes
			// with its retry budget intact; the store re-queues the
			// repository into pending while the budget lasts.
			recordFailed(rec, result, repo.Name, errMsg, attempt)
			if sleepErr := e.sleep(ctx, retry.Delay(attempt)); sleepErr != nil {
				return
			}
			continue
		}

		// Terminal: permanent errors and exhausted budgets are recorded
		// with the full retry budget so they never re-enter pending.
		recordFailed(rec, result, repo.Name, errMsg, e.maxRetries)
		e.writeErrorStub(repo, scanDate, errMsg)
		return
	}
}

// attempt performs one clone-and-scan cycle. The orchestrator's own
// hosting repository is scanned in place from the already-checked-out
// working tree; cloning it would deadlock on itself.
func (e *Executor) attempt(ctx context.Context, repo domain.Repository, scanDate, token string) error {
	reportPath := filepath.Join(domain.ReportPath(e.reportsDir, repo.Org, repo.Name, scanDate), domain.ReportFileName)

	if repo.FullName == e.selfRepo {
		fmt.Printf("  Scanning %s in place (current repository)\n", repo.FullName)
		return e.scan.Scan(ctx, ".", reportPath)
	}

	cloneDir := filepath.Join(e.workDir, "tmp-"+repo.Name)
	defer os.RemoveAll(cloneDir)

	if err := e.cloner.Clone(ctx, repo, cloneDir, token); err != nil {
		return err
	}
	return e.scan.Scan(ctx, cloneDir, reportPath)
}

// failureText renders an attempt error for persistence. Typed errors
// carry an internal code prefix in Error(); the state file, error stubs
// and error reports get the plain message instead.
func failureText(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Err != nil {
			return fmt.Sprintf("%s: %v", appErr.Message, appErr.Err)
		}
		return appErr.Message
	}
	return err.Error()
}

// classify maps an attempt error to the retry taxonomy. Typed errors
// carry their own classification; everything else goes through the
// keyword classifier.
func (e *Executor) classify(err error, errMsg string) retry.Class {
	if apperrors.IsTransient(err) {
		return retry.Transient
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == apperrors.ErrCodePermanent {
		return retry.Permanent
	}
	return e.classifier.Classify(errMsg)
}

// writeErrorStub leaves an error report artifact in the repository's
// report directory so the result tree records the terminal failure.
func (e *Executor) writeErrorStub(repo domain.Repository, scanDate, errMsg string) {
	reportDir := domain.ReportPath(e.reportsDir, repo.Org, repo.Name, scanDate)
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return
	}
	stub := map[string]string{
		"error":      errMsg,
		"repository": repo.FullName,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(stub, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(reportDir, domain.ReportFileName), data, 0o644)
}

func recordCompleted(rec Recorder, result *domain.BatchResult, repo string) {
	result.Completed = append(result.Completed, repo)
	result.Failed = removeFailure(result.Failed, repo)
	if rec != nil {
		if err := rec.MarkCompleted(repo); err != nil {
			fmt.Printf("Warning: failed to record completion of %s: %v\n", repo, err)
		}
	}
}

func recordFailed(rec Recorder, result *domain.BatchResult, repo, errMsg string, retryCount int) {
	result.Failed = removeFailure(result.Failed, repo)
	result.Failed = append(result.Failed, domain.FailureRecord{
		Repo:       repo,
		Error:      errMsg,
		RetryCount: retryCount,
		Timestamp:  time.Now().UTC(),
	})
	if rec != nil {
		if err := rec.MarkFailed(repo, errMsg, retryCount); err != nil {
			fmt.Printf("Warning: failed to record failure of %s: %v\n", repo, err)
		}
	}
}

func removeFailure(list []domain.FailureRecord, repo string) []domain.FailureRecord {
	out := list[:0]
	for _, f := range list {
		if f.Repo != repo {
			out = append(out, f)
		}
	}
	return out
}

// ResultPath returns the per-batch result artifact path.
func ResultPath(dir, batchID string) string {
	return filepath.Join(dir, fmt.Sprintf("batch-result-%s.json", batchID))
}

func writeResult(result *domain.BatchResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode batch result: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write batch result: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace batch result: %w", err)
	}
	return nil
}

// ReadResult loads a persisted batch result artifact.
func ReadResult(path string) (*domain.BatchResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch result: %w", err)
	}
	var result domain.BatchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse batch result: %w", err)
	}
	return &result, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
