// Package orchestrator is the top-level scan controller: it resolves
// the execution mode, obtains repository lists, drives the planner and
// the batch executors, and merges all per-batch outcomes back into one
// consistent per-organization state.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sparta-security/sparta/internal/collector"
	"github.com/sparta-security/sparta/internal/config"
	"github.com/sparta-security/sparta/internal/domain"
	apperrors "github.com/sparta-security/sparta/internal/errors"
	"github.com/sparta-security/sparta/internal/executor"
	"github.com/sparta-security/sparta/internal/planner"
	"github.com/sparta-security/sparta/internal/state"
	"github.com/sparta-security/sparta/internal/tokens"
)

// OrgOutcome is the per-organization result of one orchestration run.
type OrgOutcome struct {
	RunID   string        `json:"run_id"`
	Org     string        `json:"org"`
	Skipped bool          `json:"skipped"`
	Warning string        `json:"warning,omitempty"`
	Summary state.Summary `json:"summary"`
}

// Orchestrator coordinates one scan run across organizations.
// Organizations are processed strictly sequentially to bound external
// API and credential pressure; batches within one organization may run
// in parallel.
type Orchestrator struct {
	cfg      *config.Config
	store    *state.Store
	tokens   tokens.Provider
	listers  collector.ListerFactory
	exec     *executor.Executor
	scanDate string
	runID    string
}

// New creates an orchestrator for one scan date (YYYYMMDD).
func New(cfg *config.Config, store *state.Store, provider tokens.Provider,
	listers collector.ListerFactory, exec *executor.Executor, scanDate string) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		tokens:   provider,
		listers:  listers,
		exec:     exec,
		scanDate: scanDate,
		runID:    uuid.New().String(),
	}
}

// Run executes the scan for every configured organization. A failure
// scoped to one organization (missing credential, listing failure,
// corrupt state) is reported as a skipped outcome and the run
// continues; only caller cancellation aborts the whole run.
func (o *Orchestrator) Run(ctx context.Context) ([]OrgOutcome, error) {
	mode := "single-org"
	if o.cfg.MultiOrg() {
		mode = "multi-org"
	}
	fmt.Printf("Starting scan run %s (%s, %d organization(s), batch size %d, max retries %d)\n",
		o.runID, mode, len(o.cfg.Orgs), o.cfg.BatchSize, o.cfg.MaxRetries)

	var outcomes []OrgOutcome
	for _, org := range o.cfg.Orgs {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		outcome := o.runOrg(ctx, org)
		outcome.RunID = o.runID
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (o *Orchestrator) runOrg(ctx context.Context, org string) OrgOutcome {
	fmt.Printf("\nProcessing organization: %s\n", org)

	token, err := o.tokens.TokenForOrg(org)
	if err != nil {
		warning := fmt.Sprintf("skipping %s: %v", org, err)
		fmt.Printf("Warning: %s\n", warning)
		return OrgOutcome{Org: org, Skipped: true, Warning: warning}
	}

	repos, err := o.listers(token).ListRepositories(ctx, org)
	if err != nil {
		warning := fmt.Sprintf("skipping %s: failed to list repositories: %v", org, err)
		fmt.Printf("Warning: %s\n", warning)
		return OrgOutcome{Org: org, Skipped: true, Warning: warning}
	}
	fmt.Printf("Found %d repositories in %s\n", len(repos), org)

	prior, err := o.prepareState(org, repos)
	if err != nil {
		warning := fmt.Sprintf("aborting %s: %v", org, err)
		fmt.Printf("Error: %s\n", warning)
		return OrgOutcome{Org: org, Skipped: true, Warning: warning}
	}

	plan, err := o.planBatches(org, repos)
	if err != nil {
		warning := fmt.Sprintf("aborting %s: %v", org, err)
		fmt.Printf("Error: %s\n", warning)
		return OrgOutcome{Org: org, Skipped: true, Warning: warning}
	}

	if err := o.executeBatches(ctx, plan.Batches, token, prior); err != nil {
		warning := fmt.Sprintf("aborting %s: %v", org, err)
		fmt.Printf("Error: %s\n", warning)
		return OrgOutcome{Org: org, Skipped: true, Warning: warning}
	}

	if err := o.finalize(org, plan.Batches); err != nil {
		warning := fmt.Sprintf("failed to finalize %s: %v", org, err)
		fmt.Printf("Error: %s\n", warning)
		return OrgOutcome{Org: org, Skipped: true, Warning: warning}
	}

	summary, err := o.store.Summary(org, o.scanDate)
	if err != nil {
		return OrgOutcome{Org: org, Warning: fmt.Sprintf("summary unavailable: %v", err)}
	}
	fmt.Printf("Organization %s: %d/%d completed, %d failed, %d pending\n",
		org, summary.Completed, summary.TotalRepos, summary.Failed, summary.Pending)
	return OrgOutcome{Org: org, Summary: summary}
}

// prepareState initializes fresh state or resumes existing progress.
// Corrupt state aborts the organization; it is never reinitialized
// silently.
func (o *Orchestrator) prepareState(org string, repos []domain.Repository) (*state.ScanState, error) {
	st, err := o.store.Initialize(org, o.scanDate, repos)
	if err == nil {
		return st, nil
	}
	if apperrors.IsAlreadyExists(err) {
		fmt.Printf("Resuming existing scan state for %s on %s\n", org, o.scanDate)
		return o.store.Load(org, o.scanDate)
	}
	return nil, err
}

// planBatches partitions one organization's repositories. Below the
// batching threshold the whole list forms a single implicit batch so
// downstream logic has one code path.
func (o *Orchestrator) planBatches(org string, repos []domain.Repository) (*domain.BatchPlan, error) {
	orgRepos := []domain.OrgRepos{{Org: org, Repos: repos}}
	batchSize := o.cfg.BatchSize
	if !planner.NeedsBatching(orgRepos, o.cfg.BatchThreshold) && len(repos) > 0 {
		batchSize = len(repos)
	}
	plan, err := planner.Plan(orgRepos, batchSize, o.cfg.MultiOrg())
	if err != nil {
		return nil, err
	}
	fmt.Printf("Planned %d batch(es) for %s\n", plan.TotalBatches, org)
	return plan, nil
}

// executeBatches dispatches the executors. A single batch writes the
// authoritative state directly; multiple batches run in parallel, each
// writing only its own result artifact, and the outcomes are merged by
// the single-writer reconciliation step afterwards.
func (o *Orchestrator) executeBatches(ctx context.Context, batches []domain.Batch, token string, prior *state.ScanState) error {
	if len(batches) == 0 {
		return nil
	}

	for _, b := range batches {
		if err := o.store.MarkBatchStatus(b.Org, o.scanDate, b.BatchID, state.BatchRunning, b.RepoNames()); err != nil {
			return err
		}
	}

	if len(batches) == 1 {
		b := batches[0]
		rec := &executor.StoreRecorder{Store: o.store, Org: b.Org, ScanDate: o.scanDate}
		_, err := o.exec.Execute(ctx, b, o.scanDate, token, prior, rec,
			executor.ResultPath(o.cfg.StateDir, b.BatchID))
		return err
	}

	results := make([]*domain.BatchResult, len(batches))
	errs := make([]error, len(batches))
	var wg sync.WaitGroup
	for i, b := range batches {
		wg.Add(1)
		go func(i int, b domain.Batch) {
			defer wg.Done()
			results[i], errs[i] = o.exec.Execute(ctx, b, o.scanDate, token, prior, nil,
				executor.ResultPath(o.cfg.StateDir, b.BatchID))
		}(i, b)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			fmt.Printf("Warning: batch %s aborted: %v\n", batches[i].BatchID, err)
		}
	}
	return o.reconcile(batches[0].Org, results)
}

// finalize settles batch statuses, writes the error report collection
// and commits nothing itself; the surrounding workflow owns the commit.
func (o *Orchestrator) finalize(org string, batches []domain.Batch) error {
	final, err := o.store.Load(org, o.scanDate)
	if err != nil {
		return err
	}

	for _, b := range batches {
		status := state.BatchCompleted
		for _, name := range b.RepoNames() {
			if !settled(final, name, o.cfg.MaxRetries) {
				status = state.BatchFailed
				break
			}
		}
		if err := o.store.MarkBatchStatus(org, o.scanDate, b.BatchID, status, b.RepoNames()); err != nil {
			return err
		}
	}

	return WriteErrorReports(ErrorReportPath(o.cfg.StateDir, org, o.scanDate), final, o.cfg.MaxRetries, o.runID)
}

// settled reports whether a repository needs no further work: it is
// either completed or terminally failed.
func settled(s *state.ScanState, repo string, maxRetries int) bool {
	if s.IsCompleted(repo) {
		return true
	}
	if f := s.LatestFailure(repo); f != nil && f.RetryCount >= maxRetries {
		return true
	}
	return false
}

// ScanDate formats a time as the calendar-date key used in state file
// names and the report tree.
func ScanDate(t time.Time) string {
	return t.UTC().Format("20060102")
}
