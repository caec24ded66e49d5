package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sparta-security/sparta/internal/domain"
	apperrors "github.com/sparta-security/sparta/internal/errors"
)

// Store exposes transactional operations on scan state files. Each
// mutation loads the whole file, applies the change in memory and
// atomically rewrites the file. Concurrent writers to the same org+date
// must be serialized by the caller; the mutex only covers writers
// inside one process.
type Store struct {
	mu         sync.Mutex
	dir        string
	batchSize  int
	maxRetries int
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, batchSize, maxRetries int) *Store {
	return &Store{dir: dir, batchSize: batchSize, maxRetries: maxRetries}
}

// FilePath returns the state file path for an org and scan date:
// scan-state-{org}-{YYYYMMDD}.json.
func (st *Store) FilePath(org, scanDate string) string {
	return filepath.Join(st.dir, fmt.Sprintf("scan-state-%s-%s.json", org, scanDate))
}

// Initialize creates a fresh state with every repository pending. If a
// state file for the org+date already exists and has progress it fails
// with AlreadyExists so resumable work is never discarded; an existing
// file without progress is overwritten.
func (st *Store) Initialize(org, scanDate string, repos []domain.Repository) (*ScanState, error) {
	if err := domain.ValidateOrgName(org); err != nil {
		return nil, apperrors.NewBadRequestError(err.Error())
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	existing, err := st.load(org, scanDate)
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, err
	}
	if existing != nil && existing.HasProgress() {
		return nil, apperrors.NewAlreadyExistsError(
			fmt.Sprintf("scan state for %s on %s", org, scanDate))
	}

	pending := make([]string, 0, len(repos))
	for _, repo := range repos {
		if err := domain.ValidateRepoName(repo.Name); err != nil {
			return nil, apperrors.NewBadRequestError(err.Error())
		}
		pending = append(pending, repo.Name)
	}

	s := &ScanState{
		Org:            org,
		ScanDate:       scanDate,
		BatchSize:      st.batchSize,
		TotalRepos:     len(repos),
		CompletedRepos: []string{},
		FailedRepos:    []domain.FailureRecord{},
		PendingRepos:   pending,
		Batches:        map[string]BatchRecord{},
		LastUpdated:    time.Now().UTC(),
	}
	if err := st.save(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads and validates the state for an org+date. A missing file is
// NotFound; an unreadable or malformed file is StateCorrupt and is never
// silently replaced.
func (st *Store) Load(org, scanDate string) (*ScanState, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.load(org, scanDate)
}

// MarkCompleted moves a repository from pending or failed to completed.
// Marking an already-completed repository is a no-op.
func (st *Store) MarkCompleted(org, scanDate, repo string) error {
	return st.update(org, scanDate, func(s *ScanState) {
		if s.IsCompleted(repo) {
			return
		}
		s.PendingRepos = removeString(s.PendingRepos, repo)
		s.FailedRepos = removeFailures(s.FailedRepos, repo)
		s.CompletedRepos = append(s.CompletedRepos, repo)
	})
}

// MarkFailed records a failure for a repository. While the retry budget
// is not exhausted the repository is re-queued into pending so a
// subsequent pass can attempt it again; otherwise it is terminally
// failed and leaves pending. Completed repositories are never moved
// back (state is monotonic within a run).
func (st *Store) MarkFailed(org, scanDate, repo, errMsg string, retryCount int) error {
	return st.update(org, scanDate, func(s *ScanState) {
		if s.IsCompleted(repo) {
			return
		}
		s.PendingRepos = removeString(s.PendingRepos, repo)
		s.FailedRepos = removeFailures(s.FailedRepos, repo)
		s.FailedRepos = append(s.FailedRepos, domain.FailureRecord{
			Repo:       repo,
			Error:      errMsg,
			RetryCount: retryCount,
			Timestamp:  time.Now().UTC(),
		})
		if retryCount < st.maxRetries {
			s.PendingRepos = append(s.PendingRepos, repo)
		}
	})
}

// MarkBatchStatus records the status of one batch. The completed_at
// timestamp is set when the batch reaches a terminal status.
func (st *Store) MarkBatchStatus(org, scanDate, batchID, status string, repos []string) error {
	return st.update(org, scanDate, func(s *ScanState) {
		rec := BatchRecord{Status: status, Repos: repos}
		if status == BatchCompleted || status == BatchFailed {
			now := time.Now().UTC()
			rec.CompletedAt = &now
		}
		if s.Batches == nil {
			s.Batches = map[string]BatchRecord{}
		}
		s.Batches[batchID] = rec
	})
}

// ShouldRetry reports whether the repository's latest retry count is
// below the retry limit. Repositories that never failed return false.
func (st *Store) ShouldRetry(org, scanDate, repo string) (bool, error) {
	s, err := st.Load(org, scanDate)
	if err != nil {
		return false, err
	}
	rec := s.LatestFailure(repo)
	if rec == nil {
		return false, nil
	}
	return rec.RetryCount < st.maxRetries, nil
}

// Summary returns the aggregate progress counters for an org+date.
func (st *Store) Summary(org, scanDate string) (Summary, error) {
	s, err := st.Load(org, scanDate)
	if err != nil {
		return Summary{}, err
	}
	return s.Summarize(), nil
}

// MaxRetries returns the store's retry limit.
func (st *Store) MaxRetries() int { return st.maxRetries }

func (st *Store) update(org, scanDate string, mutate func(*ScanState)) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, err := st.load(org, scanDate)
	if err != nil {
		return err
	}
	mutate(s)
	s.LastUpdated = time.Now().UTC()
	return st.save(s)
}

func (st *Store) load(org, scanDate string) (*ScanState, error) {
	path := st.FilePath(org, scanDate)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("scan state for %s on %s", org, scanDate))
	}
	if err != nil {
		return nil, apperrors.NewStateCorruptError(fmt.Sprintf("failed to read state file %s", path), err)
	}

	var s ScanState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, apperrors.NewStateCorruptError(fmt.Sprintf("failed to parse state file %s", path), err)
	}
	if s.Org != org {
		return nil, apperrors.NewStateCorruptError(
			fmt.Sprintf("state file %s belongs to org %q, expected %q", path, s.Org, org), nil)
	}

	// Missing optional collections read as empty, not as corruption.
	if s.CompletedRepos == nil {
		s.CompletedRepos = []string{}
	}
	if s.FailedRepos == nil {
		s.FailedRepos = []domain.FailureRecord{}
	}
	if s.PendingRepos == nil {
		s.PendingRepos = []string{}
	}
	if s.Batches == nil {
		s.Batches = map[string]BatchRecord{}
	}
	return &s, nil
}

// save atomically rewrites the state file via a temp file and rename.
func (st *Store) save(s *ScanState) error {
	path := st.FilePath(s.Org, s.ScanDate)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".scan-state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func removeString(list []string, value string) []string {
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}

func removeFailures(list []domain.FailureRecord, repo string) []domain.FailureRecord {
	out := list[:0]
	for _, f := range list {
		if f.Repo != repo {
			out = append(out, f)
		}
	}
	return out
}
