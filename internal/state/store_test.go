package state

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparta-security/sparta/internal/domain"
	apperrors "github.com/sparta-security/sparta/internal/errors"
)

func testRepos(names ...string) []domain.Repository {
	repos := make([]domain.Repository, 0, len(names))
	for _, name := range names {
		repos = append(repos, domain.Repository{
			Org:      "acme",
			Name:     name,
			FullName: "acme/" + name,
		})
	}
	return repos
}

func setupStore(t *testing.T, maxRetries int) *Store {
	t.Helper()
	return NewStore(t.TempDir(), 100, maxRetries)
}

func TestStore_InitializeAndLoad(t *testing.T) {
	t.Parallel()

	store := setupStore(t, 3)
	_, err := store.Initialize("acme", "20260831", testRepos("alpha", "beta", "gamma"))
	require.NoError(t, err)

	s, err := store.Load("acme", "20260831")
	require.NoError(t, err)
	assert.Equal(t, "acme", s.Org)
	assert.Equal(t, "20260831", s.ScanDate)
	assert.Equal(t, 3, s.TotalRepos)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, s.PendingRepos)
	assert.Empty(t, s.CompletedRepos)
	assert.Empty(t, s.FailedRepos)
	assert.False(t, s.LastUpdated.IsZero())
}

func TestStore_InitializeRefusesToDiscardProgress(t *testing.T) {
	t.Parallel()

	store := setupStore(t, 3)
	_, err := store.Initialize("acme", "20260831", testRepos("alpha", "beta"))
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted("acme", "20260831", "alpha"))

	_, err = store.Initialize("acme", "20260831", testRepos("alpha", "beta"))
	require.Error(t, err)
	assert.True(t, apperrors.IsAlreadyExists(err))

	// The original progress survives the refused initialize.
	s, err := store.Load("acme", "20260831")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, s.CompletedRepos)
}

func TestStore_InitializeOverwritesUntouchedState(t *testing.T) {
	t.Parallel()

	store := setupStore(t, 3)
	_, err := store.Initialize("acme", "20260831", testRepos("alpha"))
	require.NoError(t, err)

	// No repo was completed or failed, so a re-run may start over.
	_, err = store.Initialize("acme", "20260831", testRepos("alpha", "beta"))
	require.NoError(t, err)

	s, err := store.Load("acme", "20260831")
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalRepos)
}

func TestStore_InitializeValidatesNames(t *testing.T) {
	t.Parallel()

	store := setupStore(t, 3)
	_, err := store.Initialize("../evil", "20260831", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsBadRequest(err))

	_, err = store.Initialize("acme", "20260831", testRepos("ok", "bad/name"))
	require.Error(t, err)
	assert.True(t, apperrors.IsBadRequest(err))
}

func TestStore_LoadMissingIsNotFound(t *testing.T) {
	t.Parallel()

	store := setupStore(t, 3)
	_, err := store.Load("acme", "20260831")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStore_LoadCorruptFile(t *testing.T) {
	t.Parallel()

	store := setupStore(t, 3)
	require.NoError(t, os.WriteFile(store.FilePath("acme", "20260831"), []byte("{not json"), 0o644))

	_, err := store.Load("acme", "20260831")
	require.Error(t, err)
	assert.True(t, apperrors.IsStateCorrupt(err))

	// A corrupt file is never silently replaced.
	data, readErr := os.ReadFile(store.FilePath("acme", "20260831"))
	require.NoError(t, readErr)
	assert.Equal(t, "{not json", string(data))
}

func TestStore_LoadRejectsOrgMismatch(t *testing.T) {
	t.Parallel()

	store := setupStore(t, 3)
	_, err := store.Initialize("acme", "20260831", testRepos("alpha"))
	require.NoError(t, err)

	// Rename the file so its contents claim a different org.
	require.NoError(t, os.Rename(
		store.FilePath("acme", "20260831"),
		store.FilePath("globex", "20260831")))

	_, err = store.Load("globex", "20260831")
	require.Error(t, err)
	assert.True(t, apperrors.IsStateCorrupt(err))
}

func TestStore_MarkCompletedMovesAndIsIdempotent(t *testing.T) {
	t.Parallel()

	store := setupStore(t, 3)
	_, err := store.Initialize("acme", "20260831", testRepos("alpha", "beta"))
	require.NoError(t, err)

	require.NoError(t, store.MarkCompleted("acme", "20260831", "alpha"))
	require.NoError(t, store.MarkCompleted("acme", "20260831", "alpha"))

	s, err := store.Load("acme", "20260831")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, s.CompletedRepos)
	assert.Equal(t, []string{"beta"}, s.PendingRepos)
}

func TestStore_MarkCompletedClearsFailureHistory(t *testing.T) {
	t.Parallel()

	store := setupStore(t, 3)
	_, err := store.Initialize("acme", "20260831", testRepos("alpha"))
	require.NoError(t, err)

	require.NoError(t, store.MarkFailed("acme", "20260831", "alpha", "connection reset", 0))
	require.NoError(t, store.MarkCompleted("acme", "20260831", "alpha"))

	s, err := store.Load("acme", "20260831")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, s.CompletedRepos)
	assert.Empty(t, s.FailedRepos)
	assert.Empty(t, s.PendingRepos)
}

func TestStore_MarkFailedRequeuesWhileBudgetRemains(t *testing.T) {
	t.Parallel()

	store := setupStore(t, 3)
	_, err := store.Initialize("acme", "20260831", testRepos("alpha", "beta"))
	require.NoError(t, err)

	require.NoError(t, store.MarkFailed("acme", "20260831", "alpha", "timeout", 0))

	s, err := store.Load("acme", "20260831")
	require.NoError(t, err)
	require.Len(t, s.FailedRepos, 1)
	assert.Equal(t, 0, s.FailedRepos[0].RetryCount)
	assert.True(t, s.IsPending("alpha"), "repo with retry budget left should be re-queued")

	retry, err := store.ShouldRetry("acme", "20260831", "alpha")
	require.NoError(t, err)
	assert.True(t, retry)
}

func TestStore_MarkFailedTerminalLeavesPending(t *testing.T) {
	t.Parallel()

	store := setupStore(t, 3)
	_, err := store.Initialize("acme", "20260831", testRepos("alpha", "beta"))
	require.NoError(t, err)

	require.NoError(t, store.MarkFailed("acme", "20260831", "alpha", "404 not found", 3))

	s, err := store.Load("acme", "20260831")
	require.NoError(t, err)
	assert.False(t, s.IsPending("alpha"))
	assert.Equal(t, []string{"beta"}, s.PendingRepos)

	retry, err := store.ShouldRetry("acme", "20260831", "alpha")
	require.NoError(t, err)
	assert.False(t, retry)
}

func TestStore_MarkFailedLatestEntryWins(t *testing.T) {
	t.Parallel()

	store := setupStore(t, 3)
	_, err := store.Initialize("acme", "20260831", testRepos("alpha"))
	require.NoError(t, err)

	require.NoError(t, store.MarkFailed("acme", "20260831", "alpha", "timeout", 0))
	require.NoError(t, store.MarkFailed("acme", "20260831", "alpha", "connection reset", 1))

	s, err := store.Load("acme", "20260831")
	require.NoError(t, err)
	require.Len(t, s.FailedRepos, 1, "only the latest failure record is kept per repo")
	assert.Equal(t, "connection reset", s.FailedRepos[0].Error)
	assert.Equal(t, 1, s.FailedRepos[0].RetryCount)
	require.Len(t, s.PendingRepos, 1, "re-queue must not duplicate the repo in pending")
}

func TestStore_CompletedRepoIsImmuneToMarkFailed(t *testing.T) {
	t.Parallel()

	store := setupStore(t, 3)
	_, err := store.Initialize("acme", "20260831", testRepos("alpha"))
	require.NoError(t, err)

	require.NoError(t, store.MarkCompleted("acme", "20260831", "alpha"))
	require.NoError(t, store.MarkFailed("acme", "20260831", "alpha", "late failure", 0))

	s, err := store.Load("acme", "20260831")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, s.CompletedRepos)
	assert.Empty(t, s.FailedRepos)
	assert.Empty(t, s.PendingRepos)
}

func TestStore_PartitionInvariant(t *testing.T) {
	t.Parallel()

	store := setupStore(t, 3)
	names := []string{"a", "b", "c", "d", "e"}
	_, err := store.Initialize("acme", "20260831", testRepos(names...))
	require.NoError(t, err)

	require.NoError(t, store.MarkCompleted("acme", "20260831", "a"))
	require.NoError(t, store.MarkFailed("acme", "20260831", "b", "timeout", 1))
	require.NoError(t, store.MarkFailed("acme", "20260831", "c", "403 forbidden", 3))
	require.NoError(t, store.MarkCompleted("acme", "20260831", "b"))

	s, err := store.Load("acme", "20260831")
	require.NoError(t, err)

	// Every repository is in exactly one bucket. A failed repo still in
	// pending counts as pending with failure history.
	inBucket := map[string]int{}
	for _, r := range s.CompletedRepos {
		inBucket[r]++
	}
	for _, r := range s.PendingRepos {
		inBucket[r]++
	}
	for _, f := range s.FailedRepos {
		if !s.IsPending(f.Repo) {
			inBucket[f.Repo]++
		}
	}
	for _, name := range names {
		assert.Equal(t, 1, inBucket[name], "repo %s must be in exactly one bucket", name)
	}
}

func TestStore_ResumeScenario(t *testing.T) {
	t.Parallel()

	// First run: 10 repos, 5 complete, 2 fail transiently, then a crash.
	store := setupStore(t, 3)
	names := []string{"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7", "r8", "r9"}
	_, err := store.Initialize("acme", "20260831", testRepos(names...))
	require.NoError(t, err)

	for _, name := range names[:5] {
		require.NoError(t, store.MarkCompleted("acme", "20260831", name))
	}
	require.NoError(t, store.MarkFailed("acme", "20260831", "r5", "timeout", 0))
	require.NoError(t, store.MarkFailed("acme", "20260831", "r6", "connection reset", 1))

	// Second run resumes against the same file through a fresh store.
	resumed := NewStore(store.dir, 100, 3)
	_, err = resumed.Initialize("acme", "20260831", testRepos(names...))
	require.True(t, apperrors.IsAlreadyExists(err))

	s, err := resumed.Load("acme", "20260831")
	require.NoError(t, err)
	assert.Len(t, s.CompletedRepos, 5)

	// Pending = the 3 never-attempted repos plus the 2 re-queued failures.
	assert.Len(t, s.PendingRepos, 5)
	assert.True(t, s.IsPending("r5"))
	assert.True(t, s.IsPending("r6"))

	// Resume picks up each failure at the attempt after its recorded count.
	assert.Equal(t, 0, s.LatestFailure("r5").RetryCount)
	assert.Equal(t, 1, s.LatestFailure("r6").RetryCount)
	assert.Nil(t, s.LatestFailure("r7"))
}

func TestStore_MarkBatchStatus(t *testing.T) {
	t.Parallel()

	store := setupStore(t, 3)
	_, err := store.Initialize("acme", "20260831", testRepos("alpha", "beta"))
	require.NoError(t, err)

	require.NoError(t, store.MarkBatchStatus("acme", "20260831", "batch-1", BatchRunning, []string{"alpha", "beta"}))
	s, err := store.Load("acme", "20260831")
	require.NoError(t, err)
	require.Contains(t, s.Batches, "batch-1")
	assert.Equal(t, BatchRunning, s.Batches["batch-1"].Status)
	assert.Nil(t, s.Batches["batch-1"].CompletedAt)

	require.NoError(t, store.MarkBatchStatus("acme", "20260831", "batch-1", BatchCompleted, []string{"alpha", "beta"}))
	s, err = store.Load("acme", "20260831")
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, s.Batches["batch-1"].Status)
	require.NotNil(t, s.Batches["batch-1"].CompletedAt)
}

func TestStore_Summary(t *testing.T) {
	t.Parallel()

	store := setupStore(t, 3)
	_, err := store.Initialize("acme", "20260831", testRepos("a", "b", "c", "d"))
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted("acme", "20260831", "a"))
	require.NoError(t, store.MarkFailed("acme", "20260831", "b", "403", 3))

	summary, err := store.Summary("acme", "20260831")
	require.NoError(t, err)
	assert.Equal(t, 4, summary.TotalRepos)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Pending)
	assert.InDelta(t, 25.0, summary.ProgressPercent, 0.001)
}

func TestScanState_RetryEligible(t *testing.T) {
	t.Parallel()

	s := &ScanState{
		FailedRepos: []domain.FailureRecord{
			{Repo: "alpha", RetryCount: 1},
			{Repo: "beta", RetryCount: 3},
			{Repo: "alpha", RetryCount: 2},
		},
	}

	eligible := s.RetryEligible(3)
	require.Len(t, eligible, 1)
	assert.Equal(t, "alpha", eligible[0].Repo)
	assert.Equal(t, 2, eligible[0].RetryCount, "latest record per repo wins")
}

func TestStore_SaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	store := setupStore(t, 3)
	_, err := store.Initialize("acme", "20260831", testRepos("alpha"))
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted("acme", "20260831", "alpha"))

	entries, err := os.ReadDir(store.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "scan-state-acme-20260831.json", entries[0].Name())
}
