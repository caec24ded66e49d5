package executor

import (
	"github.com/sparta-security/sparta/internal/state"
)

// Recorder receives repository outcomes as they happen. In single-batch
// runs outcomes go straight to the authoritative scan state; parallel
// batch runs pass no recorder and rely on the per-batch result artifact
// plus the final reconciliation step, so the shared state file never
// has concurrent writers.
type Recorder interface {
	MarkCompleted(repo string) error
	MarkFailed(repo, errMsg string, retryCount int) error
}

// StoreRecorder writes outcomes directly to a scan state store, bound
// to one org and scan date.
type StoreRecorder struct {
	Store    *state.Store
	Org      string
	ScanDate string
}

func (r *StoreRecorder) MarkCompleted(repo string) error {
	return r.Store.MarkCompleted(r.Org, r.ScanDate, repo)
}

func (r *StoreRecorder) MarkFailed(repo, errMsg string, retryCount int) error {
	return r.Store.MarkFailed(r.Org, r.ScanDate, repo, errMsg, retryCount)
}
