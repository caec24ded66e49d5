package domain

import "fmt"

// Batch is a contiguous, size-bounded slice of one organization's
// repository list, assigned to one parallel execution unit.
// Batches are created once per run by the planner and never mutated;
// only their status in the scan state changes.
type Batch struct {
	BatchID      string       `json:"batch_id"`
	Org          string       `json:"org,omitempty"`
	Repos        []Repository `json:"repos"`
	BatchIndex   int          `json:"batch_index"`
	TotalBatches int          `json:"total_batches"`
}

// BatchID builds the deterministic identifier for a batch so it is
// stable across re-runs. Single-org plans keep the unprefixed
// "batch-{n}" form for backward compatibility.
func BatchID(org string, index int, multiOrg bool) string {
	if multiOrg {
		return fmt.Sprintf("%s-batch-%d", org, index+1)
	}
	return fmt.Sprintf("batch-%d", index+1)
}

// RepoNames returns the names of the repositories in the batch, in order.
func (b Batch) RepoNames() []string {
	names := make([]string, 0, len(b.Repos))
	for _, r := range b.Repos {
		names = append(names, r.Name)
	}
	return names
}

// MatrixEntry is one element of the parallel-execution matrix consumed
// by the external job scheduler.
type MatrixEntry struct {
	BatchID string `json:"batch_id"`
}

// BatchPlan is the full output of the planner: the ordered batch list
// plus the execution-matrix descriptor.
type BatchPlan struct {
	Batches      []Batch       `json:"batches"`
	Matrix       []MatrixEntry `json:"matrix"`
	TotalBatches int           `json:"total_batches"`
	TotalRepos   int           `json:"total_repos"`
}
