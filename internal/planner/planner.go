// Package planner partitions repository lists into bounded-size batches
// for parallel execution. Planning is a pure function of its input; the
// only side effects live in the Write helpers.
package planner

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sparta-security/sparta/internal/domain"
	apperrors "github.com/sparta-security/sparta/internal/errors"
)

// BatchFileName is the batch descriptor consumed by the external job
// scheduler.
const BatchFileName = "repo-batches.json"

// Split partitions an ordered repository list into contiguous batches of
// at most batchSize repositories; the last batch holds the remainder.
func Split(repos []domain.Repository, batchSize int) [][]domain.Repository {
	var batches [][]domain.Repository
	for i := 0; i < len(repos); i += batchSize {
		end := i + batchSize
		if end > len(repos) {
			end = len(repos)
		}
		batches = append(batches, repos[i:end])
	}
	return batches
}

// Plan partitions every organization's repositories independently:
// batches never mix organizations and batch indices restart at 1 per
// organization. In multi-org mode batch IDs carry the org prefix;
// single-org mode keeps the bare "batch-{n}" form.
//
// Zero repositories yields an empty plan, not an error.
func Plan(orgRepos []domain.OrgRepos, batchSize int, multiOrg bool) (*domain.BatchPlan, error) {
	if batchSize < 1 {
		return nil, apperrors.NewBadRequestError("batch size must be at least 1")
	}

	plan := &domain.BatchPlan{}
	for _, org := range orgRepos {
		if len(org.Repos) == 0 {
			continue
		}
		batches := Split(org.Repos, batchSize)
		for idx, repos := range batches {
			batch := domain.Batch{
				BatchID:      domain.BatchID(org.Org, idx, multiOrg),
				Org:          org.Org,
				Repos:        repos,
				BatchIndex:   idx,
				TotalBatches: len(batches),
			}
			plan.Batches = append(plan.Batches, batch)
			plan.Matrix = append(plan.Matrix, domain.MatrixEntry{BatchID: batch.BatchID})
			plan.TotalRepos += len(repos)
		}
	}
	plan.TotalBatches = len(plan.Batches)
	return plan, nil
}

// NeedsBatching reports whether any organization's repository count
// exceeds the threshold. Below the threshold an organization still forms
// a single implicit batch so downstream logic has one code path.
func NeedsBatching(orgRepos []domain.OrgRepos, threshold int) bool {
	for _, org := range orgRepos {
		if len(org.Repos) > threshold {
			return true
		}
	}
	return false
}

// WritePlan persists the ordered batch list to path as JSON.
func WritePlan(plan *domain.BatchPlan, path string) error {
	data, err := json.MarshalIndent(plan.Batches, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode batch plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write batch plan: %w", err)
	}
	return nil
}

// WriteMatrixOutput appends the execution-matrix descriptor to the job
// scheduler's output file (GITHUB_OUTPUT format). A missing output path
// is a no-op so local runs work unchanged.
func WriteMatrixOutput(plan *domain.BatchPlan, outputPath string) error {
	if outputPath == "" {
		return nil
	}
	matrix, err := json.Marshal(plan.Matrix)
	if err != nil {
		return fmt.Errorf("failed to encode matrix: %w", err)
	}

	f, err := os.OpenFile(outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "matrix=%s\ntotal_batches=%d\ntotal_repos=%d\n",
		matrix, plan.TotalBatches, plan.TotalRepos)
	if err != nil {
		return fmt.Errorf("failed to write matrix output: %w", err)
	}
	return nil
}
