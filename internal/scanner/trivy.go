// Package scanner wraps the external collaborators of a repository
// scan: the git clone subprocess and the vulnerability scanner itself.
// The scanner is an opaque pass/fail/report-producing black box; this
// package decides invocation and placement, not report content.
package scanner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Scanner runs the external vulnerability scan against a checked-out
// tree and writes the report artifact to reportPath.
type Scanner interface {
	Scan(ctx context.Context, targetDir, reportPath string) error
}

// TrivyScanner invokes trivy as a subprocess.
type TrivyScanner struct {
	Timeout  time.Duration
	CacheDir string
}

// NewTrivyScanner creates a trivy filesystem scanner.
func NewTrivyScanner(timeout time.Duration, cacheDir string) *TrivyScanner {
	if cacheDir == "" {
		cacheDir = filepath.Join(".", ".cache", "trivy")
	}
	return &TrivyScanner{Timeout: timeout, CacheDir: cacheDir}
}

// Scan runs `trivy fs` over targetDir and writes the JSON report to
// reportPath. A non-zero exit that still produced a report counts as a
// pass with warnings, matching trivy's behavior for partial results.
func (t *TrivyScanner) Scan(ctx context.Context, targetDir, reportPath string) error {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	if err := os.MkdirAll(filepath.Dir(reportPath), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, "trivy", "fs",
		"--format", "json",
		"--output", reportPath,
		"--timeout", "120m0s",
		"--ignore-unfixed",
		"--scanners", "vuln",
		"--vuln-type", "os,library",
		"--severity", "CRITICAL,HIGH,MEDIUM,LOW",
		"--cache-dir", t.CacheDir,
		targetDir,
	)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("scan timeout after %s", t.Timeout)
	}
	if err != nil {
		if _, statErr := os.Stat(reportPath); statErr == nil {
			fmt.Printf("Warning: scan completed with warnings: %s\n", strings.TrimSpace(string(out)))
			return nil
		}
		return fmt.Errorf("trivy scan failed: %s", strings.TrimSpace(string(out)))
	}
	return nil
}
