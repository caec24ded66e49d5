// Package aggregator indexes the scan report tree into summary
// statistics and a CVE index for fast lookups. The report tree is the
// only input; there is no database.
package aggregator

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sparta-security/sparta/internal/domain"
)

// Report is one loaded scan report with its tree metadata.
type Report struct {
	File     string
	Org      string
	Repo     string
	ScanDate string
	Data     trivyReport
}

// trivyReport is the subset of the scanner's report format the
// aggregation layer reads. Error stubs carry only the error field.
type trivyReport struct {
	Error   string `json:"error"`
	Results []struct {
		Vulnerabilities []vulnerability `json:"Vulnerabilities"`
	} `json:"Results"`
}

type vulnerability struct {
	VulnerabilityID  string `json:"VulnerabilityID"`
	Severity         string `json:"Severity"`
	PkgName          string `json:"PkgName"`
	InstalledVersion string `json:"InstalledVersion"`
	FixedVersion     string `json:"FixedVersion"`
	Title            string `json:"Title"`
	Description      string `json:"Description"`
	PublishedDate    string `json:"PublishedDate"`
}

// Occurrence is one sighting of a CVE in one repository scan.
type Occurrence struct {
	Repository     string `json:"repository"`
	Org            string `json:"org"`
	Repo           string `json:"repo"`
	ScanDate       string `json:"scan_date"`
	Severity       string `json:"severity"`
	Package        string `json:"package"`
	PackageVersion string `json:"package_version"`
	FixedVersion   string `json:"fixed_version"`
}

// RepoSummary is the per-repository vulnerability rollup.
type RepoSummary struct {
	Total    int      `json:"total"`
	Critical int      `json:"critical"`
	High     int      `json:"high"`
	Medium   int      `json:"medium"`
	Low      int      `json:"low"`
	CVEs     []string `json:"cves"`
}

// PackageSummary is the per-package rollup across repositories.
type PackageSummary struct {
	CVEs  []string `json:"cves"`
	Repos []string `json:"repos"`
}

// Statistics is the full aggregation output.
type Statistics struct {
	TotalScans           int                        `json:"total_scans"`
	Repositories         []string                   `json:"total_repositories"`
	Orgs                 []string                   `json:"total_orgs"`
	ScanDates            []string                   `json:"scan_dates"`
	SeverityDistribution map[string]int             `json:"severity_distribution"`
	CVEIndex             map[string][]Occurrence    `json:"cve_index"`
	RepoSummaries        map[string]*RepoSummary    `json:"repo_vulnerabilities"`
	PackageSummaries     map[string]*PackageSummary `json:"package_vulnerabilities"`
	GeneratedAt          time.Time                  `json:"generated_at"`
}

// LoadReports walks the report tree and loads every report file.
// Unparsable files are skipped with a warning so one bad artifact does
// not block aggregation.
func LoadReports(reportsDir string) ([]Report, error) {
	if _, err := os.Stat(reportsDir); err != nil {
		return nil, fmt.Errorf("reports directory %s does not exist", reportsDir)
	}

	var reports []Report
	err := filepath.WalkDir(reportsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != domain.ReportFileName {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("Warning: failed to read %s: %v\n", path, err)
			return nil
		}
		var report trivyReport
		if err := json.Unmarshal(data, &report); err != nil {
			fmt.Printf("Warning: failed to parse %s: %v\n", path, err)
			return nil
		}

		org, repo, scanDate := metadataFromPath(path)
		reports = append(reports, Report{
			File:     path,
			Org:      org,
			Repo:     repo,
			ScanDate: scanDate,
			Data:     report,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk report tree: %w", err)
	}
	return reports, nil
}

// metadataFromPath recovers org, repo and scan date from the report
// placement {reports-root}/{org}/{repo}/{date}/trivy-report.json.
func metadataFromPath(path string) (org, repo, scanDate string) {
	parts := strings.Split(filepath.ToSlash(path), "/")
	org, repo, scanDate = "unknown", "unknown", "unknown"
	if len(parts) >= 4 {
		org = parts[len(parts)-4]
		repo = parts[len(parts)-3]
		scanDate = parts[len(parts)-2]
	}
	return org, repo, scanDate
}

// Aggregate rolls every successful report into summary statistics.
// Error stubs are counted out entirely.
func Aggregate(reports []Report) *Statistics {
	stats := &Statistics{
		SeverityDistribution: map[string]int{},
		CVEIndex:             map[string][]Occurrence{},
		RepoSummaries:        map[string]*RepoSummary{},
		PackageSummaries:     map[string]*PackageSummary{},
		GeneratedAt:          time.Now().UTC(),
	}

	repoSet := map[string]bool{}
	orgSet := map[string]bool{}
	dateSet := map[string]bool{}

	for _, report := range reports {
		if report.Data.Error != "" {
			continue
		}
		stats.TotalScans++
		repoKey := report.Org + "/" + report.Repo
		repoSet[repoKey] = true
		orgSet[report.Org] = true
		dateSet[report.ScanDate] = true

		for _, result := range report.Data.Results {
			for _, vuln := range result.Vulnerabilities {
				if vuln.VulnerabilityID == "" {
					continue
				}
				severity := strings.ToUpper(vuln.Severity)
				if severity == "" {
					severity = "UNKNOWN"
				}

				stats.CVEIndex[vuln.VulnerabilityID] = append(stats.CVEIndex[vuln.VulnerabilityID], Occurrence{
					Repository:     repoKey,
					Org:            report.Org,
					Repo:           report.Repo,
					ScanDate:       report.ScanDate,
					Severity:       severity,
					Package:        vuln.PkgName,
					PackageVersion: vuln.InstalledVersion,
					FixedVersion:   vuln.FixedVersion,
				})
				stats.SeverityDistribution[severity]++

				summary := stats.RepoSummaries[repoKey]
				if summary == nil {
					summary = &RepoSummary{}
					stats.RepoSummaries[repoKey] = summary
				}
				summary.Total++
				summary.CVEs = appendUnique(summary.CVEs, vuln.VulnerabilityID)
				switch severity {
				case "CRITICAL":
					summary.Critical++
				case "HIGH":
					summary.High++
				case "MEDIUM":
					summary.Medium++
				case "LOW":
					summary.Low++
				}

				pkg := stats.PackageSummaries[vuln.PkgName]
				if pkg == nil {
					pkg = &PackageSummary{}
					stats.PackageSummaries[vuln.PkgName] = pkg
				}
				pkg.CVEs = appendUnique(pkg.CVEs, vuln.VulnerabilityID)
				pkg.Repos = appendUnique(pkg.Repos, repoKey)
			}
		}
	}

	stats.Repositories = sortedKeys(repoSet)
	stats.Orgs = sortedKeys(orgSet)
	stats.ScanDates = sortedKeys(dateSet)
	for _, summary := range stats.RepoSummaries {
		sort.Strings(summary.CVEs)
	}
	for _, pkg := range stats.PackageSummaries {
		sort.Strings(pkg.CVEs)
		sort.Strings(pkg.Repos)
	}
	return stats
}

// WriteOutputs persists the aggregation artifacts to outDir.
func WriteOutputs(stats *Statistics, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	outputs := map[string]any{
		"statistics.json":         stats,
		"cve-index.json":          stats.CVEIndex,
		"repository-summary.json": stats.RepoSummaries,
	}
	for name, value := range outputs {
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(outDir, name), data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	return os.WriteFile(filepath.Join(outDir, "summary.txt"), []byte(SummaryText(stats)), 0o644)
}

// SummaryText renders the human-readable aggregation summary.
func SummaryText(stats *Statistics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vulnerability Scan Aggregation Summary\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", stats.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Total Scans: %d\n", stats.TotalScans)
	fmt.Fprintf(&b, "Total Repositories: %d\n", len(stats.Repositories))
	fmt.Fprintf(&b, "Total Organizations: %d\n", len(stats.Orgs))
	if len(stats.ScanDates) > 0 {
		fmt.Fprintf(&b, "Scan Date Range: %s to %s\n", stats.ScanDates[0], stats.ScanDates[len(stats.ScanDates)-1])
	}
	fmt.Fprintf(&b, "Unique CVEs Found: %d\n\n", len(stats.CVEIndex))

	fmt.Fprintf(&b, "Severity Distribution:\n")
	for _, severity := range []string{"CRITICAL", "HIGH", "MEDIUM", "LOW", "UNKNOWN"} {
		if count := stats.SeverityDistribution[severity]; count > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", severity, count)
		}
	}

	fmt.Fprintf(&b, "\nTop Repositories by Vulnerability Count:\n")
	for _, repo := range topRepos(stats, 10) {
		summary := stats.RepoSummaries[repo]
		fmt.Fprintf(&b, "  %s: %d (C: %d, H: %d, M: %d, L: %d)\n",
			repo, summary.Total, summary.Critical, summary.High, summary.Medium, summary.Low)
	}

	fmt.Fprintf(&b, "\nMost Common CVEs:\n")
	for _, cve := range topCVEs(stats, 10) {
		fmt.Fprintf(&b, "  %s: found in %d repository scan(s)\n", cve, len(stats.CVEIndex[cve]))
	}
	return b.String()
}

// topRepos returns up to n repository keys ordered by vulnerability
// count descending, ties broken by name.
func topRepos(stats *Statistics, n int) []string {
	repos := make([]string, 0, len(stats.RepoSummaries))
	for repo := range stats.RepoSummaries {
		repos = append(repos, repo)
	}
	sort.Slice(repos, func(i, j int) bool {
		a, b := stats.RepoSummaries[repos[i]], stats.RepoSummaries[repos[j]]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return repos[i] < repos[j]
	})
	if len(repos) > n {
		repos = repos[:n]
	}
	return repos
}

// topCVEs returns up to n CVE IDs ordered by occurrence count
// descending, ties broken by ID.
func topCVEs(stats *Statistics, n int) []string {
	cves := make([]string, 0, len(stats.CVEIndex))
	for cve := range stats.CVEIndex {
		cves = append(cves, cve)
	}
	sort.Slice(cves, func(i, j int) bool {
		a, b := len(stats.CVEIndex[cves[i]]), len(stats.CVEIndex[cves[j]])
		if a != b {
			return a > b
		}
		return cves[i] < cves[j]
	})
	if len(cves) > n {
		cves = cves[:n]
	}
	return cves
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
