package aggregator

import (
	"regexp"
	"strings"

	apperrors "github.com/sparta-security/sparta/internal/errors"
)

var cveIDRe = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)

// NormalizeCVEID validates and uppercases a CVE identifier
// (CVE-YYYY-NNNN+).
func NormalizeCVEID(cveID string) (string, error) {
	upper := strings.ToUpper(strings.TrimSpace(cveID))
	if !cveIDRe.MatchString(upper) {
		return "", apperrors.NewBadRequestError("invalid CVE ID format: expected CVE-YYYY-NNNN")
	}
	return upper, nil
}

// Finding is one occurrence of a queried CVE with full detail.
type Finding struct {
	CVE            string `json:"cve"`
	Repository     string `json:"repository"`
	Org            string `json:"org"`
	Repo           string `json:"repo"`
	ScanDate       string `json:"scan_date"`
	Severity       string `json:"severity"`
	Package        string `json:"package"`
	PackageVersion string `json:"package_version"`
	FixedVersion   string `json:"fixed_version"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	PublishedDate  string `json:"published_date"`
}

// FindCVE searches every stored report for the given CVE.
func FindCVE(reportsDir, cveID string) ([]Finding, error) {
	cveID, err := NormalizeCVEID(cveID)
	if err != nil {
		return nil, err
	}

	reports, err := LoadReports(reportsDir)
	if err != nil {
		return nil, err
	}

	var findings []Finding
	for _, report := range reports {
		if report.Data.Error != "" {
			continue
		}
		for _, result := range report.Data.Results {
			for _, vuln := range result.Vulnerabilities {
				if vuln.VulnerabilityID != cveID {
					continue
				}
				findings = append(findings, Finding{
					CVE:            cveID,
					Repository:     report.Org + "/" + report.Repo,
					Org:            report.Org,
					Repo:           report.Repo,
					ScanDate:       report.ScanDate,
					Severity:       strings.ToUpper(vuln.Severity),
					Package:        vuln.PkgName,
					PackageVersion: vuln.InstalledVersion,
					FixedVersion:   vuln.FixedVersion,
					Title:          vuln.Title,
					Description:    vuln.Description,
					PublishedDate:  vuln.PublishedDate,
				})
			}
		}
	}
	return findings, nil
}
