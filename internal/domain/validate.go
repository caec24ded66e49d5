package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	orgNameRe  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]{0,38}$`)
	repoNameRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)
)

// ValidateOrgName checks that an organization name is well-formed.
// Names are used in file paths and subprocess arguments, so anything
// outside the GitHub character set is rejected outright.
func ValidateOrgName(name string) error {
	if !orgNameRe.MatchString(name) {
		return fmt.Errorf("invalid organization name: %q", name)
	}
	return nil
}

// ValidateRepoName checks that a repository name is well-formed.
func ValidateRepoName(name string) error {
	if !repoNameRe.MatchString(name) {
		return fmt.Errorf("invalid repository name: %q", name)
	}
	return nil
}

// ValidateRepoFullName checks an "org/repo" full name.
func ValidateRepoFullName(fullName string) error {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 {
		return fmt.Errorf("invalid repository full name: %q", fullName)
	}
	if err := ValidateOrgName(parts[0]); err != nil {
		return err
	}
	return ValidateRepoName(parts[1])
}
