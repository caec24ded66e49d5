package domain

// Repository represents a GitHub repository
type Repository struct {
	Org           string `json:"org"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	IsPrivate     bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
}

// CloneURL returns the HTTPS clone URL for the repository
func (r Repository) CloneURL() string {
	return "https://github.com/" + r.FullName + ".git"
}

// OrgRepos groups the repositories of a single organization
type OrgRepos struct {
	Org   string       `json:"org"`
	Repos []Repository `json:"repos"`
}
