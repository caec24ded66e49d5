package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the run configuration. It is built once at startup and
// threaded through every component; nothing reads the environment ad hoc.
type Config struct {
	// Organizations to scan, in order. Multi-org mode when len > 1.
	Orgs []string

	// Credentials
	DefaultToken string            // fallback bearer token
	TokenMap     map[string]string // per-org tokens, keyed by org name

	// SelfRepo is the full name of the repository hosting the scan run.
	// It is scanned in place instead of being cloned.
	SelfRepo string

	// Batching / retry policy
	BatchSize      int
	MaxRetries     int // 0 disables retry
	BatchThreshold int // batching activates above this repo count per org

	// Paths
	ReportsDir string
	StateDir   string
	OutputPath string // GitHub Actions output file, optional

	// Subprocess budgets
	CloneTimeout time.Duration
	ScanTimeout  time.Duration

	// API Server
	APIPort string
	APIHost string
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Orgs:           parseOrgs(os.Getenv("GITHUB_ORGS"), os.Getenv("GITHUB_ORG")),
		DefaultToken:   getEnv("GITHUB_TOKEN", ""),
		SelfRepo:       getEnv("GITHUB_REPOSITORY", ""),
		BatchSize:      getEnvInt("BATCH_SIZE", 100),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		BatchThreshold: getEnvInt("BATCH_THRESHOLD", 500),
		ReportsDir:     getEnv("REPORTS_DIR", "vulnerability-reports"),
		StateDir:       getEnv("STATE_DIR", "."),
		OutputPath:     getEnv("GITHUB_OUTPUT", ""),
		CloneTimeout:   time.Duration(getEnvInt("CLONE_TIMEOUT", 300)) * time.Second,
		ScanTimeout:    time.Duration(getEnvInt("SCAN_TIMEOUT", 900)) * time.Second,
		APIPort:        getEnv("API_PORT", "8080"),
		APIHost:        getEnv("API_HOST", "localhost"),
	}

	tokenMap, err := parseTokenMap(os.Getenv("GITHUB_TOKEN_MAP"))
	if err != nil {
		return nil, err
	}
	cfg.TokenMap = tokenMap

	return cfg, nil
}

// parseOrgs resolves the organization list. GITHUB_ORGS takes precedence
// over GITHUB_ORG; entries are trimmed and empty entries dropped.
func parseOrgs(orgsValue, orgValue string) []string {
	var orgs []string
	for _, org := range strings.Split(orgsValue, ",") {
		if org = strings.TrimSpace(org); org != "" {
			orgs = append(orgs, org)
		}
	}
	if len(orgs) > 0 {
		return orgs
	}
	if org := strings.TrimSpace(orgValue); org != "" {
		return []string{org}
	}
	return nil
}

// parseTokenMap decodes the per-organization credential map.
func parseTokenMap(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]string{}, nil
	}
	tokenMap := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &tokenMap); err != nil {
		return nil, &ConfigError{Field: "GITHUB_TOKEN_MAP", Message: "must be a JSON object of org to token"}
	}
	return tokenMap, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Orgs) == 0 {
		return &ConfigError{Field: "GITHUB_ORGS", Message: "no organizations specified (set GITHUB_ORGS or GITHUB_ORG)"}
	}
	if c.BatchSize < 1 {
		return &ConfigError{Field: "BATCH_SIZE", Message: "must be at least 1"}
	}
	if c.MaxRetries < 0 {
		return &ConfigError{Field: "MAX_RETRIES", Message: "must not be negative"}
	}
	if c.DefaultToken == "" && len(c.TokenMap) == 0 {
		return &ConfigError{Field: "GITHUB_TOKEN", Message: "no credentials provided (set GITHUB_TOKEN or GITHUB_TOKEN_MAP)"}
	}
	return nil
}

// MultiOrg reports whether the run covers more than one organization.
func (c *Config) MultiOrg() bool {
	return len(c.Orgs) > 1
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
