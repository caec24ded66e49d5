package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GITHUB_ORGS", "")
	t.Setenv("GITHUB_ORG", "acme")
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("GITHUB_TOKEN_MAP", "")
	t.Setenv("BATCH_SIZE", "")
	t.Setenv("MAX_RETRIES", "")
	t.Setenv("BATCH_THRESHOLD", "")
	t.Setenv("REPORTS_DIR", "")
	t.Setenv("STATE_DIR", "")
	t.Setenv("CLONE_TIMEOUT", "")
	t.Setenv("SCAN_TIMEOUT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"acme"}, cfg.Orgs)
	assert.False(t, cfg.MultiOrg())
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 500, cfg.BatchThreshold)
	assert.Equal(t, "vulnerability-reports", cfg.ReportsDir)
	assert.Equal(t, ".", cfg.StateDir)
	assert.Equal(t, 300*time.Second, cfg.CloneTimeout)
	assert.Equal(t, 900*time.Second, cfg.ScanTimeout)
	assert.Equal(t, "8080", cfg.APIPort)
}

func TestLoad_OrgsPrecedenceAndTrimming(t *testing.T) {
	t.Setenv("GITHUB_ORGS", " acme , globex ,, initech ")
	t.Setenv("GITHUB_ORG", "ignored-org")
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("GITHUB_TOKEN_MAP", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"acme", "globex", "initech"}, cfg.Orgs)
	assert.True(t, cfg.MultiOrg())
}

func TestLoad_TokenMap(t *testing.T) {
	t.Setenv("GITHUB_ORGS", "acme,globex")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GITHUB_TOKEN_MAP", `{"acme":"ghp_acme","globex":"ghp_globex"}`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ghp_acme", cfg.TokenMap["acme"])
	assert.Equal(t, "ghp_globex", cfg.TokenMap["globex"])
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidTokenMap(t *testing.T) {
	t.Setenv("GITHUB_ORGS", "acme")
	t.Setenv("GITHUB_TOKEN_MAP", "not-json")

	_, err := Load()
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "GITHUB_TOKEN_MAP", cfgErr.Field)
}

func TestLoad_IntegerOverrides(t *testing.T) {
	t.Setenv("GITHUB_ORG", "acme")
	t.Setenv("GITHUB_ORGS", "")
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("GITHUB_TOKEN_MAP", "")
	t.Setenv("BATCH_SIZE", "50")
	t.Setenv("MAX_RETRIES", "0")
	t.Setenv("CLONE_TIMEOUT", "60")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 0, cfg.MaxRetries, "MAX_RETRIES=0 disables retry, not a default fallback")
	assert.Equal(t, 60*time.Second, cfg.CloneTimeout)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := &Config{
		Orgs:         []string{"acme"},
		DefaultToken: "ghp_test",
		BatchSize:    100,
		MaxRetries:   3,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"no orgs", func(c *Config) { c.Orgs = nil }, "GITHUB_ORGS"},
		{"batch size zero", func(c *Config) { c.BatchSize = 0 }, "BATCH_SIZE"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "MAX_RETRIES"},
		{"no credentials", func(c *Config) { c.DefaultToken = "" }, "GITHUB_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestValidate_TokenMapSatisfiesCredentials(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Orgs:       []string{"acme"},
		TokenMap:   map[string]string{"acme": "ghp_acme"},
		BatchSize:  100,
		MaxRetries: 3,
	}
	assert.NoError(t, cfg.Validate())
}
