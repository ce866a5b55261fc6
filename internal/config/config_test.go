package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"GITHUB_TOKEN", "GH_TOKEN", "GITHUB_RATE_LIMIT", "NEO4J_URI", "NEO4J_USER",
		"NEO4J_PASSWORD", "NEO4J_DATABASE", "REPOGRAPH_DATA_DIR", "LOG_LEVEL", "REPOGRAPH_SZZ_WORKERS"} {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "index", cfg.SZZ.FixLookup)
	assert.Equal(t, 500, cfg.Neo4j.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.GitHub.BaseBackoff)
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "repograph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/repograph
github:
  rate_limit: 2.5
  base_backoff: 500ms
neo4j:
  uri: neo4j://graph:7687
  batch_size: 100
szz:
  fix_lookup: grep
  workers: 2
ingest:
  timeout: 30m
`), 0644))

	t.Setenv("NEO4J_PASSWORD", "from-env")
	t.Setenv("REPOGRAPH_SZZ_WORKERS", "9")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/repograph", cfg.DataDir)
	assert.Equal(t, 2.5, cfg.GitHub.RateLimit)
	assert.Equal(t, 500*time.Millisecond, cfg.GitHub.BaseBackoff)
	assert.Equal(t, "neo4j://graph:7687", cfg.Neo4j.URI)
	assert.Equal(t, 100, cfg.Neo4j.BatchSize)
	assert.Equal(t, "grep", cfg.SZZ.FixLookup)
	assert.Equal(t, 9, cfg.SZZ.Workers, "prefixed env overrides the file")
	assert.Equal(t, 30*time.Minute, cfg.Ingest.Timeout)
	assert.Equal(t, "from-env", cfg.Neo4j.Password)
}

func TestSave_OmitsSecrets(t *testing.T) {
	cfg := Default()
	cfg.GitHub.Token = "ghp_secret"
	cfg.Neo4j.Password = "secret"

	path := filepath.Join(t.TempDir(), "out", "repograph.yaml")
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ghp_secret")
	assert.NotContains(t, string(data), "password: secret")
	assert.Contains(t, string(data), "fix_lookup: index")
	assert.Equal(t, "ghp_secret", cfg.GitHub.Token, "Save must not mutate the receiver")
}

func TestValidate(t *testing.T) {
	t.Run("ingest requires store password", func(t *testing.T) {
		cfg := Default()
		result := cfg.ValidateWithMode(ValidationContextIngest, ModeDevelopment)
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "NEO4J_PASSWORD")
	})

	t.Run("dry run skips store", func(t *testing.T) {
		cfg := Default()
		result := cfg.ValidateWithMode(ValidationContextDryRun, ModeDevelopment)
		assert.False(t, result.HasErrors(), result.Error())
	})

	t.Run("bad fix lookup", func(t *testing.T) {
		cfg := Default()
		cfg.SZZ.FixLookup = "magic"
		result := cfg.ValidateWithMode(ValidationContextSZZ, ModeDevelopment)
		assert.True(t, result.HasErrors())
	})

	t.Run("insecure password in ci", func(t *testing.T) {
		cfg := Default()
		cfg.Neo4j.Password = "neo4j"
		result := cfg.ValidateWithMode(ValidationContextIngest, ModeCI)
		assert.True(t, result.HasErrors())
	})

	t.Run("unknown ledger driver", func(t *testing.T) {
		cfg := Default()
		cfg.Ledger.Driver = "mysql"
		result := cfg.ValidateWithMode(ValidationContextDryRun, ModeDevelopment)
		assert.True(t, result.HasErrors())
	})
}
