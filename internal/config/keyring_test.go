package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringManager_GitHubTokenRoundTrip(t *testing.T) {
	keyring.MockInit()
	km := NewKeyringManager()
	require.True(t, km.IsAvailable())

	token, err := km.GetGitHubToken()
	require.NoError(t, err)
	assert.Empty(t, token, "missing token is not an error")

	require.NoError(t, km.SetGitHubToken("ghp_test123456789"))
	token, err = km.GetGitHubToken()
	require.NoError(t, err)
	assert.Equal(t, "ghp_test123456789", token)

	require.NoError(t, km.DeleteGitHubToken())
	require.NoError(t, km.DeleteGitHubToken(), "deleting twice is fine")
	token, err = km.GetGitHubToken()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestKeyringManager_RejectsEmpty(t *testing.T) {
	keyring.MockInit()
	km := NewKeyringManager()
	assert.Error(t, km.SetNeo4jPassword(""))
}

func TestCredentialManager_PriorityChain(t *testing.T) {
	keyring.MockInit()
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")
	t.Setenv("NEO4J_PASSWORD", "")
	t.Setenv("REPOGRAPH_MODE", "ci")

	cm := NewCredentialManager()
	cm.configPath = filepath.Join(t.TempDir(), "credentials.yaml")

	t.Run("nothing configured", func(t *testing.T) {
		token, err := cm.GetGitHubToken()
		require.NoError(t, err)
		assert.Empty(t, token)

		_, err = cm.GetNeo4jPassword()
		assert.Error(t, err)
	})

	t.Run("keychain", func(t *testing.T) {
		require.NoError(t, cm.SaveCredentials(Credentials{Neo4jPassword: "s3cret-pass"}))
		password, err := cm.GetNeo4jPassword()
		require.NoError(t, err)
		assert.Equal(t, "s3cret-pass", password)
	})

	t.Run("env wins over keychain", func(t *testing.T) {
		t.Setenv("NEO4J_PASSWORD", "from-env")
		password, err := cm.GetNeo4jPassword()
		require.NoError(t, err)
		assert.Equal(t, "from-env", password)
	})

	t.Run("resolve fills config", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, cm.Resolve(cfg, true))
		assert.Equal(t, "s3cret-pass", cfg.Neo4j.Password)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, cm.ClearCredentials())
		_, err := cm.GetNeo4jPassword()
		assert.Error(t, err)
	})
}

func TestCredentialManager_FileFallback(t *testing.T) {
	cm := &CredentialManager{
		mode:       ModeCI,
		keyring:    NewKeyringManager(),
		configPath: filepath.Join(t.TempDir(), "nested", "credentials.yaml"),
	}

	require.NoError(t, cm.saveConfigFile(Credentials{GitHubToken: "ghp_file"}))
	info, err := os.Stat(cm.configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	creds, err := cm.loadConfigFile()
	require.NoError(t, err)
	assert.Equal(t, "ghp_file", creds.GitHubToken)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "(not set)", MaskSecret(""))
	assert.Equal(t, "***", MaskSecret("short"))
	assert.Equal(t, "ghp_...wxyz", MaskSecret("ghp_abcdefghijklmnopqrstuvwxyz"))
}
