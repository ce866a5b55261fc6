package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rohankatakam/repograph/internal/errors"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// CredentialManager handles credential retrieval with priority chain
// Priority: Environment Variables → Keychain → Credentials File → Interactive Prompt
type CredentialManager struct {
	mode       DeploymentMode
	keyring    *KeyringManager
	configPath string
	prompt     func(label string) (string, error)
}

// Credentials holds all user credentials
type Credentials struct {
	GitHubToken   string `yaml:"github_token,omitempty"`
	Neo4jPassword string `yaml:"neo4j_password,omitempty"`
}

// NewCredentialManager creates a new credential manager
func NewCredentialManager() *CredentialManager {
	homeDir, _ := os.UserHomeDir()
	cm := &CredentialManager{
		mode:       DetectMode(),
		keyring:    NewKeyringManager(),
		configPath: filepath.Join(homeDir, ".config", "repograph", "credentials.yaml"),
	}
	cm.prompt = cm.promptSecurely
	return cm
}

// GetGitHubToken retrieves the GitHub token using priority chain. The
// token is optional: public repositories work without one.
func (cm *CredentialManager) GetGitHubToken() (string, error) {
	for _, envVar := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if token := os.Getenv(envVar); token != "" {
			return token, nil
		}
	}

	if cm.keyring.IsAvailable() {
		if token, err := cm.keyring.GetGitHubToken(); err == nil && token != "" {
			return token, nil
		}
	}

	if creds, err := cm.loadConfigFile(); err == nil && creds.GitHubToken != "" {
		return creds.GitHubToken, nil
	}

	if cm.mode.AllowsInteractivePrompts() && isInteractive() {
		fmt.Println("\nGitHub token not found (optional).")
		fmt.Println("   Required for: private repos, higher rate limits")
		token, _ := cm.prompt("Enter GitHub token (or press Enter to skip): ")
		if token != "" && cm.keyring.IsAvailable() {
			_ = cm.keyring.SetGitHubToken(token)
		}
		return token, nil
	}

	return "", nil
}

// GetNeo4jPassword retrieves the graph store password using priority chain
func (cm *CredentialManager) GetNeo4jPassword() (string, error) {
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		return password, nil
	}

	if cm.keyring.IsAvailable() {
		if password, err := cm.keyring.GetNeo4jPassword(); err == nil && password != "" {
			return password, nil
		}
	}

	if creds, err := cm.loadConfigFile(); err == nil && creds.Neo4jPassword != "" {
		return creds.Neo4jPassword, nil
	}

	if cm.mode.AllowsInteractivePrompts() && isInteractive() {
		password, err := cm.prompt("Enter Neo4j password: ")
		if err != nil {
			return "", err
		}
		if password == "" {
			return "", errors.ConfigError("Neo4j password is required")
		}
		if cm.keyring.IsAvailable() {
			_ = cm.keyring.SetNeo4jPassword(password)
		}
		return password, nil
	}

	return "", errors.ConfigErrorf(
		"NEO4J_PASSWORD not found. Set it via:\n"+
			"  1. Environment variable: export NEO4J_PASSWORD=...\n"+
			"  2. Run: repograph auth set-neo4j-password\n"+
			"  3. Credentials file: %s", cm.configPath)
}

// Resolve fills missing secrets in cfg from the credential chain
func (cm *CredentialManager) Resolve(cfg *Config, needStore bool) error {
	if cfg.GitHub.Token == "" {
		token, err := cm.GetGitHubToken()
		if err != nil {
			return err
		}
		cfg.GitHub.Token = token
	}

	if needStore && cfg.Neo4j.Password == "" {
		password, err := cm.GetNeo4jPassword()
		if err != nil {
			return err
		}
		cfg.Neo4j.Password = password
	}
	return nil
}

// SaveCredentials saves credentials to keychain (preferred) or credentials file (fallback)
func (cm *CredentialManager) SaveCredentials(creds Credentials) error {
	if cm.keyring.IsAvailable() {
		if creds.GitHubToken != "" {
			if err := cm.keyring.SetGitHubToken(creds.GitHubToken); err != nil {
				return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh,
					"failed to save GitHub token to keychain")
			}
		}
		if creds.Neo4jPassword != "" {
			if err := cm.keyring.SetNeo4jPassword(creds.Neo4jPassword); err != nil {
				return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh,
					"failed to save Neo4j password to keychain")
			}
		}
		return nil
	}

	existing, err := cm.loadConfigFile()
	if err != nil {
		existing = &Credentials{}
	}
	if creds.GitHubToken != "" {
		existing.GitHubToken = creds.GitHubToken
	}
	if creds.Neo4jPassword != "" {
		existing.Neo4jPassword = creds.Neo4jPassword
	}
	return cm.saveConfigFile(*existing)
}

// ClearCredentials removes stored secrets from keychain and credentials file
func (cm *CredentialManager) ClearCredentials() error {
	if cm.keyring.IsAvailable() {
		if err := cm.keyring.DeleteGitHubToken(); err != nil {
			return err
		}
		if err := cm.keyring.DeleteNeo4jPassword(); err != nil {
			return err
		}
	}
	if err := os.Remove(cm.configPath); err != nil && !os.IsNotExist(err) {
		return errors.FileSystemError(err, "failed to remove credentials file")
	}
	return nil
}

// PromptSecret reads a secret from the terminal without echo
func (cm *CredentialManager) PromptSecret(label string) (string, error) {
	return cm.prompt(label)
}

// loadConfigFile loads credentials from the credentials file
func (cm *CredentialManager) loadConfigFile() (*Credentials, error) {
	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	return &creds, nil
}

// saveConfigFile saves credentials with user-only permissions
func (cm *CredentialManager) saveConfigFile(creds Credentials) error {
	dir := filepath.Dir(cm.configPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}

	return os.WriteFile(cm.configPath, data, 0600)
}

// promptSecurely reads a password/token from stdin without echoing
func (cm *CredentialManager) promptSecurely(label string) (string, error) {
	fmt.Print(label)

	if term.IsTerminal(int(syscall.Stdin)) {
		bytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytes)), nil
	}

	// Piped input
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// isInteractive returns true if stdin is a terminal (not piped)
func isInteractive() bool {
	return term.IsTerminal(int(syscall.Stdin))
}

// GetConfigPath returns the path to the credentials file
func (cm *CredentialManager) GetConfigPath() string {
	return cm.configPath
}
