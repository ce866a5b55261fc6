package config

import (
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "repograph"

	// KeyringGitHubTokenItem is the key for the GitHub token
	KeyringGitHubTokenItem = "github-token"

	// KeyringNeo4jPasswordItem is the key for the Neo4j password
	KeyringNeo4jPasswordItem = "neo4j-password"
)

// KeyringManager handles secure credential storage in OS keychain
type KeyringManager struct {
	logger *slog.Logger
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{
		logger: slog.Default().With("component", "keyring"),
	}
}

func (km *KeyringManager) get(item string) (string, error) {
	value, err := keyring.Get(KeyringService, item)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		km.logger.Error("failed to read from keychain", "item", item, "error", err)
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}
	km.logger.Debug("credential retrieved from keychain", "item", item)
	return value, nil
}

func (km *KeyringManager) set(item, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", item)
	}
	if err := keyring.Set(KeyringService, item, value); err != nil {
		km.logger.Error("failed to save to keychain", "item", item, "error", err)
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}
	km.logger.Info("credential saved to keychain", "service", KeyringService, "item", item)
	return nil
}

func (km *KeyringManager) delete(item string) error {
	err := keyring.Delete(KeyringService, item)
	if err == keyring.ErrNotFound {
		return nil
	}
	if err != nil {
		km.logger.Error("failed to delete from keychain", "item", item, "error", err)
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}
	km.logger.Info("credential deleted from keychain", "item", item)
	return nil
}

// GetGitHubToken retrieves GitHub token from OS keychain
func (km *KeyringManager) GetGitHubToken() (string, error) {
	return km.get(KeyringGitHubTokenItem)
}

// SetGitHubToken stores GitHub token securely in OS keychain
func (km *KeyringManager) SetGitHubToken(token string) error {
	return km.set(KeyringGitHubTokenItem, token)
}

// DeleteGitHubToken removes GitHub token from OS keychain
func (km *KeyringManager) DeleteGitHubToken() error {
	return km.delete(KeyringGitHubTokenItem)
}

// GetNeo4jPassword retrieves the graph store password from OS keychain
func (km *KeyringManager) GetNeo4jPassword() (string, error) {
	return km.get(KeyringNeo4jPasswordItem)
}

// SetNeo4jPassword stores the graph store password in OS keychain
func (km *KeyringManager) SetNeo4jPassword(password string) error {
	return km.set(KeyringNeo4jPasswordItem, password)
}

// DeleteNeo4jPassword removes the graph store password from OS keychain
func (km *KeyringManager) DeleteNeo4jPassword() error {
	return km.delete(KeyringNeo4jPasswordItem)
}

// IsAvailable checks if OS keychain is available.
// Returns false on headless systems (CI/CD) where keychain isn't available.
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "test-availability")
	if err == keyring.ErrNotFound {
		return true
	}
	if err != nil {
		km.logger.Debug("keychain not available", "error", err)
		return false
	}
	return true
}

// MaskSecret masks a token for display: first 4 and last 4 characters
func MaskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) < 12 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", secret[:4], secret[len(secret)-4:])
}
