package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rohankatakam/repograph/internal/errors"
)

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextIngest - ingest needs the graph store, GitHub and a data dir
	ValidationContextIngest ValidationContext = "ingest"
	// ValidationContextDryRun - ingest without a graph store
	ValidationContextDryRun ValidationContext = "dry-run"
	// ValidationContextSZZ - the szz command only needs a local clone
	ValidationContextSZZ ValidationContext = "szz"
	// ValidationContextServe - serve needs everything ingest needs plus an address
	ValidationContextServe ValidationContext = "serve"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

// Validate validates configuration for the given context with auto-detected mode
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	return c.ValidateWithMode(ctx, DetectMode())
}

// ValidateWithMode validates configuration for the given context and deployment mode
func (c *Config) ValidateWithMode(ctx ValidationContext, mode DeploymentMode) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextIngest:
		c.validateDirs(result)
		c.validateNeo4j(result, mode)
		c.validateGitHub(result)
		c.validateSZZ(result)
		c.validateLedger(result)
	case ValidationContextDryRun:
		c.validateDirs(result)
		c.validateGitHub(result)
		c.validateSZZ(result)
		c.validateLedger(result)
	case ValidationContextSZZ:
		c.validateSZZ(result)
	case ValidationContextServe:
		c.validateDirs(result)
		c.validateNeo4j(result, mode)
		c.validateGitHub(result)
		c.validateSZZ(result)
		c.validateLedger(result)
		if c.Server.Addr == "" {
			result.AddError("server.addr is required")
		}
	}

	return result
}

// Require validates and returns a config error when anything is missing
func (c *Config) Require(ctx ValidationContext) error {
	result := c.Validate(ctx)
	if result.HasErrors() {
		return errors.ConfigError(result.Error())
	}
	return nil
}

func (c *Config) validateDirs(result *ValidationResult) {
	if c.DataDir == "" {
		result.AddError("data_dir is required")
	}
	if c.ReposDir == "" {
		result.AddError("repos_dir is required")
	}
}

func (c *Config) validateNeo4j(result *ValidationResult, mode DeploymentMode) {
	if c.Neo4j.URI == "" {
		result.AddError("NEO4J_URI is required but not set")
	} else if u, err := url.Parse(c.Neo4j.URI); err != nil {
		result.AddError("NEO4J_URI is invalid: %v", err)
	} else if !strings.HasPrefix(u.Scheme, "bolt") && !strings.HasPrefix(u.Scheme, "neo4j") {
		result.AddError("NEO4J_URI must use a bolt:// or neo4j:// scheme, got %q", u.Scheme)
	}

	if c.Neo4j.User == "" {
		result.AddError("NEO4J_USER is required but not set")
	}

	if c.Neo4j.Password == "" {
		result.AddError("NEO4J_PASSWORD is required but not set. Set it via environment variable, keychain or credentials file.")
	} else if mode.RequiresSecureCredentials() {
		for _, insecure := range []string{"password", "neo4j"} {
			if c.Neo4j.Password == insecure {
				result.AddError("NEO4J_PASSWORD is set to an insecure default (%s), not allowed in %s mode", insecure, mode)
			}
		}
	}

	if c.Neo4j.Database == "" {
		result.AddWarning("NEO4J_DATABASE is not set, will use 'neo4j' as default")
	}
	if c.Neo4j.BatchSize <= 0 {
		result.AddWarning("neo4j.batch_size is invalid, will use default")
	}
}

func (c *Config) validateGitHub(result *ValidationResult) {
	if c.GitHub.Token == "" {
		result.AddWarning("GITHUB_TOKEN is not set. Unauthenticated requests are limited to 60 per hour.")
	}
	if c.GitHub.RateLimit <= 0 {
		result.AddError("github.rate_limit must be positive, got %v", c.GitHub.RateLimit)
	}
	if c.GitHub.MaxRetries < 0 {
		result.AddError("github.max_retries must not be negative")
	}
}

func (c *Config) validateSZZ(result *ValidationResult) {
	switch c.SZZ.FixLookup {
	case "index", "grep":
	default:
		result.AddError("szz.fix_lookup must be 'index' or 'grep', got %q", c.SZZ.FixLookup)
	}
	if c.SZZ.Workers <= 0 {
		result.AddWarning("szz.workers is %d, blame will run on a single worker", c.SZZ.Workers)
	}
}

func (c *Config) validateLedger(result *ValidationResult) {
	switch c.Ledger.Driver {
	case "":
		result.AddWarning("ledger.driver is not set, run history will not be recorded")
	case "sqlite3", "postgres", "pgx":
		if c.Ledger.DSN == "" {
			result.AddError("ledger.dsn is required for driver %s", c.Ledger.Driver)
		}
	default:
		result.AddError("ledger.driver must be sqlite3, postgres or pgx, got %q", c.Ledger.Driver)
	}
}
