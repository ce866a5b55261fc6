package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings
type Config struct {
	// DataDir holds the per-repository baseline and delta JSON files
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	// ReposDir holds local clones, one directory per repository name
	ReposDir string `mapstructure:"repos_dir" yaml:"repos_dir"`

	GitHub  GitHubConfig  `mapstructure:"github" yaml:"github"`
	Neo4j   Neo4jConfig   `mapstructure:"neo4j" yaml:"neo4j"`
	SZZ     SZZConfig     `mapstructure:"szz" yaml:"szz"`
	Ingest  IngestConfig  `mapstructure:"ingest" yaml:"ingest"`
	Ledger  LedgerConfig  `mapstructure:"ledger" yaml:"ledger"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
}

type GitHubConfig struct {
	Token       string        `mapstructure:"token" yaml:"token,omitempty"`
	RateLimit   float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	MaxWorkers  int           `mapstructure:"max_workers" yaml:"max_workers"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
	BaseBackoff time.Duration `mapstructure:"base_backoff" yaml:"base_backoff"`
}

type Neo4jConfig struct {
	URI         string `mapstructure:"uri" yaml:"uri"`
	User        string `mapstructure:"user" yaml:"user"`
	Password    string `mapstructure:"password" yaml:"password,omitempty"`
	Database    string `mapstructure:"database" yaml:"database"`
	MaxPoolSize int    `mapstructure:"max_pool_size" yaml:"max_pool_size"`
	BatchSize   int    `mapstructure:"batch_size" yaml:"batch_size"`
	BrowserURL  string `mapstructure:"browser_url" yaml:"browser_url"`
}

type SZZConfig struct {
	Workers           int    `mapstructure:"workers" yaml:"workers"`
	FixLookup         string `mapstructure:"fix_lookup" yaml:"fix_lookup"` // "index" or "grep"
	CachePath         string `mapstructure:"cache_path" yaml:"cache_path"`
	IgnoreWhitespace  bool   `mapstructure:"ignore_whitespace" yaml:"ignore_whitespace"`
	RecheckOpenIssues bool   `mapstructure:"recheck_open_issues" yaml:"recheck_open_issues"`
}

type IngestConfig struct {
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"` // 0 = no per-run timeout
	CollectWorkers int           `mapstructure:"collect_workers" yaml:"collect_workers"`
}

type LedgerConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "sqlite3", "postgres", "pgx"
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	JSON       bool   `mapstructure:"json" yaml:"json"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		DataDir:  "data",
		ReposDir: "repos",
		GitHub: GitHubConfig{
			RateLimit:   1, // GitHub secondary limits punish bursts
			MaxWorkers:  8,
			MaxRetries:  5,
			BaseBackoff: 2 * time.Second,
		},
		Neo4j: Neo4jConfig{
			URI:         "bolt://localhost:7687",
			User:        "neo4j",
			Database:    "neo4j",
			MaxPoolSize: 50,
			BatchSize:   500,
			BrowserURL:  "http://localhost:7474/browser/",
		},
		SZZ: SZZConfig{
			Workers:           4,
			FixLookup:         "index",
			CachePath:         filepath.Join("data", "blame_cache.db"),
			IgnoreWhitespace:  true,
			RecheckOpenIssues: true,
		},
		Ingest: IngestConfig{
			CollectWorkers: 4,
		},
		Ledger: LedgerConfig{
			Driver: "sqlite3",
			DSN:    filepath.Join("data", "repograph.db"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       filepath.Join("logs", "repograph.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// setDefaults registers every leaf key so AutomaticEnv can see it
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("repos_dir", cfg.ReposDir)

	v.SetDefault("github.token", cfg.GitHub.Token)
	v.SetDefault("github.rate_limit", cfg.GitHub.RateLimit)
	v.SetDefault("github.max_workers", cfg.GitHub.MaxWorkers)
	v.SetDefault("github.max_retries", cfg.GitHub.MaxRetries)
	v.SetDefault("github.base_backoff", cfg.GitHub.BaseBackoff)

	v.SetDefault("neo4j.uri", cfg.Neo4j.URI)
	v.SetDefault("neo4j.user", cfg.Neo4j.User)
	v.SetDefault("neo4j.password", cfg.Neo4j.Password)
	v.SetDefault("neo4j.database", cfg.Neo4j.Database)
	v.SetDefault("neo4j.max_pool_size", cfg.Neo4j.MaxPoolSize)
	v.SetDefault("neo4j.batch_size", cfg.Neo4j.BatchSize)
	v.SetDefault("neo4j.browser_url", cfg.Neo4j.BrowserURL)

	v.SetDefault("szz.workers", cfg.SZZ.Workers)
	v.SetDefault("szz.fix_lookup", cfg.SZZ.FixLookup)
	v.SetDefault("szz.cache_path", cfg.SZZ.CachePath)
	v.SetDefault("szz.ignore_whitespace", cfg.SZZ.IgnoreWhitespace)
	v.SetDefault("szz.recheck_open_issues", cfg.SZZ.RecheckOpenIssues)

	v.SetDefault("ingest.timeout", cfg.Ingest.Timeout)
	v.SetDefault("ingest.collect_workers", cfg.Ingest.CollectWorkers)

	v.SetDefault("ledger.driver", cfg.Ledger.Driver)
	v.SetDefault("ledger.dsn", cfg.Ledger.DSN)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.json", cfg.Logging.JSON)
	v.SetDefault("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)

	v.SetDefault("server.addr", cfg.Server.Addr)
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	setDefaults(v, cfg)

	// REPOGRAPH_NEO4J_URI -> neo4j.uri
	v.SetEnvPrefix("REPOGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("repograph")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".config", "repograph"))
		v.AddConfigPath("/etc/repograph")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	cfg.DataDir = expandPath(cfg.DataDir)
	cfg.ReposDir = expandPath(cfg.ReposDir)
	cfg.SZZ.CachePath = expandPath(cfg.SZZ.CachePath)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence. godotenv never
// overrides variables that are already set, so the first file wins.
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".config", "repograph", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		_ = godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies the unprefixed variables operators already use
func applyEnvOverrides(cfg *Config) {
	for _, envVar := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if token := os.Getenv(envVar); token != "" {
			cfg.GitHub.Token = token
			break
		}
	}
	if rateLimit := os.Getenv("GITHUB_RATE_LIMIT"); rateLimit != "" {
		if r, err := strconv.ParseFloat(rateLimit, 64); err == nil {
			cfg.GitHub.RateLimit = r
		}
	}

	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Neo4j.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Neo4j.User = user
	}
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Neo4j.Password = password
	}
	if database := os.Getenv("NEO4J_DATABASE"); database != "" {
		cfg.Neo4j.Database = database
	}

	if dir := os.Getenv("REPOGRAPH_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save writes the configuration as YAML. Secrets are left out; they belong
// in the keychain or the credentials file.
func (c *Config) Save(path string) error {
	out := *c
	out.GitHub.Token = ""
	out.Neo4j.Password = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
