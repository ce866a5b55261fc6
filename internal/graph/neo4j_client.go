package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jOptions holds connection settings for the graph store
type Neo4jOptions struct {
	URI         string
	User        string
	Password    string
	Database    string
	MaxPoolSize int
}

// Client wraps the Neo4j driver with error handling and query helpers
type Client struct {
	driver   neo4j.DriverWithContext
	logger   *slog.Logger
	database string
}

// NewClient creates a Neo4j client and verifies connectivity
func NewClient(ctx context.Context, opts Neo4jOptions) (*Client, error) {
	if opts.URI == "" || opts.User == "" || opts.Password == "" {
		return nil, fmt.Errorf("neo4j credentials missing: uri=%s, user=%s", opts.URI, opts.User)
	}
	if opts.Database == "" {
		opts.Database = "neo4j"
	}
	poolSize := opts.MaxPoolSize
	if poolSize <= 0 {
		poolSize = 50
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI,
		neo4j.BasicAuth(opts.User, opts.Password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = poolSize
			config.ConnectionAcquisitionTimeout = 60 * time.Second
			config.MaxConnectionLifetime = time.Hour
			config.ConnectionLivenessCheckTimeout = 5 * time.Second
			config.SocketConnectTimeout = 5 * time.Second
			config.SocketKeepalive = true
		})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	// Fail fast on startup
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", opts.URI, err)
	}

	logger := slog.Default().With("component", "neo4j")
	logger.Info("neo4j client connected",
		"uri", opts.URI,
		"user", opts.User,
		"database", opts.Database,
		"max_pool_size", poolSize)

	return &Client{
		driver:   driver,
		logger:   logger,
		database: opts.Database,
	}, nil
}

// Close closes the Neo4j driver connection
func (c *Client) Close(ctx context.Context) error {
	if err := c.driver.Close(ctx); err != nil {
		return fmt.Errorf("failed to close neo4j driver: %w", err)
	}
	c.logger.Info("neo4j client closed")
	return nil
}

// HealthCheck verifies Neo4j connectivity
func (c *Client) HealthCheck(ctx context.Context) error {
	txConfig := GetConfigForOperation("health_check")
	ctx, cancel := context.WithTimeout(ctx, txConfig.Timeout)
	defer cancel()

	if err := c.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j health check failed: %w", err)
	}
	return nil
}

// ExecuteRead runs a read query and returns the records as maps
func (c *Client) ExecuteRead(ctx context.Context, operation, query string, params map[string]any) ([]map[string]any, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	txConfig := GetConfigForOperation(operation)
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]map[string]any, 0, len(records))
		for _, record := range records {
			rows = append(rows, record.AsMap())
		}
		return rows, nil
	}, txConfig.AsNeo4jConfig()...)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", operation, err)
	}

	rows := out.([]map[string]any)
	c.logger.Debug("query executed", "operation", operation, "record_count", len(rows))
	return rows, nil
}

// ExecuteWrite runs one parameterized write in its own transaction and
// returns the counters reported by the server.
func (c *Client) ExecuteWrite(ctx context.Context, txConfig TransactionConfig, query string, params map[string]any) (neo4j.Counters, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		summary, err := result.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters(), nil
	}, txConfig.AsNeo4jConfig()...)
	if err != nil {
		return nil, err
	}
	return out.(neo4j.Counters), nil
}

// Driver returns the underlying Neo4j driver
func (c *Client) Driver() neo4j.DriverWithContext {
	return c.driver
}

// Database returns the configured database name
func (c *Client) Database() string {
	return c.database
}
