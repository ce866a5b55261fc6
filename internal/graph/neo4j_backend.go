package graph

import (
	"context"
	"fmt"
	"log/slog"
)

// Neo4jBackend implements Backend over a Neo4j database with parameterized
// UNWIND queries.
type Neo4jBackend struct {
	client *Client
	writer *BatchWriter
	logger *slog.Logger
}

// NewNeo4jBackend connects to Neo4j and returns a backend
func NewNeo4jBackend(ctx context.Context, opts Neo4jOptions, batch BatchConfig) (*Neo4jBackend, error) {
	client, err := NewClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Neo4jBackend{
		client: client,
		writer: NewBatchWriter(client, batch),
		logger: slog.Default().With("component", "neo4j_backend"),
	}, nil
}

func (n *Neo4jBackend) BoundRepositoryURL(ctx context.Context) (string, error) {
	rows, err := n.client.ExecuteRead(ctx, "binding_check", BindingQuery, nil)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	url, _ := rows[0]["url"].(string)
	return url, nil
}

func (n *Neo4jBackend) EnsureSchema(ctx context.Context, labels []NodeKind) error {
	txConfig := GetConfigForOperation("schema")
	for _, label := range labels {
		query, err := BuildUniqueConstraint(label)
		if err != nil {
			return err
		}
		if _, err := n.client.ExecuteWrite(ctx, txConfig, query, nil); err != nil {
			return fmt.Errorf("failed to create constraint for %s: %w", label, err)
		}
	}
	n.logger.Debug("schema constraints ensured", "labels", len(labels))
	return nil
}

func (n *Neo4jBackend) UpsertNodes(ctx context.Context, label NodeKind, rows []NodeRow) error {
	return n.writer.WriteNodes(ctx, label, rows)
}

func (n *Neo4jBackend) UpsertEdges(ctx context.Context, group EdgeGroup) error {
	return n.writer.WriteEdges(ctx, group)
}

func (n *Neo4jBackend) DeleteNodes(ctx context.Context, label NodeKind, ids []string) error {
	return n.writer.DeleteNodes(ctx, label, ids)
}

// HealthCheck verifies the store is reachable
func (n *Neo4jBackend) HealthCheck(ctx context.Context) error {
	return n.client.HealthCheck(ctx)
}

func (n *Neo4jBackend) Close(ctx context.Context) error {
	n.writer.Monitor().LogSummary()
	return n.client.Close(ctx)
}

// CountNodes returns the number of stored nodes per label
func (n *Neo4jBackend) CountNodes(ctx context.Context) (map[NodeKind]int64, error) {
	counts := make(map[NodeKind]int64, len(AllKinds))
	for _, label := range AllKinds {
		query, err := BuildCountNodes(label)
		if err != nil {
			return nil, err
		}
		rows, err := n.client.ExecuteRead(ctx, "node_count", query, nil)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			counts[label], _ = rows[0]["count"].(int64)
		}
	}
	return counts, nil
}
