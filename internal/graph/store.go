package graph

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/rohankatakam/repograph/internal/errors"
)

// UpsertStats reports what one Upsert wrote
type UpsertStats struct {
	Nodes   int
	Edges   int
	Deleted int
}

// Store persists an in-memory graph through a Backend
type Store struct {
	backend Backend
	logger  *slog.Logger
}

// NewStore creates a store over backend
func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		logger:  slog.Default().With("component", "graph_store"),
	}
}

// Backend returns the underlying backend
func (s *Store) Backend() Backend {
	return s.backend
}

// normalizeRepoURL makes https://github.com/o/r, .../o/r/ and .../o/r.git
// compare equal.
func normalizeRepoURL(u string) string {
	u = strings.TrimSpace(u)
	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, ".git")
	return strings.ToLower(u)
}

// CheckBinding fails when the store already holds a different repository.
// An empty store is unbound and passes.
func (s *Store) CheckBinding(ctx context.Context, repoURL string) error {
	bound, err := s.backend.BoundRepositoryURL(ctx)
	if err != nil {
		return errors.StorageError(err, "failed to read repository binding")
	}
	if bound == "" {
		return nil
	}
	if normalizeRepoURL(bound) != normalizeRepoURL(repoURL) {
		return errors.StoreBindingErrorf("graph store already holds %s, refusing to ingest %s", bound, repoURL).
			WithContext("bound_url", bound).
			WithContext("requested_url", repoURL)
	}
	return nil
}

// Upsert writes every node, then every edge, then removes retired nodes.
// Re-running it on the same graph refreshes attributes only.
func (s *Store) Upsert(ctx context.Context, g *Graph) (*UpsertStats, error) {
	stats := &UpsertStats{}

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	if err := s.backend.EnsureSchema(ctx, AllKinds); err != nil {
		return stats, errors.StorageError(err, "failed to ensure graph schema")
	}

	for _, kind := range AllKinds {
		nodes := g.NodesByKind(kind)
		if len(nodes) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rows := make([]NodeRow, len(nodes))
		for i, n := range nodes {
			rows[i] = NodeRow{ID: n.Key(), Props: n.Properties()}
		}
		if err := s.backend.UpsertNodes(ctx, kind, rows); err != nil {
			return stats, errors.StorageErrorf(err, "failed to upsert %s nodes", kind)
		}
		stats.Nodes += len(rows)
	}

	for _, group := range groupEdges(g.Edges()) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := s.backend.UpsertEdges(ctx, group); err != nil {
			return stats, errors.StorageErrorf(err, "failed to upsert %s edges (%s->%s)",
				group.Type, group.FromLabel, group.ToLabel)
		}
		stats.Edges += len(group.Rows)
	}

	retired := make(map[NodeKind][]string)
	for _, ref := range g.Retired() {
		retired[ref.Kind] = append(retired[ref.Kind], ref.ID)
	}
	for _, kind := range AllKinds {
		ids := retired[kind]
		if len(ids) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := s.backend.DeleteNodes(ctx, kind, ids); err != nil {
			return stats, errors.StorageErrorf(err, "failed to delete retired %s nodes", kind)
		}
		stats.Deleted += len(ids)
	}

	s.logger.Info("graph upserted",
		"nodes", stats.Nodes,
		"edges", stats.Edges,
		"deleted", stats.Deleted)
	return stats, nil
}

// Close closes the backend
func (s *Store) Close(ctx context.Context) error {
	return s.backend.Close(ctx)
}

// groupEdges groups edges by (type, from label, to label) in a stable order
func groupEdges(edges []Edge) []EdgeGroup {
	type groupKey struct {
		typ      EdgeKind
		from, to NodeKind
	}
	groups := make(map[groupKey]*EdgeGroup)
	var order []groupKey
	for _, e := range edges {
		k := groupKey{e.Kind, e.From.Kind, e.To.Kind}
		grp, ok := groups[k]
		if !ok {
			grp = &EdgeGroup{Type: e.Kind, FromLabel: e.From.Kind, ToLabel: e.To.Kind}
			groups[k] = grp
			order = append(order, k)
		}
		grp.Rows = append(grp.Rows, EdgeRow{From: e.From.ID, To: e.To.ID, Props: e.Attrs})
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.typ != b.typ {
			return a.typ < b.typ
		}
		if a.from != b.from {
			return a.from < b.from
		}
		return a.to < b.to
	})
	out := make([]EdgeGroup, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out
}
