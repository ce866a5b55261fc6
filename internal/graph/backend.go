package graph

import (
	"context"
	"sort"
	"sync"
)

// Backend is the upsert contract of a property-graph store. Nodes are
// matched by {id} and their other attributes overwritten; edges are matched
// by their endpoints' ids and type.
type Backend interface {
	// BoundRepositoryURL returns the url of the Repository node already in
	// the store, or "" for an empty store.
	BoundRepositoryURL(ctx context.Context) (string, error)

	// EnsureSchema creates id uniqueness constraints for the given labels
	EnsureSchema(ctx context.Context, labels []NodeKind) error

	// UpsertNodes merges rows of one label by id
	UpsertNodes(ctx context.Context, label NodeKind, rows []NodeRow) error

	// UpsertEdges merges rows of one (type, from label, to label) group.
	// Rows whose endpoints are missing in the store are skipped.
	UpsertEdges(ctx context.Context, group EdgeGroup) error

	// DeleteNodes removes nodes of one label and their relationships
	DeleteNodes(ctx context.Context, label NodeKind, ids []string) error

	Close(ctx context.Context) error
}

// NodeRow is one node in store form
type NodeRow struct {
	ID    string
	Props map[string]any
}

// EdgeRow is one relationship in store form
type EdgeRow struct {
	From  string
	To    string
	Props map[string]any
}

// EdgeGroup holds relationships sharing a type and endpoint labels, which
// is what one parameterized query can write.
type EdgeGroup struct {
	Type      EdgeKind
	FromLabel NodeKind
	ToLabel   NodeKind
	Rows      []EdgeRow
}

var (
	_ Backend = (*MemoryBackend)(nil)
	_ Backend = (*Neo4jBackend)(nil)
)

type memEdgeKey struct {
	typ      EdgeKind
	fromKind NodeKind
	from     string
	toKind   NodeKind
	to       string
}

// MemoryBackend keeps the store in process memory with the same upsert
// semantics as the Neo4j backend. It serves dry runs and tests.
type MemoryBackend struct {
	mu     sync.RWMutex
	nodes  map[NodeKind]map[string]map[string]any
	edges  map[memEdgeKey]map[string]any
	closed bool
}

// NewMemoryBackend creates an empty in-memory store
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		nodes: make(map[NodeKind]map[string]map[string]any),
		edges: make(map[memEdgeKey]map[string]any),
	}
}

func (m *MemoryBackend) BoundRepositoryURL(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	repos := m.nodes[KindRepository]
	ids := make([]string, 0, len(repos))
	for id := range repos {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if url, ok := repos[id]["url"].(string); ok {
			return url, nil
		}
	}
	return "", nil
}

func (m *MemoryBackend) EnsureSchema(ctx context.Context, labels []NodeKind) error {
	return nil
}

func (m *MemoryBackend) UpsertNodes(ctx context.Context, label NodeKind, rows []NodeRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.nodes[label]
	if !ok {
		byID = make(map[string]map[string]any)
		m.nodes[label] = byID
	}
	for _, row := range rows {
		props, ok := byID[row.ID]
		if !ok {
			props = map[string]any{"id": row.ID}
			byID[row.ID] = props
		}
		for k, v := range row.Props {
			props[k] = v
		}
	}
	return nil
}

func (m *MemoryBackend) UpsertEdges(ctx context.Context, group EdgeGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range group.Rows {
		if _, ok := m.nodes[group.FromLabel][row.From]; !ok {
			continue
		}
		if _, ok := m.nodes[group.ToLabel][row.To]; !ok {
			continue
		}
		k := memEdgeKey{group.Type, group.FromLabel, row.From, group.ToLabel, row.To}
		props, ok := m.edges[k]
		if !ok {
			props = make(map[string]any)
			m.edges[k] = props
		}
		for pk, v := range row.Props {
			props[pk] = v
		}
	}
	return nil
}

func (m *MemoryBackend) DeleteNodes(ctx context.Context, label NodeKind, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		delete(m.nodes[label], id)
		for k := range m.edges {
			if (k.fromKind == label && k.from == id) || (k.toKind == label && k.to == id) {
				delete(m.edges, k)
			}
		}
	}
	return nil
}

func (m *MemoryBackend) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// NodeCount returns the number of stored nodes
func (m *MemoryBackend) NodeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, byID := range m.nodes {
		n += len(byID)
	}
	return n
}

// CountLabel returns the number of stored nodes with one label
func (m *MemoryBackend) CountLabel(label NodeKind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes[label])
}

// EdgeCount returns the number of stored relationships
func (m *MemoryBackend) EdgeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.edges)
}

// NodeProps returns a copy of one node's stored properties
func (m *MemoryBackend) NodeProps(label NodeKind, id string) (map[string]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	props, ok := m.nodes[label][id]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out, true
}

// HasEdge reports whether a relationship is stored
func (m *MemoryBackend) HasEdge(typ EdgeKind, from, to NodeRef) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.edges[memEdgeKey{typ, from.Kind, from.ID, to.Kind, to.ID}]
	return ok
}
