package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/models"
)

func builtGraph(t *testing.T) *Builder {
	t.Helper()
	b := newTestBuilder()
	_, err := b.Build(testBatches())
	require.NoError(t, err)
	return b
}

func TestStore_UpsertWritesEveryNodeAndEdge(t *testing.T) {
	ctx := context.Background()
	b := builtGraph(t)
	mem := NewMemoryBackend()
	store := NewStore(mem)

	stats, err := store.Upsert(ctx, b.Graph())
	require.NoError(t, err)
	assert.Equal(t, b.Graph().NodeCount(), stats.Nodes)
	assert.Equal(t, b.Graph().EdgeCount(), stats.Edges)
	assert.Equal(t, b.Graph().NodeCount(), mem.NodeCount())
	assert.Equal(t, b.Graph().EdgeCount(), mem.EdgeCount())

	props, ok := mem.NodeProps(KindFile, "src/x.py")
	require.True(t, ok)
	assert.Equal(t, "x.py", props["name"])
	assert.True(t, mem.HasEdge(EdgeParentOf, NodeRef{Kind: KindCommit, ID: "c1"}, NodeRef{Kind: KindCommit, ID: "c2"}))
}

// cancellingBackend cancels the run after its first node batch
type cancellingBackend struct {
	*MemoryBackend
	cancel context.CancelFunc
}

func (c cancellingBackend) UpsertNodes(ctx context.Context, label NodeKind, rows []NodeRow) error {
	defer c.cancel()
	return c.MemoryBackend.UpsertNodes(ctx, label, rows)
}

func TestStore_UpsertStopsWhenCancelled(t *testing.T) {
	b := builtGraph(t)
	mem := NewMemoryBackend()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewStore(cancellingBackend{MemoryBackend: mem, cancel: cancel})

	stats, err := store.Upsert(ctx, b.Graph())
	require.ErrorIs(t, err, context.Canceled)
	assert.Positive(t, stats.Nodes)
	assert.Less(t, stats.Nodes, b.Graph().NodeCount())
	assert.Zero(t, stats.Edges)
	assert.Zero(t, mem.EdgeCount())

	_, err = NewStore(NewMemoryBackend()).Upsert(ctx, b.Graph())
	assert.ErrorIs(t, err, context.Canceled, "cancelled before any write")
}

func TestStore_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := builtGraph(t)
	mem := NewMemoryBackend()
	store := NewStore(mem)

	_, err := store.Upsert(ctx, b.Graph())
	require.NoError(t, err)
	nodes, edges := mem.NodeCount(), mem.EdgeCount()

	_, err = store.Upsert(ctx, b.Graph())
	require.NoError(t, err)
	assert.Equal(t, nodes, mem.NodeCount())
	assert.Equal(t, edges, mem.EdgeCount())
}

func TestStore_UpsertRefreshesAttributes(t *testing.T) {
	ctx := context.Background()
	b := builtGraph(t)
	mem := NewMemoryBackend()
	store := NewStore(mem)
	_, err := store.Upsert(ctx, b.Graph())
	require.NoError(t, err)

	b.Graph().Issues["42"].State = "closed"
	_, err = store.Upsert(ctx, b.Graph())
	require.NoError(t, err)

	props, ok := mem.NodeProps(KindIssue, "42")
	require.True(t, ok)
	assert.Equal(t, "closed", props["state"])
	assert.Equal(t, 1, mem.CountLabel(KindIssue))
}

func TestStore_DeletesRetiredPersons(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder()
	_, err := b.Build(Batches{
		Repositories: []models.Repository{testRepository()},
		Commits:      []models.Commit{{Hash: "c9", AuthorName: "dana", AuthorEmail: "dana@example.com"}},
	})
	require.NoError(t, err)

	mem := NewMemoryBackend()
	store := NewStore(mem)
	_, err = store.Upsert(ctx, b.Graph())
	require.NoError(t, err)
	_, ok := mem.NodeProps(KindPerson, "dana<dana@example.com>")
	require.True(t, ok)

	_, err = b.Build(Batches{Issues: []models.Issue{{ID: "I5", Number: 5, AuthorID: "U4", AuthorLogin: "dana"}}})
	require.NoError(t, err)
	stats, err := store.Upsert(ctx, b.Graph())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted)

	_, ok = mem.NodeProps(KindPerson, "dana<dana@example.com>")
	assert.False(t, ok)
	assert.True(t, mem.HasEdge(EdgeAuthor, NodeRef{Kind: KindPerson, ID: "U4"}, NodeRef{Kind: KindCommit, ID: "c9"}))
	assert.False(t, mem.HasEdge(EdgeAuthor, NodeRef{Kind: KindPerson, ID: "dana<dana@example.com>"}, NodeRef{Kind: KindCommit, ID: "c9"}))
}

func TestStore_CheckBinding(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	store := NewStore(mem)

	require.NoError(t, store.CheckBinding(ctx, "https://github.com/acme/demo"), "empty store is unbound")

	_, err := store.Upsert(ctx, builtGraph(t).Graph())
	require.NoError(t, err)

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"same url", "https://github.com/acme/demo", false},
		{"git suffix", "https://github.com/acme/demo.git", false},
		{"trailing slash and case", "https://github.com/Acme/Demo/", false},
		{"other repository", "https://github.com/acme/other", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.CheckBinding(ctx, tt.url)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeStoreBinding))
			assert.True(t, errors.IsFatal(err))
			assert.Contains(t, err.Error(), "acme/demo")
		})
	}
}

func TestMemoryBackend_SkipsEdgesWithMissingEndpoints(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	require.NoError(t, mem.UpsertNodes(ctx, KindCommit, []NodeRow{{ID: "a"}, {ID: "b"}}))

	err := mem.UpsertEdges(ctx, EdgeGroup{
		Type: EdgeParentOf, FromLabel: KindCommit, ToLabel: KindCommit,
		Rows: []EdgeRow{{From: "a", To: "b"}, {From: "a", To: "zzz"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, mem.EdgeCount())

	require.NoError(t, mem.DeleteNodes(ctx, KindCommit, []string{"b"}))
	assert.Equal(t, 0, mem.EdgeCount(), "delete detaches relationships")
	assert.Equal(t, 1, mem.NodeCount())
}

func TestGroupEdges_StableOrder(t *testing.T) {
	c1 := NodeRef{Kind: KindCommit, ID: "c1"}
	c2 := NodeRef{Kind: KindCommit, ID: "c2"}
	f := NodeRef{Kind: KindFile, ID: "a.go"}
	groups := groupEdges([]Edge{
		{Kind: EdgeParentOf, From: c1, To: c2},
		{Kind: EdgeChanged, From: c1, To: f},
		{Kind: EdgeChanged, From: c2, To: f},
	})
	require.Len(t, groups, 2)
	assert.Equal(t, EdgeChanged, groups[0].Type)
	assert.Len(t, groups[0].Rows, 2)
	assert.Equal(t, EdgeParentOf, groups[1].Type)
}
