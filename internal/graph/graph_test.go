package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/repograph/internal/models"
)

func TestAddBugLinks(t *testing.T) {
	b := builtGraph(t)
	g := b.Graph()
	edgesBefore := g.EdgeCount()

	added := g.AddBugLinks([]models.BugLink{
		{
			URL: "https://github.com/acme/demo/issues/42", Number: "42",
			FixingCommit:   []string{"c2"},
			InducingCommit: []string{"c1"},
			ImpactedFiles:  []string{"src/x.py", "gone.py"},
		},
		{Number: "99", FixingCommit: []string{"c3"}, InducingCommit: []string{"c1"}},
	})

	assert.Equal(t, 3, added)
	assert.Equal(t, edgesBefore+3, g.EdgeCount())
	issue := NodeRef{Kind: KindIssue, ID: "42"}
	assert.True(t, g.HasEdge(EdgeFixed, NodeRef{Kind: KindCommit, ID: "c2"}, issue))
	assert.True(t, g.HasEdge(EdgeIntroduced, NodeRef{Kind: KindCommit, ID: "c1"}, issue))
	assert.True(t, g.HasEdge(EdgeImpacted, issue, NodeRef{Kind: KindFile, ID: "src/x.py"}))
	assert.False(t, g.Has(NodeRef{Kind: KindIssue, ID: "99"}), "dangling link creates no node")
	assert.False(t, g.Has(NodeRef{Kind: KindFile, ID: "gone.py"}))

	g.AddBugLinks([]models.BugLink{{Number: "42", FixingCommit: []string{"c2"}}})
	assert.Equal(t, edgesBefore+3, g.EdgeCount(), "re-adding does not duplicate")
}

func TestReconcilePerson_DedupsRepointedEdges(t *testing.T) {
	g := New()
	g.Persons["tmp"] = &PersonNode{ID: "tmp", Name: "tmp"}
	g.Persons["U1"] = &PersonNode{ID: "U1", Login: "u1"}
	g.Repositories["R"] = &RepositoryNode{ID: "R"}
	repo := NodeRef{Kind: KindRepository, ID: "R"}

	require.True(t, g.AddEdge(EdgeContributesTo, NodeRef{Kind: KindPerson, ID: "tmp"}, repo, nil))
	require.True(t, g.AddEdge(EdgeContributesTo, NodeRef{Kind: KindPerson, ID: "U1"}, repo, nil))

	g.ReconcilePerson("tmp", "U1")
	assert.Equal(t, 1, g.EdgeCount())
	assert.Len(t, g.Persons, 1)
	assert.Equal(t, "u1", g.Persons["U1"].Login, "existing target node is kept")
	assert.Equal(t, []NodeRef{{Kind: KindPerson, ID: "tmp"}}, g.Retired())
}

func TestNodesByKind_SortedByKey(t *testing.T) {
	g := New()
	for _, sha := range []string{"c", "a", "b"} {
		g.Commits[sha] = &CommitNode{Hash: sha}
	}
	nodes := g.NodesByKind(KindCommit)
	require.Len(t, nodes, 3)
	assert.Equal(t, "a", nodes[0].Key())
	assert.Equal(t, "c", nodes[2].Key())
	for _, n := range g.Nodes() {
		assert.Contains(t, n.Properties(), "id")
	}
}
