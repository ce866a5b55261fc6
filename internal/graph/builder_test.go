package graph

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/identity"
	"github.com/rohankatakam/repograph/internal/models"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestBuilder() *Builder {
	return NewBuilder(New(), identity.NewResolver(), quietLogger())
}

func testRepository() models.Repository {
	return models.Repository{
		ID:         "R1",
		Name:       "demo",
		URL:        "https://github.com/acme/demo",
		Visibility: "PUBLIC",
		Stars:      12,
		OwnerID:    "U1",
		OwnerLogin: "alice",
		Branches:   models.BranchConnection{Nodes: []models.BranchRef{{Name: "main"}, {Name: "dev"}}},
	}
}

func testBatches() Batches {
	return Batches{
		Repositories:  []models.Repository{testRepository()},
		Collaborators: []models.Collaborator{{ID: "U1", Login: "alice", Name: "Alice", Permission: "admin"}},
		Releases: []models.Release{{
			ID: "REL1", Name: "v1.0", AuthorID: "U1", AuthorLogin: "alice", CreatedAt: "2024-01-05T00:00:00Z",
		}},
		Languages: []models.Language{{ID: "Go", Name: "Go", Color: "#00ADD8"}},
		Projects:  []models.Project{{ID: "P1", Name: "Roadmap", State: "OPEN", DonePercentage: 50, CreatorID: "U1", CreatorLogin: "alice"}},
		Forks:     []models.Fork{{ID: "F1", Name: "bob/demo"}},
		Issues: []models.Issue{{
			ID: "I42", Number: 42, Title: "it's broken", State: "OPEN",
			AuthorID: "U2", AuthorLogin: "bob", CreatedAt: "2024-01-02T00:00:00Z",
			Assignees:    []models.Actor{{ID: "U1", Login: "alice"}},
			Participants: []models.Actor{{ID: "U2", Login: "bob"}},
		}},
		PullRequests: []models.PullRequest{{
			ID: "PR7", Number: 7, Title: "Fix parser", Body: "This fixes #42", State: "MERGED",
			AuthorID: "U2", AuthorLogin: "bob",
			Reviewers: []models.Actor{{ID: "U1", Login: "alice"}},
			Commits:   []models.CommitRef{{OID: "c2"}, {Commit: &models.ParentRef{OID: "c3"}}},
		}},
		Commits: []models.Commit{
			{
				Hash: "c1", AuthorName: "alice", AuthorEmail: "alice@example.com", CommittedDate: "2024-01-01T00:00:00Z",
				Message: "initial", Branches: []string{"main"},
				ModifiedFiles: []models.ModifiedFile{{Filename: "x.py", Path: "src/x.py", ChangeType: "added", Additions: 12, Diff: "@@ +1,12 @@"}},
			},
			{
				Hash: "c2", AuthorName: "Bob B", AuthorEmail: "bob@example.com", CommittedDate: "2024-01-03T00:00:00Z",
				Message: "fix: resolves #42", Branches: []string{"main", "dev"},
				Parents:       []models.ParentRef{{OID: "c1"}},
				ModifiedFiles: []models.ModifiedFile{{Filename: "x.py", Path: "src/x.py", ChangeType: "modified", Additions: 1, Deletions: 3}},
			},
			{
				Hash: "c3", AuthorName: "carol", CommittedDate: "2024-01-04T00:00:00Z",
				Parents:       []models.ParentRef{{OID: "c2"}, {OID: "missing"}},
				ModifiedFiles: []models.ModifiedFile{{Filename: "x.py", Path: "lib/x.py", ChangeType: "added", Additions: 5}},
			},
		},
	}
}

func TestBuilder_BuildsAllEntityKinds(t *testing.T) {
	b := newTestBuilder()
	stats, err := b.Build(testBatches())
	require.NoError(t, err)
	assert.Empty(t, stats.StageErrors)

	g := b.Graph()
	root := NodeRef{Kind: KindRepository, ID: "R1"}
	alice := NodeRef{Kind: KindPerson, ID: "U1"}
	bob := NodeRef{Kind: KindPerson, ID: "U2"}
	issue := NodeRef{Kind: KindIssue, ID: "42"}
	pr := NodeRef{Kind: KindPullRequest, ID: "PR7"}

	assert.Len(t, g.Repositories, 1)
	assert.Len(t, g.Branches, 2)
	assert.Len(t, g.Commits, 3)

	assert.True(t, g.HasEdge(EdgeOwns, alice, root))
	assert.True(t, g.HasEdge(EdgeBranchOf, NodeRef{Kind: KindBranch, ID: "dev"}, root))
	assert.True(t, g.HasEdge(EdgeReleaseOf, NodeRef{Kind: KindRelease, ID: "REL1"}, root))
	assert.True(t, g.HasEdge(EdgeCreates, alice, NodeRef{Kind: KindRelease, ID: "REL1"}))
	assert.True(t, g.HasEdge(EdgeLanguageOf, NodeRef{Kind: KindLanguage, ID: "Go"}, root))
	assert.True(t, g.HasEdge(EdgeProjectOf, NodeRef{Kind: KindProject, ID: "P1"}, root))
	assert.True(t, g.HasEdge(EdgeForkOf, NodeRef{Kind: KindFork, ID: "F1"}, root))

	assert.True(t, g.HasEdge(EdgeCreates, bob, issue))
	assert.True(t, g.HasEdge(EdgeAssigned, alice, issue))
	assert.True(t, g.HasEdge(EdgeParticipatesIn, bob, issue))
	assert.Equal(t, "open", g.Issues["42"].State)
	assert.Equal(t, "it's broken", g.Issues["42"].Title, "text is stored verbatim")

	assert.True(t, g.HasEdge(EdgeCreates, bob, pr))
	assert.True(t, g.HasEdge(EdgeReviews, alice, pr))
	assert.True(t, g.HasEdge(EdgeClosed, pr, issue), "closing issue from body keywords")
	assert.True(t, g.HasEdge(EdgeClosedIn, NodeRef{Kind: KindCommit, ID: "c2"}, pr))
	assert.True(t, g.HasEdge(EdgeClosedIn, NodeRef{Kind: KindCommit, ID: "c3"}, pr))

	c1 := NodeRef{Kind: KindCommit, ID: "c1"}
	c2 := NodeRef{Kind: KindCommit, ID: "c2"}
	assert.True(t, g.HasEdge(EdgeAuthor, alice, c1), "commit author matched to collaborator login")
	assert.True(t, g.HasEdge(EdgeContributesTo, alice, root))
	assert.True(t, g.HasEdge(EdgeCommittedTo, c2, NodeRef{Kind: KindBranch, ID: "dev"}))
	assert.True(t, g.HasEdge(EdgeParentOf, c1, c2))

	assert.Equal(t, 1, stats.DroppedEdges, "parent outside the graph is dropped")
}

func TestBuilder_ChangedEdgeCarriesDiffMetadata(t *testing.T) {
	b := newTestBuilder()
	_, err := b.Build(testBatches())
	require.NoError(t, err)

	edges := b.Graph().EdgesOfKind(EdgeChanged)
	var found bool
	for _, e := range edges {
		if e.From.ID == "c2" && e.To.ID == "src/x.py" {
			found = true
			assert.Equal(t, "modified", e.Attrs["changeType"])
			assert.Equal(t, 1, e.Attrs["additions"])
			assert.Equal(t, 3, e.Attrs["deletions"])
		}
	}
	assert.True(t, found)
}

func TestBuilder_FilesKeyedByFullPath(t *testing.T) {
	b := newTestBuilder()
	_, err := b.Build(testBatches())
	require.NoError(t, err)

	files := b.Graph().Files
	assert.Len(t, files, 2, "src/x.py and lib/x.py stay distinct")
	assert.Contains(t, files, "src/x.py")
	assert.Contains(t, files, "lib/x.py")
	assert.Equal(t, "x.py", files["lib/x.py"].Properties()["name"])
}

func TestBuilder_SyntheticAuthorsWithMissingEmail(t *testing.T) {
	b := newTestBuilder()
	_, err := b.Build(testBatches())
	require.NoError(t, err)

	g := b.Graph()
	assert.Contains(t, g.Persons, "carol<>")
	assert.Contains(t, g.Persons, "Bob B<bob@example.com>")
}

func TestBuilder_EmptyRepositoryBatchIsFatal(t *testing.T) {
	b := newTestBuilder()
	batches := testBatches()
	batches.Repositories = nil

	_, err := b.Build(batches)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRepository)
	assert.True(t, errors.IsFatal(err))
}

func TestBuilder_DeltaWithoutRepositoryUsesLoadedOne(t *testing.T) {
	b := newTestBuilder()
	_, err := b.Build(testBatches())
	require.NoError(t, err)

	delta := Batches{Forks: []models.Fork{{ID: "F2", Name: "carol/demo"}}}
	stats, err := b.Build(delta)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NodesAdded)
	assert.True(t, b.Graph().HasEdge(EdgeForkOf, NodeRef{Kind: KindFork, ID: "F2"}, NodeRef{Kind: KindRepository, ID: "R1"}))
}

func TestBuilder_SchemaErrorAbortsOnlyThatStage(t *testing.T) {
	b := newTestBuilder()
	batches := testBatches()
	batches.Commits = append(batches.Commits, models.Commit{Message: "no hash"})

	stats, err := b.Build(batches)
	require.NoError(t, err)
	require.Len(t, stats.StageErrors, 1)
	assert.Equal(t, models.EntityCommits, stats.StageErrors[0].Entity)
	assert.True(t, errors.IsType(stats.StageErrors[0].Err, errors.ErrorTypeSchema))

	assert.Len(t, b.Graph().Issues, 1, "other stages still ran")
	assert.Len(t, b.Graph().Commits, 3, "records before the bad one were added")
}

func TestBuilder_Idempotent(t *testing.T) {
	b := newTestBuilder()
	_, err := b.Build(testBatches())
	require.NoError(t, err)
	nodes, edges := b.Graph().NodeCount(), b.Graph().EdgeCount()

	stats, err := b.Build(testBatches())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NodesAdded)
	assert.Equal(t, 0, stats.EdgesAdded)
	assert.Equal(t, nodes, b.Graph().NodeCount())
	assert.Equal(t, edges, b.Graph().EdgeCount())
}

func TestBuilder_ReconcilesSyntheticPersonAcrossStages(t *testing.T) {
	b := newTestBuilder()
	batches := Batches{
		Repositories: []models.Repository{testRepository()},
		Commits: []models.Commit{{
			Hash: "c9", AuthorName: "dana", AuthorEmail: "dana@example.com",
		}},
	}
	_, err := b.Build(batches)
	require.NoError(t, err)
	require.Contains(t, b.Graph().Persons, "dana<dana@example.com>")

	delta := Batches{Issues: []models.Issue{{ID: "I5", Number: 5, AuthorID: "U4", AuthorLogin: "dana"}}}
	stats, err := b.Build(delta)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Reconciled)

	g := b.Graph()
	assert.NotContains(t, g.Persons, "dana<dana@example.com>")
	require.Contains(t, g.Persons, "U4")
	assert.Equal(t, "dana@example.com", g.Persons["U4"].Email)

	dana := NodeRef{Kind: KindPerson, ID: "U4"}
	assert.True(t, g.HasEdge(EdgeAuthor, dana, NodeRef{Kind: KindCommit, ID: "c9"}), "edge repointed")
	assert.True(t, g.HasEdge(EdgeCreates, dana, NodeRef{Kind: KindIssue, ID: "5"}))
	assert.Equal(t, []NodeRef{{Kind: KindPerson, ID: "dana<dana@example.com>"}}, g.Retired())
}

func TestBuilder_DeltaCommitJoinsBaselinePullRequest(t *testing.T) {
	b := newTestBuilder()
	baseline := Batches{
		Repositories: []models.Repository{testRepository()},
		PullRequests: []models.PullRequest{{ID: "PR1", Number: 1, Commits: []models.CommitRef{{OID: "late"}}}},
	}
	stats, err := b.Build(baseline)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deferred)

	stats, err = b.Build(Batches{Commits: []models.Commit{{Hash: "late", AuthorName: "erin"}}})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Deferred)
	assert.True(t, b.Graph().HasEdge(EdgeClosedIn,
		NodeRef{Kind: KindCommit, ID: "late"}, NodeRef{Kind: KindPullRequest, ID: "PR1"}))
}

func TestExtractIssueReferences(t *testing.T) {
	tests := []struct {
		name  string
		title string
		body  string
		want  []int
	}{
		{"closes", "", "Closes #12", []int{12}},
		{"multiple deduped", "fix #3", "resolves #4 and fixes #3", []int{3, 4}},
		{"no keyword", "", "see #9", []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractIssueReferences(tt.title, tt.body))
		})
	}
}

func TestBuilder_DeltaIdentityMatchesFullBuild(t *testing.T) {
	base := Batches{
		Repositories:  []models.Repository{testRepository()},
		Collaborators: []models.Collaborator{{ID: "U1", Login: "alice"}},
		Commits: []models.Commit{
			{Hash: "c1", AuthorName: "erin", AuthorEmail: "erin@example.com", CommittedDate: "2024-01-01T00:00:00Z"},
			{Hash: "c2", AuthorName: "Erin Example", AuthorEmail: "erin@example.com", CommittedDate: "2024-01-02T00:00:00Z",
				Parents: []models.ParentRef{{OID: "c1"}}},
		},
	}
	delta := Batches{Issues: []models.Issue{{
		ID: "I9", Number: 9, AuthorID: "U9", AuthorLogin: "erin", AuthorName: "Erin Example",
		CreatedAt: "2024-01-03T00:00:00Z",
	}}}

	full := newTestBuilder()
	_, err := full.Build(Batches{
		Repositories:  base.Repositories,
		Collaborators: base.Collaborators,
		Issues:        delta.Issues,
		Commits:       base.Commits,
	})
	require.NoError(t, err)

	incremental := newTestBuilder()
	_, err = incremental.Build(base)
	require.NoError(t, err)
	stats, err := incremental.Build(delta)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Reconciled)

	personKeys := func(g *Graph) []string {
		var keys []string
		for k := range g.Persons {
			keys = append(keys, k)
		}
		return keys
	}
	assert.ElementsMatch(t, personKeys(full.Graph()), personKeys(incremental.Graph()))
	assert.ElementsMatch(t, []string{"U1", "U9"}, personKeys(incremental.Graph()))
	assert.Equal(t, full.Graph().EdgeCount(), incremental.Graph().EdgeCount())

	erin := NodeRef{Kind: KindPerson, ID: "U9"}
	g := incremental.Graph()
	assert.True(t, g.HasEdge(EdgeAuthor, erin, NodeRef{Kind: KindCommit, ID: "c1"}))
	assert.True(t, g.HasEdge(EdgeAuthor, erin, NodeRef{Kind: KindCommit, ID: "c2"}))
	assert.ElementsMatch(t,
		[]NodeRef{{Kind: KindPerson, ID: "Erin Example<erin@example.com>"}, {Kind: KindPerson, ID: "erin<erin@example.com>"}},
		g.Retired())
}
