package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidIdentifier(t *testing.T) {
	assert.True(t, isValidIdentifier("PullRequest"))
	assert.True(t, isValidIdentifier("closed_in"))
	assert.False(t, isValidIdentifier(""))
	assert.False(t, isValidIdentifier("1abc"))
	assert.False(t, isValidIdentifier("Commit) DETACH DELETE (n"))
}

func TestBuildUpsertNodes(t *testing.T) {
	q, err := BuildUpsertNodes(KindCommit)
	require.NoError(t, err)
	assert.Contains(t, q, "UNWIND $rows AS row")
	assert.Contains(t, q, "MERGE (n:Commit {id: row.id})")
	assert.Contains(t, q, "SET n += row.props")

	_, err = BuildUpsertNodes("Bad Label")
	assert.Error(t, err)
}

func TestBuildUpsertEdges(t *testing.T) {
	q, err := BuildUpsertEdges(EdgeChanged, KindCommit, KindFile)
	require.NoError(t, err)
	assert.Contains(t, q, "MATCH (a:Commit {id: row.from})")
	assert.Contains(t, q, "MATCH (b:File {id: row.to})")
	assert.Contains(t, q, "MERGE (a)-[r:changed]->(b)")

	_, err = BuildUpsertEdges("changed]->(x", KindCommit, KindFile)
	assert.Error(t, err)
}

func TestBuildDeleteAndConstraint(t *testing.T) {
	q, err := BuildDeleteNodes(KindPerson)
	require.NoError(t, err)
	assert.Contains(t, q, "DETACH DELETE n")

	q, err = BuildUniqueConstraint(KindPullRequest)
	require.NoError(t, err)
	assert.Equal(t, "CREATE CONSTRAINT repograph_pullrequest_id IF NOT EXISTS FOR (n:PullRequest) REQUIRE n.id IS UNIQUE", q)
}

func TestBatchConfig_Sizes(t *testing.T) {
	def := DefaultBatchConfig()
	assert.Equal(t, def.CommitBatchSize, def.GetBatchSizeForLabel(KindCommit))
	assert.Equal(t, def.ChangedEdgeBatchSize, def.GetBatchSizeForEdge(EdgeChanged))
	assert.Equal(t, def.EdgeBatchSize, def.GetBatchSizeForEdge(EdgeAuthor))
	assert.Greater(t, LargeRepoBatchConfig().CommitBatchSize, SmallRepoBatchConfig().CommitBatchSize)
}

func TestChunks(t *testing.T) {
	var windows [][2]int
	err := chunks(5, 2, func(start, end int) error {
		windows = append(windows, [2]int{start, end})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{0, 2}, {2, 4}, {4, 5}}, windows)
}

func TestBuildCountNodes(t *testing.T) {
	q, err := BuildCountNodes(KindIssue)
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:Issue) RETURN count(n) AS count", q)

	_, err = BuildCountNodes("Issue) DETACH DELETE (n")
	assert.Error(t, err)
}
