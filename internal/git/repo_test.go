package git

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/repograph/internal/git/gittest"
)

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{"HTTPS with .git", "https://github.com/acme/demo.git", "acme", "demo", false},
		{"HTTPS without .git", "https://github.com/acme/demo", "acme", "demo", false},
		{"HTTPS trailing slash", "https://github.com/acme/demo/", "acme", "demo", false},
		{"HTTP with .git", "http://github.com/acme/demo.git", "acme", "demo", false},
		{"SSH format", "git@github.com:acme/demo-go.git", "acme", "demo-go", false},
		{"SSH without .git", "git@github.com:acme/demo-go", "acme", "demo-go", false},
		{"Git protocol", "git://github.com/acme/demo.git", "acme", "demo", false},
		{"GitLab HTTPS", "https://gitlab.com/myorg/myrepo.git", "myorg", "myrepo", false},
		{"Shorthand", "acme/demo", "acme", "demo", false},
		{"Invalid URL", "not-a-git-url", "", "", true},
		{"Invalid format - no slash", "https://github.com/onlyonepart", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseRepoURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
		})
	}
}

func TestWebAndCloneURL(t *testing.T) {
	tests := []struct {
		url   string
		web   string
		clone string
	}{
		{"acme/demo", "https://github.com/acme/demo", "https://github.com/acme/demo.git"},
		{"https://github.com/acme/demo.git", "https://github.com/acme/demo", "https://github.com/acme/demo.git"},
		{"https://github.com/acme/demo/", "https://github.com/acme/demo", "https://github.com/acme/demo/"},
		{"git@github.com:acme/demo.git", "https://github.com/acme/demo", "git@github.com:acme/demo.git"},
		{"https://gitlab.com/myorg/myrepo", "https://gitlab.com/myorg/myrepo", "https://gitlab.com/myorg/myrepo"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			web, err := WebURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.web, web)

			clone, err := CloneURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.clone, clone)
		})
	}

	_, err := CloneURL("not-a-git-url")
	assert.Error(t, err)
}

func TestRepo_CommitQueries(t *testing.T) {
	ctx := context.Background()
	src := gittest.New(t)
	src.Write("a.txt", "one\n")
	c1 := src.Commit("alice", "alice@example.com", "first", gittest.Day(1))
	src.Write("a.txt", "two\n")
	c2 := src.Commit("alice", "alice@example.com", "second", gittest.Day(2))

	r := Open(src.Dir)
	assert.True(t, IsRepository(ctx, src.Dir))
	assert.True(t, r.CommitExists(ctx, c1))
	assert.False(t, r.CommitExists(ctx, "0123456789012345678901234567890123456789"))
	assert.False(t, r.CommitExists(ctx, ""))

	_, ok, err := r.FirstParent(ctx, c1)
	require.NoError(t, err)
	assert.False(t, ok, "root commit has no parent")

	parent, ok, err := r.FirstParent(ctx, c2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, c1, parent)

	head, err := r.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, c2, head)
}

func TestEnsureClone(t *testing.T) {
	ctx := context.Background()
	src := gittest.New(t)
	src.Write("a.txt", "one\n")
	src.Commit("alice", "alice@example.com", "first", gittest.Day(1))

	dir := filepath.Join(t.TempDir(), "repos", "demo")
	clone, err := EnsureClone(ctx, src.Dir, dir)
	require.NoError(t, err)
	assert.True(t, IsRepository(ctx, dir))

	src.Write("a.txt", "two\n")
	latest := src.Commit("alice", "alice@example.com", "second", gittest.Day(2))

	clone, err = EnsureClone(ctx, src.Dir, dir)
	require.NoError(t, err)
	head, err := clone.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, latest, head, "existing clone is fast-forwarded")
}
