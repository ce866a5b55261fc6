package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/repograph/internal/models"
)

func TestResolver_CommitAuthorMatchesCollaboratorLogin(t *testing.T) {
	r := NewResolver()
	r.Seed([]models.Collaborator{{ID: "U1", Login: "alice"}})

	res := r.Register(Candidate{Name: "alice", Email: "alice@example.com", Role: RoleAuthor})

	assert.Equal(t, "U1", res.ID)
	assert.False(t, res.Created)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, "alice@example.com", res.Person.Email, "email learned from the commit")
}

func TestResolver_ResolutionOrder(t *testing.T) {
	r := NewResolver()
	r.Seed([]models.Collaborator{
		{ID: "U1", Login: "alice", Name: "Alice Smith"},
		{ID: "U2", Login: "bob", Name: "Bob Jones"},
	})

	tests := []struct {
		name      string
		candidate Candidate
		want      string
		found     bool
	}{
		{"by id", Candidate{ID: "U2"}, "U2", true},
		{"id beats login", Candidate{ID: "U2", Login: "alice"}, "U2", true},
		{"by login", Candidate{Login: "alice"}, "U1", true},
		{"by name", Candidate{Name: "Bob Jones"}, "U2", true},
		{"name matched against logins", Candidate{Name: "bob"}, "U2", true},
		{"login matched against names", Candidate{Login: "Alice Smith"}, "U1", true},
		{"case sensitive", Candidate{Login: "ALICE"}, "", false},
		{"unknown", Candidate{Name: "carol"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.candidate)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_SyntheticKeys(t *testing.T) {
	r := NewResolver()

	res := r.Register(Candidate{Name: "carol", Email: "carol@example.com"})
	assert.Equal(t, "carol<carol@example.com>", res.ID)
	assert.True(t, res.Created)
	assert.True(t, res.Person.Synthetic)

	res = r.Register(Candidate{Name: "dave"})
	assert.Equal(t, "dave<>", res.ID)

	again := r.Register(Candidate{Name: "carol", Email: "other@example.com"})
	assert.Equal(t, "carol<carol@example.com>", again.ID)
	assert.False(t, again.Created)

	assert.Empty(t, r.Collaborators(), "synthetic persons are not collaborators")
}

func TestResolver_EmptyCandidate(t *testing.T) {
	r := NewResolver()
	res := r.Register(Candidate{Email: "nobody@example.com"})
	assert.Empty(t, res.ID)
	assert.Nil(t, res.Person)
	assert.Equal(t, 0, r.Len())
}

func TestResolver_ReconcilesSyntheticPerson(t *testing.T) {
	r := NewResolver()
	first := r.Register(Candidate{Name: "erin", Email: "erin@example.com", Role: RoleAuthor})
	require.True(t, first.Person.Synthetic)

	res := r.Register(Candidate{ID: "U5", Login: "erin", Role: RoleAssignee})

	assert.Equal(t, "U5", res.ID)
	assert.Equal(t, []string{"erin<erin@example.com>"}, res.Reconciled)
	assert.False(t, res.Person.Synthetic)
	assert.Equal(t, "erin@example.com", res.Person.Email)
	assert.Equal(t, RoleAuthor, res.Person.Role)
	assert.Equal(t, 1, r.Len())

	// later references by name land on the re-keyed person
	key, ok := r.Resolve(Candidate{Name: "erin"})
	require.True(t, ok)
	assert.Equal(t, "U5", key)

	collabs := r.Collaborators()
	require.Len(t, collabs, 1)
	assert.Equal(t, "U5", collabs[0].ID)
	assert.Equal(t, "erin", collabs[0].Login)
}

func TestResolver_ReconcilesEverySyntheticPersonReachable(t *testing.T) {
	r := NewResolver()
	r.Register(Candidate{Name: "erin", Email: "erin@example.com", Role: RoleAuthor})
	r.Register(Candidate{Name: "Erin Example", Email: "erin@example.com", Role: RoleAuthor})
	require.Equal(t, 2, r.Len())

	res := r.Register(Candidate{ID: "U9", Login: "erin", Name: "Erin Example"})

	assert.Equal(t, "U9", res.ID)
	assert.ElementsMatch(t, []string{"Erin Example<erin@example.com>", "erin<erin@example.com>"}, res.Reconciled)
	assert.Equal(t, 1, r.Len())

	for _, c := range []Candidate{{Name: "erin"}, {Name: "Erin Example"}, {Login: "erin"}} {
		key, ok := r.Resolve(c)
		require.True(t, ok)
		assert.Equal(t, "U9", key)
	}
	p, ok := r.Person("erin<erin@example.com>")
	require.True(t, ok)
	assert.Equal(t, "U9", p.Key)
}

func TestResolver_ConflictingIDsMergeIntoExisting(t *testing.T) {
	r := NewResolver()
	r.Seed([]models.Collaborator{{ID: "U1", Login: "alice", Email: "old@example.com"}})

	res := r.Register(Candidate{ID: "U9", Login: "alice", Email: "new@example.com"})

	assert.Equal(t, "U1", res.ID)
	assert.Empty(t, res.Reconciled)
	assert.Equal(t, "new@example.com", res.Person.Email, "last write wins")
	assert.Equal(t, 1, r.Len())

	key, ok := r.Resolve(Candidate{ID: "U9"})
	require.True(t, ok)
	assert.Equal(t, "U1", key)
}

func TestResolver_NewRealIDsAreAppendedToCollaborators(t *testing.T) {
	r := NewResolver()
	r.Seed([]models.Collaborator{{ID: "U1", Login: "alice", Permission: "admin"}})

	r.Register(Candidate{ID: "U7", Login: "frank", Role: RoleAuthor})
	r.Register(Candidate{ID: "U7", Login: "frank"})

	collabs := r.Collaborators()
	require.Len(t, collabs, 2)
	assert.Equal(t, "U1", collabs[0].ID)
	assert.Equal(t, "admin", collabs[0].Permission)
	assert.Equal(t, "U7", collabs[1].ID)
}

func TestResolver_DistinctIdentities(t *testing.T) {
	r := NewResolver()
	r.Seed([]models.Collaborator{{ID: "U1", Login: "alice", Name: "Alice"}})

	for _, c := range []Candidate{
		{Name: "alice"},
		{Name: "Alice", Email: "a@example.com"},
		{ID: "U1"},
		{Login: "alice"},
		{Name: "gina", Email: "g@example.com"},
		{Name: "gina", Email: "g@example.com"},
		{ID: "U3", Name: "gina"},
	} {
		r.Register(c)
	}

	assert.Equal(t, 2, r.Len())
}
