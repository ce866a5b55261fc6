package identity

import (
	"log/slog"

	"github.com/rohankatakam/repograph/internal/models"
)

// Role hints attached to a person by the record that first referenced it
const (
	RoleOwner       = "owner"
	RoleAuthor      = "author"
	RoleAssignee    = "assignee"
	RoleParticipant = "participant"
	RoleCreator     = "creator"
	RoleReviewer    = "reviewer"
)

// Candidate is a raw person reference taken from any record
type Candidate struct {
	ID         string
	Login      string
	Name       string
	Email      string
	Role       string
	Permission string
}

// Empty reports whether the candidate carries nothing usable as an identity
func (c Candidate) Empty() bool {
	return c.ID == "" && c.Login == "" && c.Name == ""
}

// FromActor builds a candidate from an embedded person reference
func FromActor(a models.Actor, role string) Candidate {
	return Candidate{ID: a.ID, Login: a.Login, Name: a.Name, Email: a.Email, Role: role}
}

// FromCollaborator builds a candidate from a collaborator record
func FromCollaborator(c models.Collaborator) Candidate {
	return Candidate{ID: c.ID, Login: c.Login, Name: c.Name, Email: c.Email, Permission: c.Permission}
}

// Person is one canonical identity. Key is the platform id, or the synthetic
// name<email> composite when no id has been seen yet.
type Person struct {
	Key        string
	ID         string
	Login      string
	Name       string
	Email      string
	Role       string
	Permission string
	Synthetic  bool
}

// Resolution is the outcome of Register
type Resolution struct {
	ID     string
	Person *Person
	// Created is set when Register added a new person
	Created bool
	// Reconciled holds the synthetic keys folded into ID, in fold order
	Reconciled []string
}

// Resolver maps raw person references to canonical persons. It is not safe
// for concurrent use; the graph builder drives it from a single goroutine.
type Resolver struct {
	persons map[string]*Person
	byLogin map[string]string
	byName  map[string]string
	aliases map[string]string

	collabOrder []string
	collabs     map[string]models.Collaborator

	logger *slog.Logger
}

// NewResolver creates an empty resolver
func NewResolver() *Resolver {
	return &Resolver{
		persons: make(map[string]*Person),
		byLogin: make(map[string]string),
		byName:  make(map[string]string),
		aliases: make(map[string]string),
		collabs: make(map[string]models.Collaborator),
		logger:  slog.Default().With("component", "identity"),
	}
}

// SyntheticKey builds the fallback key for a person without a platform id
func SyntheticKey(name, email string) string {
	return name + "<" + email + ">"
}

// Seed loads the persisted collaborator list as the baseline identity table
func (r *Resolver) Seed(collaborators []models.Collaborator) {
	for _, c := range collaborators {
		if c.ID != "" {
			if _, ok := r.collabs[c.ID]; !ok {
				r.collabOrder = append(r.collabOrder, c.ID)
			}
			r.collabs[c.ID] = c
		}
		r.Register(FromCollaborator(c))
	}
	r.logger.Debug("identity table seeded", "collaborators", len(collaborators), "persons", len(r.persons))
}

// Resolve looks a candidate up without mutating the table
func (r *Resolver) Resolve(c Candidate) (string, bool) {
	if c.ID != "" {
		if _, ok := r.persons[c.ID]; ok {
			return c.ID, true
		}
		if key, ok := r.aliases[c.ID]; ok {
			return key, true
		}
	}
	if c.Login != "" {
		if key, ok := r.byLogin[c.Login]; ok {
			return key, true
		}
	}
	if c.Name != "" {
		if key, ok := r.byName[c.Name]; ok {
			return key, true
		}
	}
	// git author strings are frequently logins and display names are
	// frequently used as logins, so try both directions.
	if c.Login != "" {
		if key, ok := r.byName[c.Login]; ok {
			return key, true
		}
	}
	if c.Name != "" {
		if key, ok := r.byLogin[c.Name]; ok {
			return key, true
		}
	}
	return "", false
}

// Register resolves a candidate, creating or reconciling a person as needed
func (r *Resolver) Register(c Candidate) Resolution {
	if c.Empty() {
		return Resolution{}
	}

	key, found := r.Resolve(c)
	if !found {
		return r.create(c)
	}

	p := r.persons[key]
	res := Resolution{ID: key, Person: p}

	if c.ID != "" && c.ID != p.ID {
		if _, aliased := r.aliases[c.ID]; !aliased {
			if p.Synthetic {
				r.rekey(p, c.ID)
				res.ID = c.ID
				res.Reconciled = append(res.Reconciled, key)
				r.logger.Debug("synthetic person reconciled", "from", key, "to", c.ID)
			} else {
				// Two real ids for one person: keep the existing key.
				r.aliases[c.ID] = p.Key
				r.logger.Debug("identity conflict merged", "person", p.Key, "alias", c.ID)
			}
		}
	}

	// A real id can reach more than one synthetic person, e.g. one commit
	// signed with the login and another with the display name.
	if c.ID != "" && !p.Synthetic {
		res.Reconciled = append(res.Reconciled, r.absorb(p, c)...)
	}

	r.merge(p, c)
	if !p.Synthetic {
		r.trackCollaborator(p)
	}
	return res
}

// Person returns the canonical person for a key or alias
func (r *Resolver) Person(key string) (*Person, bool) {
	if p, ok := r.persons[key]; ok {
		return p, true
	}
	if target, ok := r.aliases[key]; ok {
		p, ok := r.persons[target]
		return p, ok
	}
	return nil, false
}

// Len returns the number of distinct persons
func (r *Resolver) Len() int {
	return len(r.persons)
}

// Collaborators returns the seeded collaborators followed by every real-id
// person registered since, with their latest attributes.
func (r *Resolver) Collaborators() []models.Collaborator {
	out := make([]models.Collaborator, 0, len(r.collabOrder))
	for _, id := range r.collabOrder {
		c := r.collabs[id]
		if p, ok := r.Person(id); ok {
			c.Login = firstNonEmpty(p.Login, c.Login)
			c.Name = firstNonEmpty(p.Name, c.Name)
			c.Email = firstNonEmpty(p.Email, c.Email)
		}
		out = append(out, c)
	}
	return out
}

func (r *Resolver) create(c Candidate) Resolution {
	p := &Person{
		ID:         c.ID,
		Login:      c.Login,
		Name:       c.Name,
		Email:      c.Email,
		Role:       c.Role,
		Permission: c.Permission,
	}
	if c.ID != "" {
		p.Key = c.ID
	} else {
		p.Key = SyntheticKey(firstNonEmpty(c.Name, c.Login), c.Email)
		p.Synthetic = true
	}

	r.persons[p.Key] = p
	r.index(p)
	if !p.Synthetic {
		r.trackCollaborator(p)
	}
	return Resolution{ID: p.Key, Person: p, Created: true}
}

func (r *Resolver) rekey(p *Person, id string) {
	old := p.Key
	delete(r.persons, old)
	p.Key = id
	p.ID = id
	p.Synthetic = false
	r.persons[id] = p
	r.repoint(old, id)
}

// absorb folds every other synthetic person reachable from the candidate's
// login or name into p and returns their keys.
func (r *Resolver) absorb(p *Person, c Candidate) []string {
	var lookups []string
	if c.Login != "" {
		lookups = append(lookups, r.byLogin[c.Login], r.byName[c.Login])
	}
	if c.Name != "" {
		lookups = append(lookups, r.byName[c.Name], r.byLogin[c.Name])
	}

	var folded []string
	for _, key := range lookups {
		if key == "" || key == p.Key {
			continue
		}
		s, ok := r.persons[key]
		if !ok || !s.Synthetic {
			continue
		}
		delete(r.persons, key)
		p.Login = firstNonEmpty(p.Login, s.Login)
		p.Name = firstNonEmpty(p.Name, s.Name)
		p.Email = firstNonEmpty(p.Email, s.Email)
		p.Role = firstNonEmpty(p.Role, s.Role)
		r.repoint(key, p.Key)
		folded = append(folded, key)
		r.logger.Debug("synthetic person reconciled", "from", key, "to", p.Key)
	}
	return folded
}

// repoint makes every lookup that led to old lead to key instead
func (r *Resolver) repoint(old, key string) {
	r.aliases[old] = key
	for alias, target := range r.aliases {
		if target == old {
			r.aliases[alias] = key
		}
	}
	for login, target := range r.byLogin {
		if target == old {
			r.byLogin[login] = key
		}
	}
	for name, target := range r.byName {
		if target == old {
			r.byName[name] = key
		}
	}
}

// merge applies last-write-wins on the identifying attributes. The role
// hint keeps the first role a person was seen in.
func (r *Resolver) merge(p *Person, c Candidate) {
	if c.Login != "" {
		p.Login = c.Login
	}
	if c.Name != "" {
		p.Name = c.Name
	}
	if c.Email != "" {
		p.Email = c.Email
	}
	if p.Role == "" {
		p.Role = c.Role
	}
	if c.Permission != "" {
		p.Permission = c.Permission
	}
	r.index(p)
}

// index adds lookup entries without stealing names or logins that already
// belong to another person.
func (r *Resolver) index(p *Person) {
	if p.Login != "" {
		if _, taken := r.byLogin[p.Login]; !taken {
			r.byLogin[p.Login] = p.Key
		}
	}
	if p.Name != "" {
		if _, taken := r.byName[p.Name]; !taken {
			r.byName[p.Name] = p.Key
		}
	}
}

func (r *Resolver) trackCollaborator(p *Person) {
	if _, ok := r.collabs[p.Key]; ok {
		return
	}
	r.collabOrder = append(r.collabOrder, p.Key)
	r.collabs[p.Key] = models.Collaborator{
		ID:         p.Key,
		Login:      p.Login,
		Name:       p.Name,
		Email:      p.Email,
		Permission: p.Permission,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
