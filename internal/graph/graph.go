package graph

import (
	"sort"

	"github.com/rohankatakam/repograph/internal/models"
)

// EdgeKind is the relationship type written to the store
type EdgeKind string

const (
	EdgeOwns           EdgeKind = "owns"
	EdgeBranchOf       EdgeKind = "branch_of"
	EdgeAuthor         EdgeKind = "author"
	EdgeContributesTo  EdgeKind = "contributes_to"
	EdgeCommittedTo    EdgeKind = "committed_to"
	EdgeChanged        EdgeKind = "changed"
	EdgeParentOf       EdgeKind = "parent_of"
	EdgeCreates        EdgeKind = "creates"
	EdgeAssigned       EdgeKind = "assigned"
	EdgeReviews        EdgeKind = "reviews"
	EdgeParticipatesIn EdgeKind = "participates_in"
	EdgeClosed         EdgeKind = "closed"
	EdgeClosedIn       EdgeKind = "closed_in"
	EdgeReleaseOf      EdgeKind = "release_of"
	EdgeProjectOf      EdgeKind = "project_of"
	EdgeForkOf         EdgeKind = "fork_of"
	EdgeLanguageOf     EdgeKind = "language_of"
	EdgeFixed          EdgeKind = "fixed"
	EdgeIntroduced     EdgeKind = "introduced"
	EdgeImpacted       EdgeKind = "impacted"
)

// Edge is a typed, directed relationship. At most one edge exists per
// (Kind, From, To).
type Edge struct {
	Kind  EdgeKind
	From  NodeRef
	To    NodeRef
	Attrs map[string]any
}

type edgeKey struct {
	kind     EdgeKind
	from, to NodeRef
}

// Graph is the in-memory multigraph. Nodes live in per-kind maps keyed by
// identity key; edges are a list with a dedup index.
type Graph struct {
	Persons      map[string]*PersonNode
	Repositories map[string]*RepositoryNode
	Commits      map[string]*CommitNode
	Files        map[string]*FileNode
	Issues       map[string]*IssueNode
	PullRequests map[string]*PullRequestNode
	Releases     map[string]*ReleaseNode
	Projects     map[string]*ProjectNode
	Forks        map[string]*ForkNode
	Languages    map[string]*LanguageNode
	Branches     map[string]*BranchNode

	edges   []*Edge
	edgeIdx map[edgeKey]*Edge
	retired map[NodeRef]struct{}
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		Persons:      make(map[string]*PersonNode),
		Repositories: make(map[string]*RepositoryNode),
		Commits:      make(map[string]*CommitNode),
		Files:        make(map[string]*FileNode),
		Issues:       make(map[string]*IssueNode),
		PullRequests: make(map[string]*PullRequestNode),
		Releases:     make(map[string]*ReleaseNode),
		Projects:     make(map[string]*ProjectNode),
		Forks:        make(map[string]*ForkNode),
		Languages:    make(map[string]*LanguageNode),
		Branches:     make(map[string]*BranchNode),
		edgeIdx:      make(map[edgeKey]*Edge),
		retired:      make(map[NodeRef]struct{}),
	}
}

// getOrInsert returns the node stored under key, creating it with mk when
// absent. The bool reports whether the node was created.
func getOrInsert[T any](m map[string]*T, key string, mk func() *T) (*T, bool) {
	if n, ok := m[key]; ok {
		return n, false
	}
	n := mk()
	m[key] = n
	return n, true
}

// Node looks a node up by reference
func (g *Graph) Node(ref NodeRef) (Node, bool) {
	var (
		n  Node
		ok bool
	)
	switch ref.Kind {
	case KindPerson:
		var v *PersonNode
		v, ok = g.Persons[ref.ID]
		n = v
	case KindRepository:
		var v *RepositoryNode
		v, ok = g.Repositories[ref.ID]
		n = v
	case KindCommit:
		var v *CommitNode
		v, ok = g.Commits[ref.ID]
		n = v
	case KindFile:
		var v *FileNode
		v, ok = g.Files[ref.ID]
		n = v
	case KindIssue:
		var v *IssueNode
		v, ok = g.Issues[ref.ID]
		n = v
	case KindPullRequest:
		var v *PullRequestNode
		v, ok = g.PullRequests[ref.ID]
		n = v
	case KindRelease:
		var v *ReleaseNode
		v, ok = g.Releases[ref.ID]
		n = v
	case KindProject:
		var v *ProjectNode
		v, ok = g.Projects[ref.ID]
		n = v
	case KindFork:
		var v *ForkNode
		v, ok = g.Forks[ref.ID]
		n = v
	case KindLanguage:
		var v *LanguageNode
		v, ok = g.Languages[ref.ID]
		n = v
	case KindBranch:
		var v *BranchNode
		v, ok = g.Branches[ref.ID]
		n = v
	}
	if !ok {
		return nil, false
	}
	return n, true
}

// Has reports whether the referenced node exists
func (g *Graph) Has(ref NodeRef) bool {
	_, ok := g.Node(ref)
	return ok
}

// Repository returns the single repository node, if any. When several are
// present the smallest key wins so the result is stable.
func (g *Graph) Repository() (*RepositoryNode, bool) {
	var best *RepositoryNode
	for _, r := range g.Repositories {
		if best == nil || r.ID < best.ID {
			best = r
		}
	}
	return best, best != nil
}

// NodesByKind returns the nodes of one kind sorted by key
func (g *Graph) NodesByKind(kind NodeKind) []Node {
	var out []Node
	switch kind {
	case KindPerson:
		out = collect(g.Persons)
	case KindRepository:
		out = collect(g.Repositories)
	case KindCommit:
		out = collect(g.Commits)
	case KindFile:
		out = collect(g.Files)
	case KindIssue:
		out = collect(g.Issues)
	case KindPullRequest:
		out = collect(g.PullRequests)
	case KindRelease:
		out = collect(g.Releases)
	case KindProject:
		out = collect(g.Projects)
	case KindFork:
		out = collect(g.Forks)
	case KindLanguage:
		out = collect(g.Languages)
	case KindBranch:
		out = collect(g.Branches)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func collect[N Node](m map[string]N) []Node {
	out := make([]Node, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	return out
}

// Nodes returns every node, grouped by kind in AllKinds order
func (g *Graph) Nodes() []Node {
	var out []Node
	for _, kind := range AllKinds {
		out = append(out, g.NodesByKind(kind)...)
	}
	return out
}

// NodeCount returns the total number of nodes
func (g *Graph) NodeCount() int {
	return len(g.Persons) + len(g.Repositories) + len(g.Commits) + len(g.Files) +
		len(g.Issues) + len(g.PullRequests) + len(g.Releases) + len(g.Projects) +
		len(g.Forks) + len(g.Languages) + len(g.Branches)
}

// Edges returns the edges in insertion order
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	for i, e := range g.edges {
		out[i] = *e
	}
	return out
}

// EdgeCount returns the number of distinct edges
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// EdgesOfKind returns the edges of one kind in insertion order
func (g *Graph) EdgesOfKind(kind EdgeKind) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Kind == kind {
			out = append(out, *e)
		}
	}
	return out
}

// HasEdge reports whether an edge of kind exists between from and to
func (g *Graph) HasEdge(kind EdgeKind, from, to NodeRef) bool {
	_, ok := g.edgeIdx[edgeKey{kind, from, to}]
	return ok
}

// AddEdge adds or refreshes an edge. It returns false, leaving the graph
// untouched, when either endpoint is missing.
func (g *Graph) AddEdge(kind EdgeKind, from, to NodeRef, attrs map[string]any) bool {
	if !g.Has(from) || !g.Has(to) {
		return false
	}
	g.putEdge(&Edge{Kind: kind, From: from, To: to, Attrs: attrs})
	return true
}

func (g *Graph) putEdge(e *Edge) {
	k := edgeKey{e.Kind, e.From, e.To}
	if existing, ok := g.edgeIdx[k]; ok {
		existing.Attrs = mergeAttrs(existing.Attrs, e.Attrs)
		return
	}
	if e.Attrs == nil {
		e.Attrs = map[string]any{}
	}
	g.edges = append(g.edges, e)
	g.edgeIdx[k] = e
}

func mergeAttrs(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// ReconcilePerson folds the person stored under from into to. Edges are
// repointed and deduplicated, and from is recorded as retired so the store
// can drop the stale node.
func (g *Graph) ReconcilePerson(from, to string) {
	if from == to {
		return
	}
	old, hadOld := g.Persons[from]
	delete(g.Persons, from)

	if _, ok := g.Persons[to]; !ok {
		if hadOld {
			old.ID = to
			g.Persons[to] = old
		} else {
			g.Persons[to] = &PersonNode{ID: to}
		}
	}
	g.retired[NodeRef{Kind: KindPerson, ID: from}] = struct{}{}

	fromRef := NodeRef{Kind: KindPerson, ID: from}
	toRef := NodeRef{Kind: KindPerson, ID: to}

	edges := g.edges
	g.edges = nil
	g.edgeIdx = make(map[edgeKey]*Edge, len(edges))
	for _, e := range edges {
		if e.From == fromRef {
			e.From = toRef
		}
		if e.To == fromRef {
			e.To = toRef
		}
		g.putEdge(e)
	}
}

// Retired returns the nodes removed by reconciliation that were not
// re-created afterwards, sorted for stable deletes.
func (g *Graph) Retired() []NodeRef {
	var out []NodeRef
	for ref := range g.retired {
		if !g.Has(ref) {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// AddBugLinks overlays fix/induce/impacted triples. References to commits,
// issues or files absent from the graph are dropped without error and never
// create nodes.
func (g *Graph) AddBugLinks(links []models.BugLink) int {
	added := 0
	for _, link := range links {
		issue := NodeRef{Kind: KindIssue, ID: link.Number}
		if !g.Has(issue) {
			continue
		}
		for _, sha := range link.FixingCommit {
			if g.AddEdge(EdgeFixed, NodeRef{Kind: KindCommit, ID: sha}, issue, nil) {
				added++
			}
		}
		for _, sha := range link.InducingCommit {
			if g.AddEdge(EdgeIntroduced, NodeRef{Kind: KindCommit, ID: sha}, issue, nil) {
				added++
			}
		}
		for _, file := range link.ImpactedFiles {
			if g.AddEdge(EdgeImpacted, issue, NodeRef{Kind: KindFile, ID: file}, nil) {
				added++
			}
		}
	}
	return added
}
