package graph

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/identity"
	"github.com/rohankatakam/repograph/internal/models"
)

// ErrNoRepository is returned when neither the batches nor the graph carry
// a repository node. Every other stage hangs off it, so the run stops.
var ErrNoRepository = errors.New(errors.ErrorTypeSchema, errors.SeverityCritical,
	"repository batch is empty and no repository is loaded")

var closingKeywordPattern = regexp.MustCompile(`(?:fix|fixes|fixed|close|closes|closed|resolve|resolves|resolved)\s+#(\d+)`)

// Batches holds one set of typed entity records, either a full baseline or
// a delta.
type Batches struct {
	Repositories  []models.Repository
	Collaborators []models.Collaborator
	Releases      []models.Release
	Languages     []models.Language
	Projects      []models.Project
	Forks         []models.Fork
	Issues        []models.Issue
	PullRequests  []models.PullRequest
	Commits       []models.Commit
}

// Empty reports whether no batch holds a record
func (b Batches) Empty() bool {
	return len(b.Repositories) == 0 && len(b.Collaborators) == 0 && len(b.Releases) == 0 &&
		len(b.Languages) == 0 && len(b.Projects) == 0 && len(b.Forks) == 0 &&
		len(b.Issues) == 0 && len(b.PullRequests) == 0 && len(b.Commits) == 0
}

// StageError records a stage that was aborted by a schema error
type StageError struct {
	Entity models.EntityKind
	Err    error
}

// BuildStats tracks graph construction statistics
type BuildStats struct {
	NodesAdded   int
	EdgesAdded   int
	DroppedEdges int
	// Deferred counts cross-links still waiting for an endpoint
	Deferred    int
	Reconciled  int
	StageErrors []StageError
}

// Builder turns entity batches into graph nodes and edges, resolving every
// person-valued field through the identity resolver.
type Builder struct {
	graph    *Graph
	resolver *identity.Resolver
	logger   *logrus.Logger

	repo  NodeRef
	stats *BuildStats

	// cross-entity links waiting for an endpoint from a later batch
	deferred    []Edge
	deferredIdx map[edgeKey]struct{}
}

// NewBuilder creates a graph builder over g
func NewBuilder(g *Graph, resolver *identity.Resolver, logger *logrus.Logger) *Builder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Builder{
		graph:       g,
		resolver:    resolver,
		logger:      logger,
		deferredIdx: make(map[edgeKey]struct{}),
	}
}

// Graph returns the graph being built
func (b *Builder) Graph() *Graph {
	return b.graph
}

// Resolver returns the identity table used by the builder
func (b *Builder) Resolver() *identity.Resolver {
	return b.resolver
}

// Build adds batches to the graph. It may be called repeatedly on the same
// graph, baseline first and then delta.
func (b *Builder) Build(batches Batches) (*BuildStats, error) {
	stats := &BuildStats{}
	b.stats = stats
	nodesBefore := b.graph.NodeCount()
	edgesBefore := b.graph.EdgeCount()

	b.runStage(models.EntityCollaborators, func() error { return b.addCollaborators(batches.Collaborators) })

	if err := b.addRepositories(batches.Repositories); err != nil {
		return stats, err
	}

	b.runStage(models.EntityReleases, func() error { return b.addReleases(batches.Releases) })
	b.runStage(models.EntityLanguages, func() error { return b.addLanguages(batches.Languages) })
	b.runStage(models.EntityProjects, func() error { return b.addProjects(batches.Projects) })
	b.runStage(models.EntityForks, func() error { return b.addForks(batches.Forks) })
	b.runStage(models.EntityIssues, func() error { return b.addIssues(batches.Issues) })
	b.runStage(models.EntityPullRequests, func() error { return b.addPullRequests(batches.PullRequests) })
	b.runStage(models.EntityCommits, func() error { return b.addCommits(batches.Commits) })

	b.linkParents(batches.Commits)
	b.linkCommitsToPullRequests(batches.PullRequests)
	b.flushDeferred()

	stats.NodesAdded = b.graph.NodeCount() - nodesBefore
	stats.EdgesAdded = b.graph.EdgeCount() - edgesBefore

	b.logger.WithFields(logrus.Fields{
		"nodes_added":   stats.NodesAdded,
		"edges_added":   stats.EdgesAdded,
		"dropped_edges": stats.DroppedEdges,
		"deferred":      stats.Deferred,
		"reconciled":    stats.Reconciled,
		"stage_errors":  len(stats.StageErrors),
	}).Info("graph batches built")

	return stats, nil
}

func (b *Builder) runStage(entity models.EntityKind, fn func() error) {
	if err := fn(); err != nil {
		b.stats.StageErrors = append(b.stats.StageErrors, StageError{Entity: entity, Err: err})
		b.logger.WithError(err).WithField("entity", entity).Warn("entity stage aborted")
	}
}

// person registers a candidate and mirrors the canonical person into the
// graph. It returns false when the candidate carries no usable identity.
func (b *Builder) person(c identity.Candidate) (NodeRef, bool) {
	res := b.resolver.Register(c)
	if res.ID == "" {
		return NodeRef{}, false
	}
	for _, from := range res.Reconciled {
		b.graph.ReconcilePerson(from, res.ID)
		b.stats.Reconciled++
	}

	p := res.Person
	n, _ := getOrInsert(b.graph.Persons, p.Key, func() *PersonNode { return &PersonNode{ID: p.Key} })
	n.PlatformID = p.ID
	n.Login = p.Login
	n.Name = p.Name
	n.Email = p.Email
	n.Role = p.Role
	n.Permission = p.Permission
	return NodeRef{Kind: KindPerson, ID: p.Key}, true
}

func (b *Builder) edge(kind EdgeKind, from, to NodeRef, attrs map[string]any) {
	if !b.graph.AddEdge(kind, from, to, attrs) {
		b.stats.DroppedEdges++
		b.logger.WithFields(logrus.Fields{
			"edge": kind,
			"from": from.String(),
			"to":   to.String(),
		}).Debug("edge dropped, endpoint missing")
	}
}

// crossLink adds an edge between entities collected independently. When an
// endpoint is missing the link is kept and retried after later batches, so
// a delta commit can still join a pull request from the baseline.
func (b *Builder) crossLink(kind EdgeKind, from, to NodeRef) {
	if b.graph.AddEdge(kind, from, to, nil) {
		return
	}
	k := edgeKey{kind, from, to}
	if _, ok := b.deferredIdx[k]; ok {
		return
	}
	b.deferredIdx[k] = struct{}{}
	b.deferred = append(b.deferred, Edge{Kind: kind, From: from, To: to})
}

func (b *Builder) flushDeferred() {
	pending := b.deferred[:0]
	for _, e := range b.deferred {
		if b.graph.AddEdge(e.Kind, e.From, e.To, nil) {
			delete(b.deferredIdx, edgeKey{e.Kind, e.From, e.To})
			continue
		}
		pending = append(pending, e)
	}
	b.deferred = pending
	b.stats.Deferred = len(pending)
}

func (b *Builder) addCollaborators(collaborators []models.Collaborator) error {
	for i, c := range collaborators {
		if c.ID == "" {
			return errors.SchemaErrorf("collaborator %d has no id", i)
		}
		b.person(identity.FromCollaborator(c))
	}
	return nil
}

func (b *Builder) addRepositories(repositories []models.Repository) error {
	if len(repositories) == 0 {
		if r, ok := b.graph.Repository(); ok {
			b.repo = Ref(r)
			return nil
		}
		return ErrNoRepository
	}

	for i, r := range repositories {
		if r.ID == "" {
			return errors.Wrap(errors.SchemaErrorf("repository %d has no id", i),
				errors.ErrorTypeSchema, errors.SeverityCritical, "repository stage failed")
		}
		n, _ := getOrInsert(b.graph.Repositories, r.ID, func() *RepositoryNode { return &RepositoryNode{ID: r.ID} })
		n.Name = r.Name
		n.Description = r.Description
		n.URL = r.URL
		n.Visibility = r.Visibility
		n.Stars = r.Stars
		n.ForksCount = r.ForksCount
		n.IsTemplate = r.IsTemplate
		n.PrimaryLanguage = r.PrimaryLanguage
		repoRef := Ref(n)
		if i == 0 {
			b.repo = repoRef
		}

		if owner, ok := b.person(identity.Candidate{
			ID:         r.OwnerID,
			Login:      r.OwnerLogin,
			Name:       r.OwnerName,
			Email:      r.OwnerEmail,
			Role:       identity.RoleOwner,
			Permission: "admin",
		}); ok {
			b.edge(EdgeOwns, owner, repoRef, nil)
		}

		for _, br := range r.Branches.Nodes {
			if br.Name == "" {
				continue
			}
			branch := b.branch(br.Name)
			b.edge(EdgeBranchOf, branch, repoRef, nil)
		}
	}
	return nil
}

func (b *Builder) branch(name string) NodeRef {
	n, _ := getOrInsert(b.graph.Branches, name, func() *BranchNode { return &BranchNode{Name: name} })
	return Ref(n)
}

func (b *Builder) addReleases(releases []models.Release) error {
	for i, r := range releases {
		if r.ID == "" {
			return errors.SchemaErrorf("release %d has no id", i)
		}
		n, _ := getOrInsert(b.graph.Releases, r.ID, func() *ReleaseNode { return &ReleaseNode{ID: r.ID} })
		n.Name = r.Name
		n.URL = r.URL
		n.Description = r.Description
		n.IsLatest = r.IsLatest
		n.CreatedAt = r.CreatedAt
		b.edge(EdgeReleaseOf, Ref(n), b.repo, nil)

		if author, ok := b.person(identity.Candidate{
			ID: r.AuthorID, Login: r.AuthorLogin, Name: r.AuthorName, Email: r.AuthorEmail,
			Role: identity.RoleCreator,
		}); ok {
			b.edge(EdgeCreates, author, Ref(n), nil)
		}
	}
	return nil
}

func (b *Builder) addLanguages(languages []models.Language) error {
	for i, l := range languages {
		key := l.ID
		if key == "" {
			key = l.Name
		}
		if key == "" {
			return errors.SchemaErrorf("language %d has no id or name", i)
		}
		n, _ := getOrInsert(b.graph.Languages, key, func() *LanguageNode { return &LanguageNode{ID: key} })
		n.Name = l.Name
		n.Color = l.Color
		b.edge(EdgeLanguageOf, Ref(n), b.repo, nil)
	}
	return nil
}

func (b *Builder) addProjects(projects []models.Project) error {
	for i, p := range projects {
		if p.ID == "" {
			return errors.SchemaErrorf("project %d has no id", i)
		}
		n, _ := getOrInsert(b.graph.Projects, p.ID, func() *ProjectNode { return &ProjectNode{ID: p.ID} })
		n.Name = p.Name
		n.Body = p.Body
		n.Number = p.Number
		n.State = strings.ToLower(p.State)
		n.DonePercentage = p.DonePercentage
		n.InProgressPercentage = p.InProgressPercentage
		n.TodoPercentage = p.TodoPercentage
		n.URL = p.URL
		n.CreatedAt = p.CreatedAt
		b.edge(EdgeProjectOf, Ref(n), b.repo, nil)

		if creator, ok := b.person(identity.Candidate{
			ID: p.CreatorID, Login: p.CreatorLogin, Name: p.CreatorName, Email: p.CreatorEmail,
			Role: identity.RoleCreator,
		}); ok {
			b.edge(EdgeCreates, creator, Ref(n), nil)
		}
	}
	return nil
}

func (b *Builder) addForks(forks []models.Fork) error {
	for i, f := range forks {
		if f.ID == "" {
			return errors.SchemaErrorf("fork %d has no id", i)
		}
		n, _ := getOrInsert(b.graph.Forks, f.ID, func() *ForkNode { return &ForkNode{ID: f.ID} })
		n.Name = f.Name
		n.URL = f.URL
		b.edge(EdgeForkOf, Ref(n), b.repo, nil)
	}
	return nil
}

func (b *Builder) addIssues(issues []models.Issue) error {
	for _, is := range issues {
		if is.Number <= 0 {
			return errors.SchemaErrorf("issue %q has no number", is.ID)
		}
		key := IssueKey(is.Number)
		n, _ := getOrInsert(b.graph.Issues, key, func() *IssueNode { return &IssueNode{Number: is.Number} })
		n.PlatformID = is.ID
		n.URL = is.URL
		n.Title = is.Title
		n.Body = is.Body
		n.State = strings.ToLower(is.State)
		n.StateReason = is.StateReason
		n.CreatedAt = is.CreatedAt
		n.ClosedAt = is.ClosedAt
		n.UpdatedAt = is.UpdatedAt
		issueRef := Ref(n)

		if author, ok := b.person(identity.Candidate{
			ID: is.AuthorID, Login: is.AuthorLogin, Name: is.AuthorName, Email: is.AuthorEmail,
			Role: identity.RoleAuthor,
		}); ok {
			b.edge(EdgeCreates, author, issueRef, nil)
		}
		for _, a := range is.Assignees {
			if p, ok := b.person(identity.FromActor(a, identity.RoleAssignee)); ok {
				b.edge(EdgeAssigned, p, issueRef, nil)
			}
		}
		for _, a := range is.Participants {
			if p, ok := b.person(identity.FromActor(a, identity.RoleParticipant)); ok {
				b.edge(EdgeParticipatesIn, p, issueRef, nil)
			}
		}
	}
	return nil
}

func (b *Builder) addPullRequests(prs []models.PullRequest) error {
	for i, pr := range prs {
		if pr.ID == "" {
			return errors.SchemaErrorf("pull request %d (#%d) has no id", i, pr.Number)
		}
		n, _ := getOrInsert(b.graph.PullRequests, pr.ID, func() *PullRequestNode { return &PullRequestNode{ID: pr.ID} })
		n.Number = pr.Number
		n.URL = pr.URL
		n.Title = pr.Title
		n.Body = pr.Body
		n.State = strings.ToLower(pr.State)
		n.ChangedFiles = pr.ChangedFiles
		n.CommentsCount = pr.CommentsCount
		n.CreatedAt = pr.CreatedAt
		n.ClosedAt = pr.ClosedAt
		n.UpdatedAt = pr.UpdatedAt
		prRef := Ref(n)

		if author, ok := b.person(identity.Candidate{
			ID: pr.AuthorID, Login: pr.AuthorLogin, Name: pr.AuthorName, Email: pr.AuthorEmail,
			Role: identity.RoleAuthor,
		}); ok {
			b.edge(EdgeCreates, author, prRef, nil)
		}
		for _, a := range pr.Assignees {
			if p, ok := b.person(identity.FromActor(a, identity.RoleAssignee)); ok {
				b.edge(EdgeAssigned, p, prRef, nil)
			}
		}
		for _, a := range pr.Reviewers {
			if p, ok := b.person(identity.FromActor(a, identity.RoleReviewer)); ok {
				b.edge(EdgeReviews, p, prRef, nil)
			}
		}
		for _, a := range pr.Participants {
			if p, ok := b.person(identity.FromActor(a, identity.RoleParticipant)); ok {
				b.edge(EdgeParticipatesIn, p, prRef, nil)
			}
		}

		for _, number := range closingIssues(pr) {
			b.crossLink(EdgeClosed, prRef, NodeRef{Kind: KindIssue, ID: IssueKey(number)})
		}
	}
	return nil
}

// closingIssues returns the issues a pull request closes, falling back to
// closing keywords in the title and body when the platform reported none.
func closingIssues(pr models.PullRequest) []int {
	if len(pr.ClosingIssues) > 0 {
		out := make([]int, 0, len(pr.ClosingIssues))
		for _, ref := range pr.ClosingIssues {
			out = append(out, ref.Number)
		}
		return out
	}
	return extractIssueReferences(pr.Title, pr.Body)
}

// extractIssueReferences parses text for "Fixes #123", "Closes #456" patterns
func extractIssueReferences(title, body string) []int {
	text := strings.ToLower(title + " " + body)
	matches := closingKeywordPattern.FindAllStringSubmatch(text, -1)

	issueNumbers := []int{}
	seen := make(map[int]bool)
	for _, match := range matches {
		num, err := strconv.Atoi(match[1])
		if err != nil || seen[num] {
			continue
		}
		issueNumbers = append(issueNumbers, num)
		seen[num] = true
	}
	return issueNumbers
}

func (b *Builder) addCommits(commits []models.Commit) error {
	for i, c := range commits {
		if c.Hash == "" {
			return errors.SchemaErrorf("commit %d has no hash", i)
		}
		n, _ := getOrInsert(b.graph.Commits, c.Hash, func() *CommitNode { return &CommitNode{Hash: c.Hash} })
		n.Message = c.Message
		n.CommittedDate = c.CommittedDate
		n.Branches = append([]string(nil), c.Branches...)
		commitRef := Ref(n)

		if author, ok := b.person(identity.Candidate{
			Name: c.AuthorName, Email: c.AuthorEmail, Role: identity.RoleAuthor,
		}); ok {
			b.edge(EdgeAuthor, author, commitRef, nil)
			b.edge(EdgeContributesTo, author, b.repo, nil)
		}

		for _, name := range c.Branches {
			if name == "" {
				continue
			}
			b.edge(EdgeCommittedTo, commitRef, b.branch(name), nil)
		}

		for _, f := range c.ModifiedFiles {
			p := f.Path
			if p == "" {
				p = f.Filename
			}
			if p == "" {
				continue
			}
			file, _ := getOrInsert(b.graph.Files, p, func() *FileNode { return &FileNode{Path: p} })
			b.edge(EdgeChanged, commitRef, Ref(file), map[string]any{
				"changeType": f.ChangeType,
				"additions":  f.Additions,
				"deletions":  f.Deletions,
				"patch":      f.Diff,
			})
		}
	}
	return nil
}

// linkParents adds parent_of edges once every commit of the batch exists.
// Parents outside the graph (shallow clones) are dropped.
func (b *Builder) linkParents(commits []models.Commit) {
	for _, c := range commits {
		if _, ok := b.graph.Commits[c.Hash]; !ok {
			continue
		}
		for _, p := range c.Parents {
			if p.OID == "" {
				continue
			}
			b.edge(EdgeParentOf, NodeRef{Kind: KindCommit, ID: p.OID}, NodeRef{Kind: KindCommit, ID: c.Hash}, nil)
		}
	}
}

// linkCommitsToPullRequests adds closed_in edges from each pull request's
// commits.
func (b *Builder) linkCommitsToPullRequests(prs []models.PullRequest) {
	for _, pr := range prs {
		if _, ok := b.graph.PullRequests[pr.ID]; !ok {
			continue
		}
		prRef := NodeRef{Kind: KindPullRequest, ID: pr.ID}
		for _, ref := range pr.Commits {
			sha := ref.SHA()
			if sha == "" {
				continue
			}
			b.crossLink(EdgeClosedIn, NodeRef{Kind: KindCommit, ID: sha}, prRef)
		}
	}
}

// Summary is a one-line description of the graph, used in run logs
func (g *Graph) Summary() string {
	return fmt.Sprintf("%d persons, %d commits, %d files, %d issues, %d pull requests, %d edges",
		len(g.Persons), len(g.Commits), len(g.Files), len(g.Issues), len(g.PullRequests), g.EdgeCount())
}
