package models

import (
	"strings"
	"time"
)

// EntityKind names one per-repository batch file
type EntityKind string

const (
	EntityRepositories  EntityKind = "repositories"
	EntityCollaborators EntityKind = "collaborators"
	EntityReleases      EntityKind = "releases"
	EntityLanguages     EntityKind = "languages"
	EntityProjects      EntityKind = "projects"
	EntityForks         EntityKind = "forks"
	EntityCommits       EntityKind = "commits"
	EntityIssues        EntityKind = "issues"
	EntityPullRequests  EntityKind = "pull_requests"
	EntityFixingBIC     EntityKind = "fixing_bic"
)

// AllEntities lists every batch kind in builder order
var AllEntities = []EntityKind{
	EntityCollaborators,
	EntityRepositories,
	EntityReleases,
	EntityLanguages,
	EntityProjects,
	EntityForks,
	EntityIssues,
	EntityPullRequests,
	EntityCommits,
	EntityFixingBIC,
}

// Repository is one record of the repositories batch
type Repository struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	URL             string           `json:"url"`
	Stars           int              `json:"stars"`
	Visibility      string           `json:"visibility"`
	ForksCount      int              `json:"forksCount"`
	IsTemplate      bool             `json:"isTemplate"`
	PrimaryLanguage string           `json:"primaryLanguage"`
	OwnerLogin      string           `json:"owner_login"`
	OwnerName       string           `json:"owner_name"`
	OwnerID         string           `json:"owner_id"`
	OwnerEmail      string           `json:"owner_email"`
	Branches        BranchConnection `json:"branches"`
}

type BranchConnection struct {
	Nodes []BranchRef `json:"nodes"`
}

type BranchRef struct {
	Name string `json:"name"`
}

// Collaborator is a person with a platform id. The persisted collaborator
// list doubles as the identity table for later runs.
type Collaborator struct {
	RepositoryID string `json:"repository_id,omitempty"`
	ID           string `json:"id"`
	Login        string `json:"login"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Permission   string `json:"permission"`
}

// Actor is a person reference embedded in another record
type Actor struct {
	ID    string `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Release struct {
	RepositoryID string `json:"repository_id,omitempty"`
	ID           string `json:"id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	Description  string `json:"description"`
	IsLatest     bool   `json:"is_latest"`
	CreatedAt    string `json:"created_at"`
	AuthorID     string `json:"author_id"`
	AuthorLogin  string `json:"author_login"`
	AuthorName   string `json:"author_name"`
	AuthorEmail  string `json:"author_email"`
}

type Language struct {
	RepositoryID string `json:"repository_id,omitempty"`
	ID           string `json:"id"`
	Name         string `json:"name"`
	Color        string `json:"color"`
}

type Project struct {
	RepositoryID         string  `json:"repository_id,omitempty"`
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Body                 string  `json:"body"`
	Number               int     `json:"number"`
	State                string  `json:"state"`
	DonePercentage       float64 `json:"done_percentage"`
	InProgressPercentage float64 `json:"in_progress_percentage"`
	TodoPercentage       float64 `json:"todo_percentage"`
	URL                  string  `json:"url"`
	CreatedAt            string  `json:"created_at"`
	CreatorID            string  `json:"creator_id"`
	CreatorLogin         string  `json:"creator_login"`
	CreatorName          string  `json:"creator_name"`
	CreatorEmail         string  `json:"creator_email"`
}

type Fork struct {
	RepositoryID string `json:"repository_id,omitempty"`
	ID           string `json:"id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
}

// Commit is one record of the commits batch, collected from the local clone
type Commit struct {
	Hash          string         `json:"hash"`
	AuthorName    string         `json:"author_name"`
	AuthorEmail   string         `json:"author_email"`
	CommittedDate string         `json:"committedDate"`
	Message       string         `json:"message"`
	Branches      []string       `json:"branches"`
	ModifiedFiles []ModifiedFile `json:"modified_files"`
	Parents       []ParentRef    `json:"parents"`
}

type ModifiedFile struct {
	Filename   string `json:"filename"`
	Path       string `json:"path"`
	ChangeType string `json:"change_type"`
	Additions  int    `json:"additions"`
	Deletions  int    `json:"deletions"`
	Diff       string `json:"diff"`
}

type ParentRef struct {
	OID string `json:"oid"`
}

type Issue struct {
	RepositoryID string  `json:"repository_id,omitempty"`
	ID           string  `json:"id"`
	Number       int     `json:"number"`
	URL          string  `json:"url"`
	Title        string  `json:"title"`
	Body         string  `json:"body"`
	State        string  `json:"state"`
	StateReason  string  `json:"state_reason"`
	CreatedAt    string  `json:"created_at"`
	ClosedAt     string  `json:"closed_at"`
	UpdatedAt    string  `json:"updated_at"`
	AuthorID     string  `json:"author_id"`
	AuthorLogin  string  `json:"author_login"`
	AuthorName   string  `json:"author_name"`
	AuthorEmail  string  `json:"author_email"`
	Assignees    []Actor `json:"assignees"`
	Participants []Actor `json:"participants"`
}

// IsOpen reports whether the issue is still open
func (i Issue) IsOpen() bool {
	return strings.EqualFold(i.State, "open")
}

type PullRequest struct {
	RepositoryID  string     `json:"repository_id,omitempty"`
	ID            string     `json:"id"`
	Number        int        `json:"number"`
	URL           string     `json:"url"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	State         string     `json:"state"`
	ChangedFiles  int        `json:"changed_files"`
	CommentsCount int        `json:"comments_count"`
	CreatedAt     string     `json:"created_at"`
	ClosedAt      string     `json:"closed_at"`
	UpdatedAt     string     `json:"updated_at"`
	AuthorID      string     `json:"author_id"`
	AuthorLogin   string     `json:"author_login"`
	AuthorName    string     `json:"author_name"`
	AuthorEmail   string     `json:"author_email"`
	ClosingIssues []IssueRef `json:"closing_issues"`
	Commits       []CommitRef `json:"commits"`
	Files         []PRFile   `json:"files"`
	Assignees     []Actor    `json:"assignees"`
	Participants  []Actor    `json:"participants"`
	Reviewers     []Actor    `json:"reviewers"`
}

type IssueRef struct {
	Number int `json:"number"`
}

// CommitRef accepts both {"oid": ...} and the nested {"commit": {"oid": ...}} shape
type CommitRef struct {
	OID    string     `json:"oid,omitempty"`
	Commit *ParentRef `json:"commit,omitempty"`
}

// SHA returns the referenced commit hash
func (c CommitRef) SHA() string {
	if c.OID != "" {
		return c.OID
	}
	if c.Commit != nil {
		return c.Commit.OID
	}
	return ""
}

type PRFile struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// BugLink is one issue's fix/induce/impacted triple set. Number is kept as a
// string to stay compatible with existing triple files.
type BugLink struct {
	URL            string   `json:"URL"`
	Title          string   `json:"Title"`
	Number         string   `json:"Number"`
	FixingCommit   []string `json:"FixingCommit"`
	InducingCommit []string `json:"InducingCommit"`
	ImpactedFiles  []string `json:"ImpactedFiles"`
}

// ParseTimestamp parses the ISO-8601 timestamps found in batch files
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05 -0700", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
