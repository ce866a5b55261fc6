package graph

import (
	"path"
	"strconv"
)

// NodeKind is both the in-memory kind tag and the store label
type NodeKind string

const (
	KindPerson      NodeKind = "Person"
	KindRepository  NodeKind = "Repository"
	KindCommit      NodeKind = "Commit"
	KindFile        NodeKind = "File"
	KindIssue       NodeKind = "Issue"
	KindPullRequest NodeKind = "PullRequest"
	KindRelease     NodeKind = "Release"
	KindProject     NodeKind = "Project"
	KindFork        NodeKind = "Fork"
	KindLanguage    NodeKind = "Language"
	KindBranch      NodeKind = "Branch"
)

// AllKinds lists every node kind in a stable order
var AllKinds = []NodeKind{
	KindRepository,
	KindPerson,
	KindBranch,
	KindRelease,
	KindLanguage,
	KindProject,
	KindFork,
	KindIssue,
	KindPullRequest,
	KindCommit,
	KindFile,
}

// Node is implemented by every node struct
type Node interface {
	Kind() NodeKind
	Key() string
	Properties() map[string]any
}

// NodeRef identifies a node by kind and key
type NodeRef struct {
	Kind NodeKind
	ID   string
}

func (r NodeRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

func Ref(n Node) NodeRef {
	return NodeRef{Kind: n.Kind(), ID: n.Key()}
}

type PersonNode struct {
	ID         string // identity key
	PlatformID string
	Login      string
	Name       string
	Email      string
	Role       string
	Permission string
}

func (n *PersonNode) Kind() NodeKind { return KindPerson }
func (n *PersonNode) Key() string    { return n.ID }
func (n *PersonNode) Properties() map[string]any {
	return map[string]any{
		"id":         n.ID,
		"platformId": n.PlatformID,
		"login":      n.Login,
		"name":       n.Name,
		"email":      n.Email,
		"role":       n.Role,
		"permission": n.Permission,
	}
}

type RepositoryNode struct {
	ID              string
	Name            string
	Description     string
	URL             string
	Visibility      string
	Stars           int
	ForksCount      int
	IsTemplate      bool
	PrimaryLanguage string
}

func (n *RepositoryNode) Kind() NodeKind { return KindRepository }
func (n *RepositoryNode) Key() string    { return n.ID }
func (n *RepositoryNode) Properties() map[string]any {
	return map[string]any{
		"id":              n.ID,
		"name":            n.Name,
		"description":     n.Description,
		"url":             n.URL,
		"visibility":      n.Visibility,
		"stars":           n.Stars,
		"forksCount":      n.ForksCount,
		"isTemplate":      n.IsTemplate,
		"primaryLanguage": n.PrimaryLanguage,
	}
}

type CommitNode struct {
	Hash          string
	Message       string
	CommittedDate string
	Branches      []string
}

func (n *CommitNode) Kind() NodeKind { return KindCommit }
func (n *CommitNode) Key() string    { return n.Hash }
func (n *CommitNode) Properties() map[string]any {
	branches := n.Branches
	if branches == nil {
		branches = []string{}
	}
	return map[string]any{
		"id":            n.Hash,
		"hash":          n.Hash,
		"message":       n.Message,
		"committedDate": n.CommittedDate,
		"branches":      branches,
	}
}

// FileNode is keyed by its full repository path
type FileNode struct {
	Path string
}

func (n *FileNode) Kind() NodeKind { return KindFile }
func (n *FileNode) Key() string    { return n.Path }
func (n *FileNode) Properties() map[string]any {
	return map[string]any{
		"id":   n.Path,
		"path": n.Path,
		"name": path.Base(n.Path),
	}
}

type IssueNode struct {
	Number      int
	PlatformID  string
	URL         string
	Title       string
	Body        string
	State       string
	StateReason string
	CreatedAt   string
	ClosedAt    string
	UpdatedAt   string
}

// IssueKey is the node key for an issue number
func IssueKey(number int) string {
	return strconv.Itoa(number)
}

func (n *IssueNode) Kind() NodeKind { return KindIssue }
func (n *IssueNode) Key() string    { return IssueKey(n.Number) }
func (n *IssueNode) Properties() map[string]any {
	return map[string]any{
		"id":          n.Key(),
		"number":      n.Number,
		"platformId":  n.PlatformID,
		"url":         n.URL,
		"title":       n.Title,
		"body":        n.Body,
		"state":       n.State,
		"stateReason": n.StateReason,
		"createdAt":   n.CreatedAt,
		"closedAt":    n.ClosedAt,
		"updatedAt":   n.UpdatedAt,
	}
}

type PullRequestNode struct {
	ID            string
	Number        int
	URL           string
	Title         string
	Body          string
	State         string
	ChangedFiles  int
	CommentsCount int
	CreatedAt     string
	ClosedAt      string
	UpdatedAt     string
}

func (n *PullRequestNode) Kind() NodeKind { return KindPullRequest }
func (n *PullRequestNode) Key() string    { return n.ID }
func (n *PullRequestNode) Properties() map[string]any {
	return map[string]any{
		"id":            n.ID,
		"number":        n.Number,
		"url":           n.URL,
		"title":         n.Title,
		"body":          n.Body,
		"state":         n.State,
		"changedFiles":  n.ChangedFiles,
		"commentsCount": n.CommentsCount,
		"createdAt":     n.CreatedAt,
		"closedAt":      n.ClosedAt,
		"updatedAt":     n.UpdatedAt,
	}
}

type ReleaseNode struct {
	ID          string
	Name        string
	URL         string
	Description string
	IsLatest    bool
	CreatedAt   string
}

func (n *ReleaseNode) Kind() NodeKind { return KindRelease }
func (n *ReleaseNode) Key() string    { return n.ID }
func (n *ReleaseNode) Properties() map[string]any {
	return map[string]any{
		"id":          n.ID,
		"name":        n.Name,
		"url":         n.URL,
		"description": n.Description,
		"isLatest":    n.IsLatest,
		"createdAt":   n.CreatedAt,
	}
}

type ProjectNode struct {
	ID                   string
	Name                 string
	Body                 string
	Number               int
	State                string
	DonePercentage       float64
	InProgressPercentage float64
	TodoPercentage       float64
	URL                  string
	CreatedAt            string
}

func (n *ProjectNode) Kind() NodeKind { return KindProject }
func (n *ProjectNode) Key() string    { return n.ID }
func (n *ProjectNode) Properties() map[string]any {
	return map[string]any{
		"id":                   n.ID,
		"name":                 n.Name,
		"body":                 n.Body,
		"number":               n.Number,
		"state":                n.State,
		"donePercentage":       n.DonePercentage,
		"inProgressPercentage": n.InProgressPercentage,
		"todoPercentage":       n.TodoPercentage,
		"url":                  n.URL,
		"createdAt":            n.CreatedAt,
	}
}

type ForkNode struct {
	ID   string
	Name string
	URL  string
}

func (n *ForkNode) Kind() NodeKind { return KindFork }
func (n *ForkNode) Key() string    { return n.ID }
func (n *ForkNode) Properties() map[string]any {
	return map[string]any{"id": n.ID, "name": n.Name, "url": n.URL}
}

type LanguageNode struct {
	ID    string
	Name  string
	Color string
}

func (n *LanguageNode) Kind() NodeKind { return KindLanguage }
func (n *LanguageNode) Key() string    { return n.ID }
func (n *LanguageNode) Properties() map[string]any {
	return map[string]any{"id": n.ID, "name": n.Name, "color": n.Color}
}

type BranchNode struct {
	Name string
}

func (n *BranchNode) Kind() NodeKind { return KindBranch }
func (n *BranchNode) Key() string    { return n.Name }
func (n *BranchNode) Properties() map[string]any {
	return map[string]any{"id": n.Name, "name": n.Name}
}
