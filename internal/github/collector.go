package github

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"

	"github.com/rohankatakam/repograph/internal/models"
)

// Repository returns the repository record with its branches
func (c *Collector) Repository(ctx context.Context) (models.Repository, error) {
	if err := c.wait(ctx); err != nil {
		return models.Repository{}, err
	}
	repo, resp, err := c.client.Repositories.Get(ctx, c.owner, c.repo)
	if err != nil {
		return models.Repository{}, c.classify(err, "repository")
	}
	c.logRateLimit(resp)

	branches, err := paginate(ctx, c, "branches", func(opts github.ListOptions) ([]*github.Branch, *github.Response, error) {
		return c.client.Repositories.ListBranches(ctx, c.owner, c.repo, &github.BranchListOptions{ListOptions: opts})
	})
	if err != nil {
		return models.Repository{}, err
	}

	out := models.Repository{
		ID:              repo.GetNodeID(),
		Name:            repo.GetName(),
		Description:     repo.GetDescription(),
		URL:             repo.GetHTMLURL(),
		Stars:           repo.GetStargazersCount(),
		Visibility:      strings.ToUpper(repo.GetVisibility()),
		ForksCount:      repo.GetForksCount(),
		IsTemplate:      repo.GetIsTemplate(),
		PrimaryLanguage: repo.GetLanguage(),
	}
	if owner := repo.GetOwner(); owner != nil {
		out.OwnerID = owner.GetNodeID()
		out.OwnerLogin = owner.GetLogin()
		out.OwnerName = owner.GetName()
		out.OwnerEmail = owner.GetEmail()
	}
	for _, b := range branches {
		out.Branches.Nodes = append(out.Branches.Nodes, models.BranchRef{Name: b.GetName()})
	}

	c.logger.WithField("branches", len(branches)).Debug("fetched repository")
	return out, nil
}

// Collaborators returns the repository's collaborators with their highest
// permission.
func (c *Collector) Collaborators(ctx context.Context) ([]models.Collaborator, error) {
	users, err := paginate(ctx, c, "collaborators", func(opts github.ListOptions) ([]*github.User, *github.Response, error) {
		return c.client.Repositories.ListCollaborators(ctx, c.owner, c.repo, &github.ListCollaboratorsOptions{ListOptions: opts})
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.Collaborator, 0, len(users))
	for _, u := range users {
		out = append(out, models.Collaborator{
			ID:         u.GetNodeID(),
			Login:      u.GetLogin(),
			Name:       u.GetName(),
			Email:      u.GetEmail(),
			Permission: permissionOf(u),
		})
	}
	return out, nil
}

var permissionRank = []string{"admin", "maintain", "push", "triage", "pull"}

func permissionOf(u *github.User) string {
	if role := u.GetRoleName(); role != "" {
		return strings.ToLower(role)
	}
	for _, p := range permissionRank {
		if u.Permissions[p] {
			return p
		}
	}
	return ""
}

// Releases returns releases created at or after since
func (c *Collector) Releases(ctx context.Context, since time.Time) ([]models.Release, error) {
	releases, err := paginate(ctx, c, "releases", func(opts github.ListOptions) ([]*github.RepositoryRelease, *github.Response, error) {
		return c.client.Repositories.ListReleases(ctx, c.owner, c.repo, &opts)
	})
	if err != nil {
		return nil, err
	}
	if len(releases) == 0 {
		return nil, nil
	}

	var latestID int64
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	latest, _, err := c.client.Repositories.GetLatestRelease(ctx, c.owner, c.repo)
	switch {
	case err == nil:
		latestID = latest.GetID()
	case notAvailable(err):
		// Only drafts or prereleases exist
	default:
		return nil, c.classify(err, "latest release")
	}

	var out []models.Release
	for _, r := range releases {
		if before(r.GetCreatedAt(), since) {
			continue
		}
		rel := models.Release{
			ID:          r.GetNodeID(),
			Name:        r.GetName(),
			URL:         r.GetHTMLURL(),
			Description: r.GetBody(),
			IsLatest:    latestID != 0 && r.GetID() == latestID,
			CreatedAt:   formatTime(r.GetCreatedAt()),
		}
		if a := r.GetAuthor(); a != nil {
			rel.AuthorID = a.GetNodeID()
			rel.AuthorLogin = a.GetLogin()
			rel.AuthorName = a.GetName()
			rel.AuthorEmail = a.GetEmail()
		}
		out = append(out, rel)
	}
	return out, nil
}

// Languages returns the repository's languages, keyed by name
func (c *Collector) Languages(ctx context.Context) ([]models.Language, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	langs, resp, err := c.client.Repositories.ListLanguages(ctx, c.owner, c.repo)
	if err != nil {
		return nil, c.classify(err, "languages")
	}
	c.logRateLimit(resp)

	names := make([]string, 0, len(langs))
	for name := range langs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.Language, 0, len(names))
	for _, name := range names {
		out = append(out, models.Language{ID: name, Name: name})
	}
	return out, nil
}

// Projects returns classic projects created at or after since. Repositories
// with projects disabled yield an empty list.
func (c *Collector) Projects(ctx context.Context, since time.Time) ([]models.Project, error) {
	projects, err := paginate(ctx, c, "projects", func(opts github.ListOptions) ([]*github.Project, *github.Response, error) {
		return c.client.Repositories.ListProjects(ctx, c.owner, c.repo, &github.ProjectListOptions{State: "all", ListOptions: opts})
	})
	if err != nil {
		if notAvailable(err) {
			c.logger.WithError(err).Warn("projects not available, skipping")
			return nil, nil
		}
		return nil, err
	}

	var out []models.Project
	for _, p := range projects {
		if before(p.GetCreatedAt(), since) {
			continue
		}
		proj := models.Project{
			ID:        p.GetNodeID(),
			Name:      p.GetName(),
			Body:      p.GetBody(),
			Number:    p.GetNumber(),
			State:     strings.ToUpper(p.GetState()),
			URL:       p.GetHTMLURL(),
			CreatedAt: formatTime(p.GetCreatedAt()),
		}
		if cr := p.GetCreator(); cr != nil {
			proj.CreatorID = cr.GetNodeID()
			proj.CreatorLogin = cr.GetLogin()
			proj.CreatorName = cr.GetName()
			proj.CreatorEmail = cr.GetEmail()
		}
		out = append(out, proj)
	}
	return out, nil
}

// Forks returns every fork of the repository
func (c *Collector) Forks(ctx context.Context) ([]models.Fork, error) {
	forks, err := paginate(ctx, c, "forks", func(opts github.ListOptions) ([]*github.Repository, *github.Response, error) {
		return c.client.Repositories.ListForks(ctx, c.owner, c.repo, &github.RepositoryListForksOptions{ListOptions: opts})
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.Fork, 0, len(forks))
	for _, f := range forks {
		out = append(out, models.Fork{ID: f.GetNodeID(), Name: f.GetFullName(), URL: f.GetHTMLURL()})
	}
	return out, nil
}

// Issues returns issues created at or after since. Pull requests returned by
// the issues endpoint are skipped.
func (c *Collector) Issues(ctx context.Context, since time.Time) ([]models.Issue, error) {
	issues, err := paginate(ctx, c, "issues", func(opts github.ListOptions) ([]*github.Issue, *github.Response, error) {
		return c.client.Issues.ListByRepo(ctx, c.owner, c.repo, &github.IssueListByRepoOptions{
			State:       "all",
			Since:       since,
			Sort:        "created",
			Direction:   "asc",
			ListOptions: opts,
		})
	})
	if err != nil {
		return nil, err
	}

	var out []models.Issue
	for _, is := range issues {
		if is.IsPullRequest() || before(is.GetCreatedAt(), since) {
			continue
		}
		issue := models.Issue{
			ID:          is.GetNodeID(),
			Number:      is.GetNumber(),
			URL:         is.GetHTMLURL(),
			Title:       is.GetTitle(),
			Body:        is.GetBody(),
			State:       strings.ToUpper(is.GetState()),
			StateReason: strings.ToUpper(is.GetStateReason()),
			CreatedAt:   formatTime(is.GetCreatedAt()),
			ClosedAt:    formatTime(is.GetClosedAt()),
			UpdatedAt:   formatTime(is.GetUpdatedAt()),
			Assignees:   actors(is.Assignees),
		}
		if u := is.GetUser(); u != nil {
			issue.AuthorID = u.GetNodeID()
			issue.AuthorLogin = u.GetLogin()
			issue.AuthorName = u.GetName()
			issue.AuthorEmail = u.GetEmail()
		}
		if is.GetComments() > 0 {
			participants, err := c.issueParticipants(ctx, is.GetNumber())
			if err != nil {
				return nil, err
			}
			issue.Participants = participants
		}
		out = append(out, issue)
	}

	c.logger.WithField("count", len(out)).Debug("fetched issues")
	return out, nil
}

func (c *Collector) issueParticipants(ctx context.Context, number int) ([]models.Actor, error) {
	comments, err := paginate(ctx, c, "issue comments #"+strconv.Itoa(number), func(opts github.ListOptions) ([]*github.IssueComment, *github.Response, error) {
		return c.client.Issues.ListComments(ctx, c.owner, c.repo, number, &github.IssueListCommentsOptions{ListOptions: opts})
	})
	if err != nil {
		return nil, err
	}
	users := make([]*github.User, 0, len(comments))
	for _, cm := range comments {
		users = append(users, cm.GetUser())
	}
	return actors(users), nil
}

// PullRequests returns pull requests created at or after since, with their
// commits, files and reviewers.
func (c *Collector) PullRequests(ctx context.Context, since time.Time) ([]models.PullRequest, error) {
	var prs []*github.PullRequest
	opts := &github.PullRequestListOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	// Newest first, so paging stops at the first PR older than since
	done := false
	for !done {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		page, resp, err := c.client.PullRequests.List(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, c.classify(err, "pull requests")
		}
		c.logRateLimit(resp)
		for _, pr := range page {
			if before(pr.GetCreatedAt(), since) {
				done = true
				break
			}
			prs = append(prs, pr)
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	out := make([]models.PullRequest, 0, len(prs))
	for i := len(prs) - 1; i >= 0; i-- {
		pr, err := c.pullRequest(ctx, prs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}

	c.logger.WithField("count", len(out)).Debug("fetched pull requests")
	return out, nil
}

func (c *Collector) pullRequest(ctx context.Context, pr *github.PullRequest) (models.PullRequest, error) {
	number := pr.GetNumber()
	label := "pull request #" + strconv.Itoa(number)

	commits, err := paginate(ctx, c, label+" commits", func(opts github.ListOptions) ([]*github.RepositoryCommit, *github.Response, error) {
		return c.client.PullRequests.ListCommits(ctx, c.owner, c.repo, number, &opts)
	})
	if err != nil {
		return models.PullRequest{}, err
	}
	files, err := paginate(ctx, c, label+" files", func(opts github.ListOptions) ([]*github.CommitFile, *github.Response, error) {
		return c.client.PullRequests.ListFiles(ctx, c.owner, c.repo, number, &opts)
	})
	if err != nil {
		return models.PullRequest{}, err
	}
	reviews, err := paginate(ctx, c, label+" reviews", func(opts github.ListOptions) ([]*github.PullRequestReview, *github.Response, error) {
		return c.client.PullRequests.ListReviews(ctx, c.owner, c.repo, number, &opts)
	})
	if err != nil {
		return models.PullRequest{}, err
	}

	state := strings.ToUpper(pr.GetState())
	if pr.MergedAt != nil {
		state = "MERGED"
	}

	out := models.PullRequest{
		ID:            pr.GetNodeID(),
		Number:        number,
		URL:           pr.GetHTMLURL(),
		Title:         pr.GetTitle(),
		Body:          pr.GetBody(),
		State:         state,
		ChangedFiles:  len(files),
		CommentsCount: pr.GetComments(),
		CreatedAt:     formatTime(pr.GetCreatedAt()),
		ClosedAt:      formatTime(pr.GetClosedAt()),
		UpdatedAt:     formatTime(pr.GetUpdatedAt()),
		Assignees:     actors(pr.Assignees),
	}
	if u := pr.GetUser(); u != nil {
		out.AuthorID = u.GetNodeID()
		out.AuthorLogin = u.GetLogin()
		out.AuthorName = u.GetName()
		out.AuthorEmail = u.GetEmail()
	}
	for _, cm := range commits {
		out.Commits = append(out.Commits, models.CommitRef{OID: cm.GetSHA()})
	}
	for _, f := range files {
		out.Files = append(out.Files, models.PRFile{Path: f.GetFilename(), Additions: f.GetAdditions(), Deletions: f.GetDeletions()})
	}

	reviewers := append([]*github.User{}, pr.RequestedReviewers...)
	for _, r := range reviews {
		reviewers = append(reviewers, r.GetUser())
	}
	out.Reviewers = actors(reviewers)
	out.Participants = actors(reviewers)
	return out, nil
}

// actors converts users to actor refs, dropping nil and duplicate users
func actors(users []*github.User) []models.Actor {
	var out []models.Actor
	seen := make(map[string]bool)
	for _, u := range users {
		if u == nil || u.GetLogin() == "" || seen[u.GetLogin()] {
			continue
		}
		seen[u.GetLogin()] = true
		out = append(out, models.Actor{ID: u.GetNodeID(), Login: u.GetLogin(), Name: u.GetName(), Email: u.GetEmail()})
	}
	return out
}

func before(ts github.Timestamp, since time.Time) bool {
	return !since.IsZero() && ts.Time.Before(since)
}
