package github

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/repograph/internal/errors"
	gitrepo "github.com/rohankatakam/repograph/internal/git"
)

const perPage = 100

// Options configures a Collector
type Options struct {
	Token string
	// RateLimit is the request budget per second. GitHub allows 5,000
	// requests/hour, about 1.4 per second.
	RateLimit float64
	// BaseURL overrides the API endpoint, for GitHub Enterprise and tests
	BaseURL string
	Logger  *logrus.Logger
}

// Collector reads repository entities from the GitHub REST API. Every
// request waits on a shared rate limiter.
type Collector struct {
	client  *github.Client
	limiter *rate.Limiter
	owner   string
	repo    string
	logger  *logrus.Entry
}

// NewCollector creates a collector for the repository at repoURL
func NewCollector(repoURL string, opts Options) (*Collector, error) {
	owner, repo, err := gitrepo.ParseRepoURL(repoURL)
	if err != nil {
		return nil, errors.ConfigErrorf("invalid repository url: %v", err)
	}

	client := github.NewClient(nil)
	if opts.Token != "" {
		client = client.WithAuthToken(opts.Token)
	}
	if opts.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/") + "/")
		if err != nil {
			return nil, errors.ConfigErrorf("invalid GitHub base url %q: %v", opts.BaseURL, err)
		}
		client.BaseURL = base
	}

	limit := rate.Limit(opts.RateLimit)
	if opts.RateLimit <= 0 {
		limit = rate.Inf
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Collector{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		owner:   owner,
		repo:    repo,
		logger:  logger.WithFields(logrus.Fields{"component": "github", "repo": owner + "/" + repo}),
	}, nil
}

// wait blocks until the limiter grants a request
func (c *Collector) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// paginate fetches every page of a list endpoint
func paginate[T any](ctx context.Context, c *Collector, what string, fetch func(opts github.ListOptions) ([]T, *github.Response, error)) ([]T, error) {
	var all []T
	opts := github.ListOptions{PerPage: perPage}
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		items, resp, err := fetch(opts)
		if err != nil {
			return nil, c.classify(err, what)
		}
		all = append(all, items...)
		c.logRateLimit(resp)
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// classify maps client errors onto the error taxonomy. Rate limits carry
// the time until the limit resets.
func (c *Collector) classify(err error, what string) error {
	msg := fmt.Sprintf("GitHub API error fetching %s", what)

	var rateErr *github.RateLimitError
	if stderrors.As(err, &rateErr) {
		return errors.RateLimit(err, time.Until(rateErr.Rate.Reset.Time), msg)
	}
	var abuseErr *github.AbuseRateLimitError
	if stderrors.As(err, &abuseErr) {
		return errors.RateLimit(err, abuseErr.GetRetryAfter(), msg)
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var respErr *github.ErrorResponse
	if stderrors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode >= http.StatusInternalServerError {
		return errors.CollectionError(err, true, msg)
	}
	return errors.CollectionError(err, false, msg)
}

// notAvailable reports 404 and 410 responses, which some endpoints return
// when a feature is disabled for the repository.
func notAvailable(err error) bool {
	var respErr *github.ErrorResponse
	if !stderrors.As(err, &respErr) || respErr.Response == nil {
		return false
	}
	code := respErr.Response.StatusCode
	return code == http.StatusNotFound || code == http.StatusGone
}

func (c *Collector) logRateLimit(resp *github.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}
	if resp.Rate.Remaining < 100 {
		c.logger.WithFields(logrus.Fields{
			"remaining": resp.Rate.Remaining,
			"limit":     resp.Rate.Limit,
			"reset":     resp.Rate.Reset.Time,
		}).Warn("GitHub rate limit low")
	}
}

func formatTime(ts github.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}
