package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"nexus/pkg/circuitbreaker"
	"nexus/pkg/metrics"
	"nexus/pkg/util"
)

const apiVersion = "2022-11-28"

// RepoCommit is the subset of the commits API we use.
type RepoCommit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Author *struct {
		Login string `json:"login"`
	} `json:"author"`
}

// PullRequest is the subset of the pulls API (and webhook payload) we use.
type PullRequest struct {
	Number   int        `json:"number"`
	Title    string     `json:"title"`
	State    string     `json:"state"`
	HTMLURL  string     `json:"html_url"`
	Merged   bool       `json:"merged"`
	MergedAt *time.Time `json:"merged_at"`
	User     struct {
		Login string `json:"login"`
	} `json:"user"`
	Head struct {
		Ref string `json:"ref"`
	} `json:"head"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Repository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Private       bool   `json:"private"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// TokenSource yields installation tokens and drops rejected ones.
type TokenSource interface {
	Token(ctx context.Context, installationID int64) (string, error)
	Invalidate(ctx context.Context, installationID int64)
}

// Client calls the GitHub REST API as an App installation. Calls go through
// a circuit breaker and are retried with exponential back-off on transient
// failures; a 401 refreshes the installation token once.
type Client struct {
	baseURL     string
	tokens      TokenSource
	httpClient  *http.Client
	breaker     *circuitbreaker.CircuitBreaker
	logger      *zap.Logger
	maxAttempts int
	backoff     time.Duration
}

func NewClient(baseURL string, tokens TokenSource, logger *zap.Logger) *Client {
	cfg := circuitbreaker.DefaultConfig()
	cfg.IsSuccessful = func(err error) bool {
		retryable, _ := util.IsRetryableError(err)
		return err == nil || !retryable
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		breaker:     circuitbreaker.New("github", cfg, logger),
		logger:      logger,
		maxAttempts: 3,
		backoff:     500 * time.Millisecond,
	}
}

// WithBackoff sets the first retry delay.
func (c *Client) WithBackoff(d time.Duration) *Client {
	c.backoff = d
	return c
}

func (c *Client) ListCommits(ctx context.Context, installationID int64, owner, repo string, limit int) ([]RepoCommit, error) {
	var out []RepoCommit
	path := fmt.Sprintf("/repos/%s/%s/commits?per_page=%d", url.PathEscape(owner), url.PathEscape(repo), perPage(limit))
	if err := c.get(ctx, installationID, "list_commits", path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListPullRequests(ctx context.Context, installationID int64, owner, repo string, limit int) ([]PullRequest, error) {
	var out []PullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls?state=all&sort=updated&direction=desc&per_page=%d",
		url.PathEscape(owner), url.PathEscape(repo), perPage(limit))
	if err := c.get(ctx, installationID, "list_pulls", path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetRepository(ctx context.Context, installationID int64, owner, repo string) (*Repository, error) {
	var out Repository
	path := fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo))
	if err := c.get(ctx, installationID, "get_repo", path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListInstallationRepositories(ctx context.Context, installationID int64) ([]Repository, error) {
	var out struct {
		TotalCount   int          `json:"total_count"`
		Repositories []Repository `json:"repositories"`
	}
	if err := c.get(ctx, installationID, "installation_repos", "/installation/repositories?per_page=100", &out); err != nil {
		return nil, err
	}
	return out.Repositories, nil
}

func (c *Client) get(ctx context.Context, installationID int64, endpoint, path string, out any) error {
	refreshed := false
	delay := c.backoff

	for attempt := 1; ; attempt++ {
		token, err := c.tokens.Token(ctx, installationID)
		if err != nil {
			return err
		}

		err = c.breaker.Execute(func() error {
			return c.send(ctx, endpoint, path, token, out)
		})
		if err == nil {
			return nil
		}

		var statusErr *util.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized && !refreshed {
			c.logger.Info("GitHub rejected installation token, refreshing",
				zap.Int64("installation_id", installationID),
				zap.String("endpoint", endpoint),
			)
			c.tokens.Invalidate(ctx, installationID)
			refreshed = true
			attempt--
			continue
		}

		retryable, kind := util.IsRetryableError(err)
		if !retryable || attempt >= c.maxAttempts {
			return fmt.Errorf("github %s: %w", endpoint, err)
		}

		c.logger.Warn("GitHub call failed, retrying",
			zap.String("endpoint", endpoint),
			zap.String("error_type", kind),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (c *Client) send(ctx context.Context, endpoint, path, token string, out any) error {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.RecordGitHubAPIDuration(endpoint, status, time.Since(start))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &util.StatusError{Service: "github", StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

func perPage(limit int) int {
	if limit <= 0 || limit > 100 {
		return 30
	}
	return limit
}
