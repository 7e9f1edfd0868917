// Package pullpush implements a client for the PullPush historical Reddit
// search API. It backfills subreddits further than the live listing's
// 1000-item horizon. The endpoint is a free public mirror, so requests are
// paced with a local rate limiter and retried a few times on failure.
package pullpush

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
)

const (
	defaultBaseURL = "https://api.pullpush.io"
	maxPageSize    = 100
	maxAttempts    = 3
)

// Client queries the PullPush search endpoints with client-side pacing.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New builds a client. rps caps outbound request rate; zero or negative
// falls back to one request per second.
func New(baseURL, userAgent string, rps float64, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if userAgent == "" {
		userAgent = "crawl-reddit/1.0"
	}
	if rps <= 0 {
		rps = 1.0
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// SearchPosts returns one page of historical submissions for a subreddit,
// newest first, strictly older than `until` when it is non-zero. Page size
// is clamped to the endpoint maximum of 100.
func (c *Client) SearchPosts(ctx context.Context, subreddit string, until time.Time, size int) ([]domain.RedditPost, error) {
	if size < 1 || size > maxPageSize {
		size = maxPageSize
	}
	q := url.Values{}
	q.Set("subreddit", subreddit)
	q.Set("size", strconv.Itoa(size))
	q.Set("sort", "desc")
	if !until.IsZero() {
		q.Set("until", strconv.FormatInt(until.Unix(), 10))
	}

	var resp struct {
		Data []domain.RedditPost `json:"data"`
	}
	if err := c.get(ctx, "/reddit/search/submission/?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// SearchComments returns one page of historical comments for a subreddit,
// newest first, strictly older than `until` when it is non-zero.
func (c *Client) SearchComments(ctx context.Context, subreddit string, until time.Time, size int) ([]domain.RedditComment, error) {
	if size < 1 || size > maxPageSize {
		size = maxPageSize
	}
	q := url.Values{}
	q.Set("subreddit", subreddit)
	q.Set("size", strconv.Itoa(size))
	q.Set("sort", "desc")
	if !until.IsZero() {
		q.Set("until", strconv.FormatInt(until.Unix(), 10))
	}

	var resp struct {
		Data []domain.RedditComment `json:"data"`
	}
	if err := c.get(ctx, "/reddit/search/comment/?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// get issues one paced, retried request. Each attempt waits on the limiter
// first so retries cannot stampede the mirror.
func (c *Client) get(ctx context.Context, path string, result any) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := c.doOnce(ctx, path, result); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("pullpush request failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pullpush error (status %d): %s", resp.StatusCode, string(body))
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
