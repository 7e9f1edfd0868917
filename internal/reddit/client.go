// Package reddit implements a minimal Reddit API client scoped to the needs
// of the crawler: authenticated subreddit listings via OAuth password grant,
// plus the public JSON comment endpoint that needs no token. Clients are
// built per (credential, proxy) binding and are not rotated internally; that
// is the rotating executor's job.
package reddit

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

	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
)

const (
	defaultAuthBase = "https://www.reddit.com"
	defaultAPIBase  = "https://oauth.reddit.com"
)

// Sort orders accepted by subreddit listings.
const (
	SortNew    = "new"
	SortHot    = "hot"
	SortTop    = "top"
	SortRising = "rising"
)

// Client is an authenticated Reddit API client bound to one credential and
// (optionally) one proxy for its whole lifetime.
type Client struct {
	authBase   string
	apiBase    string
	userAgent  string
	cred       domain.RedditCredential
	httpClient *http.Client

	// populated after authenticate
	accessToken string
	tokenExpiry time.Time
}

// NewClient builds a client for one credential/proxy binding. A nil proxy
// means direct egress.
func NewClient(cred domain.RedditCredential, proxy *domain.ProxyEndpoint, timeout time.Duration) (*Client, error) {
	httpClient, err := NewHTTPClient(proxy, timeout)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	ua := cred.UserAgent
	if ua == "" {
		ua = "crawl-reddit/1.0"
	}
	return &Client{
		authBase:   defaultAuthBase,
		apiBase:    defaultAPIBase,
		userAgent:  ua,
		cred:       cred,
		httpClient: httpClient,
	}, nil
}

// SetBaseURLs overrides the token and API origins. Empty strings keep the
// current values.
func (c *Client) SetBaseURLs(authBase, apiBase string) {
	if authBase != "" {
		c.authBase = strings.TrimRight(authBase, "/")
	}
	if apiBase != "" {
		c.apiBase = strings.TrimRight(apiBase, "/")
	}
}

// Listing fetches one page of a subreddit listing. Sort must be one of the
// Sort* constants; timeframe applies only to SortTop ("hour".."all", empty
// for the API default). Limit is clamped to the API maximum of 100.
func (c *Client) Listing(ctx context.Context, subreddit, sort string, limit int, timeframe string) ([]domain.RedditPost, error) {
	if limit < 1 || limit > 100 {
		limit = 100
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("raw_json", "1")
	if sort == SortTop && timeframe != "" {
		q.Set("t", timeframe)
	}

	path := fmt.Sprintf("/r/%s/%s?%s", url.PathEscape(subreddit), sort, q.Encode())
	var page listing
	if err := c.get(ctx, path, &page); err != nil {
		return nil, err
	}

	posts := make([]domain.RedditPost, 0, len(page.Data.Children))
	for _, child := range page.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		var post domain.RedditPost
		if err := json.Unmarshal(child.Data, &post); err != nil {
			return nil, fmt.Errorf("decode post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// SubmissionComments fetches a post and its full reply tree through the
// authenticated comments endpoint.
func (c *Client) SubmissionComments(ctx context.Context, postID string) (*domain.RedditPost, []domain.RedditComment, error) {
	path := fmt.Sprintf("/comments/%s?raw_json=1&limit=500", url.PathEscape(postID))
	var pair []listing
	if err := c.get(ctx, path, &pair); err != nil {
		return nil, nil, err
	}
	return decodeCommentsResponse(pair)
}

// Me validates the bound credential by fetching the authenticated identity.
func (c *Client) Me(ctx context.Context) (string, error) {
	var resp struct {
		Name string `json:"name"`
	}
	if err := c.get(ctx, "/api/v1/me", &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

// authenticate performs the OAuth password grant and caches the token until
// shortly before expiry.
func (c *Client) authenticate(ctx context.Context) error {
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.cred.Username)
	form.Set("password", c.cred.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.authBase+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(c.cred.ClientID, c.cred.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	// Reddit reports credential problems with a 200 and an error field.
	if token.AccessToken == "" {
		return &APIError{StatusCode: http.StatusUnauthorized, Body: "Unauthorized: " + token.Error}
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	return nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	if err := c.authenticate(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
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
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
