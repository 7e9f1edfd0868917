package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
)

// PublicClient reads the unauthenticated .json endpoints. Comment tracking
// uses it so re-polling a post never burns credential quota.
type PublicClient struct {
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewPublicClient builds a tokenless client against the public site. An
// empty baseURL falls back to the production origin; a nil proxy means
// direct egress. The limiter paces every request and may be shared across
// clients; nil gets a private 1 req/s limiter.
func NewPublicClient(baseURL, userAgent string, proxy *domain.ProxyEndpoint, limiter *rate.Limiter, timeout time.Duration) (*PublicClient, error) {
	if baseURL == "" {
		baseURL = domain.SiteOrigin
	}
	if userAgent == "" {
		userAgent = "crawl-reddit/1.0"
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(1), 1)
	}
	httpClient, err := NewHTTPClient(proxy, timeout)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	return &PublicClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		limiter:    limiter,
		httpClient: httpClient,
	}, nil
}

// PostComments fetches a post and its reply tree from the public
// /comments/<id>.json endpoint.
func (c *PublicClient) PostComments(ctx context.Context, postID string) (*domain.RedditPost, []domain.RedditComment, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("await rate limiter: %w", err)
	}
	path := fmt.Sprintf("/comments/%s.json?raw_json=1&limit=500", url.PathEscape(postID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var pair []listing
	if err := json.Unmarshal(body, &pair); err != nil {
		return nil, nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return decodeCommentsResponse(pair)
}
