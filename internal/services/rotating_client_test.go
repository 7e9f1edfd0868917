package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/config"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/reddit"
)

// ----- Fake pools -----

type fakeCredentials struct {
	creds     []domain.RedditCredential
	nextErr   error
	successes []string
	failures  []string
	kinds     []FailureKind
	calls     int
}

func (f *fakeCredentials) Next(ctx context.Context) (*domain.RedditCredential, error) {
	if f.nextErr != nil {
		return nil, f.nextErr
	}
	cred := f.creds[f.calls%len(f.creds)]
	f.calls++
	return &cred, nil
}

func (f *fakeCredentials) RecordSuccess(ctx context.Context, username string) error {
	f.successes = append(f.successes, username)
	return nil
}

func (f *fakeCredentials) RecordFailure(ctx context.Context, username string, kind FailureKind) error {
	f.failures = append(f.failures, username)
	f.kinds = append(f.kinds, kind)
	return nil
}

type fakeProxies struct {
	proxies   []domain.ProxyEndpoint
	successes []uint
	failures  []uint
	kinds     []FailureKind
	calls     int
}

func (f *fakeProxies) Next(ctx context.Context) (*domain.ProxyEndpoint, error) {
	if len(f.proxies) == 0 {
		return nil, nil
	}
	proxy := f.proxies[f.calls%len(f.proxies)]
	f.calls++
	return &proxy, nil
}

func (f *fakeProxies) RecordSuccess(ctx context.Context, id uint) error {
	f.successes = append(f.successes, id)
	return nil
}

func (f *fakeProxies) RecordFailure(ctx context.Context, id uint, kind FailureKind) error {
	f.failures = append(f.failures, id)
	f.kinds = append(f.kinds, kind)
	return nil
}

// ----- Fake API -----

type fakeAPI struct {
	listErr  error
	posts    []domain.RedditPost
	listHits *int
}

func (f *fakeAPI) Listing(ctx context.Context, subreddit, sort string, limit int, timeframe string) ([]domain.RedditPost, error) {
	if f.listHits != nil {
		*f.listHits++
	}
	return f.posts, f.listErr
}

func (f *fakeAPI) SubmissionComments(ctx context.Context, postID string) (*domain.RedditPost, []domain.RedditComment, error) {
	return nil, nil, f.listErr
}

func newTestRotatingClient(creds *fakeCredentials, proxies *fakeProxies, api *fakeAPI) *RotatingClient {
	rc := &RotatingClient{
		Credentials: creds,
		Factory: func(cred domain.RedditCredential, proxy *domain.ProxyEndpoint) (RedditAPI, error) {
			return api, nil
		},
		MaxRetries: 3,
		Backoff:    2 * time.Second,
		sleep:      func(ctx context.Context, d time.Duration) error { return nil },
	}
	if proxies != nil {
		rc.Proxies = proxies
	}
	return rc
}

// ----- Tests -----

func TestRotatingClient_SuccessSettlesBothPools(t *testing.T) {
	creds := &fakeCredentials{creds: []domain.RedditCredential{{Username: "u1"}}}
	proxies := &fakeProxies{proxies: []domain.ProxyEndpoint{{ID: 7, Host: "p", Port: 80}}}
	api := &fakeAPI{posts: []domain.RedditPost{{ID: "p1"}}}

	rc := newTestRotatingClient(creds, proxies, api)
	posts, err := rc.Listing(context.Background(), "golang", "new", 25, "")
	if err != nil {
		t.Fatalf("Listing: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(posts))
	}
	if len(creds.successes) != 1 || creds.successes[0] != "u1" {
		t.Fatalf("credential success not recorded: %v", creds.successes)
	}
	if len(proxies.successes) != 1 || proxies.successes[0] != 7 {
		t.Fatalf("proxy success not recorded: %v", proxies.successes)
	}
	if len(creds.failures) != 0 || len(proxies.failures) != 0 {
		t.Fatal("no failures should be recorded on success")
	}
}

func TestRotatingClient_ExhaustsAttemptsAndPenalizesEachBinding(t *testing.T) {
	creds := &fakeCredentials{creds: []domain.RedditCredential{{Username: "u1"}, {Username: "u2"}}}
	proxies := &fakeProxies{proxies: []domain.ProxyEndpoint{{ID: 1}, {ID: 2}}}
	hits := 0
	api := &fakeAPI{listErr: &reddit.APIError{StatusCode: 429}, listHits: &hits}

	rc := newTestRotatingClient(creds, proxies, api)
	_, err := rc.Listing(context.Background(), "golang", "new", 25, "")
	if err == nil {
		t.Fatal("expected error after exhausted attempts")
	}
	var apiErr *reddit.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("final error must wrap the last attempt's failure, got %v", err)
	}

	// MaxRetries=3 means 4 attempts total, each on a fresh binding.
	if hits != 4 {
		t.Fatalf("attempts = %d, want 4", hits)
	}
	if len(creds.failures) != 4 || len(proxies.failures) != 4 {
		t.Fatalf("every attempt must penalize its binding: creds=%d proxies=%d",
			len(creds.failures), len(proxies.failures))
	}
	for _, kind := range creds.kinds {
		if kind != FailureRateLimit {
			t.Fatalf("failure kind = %v, want rate_limit", kind)
		}
	}
	// Rotation alternates across pool entries.
	if creds.failures[0] != "u1" || creds.failures[1] != "u2" {
		t.Fatalf("rotation broken: %v", creds.failures)
	}
}

func TestRotatingClient_LinearBackoffBetweenAttempts(t *testing.T) {
	creds := &fakeCredentials{creds: []domain.RedditCredential{{Username: "u1"}}}
	api := &fakeAPI{listErr: errors.New("boom")}

	var slept []time.Duration
	rc := newTestRotatingClient(creds, nil, api)
	rc.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	if _, err := rc.Listing(context.Background(), "golang", "new", 25, ""); err == nil {
		t.Fatal("expected failure")
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("slept %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Fatalf("slept %v, want %v", slept, want)
		}
	}
}

func TestRotatingClient_EmptyCredentialPoolIsHardStop(t *testing.T) {
	creds := &fakeCredentials{nextErr: ErrNoAvailableCredentials}
	hits := 0
	api := &fakeAPI{listHits: &hits}

	var slept []time.Duration
	rc := newTestRotatingClient(creds, nil, api)
	rc.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := rc.Listing(context.Background(), "golang", "new", 25, "")
	if !errors.Is(err, ErrNoAvailableCredentials) {
		t.Fatalf("expected ErrNoAvailableCredentials, got %v", err)
	}
	if hits != 0 {
		t.Fatalf("no API call should be made, got %d", hits)
	}
	if len(slept) != 0 {
		t.Fatalf("a drained pool must not be retried, slept %v", slept)
	}
}

func TestRotatingClient_RecoversOnLaterAttempt(t *testing.T) {
	creds := &fakeCredentials{creds: []domain.RedditCredential{{Username: "u1"}, {Username: "u2"}}}

	attempt := 0
	rc := &RotatingClient{
		Credentials: creds,
		Factory: func(cred domain.RedditCredential, proxy *domain.ProxyEndpoint) (RedditAPI, error) {
			return &fakeAPI{listErr: func() error {
				attempt++
				if attempt == 1 {
					return &reddit.APIError{StatusCode: 429}
				}
				return nil
			}()}, nil
		},
		MaxRetries: 3,
		Backoff:    time.Second,
		sleep:      func(ctx context.Context, d time.Duration) error { return nil },
	}

	if _, err := rc.Listing(context.Background(), "golang", "new", 25, ""); err != nil {
		t.Fatalf("expected recovery on second attempt, got %v", err)
	}
	if len(creds.failures) != 1 || creds.failures[0] != "u1" {
		t.Fatalf("first binding must be penalized: %v", creds.failures)
	}
	if len(creds.successes) != 1 || creds.successes[0] != "u2" {
		t.Fatalf("second binding must be credited: %v", creds.successes)
	}
}

// ----- Fake public fetcher -----

type fakePublic struct {
	failFirst int // attempts that fail with a 429 before one succeeds
	calls     int
	post      *domain.RedditPost
	comments  []domain.RedditComment
}

func (f *fakePublic) PostComments(ctx context.Context, postID string) (*domain.RedditPost, []domain.RedditComment, error) {
	f.calls++
	if f.calls <= f.failFirst {
		return nil, nil, &reddit.APIError{StatusCode: 429}
	}
	return f.post, f.comments, nil
}

func TestRotatingClient_PublicCommentsRetriesAndSettlesProxy(t *testing.T) {
	proxies := &fakeProxies{proxies: []domain.ProxyEndpoint{{ID: 3, Host: "p", Port: 80}}}
	fetcher := &fakePublic{failFirst: 1, post: &domain.RedditPost{ID: "p1"}}

	// Credentials stays nil: the public path must never consult the
	// credential pool.
	rc := &RotatingClient{
		Proxies:    proxies,
		Public:     func(proxy *domain.ProxyEndpoint) (CommentFetcher, error) { return fetcher, nil },
		MaxRetries: 3,
		Backoff:    time.Second,
		sleep:      func(ctx context.Context, d time.Duration) error { return nil },
	}

	post, _, err := rc.PostComments(context.Background(), "p1")
	if err != nil {
		t.Fatalf("expected recovery on second attempt, got %v", err)
	}
	if post == nil || post.ID != "p1" {
		t.Fatalf("post = %+v, want p1", post)
	}
	if fetcher.calls != 2 {
		t.Fatalf("attempts = %d, want 2", fetcher.calls)
	}
	if len(proxies.failures) != 1 || proxies.failures[0] != 3 {
		t.Fatalf("first binding must be penalized: %v", proxies.failures)
	}
	if proxies.kinds[0] != FailureRateLimit {
		t.Fatalf("failure kind = %v, want rate_limit", proxies.kinds[0])
	}
	if len(proxies.successes) != 1 || proxies.successes[0] != 3 {
		t.Fatalf("second binding must be credited: %v", proxies.successes)
	}
}

func TestRotatingClient_PublicCommentsExhaustsAttempts(t *testing.T) {
	proxies := &fakeProxies{proxies: []domain.ProxyEndpoint{{ID: 1}, {ID: 2}}}
	fetcher := &fakePublic{failFirst: 100}

	rc := &RotatingClient{
		Proxies:    proxies,
		Public:     func(proxy *domain.ProxyEndpoint) (CommentFetcher, error) { return fetcher, nil },
		MaxRetries: 3,
		Backoff:    time.Second,
		sleep:      func(ctx context.Context, d time.Duration) error { return nil },
	}

	_, _, err := rc.PostComments(context.Background(), "p1")
	if err == nil {
		t.Fatal("expected error after exhausted attempts")
	}
	var apiErr *reddit.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("final error must wrap the last attempt's failure, got %v", err)
	}
	if fetcher.calls != 4 {
		t.Fatalf("attempts = %d, want 4", fetcher.calls)
	}
	if len(proxies.failures) != 4 {
		t.Fatalf("every attempt must penalize its binding: %d", len(proxies.failures))
	}
	// Rotation alternates across pool entries.
	if proxies.failures[0] != 1 || proxies.failures[1] != 2 {
		t.Fatalf("rotation broken: %v", proxies.failures)
	}
}

const publicCommentsPayload = `[
	{"kind": "Listing", "data": {"children": [
		{"kind": "t3", "data": {"id": "p1", "title": "Post", "author": "op",
			"permalink": "/r/golang/comments/p1/post/", "created_utc": 1700000000,
			"subreddit": "golang"}}
	]}},
	{"kind": "Listing", "data": {"children": [
		{"kind": "t1", "data": {"id": "c1", "author": "alice", "body": "root",
			"permalink": "/r/golang/comments/p1/post/c1/", "created_utc": 1700000100,
			"subreddit": "golang", "parent_id": "t3_p1", "replies": ""}}
	]}}
]`

func TestNewRotatingClient_PublicPathUsesConfiguredOrigin(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(publicCommentsPayload))
	}))
	t.Cleanup(srv.Close)

	cfg := config.Config{
		RedditBaseURL:  srv.URL,
		PublicRPS:      100,
		RequestTimeout: 5 * time.Second,
	}
	rc := NewRotatingClient(nil, nil, cfg)

	post, comments, err := rc.PostComments(context.Background(), "p1")
	if err != nil {
		t.Fatalf("PostComments: %v", err)
	}
	if gotPath != "/comments/p1.json" {
		t.Fatalf("path = %q, want /comments/p1.json", gotPath)
	}
	if post.ID != "p1" || len(comments) != 1 {
		t.Fatalf("unexpected decode: post=%+v comments=%d", post, len(comments))
	}
}

func TestRotatingClient_NilProxyPoolMeansDirect(t *testing.T) {
	creds := &fakeCredentials{creds: []domain.RedditCredential{{Username: "u1"}}}
	api := &fakeAPI{}

	var sawProxy *domain.ProxyEndpoint
	rc := newTestRotatingClient(creds, nil, api)
	rc.Factory = func(cred domain.RedditCredential, proxy *domain.ProxyEndpoint) (RedditAPI, error) {
		sawProxy = proxy
		return api, nil
	}

	if _, err := rc.Listing(context.Background(), "golang", "new", 25, ""); err != nil {
		t.Fatalf("Listing: %v", err)
	}
	if sawProxy != nil {
		t.Fatalf("expected direct binding, got proxy %+v", sawProxy)
	}
}
