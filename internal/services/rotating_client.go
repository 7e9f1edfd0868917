package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/config"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/reddit"
)

// CredentialProvider is the credential pool contract the rotating client
// needs: hand out one credential and account for the outcome.
type CredentialProvider interface {
	Next(ctx context.Context) (*domain.RedditCredential, error)
	RecordSuccess(ctx context.Context, username string) error
	RecordFailure(ctx context.Context, username string, kind FailureKind) error
}

// ProxyProvider is the proxy pool contract. Next may return (nil, nil) for
// direct egress.
type ProxyProvider interface {
	Next(ctx context.Context) (*domain.ProxyEndpoint, error)
	RecordSuccess(ctx context.Context, id uint) error
	RecordFailure(ctx context.Context, id uint, kind FailureKind) error
}

// RedditAPI is the slice of the Reddit client the crawler operations use.
type RedditAPI interface {
	Listing(ctx context.Context, subreddit, sort string, limit int, timeframe string) ([]domain.RedditPost, error)
	SubmissionComments(ctx context.Context, postID string) (*domain.RedditPost, []domain.RedditComment, error)
}

// APIFactory builds an API client for one (credential, proxy) binding.
type APIFactory func(cred domain.RedditCredential, proxy *domain.ProxyEndpoint) (RedditAPI, error)

// PublicFactory builds a tokenless comments reader for one proxy binding.
type PublicFactory func(proxy *domain.ProxyEndpoint) (CommentFetcher, error)

// RotatingClient executes Reddit API operations with automatic resource
// rotation. Every attempt binds a fresh (credential, proxy) pair, runs the
// operation, and settles the outcome against both pools. Failed attempts
// retry with linear backoff and a different binding; an exhausted credential
// pool stops the loop immediately.
type RotatingClient struct {
	Credentials CredentialProvider
	Proxies     ProxyProvider // nil disables proxying entirely
	Factory     APIFactory
	Public      PublicFactory

	// MaxRetries bounds retries after the first attempt.
	MaxRetries int
	// Backoff is the linear base: attempt n sleeps n*Backoff before running.
	Backoff time.Duration

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRotatingClient wires a rotating client from configuration. The default
// factories build real API clients with the configured request timeout and
// site origin. All public-endpoint bindings share one pacing limiter so
// rebinding never raises the request rate.
func NewRotatingClient(creds CredentialProvider, proxies ProxyProvider, cfg config.Config) *RotatingClient {
	timeout := cfg.RequestTimeout
	baseURL := cfg.RedditBaseURL
	publicLimiter := rate.NewLimiter(rate.Limit(cfg.PublicRPS), 1)
	return &RotatingClient{
		Credentials: creds,
		Proxies:     proxies,
		Factory: func(cred domain.RedditCredential, proxy *domain.ProxyEndpoint) (RedditAPI, error) {
			c, err := reddit.NewClient(cred, proxy, timeout)
			if err != nil {
				return nil, err
			}
			c.SetBaseURLs(baseURL, "")
			return c, nil
		},
		Public: func(proxy *domain.ProxyEndpoint) (CommentFetcher, error) {
			return reddit.NewPublicClient(baseURL, "", proxy, publicLimiter, timeout)
		},
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.RetryBackoff,
	}
}

// Listing fetches one page of a subreddit listing through the rotation.
func (rc *RotatingClient) Listing(ctx context.Context, subreddit, sort string, limit int, timeframe string) ([]domain.RedditPost, error) {
	var posts []domain.RedditPost
	err := rc.execute(ctx, func(ctx context.Context, api RedditAPI) error {
		var err error
		posts, err = api.Listing(ctx, subreddit, sort, limit, timeframe)
		return err
	})
	return posts, err
}

// SubmissionComments fetches a post with its reply tree through the rotation.
func (rc *RotatingClient) SubmissionComments(ctx context.Context, postID string) (*domain.RedditPost, []domain.RedditComment, error) {
	var (
		post     *domain.RedditPost
		comments []domain.RedditComment
	)
	err := rc.execute(ctx, func(ctx context.Context, api RedditAPI) error {
		var err error
		post, comments, err = api.SubmissionComments(ctx, postID)
		return err
	})
	return post, comments, err
}

// PostComments fetches a post with its reply tree from the tokenless
// comments endpoint through the rotation. Only the proxy pool is engaged;
// re-polls spend no credential quota.
func (rc *RotatingClient) PostComments(ctx context.Context, postID string) (*domain.RedditPost, []domain.RedditComment, error) {
	var (
		post     *domain.RedditPost
		comments []domain.RedditComment
	)
	err := rc.executePublic(ctx, func(ctx context.Context, api CommentFetcher) error {
		var err error
		post, comments, err = api.PostComments(ctx, postID)
		return err
	})
	return post, comments, err
}

// execute runs one operation with rotation and retries. Attempt n (n>0)
// first sleeps n*Backoff. ErrNoAvailableCredentials aborts without retrying:
// backing off cannot refill the pool within the retry horizon.
func (rc *RotatingClient) execute(ctx context.Context, op func(ctx context.Context, api RedditAPI) error) error {
	attempts := rc.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := rc.wait(ctx, time.Duration(attempt)*rc.Backoff); err != nil {
				return err
			}
		}

		cred, err := rc.Credentials.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrNoAvailableCredentials) {
				return err
			}
			lastErr = err
			continue
		}

		var proxy *domain.ProxyEndpoint
		if rc.Proxies != nil {
			proxy, err = rc.Proxies.Next(ctx)
			if err != nil {
				lastErr = err
				continue
			}
		}

		api, err := rc.Factory(*cred, proxy)
		if err != nil {
			lastErr = err
			continue
		}

		if err := op(ctx, api); err != nil {
			kind := Classify(err)
			rc.settleFailure(ctx, cred, proxy, kind)
			log.Warn().
				Err(err).
				Str("kind", kind.String()).
				Str("username", cred.Username).
				Int("attempt", attempt+1).
				Msg("request attempt failed")
			lastErr = err
			continue
		}

		rc.settleSuccess(ctx, cred, proxy)
		return nil
	}
	return fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

// executePublic mirrors execute for tokenless operations: same retry and
// backoff schedule, same failure classification, but each attempt binds a
// proxy only and settles the outcome against the proxy pool alone.
func (rc *RotatingClient) executePublic(ctx context.Context, op func(ctx context.Context, api CommentFetcher) error) error {
	attempts := rc.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := rc.wait(ctx, time.Duration(attempt)*rc.Backoff); err != nil {
				return err
			}
		}

		var proxy *domain.ProxyEndpoint
		if rc.Proxies != nil {
			var err error
			proxy, err = rc.Proxies.Next(ctx)
			if err != nil {
				lastErr = err
				continue
			}
		}

		api, err := rc.Public(proxy)
		if err != nil {
			lastErr = err
			continue
		}

		if err := op(ctx, api); err != nil {
			kind := Classify(err)
			if proxy != nil && rc.Proxies != nil {
				if rfErr := rc.Proxies.RecordFailure(ctx, proxy.ID, kind); rfErr != nil {
					log.Error().Err(rfErr).Str("proxy", proxy.Addr()).Msg("record proxy failure")
				}
			}
			log.Warn().
				Err(err).
				Str("kind", kind.String()).
				Int("attempt", attempt+1).
				Msg("public request attempt failed")
			lastErr = err
			continue
		}

		if proxy != nil && rc.Proxies != nil {
			if err := rc.Proxies.RecordSuccess(ctx, proxy.ID); err != nil {
				log.Error().Err(err).Str("proxy", proxy.Addr()).Msg("record proxy success")
			}
		}
		return nil
	}
	return fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

func (rc *RotatingClient) settleSuccess(ctx context.Context, cred *domain.RedditCredential, proxy *domain.ProxyEndpoint) {
	if err := rc.Credentials.RecordSuccess(ctx, cred.Username); err != nil {
		log.Error().Err(err).Str("username", cred.Username).Msg("record credential success")
	}
	if proxy != nil && rc.Proxies != nil {
		if err := rc.Proxies.RecordSuccess(ctx, proxy.ID); err != nil {
			log.Error().Err(err).Str("proxy", proxy.Addr()).Msg("record proxy success")
		}
	}
}

func (rc *RotatingClient) settleFailure(ctx context.Context, cred *domain.RedditCredential, proxy *domain.ProxyEndpoint, kind FailureKind) {
	if err := rc.Credentials.RecordFailure(ctx, cred.Username, kind); err != nil {
		log.Error().Err(err).Str("username", cred.Username).Msg("record credential failure")
	}
	if proxy != nil && rc.Proxies != nil {
		if err := rc.Proxies.RecordFailure(ctx, proxy.ID, kind); err != nil {
			log.Error().Err(err).Str("proxy", proxy.Addr()).Msg("record proxy failure")
		}
	}
}

func (rc *RotatingClient) wait(ctx context.Context, d time.Duration) error {
	if rc.sleep != nil {
		return rc.sleep(ctx, d)
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
