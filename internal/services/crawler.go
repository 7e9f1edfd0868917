package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/backup"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/config"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/pullpush"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/repo"
)

// HistoricalAPI is the slice of the PullPush client the crawler uses.
type HistoricalAPI interface {
	SearchPosts(ctx context.Context, subreddit string, until time.Time, size int) ([]domain.RedditPost, error)
	SearchComments(ctx context.Context, subreddit string, until time.Time, size int) ([]domain.RedditComment, error)
}

// Crawler runs crawl cycles: fetch a listing through the rotating client,
// normalize, store, mirror to JSON backups, and enqueue the fetched posts
// for comment tracking.
type Crawler struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// API executes Reddit reads through the credential/proxy rotation.
	API RedditAPI
	// Backup mirrors stored batches to disk; nil disables mirroring.
	Backup *backup.Writer
	// Historical serves backfill queries; nil disables CrawlHistorical.
	Historical HistoricalAPI

	// TrackingDays bounds how long a fetched post stays tracked.
	TrackingDays int
	// CrawlFrequency is the frequency label stamped on new tracking rows.
	CrawlFrequency string

	// Now is injectable for tests.
	Now func() time.Time
}

// NewCrawler wires a crawler from configuration.
func NewCrawler(db *gorm.DB, api RedditAPI, cfg config.Config) *Crawler {
	return &Crawler{
		DB:             db,
		API:            api,
		Backup:         backup.NewWriter(cfg.OutputDir),
		Historical:     pullpush.New(cfg.PullPushBaseURL, "", cfg.PullPushRPS, cfg.RequestTimeout),
		TrackingDays:   cfg.TrackingDays,
		CrawlFrequency: cfg.CrawlFrequency,
		Now:            time.Now,
	}
}

// CrawlResult summarizes one crawl cycle.
type CrawlResult struct {
	Subreddit string `json:"subreddit"`
	Fetched   int    `json:"fetched"`
	Stored    int    `json:"stored"`
	Tracked   int    `json:"tracked"`
}

// CrawlSubreddit fetches one listing page, stores the posts, and enqueues
// them for comment tracking. The timeframe only applies to the "top" sort.
func (c *Crawler) CrawlSubreddit(ctx context.Context, subreddit, sort string, limit int, timeframe string) (CrawlResult, error) {
	started := c.Now()
	result := CrawlResult{Subreddit: subreddit}

	posts, err := c.API.Listing(ctx, subreddit, sort, limit, timeframe)
	if err != nil {
		crawlRequests.WithLabelValues("error").Inc()
		return result, fmt.Errorf("fetch %s listing for r/%s: %w", sort, subreddit, err)
	}
	crawlRequests.WithLabelValues("ok").Inc()
	result.Fetched = len(posts)

	contents := make([]domain.RedditContent, 0, len(posts))
	for _, post := range posts {
		contents = append(contents, domain.PostContent(post))
	}

	stored, err := repo.StoreBatch(ctx, c.DB, contents)
	if err != nil {
		return result, fmt.Errorf("store posts for r/%s: %w", subreddit, err)
	}
	result.Stored = stored
	crawlStored.WithLabelValues(subreddit, "post").Add(float64(stored))

	c.mirror(subreddit, "posts", contents)

	now := c.Now()
	deadline := now.Add(time.Duration(c.TrackingDays) * 24 * time.Hour)
	for _, post := range posts {
		title := post.Title
		entry := domain.PostTracking{
			PostID:         post.ID,
			Subreddit:      subreddit,
			Title:          &title,
			CheckUntil:     &deadline,
			CrawlFrequency: c.CrawlFrequency,
		}
		if err := repo.UpsertTracking(ctx, c.DB, entry, now); err != nil {
			log.Warn().Err(err).Str("post_id", post.ID).Msg("enqueue tracking failed")
			continue
		}
		result.Tracked++
	}

	crawlCycleDuration.WithLabelValues(subreddit).Observe(c.Now().Sub(started).Seconds())
	log.Info().
		Str("subreddit", subreddit).
		Str("sort", sort).
		Int("fetched", result.Fetched).
		Int("stored", result.Stored).
		Int("tracked", result.Tracked).
		Msg("crawl cycle done")
	return result, nil
}

// CrawlPostComments fetches one post with its full reply tree and stores
// the post plus every flattened comment.
func (c *Crawler) CrawlPostComments(ctx context.Context, postID string) (int, error) {
	post, comments, err := c.API.SubmissionComments(ctx, postID)
	if err != nil {
		crawlRequests.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("fetch comments for %s: %w", postID, err)
	}
	crawlRequests.WithLabelValues("ok").Inc()

	contents := make([]domain.RedditContent, 0, 1+len(comments))
	contents = append(contents, domain.PostContent(*post))
	contents = append(contents, domain.FlattenComments(comments)...)

	stored, err := repo.StoreBatch(ctx, c.DB, contents)
	if err != nil {
		return 0, fmt.Errorf("store comments for %s: %w", postID, err)
	}
	crawlStored.WithLabelValues(post.Subreddit, "comment").Add(float64(stored))
	return stored, nil
}

// CrawlHistorical backfills a subreddit from the PullPush mirror, paging
// backwards in time until `since` is reached or maxPages pages are read.
// Posts page first, then comments. Returns the number of records stored.
func (c *Crawler) CrawlHistorical(ctx context.Context, subreddit string, since time.Time, maxPages int) (int, error) {
	if c.Historical == nil {
		return 0, fmt.Errorf("historical backfill is not configured")
	}
	if maxPages < 1 {
		maxPages = 1
	}

	total := 0

	until := time.Time{}
	for page := 0; page < maxPages; page++ {
		posts, err := c.Historical.SearchPosts(ctx, subreddit, until, 100)
		if err != nil {
			return total, fmt.Errorf("historical posts for r/%s: %w", subreddit, err)
		}
		if len(posts) == 0 {
			break
		}

		contents := make([]domain.RedditContent, 0, len(posts))
		oldest := posts[0].CreatedUTC
		for _, post := range posts {
			contents = append(contents, domain.PostContent(post))
			if post.CreatedUTC < oldest {
				oldest = post.CreatedUTC
			}
		}
		stored, err := repo.StoreBatch(ctx, c.DB, contents)
		if err != nil {
			return total, fmt.Errorf("store historical posts for r/%s: %w", subreddit, err)
		}
		total += stored
		crawlStored.WithLabelValues(subreddit, "post").Add(float64(stored))
		c.mirror(subreddit, "historical_posts", contents)

		until = time.Unix(int64(oldest), 0).UTC()
		if !since.IsZero() && until.Before(since) {
			break
		}
	}

	until = time.Time{}
	for page := 0; page < maxPages; page++ {
		comments, err := c.Historical.SearchComments(ctx, subreddit, until, 100)
		if err != nil {
			return total, fmt.Errorf("historical comments for r/%s: %w", subreddit, err)
		}
		if len(comments) == 0 {
			break
		}

		contents := make([]domain.RedditContent, 0, len(comments))
		oldest := comments[0].CreatedUTC
		for _, comment := range comments {
			contents = append(contents, domain.CommentContent(comment))
			if comment.CreatedUTC < oldest {
				oldest = comment.CreatedUTC
			}
		}
		stored, err := repo.StoreBatch(ctx, c.DB, contents)
		if err != nil {
			return total, fmt.Errorf("store historical comments for r/%s: %w", subreddit, err)
		}
		total += stored
		crawlStored.WithLabelValues(subreddit, "comment").Add(float64(stored))
		c.mirror(subreddit, "historical_comments", contents)

		until = time.Unix(int64(oldest), 0).UTC()
		if !since.IsZero() && until.Before(since) {
			break
		}
	}

	log.Info().Str("subreddit", subreddit).Int("stored", total).Msg("historical backfill done")
	return total, nil
}

// mirror writes the batch to the JSON backup tree. Backup failures are
// logged, never fatal: the database write already succeeded.
func (c *Crawler) mirror(subreddit, kind string, contents []domain.RedditContent) {
	if c.Backup == nil {
		return
	}
	if _, err := c.Backup.WriteBatch(subreddit, kind, contents, c.Now()); err != nil {
		log.Warn().Err(err).Str("subreddit", subreddit).Str("kind", kind).Msg("backup write failed")
	}
}
