package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/config"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/repo"
)

// CommentFetcher is the read path the tracker polls with. The rotating
// client serves it from the public JSON endpoint, so re-polls get proxy
// rotation and retries without spending credential quota.
type CommentFetcher interface {
	PostComments(ctx context.Context, postID string) (*domain.RedditPost, []domain.RedditComment, error)
}

// Tracker re-polls ledgered posts for new comments. New comments are
// detected by comparing comment ids against the stored high-water mark;
// ids are Reddit base36, so the comparison is lexicographic.
type Tracker struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Fetcher reads the public comments endpoint.
	Fetcher CommentFetcher

	// BatchSize bounds how many ledger entries one pass processes.
	BatchSize int
	// TrackingDays bounds the deadline for auto-tracked posts.
	TrackingDays int
	// CrawlFrequency is the frequency label stamped on auto-tracked rows.
	CrawlFrequency string

	// Now is injectable for tests.
	Now func() time.Time
}

// NewTracker wires a tracker from configuration.
func NewTracker(db *gorm.DB, fetcher CommentFetcher, cfg config.Config) *Tracker {
	return &Tracker{
		DB:             db,
		Fetcher:        fetcher,
		BatchSize:      25,
		TrackingDays:   cfg.TrackingDays,
		CrawlFrequency: cfg.CrawlFrequency,
		Now:            time.Now,
	}
}

// TrackResult summarizes one tracking pass.
type TrackResult struct {
	Processed   int `json:"processed"`
	NewComments int `json:"new_comments"`
	Failed      int `json:"failed"`
}

// ProcessNext dequeues up to BatchSize ledger entries, re-polls each post,
// and stores comments newer than the entry's high-water mark. A failed post
// is logged and skipped; the pass keeps going.
func (t *Tracker) ProcessNext(ctx context.Context) (TrackResult, error) {
	var result TrackResult

	entries, err := repo.DequeueTracking(ctx, t.DB, t.BatchSize, t.Now())
	if err != nil {
		return result, fmt.Errorf("dequeue tracking: %w", err)
	}

	for _, entry := range entries {
		fresh, err := t.processEntry(ctx, entry)
		if err != nil {
			result.Failed++
			log.Warn().Err(err).Str("post_id", entry.PostID).Msg("tracking poll failed")
			continue
		}
		result.Processed++
		result.NewComments += fresh
	}
	if result.NewComments > 0 {
		crawlNewComments.Add(float64(result.NewComments))
	}
	return result, nil
}

// processEntry polls one post and returns how many new comments it stored.
func (t *Tracker) processEntry(ctx context.Context, entry domain.PostTracking) (int, error) {
	post, comments, err := t.Fetcher.PostComments(ctx, entry.PostID)
	if err != nil {
		return 0, err
	}

	flat := domain.FlattenComments(comments)

	fresh := make([]domain.RedditContent, 0, len(flat))
	newest := ""
	for _, comment := range flat {
		if entry.LastCommentID != nil && comment.ID <= *entry.LastCommentID {
			continue
		}
		fresh = append(fresh, comment)
		if comment.ID > newest {
			newest = comment.ID
		}
	}

	if len(fresh) > 0 {
		// Refresh the post record alongside its new comments.
		batch := append([]domain.RedditContent{domain.PostContent(*post)}, fresh...)
		if _, err := repo.StoreBatch(ctx, t.DB, batch); err != nil {
			return 0, fmt.Errorf("store tracked comments: %w", err)
		}
	}

	if err := repo.RecordCrawlOutcome(ctx, t.DB, entry.PostID, len(fresh), newest, post.Title, t.Now()); err != nil {
		return 0, fmt.Errorf("record crawl outcome: %w", err)
	}
	return len(fresh), nil
}

// Track enqueues a single post into the ledger with a fresh deadline.
// Re-tracking an already ledgered post re-arms it.
func (t *Tracker) Track(ctx context.Context, postID, subreddit string) error {
	if postID == "" {
		return fmt.Errorf("post id is required")
	}
	now := t.Now()
	deadline := now.Add(time.Duration(t.TrackingDays) * 24 * time.Hour)
	entry := domain.PostTracking{
		PostID:         postID,
		Subreddit:      domain.NormalizeLabel(subreddit, domain.MaxLabelLength),
		CrawlFrequency: t.CrawlFrequency,
		CheckUntil:     &deadline,
	}
	return repo.UpsertTracking(ctx, t.DB, entry, now)
}

// Untrack deactivates a ledger entry without deleting its history.
func (t *Tracker) Untrack(ctx context.Context, postID string) error {
	err := repo.DisableTracking(ctx, t.DB, postID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrTrackingNotFound
	}
	return err
}

// Cleanup deactivates ledger entries whose deadline has passed and returns
// how many were expired.
func (t *Tracker) Cleanup(ctx context.Context) (int64, error) {
	n, err := repo.ExpireOverdueTracking(ctx, t.DB, t.Now())
	if err != nil {
		return 0, fmt.Errorf("expire tracking: %w", err)
	}
	if n > 0 {
		log.Info().Int64("expired", n).Msg("expired overdue tracking entries")
	}
	return n, nil
}

// AutoTrack harvests recently stored posts that are not yet ledgered and
// enqueues them. Returns how many entries were added.
func (t *Tracker) AutoTrack(ctx context.Context, limit int) (int, error) {
	if limit < 1 {
		limit = t.BatchSize
	}
	candidates, err := repo.TrackablePostIDs(ctx, t.DB, limit)
	if err != nil {
		return 0, fmt.Errorf("harvest trackable posts: %w", err)
	}

	now := t.Now()
	deadline := now.Add(time.Duration(t.TrackingDays) * 24 * time.Hour)
	added := 0
	for _, candidate := range candidates {
		candidate.CheckUntil = &deadline
		candidate.CrawlFrequency = t.CrawlFrequency
		if err := repo.UpsertTracking(ctx, t.DB, candidate, now); err != nil {
			log.Warn().Err(err).Str("post_id", candidate.PostID).Msg("auto-track enqueue failed")
			continue
		}
		added++
	}
	return added, nil
}
