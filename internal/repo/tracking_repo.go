// Package repo implements the data persistence layer for the crawler,
// backed by GORM. This file provides the comment-tracking ledger: the work
// queue of posts that should keep being polled for new comments.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
)

// UpsertTracking enqueues a post for comment tracking. Re-enqueueing an
// existing post re-arms it: tracking is reactivated, the deadline refreshed,
// and the crawl frequency updated.
func UpsertTracking(ctx context.Context, db *gorm.DB, entry domain.PostTracking, now time.Time) error {
	entry.IsActive = true
	entry.LastCrawledAt = now
	if entry.Priority == 0 {
		entry.Priority = 5
	}
	if entry.CrawlFrequency == "" {
		entry.CrawlFrequency = "30m"
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "post_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_active", "crawl_frequency", "check_until", "last_crawled_at",
		}),
	}).Create(&entry).Error
}

// DequeueTracking returns up to limit active, unexpired entries, hottest
// first: higher priority wins, and within equal priority the stalest entry
// (oldest last_crawled_at) is preferred.
func DequeueTracking(ctx context.Context, db *gorm.DB, limit int, now time.Time) ([]domain.PostTracking, error) {
	var out []domain.PostTracking
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("check_until IS NULL OR check_until > ?", now).
		Order("priority DESC, last_crawled_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// RecordCrawlOutcome adjusts a ledger row after a crawl attempt. Finding new
// comments raises priority (cap 10) and advances the comment cursor; finding
// none lowers it (floor 1). Both paths advance last_crawled_at, and a title
// learned during the crawl is filled in lazily.
func RecordCrawlOutcome(ctx context.Context, db *gorm.DB, postID string, newComments int, newestCommentID, title string, now time.Time) error {
	// SQLite's scalar MIN/MAX are LEAST/GREATEST on PostgreSQL.
	raise, lower := "MIN(10, priority + 1)", "MAX(1, priority - 1)"
	if db.Dialector.Name() == "postgres" {
		raise, lower = "LEAST(10, priority + 1)", "GREATEST(1, priority - 1)"
	}

	updates := map[string]any{
		"last_crawled_at": now,
	}
	if newComments > 0 {
		updates["priority"] = gorm.Expr(raise)
		updates["comment_count"] = gorm.Expr("comment_count + ?", newComments)
		if newestCommentID != "" {
			updates["last_comment_id"] = newestCommentID
		}
	} else {
		updates["priority"] = gorm.Expr(lower)
	}
	if strings.TrimSpace(title) != "" {
		updates["title"] = gorm.Expr("COALESCE(title, ?)", title)
	}
	return db.WithContext(ctx).Model(&domain.PostTracking{}).
		Where("post_id = ?", postID).
		Updates(updates).Error
}

// DisableTracking deactivates a single active ledger entry. Unknown and
// already-inactive posts report ErrNotFound.
func DisableTracking(ctx context.Context, db *gorm.DB, postID string) error {
	res := db.WithContext(ctx).Model(&domain.PostTracking{}).
		Where("post_id = ? AND is_active = ?", postID, true).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireOverdueTracking bulk-deactivates entries whose deadline has passed.
// Returns the number of entries flipped.
func ExpireOverdueTracking(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.PostTracking{}).
		Where("is_active = ?", true).
		Where("check_until IS NOT NULL AND check_until < ?", now).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

// ActiveTrackingCount returns the number of active ledger entries.
func ActiveTrackingCount(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.PostTracking{}).
		Where("is_active = ?", true).
		Count(&total).Error
	return total, err
}

// TrackablePostIDs harvests recent post ids out of stored entity URIs that
// are not yet in the ledger, newest first. Post permalinks embed the id as
// the path segment after "/comments/".
func TrackablePostIDs(ctx context.Context, db *gorm.DB, limit int) ([]domain.PostTracking, error) {
	var entities []domain.DataEntity
	err := db.WithContext(ctx).
		Select("uri", "label", "datetime").
		Where("uri LIKE ?", "%/comments/%").
		Order("datetime DESC").
		Limit(limit * 4). // over-fetch; comment URIs share the post's prefix
		Find(&entities).Error
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	candidates := make([]domain.PostTracking, 0, limit)
	for _, e := range entities {
		postID := postIDFromURI(e.URI)
		if postID == "" || seen[postID] {
			continue
		}
		seen[postID] = true

		var existing int64
		if err := db.WithContext(ctx).Model(&domain.PostTracking{}).
			Where("post_id = ?", postID).
			Count(&existing).Error; err != nil {
			return nil, err
		}
		if existing > 0 {
			continue
		}

		candidates = append(candidates, domain.PostTracking{
			PostID:    postID,
			Subreddit: e.Label,
		})
		if len(candidates) >= limit {
			break
		}
	}
	return candidates, nil
}

func postIDFromURI(uri string) string {
	const marker = "/comments/"
	idx := strings.Index(uri, marker)
	if idx < 0 {
		return ""
	}
	rest := uri[idx+len(marker):]
	if end := strings.IndexByte(rest, '/'); end >= 0 {
		rest = rest[:end]
	}
	return rest
}
