// Package repo implements the data persistence layer for the crawler,
// backed by GORM. This file provides repository functions for the pooled
// Reddit credentials: LRU selection under the eligibility invariant, usage
// accounting, and the rolling daily reset.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
)

// ErrNotFound indicates that the requested row does not exist.
var ErrNotFound = errors.New("not found")

// NextCredential returns the least-recently-used eligible credential, or
// (nil, nil) when no credential qualifies. Callers must treat that as "no
// capacity", not as an error.
//
// Selection is read-then-write: last_used is only refreshed when the caller
// later records an outcome, so two interleaved callers can pick the same row.
func NextCredential(ctx context.Context, db *gorm.DB, now time.Time, dailyCap int) (*domain.RedditCredential, error) {
	var cred domain.RedditCredential
	err := db.WithContext(ctx).
		Where("is_disabled = ?", false).
		Where("cooldown_until IS NULL OR cooldown_until < ?", now).
		Where("daily_usage_count < ?", dailyCap).
		Order("last_used ASC").
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// RecordCredentialSuccess bumps the success and daily usage counters and
// refreshes last_used. Side effect only; a missing row is a no-op.
func RecordCredentialSuccess(ctx context.Context, db *gorm.DB, username string, now time.Time) error {
	return db.WithContext(ctx).Model(&domain.RedditCredential{}).
		Where("username = ?", username).
		Updates(map[string]any{
			"success_count":     gorm.Expr("success_count + 1"),
			"daily_usage_count": gorm.Expr("daily_usage_count + 1"),
			"last_used":         now,
		}).Error
}

// RecordCredentialFailure bumps the failure counter and refreshes last_used.
// Rate-limit-classified failures additionally start a cooldown window;
// other failures impose none so transient errors don't exile the account.
func RecordCredentialFailure(ctx context.Context, db *gorm.DB, username string, now time.Time, rateLimited bool, cooldown time.Duration) error {
	updates := map[string]any{
		"fail_count": gorm.Expr("fail_count + 1"),
		"last_used":  now,
	}
	if rateLimited {
		updates["cooldown_until"] = now.Add(cooldown)
	}
	return db.WithContext(ctx).Model(&domain.RedditCredential{}).
		Where("username = ?", username).
		Updates(updates).Error
}

// UpsertCredential inserts or refreshes a credential by its natural key
// (username). A conflicting row gets new secret material and is re-enabled.
func UpsertCredential(ctx context.Context, db *gorm.DB, cred domain.RedditCredential) error {
	cred.IsDisabled = false
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"password", "client_id", "client_secret", "user_agent", "is_disabled",
		}),
	}).Create(&cred).Error
}

// DisableCredential soft-disables a credential until it is re-added.
func DisableCredential(ctx context.Context, db *gorm.DB, username string) error {
	res := db.WithContext(ctx).Model(&domain.RedditCredential{}).
		Where("username = ?", username).
		Update("is_disabled", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCredentials returns all credential rows, disabled ones included.
func ListCredentials(ctx context.Context, db *gorm.DB) ([]domain.RedditCredential, error) {
	var out []domain.RedditCredential
	err := db.WithContext(ctx).Order("last_used ASC").Find(&out).Error
	return out, err
}

// ResetDailyUsage zeroes daily usage for credentials whose last reset is more
// than 24h old and stamps them with a fresh reset time. Returns the number of
// rows reset.
func ResetDailyUsage(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.RedditCredential{}).
		Where("daily_reset_at < ?", now.Add(-24*time.Hour)).
		Updates(map[string]any{
			"daily_usage_count": 0,
			"daily_reset_at":    now,
		})
	return res.RowsAffected, res.Error
}
