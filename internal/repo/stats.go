// Package repo implements the data persistence layer for the crawler,
// backed by GORM. This file provides small aggregate queries surfaced to
// operator tooling and the admin API.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
)

// PoolStats summarizes the health of one resource pool.
type PoolStats struct {
	Total        int64 `json:"total"`
	Disabled     int64 `json:"disabled"`
	InCooldown   int64 `json:"in_cooldown"`
	ReachedLimit int64 `json:"reached_limit,omitempty"`
	TotalSuccess int64 `json:"total_success"`
	TotalFail    int64 `json:"total_fail"`
}

// CredentialStats aggregates pool health for the credential table.
func CredentialStats(ctx context.Context, db *gorm.DB, now time.Time, dailyCap int) (PoolStats, error) {
	var s PoolStats
	row := db.WithContext(ctx).Model(&domain.RedditCredential{}).
		Select(`COUNT(*) AS total,
			SUM(CASE WHEN is_disabled THEN 1 ELSE 0 END) AS disabled,
			SUM(CASE WHEN cooldown_until > ? THEN 1 ELSE 0 END) AS in_cooldown,
			SUM(CASE WHEN daily_usage_count >= ? THEN 1 ELSE 0 END) AS reached_limit,
			COALESCE(SUM(success_count), 0) AS total_success,
			COALESCE(SUM(fail_count), 0) AS total_fail`, now, dailyCap)
	err := row.Scan(&s).Error
	return s, err
}

// ProxyStats aggregates pool health for the proxy table.
func ProxyStats(ctx context.Context, db *gorm.DB, now time.Time) (PoolStats, error) {
	var s PoolStats
	row := db.WithContext(ctx).Model(&domain.ProxyEndpoint{}).
		Select(`COUNT(*) AS total,
			SUM(CASE WHEN is_disabled THEN 1 ELSE 0 END) AS disabled,
			SUM(CASE WHEN cooldown_until > ? THEN 1 ELSE 0 END) AS in_cooldown,
			COALESCE(SUM(success_count), 0) AS total_success,
			COALESCE(SUM(fail_count), 0) AS total_fail`, now)
	err := row.Scan(&s).Error
	return s, err
}

// StorageStats summarizes the dedup store for operator tooling.
type StorageStats struct {
	TotalEntities  int64 `json:"total_entities"`
	ActiveTracking int64 `json:"active_tracking"`
}

// CollectStorageStats gathers entity and ledger counts in one call.
func CollectStorageStats(ctx context.Context, db *gorm.DB) (StorageStats, error) {
	var s StorageStats
	var err error
	if s.TotalEntities, err = CountEntities(ctx, db); err != nil {
		return s, err
	}
	if s.ActiveTracking, err = ActiveTrackingCount(ctx, db); err != nil {
		return s, err
	}
	return s, nil
}
