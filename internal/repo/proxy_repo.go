// Package repo implements the data persistence layer for the crawler,
// backed by GORM. This file provides repository functions for the proxy
// pool. The shape mirrors the credential pool minus the daily cap.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
)

// NextProxy returns the least-recently-used eligible proxy, or (nil, nil)
// when none qualifies. Same read-then-write selection caveat as
// NextCredential.
func NextProxy(ctx context.Context, db *gorm.DB, now time.Time) (*domain.ProxyEndpoint, error) {
	var proxy domain.ProxyEndpoint
	err := db.WithContext(ctx).
		Where("is_disabled = ?", false).
		Where("cooldown_until IS NULL OR cooldown_until < ?", now).
		Order("last_used ASC").
		First(&proxy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &proxy, nil
}

// RecordProxySuccess bumps the success counter and refreshes last_used.
func RecordProxySuccess(ctx context.Context, db *gorm.DB, id uint, now time.Time) error {
	return db.WithContext(ctx).Model(&domain.ProxyEndpoint{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"success_count": gorm.Expr("success_count + 1"),
			"last_used":     now,
		}).Error
}

// RecordProxyFailure bumps the failure counter and refreshes last_used;
// rate-limit or network classified failures start a cooldown window.
func RecordProxyFailure(ctx context.Context, db *gorm.DB, id uint, now time.Time, rateLimited bool, cooldown time.Duration) error {
	updates := map[string]any{
		"fail_count": gorm.Expr("fail_count + 1"),
		"last_used":  now,
	}
	if rateLimited {
		updates["cooldown_until"] = now.Add(cooldown)
	}
	return db.WithContext(ctx).Model(&domain.ProxyEndpoint{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// AddProxy inserts a new proxy row. Duplicates by host:port are permitted on
// purpose: the same endpoint may be fronted by different credential pairs, so
// there is no natural uniqueness constraint to upsert against.
func AddProxy(ctx context.Context, db *gorm.DB, proxy domain.ProxyEndpoint) (uint, error) {
	proxy.ID = 0
	if proxy.Protocol == "" {
		proxy.Protocol = "http"
	}
	if err := db.WithContext(ctx).Create(&proxy).Error; err != nil {
		return 0, err
	}
	return proxy.ID, nil
}

// DisableProxy soft-disables a proxy row by id.
func DisableProxy(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Model(&domain.ProxyEndpoint{}).
		Where("id = ?", id).
		Update("is_disabled", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProxies returns all proxy rows, disabled ones included.
func ListProxies(ctx context.Context, db *gorm.DB) ([]domain.ProxyEndpoint, error) {
	var out []domain.ProxyEndpoint
	err := db.WithContext(ctx).Order("last_used ASC").Find(&out).Error
	return out, err
}
