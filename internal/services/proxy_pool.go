package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/config"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/repo"
)

// ProxyPool manages the rotating set of outbound proxies. It mirrors the
// credential pool without the daily cap, and an empty pool is not an error:
// requests simply go out direct.
type ProxyPool struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// Cooldown is applied after rate-limited and network failures.
	Cooldown time.Duration

	// Now is injectable for tests.
	Now func() time.Time
}

// NewProxyPool constructs a pool from configuration.
func NewProxyPool(db *gorm.DB, cfg config.Config) *ProxyPool {
	return &ProxyPool{
		DB:       db,
		Cooldown: cfg.RateLimitCooldown,
		Now:      time.Now,
	}
}

// Next hands out the least-recently-used eligible proxy, or nil when the
// pool has none. A nil proxy means direct egress, never an error.
func (p *ProxyPool) Next(ctx context.Context) (*domain.ProxyEndpoint, error) {
	proxy, err := repo.NextProxy(ctx, p.DB, p.Now())
	if err != nil {
		return nil, fmt.Errorf("select proxy: %w", err)
	}
	return proxy, nil
}

// RecordSuccess accounts one successful request against the proxy.
func (p *ProxyPool) RecordSuccess(ctx context.Context, id uint) error {
	return repo.RecordProxySuccess(ctx, p.DB, id, p.Now())
}

// RecordFailure accounts one failed request. Rate limits and network faults
// put the proxy on cooldown; both point at the egress path rather than the
// credential.
func (p *ProxyPool) RecordFailure(ctx context.Context, id uint, kind FailureKind) error {
	cool := kind == FailureRateLimit || kind == FailureNetwork
	return repo.RecordProxyFailure(ctx, p.DB, id, p.Now(), cool, p.Cooldown)
}

// Add validates and inserts a proxy row.
func (p *ProxyPool) Add(ctx context.Context, proxy domain.ProxyEndpoint) (uint, error) {
	if proxy.Host == "" || proxy.Port < 1 || proxy.Port > 65535 {
		return 0, errors.New("proxy requires a host and a port in 1..65535")
	}
	return repo.AddProxy(ctx, p.DB, proxy)
}

// Disable soft-disables a proxy by id.
func (p *ProxyPool) Disable(ctx context.Context, id uint) error {
	return repo.DisableProxy(ctx, p.DB, id)
}

// List returns all proxies, disabled ones included.
func (p *ProxyPool) List(ctx context.Context) ([]domain.ProxyEndpoint, error) {
	return repo.ListProxies(ctx, p.DB)
}

// Stats aggregates pool health counters.
func (p *ProxyPool) Stats(ctx context.Context) (repo.PoolStats, error) {
	return repo.ProxyStats(ctx, p.DB, p.Now())
}

// ImportFile loads proxies from a JSON array file. Endpoints already present
// (same host:port) are skipped so a re-import is idempotent, even though
// direct Add stays permissive about duplicates.
func (p *ProxyPool) ImportFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read proxies file: %w", err)
	}
	var rows []struct {
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Protocol string `json:"protocol"`
		Username string `json:"username"`
		Password string `json:"password"`
		Country  string `json:"country"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("parse proxies file: %w", err)
	}

	existing, err := p.List(ctx)
	if err != nil {
		return 0, err
	}
	present := make(map[string]bool, len(existing))
	for _, e := range existing {
		present[e.Addr()] = true
	}

	imported := 0
	for _, row := range rows {
		proxy := domain.ProxyEndpoint{
			Host:     row.Host,
			Port:     row.Port,
			Protocol: row.Protocol,
			Username: row.Username,
			Password: row.Password,
			Country:  row.Country,
		}
		if present[proxy.Addr()] {
			continue
		}
		if _, err := p.Add(ctx, proxy); err != nil {
			log.Warn().Err(err).Str("proxy", proxy.Addr()).Msg("skipping proxy")
			continue
		}
		present[proxy.Addr()] = true
		imported++
	}
	return imported, nil
}
