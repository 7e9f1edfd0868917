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

// CredentialPool manages the rotating set of Reddit accounts: least-recently
// used selection under the eligibility rules, outcome accounting, and the
// rolling daily usage reset.
type CredentialPool struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// DailyCap bounds per-credential requests in a rolling day.
	DailyCap int
	// Cooldown is applied after a rate-limited failure.
	Cooldown time.Duration
	// ResetEvery is the cadence of the background daily usage reset scan.
	ResetEvery time.Duration

	// Now is injectable for tests.
	Now func() time.Time
}

// NewCredentialPool constructs a pool from configuration.
func NewCredentialPool(db *gorm.DB, cfg config.Config) *CredentialPool {
	return &CredentialPool{
		DB:         db,
		DailyCap:   cfg.MaxDailyUsage,
		Cooldown:   cfg.RateLimitCooldown,
		ResetEvery: cfg.UsageResetEvery,
		Now:        time.Now,
	}
}

// Next hands out the least-recently-used eligible credential. An exhausted
// pool returns ErrNoAvailableCredentials; callers must not retry through it.
func (p *CredentialPool) Next(ctx context.Context) (*domain.RedditCredential, error) {
	cred, err := repo.NextCredential(ctx, p.DB, p.Now(), p.DailyCap)
	if err != nil {
		return nil, fmt.Errorf("select credential: %w", err)
	}
	if cred == nil {
		return nil, ErrNoAvailableCredentials
	}
	return cred, nil
}

// RecordSuccess accounts one successful request against the credential.
func (p *CredentialPool) RecordSuccess(ctx context.Context, username string) error {
	return repo.RecordCredentialSuccess(ctx, p.DB, username, p.Now())
}

// RecordFailure accounts one failed request. Only rate limits put the
// credential on cooldown; auth failures bump the counter and leave the
// credential enabled.
func (p *CredentialPool) RecordFailure(ctx context.Context, username string, kind FailureKind) error {
	now := p.Now()
	rateLimited := kind == FailureRateLimit
	if kind == FailureAuth {
		log.Warn().Str("username", username).Msg("credential failed authentication")
	}
	return repo.RecordCredentialFailure(ctx, p.DB, username, now, rateLimited, p.Cooldown)
}

// Add validates and upserts a credential. Re-adding an existing username
// refreshes its secret material and re-enables it.
func (p *CredentialPool) Add(ctx context.Context, cred domain.RedditCredential) error {
	if cred.Username == "" || cred.Password == "" || cred.ClientID == "" || cred.ClientSecret == "" {
		return errors.New("credential requires username, password, client_id and client_secret")
	}
	if cred.UserAgent == "" {
		cred.UserAgent = "crawl-reddit/1.0 (by /u/" + cred.Username + ")"
	}
	return repo.UpsertCredential(ctx, p.DB, cred)
}

// Disable soft-disables a credential by username.
func (p *CredentialPool) Disable(ctx context.Context, username string) error {
	return repo.DisableCredential(ctx, p.DB, username)
}

// List returns all credentials, disabled ones included.
func (p *CredentialPool) List(ctx context.Context) ([]domain.RedditCredential, error) {
	return repo.ListCredentials(ctx, p.DB)
}

// Stats aggregates pool health counters.
func (p *CredentialPool) Stats(ctx context.Context) (repo.PoolStats, error) {
	return repo.CredentialStats(ctx, p.DB, p.Now(), p.DailyCap)
}

// ImportFile loads credentials from a JSON array file and upserts each one.
// Returns the number imported; a malformed file imports nothing.
func (p *CredentialPool) ImportFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read credentials file: %w", err)
	}
	// The persistence model hides secrets from JSON output, so the import
	// format gets its own shape.
	var rows []struct {
		Username     string `json:"username"`
		Password     string `json:"password"`
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
		UserAgent    string `json:"user_agent"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("parse credentials file: %w", err)
	}

	imported := 0
	for _, row := range rows {
		cred := domain.RedditCredential{
			Username:     row.Username,
			Password:     row.Password,
			ClientID:     row.ClientID,
			ClientSecret: row.ClientSecret,
			UserAgent:    row.UserAgent,
		}
		if err := p.Add(ctx, cred); err != nil {
			log.Warn().Err(err).Str("username", cred.Username).Msg("skipping credential")
			continue
		}
		imported++
	}
	return imported, nil
}

// StartResetLoop runs the daily usage reset scan until the context ends.
// Blocking; run it in a goroutine.
func (p *CredentialPool) StartResetLoop(ctx context.Context) {
	ticker := time.NewTicker(p.ResetEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.ResetDailyUsage(ctx, p.DB, p.Now())
			if err != nil {
				log.Error().Err(err).Msg("daily usage reset scan failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("credentials", n).Msg("reset daily usage counters")
			}
		}
	}
}
