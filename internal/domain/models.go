// Package domain defines the persistence models for the crawler: pooled
// Reddit credentials, proxy endpoints, content-addressed data entities, and
// the comment-tracking ledger. These types are mapped with GORM and form the
// core data layer of the application.
package domain

import (
	"strconv"
	"time"
)

// RedditCredential is one Reddit application + account login pair usable to
// authenticate API calls. Rows are never physically deleted; exhausted or
// burned credentials are soft-disabled.
//
// A credential is eligible for selection iff it is not disabled, any cooldown
// has elapsed, and its rolling-day usage is below the daily cap.
type RedditCredential struct {
	ID           uint   `json:"id"            gorm:"primaryKey"`
	Username     string `json:"username"      gorm:"type:varchar(100);not null;uniqueIndex"`
	Password     string `json:"-"             gorm:"type:varchar(100);not null"`
	ClientID     string `json:"client_id"     gorm:"type:varchar(100);not null"`
	ClientSecret string `json:"-"             gorm:"type:varchar(100);not null"`
	UserAgent    string `json:"user_agent"    gorm:"type:varchar(200);not null"`

	LastUsed      time.Time  `json:"last_used"`
	FailCount     int        `json:"fail_count"       gorm:"not null;default:0"`
	SuccessCount  int        `json:"success_count"    gorm:"not null;default:0"`
	IsDisabled    bool       `json:"is_disabled"      gorm:"not null;default:false"`
	CooldownUntil *time.Time `json:"cooldown_until"`
	DailyUsage    int        `json:"daily_usage_count" gorm:"column:daily_usage_count;not null;default:0"`
	DailyResetAt  time.Time  `json:"daily_reset_at"`
}

// TableName returns the database table name for RedditCredential.
func (RedditCredential) TableName() string { return "reddit_accounts" }

// Eligible reports whether the credential may be handed out at the given
// instant, under the given daily usage cap.
func (c RedditCredential) Eligible(now time.Time, dailyCap int) bool {
	if c.IsDisabled {
		return false
	}
	if c.CooldownUntil != nil && !c.CooldownUntil.Before(now) {
		return false
	}
	return c.DailyUsage < dailyCap
}

// ProxyEndpoint is one upstream HTTP(S) relay used to vary the apparent
// source IP of outbound calls. Uniqueness is by row identity, not by
// (host, port): the same network endpoint may appear several times fronted by
// different credential pairs.
type ProxyEndpoint struct {
	ID       uint   `json:"id"        gorm:"primaryKey"`
	Host     string `json:"host"      gorm:"type:varchar(100);not null"`
	Port     int    `json:"port"      gorm:"not null"`
	Protocol string `json:"protocol"  gorm:"type:varchar(10);not null;default:'http'"`
	Username string `json:"username"  gorm:"type:varchar(100)"`
	Password string `json:"-"         gorm:"type:varchar(100)"`
	Country  string `json:"country"   gorm:"type:varchar(50)"`

	LastUsed      time.Time  `json:"last_used"`
	FailCount     int        `json:"fail_count"     gorm:"not null;default:0"`
	SuccessCount  int        `json:"success_count"  gorm:"not null;default:0"`
	IsDisabled    bool       `json:"is_disabled"    gorm:"not null;default:false"`
	CooldownUntil *time.Time `json:"cooldown_until"`
}

// TableName returns the database table name for ProxyEndpoint.
func (ProxyEndpoint) TableName() string { return "proxy_servers" }

// Eligible reports whether the proxy may be handed out at the given instant.
// Proxies carry no daily cap; only disablement and cooldown exclude them.
func (p ProxyEndpoint) Eligible(now time.Time) bool {
	if p.IsDisabled {
		return false
	}
	return p.CooldownUntil == nil || p.CooldownUntil.Before(now)
}

// Addr returns the host:port rendering used in logs and stats.
func (p ProxyEndpoint) Addr() string {
	return p.Host + ":" + strconv.Itoa(p.Port)
}

// DataEntity is the canonical content-addressed row persisted for every
// crawled post or comment. The URI (permalink) is the primary key; storing
// the same URI again is an upsert. The indexed Datetime column is truncated
// to minute precision while the Content blob keeps the true timestamp.
type DataEntity struct {
	URI              string    `json:"uri"                gorm:"primaryKey;type:text"`
	Datetime         time.Time `json:"datetime"           gorm:"not null"`
	TimeBucketID     int64     `json:"time_bucket_id"     gorm:"column:time_bucket_id;not null;index:idx_dataentity_timebucketid"`
	Source           int       `json:"source"             gorm:"not null"`
	Label            string    `json:"label"              gorm:"type:varchar(32);index:idx_dataentity_label"`
	Content          []byte    `json:"content"            gorm:"not null"`
	ContentSizeBytes int       `json:"content_size_bytes" gorm:"not null"`
}

// TableName returns the database table name for DataEntity.
func (DataEntity) TableName() string { return "data_entity" }

// PostTracking is a ledger row representing an ongoing obligation to re-poll
// a specific post for new comments. Priority adapts after every crawl
// attempt: new comments raise it (cap 10), silence lowers it (floor 1).
type PostTracking struct {
	ID             uint       `json:"id"              gorm:"primaryKey"`
	PostID         string     `json:"post_id"         gorm:"type:varchar(20);not null;uniqueIndex"`
	Subreddit      string     `json:"subreddit"       gorm:"type:varchar(100);not null"`
	Title          *string    `json:"title"           gorm:"type:text"`
	CommentCount   int        `json:"comment_count"   gorm:"not null;default:0"`
	LastCommentID  *string    `json:"last_comment_id" gorm:"type:varchar(20)"`
	LastCrawledAt  time.Time  `json:"last_crawled_at"`
	FirstSeenAt    time.Time  `json:"first_seen_at"   gorm:"autoCreateTime"`
	IsActive       bool       `json:"is_active"       gorm:"not null;default:true"`
	Priority       int        `json:"priority"        gorm:"not null;default:5"`
	CrawlFrequency string     `json:"crawl_frequency" gorm:"type:varchar(10);not null;default:'30m'"`
	CheckUntil     *time.Time `json:"check_until"`
}

// TableName returns the database table name for PostTracking.
func (PostTracking) TableName() string { return "post_comment_tracking" }
