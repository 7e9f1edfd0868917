// Credential pool HTTP handlers.
//
//   - POST   /accounts            (add or refresh a credential)
//   - GET    /accounts            (list, secrets redacted)
//   - DELETE /accounts/{username} (soft-disable)
//
// Handlers are transport-thin: they validate input, call the pool services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/repo"
)

//
// Service contracts (context-aware)
//

// AccountPool defines the credential pool operations consumed by the admin
// API. Implementations must honor the provided context.
type AccountPool interface {
	// Add inserts a credential or refreshes an existing username.
	Add(ctx context.Context, cred domain.RedditCredential) error
	// Disable soft-disables a credential by username.
	Disable(ctx context.Context, username string) error
	// List returns all pooled credentials.
	List(ctx context.Context) ([]domain.RedditCredential, error)
	// Stats aggregates pool health.
	Stats(ctx context.Context) (repo.PoolStats, error)
}

// ProxyAdmin defines the proxy pool operations consumed by the admin API.
type ProxyAdmin interface {
	// Add inserts a proxy and returns its row id.
	Add(ctx context.Context, proxy domain.ProxyEndpoint) (uint, error)
	// Disable soft-disables a proxy by row id.
	Disable(ctx context.Context, id uint) error
	// List returns all pooled proxies.
	List(ctx context.Context) ([]domain.ProxyEndpoint, error)
	// Stats aggregates pool health.
	Stats(ctx context.Context) (repo.PoolStats, error)
}

// TrackingAdmin defines the ledger operations consumed by the admin API.
type TrackingAdmin interface {
	// Track enqueues a post for comment tracking.
	Track(ctx context.Context, postID, subreddit string) error
	// Untrack deactivates a ledger entry.
	Untrack(ctx context.Context, postID string) error
}

//
// Handler wiring
//

// Handlers groups the admin API endpoints for accounts, proxies, tracking,
// and stats. It depends on abstract service interfaces to keep transport
// concerns separate from pool logic.
type Handlers struct {
	accounts AccountPool
	proxies  ProxyAdmin
	tracking TrackingAdmin
	stats    StatsSource
}

// New constructs a Handlers instance bound to the given services.
func New(accounts AccountPool, proxies ProxyAdmin, tracking TrackingAdmin, stats StatsSource) *Handlers {
	return &Handlers{accounts: accounts, proxies: proxies, tracking: tracking, stats: stats}
}

//
// DTOs
//

// AddAccountRequest is the JSON payload for registering a credential.
// Secrets arrive through this request type only; responses never echo them.
type AddAccountRequest struct {
	Username     string `json:"username" binding:"required"`
	Password     string `json:"password" binding:"required"`
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
	UserAgent    string `json:"user_agent"`
}

// ListAccountsResponse wraps the credential listing.
type ListAccountsResponse struct {
	Accounts []domain.RedditCredential `json:"accounts"`
	Count    int                       `json:"count"`
}

//
// Handlers
//

// AddAccount registers a new credential or refreshes an existing username.
func (h *Handlers) AddAccount(c *gin.Context) {
	var req AddAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username, password, client_id and client_secret are required")
		return
	}

	cred := domain.RedditCredential{
		Username:     strings.TrimSpace(req.Username),
		Password:     req.Password,
		ClientID:     strings.TrimSpace(req.ClientID),
		ClientSecret: req.ClientSecret,
		UserAgent:    strings.TrimSpace(req.UserAgent),
	}
	if err := h.accounts.Add(c.Request.Context(), cred); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	ok(c, http.StatusCreated, gin.H{"username": cred.Username})
}

// ListAccounts returns every pooled credential with secrets redacted.
func (h *Handlers) ListAccounts(c *gin.Context) {
	accounts, err := h.accounts.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ListAccountsResponse{Accounts: accounts, Count: len(accounts)})
}

// DisableAccount soft-disables a credential. The row is kept for auditing.
func (h *Handlers) DisableAccount(c *gin.Context) {
	username := strings.TrimSpace(c.Param("username"))
	if username == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username is required")
		return
	}

	if err := h.accounts.Disable(c.Request.Context(), username); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "account not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}
