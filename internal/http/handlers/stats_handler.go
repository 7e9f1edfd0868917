// Stats and tracking-ledger HTTP handlers.
//
//   - GET    /stats               (pool + storage aggregates)
//   - GET    /tracking/stats      (ledger aggregates)
//   - POST   /tracking            (enqueue a post)
//   - DELETE /tracking/{post_id}  (deactivate a ledger entry)
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/repo"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/services"
)

// StatsSource reads storage aggregates for the stats endpoints.
type StatsSource interface {
	Storage(ctx context.Context) (repo.StorageStats, error)
}

// StatsResponse is the combined health snapshot served at /stats.
type StatsResponse struct {
	Accounts repo.PoolStats    `json:"accounts"`
	Proxies  repo.PoolStats    `json:"proxies"`
	Storage  repo.StorageStats `json:"storage"`
}

// TrackRequest is the JSON payload for enqueueing a post.
type TrackRequest struct {
	PostID    string `json:"post_id" binding:"required"`
	Subreddit string `json:"subreddit"`
}

// GetStats returns pool health for both pools plus storage counts.
func (h *Handlers) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	accountStats, err := h.accounts.Stats(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	proxyStats, err := h.proxies.Stats(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	storage, err := h.stats.Storage(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	ok(c, http.StatusOK, StatsResponse{
		Accounts: accountStats,
		Proxies:  proxyStats,
		Storage:  storage,
	})
}

// GetTrackingStats returns ledger aggregates.
func (h *Handlers) GetTrackingStats(c *gin.Context) {
	storage, err := h.stats.Storage(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{
		"active_tracking": storage.ActiveTracking,
		"total_entities":  storage.TotalEntities,
	})
}

// TrackPost enqueues a post into the comment-tracking ledger. Re-tracking
// an already ledgered post re-arms its deadline.
func (h *Handlers) TrackPost(c *gin.Context) {
	var req TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "post_id is required")
		return
	}

	postID := strings.TrimSpace(req.PostID)
	if err := h.tracking.Track(c.Request.Context(), postID, req.Subreddit); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	ok(c, http.StatusCreated, gin.H{"post_id": postID})
}

// UntrackPost deactivates a ledger entry without deleting its history.
func (h *Handlers) UntrackPost(c *gin.Context) {
	postID := strings.TrimSpace(c.Param("post_id"))
	if postID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "post_id is required")
		return
	}

	if err := h.tracking.Untrack(c.Request.Context(), postID); err != nil {
		if errors.Is(err, services.ErrTrackingNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "tracking entry not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}
