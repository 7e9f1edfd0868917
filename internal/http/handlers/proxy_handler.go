// Proxy pool HTTP handlers.
//
//   - POST   /proxies      (add)
//   - GET    /proxies      (list, passwords redacted)
//   - DELETE /proxies/{id} (soft-disable)
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/repo"
)

// AddProxyRequest is the JSON payload for registering a proxy endpoint.
type AddProxyRequest struct {
	Host     string `json:"host" binding:"required"`
	Port     int    `json:"port" binding:"required"`
	Protocol string `json:"protocol"`
	Username string `json:"username"`
	Password string `json:"password"`
	Country  string `json:"country"`
}

// ListProxiesResponse wraps the proxy listing.
type ListProxiesResponse struct {
	Proxies []domain.ProxyEndpoint `json:"proxies"`
	Count   int                    `json:"count"`
}

// AddProxy registers a new proxy endpoint and returns its id.
func (h *Handlers) AddProxy(c *gin.Context) {
	var req AddProxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "host and port are required")
		return
	}

	proxy := domain.ProxyEndpoint{
		Host:     strings.TrimSpace(req.Host),
		Port:     req.Port,
		Protocol: strings.ToLower(strings.TrimSpace(req.Protocol)),
		Username: req.Username,
		Password: req.Password,
		Country:  strings.TrimSpace(req.Country),
	}
	id, err := h.proxies.Add(c.Request.Context(), proxy)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	ok(c, http.StatusCreated, gin.H{"id": id})
}

// ListProxies returns every pooled proxy with passwords redacted.
func (h *Handlers) ListProxies(c *gin.Context) {
	proxies, err := h.proxies.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ListProxiesResponse{Proxies: proxies, Count: len(proxies)})
}

// DisableProxy soft-disables a proxy by row id.
func (h *Handlers) DisableProxy(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "proxy id must be a positive integer")
		return
	}

	if err := h.proxies.Disable(c.Request.Context(), uint(id)); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "proxy not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}
