package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/config"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/http/handlers"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/repo"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/services"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestEngine(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()

	db := newTestDB(t)
	tracker := services.NewTracker(db, nil, cfg)
	RegisterRoutes(r, Deps{
		DB:       db,
		Accounts: services.NewCredentialPool(db, cfg),
		Proxies:  services.NewProxyPool(db, cfg),
		Tracking: tracker,
	}, cfg)
	return r
}

func baseConfig() config.Config {
	return config.Config{
		RateRPS:   100,
		RateBurst: 10,
		OTEL:      config.OTELConfig{ServiceName: "test-svc"},
	}
}

func TestRegisterRoutes_HealthMetricsFallbacks(t *testing.T) {
	r := newTestEngine(t, baseConfig())

	// /healthz works and the AllowAllOrigins branch serves it
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	// httptest.NewRequest defaults the host to example.com; the Origin must
	// differ or gin-contrib/cors treats the request as same-origin and skips
	// the CORS headers entirely.
	req.Header.Set("Origin", "http://client.example")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// unknown route gets the structured envelope
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope = %d", w.Code)
	}
	var er handlers.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v", err)
	}
	if er.Code != handlers.ErrCodeNotFound {
		t.Fatalf("code=%q, want %q", er.Code, handlers.ErrCodeNotFound)
	}

	// wrong method on a known route
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/v1/accounts", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("PUT /api/v1/accounts = %d", w.Code)
	}
}

func TestRegisterRoutes_AccountLifecycle(t *testing.T) {
	r := newTestEngine(t, baseConfig())

	body := `{"username":"miner1","password":"pw","client_id":"cid","client_secret":"cs"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts", bytes.NewBufferString(body))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /accounts = %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /accounts = %d", w.Code)
	}
	var listing handlers.ListAccountsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("json: %v", err)
	}
	if listing.Count != 1 || listing.Accounts[0].Username != "miner1" {
		t.Fatalf("unexpected listing: %+v", listing)
	}
	if bytes.Contains(w.Body.Bytes(), []byte(`"pw"`)) {
		t.Fatalf("password leaked: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/accounts/miner1", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("DELETE /accounts/miner1 = %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/accounts/ghost", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("DELETE /accounts/ghost = %d", w.Code)
	}
}

func TestRegisterRoutes_StatsAndTracking(t *testing.T) {
	r := newTestEngine(t, baseConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tracking", bytes.NewBufferString(`{"post_id":"abc123","subreddit":"golang"}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /tracking = %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /stats = %d: %s", w.Code, w.Body.String())
	}
	var stats handlers.StatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("json: %v", err)
	}
	if stats.Storage.ActiveTracking != 1 {
		t.Fatalf("active tracking = %d, want 1", stats.Storage.ActiveTracking)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/tracking/stats", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /tracking/stats = %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/tracking/abc123", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("DELETE /tracking/abc123 = %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/tracking/abc123", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second DELETE /tracking/abc123 = %d", w.Code)
	}
}

func TestRegisterRoutes_AllowlistCORS(t *testing.T) {
	cfg := baseConfig()
	cfg.AllowedOrigins = []string{"http://ops.internal"}
	r := newTestEngine(t, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://ops.internal")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://ops.internal" {
		t.Fatalf("expected allowlisted origin echoed, got %q", got)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected ACAO for disallowed origin: %q", got)
	}
}
