package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"visitor-counter/internal/config"
	"visitor-counter/internal/container"
	"visitor-counter/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	container *container.Container
	router    *chi.Mux
}

func newTestServer(t *testing.T, opts ...func(*config.Config)) *testServer {
	t.Helper()

	cfg := &config.Config{
		Port:                "8080",
		AllowedOrigins:      []string{"*"},
		Environment:         "test",
		DatabaseURL:         ":memory:",
		AutoMigrate:         true,
		TrackRateLimit:      120,
		SessionCookieName:   "visitor_session_id",
		SessionCookieMaxAge: 3600,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	c, err := container.New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return &testServer{container: c, router: NewRouter(c)}
}

func withRedis(t *testing.T, limit int) func(*config.Config) {
	mr := miniredis.RunT(t)
	return func(cfg *config.Config) {
		cfg.RedisURL = "redis://" + mr.Addr()
		cfg.TrackRateLimit = limit
	}
}

func (s *testServer) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("User-Agent", "handler-test")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "visitor_session_id" {
			return c
		}
	}
	return nil
}

func errorType(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	errBody, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "error envelope expected")
	return errBody["type"].(string)
}

func TestGetCount(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, APIPrefix+"/count", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["message"])
	count := body["count"].(float64)
	assert.GreaterOrEqual(t, count, float64(1000))
	assert.LessOrEqual(t, count, float64(1501))

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie, "first visit issues a session cookie")
	assert.Len(t, cookie.Value, 64)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 3600, cookie.MaxAge)

	// Returning visitor keeps the cookie and bumps page views.
	rec = s.do(t, http.MethodGet, APIPrefix+"/count", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, sessionCookie(rec))

	session, err := s.container.Repositories.Sessions.GetByKey(context.Background(), cookie.Value)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, 2, session.PageViews)
	assert.Equal(t, "handler-test", session.ClientDescriptor)
}

func TestTrack(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, APIPrefix+"/track", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, cookie.Value, body["session_id"])
	assert.Equal(t, "120", rec.Header().Get("X-RateLimit-Limit"))

	rec = s.do(t, http.MethodPost, APIPrefix+"/track", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cookie.Value, decode(t, rec)["session_id"])
}

func TestGetCount_ForeignCookieIsReplaced(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"oversized", strings.Repeat("a", 300)},
		{"right length but not hex", strings.Repeat("z", 64)},
		{"short", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			ctx := context.Background()

			rec := s.do(t, http.MethodGet, APIPrefix+"/count", "", &http.Cookie{Name: "visitor_session_id", Value: tt.value})
			require.Equal(t, http.StatusOK, rec.Code)

			cookie := sessionCookie(rec)
			require.NotNil(t, cookie, "a fresh key is issued")
			assert.Len(t, cookie.Value, 64)
			assert.NotEqual(t, tt.value, cookie.Value)

			stored, err := s.container.Repositories.Sessions.GetByKey(ctx, tt.value)
			require.NoError(t, err)
			assert.Nil(t, stored, "the presented value is never stored")

			session, err := s.container.Repositories.Sessions.GetByKey(ctx, cookie.Value)
			require.NoError(t, err)
			require.NotNil(t, session)
			assert.Equal(t, 1, session.PageViews)

			// The reissued cookie is honoured on the next visit.
			rec = s.do(t, http.MethodPost, APIPrefix+"/track", "", cookie)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, cookie.Value, decode(t, rec)["session_id"])
			assert.Nil(t, sessionCookie(rec))
		})
	}
}

func TestTrack_RateLimited(t *testing.T) {
	s := newTestServer(t, withRedis(t, 1))
	require.True(t, s.container.HasRedis())

	rec := s.do(t, http.MethodPost, APIPrefix+"/track", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = s.do(t, http.MethodPost, APIPrefix+"/track", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "rate_limit", errorType(t, body))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	// Count still answers, without tracking.
	rec = s.do(t, http.MethodGet, APIPrefix+"/count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, sessionCookie(rec))
	assert.Equal(t, true, decode(t, rec)["success"])
}

func TestGetStatistics(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPost, APIPrefix+"/track", "")

	rec := s.do(t, http.MethodGet, APIPrefix+"/statistics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["active_visitors"])
	assert.Equal(t, float64(1), data["today_visitors"])
	assert.Contains(t, data, "current_display_count")
	assert.Contains(t, data, "base_count")

	settings := data["settings"].(map[string]interface{})
	assert.Equal(t, float64(1000), settings["min_base_count"])
	assert.Equal(t, true, settings["is_active"])

	weekly := data["weekly_stats"].([]interface{})
	require.Len(t, weekly, 1)
	today := weekly[0].(map[string]interface{})
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, today["date"])
	assert.Equal(t, float64(1), today["unique_visitors"])
}

func TestAdminSettings(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, APIPrefix+"/admin/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["id"])
	assert.Equal(t, float64(1500), data["max_base_count"])
	assert.Equal(t, float64(30), data["update_interval"])

	rec = s.do(t, http.MethodPut, APIPrefix+"/admin/settings",
		`{"min_base_count": 2000, "max_base_count": 3000, "update_interval": 45}`)
	require.Equal(t, http.StatusOK, rec.Code)
	data = decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, float64(2000), data["min_base_count"])
	assert.Equal(t, float64(3000), data["max_base_count"])
	assert.Equal(t, float64(45), data["update_interval"])
	current := data["current_base_count"].(float64)
	assert.GreaterOrEqual(t, current, float64(2000))
	assert.LessOrEqual(t, current, float64(3000))

	rec = s.do(t, http.MethodGet, APIPrefix+"/count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.GreaterOrEqual(t, decode(t, rec)["count"].(float64), float64(2000))

	// Interval defaults when omitted.
	rec = s.do(t, http.MethodPut, APIPrefix+"/admin/settings", `{"min_base_count": 5, "max_base_count": 10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(30), decode(t, rec)["data"].(map[string]interface{})["update_interval"])
}

func TestAdminSettings_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"empty object", `{}`},
		{"not an object", `[1, 2]`},
		{"malformed json", `{"min_base_count": `},
		{"missing max", `{"min_base_count": 1000}`},
		{"null min", `{"min_base_count": null, "max_base_count": 1500}`},
		{"min equals max", `{"min_base_count": 1500, "max_base_count": 1500}`},
		{"min above max", `{"min_base_count": 2000, "max_base_count": 1000}`},
		{"negative min", `{"min_base_count": -5, "max_base_count": 10}`},
		{"interval too short", `{"min_base_count": 1, "max_base_count": 10, "update_interval": 9}`},
		{"interval too long", `{"min_base_count": 1, "max_base_count": 10, "update_interval": 301}`},
		{"string count", `{"min_base_count": "1", "max_base_count": 10}`},
		{"fractional count", `{"min_base_count": 1.5, "max_base_count": 10}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPut, APIPrefix+"/admin/settings", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "validation", errorType(t, body))
		})
	}

	// Nothing was stored.
	rec := s.do(t, http.MethodGet, APIPrefix+"/admin/settings", "")
	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, float64(1000), data["min_base_count"])
}

func TestAdminSettings_BoundaryIntervals(t *testing.T) {
	s := newTestServer(t)

	for _, interval := range []string{"10", "300"} {
		rec := s.do(t, http.MethodPut, APIPrefix+"/admin/settings",
			`{"min_base_count": 0, "max_base_count": 1, "update_interval": `+interval+`}`)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func TestAdminToggle(t *testing.T) {
	s := newTestServer(t)

	invalid := []string{"", `{}`, `{"enabled": false}`, `{"is_active": "yes"}`, `{"is_active": 0}`, `{"is_active": null}`}
	for _, body := range invalid {
		rec := s.do(t, http.MethodPost, APIPrefix+"/admin/toggle", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}

	rec := s.do(t, http.MethodPost, APIPrefix+"/admin/toggle", `{"is_active": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["data"].(map[string]interface{})["is_active"])
	assert.Equal(t, "Counter disabled successfully", body["message"])

	// One tracked visitor and no base.
	rec = s.do(t, http.MethodGet, APIPrefix+"/count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	rec = s.do(t, http.MethodGet, APIPrefix+"/health", "")
	assert.Equal(t, false, decode(t, rec)["counter_active"])

	rec = s.do(t, http.MethodPost, APIPrefix+"/admin/toggle", `{"is_active": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Counter enabled successfully", decode(t, rec)["message"])
}

func TestAdminCleanup(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPost, APIPrefix+"/track", "")

	rec := s.do(t, http.MethodPost, APIPrefix+"/admin/cleanup", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(0), body["cleaned_sessions"])
	assert.Equal(t, "Cleaned up 0 old sessions", body["message"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, APIPrefix+"/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, ServiceName, body["service"])
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["counter_active"])

	rec = s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "disabled", body["redis"])
}

func TestHealth_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.RedisURL = "redis://" + mr.Addr()
	})
	require.True(t, s.container.HasRedis())

	rec := s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["redis"])

	// Redis going away degrades rate limiting only.
	mr.Close()
	rec = s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "unhealthy", body["redis"])
}

func TestHealth_StoreDown(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.container.SQLite.Close())

	rec := s.do(t, http.MethodGet, APIPrefix+"/health", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "unhealthy", body["status"])

	rec = s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decode(t, rec)["status"])

	rec = s.do(t, http.MethodGet, APIPrefix+"/count", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "store", errorType(t, body))
	assert.NotContains(t, rec.Body.String(), "sql: database is closed", "store details stay server side")
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, APIPrefix+"/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorType(t, decode(t, rec)))

	rec = s.do(t, http.MethodGet, "/api/other", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorType(t, decode(t, rec)))

	rec = s.do(t, http.MethodDelete, APIPrefix+"/count", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "method_not_allowed", errorType(t, decode(t, rec)))

	rec = s.do(t, http.MethodGet, APIPrefix+"/admin/toggle", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "method_not_allowed", errorType(t, decode(t, rec)))
}

func TestStaticFallback(t *testing.T) {
	t.Run("banner without static dir", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodGet, "/", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, Banner, rec.Body.String())

		rec = s.do(t, http.MethodGet, "/some/page", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, Banner, rec.Body.String())
	})

	t.Run("files then index", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>counter</h1>"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))

		s := newTestServer(t, func(cfg *config.Config) { cfg.StaticDir = dir })

		rec := s.do(t, http.MethodGet, "/app.js", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "console.log(1)", rec.Body.String())

		rec = s.do(t, http.MethodGet, "/dashboard", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "<h1>counter</h1>", rec.Body.String())

		rec = s.do(t, http.MethodGet, "/", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "<h1>counter</h1>", rec.Body.String())

		rec = s.do(t, http.MethodGet, "/../../etc/passwd", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "<h1>counter</h1>", rec.Body.String())
	})

	t.Run("empty dir falls back to banner", func(t *testing.T) {
		s := newTestServer(t, func(cfg *config.Config) { cfg.StaticDir = t.TempDir() })

		rec := s.do(t, http.MethodGet, "/missing.css", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, Banner, rec.Body.String())
	})
}

func TestGetRealIPAddress(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remote     string
		trustProxy bool
		expected   string
	}{
		{"cloudflare header wins", map[string]string{"CF-Connecting-IP": "203.0.113.1", "X-Forwarded-For": "198.51.100.1"}, "192.0.2.1:1234", true, "203.0.113.1"},
		{"first forwarded address", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, "192.0.2.1:1234", true, "198.51.100.1"},
		{"real ip header", map[string]string{"X-Real-IP": "198.51.100.2"}, "192.0.2.1:1234", true, "198.51.100.2"},
		{"empty forwarded entry skipped", map[string]string{"X-Forwarded-For": " , 10.0.0.1", "X-Real-IP": "198.51.100.3"}, "192.0.2.1:1234", true, "198.51.100.3"},
		{"headers ignored when untrusted", map[string]string{"CF-Connecting-IP": "203.0.113.1", "X-Forwarded-For": "198.51.100.1"}, "192.0.2.1:1234", false, "192.0.2.1"},
		{"remote address", nil, "192.0.2.1:1234", true, "192.0.2.1"},
		{"remote without port", nil, "192.0.2.1", false, "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, getRealIPAddress(req, tt.trustProxy))
		})
	}
}

func TestTrack_RateLimitIdentity(t *testing.T) {
	trackFrom := func(s *testServer, forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, APIPrefix+"/track", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("rotating forwarded header does not reset the limit", func(t *testing.T) {
		s := newTestServer(t, withRedis(t, 1))

		assert.Equal(t, http.StatusOK, trackFrom(s, "198.51.100.1"))
		assert.Equal(t, http.StatusTooManyRequests, trackFrom(s, "198.51.100.2"))
	})

	t.Run("trusted proxy separates forwarded clients", func(t *testing.T) {
		s := newTestServer(t, withRedis(t, 1), func(cfg *config.Config) {
			cfg.TrustProxyHeaders = true
		})

		assert.Equal(t, http.StatusOK, trackFrom(s, "198.51.100.1"))
		assert.Equal(t, http.StatusOK, trackFrom(s, "198.51.100.2"))
		assert.Equal(t, http.StatusTooManyRequests, trackFrom(s, "198.51.100.1"))
	})
}
