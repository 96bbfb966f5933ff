package handler

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"visitor-counter/internal/domain"
	"visitor-counter/internal/service"
	"visitor-counter/pkg/errors"
	"visitor-counter/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// ServiceName identifies this service in health responses
const ServiceName = "visitor-counter"

// SessionCookie controls the cookie that carries the session key
type SessionCookie struct {
	Name   string
	Secure bool
	MaxAge int
}

// VisitorHandler handles the public counter endpoints
type VisitorHandler struct {
	counter service.CounterService
	tracker service.TrackerService
	limiter service.RateLimiter
	cookie  SessionCookie
	logger  *logger.Logger
	now     func() time.Time

	// trustProxy enables forwarded client address headers
	trustProxy bool
}

// NewVisitorHandler creates a new visitor handler. Forwarded address headers
// are only read when trustProxy is set.
func NewVisitorHandler(services *service.Services, cookie SessionCookie, trustProxy bool, logger *logger.Logger) *VisitorHandler {
	return &VisitorHandler{
		counter:    services.Counter,
		tracker:    services.Tracker,
		limiter:    services.RateLimiter,
		cookie:     cookie,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		trustProxy: trustProxy,
	}
}

// CountResponse is returned by GET /count
type CountResponse struct {
	Success bool   `json:"success"`
	Count   int64  `json:"count"`
	Message string `json:"message"`
}

// TrackResponse is returned by POST /track
type TrackResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// HealthResponse is returned by GET /health under the API prefix
type HealthResponse struct {
	Success       bool   `json:"success"`
	Service       string `json:"service"`
	Status        string `json:"status"`
	CounterActive bool   `json:"counter_active"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
}

// GetCount handles GET /count. The caller's visit is tracked first; a
// rate limited caller still gets the count, only untracked.
func (h *VisitorHandler) GetCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	origin := getRealIPAddress(r, h.trustProxy)
	rateLimitInfo := h.limiter.Allow(ctx, origin, now)
	setRateLimitHeaders(w, rateLimitInfo)

	if rateLimitInfo.IsAllowed {
		if _, err := h.track(w, r, origin, now); err != nil {
			respondError(w, r, errors.AsAppError(err, "Failed to track visitor"), h.logger)
			return
		}
	}

	count, err := h.counter.DisplayedCount(ctx, now)
	if err != nil {
		respondError(w, r, errors.AsAppError(err, "Failed to get visitor count"), h.logger)
		return
	}

	respondJSON(w, http.StatusOK, &CountResponse{
		Success: true,
		Count:   count,
		Message: "Visitor count retrieved successfully",
	}, h.logger)
}

// Track handles POST /track
func (h *VisitorHandler) Track(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	origin := getRealIPAddress(r, h.trustProxy)

	rateLimitInfo := h.limiter.Allow(r.Context(), origin, now)
	setRateLimitHeaders(w, rateLimitInfo)

	if !rateLimitInfo.IsAllowed {
		appErr := errors.NewRateLimitError("Rate limit exceeded. Please try again later.")
		appErr.Details = map[string]interface{}{"rate_limit": rateLimitInfo}
		respondError(w, r, appErr, h.logger)
		return
	}

	session, err := h.track(w, r, origin, now)
	if err != nil {
		respondError(w, r, errors.AsAppError(err, "Failed to track visitor"), h.logger)
		return
	}

	respondJSON(w, http.StatusOK, &TrackResponse{
		Success:   true,
		SessionID: session.SessionKey,
		Message:   "Visitor tracked successfully",
	}, h.logger)
}

// GetStatistics handles GET /statistics
func (h *VisitorHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.counter.Statistics(r.Context(), h.now())
	if err != nil {
		respondError(w, r, errors.AsAppError(err, "Failed to get statistics"), h.logger)
		return
	}

	respondJSON(w, http.StatusOK, &DataResponse{
		Success: true,
		Data:    snapshot,
		Message: "Statistics retrieved successfully",
	}, h.logger)
}

// HealthCheck handles GET /health under the API prefix
func (h *VisitorHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	settings, err := h.counter.GetOrCreateSettings(r.Context(), h.now())
	if err != nil {
		h.logger.WithError(err).Error("Counter health check failed")
		respondJSON(w, http.StatusInternalServerError, &HealthResponse{
			Success: false,
			Service: ServiceName,
			Status:  "unhealthy",
			Error:   "store unavailable",
		}, h.logger)
		return
	}

	respondJSON(w, http.StatusOK, &HealthResponse{
		Success:       true,
		Service:       ServiceName,
		Status:        "healthy",
		CounterActive: settings.Enabled,
		Message:       "Service is running normally",
	}, h.logger)
}

// track records the visit and round-trips the session key in a cookie.
// A cookie that is not one of our keys is ignored and replaced.
func (h *VisitorHandler) track(w http.ResponseWriter, r *http.Request, origin string, now time.Time) (*domain.VisitorSession, error) {
	var key string
	if c, err := r.Cookie(h.cookie.Name); err == nil && service.IsSessionKey(c.Value) {
		key = c.Value
	}

	session, err := h.tracker.Track(r.Context(), key, origin, r.UserAgent(), now)
	if err != nil {
		return nil, err
	}

	if session.SessionKey != key {
		http.SetCookie(w, &http.Cookie{
			Name:     h.cookie.Name,
			Value:    session.SessionKey,
			Path:     "/",
			MaxAge:   h.cookie.MaxAge,
			HttpOnly: true,
			Secure:   h.cookie.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}

	return session, nil
}

// getRealIPAddress extracts the real IP address from the request. Proxy
// headers are client controlled, so they count only behind a trusted proxy.
func getRealIPAddress(r *http.Request, trustProxy bool) string {
	if trustProxy {
		// Check for IP in various headers (in order of preference)
		headers := []string{
			"CF-Connecting-IP", // Cloudflare
			"X-Forwarded-For",  // Standard proxy header
			"X-Real-IP",        // Nginx proxy
			"X-Client-IP",      // Apache proxy
		}

		for _, header := range headers {
			// X-Forwarded-For can contain multiple IPs, take the first one
			first, _, _ := strings.Cut(r.Header.Get(header), ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	// Fall back to RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers
func setRateLimitHeaders(w http.ResponseWriter, info *domain.RateLimitInfo) {
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(info.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(info.Remaining(), 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
}

// RegisterRoutes registers the public counter routes
func (h *VisitorHandler) RegisterRoutes(r chi.Router) {
	r.Get("/count", h.GetCount)
	r.Post("/track", h.Track)
	r.Get("/statistics", h.GetStatistics)
	r.Get("/health", h.HealthCheck)
}
