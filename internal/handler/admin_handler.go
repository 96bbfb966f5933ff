package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"visitor-counter/internal/domain"
	"visitor-counter/internal/service"
	"visitor-counter/pkg/errors"
	"visitor-counter/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// Admin input bounds
const (
	MinUpdateInterval = 10
	MaxUpdateInterval = 300
	maxBodyBytes      = 1 << 16
)

// AdminHandler handles counter administration. Access control is left to
// the gateway in front of this service.
type AdminHandler struct {
	counter     service.CounterService
	maintenance service.MaintenanceService
	logger      *logger.Logger
	now         func() time.Time
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(services *service.Services, logger *logger.Logger) *AdminHandler {
	return &AdminHandler{
		counter:     services.Counter,
		maintenance: services.Maintenance,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CleanupResponse is returned by POST /admin/cleanup
type CleanupResponse struct {
	Success         bool   `json:"success"`
	CleanedSessions int64  `json:"cleaned_sessions"`
	Message         string `json:"message"`
}

// GetSettings handles GET /admin/settings
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.counter.GetOrCreateSettings(r.Context(), h.now())
	if err != nil {
		respondError(w, r, errors.AsAppError(err, "Failed to get settings"), h.logger)
		return
	}

	respondJSON(w, http.StatusOK, &DataResponse{
		Success: true,
		Data:    settings,
		Message: "Settings retrieved successfully",
	}, h.logger)
}

// UpdateSettings handles PUT /admin/settings
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	fields, appErr := decodeObject(r)
	if appErr != nil {
		respondError(w, r, appErr, h.logger)
		return
	}

	var minBase, maxBase int
	interval := domain.DefaultIntervalSeconds

	hasMin, appErr := intField(fields, "min_base_count", &minBase)
	if appErr != nil {
		respondError(w, r, appErr, h.logger)
		return
	}
	hasMax, appErr := intField(fields, "max_base_count", &maxBase)
	if appErr != nil {
		respondError(w, r, appErr, h.logger)
		return
	}
	if _, appErr := intField(fields, "update_interval", &interval); appErr != nil {
		respondError(w, r, appErr, h.logger)
		return
	}

	if appErr := validateSettings(hasMin, hasMax, minBase, maxBase, interval); appErr != nil {
		respondError(w, r, appErr, h.logger)
		return
	}

	settings, err := h.counter.UpdateSettings(r.Context(), minBase, maxBase, interval, h.now())
	if err != nil {
		respondError(w, r, errors.AsAppError(err, "Failed to update settings"), h.logger)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"min_base_count":  settings.MinBase,
		"max_base_count":  settings.MaxBase,
		"update_interval": settings.RefreshIntervalSeconds,
	}).Info("Counter settings updated")

	respondJSON(w, http.StatusOK, &DataResponse{
		Success: true,
		Data:    settings,
		Message: "Settings updated successfully",
	}, h.logger)
}

// Toggle handles POST /admin/toggle
func (h *AdminHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	fields, appErr := decodeObject(r)
	if appErr != nil {
		respondError(w, r, appErr, h.logger)
		return
	}

	var enabled bool
	present, appErr := boolField(fields, "is_active", &enabled)
	if appErr != nil {
		respondError(w, r, appErr, h.logger)
		return
	}
	if !present {
		respondError(w, r, errors.NewValidationError("is_active is required", map[string]interface{}{
			"field": "is_active",
		}), h.logger)
		return
	}

	settings, err := h.counter.SetEnabled(r.Context(), enabled, h.now())
	if err != nil {
		respondError(w, r, errors.AsAppError(err, "Failed to toggle counter"), h.logger)
		return
	}

	message := "Counter disabled successfully"
	if settings.Enabled {
		message = "Counter enabled successfully"
	}
	h.logger.WithField("is_active", settings.Enabled).Info("Counter toggled")

	respondJSON(w, http.StatusOK, &DataResponse{
		Success: true,
		Data:    settings,
		Message: message,
	}, h.logger)
}

// Cleanup handles POST /admin/cleanup
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.maintenance.SweepStaleSessions(r.Context(), h.now())
	if err != nil {
		respondError(w, r, errors.AsAppError(err, "Failed to clean up sessions"), h.logger)
		return
	}

	h.logger.WithField("cleaned_sessions", n).Info("Stale sessions cleaned up")

	respondJSON(w, http.StatusOK, &CleanupResponse{
		Success:         true,
		CleanedSessions: n,
		Message:         fmt.Sprintf("Cleaned up %d old sessions", n),
	}, h.logger)
}

// RegisterRoutes registers the admin routes
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)
		r.Post("/toggle", h.Toggle)
		r.Post("/cleanup", h.Cleanup)
	})
}

func validateSettings(hasMin, hasMax bool, minBase, maxBase, interval int) *errors.AppError {
	switch {
	case !hasMin || !hasMax:
		return errors.NewValidationError("min_base_count and max_base_count are required", nil)
	case minBase >= maxBase:
		return errors.NewValidationError("min_base_count must be less than max_base_count", map[string]interface{}{
			"min_base_count": minBase,
			"max_base_count": maxBase,
		})
	case minBase < 0 || maxBase < 0:
		return errors.NewValidationError("Counts must be non-negative", nil)
	case interval < MinUpdateInterval || interval > MaxUpdateInterval:
		return errors.NewValidationError(
			fmt.Sprintf("update_interval must be between %d and %d seconds", MinUpdateInterval, MaxUpdateInterval),
			map[string]interface{}{"update_interval": interval})
	}
	return nil
}

// decodeObject reads a non-empty JSON object body
func decodeObject(r *http.Request) (map[string]json.RawMessage, *errors.AppError) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.NewValidationError("Failed to read request body", nil)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.NewValidationError("No data provided", nil)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, errors.NewValidationError("Request body must be a JSON object", nil)
	}
	if len(fields) == 0 {
		return nil, errors.NewValidationError("No data provided", nil)
	}
	return fields, nil
}

// intField decodes an integer field. Absent and null both report not present.
func intField(fields map[string]json.RawMessage, key string, dst *int) (bool, *errors.AppError) {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, errors.NewValidationError(key+" must be an integer", map[string]interface{}{"field": key})
	}
	return true, nil
}

// boolField decodes a boolean field. Absent and null both report not present.
func boolField(fields map[string]json.RawMessage, key string, dst *bool) (bool, *errors.AppError) {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, errors.NewValidationError(key+" must be true or false", map[string]interface{}{"field": key})
	}
	return true, nil
}
