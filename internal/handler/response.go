package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"visitor-counter/internal/middleware"
	"visitor-counter/pkg/errors"
	"visitor-counter/pkg/logger"
)

// DataResponse wraps a payload in the success envelope
type DataResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}, log *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

// respondError writes the error envelope. Server-side failures are logged
// with their cause; the cause never reaches the client.
func respondError(w http.ResponseWriter, r *http.Request, appErr *errors.AppError, log *logger.Logger) {
	requestID := middleware.GetRequestID(r.Context())

	if appErr.StatusCode >= http.StatusInternalServerError {
		log.WithError(appErr).WithFields(map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": requestID,
		}).Error("Request failed")
	}

	respondJSON(w, appErr.StatusCode, &errors.ErrorResponse{
		Success: false,
		Error: errors.ErrorBody{
			Type:      appErr.Type,
			Message:   appErr.Message,
			Details:   appErr.Details,
			RequestID: requestID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}, log)
}
