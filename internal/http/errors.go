package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kjstillabower/crop-advisory-service/internal/client"
	"github.com/kjstillabower/crop-advisory-service/internal/observability"
	"github.com/kjstillabower/crop-advisory-service/internal/validation"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the {"error":{code,message,requestId}} envelope.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{
		"error": {Code: code, Message: message, RequestID: observability.CorrelationID(r.Context())},
	})
}

// writeServiceError maps a weather lookup failure to a status and error code.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	category := string(client.CategorizeError(err))
	status, code, message := classify(r.Context(), err)
	observability.HTTPErrorsTotal.WithLabelValues(code, category).Inc()

	logger := observability.LoggerOrNop(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Sugar().Warnw("weather request failed", "code", code, "category", category, "error", err)
	} else {
		logger.Sugar().Debugw("weather request rejected", "code", code, "error", err)
	}
	writeError(w, r, status, code, message)
}

func classify(ctx context.Context, err error) (int, string, string) {
	var verr *validation.ValidationError
	switch {
	case errors.Is(err, client.ErrLocationNotFound):
		return http.StatusNotFound, "LOCATION_NOT_FOUND", "Location not found"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, client.ErrTimeout), ctx.Err() == context.DeadlineExceeded:
		return http.StatusGatewayTimeout, "TIMEOUT", "Weather provider timed out"
	case errors.As(err, &verr):
		return http.StatusBadGateway, "INVALID_UPSTREAM_DATA", "Weather provider returned an invalid snapshot"
	default:
		return http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Weather service temporarily unavailable"
	}
}
