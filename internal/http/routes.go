package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/crop-advisory-service/internal/observability"
)

// NewRouter wires routes and middleware. Data routes are rate limited and
// bounded by requestTimeout; /health and /metrics are not.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	r := mux.NewRouter()
	r.Use(CorrelationIDMiddleware(logger))
	r.Use(MetricsMiddleware)

	r.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(RateLimitMiddleware(limiter))
	api.Use(TimeoutMiddleware(requestTimeout))

	api.HandleFunc("/weather", h.GetWeather).Methods(http.MethodGet)
	api.HandleFunc("/weather/{location}", h.GetWeather).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{location}", h.GetAlerts).Methods(http.MethodGet)
	api.HandleFunc("/irrigation/{location}", h.GetIrrigation).Methods(http.MethodGet)
	api.HandleFunc("/pests/{location}", h.GetPests).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/{location}", h.GetDashboard).Methods(http.MethodGet)
	api.HandleFunc("/evaluate", h.PostEvaluate).Methods(http.MethodPost)
	api.HandleFunc("/advisory", h.PostAdvisory).Methods(http.MethodPost)
	api.HandleFunc("/quick-summary", h.PostQuickSummary).Methods(http.MethodPost)
	return r
}
