package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/crop-advisory-service/internal/advisory"
	"github.com/kjstillabower/crop-advisory-service/internal/client"
	"github.com/kjstillabower/crop-advisory-service/internal/crops"
	"github.com/kjstillabower/crop-advisory-service/internal/models"
	"github.com/kjstillabower/crop-advisory-service/internal/observability"
	"github.com/kjstillabower/crop-advisory-service/internal/service"
	"github.com/kjstillabower/crop-advisory-service/internal/traffic"
	"github.com/kjstillabower/crop-advisory-service/internal/validation"
)

// maxBodyBytes caps POST bodies.
const maxBodyBytes = 64 << 10

// Advisor is satisfied by advisory.Advisor. Neither method fails; both fall
// back to fixed payloads.
type Advisor interface {
	Advise(ctx context.Context, req advisory.AdvisoryRequest) models.AdvisoryPayload
	Summarize(ctx context.Context, req advisory.SummaryRequest) models.QuickSummary
}

// Deps are the collaborators a Handler serves from.
type Deps struct {
	Weather   service.WeatherGetter
	Dashboard *service.DashboardService
	Advisor   Advisor
	Client    client.WeatherClient // health probe

	DefaultLocation   string
	DefaultCrop       string
	LocationMinLength int
	LocationMaxLength int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	deps         Deps
	healthConfig *HealthConfig
	logger       *zap.Logger
	health       healthState
}

// NewHandler returns a new Handler.
func NewHandler(deps Deps, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.DefaultLocation == "" {
		deps.DefaultLocation = client.DefaultLocation
	}
	if deps.DefaultCrop == "" {
		deps.DefaultCrop = crops.DefaultKey
	}
	if deps.LocationMaxLength <= 0 {
		deps.LocationMaxLength = 100
	}
	return &Handler{deps: deps, healthConfig: healthConfig, logger: logger}
}

// GetWeather handles GET /weather/{location} and GET /weather?location=.
// A missing location resolves to the configured default.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	raw, ok := mux.Vars(r)["location"]
	if !ok {
		raw = r.URL.Query().Get("location")
	}
	location, ok := h.resolveLocation(w, r, raw, true)
	if !ok {
		return
	}
	snapshot, ok := h.fetchSnapshot(w, r, location)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// alertsResponse is the body of GET /alerts/{location}.
type alertsResponse struct {
	Location string           `json:"location"`
	Crop     string           `json:"crop"`
	Findings []models.Finding `json:"findings"`
	Stale    bool             `json:"stale,omitempty"`
}

// GetAlerts handles GET /alerts/{location}?crop=.
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	snapshot, crop, ok := h.snapshotAndCrop(w, r)
	if !ok {
		return
	}
	a := h.deps.Dashboard.Analyze(r.Context(), snapshot, crop)
	writeJSON(w, http.StatusOK, alertsResponse{
		Location: displayLocation(snapshot, mux.Vars(r)["location"]),
		Crop:     crop,
		Findings: nonNilFindings(a.Findings),
		Stale:    snapshot.Stale,
	})
}

// GetIrrigation handles GET /irrigation/{location}?crop=.
func (h *Handler) GetIrrigation(w http.ResponseWriter, r *http.Request) {
	snapshot, crop, ok := h.snapshotAndCrop(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Dashboard.Analyze(r.Context(), snapshot, crop).Irrigation)
}

// GetPests handles GET /pests/{location}?crop=.
func (h *Handler) GetPests(w http.ResponseWriter, r *http.Request) {
	snapshot, crop, ok := h.snapshotAndCrop(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Dashboard.Analyze(r.Context(), snapshot, crop).Pests)
}

// GetDashboard handles GET /dashboard/{location}?crop=&season=.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	location, ok := h.resolveLocation(w, r, mux.Vars(r)["location"], false)
	if !ok {
		return
	}
	crop, ok := h.resolveCrop(w, r, r.URL.Query().Get("crop"))
	if !ok {
		return
	}
	season := strings.TrimSpace(r.URL.Query().Get("season"))

	observability.RecordWeatherQuery(location)
	dash, err := h.deps.Dashboard.Build(r.Context(), location, crop, season)
	if err != nil {
		traffic.RecordError()
		writeServiceError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, dash)
}

type evaluateRequest struct {
	Weather *validation.SnapshotInput `json:"weather"`
	Crop    string                    `json:"crop"`
}

type evaluateResponse struct {
	Crop       string                    `json:"crop"`
	Findings   []models.Finding          `json:"findings"`
	Irrigation models.IrrigationEstimate `json:"irrigation"`
	Pests      models.PestAssessment     `json:"pests"`
}

// PostEvaluate handles POST /evaluate: pure rule evaluation of a submitted snapshot.
func (h *Handler) PostEvaluate(w http.ResponseWriter, r *http.Request) {
	var body evaluateRequest
	if !decodeBody(w, r, &body) {
		return
	}
	snapshot, ok := snapshotFromInput(w, r, body.Weather)
	if !ok {
		return
	}
	crop, ok := h.resolveCrop(w, r, body.Crop)
	if !ok {
		return
	}
	a := h.deps.Dashboard.Analyze(r.Context(), snapshot, crop)
	writeJSON(w, http.StatusOK, evaluateResponse{
		Crop:       crop,
		Findings:   nonNilFindings(a.Findings),
		Irrigation: a.Irrigation,
		Pests:      a.Pests,
	})
}

type advisoryBody struct {
	Weather  *validation.SnapshotInput `json:"weather"`
	CropType string                    `json:"cropType"`
	Location string                    `json:"location"`
	Season   string                    `json:"season"`
}

// PostAdvisory handles POST /advisory. Any upstream or parse failure yields
// the fallback payload with status 200.
func (h *Handler) PostAdvisory(w http.ResponseWriter, r *http.Request) {
	var body advisoryBody
	if !decodeBody(w, r, &body) {
		return
	}
	snapshot, ok := snapshotFromInput(w, r, body.Weather)
	if !ok {
		return
	}
	crop, ok := h.resolveCrop(w, r, body.CropType)
	if !ok {
		return
	}
	payload := h.deps.Advisor.Advise(r.Context(), advisory.AdvisoryRequest{
		Weather:  snapshot,
		Crop:     crop,
		Location: strings.TrimSpace(body.Location),
		Season:   strings.TrimSpace(body.Season),
	})
	writeJSON(w, http.StatusOK, payload)
}

// PostQuickSummary handles POST /quick-summary. weather, cropType and
// location are all required.
func (h *Handler) PostQuickSummary(w http.ResponseWriter, r *http.Request) {
	var body advisoryBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Weather == nil || strings.TrimSpace(body.CropType) == "" || strings.TrimSpace(body.Location) == "" {
		writeError(w, r, http.StatusBadRequest, "MISSING_FIELDS", "weather, cropType and location are required")
		return
	}
	snapshot, ok := snapshotFromInput(w, r, body.Weather)
	if !ok {
		return
	}
	crop, ok := h.resolveCrop(w, r, body.CropType)
	if !ok {
		return
	}
	summary := h.deps.Advisor.Summarize(r.Context(), advisory.SummaryRequest{
		Weather:  snapshot,
		Crop:     crop,
		Location: strings.TrimSpace(body.Location),
	})
	writeJSON(w, http.StatusOK, summary)
}

// snapshotAndCrop resolves the path location and crop query, then fetches the snapshot.
func (h *Handler) snapshotAndCrop(w http.ResponseWriter, r *http.Request) (models.WeatherSnapshot, string, bool) {
	location, ok := h.resolveLocation(w, r, mux.Vars(r)["location"], false)
	if !ok {
		return models.WeatherSnapshot{}, "", false
	}
	crop, ok := h.resolveCrop(w, r, r.URL.Query().Get("crop"))
	if !ok {
		return models.WeatherSnapshot{}, "", false
	}
	snapshot, ok := h.fetchSnapshot(w, r, location)
	if !ok {
		return models.WeatherSnapshot{}, "", false
	}
	if err := validation.ValidateSnapshot(snapshot); err != nil {
		writeServiceError(w, r, err)
		return models.WeatherSnapshot{}, "", false
	}
	return snapshot, crop, true
}

// fetchSnapshot gets weather for location and records the outcome for health.
func (h *Handler) fetchSnapshot(w http.ResponseWriter, r *http.Request, location string) (models.WeatherSnapshot, bool) {
	observability.RecordWeatherQuery(location)
	snapshot, err := h.deps.Weather.GetWeather(r.Context(), location)
	if err != nil {
		traffic.RecordError()
		writeServiceError(w, r, err)
		return models.WeatherSnapshot{}, false
	}
	traffic.RecordSuccess()
	return snapshot, true
}

func (h *Handler) resolveLocation(w http.ResponseWriter, r *http.Request, raw string, allowDefault bool) (string, bool) {
	if allowDefault && strings.TrimSpace(raw) == "" {
		return h.deps.DefaultLocation, true
	}
	location, err := validation.ValidateLocation(raw, h.deps.LocationMinLength, h.deps.LocationMaxLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return "", false
	}
	return location, true
}

func (h *Handler) resolveCrop(w http.ResponseWriter, r *http.Request, raw string) (string, bool) {
	crop, err := validation.ValidateCropKey(raw, h.deps.DefaultCrop)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CROP", err.Error())
		return "", false
	}
	return crop, true
}

// decodeBody decodes a JSON body, writing 400 INVALID_BODY on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
		return false
	}
	return true
}

// snapshotFromInput validates a submitted snapshot, writing 400 INVALID_SNAPSHOT on failure.
func snapshotFromInput(w http.ResponseWriter, r *http.Request, in *validation.SnapshotInput) (models.WeatherSnapshot, bool) {
	if in == nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_SNAPSHOT", "weather is required")
		return models.WeatherSnapshot{}, false
	}
	if err := validation.ValidateSnapshotInput(*in); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_SNAPSHOT", err.Error())
		return models.WeatherSnapshot{}, false
	}
	return in.ToSnapshot(time.Now().UTC()), true
}

func displayLocation(s models.WeatherSnapshot, fallback string) string {
	if s.Location.Name != "" {
		return s.Location.Name
	}
	return strings.TrimSpace(fallback)
}

func nonNilFindings(f []models.Finding) []models.Finding {
	if f == nil {
		return []models.Finding{}
	}
	return f
}
