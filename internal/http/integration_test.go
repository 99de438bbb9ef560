//go:build integration

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/crop-advisory-service/internal/advisory"
	"github.com/kjstillabower/crop-advisory-service/internal/cache"
	"github.com/kjstillabower/crop-advisory-service/internal/crops"
	"github.com/kjstillabower/crop-advisory-service/internal/models"
	"github.com/kjstillabower/crop-advisory-service/internal/observability"
	"github.com/kjstillabower/crop-advisory-service/internal/rules"
	"github.com/kjstillabower/crop-advisory-service/internal/service"
	testhelpers "github.com/kjstillabower/crop-advisory-service/internal/testhelpers"
)

var testLogger *zap.Logger

func init() {
	var err error
	testLogger, err = observability.NewLogger()
	if err != nil {
		panic(err)
	}
}

// setupIntegrationRouter builds the full stack against the live weather API.
// The advisory collaborator is disabled so it always falls back.
func setupIntegrationRouter(t *testing.T, limiter *rate.Limiter) (http.Handler, cache.Cache, func()) {
	cfg := testhelpers.GetIntegrationConfig(t)
	weatherService, cacheSvc, cleanup := testhelpers.SetupIntegrationService(t, cfg)
	weatherClient := testhelpers.SetupIntegrationClient(t, cfg)

	adv := advisory.NewAdvisor(advisory.NewGeminiClient("", "", time.Second), advisory.DefaultModel, advisory.DefaultSummaryModel, time.Second)
	dash := service.NewDashboardService(weatherService, rules.NewEvaluator(crops.Default, clockwork.NewRealClock()), adv, 2*time.Second)
	h := NewHandler(Deps{
		Weather:   weatherService,
		Dashboard: dash,
		Advisor:   adv,
		Client:    weatherClient,
	}, &HealthConfig{ProbeTTL: 30 * time.Second}, testLogger)
	return NewRouter(h, testLogger, limiter, 10*time.Second), cacheSvc, cleanup
}

func makeIntegrationRequest(router http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestIntegration_GetWeather_CacheHit(t *testing.T) {
	router, cacheSvc, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()

	seeded := models.WeatherSnapshot{
		Location:   models.Location{Name: "Seeded"},
		TempC:      21.5,
		Humidity:   55,
		Condition:  "Clear",
		ObservedAt: time.Now(),
	}
	if err := cacheSvc.Set(context.Background(), "ludhiana", seeded, 5*time.Minute); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	w := makeIntegrationRequest(router, http.MethodGet, "/weather/Ludhiana")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got models.WeatherSnapshot
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Location.Name != "Seeded" || got.TempC != 21.5 {
		t.Errorf("snapshot = %+v, want the cached one", got)
	}
}

func TestIntegration_GetWeather_CacheMiss(t *testing.T) {
	router, cacheSvc, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()

	w := makeIntegrationRequest(router, http.MethodGet, "/weather/Pune")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if _, ok, err := cacheSvc.Get(context.Background(), "pune"); err != nil || !ok {
		t.Errorf("cache not populated after miss: ok=%v err=%v", ok, err)
	}
}

func TestIntegration_GetWeather_UnknownLocation(t *testing.T) {
	router, _, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()

	w := makeIntegrationRequest(router, http.MethodGet, "/weather/Qqqqzzzzxxxxunknown")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404; body = %s", w.Code, w.Body.String())
	}
}

func TestIntegration_GetDashboard_FallbackAdvisory(t *testing.T) {
	router, _, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()

	w := makeIntegrationRequest(router, http.MethodGet, "/dashboard/Patna?crop=rice")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got models.Dashboard
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Advisory.Fallback {
		t.Error("advisory should fall back with the collaborator disabled")
	}
	if got.Irrigation.Crop != "rice" {
		t.Errorf("irrigation crop = %q", got.Irrigation.Crop)
	}
}

func TestIntegration_GetHealth_FullStack(t *testing.T) {
	router, _, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()

	w := makeIntegrationRequest(router, http.MethodGet, "/health")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got healthResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "healthy" || got.Checks["weatherApi"] != "healthy" {
		t.Errorf("health = %+v", got)
	}
}

func TestIntegration_GetMetrics_Format(t *testing.T) {
	router, _, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()

	makeIntegrationRequest(router, http.MethodGet, "/weather/Pune")
	w := makeIntegrationRequest(router, http.MethodGet, "/metrics")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, metric := range []string{"httpRequestsTotal", "httpRequestDurationSeconds"} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics output missing %s", metric)
		}
	}
	if !strings.Contains(body, `route="/weather/{location}"`) {
		t.Error("metrics should label by route template")
	}
}

func TestIntegration_RateLimiting_Concurrent(t *testing.T) {
	router, _, cleanup := setupIntegrationRouter(t, rate.NewLimiter(1, 3))
	defer cleanup()

	var (
		mu     sync.Mutex
		counts = map[int]int{}
		wg     sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := makeIntegrationRequest(router, http.MethodGet, "/weather/Pune")
			mu.Lock()
			counts[w.Code]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if counts[http.StatusTooManyRequests] < 7 {
		t.Errorf("429 responses = %d, want at least 7 (counts %v)", counts[http.StatusTooManyRequests], counts)
	}
}
