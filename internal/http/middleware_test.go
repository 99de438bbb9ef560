package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/crop-advisory-service/internal/observability"
	"github.com/kjstillabower/crop-advisory-service/internal/traffic"
)

func TestMiddleware_CorrelationIDGeneratedAndEchoed(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/weather/Pune", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Header().Get(CorrelationIDHeader) == "" {
		t.Error("X-Correlation-ID header missing")
	}

	w = env.do(http.MethodGet, "/weather/Pune", nil)
	if got := w.Header().Get(CorrelationIDHeader); got != "test-correlation-id" {
		t.Errorf("X-Correlation-ID = %q, want the inbound value", got)
	}
}

func TestMiddleware_ContextCarriesLoggerAndID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.New(core)))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		if got := observability.CorrelationID(r.Context()); got != "abc" {
			t.Errorf("CorrelationID = %q, want abc", got)
		}
		observability.LoggerOrNop(r.Context()).Info("inside")
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(CorrelationIDHeader, "abc")
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("inside").All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	if entries[0].ContextMap()["correlation_id"] != "abc" {
		t.Errorf("fields = %+v", entries[0].ContextMap())
	}
}

func TestMiddleware_RouteTemplate(t *testing.T) {
	var got string
	router := mux.NewRouter()
	router.HandleFunc("/alerts/{location}", func(w http.ResponseWriter, r *http.Request) {
		got = routeTemplate(r)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/alerts/Ludhiana", nil))

	if got != "/alerts/{location}" {
		t.Errorf("routeTemplate = %q, want /alerts/{location}", got)
	}
	if got := routeTemplate(httptest.NewRequest(http.MethodGet, "/nope", nil)); got != "unmatched" {
		t.Errorf("routeTemplate without route = %q, want unmatched", got)
	}
}

func TestMiddleware_StatusCodeString(t *testing.T) {
	for code, want := range map[int]string{200: "2xx", 404: "4xx", 429: "4xx", 503: "5xx"} {
		if got := statusCodeString(code); got != want {
			t.Errorf("statusCodeString(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestMiddleware_MetricsRecordsNonOK(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.weather.err = errors.New("boom")

	w := env.do(http.MethodGet, "/weather/Pune", nil)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestTimeoutMiddleware_CancelsContextAfterTimeout(t *testing.T) {
	var ctxErr error
	h := TimeoutMiddleware(10 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		ctxErr = r.Context().Err()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !errors.Is(ctxErr, context.DeadlineExceeded) {
		t.Errorf("ctx.Err() = %v, want deadline exceeded", ctxErr)
	}
}

func TestTimeoutMiddleware_ZeroDisables(t *testing.T) {
	var hasDeadline bool
	h := TimeoutMiddleware(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if hasDeadline {
		t.Error("zero timeout should not set a deadline")
	}
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.router = NewRouter(env.handler, zap.NewNop(), rate.NewLimiter(1, 2), time.Second)

	for i := 0; i < 3; i++ {
		w := env.do(http.MethodGet, "/weather/Pune", nil)
		if i < 2 {
			if w.Code != http.StatusOK {
				t.Errorf("request %d: status = %d, want 200", i, w.Code)
			}
			continue
		}
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d: status = %d, want 429", i, w.Code)
		}
		body := decodeError(t, w)
		if body.Code != "RATE_LIMITED" || body.RequestID != "test-correlation-id" {
			t.Errorf("error = %+v", body)
		}
	}
	if got := traffic.DenialCount(time.Minute); got != 1 {
		t.Errorf("DenialCount = %d, want 1", got)
	}
}

func TestRateLimitMiddleware_HealthAndMetricsBypass(t *testing.T) {
	env := newTestEnv(t, &HealthConfig{}, nil)
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	env.router = NewRouter(env.handler, zap.NewNop(), limiter, time.Second)

	if w := env.do(http.MethodGet, "/weather/Pune", nil); w.Code != http.StatusOK {
		t.Fatalf("first data request status = %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/weather/Pune", nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second data request status = %d, want 429", w.Code)
	}
	for _, path := range []string{"/health", "/metrics"} {
		if w := env.do(http.MethodGet, path, nil); w.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200 with exhausted limiter", path, w.Code)
		}
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	called := false
	h := RateLimitMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !called {
		t.Error("nil limiter should allow")
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	if w := env.do(http.MethodGet, "/evaluate", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /evaluate status = %d, want 405", w.Code)
	}
}
