package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/claims"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/tables"
	"github.com/opensource-finance/kestrel/internal/underwriting"
)

type testEnv struct {
	server   *Server
	bus      *bus.ChannelBus
	registry *prometheus.Registry
}

// newTestEnv wires the pipelines against the default tables and a static policy provider.
func newTestEnv(t *testing.T, cfg domain.ServerConfig, store PolicyStore) *testEnv {
	t.Helper()

	tbl, err := tables.Default()
	if err != nil {
		t.Fatalf("failed to load tables: %v", err)
	}
	engine, err := rules.NewEngineFromTables(tbl, 4)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder()
	if err := recorder.Register(registry); err != nil {
		t.Fatalf("failed to register metrics: %v", err)
	}

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	server := NewServer(cfg, Deps{
		Tables:       tbl,
		Claims:       claims.NewPipeline(tbl, policy.NewStaticProvider(decimal.Zero), recorder),
		Fraud:        fraud.NewDetector(tbl, engine, recorder),
		Underwriting: underwriting.NewAssessor(tbl, recorder),
		Policies:     store,
		Bus:          eventBus,
		Gatherer:     registry,
		Version:      "test-v1",
	})

	return &testEnv{server: server, bus: eventBus, registry: registry}
}

func defaultServerConfig() domain.ServerConfig {
	return domain.ServerConfig{Host: "localhost", Port: 8080, ReadTimeout: 30, WriteTimeout: 30}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		json.NewEncoder(&buf).Encode(v)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rr, req)
	return rr
}

func claimBody(amount float64) map[string]any {
	return map[string]any{
		"claim_id":             "CLM-001",
		"policy_id":            "POL-001",
		"claim_amount":         amount,
		"incident_date":        time.Now().UTC().AddDate(0, 0, -7).Format(time.RFC3339),
		"claim_type":           "auto",
		"description":          "Rear-end collision",
		"supporting_documents": []string{"police_report", "repair_estimate", "photos", "claim_form"},
	}
}

func fraudBody() map[string]any {
	claimDate := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	return map[string]any{
		"claim_id":          "CLM-2001",
		"policy_id":         "POL-2001",
		"claim_amount":      60000.0,
		"claim_type":        "auto",
		"claimant_age":      22,
		"claim_date":        claimDate.Format(time.RFC3339),
		"policy_start_date": claimDate.AddDate(0, 0, -10).Format(time.RFC3339),
		"previous_claims":   5,
		"location":          "NK",
	}
}

func TestProcessClaimEndpoint(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig(), nil)

	t.Run("Approved", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/api/v1/claims/process", claimBody(3000))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var decision domain.ClaimDecision
		if err := json.Unmarshal(rr.Body.Bytes(), &decision); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if decision.Status != domain.ClaimApproved {
			t.Errorf("expected approved, got %s", decision.Status)
		}
		if !decision.ApprovedAmount.Equal(decimal.NewFromInt(3000)) {
			t.Errorf("expected approved amount 3000, got %s", decision.ApprovedAmount)
		}
		if decision.ID == "" {
			t.Error("expected decision_id in response")
		}
	})

	t.Run("ExceedsCeiling", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/api/v1/claims/process", claimBody(60000))
		var decision domain.ClaimDecision
		json.Unmarshal(rr.Body.Bytes(), &decision)
		if decision.Status != domain.ClaimRejected {
			t.Errorf("expected rejected, got %s", decision.Status)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/api/v1/claims/process", "not-json")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NegativeAmount", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/api/v1/claims/process", claimBody(-1))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownClaimType", func(t *testing.T) {
		body := claimBody(100)
		body["claim_type"] = "marine"
		rr := env.do(http.MethodPost, "/api/v1/claims/process", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ResponseHeaders", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/api/v1/claims/process", claimBody(3000))
		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header in response")
		}
		if rr.Header().Get("X-Trace-ID") == "" {
			t.Error("expected X-Trace-ID header in response")
		}
		if rr.Header().Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type: application/json")
		}
	})
}

func TestDetectFraudEndpoint(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig(), nil)

	body := fraudBody()

	t.Run("HighRisk", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/api/v1/fraud/detect", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var decision domain.FraudDecision
		if err := json.Unmarshal(rr.Body.Bytes(), &decision); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if decision.RiskScore != 100 {
			t.Errorf("expected capped score 100, got %v", decision.RiskScore)
		}
		if decision.Status != domain.FraudHighRisk {
			t.Errorf("expected high_risk, got %s", decision.Status)
		}
		if len(decision.RiskFactors) != 5 {
			t.Errorf("expected 5 risk factors, got %v", decision.RiskFactors)
		}
	})

	t.Run("MissingClaimDate", func(t *testing.T) {
		bad := map[string]any{}
		for k, v := range body {
			bad[k] = v
		}
		delete(bad, "claim_date")
		rr := env.do(http.MethodPost, "/api/v1/fraud/detect", bad)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestAssessRiskEndpoint(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig(), nil)

	t.Run("Assessed", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/api/v1/underwriting/assess", map[string]any{
			"policy_id":       "POL-3001",
			"customer_id":     "CUS-3001",
			"policy_type":     "life",
			"coverage_amount": 500000.0,
			"customer_age":    65,
			"occupation":      "teacher",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var decision domain.RiskDecision
		if err := json.Unmarshal(rr.Body.Bytes(), &decision); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if decision.RiskScore < 14.4999 || decision.RiskScore > 14.5001 {
			t.Errorf("expected score 14.5, got %v", decision.RiskScore)
		}
		if decision.RiskLevel.RiskLevel != domain.RiskMinimal {
			t.Errorf("expected MINIMAL, got %s", decision.RiskLevel.RiskLevel)
		}
	})

	t.Run("CreditScoreOutOfRange", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/api/v1/underwriting/assess", map[string]any{
			"policy_id":    "POL-3002",
			"customer_id":  "CUS-3002",
			"policy_type":  "health",
			"customer_age": 30,
			"credit_score": 900,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestDecisionPublished(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig(), nil)

	got := make(chan *domain.Message, 1)
	_, err := env.bus.Subscribe(context.Background(), domain.TopicClaimDecision, func(ctx context.Context, msg *domain.Message) error {
		got <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	env.do(http.MethodPost, "/api/v1/claims/process", claimBody(3000))

	select {
	case msg := <-got:
		var decision domain.ClaimDecision
		if err := json.Unmarshal(msg.Payload, &decision); err != nil {
			t.Fatalf("failed to decode published decision: %v", err)
		}
		if decision.ClaimID != "CLM-001" {
			t.Errorf("expected claim CLM-001, got %s", decision.ClaimID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for decision event")
	}
}

const (
	testTraceID     = "4bf92f3577b34da6a3ce929d0e0e4736"
	testTraceparent = "00-" + testTraceID + "-00f067aa0ba902b7-01"
)

func TestDecisionCarriesTrace(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig(), nil)

	got := make(chan *domain.Message, 1)
	env.bus.Subscribe(context.Background(), domain.TopicFraudDecision, func(ctx context.Context, msg *domain.Message) error {
		got <- msg
		return nil
	})

	body, _ := json.Marshal(fraudBody())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fraud/detect", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("traceparent", testTraceparent)
	rr := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	select {
	case msg := <-got:
		if msg.Metadata[bus.MetadataTraceID] != testTraceID {
			t.Errorf("expected decision event under trace %s, got %q", testTraceID, msg.Metadata[bus.MetadataTraceID])
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for decision event")
	}
}

func TestTablesEndpoint(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig(), nil)

	rr := env.do(http.MethodGet, "/api/v1/tables", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	for _, key := range []string{"version", "claims", "fraud", "underwriting"} {
		if _, ok := resp[key]; !ok {
			t.Errorf("expected %q in tables response", key)
		}
	}
}

func TestPolicyEndpoints(t *testing.T) {
	t.Run("Unavailable", func(t *testing.T) {
		env := newTestEnv(t, defaultServerConfig(), nil)
		rr := env.do(http.MethodGet, "/api/v1/policies/POL-1", nil)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rr.Code)
		}
	})

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	store := policy.NewStoreProvider(repo, cache.NewLRUCache(10), time.Minute, decimal.Zero)
	env := newTestEnv(t, defaultServerConfig(), store)

	record := map[string]any{
		"payment_status":    "current",
		"expiry_date":       time.Now().UTC().AddDate(1, 0, 0).Format(time.RFC3339),
		"last_payment_date": time.Now().UTC().AddDate(0, 0, -2).Format(time.RFC3339),
		"coverage_limit":    "20000",
	}

	t.Run("PutAndGet", func(t *testing.T) {
		rr := env.do(http.MethodPut, "/api/v1/policies/POL-42", record)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = env.do(http.MethodGet, "/api/v1/policies/POL-42", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var got domain.PolicyRecord
		json.Unmarshal(rr.Body.Bytes(), &got)
		if got.ID != "POL-42" || !got.CoverageLimit.Equal(decimal.NewFromInt(20000)) {
			t.Errorf("unexpected policy: %+v", got)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/api/v1/policies/POL-404", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("MismatchedID", func(t *testing.T) {
		body := map[string]any{"id": "POL-OTHER", "payment_status": "current"}
		rr := env.do(http.MethodPut, "/api/v1/policies/POL-42", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidPaymentStatus", func(t *testing.T) {
		rr := env.do(http.MethodPut, "/api/v1/policies/POL-43", map[string]any{"payment_status": "lapsed"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NegativeLimit", func(t *testing.T) {
		body := map[string]any{"payment_status": "current", "coverage_limit": "-5"}
		rr := env.do(http.MethodPut, "/api/v1/policies/POL-44", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig(), nil)

	t.Run("HealthCheck", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/health", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("DegradedWhenBusClosed", func(t *testing.T) {
		degraded := newTestEnv(t, defaultServerConfig(), nil)
		degraded.bus.Close()

		rr := degraded.do(http.MethodGet, "/health", nil)
		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["status"] != "degraded" {
			t.Errorf("expected status 'degraded', got '%s'", resp["status"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/ready", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig(), nil)

	env.do(http.MethodPost, "/api/v1/claims/process", claimBody(3000))

	rr := env.do(http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `kestrel_evaluations_total{outcome="approved",pipeline="claims"} 1`) {
		t.Errorf("expected claims counter in metrics output:\n%s", rr.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	cfg := defaultServerConfig()
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 1
	env := newTestEnv(t, cfg, nil)

	if rr := env.do(http.MethodGet, "/api/v1/tables", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/api/v1/tables", nil); rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", rr.Code)
	}

	// Health checks are outside the limited group.
	if rr := env.do(http.MethodGet, "/health", nil); rr.Code != http.StatusOK {
		t.Errorf("expected health to bypass limiter, got %d", rr.Code)
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedRequestID = GetRequestID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}
		if rr.Header().Get("X-Request-ID") != capturedRequestID {
			t.Error("expected X-Request-ID response header to match context")
		}
	})

	t.Run("TracingMiddlewareKeepsClientRequestID", func(t *testing.T) {
		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Header().Get(RequestIDHeader) != "req-123" {
			t.Errorf("expected client request id echoed, got %q", rr.Header().Get(RequestIDHeader))
		}
	})

	t.Run("TracingMiddlewareContinuesTraceparent", func(t *testing.T) {
		var traceID string
		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID = trace.SpanContextFromContext(r.Context()).TraceID().String()
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("traceparent", testTraceparent)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if traceID != testTraceID {
			t.Errorf("expected span context trace %s, got %s", testTraceID, traceID)
		}
		if rr.Header().Get(TraceIDHeader) != testTraceID {
			t.Errorf("expected X-Trace-ID %s, got %q", testTraceID, rr.Header().Get(TraceIDHeader))
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("preflight should not reach the handler")
		}))

		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "https://example.test")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rr.Code)
		}
		if rr.Header().Get("Access-Control-Allow-Origin") != "https://example.test" {
			t.Error("expected origin echoed")
		}
	})
}
