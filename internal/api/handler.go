package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/claims"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/tables"
	"github.com/opensource-finance/kestrel/internal/underwriting"
)

// PolicyStore manages the stored policies the SQL provider answers from.
type PolicyStore interface {
	Save(ctx context.Context, record *domain.PolicyRecord) error
	Get(ctx context.Context, policyID string) (*domain.PolicyRecord, error)
}

// maxBodyBytes bounds request bodies on the evaluation endpoints.
const maxBodyBytes = 1 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	tables       *tables.Tables
	claims       *claims.Pipeline
	fraud        *fraud.Detector
	underwriting *underwriting.Assessor
	policies     PolicyStore
	repo         domain.PolicyRepository
	cache        domain.Cache
	bus          domain.EventBus
	publisher    *bus.DecisionPublisher
	version      string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		tables:       deps.Tables,
		claims:       deps.Claims,
		fraud:        deps.Fraud,
		underwriting: deps.Underwriting,
		policies:     deps.Policies,
		repo:         deps.Repository,
		cache:        deps.Cache,
		bus:          deps.Bus,
		publisher:    bus.NewDecisionPublisher(deps.Bus),
		version:      deps.Version,
	}
}

// decode reads a JSON body into v and validates it, writing a 400 on failure.
func decode[T interface{ Validate() error }](w http.ResponseWriter, r *http.Request, v T) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	if err := v.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// ProcessClaim handles POST /api/v1/claims/process.
func (h *Handler) ProcessClaim(w http.ResponseWriter, r *http.Request) {
	var req domain.ClaimRequest
	if !decode(w, r, &req) {
		return
	}

	decision := h.claims.ProcessClaim(r.Context(), &req)
	h.publisher.Publish(r.Context(), domain.PipelineClaims, decision)

	writeJSON(w, http.StatusOK, decision)
}

// DetectFraud handles POST /api/v1/fraud/detect.
func (h *Handler) DetectFraud(w http.ResponseWriter, r *http.Request) {
	var req domain.FraudCheckRequest
	if !decode(w, r, &req) {
		return
	}

	decision, err := h.fraud.DetectFraud(r.Context(), &req)
	if err != nil {
		slog.Error("fraud detection failed",
			"claim_id", req.ClaimID,
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "fraud detection failed")
		return
	}
	h.publisher.Publish(r.Context(), domain.PipelineFraud, decision)

	writeJSON(w, http.StatusOK, decision)
}

// AssessRisk handles POST /api/v1/underwriting/assess.
func (h *Handler) AssessRisk(w http.ResponseWriter, r *http.Request) {
	var req domain.UnderwritingRequest
	if !decode(w, r, &req) {
		return
	}

	decision, err := h.underwriting.AssessRisk(r.Context(), &req)
	if err != nil {
		slog.Error("risk assessment failed",
			"policy_id", req.PolicyID,
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "risk assessment failed")
		return
	}
	h.publisher.Publish(r.Context(), domain.PipelineUnderwriting, decision)

	writeJSON(w, http.StatusOK, decision)
}

// GetTables returns the reference tables the pipelines are running with.
func (h *Handler) GetTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tables)
}

// GetPolicy retrieves a stored policy by ID.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	if h.policies == nil {
		writeError(w, http.StatusServiceUnavailable, "policy store not available")
		return
	}

	policyID := chi.URLParam(r, "id")
	record, err := h.policies.Get(r.Context(), policyID)
	if errors.Is(err, policy.ErrPolicyNotFound) {
		writeError(w, http.StatusNotFound, "policy not found")
		return
	}
	if err != nil {
		slog.Error("failed to get policy", "policy_id", policyID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load policy")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// PutPolicy creates or replaces a stored policy.
func (h *Handler) PutPolicy(w http.ResponseWriter, r *http.Request) {
	if h.policies == nil {
		writeError(w, http.StatusServiceUnavailable, "policy store not available")
		return
	}

	policyID := chi.URLParam(r, "id")

	var record domain.PolicyRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if record.ID == "" {
		record.ID = policyID
	}
	if record.ID != policyID {
		writeError(w, http.StatusBadRequest, "policy id does not match path")
		return
	}
	switch record.PaymentStatus {
	case domain.PaymentCurrent, domain.PaymentOverdue, domain.PaymentCancelled:
	default:
		writeError(w, http.StatusBadRequest, "payment_status must be current, overdue or cancelled")
		return
	}

	if err := h.policies.Save(r.Context(), &record); err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("failed to save policy", "policy_id", policyID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save policy")
		return
	}

	slog.Info("policy saved", "policy_id", policyID)
	writeJSON(w, http.StatusOK, &record)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	ctx := r.Context()

	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			slog.Warn("repository unhealthy", "error", err)
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			slog.Warn("cache unhealthy", "error", err)
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(ctx); err != nil {
			slog.Warn("event bus unhealthy", "error", err)
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
