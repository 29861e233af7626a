package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/contas/internal/bills"
	"github.com/opensource-finance/contas/internal/domain"
	"github.com/opensource-finance/contas/internal/insight"
	"github.com/opensource-finance/contas/internal/metrics"
	"github.com/opensource-finance/contas/internal/repository"
	"github.com/opensource-finance/contas/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	processor *insight.Processor
	metrics   *metrics.Metrics
	version   string

	summaryMonths int
	summaryTTL    time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	h := &Handler{
		repo:          deps.Repo,
		cache:         deps.Cache,
		bus:           deps.Bus,
		engine:        deps.Engine,
		processor:     deps.Processor,
		metrics:       deps.Metrics,
		version:       deps.Version,
		summaryMonths: deps.SummaryMonths,
		summaryTTL:    deps.SummaryTTL,
	}
	if h.summaryMonths <= 0 {
		h.summaryMonths = 6
	}
	if h.summaryTTL <= 0 {
		h.summaryTTL = 10 * time.Minute
	}
	if h.processor == nil {
		h.processor = insight.NewProcessor()
	}
	return h
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
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
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListAccountTypes returns the form policy of every account type.
func (h *Handler) ListAccountTypes(w http.ResponseWriter, r *http.Request) {
	policies := bills.Policies()
	writeJSON(w, http.StatusOK, map[string]any{
		"accountTypes": policies,
		"count":        len(policies),
	})
}

// NewDraftRequest is the request body for POST /drafts.
type NewDraftRequest struct {
	Type string `json:"type"`
}

// DraftResponse carries a draft, its policy and its current problems.
type DraftResponse struct {
	Draft  domain.BillDraft        `json:"draft"`
	Policy bills.Policy            `json:"policy"`
	Valid  bool                    `json:"valid"`
	Errors domain.ValidationErrors `json:"errors"`
}

func draftResponse(d domain.BillDraft) DraftResponse {
	errs := bills.Validate(d)
	if errs == nil {
		errs = domain.ValidationErrors{}
	}
	return DraftResponse{
		Draft:  d,
		Policy: bills.PolicyFor(d.Type),
		Valid:  len(errs) == 0,
		Errors: errs,
	}
}

// NewDraft handles POST /drafts: a fresh form for an account type.
func (h *Handler) NewDraft(w http.ResponseWriter, r *http.Request) {
	var req NewDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	t, err := domain.ParseAccountType(req.Type)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, draftResponse(bills.NewDraft(t)))
}

// ApplyDraftRequest is the request body for POST /drafts/apply.
// Action and Actions may both be set; Action runs first.
type ApplyDraftRequest struct {
	Draft   domain.BillDraft     `json:"draft"`
	Action  *domain.DraftAction  `json:"action,omitempty"`
	Actions []domain.DraftAction `json:"actions,omitempty"`
}

// ApplyDraft handles POST /drafts/apply: runs form interactions on a draft.
func (h *Handler) ApplyDraft(w http.ResponseWriter, r *http.Request) {
	var req ApplyDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	actions := req.Actions
	if req.Action != nil {
		actions = append([]domain.DraftAction{*req.Action}, actions...)
	}
	if len(actions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "action or actions is required",
		})
		return
	}

	draft, err := bills.ApplyAll(req.Draft, actions)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, draftResponse(draft))
}

// ValidateDraft handles POST /drafts/validate.
func (h *Handler) ValidateDraft(w http.ResponseWriter, r *http.Request) {
	var draft domain.BillDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	resp := draftResponse(draft)
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  resp.Valid,
		"errors": resp.Errors,
	})
}

// ListBills returns the tenant's bills ordered by name.
func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	list, err := h.repo.ListBills(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list bills", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list bills",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bills": list,
		"count": len(list),
	})
}

// CreateBill handles POST /bills. The body is a bill draft; an invalid
// draft is rejected with 422 and every problem found.
func (h *Handler) CreateBill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var draft domain.BillDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	bill, ok := h.billFromDraft(w, draft)
	if !ok {
		return
	}
	bill.ID = uuid.New().String()

	if err := h.repo.SaveBill(ctx, tenantID, bill); err != nil {
		slog.Error("failed to save bill", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save bill",
		})
		return
	}

	h.publish(ctx, tenantID, domain.TopicBillSaved, domain.ChangeEvent{
		TenantID: tenantID,
		BillID:   bill.ID,
		TraceID:  GetTraceID(ctx),
	})

	slog.Info("bill created", "tenant_id", tenantID, "id", bill.ID, "type", bill.Type)
	writeJSON(w, http.StatusCreated, bill)
}

// GetBill retrieves a bill by ID.
func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	bill, ok := h.lookupBill(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

// GetBillDraft returns the edit form of a stored bill.
func (h *Handler) GetBillDraft(w http.ResponseWriter, r *http.Request) {
	bill, ok := h.lookupBill(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, draftResponse(bills.FromBill(bill)))
}

// UpdateBill handles PUT /bills/{id} with an edited draft.
func (h *Handler) UpdateBill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	existing, ok := h.lookupBill(w, r)
	if !ok {
		return
	}

	var draft domain.BillDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	bill, ok := h.billFromDraft(w, draft)
	if !ok {
		return
	}
	bill.ID = existing.ID
	bill.CreatedAt = existing.CreatedAt

	if err := h.repo.SaveBill(ctx, tenantID, bill); err != nil {
		slog.Error("failed to update bill", "tenant_id", tenantID, "id", bill.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update bill",
		})
		return
	}

	h.publish(ctx, tenantID, domain.TopicBillSaved, domain.ChangeEvent{
		TenantID: tenantID,
		BillID:   bill.ID,
		TraceID:  GetTraceID(ctx),
	})

	slog.Info("bill updated", "tenant_id", tenantID, "id", bill.ID)
	writeJSON(w, http.StatusOK, bill)
}

// DeleteBill handles DELETE /bills/{id}.
func (h *Handler) DeleteBill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	billID := chi.URLParam(r, "id")

	if err := h.repo.DeleteBill(ctx, tenantID, billID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "bill not found",
			})
			return
		}
		slog.Error("failed to delete bill", "tenant_id", tenantID, "id", billID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete bill",
		})
		return
	}

	h.publish(ctx, tenantID, domain.TopicBillDeleted, domain.ChangeEvent{
		TenantID: tenantID,
		BillID:   billID,
		TraceID:  GetTraceID(ctx),
	})

	slog.Info("bill deleted", "tenant_id", tenantID, "id", billID)
	w.WriteHeader(http.StatusNoContent)
}

// GetBillSchedule returns the installment due dates of a bill.
func (h *Handler) GetBillSchedule(w http.ResponseWriter, r *http.Request) {
	bill, ok := h.lookupBill(w, r)
	if !ok {
		return
	}

	schedule, err := bills.InstallmentSchedule(bill)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"billId":       bill.ID,
		"installments": schedule,
		"count":        len(schedule),
	})
}

// ListInsightRules returns the tenant's stored rules, enabled or not.
func (h *Handler) ListInsightRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	stored, err := h.repo.ListInsightRules(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list insight rules", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list insight rules",
		})
		return
	}

	loaded := 0
	if h.engine != nil {
		for _, rule := range h.engine.GetLoadedRules() {
			if rule.TenantID == tenantID {
				loaded++
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  stored,
		"count":  len(stored),
		"loaded": loaded,
	})
}

// CreateInsightRule validates and stores a rule. It takes effect after
// POST /insight-rules/reload.
func (h *Handler) CreateInsightRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var rule domain.InsightRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if rule.ID == "" || rule.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and expression are required",
		})
		return
	}
	rule.TenantID = tenantID
	if rule.Version == "" {
		rule.Version = "1.0.0"
	}

	if h.engine != nil {
		if err := h.engine.ValidateRule(&rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
	}

	if err := h.repo.SaveInsightRule(ctx, tenantID, &rule); err != nil {
		slog.Error("failed to save insight rule", "tenant_id", tenantID, "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save insight rule",
		})
		return
	}

	slog.Info("insight rule saved", "tenant_id", tenantID, "id", rule.ID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule saved. Call POST /insight-rules/reload to apply changes.",
	})
}

// ReloadInsightRules reloads the tenant's rules from the database.
func (h *Handler) ReloadInsightRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "rule engine not available",
		})
		return
	}

	stored, err := h.repo.ListInsightRules(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list insight rules", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadTenantRules(tenantID, stored); err != nil {
		slog.Error("failed to reload insight rules", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("insight rules reloaded", "tenant_id", tenantID, "count", len(stored))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "rules reloaded successfully",
		"count":       len(stored),
		"totalLoaded": h.engine.RulesCount(),
	})
}

// lookupBill loads the bill named by the {id} parameter, writing the
// error response itself when it cannot.
func (h *Handler) lookupBill(w http.ResponseWriter, r *http.Request) (*domain.Bill, bool) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	billID := chi.URLParam(r, "id")

	bill, err := h.repo.GetBill(ctx, tenantID, billID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "bill not found",
			})
			return nil, false
		}
		slog.Error("failed to get bill", "tenant_id", tenantID, "id", billID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get bill",
		})
		return nil, false
	}
	return bill, true
}

// billFromDraft converts a draft, answering 422 with every problem when it
// is invalid.
func (h *Handler) billFromDraft(w http.ResponseWriter, draft domain.BillDraft) (*domain.Bill, bool) {
	bill, err := bills.ToBill(draft)
	if err != nil {
		var errs domain.ValidationErrors
		if errors.As(err, &errs) {
			for _, e := range errs {
				h.metrics.ValidationError(e.Field)
			}
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  "validation failed",
				"errors": errs,
			})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return nil, false
	}
	return bill, true
}

// publish emits a change event. A failed publish is logged and otherwise
// ignored; the scheduled refresh catches up.
func (h *Handler) publish(ctx context.Context, tenantID, topic string, event domain.ChangeEvent) {
	if h.bus == nil {
		return
	}

	payload, _ := json.Marshal(event)
	if err := h.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Error("failed to publish event",
			"tenant_id", tenantID,
			"topic", topic,
			"error", err,
		)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
