package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/contas/internal/domain"
	"github.com/opensource-finance/contas/internal/insight"
	"github.com/opensource-finance/contas/internal/summary"
)

// maxSummaryMonths bounds the ?months= window.
const maxSummaryMonths = 120

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// FigureRequest is the request body for PUT /figures/{year}/{month}.
type FigureRequest struct {
	IncomeCents   int64 `json:"incomeCents"`
	ExpensesCents int64 `json:"expensesCents"`
}

// PutFigure records the balance of one month, replacing any earlier value.
func (h *Handler) PutFigure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	year, month, ok := periodParams(w, r)
	if !ok {
		return
	}

	var req FigureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	figure := domain.MonthlyFigure{
		Year:          year,
		Month:         month,
		IncomeCents:   req.IncomeCents,
		ExpensesCents: req.ExpensesCents,
	}
	if err := figure.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.UpsertFigure(ctx, tenantID, figure); err != nil {
		slog.Error("failed to save figure", "tenant_id", tenantID, "period", figure.Period(), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save figure",
		})
		return
	}

	h.publish(ctx, tenantID, domain.TopicFigureRecorded, domain.ChangeEvent{
		TenantID: tenantID,
		Figure:   &figure,
		TraceID:  GetTraceID(ctx),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"figure":  figure,
		"surplus": figure.SurplusCents(),
		"status":  summary.Classify(figure.SurplusCents(), figure.IncomeCents),
	})
}

// ListFigures returns the tenant's months in chronological order, optionally
// limited to the latest ?months=N.
func (h *Handler) ListFigures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	months := 0
	if v := r.URL.Query().Get("months"); v != "" {
		n, err := parseMonths(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		months = n
	}

	figures, err := h.repo.ListFigures(ctx, tenantID, months)
	if err != nil {
		slog.Error("failed to list figures", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list figures",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"figures": figures,
		"count":   len(figures),
	})
}

// GetSummary returns the dashboard summary over the latest ?months=N months.
// The X-Cache header tells whether it was served from cache.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	months, ok := h.summaryWindow(w, r)
	if !ok {
		return
	}

	s, hit, err := h.loadSummary(r.Context(), GetTenantID(r.Context()), months)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute summary",
		})
		return
	}

	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, s)
}

// ExportSummary writes the dashboard summary as an XLSX workbook.
func (h *Handler) ExportSummary(w http.ResponseWriter, r *http.Request) {
	months, ok := h.summaryWindow(w, r)
	if !ok {
		return
	}
	tenantID := GetTenantID(r.Context())

	s, _, err := h.loadSummary(r.Context(), tenantID, months)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute summary",
		})
		return
	}

	var buf bytes.Buffer
	if err := summary.ExportXLSX(*s, &buf); err != nil {
		slog.Error("failed to export summary", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to export summary",
		})
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="summary-%s.xlsx"`, time.Now().UTC().Format("2006-01-02")))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// GetMonthReport evaluates the tenant's insight rules against one recorded month.
func (h *Handler) GetMonthReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	year, month, ok := periodParams(w, r)
	if !ok {
		return
	}

	figures, err := h.repo.ListFigures(ctx, tenantID, 0)
	if err != nil {
		slog.Error("failed to list figures", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load figures",
		})
		return
	}

	var figure *domain.MonthlyFigure
	for i := range figures {
		if figures[i].Year == year && figures[i].Month == month {
			figure = &figures[i]
			break
		}
	}
	if figure == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no figure recorded for this month",
		})
		return
	}

	var results []domain.RuleResult
	if h.engine != nil {
		results, err = h.engine.EvaluateAll(ctx, tenantID, *figure)
		if err != nil {
			slog.Error("rule evaluation failed", "tenant_id", tenantID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "rule evaluation failed",
			})
			return
		}
		for _, res := range results {
			h.metrics.RuleOutcome(res.Outcome)
		}
	}

	report := h.processor.Process(ctx, &insight.ReportInput{
		TenantID:    tenantID,
		TraceID:     GetTraceID(ctx),
		Figure:      *figure,
		RuleResults: results,
		RulesMs:     time.Since(start).Milliseconds(),
		StartTime:   start,
	})

	writeJSON(w, http.StatusOK, report)
}

// loadSummary serves a summary from cache, computing and caching it on a miss.
// Cache failures degrade to recomputation.
func (h *Handler) loadSummary(ctx context.Context, tenantID string, months int) (*domain.MonthlySummary, bool, error) {
	if h.cache != nil {
		cached, err := h.cache.GetSummary(ctx, tenantID, months)
		if err != nil {
			slog.Warn("summary cache lookup failed", "tenant_id", tenantID, "error", err)
		}
		if cached != nil {
			h.metrics.SummaryCacheLookup(true)
			return cached, true, nil
		}
		h.metrics.SummaryCacheLookup(false)
	}

	figures, err := h.repo.ListFigures(ctx, tenantID, months)
	if err != nil {
		slog.Error("failed to list figures", "tenant_id", tenantID, "error", err)
		return nil, false, err
	}

	s := summary.Summarize(figures)
	if h.cache != nil {
		if err := h.cache.SetSummary(ctx, tenantID, months, &s, h.summaryTTL); err != nil {
			slog.Warn("failed to cache summary", "tenant_id", tenantID, "error", err)
		}
	}
	return &s, false, nil
}

func (h *Handler) summaryWindow(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("months")
	if v == "" {
		return h.summaryMonths, true
	}

	months, err := parseMonths(v)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return 0, false
	}
	return months, true
}

func parseMonths(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > maxSummaryMonths {
		return 0, fmt.Errorf("months must be an integer between 1 and %d", maxSummaryMonths)
	}
	return n, nil
}

func periodParams(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "year must be an integer",
		})
		return 0, 0, false
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "month must be an integer between 1 and 12",
		})
		return 0, 0, false
	}
	return year, month, true
}
