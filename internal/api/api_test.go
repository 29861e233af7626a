package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/contas/internal/bus"
	"github.com/opensource-finance/contas/internal/cache"
	"github.com/opensource-finance/contas/internal/domain"
	"github.com/opensource-finance/contas/internal/insight"
	"github.com/opensource-finance/contas/internal/metrics"
	"github.com/opensource-finance/contas/internal/repository"
	"github.com/opensource-finance/contas/internal/rules"
	"github.com/xuri/excelize/v2"
)

const testTenant = "tenant-001"

// createTestServer creates a server backed by a temporary SQLite database.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	eventBus := bus.NewChannelBus(100)
	engine, _ := rules.NewEngine(5)

	t.Cleanup(func() {
		eventBus.Close()
		repo.Close()
	})

	return NewServer(cfg, Deps{
		Repo:      repo,
		Cache:     cache.NewLRUCache(100),
		Bus:       eventBus,
		Engine:    engine,
		Processor: insight.NewProcessor(),
		Metrics:   metrics.New(),
		Version:   "test-v1",
	})
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TenantIDHeader, testTenant)

	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response: %v (%s)", err, rr.Body.String())
	}
}

func loanDraft() domain.BillDraft {
	return domain.BillDraft{
		Name:             "Car loan",
		Type:             domain.AccountLoan,
		HasInstallments:  true,
		InstallmentCount: 3,
		TotalAmountCents: 30000,
		StartDate:        "2026-01-10",
		DueDay:           15,
	}
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("Health", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp map[string]string
		decode(t, rr, &resp)
		if resp["status"] != "healthy" {
			t.Errorf("expected healthy, got %s", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp["version"])
		}
		if rr.Header().Get(TraceIDHeader) == "" {
			t.Error("expected trace ID header")
		}
	})

	t.Run("Ready", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `contas_http_requests_total{method="GET",route="/health",status="200"} 1`) {
			t.Errorf("expected /health request to be counted, got:\n%s", rr.Body.String())
		}
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/bills", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rr.Code)
		}
		if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
			t.Errorf("unexpected allow origin %q", rr.Header().Get("Access-Control-Allow-Origin"))
		}
	})
}

func TestTenantMiddleware(t *testing.T) {
	server := createTestServer(t)

	tests := []struct {
		name   string
		tenant string
	}{
		{"Missing", ""},
		{"Dot", "tenant.a"},
		{"Wildcard", "*"},
		{"FullWildcard", "tenant>"},
		{"Whitespace", "tenant a"},
		{"TooLong", strings.Repeat("t", maxTenantIDLen+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/bills", nil)
			if tt.tenant != "" {
				req.Header.Set(TenantIDHeader, tt.tenant)
			}
			rr := httptest.NewRecorder()
			server.Router().ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rr.Code)
			}
		})
	}
}

func TestTracingMiddleware(t *testing.T) {
	server := createTestServer(t)

	t.Run("ContinuesIncomingTrace", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if got := rr.Header().Get(TraceIDHeader); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
			t.Errorf("expected incoming trace ID, got %q", got)
		}
	})

	t.Run("KeepsRequestID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if got := rr.Header().Get(RequestIDHeader); got != "req-42" {
			t.Errorf("expected request ID req-42, got %q", got)
		}
		if rr.Header().Get(TraceIDHeader) == "" {
			t.Error("expected trace ID header")
		}
	})
}

func TestAccountTypes(t *testing.T) {
	server := createTestServer(t)

	rr := doRequest(t, server, http.MethodGet, "/account-types", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		AccountTypes []struct {
			Type            string `json:"type"`
			UsesCreditLimit bool   `json:"usesCreditLimit"`
		} `json:"accountTypes"`
		Count int `json:"count"`
	}
	decode(t, rr, &resp)

	if resp.Count != len(domain.AccountTypes()) {
		t.Errorf("expected %d types, got %d", len(domain.AccountTypes()), resp.Count)
	}
	for _, p := range resp.AccountTypes {
		if p.UsesCreditLimit != (p.Type == string(domain.AccountCreditCard)) {
			t.Errorf("unexpected usesCreditLimit for %s", p.Type)
		}
	}
}

func TestDraftEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("NewDraft", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/drafts", NewDraftRequest{Type: "loan"})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp DraftResponse
		decode(t, rr, &resp)
		if resp.Draft.Type != domain.AccountLoan || !resp.Draft.HasInstallments {
			t.Errorf("expected LOAN draft with installments, got %+v", resp.Draft)
		}
		if resp.Valid || !resp.Errors.Has(domain.FieldName) {
			t.Errorf("expected empty draft to be invalid on name, got %+v", resp.Errors)
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/drafts", NewDraftRequest{Type: "LOTTERY"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ApplyActions", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/drafts/apply", ApplyDraftRequest{
			Draft:  domain.BillDraft{Type: domain.AccountSubscription, InstallmentCount: 1},
			Action: &domain.DraftAction{Op: domain.OpToggleInstallments, Flag: true},
			Actions: []domain.DraftAction{
				{Op: domain.OpSetInstallmentCount, Number: 4},
				{Op: domain.OpSetInstallmentAmount, Number: 2500},
				{Op: domain.OpSetName, Text: "Rent"},
			},
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp DraftResponse
		decode(t, rr, &resp)
		if resp.Draft.Name != "Rent" || resp.Draft.InstallmentCount != 4 {
			t.Errorf("unexpected draft %+v", resp.Draft)
		}
		if resp.Draft.TotalAmountCents != 10000 {
			t.Errorf("expected derived total 10000, got %d", resp.Draft.TotalAmountCents)
		}
	})

	t.Run("ApplyUnknownOp", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/drafts/apply", ApplyDraftRequest{
			Draft:  loanDraft(),
			Action: &domain.DraftAction{Op: "explode"},
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ApplyWithoutAction", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/drafts/apply", ApplyDraftRequest{Draft: loanDraft()})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/drafts/validate", loanDraft())
		var resp struct {
			Valid  bool                    `json:"valid"`
			Errors domain.ValidationErrors `json:"errors"`
		}
		decode(t, rr, &resp)
		if !resp.Valid || len(resp.Errors) != 0 {
			t.Errorf("expected valid draft, got %+v", resp.Errors)
		}

		rr = doRequest(t, server, http.MethodPost, "/drafts/validate", domain.BillDraft{Type: domain.AccountCreditCard})
		decode(t, rr, &resp)
		if resp.Valid {
			t.Error("expected invalid draft")
		}
		for _, field := range []string{domain.FieldName, domain.FieldCreditLimit, domain.FieldClosingDate, domain.FieldStartDate, domain.FieldDueDay} {
			if !resp.Errors.Has(field) {
				t.Errorf("expected error on %s", field)
			}
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/drafts/validate", "not-json")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestBillEndpoints(t *testing.T) {
	server := createTestServer(t)

	var created domain.Bill

	t.Run("CreateInvalid", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/bills", domain.BillDraft{Type: domain.AccountOther})
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d", rr.Code)
		}

		var resp struct {
			Errors domain.ValidationErrors `json:"errors"`
		}
		decode(t, rr, &resp)
		if !resp.Errors.Has(domain.FieldName) || !resp.Errors.Has(domain.FieldTotalAmount) {
			t.Errorf("expected every error reported, got %+v", resp.Errors)
		}
	})

	t.Run("CreateRejectsHugeInstallmentCount", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/bills", domain.BillDraft{
			Name:                      "Rent",
			Type:                      domain.AccountFixed,
			HasInstallments:           true,
			InstallmentCount:          1 << 62,
			PerInstallmentAmountCents: 5000,
			StartDate:                 "2026-01-01",
			DueDay:                    5,
		})
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Errors domain.ValidationErrors `json:"errors"`
		}
		decode(t, rr, &resp)
		if !resp.Errors.Has(domain.FieldInstallmentCount) {
			t.Errorf("expected installmentCount error, got %+v", resp.Errors)
		}
	})

	t.Run("Create", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/bills", loanDraft())
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
		decode(t, rr, &created)
		if created.ID == "" || created.TenantID != testTenant {
			t.Errorf("unexpected bill %+v", created)
		}
	})

	t.Run("Get", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/bills/"+created.ID, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var bill domain.Bill
		decode(t, rr, &bill)
		if bill.Name != "Car loan" || bill.TotalAmountCents != 30000 {
			t.Errorf("unexpected bill %+v", bill)
		}
	})

	t.Run("List", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/bills", nil)
		var resp struct {
			Count int `json:"count"`
		}
		decode(t, rr, &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 bill, got %d", resp.Count)
		}
	})

	t.Run("Schedule", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/bills/"+created.ID+"/schedule", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp struct {
			Installments []domain.InstallmentDue `json:"installments"`
		}
		decode(t, rr, &resp)
		if len(resp.Installments) != 3 {
			t.Fatalf("expected 3 installments, got %d", len(resp.Installments))
		}
		if resp.Installments[0].DueDate != "2026-01-15" || resp.Installments[2].DueDate != "2026-03-15" {
			t.Errorf("unexpected due dates %+v", resp.Installments)
		}
		if resp.Installments[1].AmountCents != 10000 {
			t.Errorf("expected 10000 per installment, got %d", resp.Installments[1].AmountCents)
		}
	})

	t.Run("Draft", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/bills/"+created.ID+"/draft", nil)
		var resp DraftResponse
		decode(t, rr, &resp)
		if resp.Draft.ID != created.ID || !resp.Valid {
			t.Errorf("expected valid edit draft, got %+v", resp)
		}
	})

	t.Run("Update", func(t *testing.T) {
		draft := loanDraft()
		draft.Name = "Car loan (refinanced)"
		rr := doRequest(t, server, http.MethodPut, "/bills/"+created.ID, draft)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var bill domain.Bill
		decode(t, rr, &bill)
		if bill.ID != created.ID || bill.Name != draft.Name {
			t.Errorf("unexpected bill %+v", bill)
		}
		if bill.CreatedAt.Sub(created.CreatedAt).Abs() > time.Second {
			t.Errorf("expected createdAt %v to be kept, got %v", created.CreatedAt, bill.CreatedAt)
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPut, "/bills/nope", loanDraft())
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("OtherTenantCannotSee", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/bills/"+created.ID, nil)
		req.Header.Set(TenantIDHeader, "tenant-002")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodDelete, "/bills/"+created.ID, nil)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected status 204, got %d", rr.Code)
		}
		rr = doRequest(t, server, http.MethodDelete, "/bills/"+created.ID, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 on second delete, got %d", rr.Code)
		}
	})
}

func TestFigureAndSummaryEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("InvalidMonth", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPut, "/figures/2026/13", FigureRequest{IncomeCents: 1})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NegativeIncome", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPut, "/figures/2026/1", FigureRequest{IncomeCents: -1})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("Record", func(t *testing.T) {
		for _, f := range []struct {
			path string
			body FigureRequest
		}{
			{"/figures/2026/1", FigureRequest{IncomeCents: 1000, ExpensesCents: 800}},
			{"/figures/2026/2", FigureRequest{IncomeCents: 2000, ExpensesCents: 1000}},
		} {
			rr := doRequest(t, server, http.MethodPut, f.path, f.body)
			if rr.Code != http.StatusOK {
				t.Fatalf("PUT %s: expected status 200, got %d: %s", f.path, rr.Code, rr.Body.String())
			}
		}

		rr := doRequest(t, server, http.MethodGet, "/figures", nil)
		var resp struct {
			Figures []domain.MonthlyFigure `json:"figures"`
		}
		decode(t, rr, &resp)
		if len(resp.Figures) != 2 || resp.Figures[0].Month != 1 {
			t.Errorf("expected 2 figures in order, got %+v", resp.Figures)
		}
	})

	t.Run("Summary", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/summary?months=6", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if rr.Header().Get("X-Cache") != "MISS" {
			t.Errorf("expected cache miss, got %q", rr.Header().Get("X-Cache"))
		}

		var s domain.MonthlySummary
		decode(t, rr, &s)
		if s.Trend.AverageIncomeCents != 1500 || s.Trend.AverageExpensesCents != 900 || s.Trend.AverageSurplusCents != 600 {
			t.Errorf("unexpected trend %+v", s.Trend)
		}
		if s.Trend.PeriodLabel != "last 2 months" {
			t.Errorf("unexpected label %q", s.Trend.PeriodLabel)
		}
		if s.OverallStatus != domain.StatusExcellent {
			t.Errorf("expected EXCELLENT, got %s", s.OverallStatus)
		}

		rr = doRequest(t, server, http.MethodGet, "/summary?months=6", nil)
		if rr.Header().Get("X-Cache") != "HIT" {
			t.Errorf("expected cache hit, got %q", rr.Header().Get("X-Cache"))
		}
	})

	t.Run("SummaryBadWindow", func(t *testing.T) {
		for _, q := range []string{"0", "-1", "abc", "121"} {
			rr := doRequest(t, server, http.MethodGet, "/summary?months="+q, nil)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("months=%s: expected status 400, got %d", q, rr.Code)
			}
		}
	})

	t.Run("Export", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/summary/export.xlsx", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if rr.Header().Get("Content-Type") != xlsxContentType {
			t.Errorf("unexpected content type %q", rr.Header().Get("Content-Type"))
		}

		f, err := excelize.OpenReader(rr.Body)
		if err != nil {
			t.Fatalf("failed to read workbook: %v", err)
		}
		defer f.Close()

		rows, err := f.GetRows("months")
		if err != nil || len(rows) != 3 {
			t.Errorf("expected header + 2 rows, got %d (%v)", len(rows), err)
		}
	})

	t.Run("Report", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/summary/2026/1/report", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var report domain.MonthReport
		decode(t, rr, &report)
		if report.Status != domain.StatusExcellent || report.Alert {
			t.Errorf("unexpected report %+v", report)
		}

		rr = doRequest(t, server, http.MethodGet, "/summary/2026/5/report", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestInsightRuleEndpoints(t *testing.T) {
	server := createTestServer(t)
	doRequest(t, server, http.MethodPut, "/figures/2026/3", FigureRequest{IncomeCents: 100000, ExpensesCents: 70000})

	one := 1.0
	rule := domain.InsightRule{
		ID:         "big-spender",
		Name:       "Expenses above 500.00",
		Expression: "expenses > 50000",
		Bands: []domain.RuleBand{
			{LowerLimit: &one, Outcome: domain.RuleOutcomeReview, Reason: "expenses above 500.00"},
		},
		Enabled: true,
	}

	t.Run("InvalidExpression", func(t *testing.T) {
		bad := rule
		bad.Expression = "expenses >"
		rr := doRequest(t, server, http.MethodPost, "/insight-rules", bad)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingID", func(t *testing.T) {
		bad := rule
		bad.ID = ""
		rr := doRequest(t, server, http.MethodPost, "/insight-rules", bad)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("CreateAndReload", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/insight-rules", rule)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doRequest(t, server, http.MethodGet, "/insight-rules", nil)
		var list struct {
			Count  int `json:"count"`
			Loaded int `json:"loaded"`
		}
		decode(t, rr, &list)
		if list.Count != 1 || list.Loaded != 0 {
			t.Errorf("expected 1 stored and 0 loaded, got %+v", list)
		}

		rr = doRequest(t, server, http.MethodPost, "/insight-rules/reload", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doRequest(t, server, http.MethodGet, "/insight-rules", nil)
		decode(t, rr, &list)
		if list.Loaded != 1 {
			t.Errorf("expected 1 loaded rule, got %d", list.Loaded)
		}
	})

	t.Run("ReportUsesRule", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/summary/2026/3/report", nil)
		var report domain.MonthReport
		decode(t, rr, &report)

		if len(report.RuleResults) != 1 || report.RuleResults[0].Outcome != domain.RuleOutcomeReview {
			t.Fatalf("expected one review outcome, got %+v", report.RuleResults)
		}
		if report.Alert {
			t.Error("review outcomes must not alert by default")
		}
		if len(report.Reasons) != 1 || report.Reasons[0] != "expenses above 500.00" {
			t.Errorf("unexpected reasons %v", report.Reasons)
		}
	})
}
