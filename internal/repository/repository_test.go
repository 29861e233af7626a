package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/contas/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "contas-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetBill", func(t *testing.T) {
		bill := &domain.Bill{
			ID:                        "bill-001",
			Name:                      "Rent",
			Type:                      domain.AccountFixed,
			HasInstallments:           true,
			InstallmentCount:          12,
			PerInstallmentAmountCents: 150000,
			TotalAmountCents:          1800000,
			StartDate:                 "2026-01-01",
			DueDay:                    5,
		}

		if err := repo.SaveBill(ctx, tenantID, bill); err != nil {
			t.Fatalf("SaveBill failed: %v", err)
		}

		got, err := repo.GetBill(ctx, tenantID, bill.ID)
		if err != nil {
			t.Fatalf("GetBill failed: %v", err)
		}
		if got.Name != "Rent" || got.Type != domain.AccountFixed {
			t.Errorf("unexpected bill %+v", got)
		}
		if !got.HasInstallments || got.InstallmentCount != 12 {
			t.Errorf("expected 12 installments, got %+v", got)
		}
		if got.TotalAmountCents != 1800000 {
			t.Errorf("expected total 1800000, got %d", got.TotalAmountCents)
		}
		if got.TenantID != tenantID {
			t.Errorf("expected TenantID %s, got %s", tenantID, got.TenantID)
		}
		if got.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be set")
		}
	})

	t.Run("UpdateBill", func(t *testing.T) {
		bill, _ := repo.GetBill(ctx, tenantID, "bill-001")
		created := bill.CreatedAt
		bill.Name = "Apartment rent"

		if err := repo.SaveBill(ctx, tenantID, bill); err != nil {
			t.Fatalf("SaveBill failed: %v", err)
		}

		got, _ := repo.GetBill(ctx, tenantID, "bill-001")
		if got.Name != "Apartment rent" {
			t.Errorf("expected updated name, got %s", got.Name)
		}
		if !got.CreatedAt.Equal(created) {
			t.Errorf("expected CreatedAt %v, got %v", created, got.CreatedAt)
		}
	})

	t.Run("CreditCardBill", func(t *testing.T) {
		card := &domain.Bill{
			ID:               "bill-002",
			Name:             "Visa",
			Type:             domain.AccountCreditCard,
			InstallmentCount: 1,
			StartDate:        "2026-01-01",
			DueDay:           20,
			CreditLimitCents: 800000,
			ClosingDate:      12,
		}
		if err := repo.SaveBill(ctx, tenantID, card); err != nil {
			t.Fatalf("SaveBill failed: %v", err)
		}

		got, _ := repo.GetBill(ctx, tenantID, "bill-002")
		if got.CreditLimitCents != 800000 || got.ClosingDate != 12 {
			t.Errorf("expected credit fields, got %+v", got)
		}
	})

	t.Run("ListBills", func(t *testing.T) {
		bills, err := repo.ListBills(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListBills failed: %v", err)
		}
		if len(bills) != 2 {
			t.Fatalf("expected 2 bills, got %d", len(bills))
		}
		if bills[0].Name != "Apartment rent" {
			t.Errorf("expected bills ordered by name, got %s first", bills[0].Name)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		otherTenant := "tenant-002"

		if _, err := repo.GetBill(ctx, otherTenant, "bill-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for other tenant, got %v", err)
		}
		bills, _ := repo.ListBills(ctx, otherTenant)
		if len(bills) != 0 {
			t.Errorf("expected no bills for other tenant, got %d", len(bills))
		}
		if err := repo.DeleteBill(ctx, otherTenant, "bill-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound deleting for other tenant, got %v", err)
		}
	})

	t.Run("DeleteBill", func(t *testing.T) {
		if err := repo.DeleteBill(ctx, tenantID, "bill-002"); err != nil {
			t.Fatalf("DeleteBill failed: %v", err)
		}
		if _, err := repo.GetBill(ctx, tenantID, "bill-002"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.DeleteBill(ctx, tenantID, "bill-002"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("RequiresTenant", func(t *testing.T) {
		if err := repo.SaveBill(ctx, "", &domain.Bill{ID: "x"}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := repo.ListFigures(ctx, "", 0); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err := repo.SaveBill(ctx, tenantID, &domain.Bill{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for missing ID, got %v", err)
		}
	})
}

func TestFigures(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	months := []domain.MonthlyFigure{
		{Year: 2025, Month: 11, IncomeCents: 100, ExpensesCents: 50},
		{Year: 2026, Month: 2, IncomeCents: 400, ExpensesCents: 200},
		{Year: 2025, Month: 12, IncomeCents: 200, ExpensesCents: 100},
		{Year: 2026, Month: 1, IncomeCents: 300, ExpensesCents: 150},
	}
	for _, m := range months {
		if err := repo.UpsertFigure(ctx, tenantID, m); err != nil {
			t.Fatalf("UpsertFigure failed: %v", err)
		}
	}

	t.Run("AllChronological", func(t *testing.T) {
		got, err := repo.ListFigures(ctx, tenantID, 0)
		if err != nil {
			t.Fatalf("ListFigures failed: %v", err)
		}
		want := []string{"2025-11", "2025-12", "2026-01", "2026-02"}
		if len(got) != len(want) {
			t.Fatalf("expected %d figures, got %d", len(want), len(got))
		}
		for i := range want {
			if got[i].Period() != want[i] {
				t.Errorf("figure %d: expected %s, got %s", i, want[i], got[i].Period())
			}
		}
	})

	t.Run("LastMonths", func(t *testing.T) {
		got, _ := repo.ListFigures(ctx, tenantID, 2)
		if len(got) != 2 {
			t.Fatalf("expected 2 figures, got %d", len(got))
		}
		if got[0].Period() != "2026-01" || got[1].Period() != "2026-02" {
			t.Errorf("expected the two newest months, got %s and %s", got[0].Period(), got[1].Period())
		}
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		if err := repo.UpsertFigure(ctx, tenantID, domain.MonthlyFigure{Year: 2026, Month: 2, IncomeCents: 999, ExpensesCents: 1}); err != nil {
			t.Fatalf("UpsertFigure failed: %v", err)
		}
		got, _ := repo.ListFigures(ctx, tenantID, 1)
		if got[0].IncomeCents != 999 || got[0].ExpensesCents != 1 {
			t.Errorf("expected replaced figure, got %+v", got[0])
		}
		all, _ := repo.ListFigures(ctx, tenantID, 0)
		if len(all) != 4 {
			t.Errorf("expected 4 figures after upsert, got %d", len(all))
		}
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		err := repo.UpsertFigure(ctx, tenantID, domain.MonthlyFigure{Year: 2026, Month: 13})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("ListTenants", func(t *testing.T) {
		repo.UpsertFigure(ctx, "tenant-b", domain.MonthlyFigure{Year: 2026, Month: 1, IncomeCents: 1})
		repo.SaveBill(ctx, "tenant-a", &domain.Bill{ID: "b", Name: "x", Type: domain.AccountOther, StartDate: "2026-01-01", DueDay: 1})

		tenants, err := repo.ListTenants(ctx)
		if err != nil {
			t.Fatalf("ListTenants failed: %v", err)
		}
		want := []string{"tenant-001", "tenant-a", "tenant-b"}
		if len(tenants) != len(want) {
			t.Fatalf("expected %v, got %v", want, tenants)
		}
		for i := range want {
			if tenants[i] != want[i] {
				t.Errorf("expected %s, got %s", want[i], tenants[i])
			}
		}
	})
}

func TestInsightRules(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	limit := 0.1
	rule := &domain.InsightRule{
		ID:         "savings-rate",
		Name:       "Savings rate",
		Version:    "1.0.0",
		Expression: "ratio",
		Bands: []domain.RuleBand{
			{UpperLimit: &limit, Outcome: domain.RuleOutcomeFail, Reason: "low savings"},
			{LowerLimit: &limit, Outcome: domain.RuleOutcomePass, Reason: "ok"},
		},
		Enabled: true,
	}

	if err := repo.SaveInsightRule(ctx, tenantID, rule); err != nil {
		t.Fatalf("SaveInsightRule failed: %v", err)
	}

	rules, err := repo.ListInsightRules(ctx, tenantID)
	if err != nil {
		t.Fatalf("ListInsightRules failed: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	if len(rules[0].Bands) != 2 || *rules[0].Bands[0].UpperLimit != 0.1 {
		t.Errorf("bands not restored: %+v", rules[0].Bands)
	}
	if rules[0].TenantID != tenantID || !rules[0].Enabled {
		t.Errorf("unexpected rule %+v", rules[0])
	}

	rule.Enabled = false
	rule.Version = "1.1.0"
	if err := repo.SaveInsightRule(ctx, tenantID, rule); err != nil {
		t.Fatalf("SaveInsightRule update failed: %v", err)
	}
	rules, _ = repo.ListInsightRules(ctx, tenantID)
	if len(rules) != 1 || rules[0].Enabled || rules[0].Version != "1.1.0" {
		t.Errorf("expected one disabled rule at 1.1.0, got %+v", rules)
	}

	other, _ := repo.ListInsightRules(ctx, "tenant-002")
	if len(other) != 0 {
		t.Errorf("expected no rules for other tenant, got %d", len(other))
	}
}

func TestMemoryDatabase(t *testing.T) {
	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: MemoryPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	if err := repo.UpsertFigure(ctx, "t", domain.MonthlyFigure{Year: 2026, Month: 1, IncomeCents: 1}); err != nil {
		t.Fatalf("UpsertFigure failed: %v", err)
	}
	figures, _ := repo.ListFigures(ctx, "t", 0)
	if len(figures) != 1 {
		t.Errorf("expected 1 figure, got %d", len(figures))
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("unexpected rebind %q", got)
	}
	lite := &SQLRepository{driver: "sqlite"}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("unexpected rebind %q", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{PostgresUser: "u", PostgresPassword: "p"})
	want := "host=localhost port=5432 user=u password=p dbname=contas sslmode=disable"
	if dsn != want {
		t.Errorf("expected %q, got %q", want, dsn)
	}

	url := "postgres://u:p@db:5432/contas?sslmode=require"
	if got := postgresDSN(domain.RepositoryConfig{PostgresURL: url}); got != url {
		t.Errorf("expected URL to win, got %q", got)
	}
}
