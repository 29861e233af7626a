// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/contas/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const billColumns = `
	id, tenant_id, name, type, is_preview, has_installments, installment_count,
	per_installment_amount, total_amount, start_date, due_day, credit_limit,
	closing_date, created_at, updated_at`

// SaveBill inserts or replaces a bill with tenant isolation.
// CreatedAt is kept from the first save.
func (r *SQLRepository) SaveBill(ctx context.Context, tenantID string, bill *domain.Bill) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if bill == nil || bill.ID == "" {
		return fmt.Errorf("%w: bill ID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = now
	}
	bill.UpdatedAt = now
	bill.TenantID = tenantID

	query := `
		INSERT INTO bills (` + billColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			is_preview = excluded.is_preview,
			has_installments = excluded.has_installments,
			installment_count = excluded.installment_count,
			per_installment_amount = excluded.per_installment_amount,
			total_amount = excluded.total_amount,
			start_date = excluded.start_date,
			due_day = excluded.due_day,
			credit_limit = excluded.credit_limit,
			closing_date = excluded.closing_date,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		bill.ID, tenantID, bill.Name, string(bill.Type),
		boolInt(bill.IsPreview), boolInt(bill.HasInstallments), bill.InstallmentCount,
		bill.PerInstallmentAmountCents, bill.TotalAmountCents,
		bill.StartDate, bill.DueDay,
		bill.CreditLimitCents, bill.ClosingDate,
		bill.CreatedAt, bill.UpdatedAt,
	)
	return err
}

// GetBill retrieves a bill by ID with tenant isolation.
func (r *SQLRepository) GetBill(ctx context.Context, tenantID string, billID string) (*domain.Bill, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + billColumns + ` FROM bills WHERE tenant_id = ? AND id = ?`

	bill, err := scanBill(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, billID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return bill, nil
}

// ListBills retrieves every bill of a tenant ordered by name.
func (r *SQLRepository) ListBills(ctx context.Context, tenantID string) ([]*domain.Bill, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + billColumns + ` FROM bills WHERE tenant_id = ? ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bills := []*domain.Bill{}
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}

	return bills, rows.Err()
}

// DeleteBill removes a bill with tenant isolation.
func (r *SQLRepository) DeleteBill(ctx context.Context, tenantID string, billID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM bills WHERE tenant_id = ? AND id = ?`), tenantID, billID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (*domain.Bill, error) {
	var b domain.Bill
	var billType string
	var preview, installments int

	if err := row.Scan(
		&b.ID, &b.TenantID, &b.Name, &billType, &preview, &installments, &b.InstallmentCount,
		&b.PerInstallmentAmountCents, &b.TotalAmountCents, &b.StartDate, &b.DueDay, &b.CreditLimitCents,
		&b.ClosingDate, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}

	b.Type = domain.AccountType(billType)
	b.IsPreview = preview == 1
	b.HasInstallments = installments == 1
	return &b, nil
}

// UpsertFigure records the balance of one month, replacing an earlier value.
func (r *SQLRepository) UpsertFigure(ctx context.Context, tenantID string, figure domain.MonthlyFigure) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if err := figure.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	query := `
		INSERT INTO monthly_figures (tenant_id, year, month, income, expenses, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, year, month) DO UPDATE SET
			income = excluded.income,
			expenses = excluded.expenses,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tenantID, figure.Year, figure.Month,
		figure.IncomeCents, figure.ExpensesCents,
		time.Now().UTC(),
	)
	return err
}

// ListFigures returns the tenant's most recent months in chronological order.
// lastMonths <= 0 returns every month.
func (r *SQLRepository) ListFigures(ctx context.Context, tenantID string, lastMonths int) ([]domain.MonthlyFigure, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT year, month, income, expenses
		FROM monthly_figures
		WHERE tenant_id = ?
		ORDER BY year DESC, month DESC
	`
	args := []any{tenantID}
	if lastMonths > 0 {
		query += ` LIMIT ` + strconv.Itoa(lastMonths)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var newestFirst []domain.MonthlyFigure
	for rows.Next() {
		var f domain.MonthlyFigure
		if err := rows.Scan(&f.Year, &f.Month, &f.IncomeCents, &f.ExpensesCents); err != nil {
			return nil, err
		}
		newestFirst = append(newestFirst, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	figures := make([]domain.MonthlyFigure, len(newestFirst))
	for i, f := range newestFirst {
		figures[len(newestFirst)-1-i] = f
	}
	return figures, nil
}

// SaveInsightRule stores an insight rule with tenant isolation.
func (r *SQLRepository) SaveInsightRule(ctx context.Context, tenantID string, rule *domain.InsightRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	bands, err := json.Marshal(rule.Bands)
	if err != nil {
		return fmt.Errorf("failed to encode bands: %w", err)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO insight_rules (
			id, tenant_id, name, description, version, expression, bands, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), boolInt(rule.Enabled),
		now, now,
	)
	return err
}

// ListInsightRules retrieves every insight rule of a tenant, enabled or not.
func (r *SQLRepository) ListInsightRules(ctx context.Context, tenantID string) ([]*domain.InsightRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, enabled
		FROM insight_rules
		WHERE tenant_id = ?
		ORDER BY name, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []*domain.InsightRule{}
	for rows.Next() {
		var rule domain.InsightRule
		var bands string
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Version, &rule.Expression, &bands, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		if err := json.Unmarshal([]byte(bands), &rule.Bands); err != nil {
			return nil, fmt.Errorf("failed to parse bands for rule %s: %w", rule.ID, err)
		}
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// ListTenants returns every tenant that owns bills or figures.
func (r *SQLRepository) ListTenants(ctx context.Context) ([]string, error) {
	query := `
		SELECT tenant_id FROM bills
		UNION
		SELECT tenant_id FROM monthly_figures
		UNION
		SELECT tenant_id FROM insight_rules
		ORDER BY 1
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}

	return tenants, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
