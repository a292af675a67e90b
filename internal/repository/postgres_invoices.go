package repository

import (
	"context"
	"database/sql"
	"fmt"

	"meatchain/internal/domain"
	"meatchain/internal/metrics"
	"meatchain/internal/tenancy"

	"go.uber.org/zap"
)

// PostgresInvoicesRepository 发票Repository实现。
// 租户域数据访问的样板：每个方法先过 guard（显式 tenantID 必须等于
// 请求绑定的租户），SQL 谓词再按 tenant_id 过滤，行级策略在库侧兜底。
type PostgresInvoicesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresInvoicesRepository 创建发票Repository
func NewPostgresInvoicesRepository(db *sql.DB, logger *zap.Logger) *PostgresInvoicesRepository {
	return &PostgresInvoicesRepository{db: db, logger: logger}
}

// 确保实现了接口
var _ InvoicesRepository = (*PostgresInvoicesRepository)(nil)

// guard 跨租户访问检测：参数租户与绑定租户不一致时大声记录并中止
func (r *PostgresInvoicesRepository) guard(ctx context.Context, tenantID, op string) error {
	if err := tenancy.EnsureTenant(ctx, tenantID); err != nil {
		bound, _ := tenancy.TenantFrom(ctx)
		r.logger.Error("Cross-tenant access blocked",
			zap.String("op", op),
			zap.String("bound_tenant", bound),
			zap.String("argument_tenant", tenantID),
		)
		metrics.ObserveIsolationViolation("invoices")
		return err
	}
	return nil
}

// ListInvoices 查询租户发票列表（分页）
func (r *PostgresInvoicesRepository) ListInvoices(ctx context.Context, tenantID string, page, size int) ([]*domain.Invoice, int, error) {
	if tenantID == "" {
		return nil, 0, fmt.Errorf("tenant_id is required")
	}
	if err := r.guard(ctx, tenantID, "ListInvoices"); err != nil {
		return nil, 0, err
	}
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	offset := (page - 1) * size

	q := tenancy.Querier(ctx, r.db)

	// 查询总数
	var total int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invoices WHERE tenant_id = $1::uuid`,
		tenantID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	// 查询列表（带分页）
	rows, err := q.QueryContext(ctx,
		`SELECT
			invoice_id::text,
			tenant_id::text,
			invoice_number,
			COALESCE(customer_name, '') as customer_name,
			total_cents,
			issued_on,
			created_by::text,
			created_at
		 FROM invoices
		 WHERE tenant_id = $1::uuid
		 ORDER BY issued_on DESC, invoice_number
		 LIMIT $2 OFFSET $3`,
		tenantID, size, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	invoices := []*domain.Invoice{}
	for rows.Next() {
		var inv domain.Invoice
		err := rows.Scan(
			&inv.InvoiceID,
			&inv.TenantID,
			&inv.InvoiceNumber,
			&inv.CustomerName,
			&inv.TotalCents,
			&inv.IssuedOn,
			&inv.CreatedBy,
			&inv.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, &inv)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate invoices: %w", err)
	}

	return invoices, total, nil
}

// GetInvoice 查询单张发票
func (r *PostgresInvoicesRepository) GetInvoice(ctx context.Context, tenantID, invoiceID string) (*domain.Invoice, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if invoiceID == "" {
		return nil, fmt.Errorf("invoice_id is required")
	}
	if err := r.guard(ctx, tenantID, "GetInvoice"); err != nil {
		return nil, err
	}

	q := tenancy.Querier(ctx, r.db)
	var inv domain.Invoice
	err := q.QueryRowContext(ctx,
		`SELECT
			invoice_id::text,
			tenant_id::text,
			invoice_number,
			COALESCE(customer_name, '') as customer_name,
			total_cents,
			issued_on,
			created_by::text,
			created_at
		 FROM invoices
		 WHERE tenant_id = $1::uuid AND invoice_id = $2::uuid`,
		tenantID, invoiceID,
	).Scan(
		&inv.InvoiceID,
		&inv.TenantID,
		&inv.InvoiceNumber,
		&inv.CustomerName,
		&inv.TotalCents,
		&inv.IssuedOn,
		&inv.CreatedBy,
		&inv.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("invoice not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return &inv, nil
}

// CreateInvoice 创建发票（tenant_id 取显式参数，绝不从 payload 里拿）
func (r *PostgresInvoicesRepository) CreateInvoice(ctx context.Context, tenantID string, inv *domain.Invoice) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("tenant_id is required")
	}
	if inv == nil {
		return "", fmt.Errorf("invoice is required")
	}
	if inv.InvoiceNumber == "" {
		return "", fmt.Errorf("invoice_number is required")
	}
	if err := r.guard(ctx, tenantID, "CreateInvoice"); err != nil {
		return "", err
	}

	q := tenancy.Querier(ctx, r.db)
	var invoiceID string
	err := q.QueryRowContext(ctx,
		`INSERT INTO invoices (tenant_id, invoice_number, customer_name, total_cents, issued_on, created_by)
		 VALUES ($1::uuid, $2, NULLIF($3, ''), $4, COALESCE(NULLIF($5, '0001-01-01')::date, CURRENT_DATE), NULLIF($6, '')::uuid)
		 RETURNING invoice_id::text`,
		tenantID,
		inv.InvoiceNumber,
		inv.CustomerName,
		inv.TotalCents,
		inv.IssuedOn.Format("2006-01-02"),
		inv.CreatedBy.String,
	).Scan(&invoiceID)
	if err != nil {
		if IsUniqueViolation(err) {
			return "", err
		}
		return "", fmt.Errorf("failed to create invoice: %w", err)
	}

	return invoiceID, nil
}
