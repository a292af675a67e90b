package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"meatchain/internal/domain"
	"meatchain/internal/tenancy"
)

// PostgresTenantsRepository 租户目录Repository实现
// 实现TenantsRepository接口，使用domain.Tenant领域模型。
// 所有查询经 tenancy.Querier 走请求事务；无事务时（启动引导、运维脚本）回退连接池。
type PostgresTenantsRepository struct {
	db *sql.DB
}

// NewPostgresTenantsRepository 创建租户Repository
func NewPostgresTenantsRepository(db *sql.DB) *PostgresTenantsRepository {
	return &PostgresTenantsRepository{db: db}
}

// 确保实现了接口
var _ TenantsRepository = (*PostgresTenantsRepository)(nil)

// GetTenant 根据tenant_id获取租户信息
func (r *PostgresTenantsRepository) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := `
		SELECT
			tenant_id::text,
			tenant_name,
			slug,
			COALESCE(email, '') as email,
			COALESCE(phone, '') as phone,
			on_trial,
			paid_until,
			COALESCE(settings, '{}'::jsonb) as settings,
			COALESCE(status, 'active') as status,
			created_by::text,
			created_at,
			updated_at
		FROM tenants
		WHERE tenant_id = $1::uuid
	`

	q := tenancy.Querier(ctx, r.db)
	var tenant domain.Tenant
	var settingsRaw json.RawMessage
	err := q.QueryRowContext(ctx, query, tenantID).Scan(
		&tenant.TenantID,
		&tenant.TenantName,
		&tenant.Slug,
		&tenant.Email,
		&tenant.Phone,
		&tenant.OnTrial,
		&tenant.PaidUntil,
		&settingsRaw,
		&tenant.Status,
		&tenant.CreatedBy,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tenant not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	tenant.Settings = settingsRaw
	return &tenant, nil
}

// GetTenantBySlug 根据slug获取租户信息（子域名路由/引导用）
func (r *PostgresTenantsRepository) GetTenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	if slug == "" {
		return nil, fmt.Errorf("slug is required")
	}

	query := `
		SELECT
			tenant_id::text,
			tenant_name,
			slug,
			COALESCE(email, '') as email,
			COALESCE(phone, '') as phone,
			on_trial,
			paid_until,
			COALESCE(settings, '{}'::jsonb) as settings,
			COALESCE(status, 'active') as status,
			created_by::text,
			created_at,
			updated_at
		FROM tenants
		WHERE slug = lower($1)
	`

	q := tenancy.Querier(ctx, r.db)
	var tenant domain.Tenant
	var settingsRaw json.RawMessage
	err := q.QueryRowContext(ctx, query, slug).Scan(
		&tenant.TenantID,
		&tenant.TenantName,
		&tenant.Slug,
		&tenant.Email,
		&tenant.Phone,
		&tenant.OnTrial,
		&tenant.PaidUntil,
		&settingsRaw,
		&tenant.Status,
		&tenant.CreatedBy,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tenant not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get tenant by slug: %w", err)
	}

	tenant.Settings = settingsRaw
	return &tenant, nil
}

// ListTenants 查询租户列表（支持分页、过滤、搜索）
func (r *PostgresTenantsRepository) ListTenants(ctx context.Context, filter TenantFilters, page, size int) ([]*domain.Tenant, int, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	offset := (page - 1) * size

	// 构建WHERE条件
	where := []string{}
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Search != "" {
		where = append(where, fmt.Sprintf("tenant_name ILIKE $%d", argIdx))
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	q := tenancy.Querier(ctx, r.db)

	// 查询总数
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM tenants %s`, whereClause)
	var total int
	err := q.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count tenants: %w", err)
	}

	// 查询列表（带分页）
	query := fmt.Sprintf(`
		SELECT
			tenant_id::text,
			tenant_name,
			slug,
			COALESCE(email, '') as email,
			COALESCE(phone, '') as phone,
			on_trial,
			paid_until,
			COALESCE(settings, '{}'::jsonb) as settings,
			COALESCE(status, 'active') as status,
			created_by::text,
			created_at,
			updated_at
		FROM tenants
		%s
		ORDER BY tenant_name
		LIMIT $%d OFFSET $%d
	`, whereClause, argIdx, argIdx+1)

	args = append(args, size, offset)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []*domain.Tenant{}
	for rows.Next() {
		var tenant domain.Tenant
		var settingsRaw json.RawMessage
		err := rows.Scan(
			&tenant.TenantID,
			&tenant.TenantName,
			&tenant.Slug,
			&tenant.Email,
			&tenant.Phone,
			&tenant.OnTrial,
			&tenant.PaidUntil,
			&settingsRaw,
			&tenant.Status,
			&tenant.CreatedBy,
			&tenant.CreatedAt,
			&tenant.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenant.Settings = settingsRaw
		tenants = append(tenants, &tenant)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate tenants: %w", err)
	}

	return tenants, total, nil
}

// CreateTenant 创建新租户
func (r *PostgresTenantsRepository) CreateTenant(ctx context.Context, tenant *domain.Tenant) (string, error) {
	if tenant == nil {
		return "", fmt.Errorf("tenant is required")
	}
	if tenant.TenantName == "" {
		return "", fmt.Errorf("tenant_name is required")
	}
	if tenant.Slug == "" {
		return "", fmt.Errorf("slug is required")
	}

	// 处理默认值
	status := tenant.Status
	if status == "" {
		status = domain.TenantStatusActive
	}

	// 处理settings
	settingsArg := "{}"
	if len(tenant.Settings) > 0 {
		settingsArg = string(tenant.Settings)
	}

	// 处理可空字段（使用NULLIF将空字符串转为NULL）
	q := tenancy.Querier(ctx, r.db)
	var tenantID string
	err := q.QueryRowContext(ctx,
		`INSERT INTO tenants (tenant_name, slug, email, phone, on_trial, status, settings, created_by)
		 VALUES ($1, lower($2), NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7::jsonb, NULLIF($8, '')::uuid)
		 RETURNING tenant_id::text`,
		tenant.TenantName,
		tenant.Slug,
		tenant.Email,
		tenant.Phone,
		tenant.OnTrial,
		status,
		settingsArg,
		tenant.CreatedBy.String,
	).Scan(&tenantID)
	if err != nil {
		return "", fmt.Errorf("failed to create tenant: %w", err)
	}

	return tenantID, nil
}

// UpsertTenantBySlug 幂等创建租户（guest/demo 引导用）
// slug 已存在时只刷新名称，订阅状态、settings 等保持原值
func (r *PostgresTenantsRepository) UpsertTenantBySlug(ctx context.Context, tenant *domain.Tenant) (string, error) {
	if tenant == nil {
		return "", fmt.Errorf("tenant is required")
	}
	if tenant.TenantName == "" {
		return "", fmt.Errorf("tenant_name is required")
	}
	if tenant.Slug == "" {
		return "", fmt.Errorf("slug is required")
	}

	settingsArg := "{}"
	if len(tenant.Settings) > 0 {
		settingsArg = string(tenant.Settings)
	}

	q := tenancy.Querier(ctx, r.db)
	var tenantID string
	err := q.QueryRowContext(ctx,
		`INSERT INTO tenants (tenant_name, slug, email, phone, on_trial, status, settings)
		 VALUES ($1, lower($2), NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7::jsonb)
		 ON CONFLICT (slug) DO UPDATE
		 SET tenant_name = EXCLUDED.tenant_name,
		     updated_at = now()
		 RETURNING tenant_id::text`,
		tenant.TenantName,
		tenant.Slug,
		tenant.Email,
		tenant.Phone,
		tenant.OnTrial,
		domain.TenantStatusActive,
		settingsArg,
	).Scan(&tenantID)
	if err != nil {
		return "", fmt.Errorf("failed to upsert tenant: %w", err)
	}

	return tenantID, nil
}

// UpdateTenant 更新租户基本信息（空字段跳过；slug 不可变更）
func (r *PostgresTenantsRepository) UpdateTenant(ctx context.Context, tenantID string, tenant *domain.Tenant) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if tenant == nil {
		return fmt.Errorf("tenant is required")
	}

	// 构建UPDATE语句
	updates := []string{}
	args := []any{tenantID}
	argIdx := 2

	if tenant.TenantName != "" {
		updates = append(updates, fmt.Sprintf("tenant_name = $%d", argIdx))
		args = append(args, tenant.TenantName)
		argIdx++
	}

	// email, phone 使用 NULLIF 处理空字符串
	if tenant.Email != "" {
		updates = append(updates, fmt.Sprintf("email = NULLIF($%d, '')", argIdx))
		args = append(args, tenant.Email)
		argIdx++
	}

	if tenant.Phone != "" {
		updates = append(updates, fmt.Sprintf("phone = NULLIF($%d, '')", argIdx))
		args = append(args, tenant.Phone)
		argIdx++
	}

	if len(updates) == 0 {
		return fmt.Errorf("no fields to update")
	}

	updates = append(updates, "updated_at = now()")

	query := fmt.Sprintf(`
		UPDATE tenants
		SET %s
		WHERE tenant_id = $1::uuid
	`, strings.Join(updates, ", "))

	q := tenancy.Querier(ctx, r.db)
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("tenant not found: %w", sql.ErrNoRows)
	}

	return nil
}

// UpdateSettings 整体替换租户settings（合法性由service层校验）
func (r *PostgresTenantsRepository) UpdateSettings(ctx context.Context, tenantID string, settings json.RawMessage) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}

	settingsArg := "{}"
	if len(settings) > 0 {
		settingsArg = string(settings)
	}

	q := tenancy.Querier(ctx, r.db)
	result, err := q.ExecContext(ctx,
		`UPDATE tenants SET settings = $2::jsonb, updated_at = now() WHERE tenant_id = $1::uuid`,
		tenantID, settingsArg,
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant settings: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("tenant not found: %w", sql.ErrNoRows)
	}

	return nil
}

// SetTenantStatus 更新租户状态（active/suspended 软下线，不做物理删除）
func (r *PostgresTenantsRepository) SetTenantStatus(ctx context.Context, tenantID string, status string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if status != domain.TenantStatusActive && status != domain.TenantStatusSuspended {
		return fmt.Errorf("invalid tenant status: %s", status)
	}

	q := tenancy.Querier(ctx, r.db)
	result, err := q.ExecContext(ctx,
		`UPDATE tenants SET status = $2, updated_at = now() WHERE tenant_id = $1::uuid`,
		tenantID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to set tenant status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("tenant not found: %w", sql.ErrNoRows)
	}

	return nil
}
