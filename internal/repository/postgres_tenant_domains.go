package repository

import (
	"context"
	"database/sql"
	"fmt"

	"meatchain/internal/domain"
	"meatchain/internal/tenancy"
)

// PostgresTenantDomainsRepository 租户域名映射Repository实现
type PostgresTenantDomainsRepository struct {
	db *sql.DB
}

// NewPostgresTenantDomainsRepository 创建域名Repository
func NewPostgresTenantDomainsRepository(db *sql.DB) *PostgresTenantDomainsRepository {
	return &PostgresTenantDomainsRepository{db: db}
}

// 确保实现了接口
var _ TenantDomainsRepository = (*PostgresTenantDomainsRepository)(nil)

// ListDomains 查询租户的全部域名（primary 在前）
func (r *PostgresTenantDomainsRepository) ListDomains(ctx context.Context, tenantID string) ([]*domain.TenantDomain, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	q := tenancy.Querier(ctx, r.db)
	rows, err := q.QueryContext(ctx,
		`SELECT domain_id::text, domain, tenant_id::text, is_primary, created_at
		 FROM tenant_domains
		 WHERE tenant_id = $1::uuid
		 ORDER BY is_primary DESC, domain`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	defer rows.Close()

	domains := []*domain.TenantDomain{}
	for rows.Next() {
		var d domain.TenantDomain
		if err := rows.Scan(&d.DomainID, &d.Domain, &d.TenantID, &d.IsPrimary, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		domains = append(domains, &d)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate domains: %w", err)
	}

	return domains, nil
}

// AddDomain 挂接域名。域名全局唯一（重复挂接报唯一冲突）；
// 部分唯一索引保证每租户至多一个 primary，切换主域名走 SetPrimaryDomain。
func (r *PostgresTenantDomainsRepository) AddDomain(ctx context.Context, d *domain.TenantDomain) (string, error) {
	if d == nil {
		return "", fmt.Errorf("domain is required")
	}
	if d.TenantID == "" {
		return "", fmt.Errorf("tenant_id is required")
	}
	if d.Domain == "" {
		return "", fmt.Errorf("domain is required")
	}

	q := tenancy.Querier(ctx, r.db)
	var domainID string
	err := q.QueryRowContext(ctx,
		`INSERT INTO tenant_domains (domain, tenant_id, is_primary)
		 VALUES (lower($1), $2::uuid, $3)
		 RETURNING domain_id::text`,
		d.Domain, d.TenantID, d.IsPrimary,
	).Scan(&domainID)
	if err != nil {
		return "", fmt.Errorf("failed to add domain: %w", err)
	}

	return domainID, nil
}

// DeleteDomain 摘除域名（按租户+域名定位，跨租户摘除落空）
func (r *PostgresTenantDomainsRepository) DeleteDomain(ctx context.Context, tenantID, domainName string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if domainName == "" {
		return fmt.Errorf("domain is required")
	}

	q := tenancy.Querier(ctx, r.db)
	result, err := q.ExecContext(ctx,
		`DELETE FROM tenant_domains WHERE tenant_id = $1::uuid AND domain = lower($2)`,
		tenantID, domainName,
	)
	if err != nil {
		return fmt.Errorf("failed to delete domain: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("domain not found: %w", sql.ErrNoRows)
	}

	return nil
}

// SetPrimaryDomain 切换主域名：先清旧 primary 再立新，两步同在请求事务内
func (r *PostgresTenantDomainsRepository) SetPrimaryDomain(ctx context.Context, tenantID, domainName string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if domainName == "" {
		return fmt.Errorf("domain is required")
	}

	q := tenancy.Querier(ctx, r.db)

	_, err := q.ExecContext(ctx,
		`UPDATE tenant_domains SET is_primary = FALSE WHERE tenant_id = $1::uuid AND is_primary`,
		tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear primary domain: %w", err)
	}

	result, err := q.ExecContext(ctx,
		`UPDATE tenant_domains SET is_primary = TRUE WHERE tenant_id = $1::uuid AND domain = lower($2)`,
		tenantID, domainName,
	)
	if err != nil {
		return fmt.Errorf("failed to set primary domain: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("domain not found: %w", sql.ErrNoRows)
	}

	return nil
}
