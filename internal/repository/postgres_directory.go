package repository

import (
	"context"
	"database/sql"

	"meatchain/internal/domain"
	"meatchain/internal/tenancy"
)

// PostgresDirectory 解析器的租户目录视图（tenancy.Directory 实现）。
// 只取解析需要的窄投影；错误不包装，sql.ErrNoRows 原样返回给解析器做未命中判断。
// 查询走请求事务：成员关系回退在绑定租户之前执行，依赖事务里已设置的用户会话变量。
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

var _ tenancy.Directory = (*PostgresDirectory)(nil)

func (r *PostgresDirectory) TenantByID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := tenancy.Querier(ctx, r.db).QueryRowContext(ctx,
		`SELECT tenant_id::text, tenant_name, slug, COALESCE(status, 'active')
		 FROM tenants WHERE tenant_id = $1::uuid`,
		tenantID,
	).Scan(&t.TenantID, &t.TenantName, &t.Slug, &t.Status)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresDirectory) TenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := tenancy.Querier(ctx, r.db).QueryRowContext(ctx,
		`SELECT tenant_id::text, tenant_name, slug, COALESCE(status, 'active')
		 FROM tenants WHERE slug = lower($1)`,
		slug,
	).Scan(&t.TenantID, &t.TenantName, &t.Slug, &t.Status)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresDirectory) TenantByDomain(ctx context.Context, domainName string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := tenancy.Querier(ctx, r.db).QueryRowContext(ctx,
		`SELECT t.tenant_id::text, t.tenant_name, t.slug, COALESCE(t.status, 'active')
		 FROM tenants t
		 JOIN tenant_domains d ON d.tenant_id = t.tenant_id
		 WHERE d.domain = lower($1)`,
		domainName,
	).Scan(&t.TenantID, &t.TenantName, &t.Slug, &t.Status)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresDirectory) TenantIDsByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := tenancy.Querier(ctx, r.db).QueryContext(ctx,
		`SELECT tenant_id::text FROM tenant_users WHERE user_id = $1::uuid ORDER BY joined_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
