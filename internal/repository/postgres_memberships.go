package repository

import (
	"context"
	"database/sql"
	"fmt"

	"meatchain/internal/domain"
	"meatchain/internal/tenancy"
)

// PostgresMembershipsRepository 租户成员关系Repository实现
// tenant_users 表带双臂行级策略：除按租户过滤外，
// 用户也始终能看到自己名下的成员关系（解析回退、兑换流程用）。
type PostgresMembershipsRepository struct {
	db *sql.DB
}

// NewPostgresMembershipsRepository 创建成员Repository
func NewPostgresMembershipsRepository(db *sql.DB) *PostgresMembershipsRepository {
	return &PostgresMembershipsRepository{db: db}
}

// 确保实现了接口
var _ MembershipsRepository = (*PostgresMembershipsRepository)(nil)

// GetMembership 查询某用户在某租户下的成员关系（权限判定入口）
func (r *PostgresMembershipsRepository) GetMembership(ctx context.Context, tenantID, userID string) (*domain.TenantUser, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	q := tenancy.Querier(ctx, r.db)
	var m domain.TenantUser
	err := q.QueryRowContext(ctx,
		`SELECT membership_id::text, tenant_id::text, user_id::text, role, joined_at
		 FROM tenant_users
		 WHERE tenant_id = $1::uuid AND user_id = $2::uuid`,
		tenantID, userID,
	).Scan(&m.MembershipID, &m.TenantID, &m.UserID, &m.Role, &m.JoinedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("membership not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return &m, nil
}

// ListMembers 查询租户成员列表（带用户信息，分页）
func (r *PostgresMembershipsRepository) ListMembers(ctx context.Context, tenantID string, page, size int) ([]*domain.Member, int, error) {
	if tenantID == "" {
		return nil, 0, fmt.Errorf("tenant_id is required")
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
		`SELECT COUNT(*) FROM tenant_users WHERE tenant_id = $1::uuid`,
		tenantID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count members: %w", err)
	}

	// 查询列表（带分页）
	rows, err := q.QueryContext(ctx,
		`SELECT
			tu.membership_id::text,
			tu.user_id::text,
			u.email,
			COALESCE(u.full_name, '') as full_name,
			tu.role,
			tu.joined_at
		 FROM tenant_users tu
		 JOIN users u ON u.user_id = tu.user_id
		 WHERE tu.tenant_id = $1::uuid
		 ORDER BY tu.joined_at
		 LIMIT $2 OFFSET $3`,
		tenantID, size, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []*domain.Member{}
	for rows.Next() {
		var m domain.Member
		err := rows.Scan(&m.MembershipID, &m.UserID, &m.Email, &m.FullName, &m.Role, &m.JoinedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, &m)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate members: %w", err)
	}

	return members, total, nil
}

// ListUserTenants 某用户的全部归属（带租户信息，只含 active 租户）
func (r *PostgresMembershipsRepository) ListUserTenants(ctx context.Context, userID string) ([]*domain.UserTenant, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	q := tenancy.Querier(ctx, r.db)
	rows, err := q.QueryContext(ctx,
		`SELECT
			t.tenant_id::text,
			t.tenant_name,
			t.slug,
			tu.role
		 FROM tenant_users tu
		 JOIN tenants t ON t.tenant_id = tu.tenant_id
		 WHERE tu.user_id = $1::uuid AND t.status = 'active'
		 ORDER BY t.tenant_name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user tenants: %w", err)
	}
	defer rows.Close()

	tenants := []*domain.UserTenant{}
	for rows.Next() {
		var ut domain.UserTenant
		if err := rows.Scan(&ut.TenantID, &ut.TenantName, &ut.Slug, &ut.Role); err != nil {
			return nil, fmt.Errorf("failed to scan user tenant: %w", err)
		}
		tenants = append(tenants, &ut)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user tenants: %w", err)
	}

	return tenants, nil
}

// CreateMembership 建立成员关系（重复加入报唯一冲突）
func (r *PostgresMembershipsRepository) CreateMembership(ctx context.Context, m *domain.TenantUser) (string, error) {
	if m == nil {
		return "", fmt.Errorf("membership is required")
	}
	if m.TenantID == "" {
		return "", fmt.Errorf("tenant_id is required")
	}
	if m.UserID == "" {
		return "", fmt.Errorf("user_id is required")
	}
	if !domain.ValidRole(m.Role) {
		return "", fmt.Errorf("invalid role: %s", m.Role)
	}

	q := tenancy.Querier(ctx, r.db)
	var membershipID string
	err := q.QueryRowContext(ctx,
		`INSERT INTO tenant_users (tenant_id, user_id, role)
		 VALUES ($1::uuid, $2::uuid, $3)
		 RETURNING membership_id::text`,
		m.TenantID, m.UserID, m.Role,
	).Scan(&membershipID)
	if err != nil {
		return "", fmt.Errorf("failed to create membership: %w", err)
	}

	return membershipID, nil
}

// EnsureMembership 幂等加入：已是成员时保持原 role 不动（邀请兑换的再入口安全）
func (r *PostgresMembershipsRepository) EnsureMembership(ctx context.Context, tenantID, userID, role string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}
	if !domain.ValidRole(role) {
		return fmt.Errorf("invalid role: %s", role)
	}

	q := tenancy.Querier(ctx, r.db)
	_, err := q.ExecContext(ctx,
		`INSERT INTO tenant_users (tenant_id, user_id, role)
		 VALUES ($1::uuid, $2::uuid, $3)
		 ON CONFLICT (tenant_id, user_id) DO NOTHING`,
		tenantID, userID, role,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure membership: %w", err)
	}

	return nil
}

// CountByRole 某角色的成员数
func (r *PostgresMembershipsRepository) CountByRole(ctx context.Context, tenantID, role string) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenant_id is required")
	}

	q := tenancy.Querier(ctx, r.db)
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tenant_users WHERE tenant_id = $1::uuid AND role = $2`,
		tenantID, role,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count members by role: %w", err)
	}

	return count, nil
}

// RemoveMember 移除成员（role 约束由 service 层判定）
func (r *PostgresMembershipsRepository) RemoveMember(ctx context.Context, tenantID, userID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}

	q := tenancy.Querier(ctx, r.db)
	result, err := q.ExecContext(ctx,
		`DELETE FROM tenant_users WHERE tenant_id = $1::uuid AND user_id = $2::uuid`,
		tenantID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("membership not found: %w", sql.ErrNoRows)
	}

	return nil
}
