package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"meatchain/internal/domain"
	"meatchain/internal/tenancy"
)

// PostgresInvitationsRepository 租户邀请Repository实现
// 状态翻转一律用条件UPDATE（WHERE status='pending'），并发场景由数据库分胜负；
// 记录永不物理删除。
type PostgresInvitationsRepository struct {
	db *sql.DB
}

// NewPostgresInvitationsRepository 创建邀请Repository
func NewPostgresInvitationsRepository(db *sql.DB) *PostgresInvitationsRepository {
	return &PostgresInvitationsRepository{db: db}
}

// 确保实现了接口
var _ InvitationsRepository = (*PostgresInvitationsRepository)(nil)

const invitationColumns = `
	invitation_id::text,
	tenant_id::text,
	email,
	token_hash,
	role,
	status,
	created_by::text,
	created_at,
	expires_at,
	redeemed_by::text`

func scanInvitation(scan func(...any) error) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := scan(
		&inv.InvitationID,
		&inv.TenantID,
		&inv.Email,
		&inv.TokenHash,
		&inv.Role,
		&inv.Status,
		&inv.CreatedBy,
		&inv.CreatedAt,
		&inv.ExpiresAt,
		&inv.RedeemedBy,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// CreateInvitation 创建邀请。同一 (tenant, email) 已有 pending 邀请时
// 命中部分唯一索引，错误原样返回给 service 层做冲突判定。
func (r *PostgresInvitationsRepository) CreateInvitation(ctx context.Context, inv *domain.Invitation) (string, error) {
	if inv == nil {
		return "", fmt.Errorf("invitation is required")
	}
	if inv.TenantID == "" {
		return "", fmt.Errorf("tenant_id is required")
	}
	if inv.Email == "" {
		return "", fmt.Errorf("email is required")
	}
	if inv.TokenHash == "" {
		return "", fmt.Errorf("token_hash is required")
	}
	if !domain.ValidRole(inv.Role) {
		return "", fmt.Errorf("invalid role: %s", inv.Role)
	}

	q := tenancy.Querier(ctx, r.db)
	var invitationID string
	err := q.QueryRowContext(ctx,
		`INSERT INTO tenant_invitations (tenant_id, email, token_hash, role, created_by, expires_at)
		 VALUES ($1::uuid, lower($2), $3, $4, NULLIF($5, '')::uuid, $6)
		 RETURNING invitation_id::text`,
		inv.TenantID, inv.Email, inv.TokenHash, inv.Role, inv.CreatedBy.String, inv.ExpiresAt,
	).Scan(&invitationID)
	if err != nil {
		if IsUniqueViolation(err) {
			return "", err
		}
		return "", fmt.Errorf("failed to create invitation: %w", err)
	}

	return invitationID, nil
}

// GetByTokenHash 按 token 摘要查邀请（校验/兑换入口，tenant 解析之前调用）
func (r *PostgresInvitationsRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error) {
	if tokenHash == "" {
		return nil, fmt.Errorf("token_hash is required")
	}

	q := tenancy.Querier(ctx, r.db)
	row := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM tenant_invitations WHERE token_hash = $1`, invitationColumns),
		tokenHash,
	)
	inv, err := scanInvitation(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("invitation not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get invitation by token: %w", err)
	}

	return inv, nil
}

// GetInvitation 按 (tenant, id) 查邀请（管理面用）
func (r *PostgresInvitationsRepository) GetInvitation(ctx context.Context, tenantID, invitationID string) (*domain.Invitation, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if invitationID == "" {
		return nil, fmt.Errorf("invitation_id is required")
	}

	q := tenancy.Querier(ctx, r.db)
	row := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM tenant_invitations WHERE tenant_id = $1::uuid AND invitation_id = $2::uuid`, invitationColumns),
		tenantID, invitationID,
	)
	inv, err := scanInvitation(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("invitation not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	return inv, nil
}

// ListInvitations 查询租户邀请列表（可按 status 过滤，分页）
func (r *PostgresInvitationsRepository) ListInvitations(ctx context.Context, tenantID, status string, page, size int) ([]*domain.Invitation, int, error) {
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

	where := []string{"tenant_id = $1::uuid"}
	args := []any{tenantID}
	argIdx := 2

	if status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, status)
		argIdx++
	}

	whereClause := "WHERE " + strings.Join(where, " AND ")

	q := tenancy.Querier(ctx, r.db)

	// 查询总数
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM tenant_invitations %s`, whereClause)
	var total int
	err := q.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count invitations: %w", err)
	}

	// 查询列表（带分页）
	query := fmt.Sprintf(`
		SELECT %s
		FROM tenant_invitations
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, invitationColumns, whereClause, argIdx, argIdx+1)

	args = append(args, size, offset)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	invitations := []*domain.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate invitations: %w", err)
	}

	return invitations, total, nil
}

// MarkAccepted pending→accepted 条件翻转。
// 返回 false 表示没翻成（已被兑换/撤销/置过期），并发兑换的败者走这里。
func (r *PostgresInvitationsRepository) MarkAccepted(ctx context.Context, invitationID, redeemedBy string) (bool, error) {
	if invitationID == "" {
		return false, fmt.Errorf("invitation_id is required")
	}
	if redeemedBy == "" {
		return false, fmt.Errorf("redeemed_by is required")
	}

	q := tenancy.Querier(ctx, r.db)
	result, err := q.ExecContext(ctx,
		`UPDATE tenant_invitations
		 SET status = $2, redeemed_by = $3::uuid
		 WHERE invitation_id = $1::uuid AND status = $4`,
		invitationID, domain.InvitationStatusAccepted, redeemedBy, domain.InvitationStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark invitation accepted: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// MarkRevoked pending→revoked 条件翻转；返回 false 表示已不在 pending 态
func (r *PostgresInvitationsRepository) MarkRevoked(ctx context.Context, tenantID, invitationID string) (bool, error) {
	if tenantID == "" {
		return false, fmt.Errorf("tenant_id is required")
	}
	if invitationID == "" {
		return false, fmt.Errorf("invitation_id is required")
	}

	q := tenancy.Querier(ctx, r.db)
	result, err := q.ExecContext(ctx,
		`UPDATE tenant_invitations
		 SET status = $3
		 WHERE tenant_id = $1::uuid AND invitation_id = $2::uuid AND status = $4`,
		tenantID, invitationID, domain.InvitationStatusRevoked, domain.InvitationStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark invitation revoked: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// MarkExpired 懒惰过期落库（校验时发现超时调用；幂等，翻不动就算了）
func (r *PostgresInvitationsRepository) MarkExpired(ctx context.Context, invitationID string) error {
	if invitationID == "" {
		return fmt.Errorf("invitation_id is required")
	}

	q := tenancy.Querier(ctx, r.db)
	_, err := q.ExecContext(ctx,
		`UPDATE tenant_invitations
		 SET status = $2
		 WHERE invitation_id = $1::uuid AND status = $3`,
		invitationID, domain.InvitationStatusExpired, domain.InvitationStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark invitation expired: %w", err)
	}

	return nil
}
