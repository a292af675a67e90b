package domain

import "database/sql"

// TenantUser 租户成员关系（对应 tenant_users 表）
// (tenant_id, user_id) 唯一；role 只在所属租户内生效，不携带任何跨租户权限
type TenantUser struct {
	MembershipID string       `db:"membership_id"` // UUID, PRIMARY KEY
	TenantID     string       `db:"tenant_id"`     // UUID, NOT NULL
	UserID       string       `db:"user_id"`       // UUID, NOT NULL
	Role         string       `db:"role"`          // VARCHAR(50), NOT NULL
	JoinedAt     sql.NullTime `db:"joined_at"`
}

// Member 成员视图（membership + 用户信息，用于成员列表/导出）
type Member struct {
	MembershipID string       `db:"membership_id"`
	UserID       string       `db:"user_id"`
	Email        string       `db:"email"`
	FullName     string       `db:"full_name"`
	Role         string       `db:"role"`
	JoinedAt     sql.NullTime `db:"joined_at"`
}

// UserTenant 归属视图（membership + 租户信息，用于登录响应/租户选择）
type UserTenant struct {
	TenantID   string `db:"tenant_id"`
	TenantName string `db:"tenant_name"`
	Slug       string `db:"slug"`
	Role       string `db:"role"`
}
