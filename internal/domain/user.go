package domain

import "database/sql"

// User 用户领域模型（对应 users 表）
// 用户是全局身份；租户归属通过 tenant_users 表达
type User struct {
	// 主键
	UserID string `db:"user_id"` // UUID, PRIMARY KEY

	// 账号信息
	Email        string `db:"email"`         // VARCHAR(255), UNIQUE(lower), NOT NULL
	PasswordHash string `db:"password_hash"` // bcrypt, NOT NULL
	FullName     string `db:"full_name"`     // nullable

	// 状态
	Status string `db:"status"` // VARCHAR(50), DEFAULT 'active'

	CreatedAt   sql.NullTime `db:"created_at"`
	LastLoginAt sql.NullTime `db:"last_login_at"`
}

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)
