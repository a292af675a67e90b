package domain

import (
	"database/sql"
	"encoding/json"
)

// Tenant 租户领域模型（对应 tenants 表）
// slug 全局唯一，一旦有域名引用即不可变更
type Tenant struct {
	// 主键
	TenantID string `db:"tenant_id"` // UUID, PRIMARY KEY

	// 基本信息
	TenantName string `db:"tenant_name"` // VARCHAR(255), NOT NULL
	Slug       string `db:"slug"`        // VARCHAR(63), UNIQUE, NOT NULL
	Email      string `db:"email"`       // VARCHAR(255), nullable
	Phone      string `db:"phone"`       // VARCHAR(50), nullable

	// 订阅状态
	OnTrial   bool         `db:"on_trial"`   // BOOLEAN, DEFAULT TRUE
	PaidUntil sql.NullTime `db:"paid_until"` // DATE, nullable

	// 扩展配置
	Settings json.RawMessage `db:"settings"` // JSONB, DEFAULT '{}'

	// 状态（active/suspended，软下线，不做物理删除）
	Status string `db:"status"` // VARCHAR(50), DEFAULT 'active'

	// 审计
	CreatedBy sql.NullString `db:"created_by"` // UUID, nullable
	CreatedAt sql.NullTime   `db:"created_at"`
	UpdatedAt sql.NullTime   `db:"updated_at"`
}

const (
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
)

// IsActive 租户是否可用（解析只命中 active 租户）
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}
