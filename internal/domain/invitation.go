package domain

import (
	"database/sql"
	"time"
)

// Invitation 租户邀请（对应 tenant_invitations 表）
// token 本体只在创建时返回一次，库里只存 sha256 hex 摘要；
// 记录永不物理删除（审计需要）
type Invitation struct {
	InvitationID string `db:"invitation_id"` // UUID, PRIMARY KEY
	TenantID     string `db:"tenant_id"`     // UUID, NOT NULL
	Email        string `db:"email"`         // VARCHAR(255), NOT NULL
	TokenHash    string `db:"token_hash"`    // VARCHAR(64), UNIQUE, sha256 hex
	Role         string `db:"role"`          // VARCHAR(50), NOT NULL

	// 状态机：pending → accepted（终态）/ revoked；过期按时间判定
	Status string `db:"status"` // VARCHAR(20), DEFAULT 'pending'

	CreatedBy  sql.NullString `db:"created_by"`
	CreatedAt  sql.NullTime   `db:"created_at"`
	ExpiresAt  time.Time      `db:"expires_at"`
	RedeemedBy sql.NullString `db:"redeemed_by"`
}

const (
	InvitationStatusPending  = "pending"
	InvitationStatusAccepted = "accepted"
	InvitationStatusExpired  = "expired"
	InvitationStatusRevoked  = "revoked"
)

// IsExpired 是否已过期（无论存储状态如何，过期即不可用）
func (i *Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
