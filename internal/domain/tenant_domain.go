package domain

import "database/sql"

// TenantDomain 租户域名映射（对应 tenant_domains 表）
// 每个租户最多一个 primary 域名（部分唯一索引保证）
type TenantDomain struct {
	DomainID  string       `db:"domain_id"` // UUID, PRIMARY KEY
	Domain    string       `db:"domain"`    // VARCHAR(255), UNIQUE, NOT NULL
	TenantID  string       `db:"tenant_id"` // UUID, NOT NULL
	IsPrimary bool         `db:"is_primary"`
	CreatedAt sql.NullTime `db:"created_at"`
}
