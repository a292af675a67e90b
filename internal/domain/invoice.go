package domain

import (
	"database/sql"
	"time"
)

// Invoice 发票（对应 invoices 表）
// 租户隔离层的示例业务实体：带 NOT NULL tenant_id 外键，受行级策略保护；
// supplier/customer/order 等其余业务表遵循同一模式
type Invoice struct {
	InvoiceID     string         `db:"invoice_id"` // UUID, PRIMARY KEY
	TenantID      string         `db:"tenant_id"`  // UUID, NOT NULL
	InvoiceNumber string         `db:"invoice_number"`
	CustomerName  string         `db:"customer_name"`
	TotalCents    int64          `db:"total_cents"`
	IssuedOn      time.Time      `db:"issued_on"`
	CreatedBy     sql.NullString `db:"created_by"`
	CreatedAt     sql.NullTime   `db:"created_at"`
}
