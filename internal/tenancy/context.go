package tenancy

import (
	"context"
	"database/sql"
)

// 请求级租户上下文：tenant/user/tx 都只挂在当前请求的 context 上，
// 不进任何全局状态。

type ctxKey int

const (
	tenantKey ctxKey = iota
	userKey
	txKey
)

// DBTX database/sql 的最小查询接口，*sql.DB 和 *sql.Tx 都满足
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTenant 在 context 上绑定解析出的租户ID
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantFrom 取当前请求绑定的租户ID
func TenantFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(tenantKey).(string)
	return id, ok && id != ""
}

// WithUser 在 context 上绑定认证用户ID
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// UserFrom 取当前请求的认证用户ID
func UserFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey).(string)
	return id, ok && id != ""
}

// WithTx 在 context 上绑定请求事务
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// TxFrom 取当前请求事务（未绑定时返回 nil）
func TxFrom(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey).(*sql.Tx)
	return tx
}

// Querier 仓储层的查询入口：请求事务存在时必须用事务，
// 否则回退到连接池（维护脚本、启动引导等场景）
func Querier(ctx context.Context, db *sql.DB) DBTX {
	if tx := TxFrom(ctx); tx != nil {
		return tx
	}
	return db
}
