package tenancy

import (
	"context"
	"database/sql"
	"fmt"
)

// 会话变量桥：把请求的 user/tenant 写进 Postgres 事务级变量，
// 行级策略据此过滤。set_config 第三个参数必须是 true（事务级），
// COMMIT/ROLLBACK 时自动还原，连接回池后绝不能带着上一个租户的变量。

// BeginBound 开启请求事务；userID 非空时同时绑定 app.user_id。
// 返回的 context 已挂上事务（和 userID）。
func BeginBound(ctx context.Context, db *sql.DB, userID string) (context.Context, *sql.Tx, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to begin request transaction: %w", err)
	}
	if userID != "" {
		if err := setLocal(ctx, tx, "app.user_id", userID); err != nil {
			_ = tx.Rollback()
			return ctx, nil, err
		}
	}
	return WithTx(ctx, tx), tx, nil
}

// BindTenant 在已开启的请求事务上绑定 app.tenant_id，
// 并把租户ID挂到 context。解析成功后、业务逻辑前调用。
func BindTenant(ctx context.Context, tenantID string) (context.Context, error) {
	tx := TxFrom(ctx)
	if tx == nil {
		return ctx, fmt.Errorf("no request transaction to bind tenant %s", tenantID)
	}
	if err := setLocal(ctx, tx, "app.tenant_id", tenantID); err != nil {
		return ctx, err
	}
	return WithTenant(ctx, tenantID), nil
}

// SetLocalUser 在事务中途绑定/切换 app.user_id。
// 邀请兑换、注册这类先建用户再建成员关系的流程用它，
// 让 tenant_users 行级策略的 user 分支放行新用户自己的行。
func SetLocalUser(ctx context.Context, userID string) error {
	tx := TxFrom(ctx)
	if tx == nil {
		return fmt.Errorf("no request transaction to set user %s", userID)
	}
	return setLocal(ctx, tx, "app.user_id", userID)
}

func setLocal(ctx context.Context, tx *sql.Tx, name, value string) error {
	// is_local=true：变量随事务结束还原，不会泄漏到复用连接
	if _, err := tx.ExecContext(ctx, `SELECT set_config($1, $2, true)`, name, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", name, err)
	}
	return nil
}

// RunInTx 为 allow-list 流程（兑换、注册）提供同一套事务纪律：
// 一个事务、事务级变量、错误即回滚。
func RunInTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
