package tenancy

import (
	"context"
	"errors"
	"fmt"
)

// 解析与隔离的错误分类。上层用 errors.Is 判定并映射 HTTP 状态码。
var (
	// ErrTenantNotFound 显式 X-Tenant-ID 指向不存在/不可用的租户。
	// 显式错误的 tenant id 是客户端错误，绝不降级到后续解析步骤。
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrResolutionAmbiguous 用户属于多个租户且没有显式 header，拒绝猜测
	ErrResolutionAmbiguous = errors.New("tenant resolution ambiguous: specify X-Tenant-ID header")

	// ErrTenantRequired 该端点需要租户上下文但无法解析出任何租户
	ErrTenantRequired = errors.New("tenant context required")

	// ErrCrossTenant 应用层过滤参数与请求绑定的租户不一致。
	// 这是过滤逻辑的 bug 信号，按致命完整性错误处理，不可恢复。
	ErrCrossTenant = errors.New("cross-tenant access attempt")
)

// EnsureTenant 仓储层防线：显式 tenantID 参数必须等于请求绑定的租户。
// 不一致说明某处把别的租户的 ID 传进了查询，立即中止。
// 未绑定租户时放行（引导脚本、RunInTx 流程走各自的约束）。
func EnsureTenant(ctx context.Context, tenantID string) error {
	bound, ok := TenantFrom(ctx)
	if !ok {
		return nil
	}
	if bound != tenantID {
		return fmt.Errorf("%w: bound tenant %s, repository argument %s", ErrCrossTenant, bound, tenantID)
	}
	return nil
}
