package service

import (
	"context"
	"fmt"

	"meatchain/internal/domain"
	"meatchain/internal/repository"
	"meatchain/internal/tenancy"
)

// requireCapability 权限判定入口：取当前请求的认证用户，
// 查其在 tenantID 下的成员关系，再按角色能力表放行。
// 非成员和能力不足一律折叠成 ErrPermissionDenied（不泄露成员关系是否存在）。
func requireCapability(ctx context.Context, memberships repository.MembershipsRepository, tenantID string, cap domain.Capability) (*domain.TenantUser, error) {
	userID, ok := tenancy.UserFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: no authenticated user", ErrPermissionDenied)
	}

	m, err := memberships.GetMembership(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: not a member of tenant", ErrPermissionDenied)
	}

	if !domain.RoleAllows(m.Role, cap) {
		return nil, fmt.Errorf("%w: role %s lacks %s", ErrPermissionDenied, m.Role, cap)
	}

	return m, nil
}
