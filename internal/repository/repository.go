package repository

import (
	"context"
	"encoding/json"

	"meatchain/internal/domain"
)

// 仓储接口约定：所有租户域数据的方法都显式携带 tenantID 参数并落到 SQL
// 谓词里（应用层过滤），行级策略在库侧独立复查（防线二）。
// 省略 tenantID 的方法只允许出现在全局数据（users）或解析前流程（token 查询）上。

// TenantsRepository 租户目录
type TenantsRepository interface {
	// ========== 查询 ==========
	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error)
	ListTenants(ctx context.Context, filter TenantFilters, page, size int) ([]*domain.Tenant, int, error)

	// ========== 创建/更新 ==========
	CreateTenant(ctx context.Context, tenant *domain.Tenant) (string, error)
	// UpsertTenantBySlug 幂等创建（guest/demo 引导用）：slug 冲突时更新基本信息并返回已有ID
	UpsertTenantBySlug(ctx context.Context, tenant *domain.Tenant) (string, error)
	// UpdateTenant 部分更新（空字段跳过）；slug 不在可更新集合内
	UpdateTenant(ctx context.Context, tenantID string, tenant *domain.Tenant) error
	UpdateSettings(ctx context.Context, tenantID string, settings json.RawMessage) error

	// ========== 状态 ==========
	// SetTenantStatus 软下线（active/suspended），不做物理删除
	SetTenantStatus(ctx context.Context, tenantID string, status string) error
}

// TenantFilters 租户查询过滤器
type TenantFilters struct {
	Status string // 可选，按 status 过滤（active/suspended）
	Search string // 可选，按 tenant_name 模糊匹配
}

// TenantDomainsRepository 租户域名映射（解析第2步的数据源）
type TenantDomainsRepository interface {
	ListDomains(ctx context.Context, tenantID string) ([]*domain.TenantDomain, error)
	AddDomain(ctx context.Context, d *domain.TenantDomain) (string, error)
	DeleteDomain(ctx context.Context, tenantID, domainName string) error
	// SetPrimaryDomain 先清旧 primary 再立新（部分唯一索引保证最多一个）
	SetPrimaryDomain(ctx context.Context, tenantID, domainName string) error
}

// MembershipsRepository 租户成员关系
type MembershipsRepository interface {
	GetMembership(ctx context.Context, tenantID, userID string) (*domain.TenantUser, error)
	ListMembers(ctx context.Context, tenantID string, page, size int) ([]*domain.Member, int, error)
	// ListUserTenants 某用户的全部归属（带租户信息）。
	// 走 tenant_users 行级策略的 user 分支，须在已设用户变量的事务内调用。
	ListUserTenants(ctx context.Context, userID string) ([]*domain.UserTenant, error)
	CreateMembership(ctx context.Context, m *domain.TenantUser) (string, error)
	// EnsureMembership 幂等加入：已存在的成员关系保持原 role 不动
	EnsureMembership(ctx context.Context, tenantID, userID, role string) error
	RemoveMember(ctx context.Context, tenantID, userID string) error
	// CountByRole 某角色的成员数（最后一个 owner 保护用）
	CountByRole(ctx context.Context, tenantID, role string) (int, error)
}

// InvitationsRepository 租户邀请。记录永不删除（审计）。
type InvitationsRepository interface {
	CreateInvitation(ctx context.Context, inv *domain.Invitation) (string, error)
	// GetByTokenHash 兑换/校验入口：按摘要查，tenant 解析之前即可调用
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error)
	GetInvitation(ctx context.Context, tenantID, invitationID string) (*domain.Invitation, error)
	ListInvitations(ctx context.Context, tenantID, status string, page, size int) ([]*domain.Invitation, int, error)

	// MarkAccepted pending→accepted 的条件翻转；返回是否翻转成功。
	// 并发兑换在这里分出胜负：先提交者赢，后来者拿到 false。
	MarkAccepted(ctx context.Context, invitationID, redeemedBy string) (bool, error)
	// MarkRevoked pending→revoked 的条件翻转；返回是否翻转成功
	MarkRevoked(ctx context.Context, tenantID, invitationID string) (bool, error)
	// MarkExpired 懒惰过期：校验时发现超时则落库
	MarkExpired(ctx context.Context, invitationID string) error
}

// UsersRepository 全局用户（身份不分租户，归属走 tenant_users）
type UsersRepository interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) (string, error)
	TouchLastLogin(ctx context.Context, userID string) error
}

// InvoicesRepository 示例业务仓储：租户域数据访问的合同样板
type InvoicesRepository interface {
	ListInvoices(ctx context.Context, tenantID string, page, size int) ([]*domain.Invoice, int, error)
	GetInvoice(ctx context.Context, tenantID, invoiceID string) (*domain.Invoice, error)
	CreateInvoice(ctx context.Context, tenantID string, inv *domain.Invoice) (string, error)
}
