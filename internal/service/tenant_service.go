package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"meatchain/internal/domain"
	"meatchain/internal/repository"
	"meatchain/internal/tenancy"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// TenantService 租户管理服务接口（全部操作作用于当前已绑定的租户）
type TenantService interface {
	// ========== 资料与设置 ==========
	GetProfile(ctx context.Context, tenantID string) (*TenantProfile, error)
	UpdateProfile(ctx context.Context, tenantID string, req UpdateProfileRequest) error
	UpdateSettings(ctx context.Context, tenantID string, settings json.RawMessage) error

	// ========== 域名 ==========
	ListDomains(ctx context.Context, tenantID string) ([]*domain.TenantDomain, error)
	AddDomain(ctx context.Context, tenantID, domainName string, isPrimary bool) (string, error)
	RemoveDomain(ctx context.Context, tenantID, domainName string) error
	SetPrimaryDomain(ctx context.Context, tenantID, domainName string) error

	// ========== 成员 ==========
	ListMembers(ctx context.Context, tenantID string, page, size int) ([]*domain.Member, int, error)
	RemoveMember(ctx context.Context, tenantID, targetUserID string) error

	// ========== 引导 ==========
	// EnsureGuestTenant 幂等创建 guest/demo 租户（启动时调用，跑几遍都一样）
	EnsureGuestTenant(ctx context.Context, password string) error
}

// tenantService 实现
type tenantService struct {
	db          *sql.DB
	tenantsRepo repository.TenantsRepository
	domainsRepo repository.TenantDomainsRepository
	memberships repository.MembershipsRepository
	usersRepo   repository.UsersRepository
	invoices    repository.InvoicesRepository
	resolver    *tenancy.Resolver
	logger      *zap.Logger
}

// NewTenantService 创建 TenantService 实例
func NewTenantService(
	db *sql.DB,
	tenantsRepo repository.TenantsRepository,
	domainsRepo repository.TenantDomainsRepository,
	memberships repository.MembershipsRepository,
	usersRepo repository.UsersRepository,
	invoices repository.InvoicesRepository,
	resolver *tenancy.Resolver,
	logger *zap.Logger,
) TenantService {
	return &tenantService{
		db:          db,
		tenantsRepo: tenantsRepo,
		domainsRepo: domainsRepo,
		memberships: memberships,
		usersRepo:   usersRepo,
		invoices:    invoices,
		resolver:    resolver,
		logger:      logger,
	}
}

// TenantProfile 租户资料视图
type TenantProfile struct {
	TenantID   string                 `json:"tenant_id"`
	TenantName string                 `json:"tenant_name"`
	Slug       string                 `json:"slug"`
	Email      string                 `json:"email,omitempty"`
	Phone      string                 `json:"phone,omitempty"`
	OnTrial    bool                   `json:"on_trial"`
	PaidUntil  *string                `json:"paid_until,omitempty"`
	Settings   json.RawMessage        `json:"settings"`
	Status     string                 `json:"status"`
	Domains    []*domain.TenantDomain `json:"domains"`
}

// UpdateProfileRequest 资料更新请求（空字段跳过）
type UpdateProfileRequest struct {
	TenantName string `json:"tenant_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

// GetProfile 查询当前租户资料（含域名列表）
func (s *tenantService) GetProfile(ctx context.Context, tenantID string) (*TenantProfile, error) {
	if _, err := requireCapability(ctx, s.memberships, tenantID, domain.CapViewRecords); err != nil {
		return nil, err
	}

	tenant, err := s.tenantsRepo.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	domains, err := s.domainsRepo.ListDomains(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	profile := &TenantProfile{
		TenantID:   tenant.TenantID,
		TenantName: tenant.TenantName,
		Slug:       tenant.Slug,
		Email:      tenant.Email,
		Phone:      tenant.Phone,
		OnTrial:    tenant.OnTrial,
		Settings:   tenant.Settings,
		Status:     tenant.Status,
		Domains:    domains,
	}
	if tenant.PaidUntil.Valid {
		paidUntil := tenant.PaidUntil.Time.Format("2006-01-02")
		profile.PaidUntil = &paidUntil
	}

	return profile, nil
}

// UpdateProfile 更新租户资料（owner/admin）
func (s *tenantService) UpdateProfile(ctx context.Context, tenantID string, req UpdateProfileRequest) error {
	if _, err := requireCapability(ctx, s.memberships, tenantID, domain.CapManageTenant); err != nil {
		return err
	}

	if req.TenantName == "" && req.Email == "" && req.Phone == "" {
		return fmt.Errorf("%w: no fields to update", ErrInvalidArgument)
	}

	err := s.tenantsRepo.UpdateTenant(ctx, tenantID, &domain.Tenant{
		TenantName: req.TenantName,
		Email:      req.Email,
		Phone:      req.Phone,
	})
	if err != nil {
		return err
	}

	s.logger.Info("Tenant profile updated", zap.String("tenant_id", tenantID))
	return nil
}

// UpdateSettings 整体替换租户 settings（owner/admin；必须是合法 JSON 对象）
func (s *tenantService) UpdateSettings(ctx context.Context, tenantID string, settings json.RawMessage) error {
	if _, err := requireCapability(ctx, s.memberships, tenantID, domain.CapManageTenant); err != nil {
		return err
	}

	if len(settings) == 0 || !json.Valid(settings) {
		return fmt.Errorf("%w: settings must be a valid JSON document", ErrInvalidArgument)
	}

	if err := s.tenantsRepo.UpdateSettings(ctx, tenantID, settings); err != nil {
		return err
	}

	s.logger.Info("Tenant settings updated", zap.String("tenant_id", tenantID))
	return nil
}

// ListDomains 查询当前租户的域名列表
func (s *tenantService) ListDomains(ctx context.Context, tenantID string) ([]*domain.TenantDomain, error) {
	if _, err := requireCapability(ctx, s.memberships, tenantID, domain.CapViewRecords); err != nil {
		return nil, err
	}
	return s.domainsRepo.ListDomains(ctx, tenantID)
}

// AddDomain 挂接域名（owner/admin）。域名全局唯一，已被任何租户占用都报冲突。
func (s *tenantService) AddDomain(ctx context.Context, tenantID, domainName string, isPrimary bool) (string, error) {
	if _, err := requireCapability(ctx, s.memberships, tenantID, domain.CapManageTenant); err != nil {
		return "", err
	}

	domainName, err := normalizeDomain(domainName)
	if err != nil {
		return "", err
	}

	domainID, err := s.domainsRepo.AddDomain(ctx, &domain.TenantDomain{
		Domain:   domainName,
		TenantID: tenantID,
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return "", fmt.Errorf("%w: %s", ErrDomainTaken, domainName)
		}
		return "", err
	}

	if isPrimary {
		if err := s.domainsRepo.SetPrimaryDomain(ctx, tenantID, domainName); err != nil {
			return "", err
		}
	}

	s.logger.Info("Tenant domain added",
		zap.String("tenant_id", tenantID),
		zap.String("domain", domainName),
		zap.Bool("is_primary", isPrimary),
	)
	return domainID, nil
}

// RemoveDomain 摘除域名（owner/admin），并清解析缓存
func (s *tenantService) RemoveDomain(ctx context.Context, tenantID, domainName string) error {
	if _, err := requireCapability(ctx, s.memberships, tenantID, domain.CapManageTenant); err != nil {
		return err
	}

	domainName, err := normalizeDomain(domainName)
	if err != nil {
		return err
	}

	if err := s.domainsRepo.DeleteDomain(ctx, tenantID, domainName); err != nil {
		return err
	}

	// 缓存里的 domain→tenant 映射已失效，立即清掉
	s.resolver.InvalidateHost(ctx, domainName, "")

	s.logger.Info("Tenant domain removed",
		zap.String("tenant_id", tenantID),
		zap.String("domain", domainName),
	)
	return nil
}

// SetPrimaryDomain 切换主域名（owner/admin）
func (s *tenantService) SetPrimaryDomain(ctx context.Context, tenantID, domainName string) error {
	if _, err := requireCapability(ctx, s.memberships, tenantID, domain.CapManageTenant); err != nil {
		return err
	}

	domainName, err := normalizeDomain(domainName)
	if err != nil {
		return err
	}

	if err := s.domainsRepo.SetPrimaryDomain(ctx, tenantID, domainName); err != nil {
		return err
	}

	s.logger.Info("Tenant primary domain changed",
		zap.String("tenant_id", tenantID),
		zap.String("domain", domainName),
	)
	return nil
}

// ListMembers 查询成员列表
func (s *tenantService) ListMembers(ctx context.Context, tenantID string, page, size int) ([]*domain.Member, int, error) {
	if _, err := requireCapability(ctx, s.memberships, tenantID, domain.CapViewRecords); err != nil {
		return nil, 0, err
	}
	return s.memberships.ListMembers(ctx, tenantID, page, size)
}

// RemoveMember 移除成员（owner/admin）。
// 规则：不能移除等级不低于自己的成员（移除自己除外）；
// 最后一个 owner 不可移除，租户不能没有 owner。
func (s *tenantService) RemoveMember(ctx context.Context, tenantID, targetUserID string) error {
	caller, err := requireCapability(ctx, s.memberships, tenantID, domain.CapManageMembers)
	if err != nil {
		return err
	}

	target, err := s.memberships.GetMembership(ctx, tenantID, targetUserID)
	if err != nil {
		return err
	}

	if target.UserID != caller.UserID && domain.RoleRank(target.Role) >= domain.RoleRank(caller.Role) {
		return fmt.Errorf("%w: cannot remove a member of equal or higher role", ErrPermissionDenied)
	}

	if target.Role == domain.RoleOwner {
		owners, err := s.memberships.CountByRole(ctx, tenantID, domain.RoleOwner)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}

	if err := s.memberships.RemoveMember(ctx, tenantID, targetUserID); err != nil {
		return err
	}

	s.logger.Info("Tenant member removed",
		zap.String("tenant_id", tenantID),
		zap.String("target_user_id", targetUserID),
		zap.String("removed_by", caller.UserID),
	)
	return nil
}

// guest/demo 租户固定标识
const (
	guestTenantSlug = "guest"
	guestTenantName = "Guest Demo"
	guestUserEmail  = "guest@meatchain.io"
)

// EnsureGuestTenant 幂等创建 guest 租户 + guest 用户 + 成员关系 + 演示数据。
// 整个引导在一个事务里跑：先设用户变量再绑租户，写入路径和正常请求
// 走同一套行级策略，策略配置错了这里会第一时间暴露。
func (s *tenantService) EnsureGuestTenant(ctx context.Context, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash guest password: %w", err)
	}

	err = tenancy.RunInTx(ctx, s.db, func(txCtx context.Context) error {
		// guest 用户：有则复用，无则创建
		user, err := s.usersRepo.GetUserByEmail(txCtx, guestUserEmail)
		var userID string
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			userID, err = s.usersRepo.CreateUser(txCtx, &domain.User{
				Email:        guestUserEmail,
				PasswordHash: string(hash),
				FullName:     "Guest",
			})
			if err != nil {
				return err
			}
		} else {
			userID = user.UserID
		}

		if err := tenancy.SetLocalUser(txCtx, userID); err != nil {
			return err
		}

		// 保守默认值：记录上限 + 周期重置标记
		tenantID, err := s.tenantsRepo.UpsertTenantBySlug(txCtx, &domain.Tenant{
			TenantName: guestTenantName,
			Slug:       guestTenantSlug,
			OnTrial:    true,
			Settings:   json.RawMessage(`{"record_cap": 100, "ephemeral": true}`),
		})
		if err != nil {
			return err
		}

		txCtx, err = tenancy.BindTenant(txCtx, tenantID)
		if err != nil {
			return err
		}

		// guest 用户在 guest 租户内是 admin，跨租户没有任何权限
		if err := s.memberships.EnsureMembership(txCtx, tenantID, userID, domain.RoleAdmin); err != nil {
			return err
		}

		// 演示数据：发票为空时种两张
		_, total, err := s.invoices.ListInvoices(txCtx, tenantID, 1, 1)
		if err != nil {
			return err
		}
		if total == 0 {
			for i, seed := range []struct {
				number   string
				customer string
				cents    int64
			}{
				{"DEMO-0001", "Acme Foods", 125000},
				{"DEMO-0002", "Globex Catering", 88000},
			} {
				_, err := s.invoices.CreateInvoice(txCtx, tenantID, &domain.Invoice{
					InvoiceNumber: seed.number,
					CustomerName:  seed.customer,
					TotalCents:    seed.cents,
					IssuedOn:      time.Now().AddDate(0, 0, -i),
					CreatedBy:     sql.NullString{String: userID, Valid: true},
				})
				if err != nil {
					return err
				}
			}
		}

		s.logger.Info("Guest tenant ready",
			zap.String("tenant_id", tenantID),
			zap.String("slug", guestTenantSlug),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ensure guest tenant: %w", err)
	}

	return nil
}

// normalizeDomain 域名规范化：去空白、去端口、转小写，拒绝带路径/协议的输入
func normalizeDomain(domainName string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(domainName))
	d = strings.TrimSuffix(d, ".")
	if d == "" {
		return "", fmt.Errorf("%w: domain is required", ErrInvalidArgument)
	}
	if strings.ContainsAny(d, "/:@ ") {
		return "", fmt.Errorf("%w: invalid domain %q", ErrInvalidArgument, domainName)
	}
	if !strings.Contains(d, ".") {
		return "", fmt.Errorf("%w: invalid domain %q", ErrInvalidArgument, domainName)
	}
	return d, nil
}
