package service

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"meatchain/internal/domain"
	"meatchain/internal/repository"
	"meatchain/internal/tenancy"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthService 认证服务接口
type AuthService interface {
	// 注册：一个事务里建租户 + owner 用户 + 成员关系
	Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error)

	// 登录：凭据校验 + 签发 token + 返回归属列表
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
}

// authService 实现
type authService struct {
	db          *sql.DB
	usersRepo   repository.UsersRepository
	tenantsRepo repository.TenantsRepository
	memberships repository.MembershipsRepository
	issuer      *TokenIssuer
	logger      *zap.Logger
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(
	db *sql.DB,
	usersRepo repository.UsersRepository,
	tenantsRepo repository.TenantsRepository,
	memberships repository.MembershipsRepository,
	issuer *TokenIssuer,
	logger *zap.Logger,
) AuthService {
	return &authService{
		db:          db,
		usersRepo:   usersRepo,
		tenantsRepo: tenantsRepo,
		memberships: memberships,
		issuer:      issuer,
		logger:      logger,
	}
}

// SignupRequest 注册请求
type SignupRequest struct {
	Email      string `json:"email"`       // 必填
	Password   string `json:"password"`    // 必填，至少 8 位
	FullName   string `json:"full_name"`   // 可选
	TenantName string `json:"tenant_name"` // 必填
	Slug       string `json:"slug"`        // 必填，全局唯一
	IPAddress  string `json:"-"`           // 客户端 IP（用于日志）
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email     string `json:"email"`    // 必填
	Password  string `json:"password"` // 必填
	IPAddress string `json:"-"`        // 客户端 IP（用于日志）
	UserAgent string `json:"-"`        // 客户端 User-Agent（用于日志）
}

// MembershipInfo 登录/注册响应里的归属条目
type MembershipInfo struct {
	TenantID   string `json:"tenant_id"`
	TenantName string `json:"tenant_name"`
	Slug       string `json:"slug"`
	Role       string `json:"role"`
}

// AuthResponse 认证响应。
// token 只携带身份，不绑定租户：客户端从 memberships 选租户，
// 之后用 X-Tenant-ID header 或租户域名访问。
type AuthResponse struct {
	AccessToken string           `json:"access_token"`
	TokenType   string           `json:"token_type"`
	ExpiresAt   time.Time        `json:"expires_at"`
	UserID      string           `json:"user_id"`
	Email       string           `json:"email"`
	FullName    string           `json:"full_name,omitempty"`
	Memberships []MembershipInfo `json:"memberships"`
}

// slug：小写字母数字开头结尾，中间可带连字符，最长 63
var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// 保留 slug：子域名解析会撞上的基础设施名
var reservedSlugs = map[string]bool{
	"www": true, "api": true, "app": true, "admin": true,
	"mail": true, "health": true, "metrics": true, "guest": true,
}

// Signup 注册新租户和它的 owner
func (s *authService) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	// 1. 参数验证和规范化
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	req.TenantName = strings.TrimSpace(req.TenantName)

	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidArgument)
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidArgument)
	}
	if req.TenantName == "" {
		return nil, fmt.Errorf("%w: tenant_name is required", ErrInvalidArgument)
	}
	if !slugPattern.MatchString(req.Slug) {
		return nil, fmt.Errorf("%w: slug must be lowercase letters, digits and hyphens", ErrInvalidArgument)
	}
	if reservedSlugs[req.Slug] {
		return nil, fmt.Errorf("%w: %s is reserved", ErrSlugTaken, req.Slug)
	}

	// 2. 密码哈希（事务外，bcrypt 较慢）
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// 3. 一个事务：用户 → 会话变量 → 租户 → owner 成员关系。
	// 任何一步失败整体回滚，不会留下没有 owner 的租户。
	var userID, tenantID string
	err = tenancy.RunInTx(ctx, s.db, func(txCtx context.Context) error {
		userID, err = s.usersRepo.CreateUser(txCtx, &domain.User{
			Email:        req.Email,
			PasswordHash: string(hash),
			FullName:     req.FullName,
		})
		if err != nil {
			if repository.IsUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrEmailTaken, req.Email)
			}
			return err
		}

		// 先绑定用户会话变量，成员关系写入才能过行级策略
		if err := tenancy.SetLocalUser(txCtx, userID); err != nil {
			return err
		}

		tenantID, err = s.tenantsRepo.CreateTenant(txCtx, &domain.Tenant{
			TenantName: req.TenantName,
			Slug:       req.Slug,
			Email:      req.Email,
			OnTrial:    true,
			CreatedBy:  sql.NullString{String: userID, Valid: true},
		})
		if err != nil {
			if repository.IsUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrSlugTaken, req.Slug)
			}
			return err
		}

		_, err = s.memberships.CreateMembership(txCtx, &domain.TenantUser{
			TenantID: tenantID,
			UserID:   userID,
			Role:     domain.RoleOwner,
		})
		return err
	})
	if err != nil {
		s.logger.Warn("Signup failed",
			zap.String("email", req.Email),
			zap.String("slug", req.Slug),
			zap.String("ip_address", req.IPAddress),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("Tenant signup successful",
		zap.String("user_id", userID),
		zap.String("tenant_id", tenantID),
		zap.String("slug", req.Slug),
		zap.String("ip_address", req.IPAddress),
	)

	// 4. 签发 token
	token, expiresAt, err := s.issuer.Issue(userID, req.Email)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		UserID:      userID,
		Email:       req.Email,
		FullName:    req.FullName,
		Memberships: []MembershipInfo{{
			TenantID:   tenantID,
			TenantName: req.TenantName,
			Slug:       req.Slug,
			Role:       domain.RoleOwner,
		}},
	}, nil
}

// Login 用户登录
func (s *authService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	// 1. 参数验证和规范化
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		s.logger.Warn("User login failed: missing credentials",
			zap.String("ip_address", req.IPAddress),
			zap.String("user_agent", req.UserAgent),
			zap.String("reason", "missing_credentials"),
		)
		return nil, ErrInvalidCredentials
	}

	// 2. 凭据校验（users 表是全局数据，连接池直查）
	user, err := s.usersRepo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		s.logger.Warn("User login failed: invalid credentials",
			zap.String("email", req.Email),
			zap.String("ip_address", req.IPAddress),
			zap.String("user_agent", req.UserAgent),
			zap.String("reason", "unknown_email"),
		)
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("User login failed: invalid credentials",
			zap.String("user_id", user.UserID),
			zap.String("ip_address", req.IPAddress),
			zap.String("user_agent", req.UserAgent),
			zap.String("reason", "wrong_password"),
		)
		return nil, ErrInvalidCredentials
	}

	if user.Status != domain.UserStatusActive {
		s.logger.Warn("User login failed: account not active",
			zap.String("user_id", user.UserID),
			zap.String("status", user.Status),
			zap.String("ip_address", req.IPAddress),
			zap.String("reason", "account_not_active"),
		)
		return nil, ErrInvalidCredentials
	}

	// 3. 归属列表。tenant_users 带行级策略，必须在设了用户变量的
	// 事务里查，user 分支才放行自己的行。
	var memberships []*domain.UserTenant
	err = tenancy.RunInTx(ctx, s.db, func(txCtx context.Context) error {
		if err := tenancy.SetLocalUser(txCtx, user.UserID); err != nil {
			return err
		}
		memberships, err = s.memberships.ListUserTenants(txCtx, user.UserID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}

	// 4. 登录后处理（失败不影响登录）
	if err := s.usersRepo.TouchLastLogin(ctx, user.UserID); err != nil {
		s.logger.Warn("Failed to update last_login_at",
			zap.String("user_id", user.UserID),
			zap.Error(err),
		)
	}

	s.logger.Info("User login successful",
		zap.String("user_id", user.UserID),
		zap.Int("membership_count", len(memberships)),
		zap.String("ip_address", req.IPAddress),
		zap.String("user_agent", req.UserAgent),
	)

	// 5. 签发 token 并构建响应
	token, expiresAt, err := s.issuer.Issue(user.UserID, user.Email)
	if err != nil {
		return nil, err
	}

	infos := make([]MembershipInfo, 0, len(memberships))
	for _, m := range memberships {
		infos = append(infos, MembershipInfo{
			TenantID:   m.TenantID,
			TenantName: m.TenantName,
			Slug:       m.Slug,
			Role:       m.Role,
		})
	}

	return &AuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		UserID:      user.UserID,
		Email:       user.Email,
		FullName:    user.FullName,
		Memberships: infos,
	}, nil
}
