package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"meatchain/internal/domain"
	"meatchain/internal/metrics"
	"meatchain/internal/repository"
	"meatchain/internal/tenancy"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// InvitationService 邀请服务接口。
// 生命周期：pending → accepted（终态）/ revoked；过期按 expires_at 判定、
// 懒惰落库。并发兑换由数据库条件更新分胜负，恰好一个请求成功。
type InvitationService interface {
	// ========== 管理面（需要租户上下文 + 能力） ==========
	Create(ctx context.Context, tenantID string, req CreateInvitationRequest) (*InvitationCreated, error)
	List(ctx context.Context, tenantID, status string, page, size int) ([]*InvitationView, int, error)
	Revoke(ctx context.Context, tenantID, invitationID string) error

	// ========== 兑换面（凭 token，租户解析之前） ==========
	Validate(ctx context.Context, rawToken string) (*InvitationPreview, error)
	Redeem(ctx context.Context, rawToken string, req RedeemRequest) (*AuthResponse, error)
}

// invitationService 实现
type invitationService struct {
	db          *sql.DB
	invitations repository.InvitationsRepository
	memberships repository.MembershipsRepository
	usersRepo   repository.UsersRepository
	tenantsRepo repository.TenantsRepository
	issuer      *TokenIssuer
	mailer      *MailClient // 可为 nil（网关未配置）
	expiry      time.Duration
	logger      *zap.Logger
}

// NewInvitationService 创建 InvitationService 实例
func NewInvitationService(
	db *sql.DB,
	invitations repository.InvitationsRepository,
	memberships repository.MembershipsRepository,
	usersRepo repository.UsersRepository,
	tenantsRepo repository.TenantsRepository,
	issuer *TokenIssuer,
	mailer *MailClient,
	expiryDays int,
	logger *zap.Logger,
) InvitationService {
	if expiryDays <= 0 {
		expiryDays = 7
	}
	return &invitationService{
		db:          db,
		invitations: invitations,
		memberships: memberships,
		usersRepo:   usersRepo,
		tenantsRepo: tenantsRepo,
		issuer:      issuer,
		mailer:      mailer,
		expiry:      time.Duration(expiryDays) * 24 * time.Hour,
		logger:      logger,
	}
}

// CreateInvitationRequest 创建邀请请求
type CreateInvitationRequest struct {
	Email string `json:"email"` // 必填
	Role  string `json:"role"`  // 必填，不能高于邀请人自己的角色
}

// InvitationCreated 创建响应。Token 是明文邀请 token，
// 只在这里返回一次，库里只存摘要。
type InvitationCreated struct {
	InvitationID string    `json:"invitation_id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	ExpiresAt    time.Time `json:"expires_at"`
	Token        string    `json:"token"`
	MailSent     bool      `json:"mail_sent"`
}

// InvitationView 管理面列表条目（不含 token 摘要）
type InvitationView struct {
	InvitationID string    `json:"invitation_id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	RedeemedBy   string    `json:"redeemed_by,omitempty"`
}

// InvitationPreview 兑换前校验响应（给落地页渲染用）
type InvitationPreview struct {
	TenantName string    `json:"tenant_name"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// RedeemRequest 兑换请求。受邀邮箱已有账号时凭 token 直接挂成员关系，
// password 忽略；新邮箱则用 password/full_name 开户。
type RedeemRequest struct {
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// newInviteToken 生成邀请 token：32 字节随机数。
// 返回 (明文 token, sha256 hex 摘要)。
func newInviteToken() (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate invitation token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	digest := sha256.Sum256([]byte(token))
	return token, hex.EncodeToString(digest[:]), nil
}

func hashInviteToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

// Create 创建邀请（owner/admin）
func (s *invitationService) Create(ctx context.Context, tenantID string, req CreateInvitationRequest) (*InvitationCreated, error) {
	caller, err := requireCapability(ctx, s.memberships, tenantID, domain.CapManageInvitations)
	if err != nil {
		return nil, err
	}

	// 1. 参数验证
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidArgument)
	}
	if !domain.ValidRole(req.Role) {
		return nil, fmt.Errorf("%w: invalid role %q", ErrInvalidArgument, req.Role)
	}
	if domain.RoleRank(req.Role) > domain.RoleRank(caller.Role) {
		return nil, fmt.Errorf("%w: cannot invite above own role", ErrPermissionDenied)
	}

	// 2. 生成 token（明文只出现在响应里）
	token, tokenHash, err := newInviteToken()
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(s.expiry)

	// 3. 落库。同邮箱未决邀请撞部分唯一索引
	invitationID, err := s.invitations.CreateInvitation(ctx, &domain.Invitation{
		TenantID:  tenantID,
		Email:     req.Email,
		TokenHash: tokenHash,
		Role:      req.Role,
		CreatedBy: sql.NullString{String: caller.UserID, Valid: true},
		ExpiresAt: expiresAt,
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			metrics.ObserveInvitation("conflict")
			return nil, fmt.Errorf("%w: %s", ErrInvitationPending, req.Email)
		}
		return nil, err
	}

	metrics.ObserveInvitation("created")
	s.logger.Info("Invitation created",
		zap.String("tenant_id", tenantID),
		zap.String("invitation_id", invitationID),
		zap.String("role", req.Role),
		zap.String("created_by", caller.UserID),
	)

	// 4. 发邮件（失败不影响创建，token 已在响应里）
	mailSent := false
	if s.mailer != nil {
		tenant, terr := s.tenantsRepo.GetTenant(ctx, tenantID)
		tenantName := tenantID
		if terr == nil {
			tenantName = tenant.TenantName
		}
		if merr := s.mailer.SendInvitation(req.Email, tenantName, req.Role, token, expiresAt); merr != nil {
			s.logger.Warn("Invitation mail failed, token still usable",
				zap.String("invitation_id", invitationID),
				zap.Error(merr),
			)
		} else {
			mailSent = true
		}
	}

	return &InvitationCreated{
		InvitationID: invitationID,
		Email:        req.Email,
		Role:         req.Role,
		ExpiresAt:    expiresAt,
		Token:        token,
		MailSent:     mailSent,
	}, nil
}

// List 查询邀请列表（owner/admin）
func (s *invitationService) List(ctx context.Context, tenantID, status string, page, size int) ([]*InvitationView, int, error) {
	if _, err := requireCapability(ctx, s.memberships, tenantID, domain.CapManageInvitations); err != nil {
		return nil, 0, err
	}

	invitations, total, err := s.invitations.ListInvitations(ctx, tenantID, status, page, size)
	if err != nil {
		return nil, 0, err
	}

	views := make([]*InvitationView, 0, len(invitations))
	for _, inv := range invitations {
		v := &InvitationView{
			InvitationID: inv.InvitationID,
			Email:        inv.Email,
			Role:         inv.Role,
			Status:       inv.Status,
			ExpiresAt:    inv.ExpiresAt,
		}
		if inv.CreatedAt.Valid {
			v.CreatedAt = inv.CreatedAt.Time
		}
		if inv.RedeemedBy.Valid {
			v.RedeemedBy = inv.RedeemedBy.String
		}
		// 过期但还挂着 pending 的，展示层直接按 expired 报
		if inv.Status == domain.InvitationStatusPending && inv.IsExpired(time.Now()) {
			v.Status = domain.InvitationStatusExpired
		}
		views = append(views, v)
	}

	return views, total, nil
}

// Revoke 撤销邀请（owner/admin）。幂等：重复撤销、撤销已过期邀请都是 no-op；
// 已兑换的邀请不可撤销（成员已进来了，要清人走移除成员）。
func (s *invitationService) Revoke(ctx context.Context, tenantID, invitationID string) error {
	caller, err := requireCapability(ctx, s.memberships, tenantID, domain.CapManageInvitations)
	if err != nil {
		return err
	}

	inv, err := s.invitations.GetInvitation(ctx, tenantID, invitationID)
	if err != nil {
		return err
	}

	switch inv.Status {
	case domain.InvitationStatusAccepted:
		return fmt.Errorf("%w: cannot revoke", ErrInvitationRedeemed)
	case domain.InvitationStatusRevoked, domain.InvitationStatusExpired:
		return nil
	}

	ok, err := s.invitations.MarkRevoked(ctx, tenantID, invitationID)
	if err != nil {
		return err
	}
	if !ok {
		// 和兑换撞车了，重查定性
		inv, err := s.invitations.GetInvitation(ctx, tenantID, invitationID)
		if err != nil {
			return err
		}
		if inv.Status == domain.InvitationStatusAccepted {
			return fmt.Errorf("%w: cannot revoke", ErrInvitationRedeemed)
		}
		return nil
	}

	metrics.ObserveInvitation("revoked")
	s.logger.Info("Invitation revoked",
		zap.String("tenant_id", tenantID),
		zap.String("invitation_id", invitationID),
		zap.String("revoked_by", caller.UserID),
	)
	return nil
}

// lookupUsable 按明文 token 取邀请并判定可用性（校验与兑换共用）
func (s *invitationService) lookupUsable(ctx context.Context, rawToken string) (*domain.Invitation, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrInvitationInvalid
	}

	inv, err := s.invitations.GetByTokenHash(ctx, hashInviteToken(rawToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvitationInvalid
		}
		return nil, err
	}

	switch inv.Status {
	case domain.InvitationStatusAccepted:
		return nil, ErrInvitationRedeemed
	case domain.InvitationStatusRevoked:
		return nil, ErrInvitationInvalid
	case domain.InvitationStatusExpired:
		return nil, ErrInvitationExpired
	}

	if inv.IsExpired(time.Now()) {
		// 懒惰过期：落库失败不影响判定结果
		if merr := s.invitations.MarkExpired(ctx, inv.InvitationID); merr != nil {
			s.logger.Warn("Failed to persist invitation expiry",
				zap.String("invitation_id", inv.InvitationID),
				zap.Error(merr),
			)
		} else {
			metrics.ObserveInvitation("expired")
		}
		return nil, ErrInvitationExpired
	}

	return inv, nil
}

// Validate 兑换前校验（匿名可调）
func (s *invitationService) Validate(ctx context.Context, rawToken string) (*InvitationPreview, error) {
	inv, err := s.lookupUsable(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	tenant, err := s.tenantsRepo.GetTenant(ctx, inv.TenantID)
	if err != nil {
		return nil, err
	}

	return &InvitationPreview{
		TenantName: tenant.TenantName,
		Email:      inv.Email,
		Role:       inv.Role,
		ExpiresAt:  inv.ExpiresAt,
	}, nil
}

// Redeem 兑换邀请：开户或复用已有账号，挂成员关系，翻邀请状态。
// 全部在一个事务里；MarkAccepted 翻不动说明别处先兑换了，整体回滚。
func (s *invitationService) Redeem(ctx context.Context, rawToken string, req RedeemRequest) (*AuthResponse, error) {
	inv, err := s.lookupUsable(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	var (
		userID      string
		email       string
		fullName    string
		memberships []*domain.UserTenant
	)

	err = tenancy.RunInTx(ctx, s.db, func(txCtx context.Context) error {
		// 1. 开户或复用。token 经受邀邮箱送达，持有 token 即视为
		// 控制该邮箱，已有账号直接挂成员关系。
		user, uerr := s.usersRepo.GetUserByEmail(txCtx, inv.Email)
		switch {
		case uerr == nil:
			userID = user.UserID
			email = user.Email
			fullName = user.FullName
		case errors.Is(uerr, sql.ErrNoRows):
			if len(req.Password) < 8 {
				return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidArgument)
			}
			hash, herr := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
			if herr != nil {
				return fmt.Errorf("failed to hash password: %w", herr)
			}
			userID, uerr = s.usersRepo.CreateUser(txCtx, &domain.User{
				Email:        inv.Email,
				PasswordHash: string(hash),
				FullName:     req.FullName,
			})
			if uerr != nil {
				return uerr
			}
			email = inv.Email
			fullName = req.FullName
		default:
			return uerr
		}

		// 2. 绑定用户会话变量，后续写入过行级策略的 user 分支
		if err := tenancy.SetLocalUser(txCtx, userID); err != nil {
			return err
		}

		// 3. 挂成员关系（幂等，已是成员保持原 role）
		if err := s.memberships.EnsureMembership(txCtx, inv.TenantID, userID, inv.Role); err != nil {
			return err
		}

		// 4. 翻邀请状态，并发兑换在这里出胜负
		ok, aerr := s.invitations.MarkAccepted(txCtx, inv.InvitationID, userID)
		if aerr != nil {
			return aerr
		}
		if !ok {
			return ErrInvitationRedeemed
		}

		memberships, aerr = s.memberships.ListUserTenants(txCtx, userID)
		return aerr
	})
	if err != nil {
		if errors.Is(err, ErrInvitationRedeemed) {
			metrics.ObserveInvitation("conflict")
		}
		return nil, err
	}

	metrics.ObserveInvitation("redeemed")
	s.logger.Info("Invitation redeemed",
		zap.String("tenant_id", inv.TenantID),
		zap.String("invitation_id", inv.InvitationID),
		zap.String("user_id", userID),
		zap.String("role", inv.Role),
	)

	// 5. 签发 token，响应和登录同构
	token, expiresAt, err := s.issuer.Issue(userID, email)
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
		UserID:      userID,
		Email:       email,
		FullName:    fullName,
		Memberships: infos,
	}, nil
}
