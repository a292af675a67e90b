package service

import "errors"

// service 层错误分类。http 层用 errors.Is 判定并映射状态码；
// 租户解析相关的分类在 internal/tenancy/errors.go。
var (
	// ErrInvalidArgument 请求参数不合法（映射 400）
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidCredentials 登录凭据错误（账号不存在和密码错误不区分）
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPermissionDenied 调用者在当前租户内缺少所需能力
	ErrPermissionDenied = errors.New("permission denied")

	// ErrEmailTaken 注册邮箱已占用
	ErrEmailTaken = errors.New("email already registered")

	// ErrSlugTaken 租户 slug 已占用
	ErrSlugTaken = errors.New("slug already taken")

	// ErrDomainTaken 域名已挂在某个租户名下（全局唯一）
	ErrDomainTaken = errors.New("domain already mapped to a tenant")

	// ErrInvitationPending 同一 (tenant, email) 已有未决邀请
	ErrInvitationPending = errors.New("invitation already pending for this email")

	// ErrInvitationInvalid token 对不上任何邀请，或邀请已撤销
	ErrInvitationInvalid = errors.New("invitation invalid")

	// ErrInvitationExpired 邀请已过期
	ErrInvitationExpired = errors.New("invitation expired")

	// ErrInvitationRedeemed 邀请已被兑换（并发兑换的败者也走这里）
	ErrInvitationRedeemed = errors.New("invitation already redeemed")

	// ErrLastOwner 拒绝移除租户最后一个 owner
	ErrLastOwner = errors.New("cannot remove the last owner")

	// ErrInvoiceExists 同租户内发票号重复
	ErrInvoiceExists = errors.New("invoice number already exists")
)
