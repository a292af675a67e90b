package httpapi

import (
	"net/http"
	"strings"

	"meatchain/internal/service"

	"go.uber.org/zap"
)

// InvitationHandler 邀请兑换面 Handler（免租户路径，凭 token 访问）
type InvitationHandler struct {
	invitations service.InvitationService
	logger      *zap.Logger
}

// NewInvitationHandler 创建邀请兑换 Handler
func NewInvitationHandler(invitations service.InvitationService, logger *zap.Logger) *InvitationHandler {
	return &InvitationHandler{
		invitations: invitations,
		logger:      logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *InvitationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 路由分发
	switch r.URL.Path {
	case "/invite/api/v1/validate":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Validate(w, r)
	case "/invite/api/v1/redeem":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Redeem(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// Validate 兑换前校验，给落地页渲染租户名/邮箱/角色
func (h *InvitationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// 1. 参数解析
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeJSON(w, http.StatusBadRequest, Fail("token is required"))
		return
	}

	// 2. 调用 Service
	preview, err := h.invitations.Validate(ctx, token)
	if err != nil {
		writeError(w, err)
		return
	}

	// 3. 返回响应
	writeJSON(w, http.StatusOK, Ok(preview))
}

// Redeem 兑换邀请：已有账号直接挂成员关系，新邮箱开户后挂
func (h *InvitationHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// 1. 参数解析
	var payload struct {
		Token    string `json:"token"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	payload.Token = strings.TrimSpace(payload.Token)
	if payload.Token == "" {
		writeJSON(w, http.StatusBadRequest, Fail("token is required"))
		return
	}

	// 2. 调用 Service
	resp, err := h.invitations.Redeem(ctx, payload.Token, service.RedeemRequest{
		Password: payload.Password,
		FullName: payload.FullName,
	})
	if err != nil {
		h.logger.Warn("Invitation redeem failed", zap.String("ip", getClientIP(r)), zap.Error(err))
		writeError(w, err)
		return
	}

	// 3. 返回响应（和登录同构，前端拿到即视为已登录）
	writeJSON(w, http.StatusOK, Ok(resp))
}
