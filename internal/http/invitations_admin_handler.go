package httpapi

import (
	"net/http"
	"strings"

	"meatchain/internal/models"
	"meatchain/internal/service"

	"go.uber.org/zap"
)

// InvitationsAdminHandler 邀请管理面 Handler（创建/列表/撤销）
type InvitationsAdminHandler struct {
	invitations service.InvitationService
	logger      *zap.Logger
}

// NewInvitationsAdminHandler 创建邀请管理 Handler
func NewInvitationsAdminHandler(invitations service.InvitationService, logger *zap.Logger) *InvitationsAdminHandler {
	return &InvitationsAdminHandler{
		invitations: invitations,
		logger:      logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *InvitationsAdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/admin/api/v1/invitations":
		switch r.Method {
		case http.MethodGet:
			h.List(w, r)
		case http.MethodPost:
			h.Create(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	case strings.HasPrefix(r.URL.Path, "/admin/api/v1/invitations/"):
		rest := strings.TrimPrefix(r.URL.Path, "/admin/api/v1/invitations/")
		parts := strings.Split(rest, "/")
		if parts[0] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if len(parts) == 2 && parts[1] == "revoke" && r.Method == http.MethodPost {
			h.Revoke(w, r, parts[0])
			return
		}
		w.WriteHeader(http.StatusNotFound)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// Create 创建邀请。明文 token 只在这个响应里出现一次。
func (h *InvitationsAdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := boundTenant(w, r)
	if !ok {
		return
	}

	// 1. 参数解析
	var req service.CreateInvitationRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	// 2. 调用 Service
	created, err := h.invitations.Create(r.Context(), tenantID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	// 3. 返回响应
	writeJSON(w, http.StatusCreated, Ok(created))
}

// List 当前租户的邀请列表，支持 status 过滤
func (h *InvitationsAdminHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := boundTenant(w, r)
	if !ok {
		return
	}

	status := r.URL.Query().Get("status")
	page, size := parsePage(r)

	items, total, err := h.invitations.List(r.Context(), tenantID, status, page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(listPage(items, models.Pagination{Page: page, Size: size, Total: total})))
}

// Revoke 撤销待处理邀请（已撤销/已过期重复调用是幂等的）
func (h *InvitationsAdminHandler) Revoke(w http.ResponseWriter, r *http.Request, invitationID string) {
	tenantID, ok := boundTenant(w, r)
	if !ok {
		return
	}

	if err := h.invitations.Revoke(r.Context(), tenantID, invitationID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}
