package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"meatchain/internal/models"
	"meatchain/internal/service"

	"go.uber.org/zap"
)

// TenantAdminHandler 租户管理面 Handler。
// 所有操作作用于中间件绑定的当前租户，路径里不出现租户ID。
type TenantAdminHandler struct {
	tenants     service.TenantService
	invitations service.InvitationService
	logger      *zap.Logger
}

// NewTenantAdminHandler 创建租户管理 Handler
func NewTenantAdminHandler(tenants service.TenantService, invitations service.InvitationService, logger *zap.Logger) *TenantAdminHandler {
	return &TenantAdminHandler{
		tenants:     tenants,
		invitations: invitations,
		logger:      logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *TenantAdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/admin/api/v1/tenant":
		switch r.Method {
		case http.MethodGet:
			h.GetProfile(w, r)
		case http.MethodPatch:
			h.UpdateProfile(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	case r.URL.Path == "/admin/api/v1/tenant/settings":
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.UpdateSettings(w, r)

	case r.URL.Path == "/admin/api/v1/tenant/domains":
		switch r.Method {
		case http.MethodGet:
			h.ListDomains(w, r)
		case http.MethodPost:
			h.AddDomain(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	case strings.HasPrefix(r.URL.Path, "/admin/api/v1/tenant/domains/"):
		rest := strings.TrimPrefix(r.URL.Path, "/admin/api/v1/tenant/domains/")
		parts := strings.Split(rest, "/")
		if parts[0] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch {
		case len(parts) == 1 && r.Method == http.MethodDelete:
			h.RemoveDomain(w, r, parts[0])
		case len(parts) == 2 && parts[1] == "primary" && r.Method == http.MethodPost:
			h.SetPrimaryDomain(w, r, parts[0])
		default:
			w.WriteHeader(http.StatusNotFound)
		}

	case r.URL.Path == "/admin/api/v1/tenant/members":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ListMembers(w, r)

	case strings.HasPrefix(r.URL.Path, "/admin/api/v1/tenant/members/"):
		userID := strings.TrimPrefix(r.URL.Path, "/admin/api/v1/tenant/members/")
		if userID == "" || strings.Contains(userID, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.RemoveMember(w, r, userID)

	case r.URL.Path == "/admin/api/v1/tenant/export":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Export(w, r)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// GetProfile 查询当前租户资料（含域名列表）
func (h *TenantAdminHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := boundTenant(w, r)
	if !ok {
		return
	}

	profile, err := h.tenants.GetProfile(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(profile))
}

// UpdateProfile 更新租户资料（空字段跳过，slug 不可改）
func (h *TenantAdminHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := boundTenant(w, r)
	if !ok {
		return
	}

	// 1. 参数解析
	var req service.UpdateProfileRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	// 2. 调用 Service
	if err := h.tenants.UpdateProfile(r.Context(), tenantID, req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}

// UpdateSettings 整体替换租户设置 JSON
func (h *TenantAdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := boundTenant(w, r)
	if !ok {
		return
	}

	var settings json.RawMessage
	if err := readBodyJSON(r, 1<<20, &settings); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	if err := h.tenants.UpdateSettings(r.Context(), tenantID, settings); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}

// ListDomains 当前租户的域名列表
func (h *TenantAdminHandler) ListDomains(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := boundTenant(w, r)
	if !ok {
		return
	}

	domains, err := h.tenants.ListDomains(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]any, 0, len(domains))
	for _, d := range domains {
		out = append(out, map[string]any{
			"domain":     d.Domain,
			"is_primary": d.IsPrimary,
			"created_at": nullTimeString(d.CreatedAt.Time, d.CreatedAt.Valid),
		})
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": out, "total": len(out)}))
}

// AddDomain 给当前租户挂域名
func (h *TenantAdminHandler) AddDomain(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := boundTenant(w, r)
	if !ok {
		return
	}

	// 1. 参数解析
	var payload struct {
		Domain    string `json:"domain"`
		IsPrimary bool   `json:"is_primary"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	// 2. 调用 Service
	domainName, err := h.tenants.AddDomain(r.Context(), tenantID, payload.Domain, payload.IsPrimary)
	if err != nil {
		writeError(w, err)
		return
	}

	// 3. 返回响应
	writeJSON(w, http.StatusCreated, Ok(map[string]any{
		"domain":     domainName,
		"is_primary": payload.IsPrimary,
	}))
}

// RemoveDomain 摘除域名（同时清掉解析缓存）
func (h *TenantAdminHandler) RemoveDomain(w http.ResponseWriter, r *http.Request, domainName string) {
	tenantID, ok := boundTenant(w, r)
	if !ok {
		return
	}

	if err := h.tenants.RemoveDomain(r.Context(), tenantID, domainName); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}

// SetPrimaryDomain 切换主域名
func (h *TenantAdminHandler) SetPrimaryDomain(w http.ResponseWriter, r *http.Request, domainName string) {
	tenantID, ok := boundTenant(w, r)
	if !ok {
		return
	}

	if err := h.tenants.SetPrimaryDomain(r.Context(), tenantID, domainName); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}

// ListMembers 当前租户的成员列表
func (h *TenantAdminHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := boundTenant(w, r)
	if !ok {
		return
	}

	page, size := parsePage(r)

	members, total, err := h.tenants.ListMembers(r.Context(), tenantID, page, size)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]any, 0, len(members))
	for _, m := range members {
		out = append(out, map[string]any{
			"user_id":   m.UserID,
			"email":     m.Email,
			"full_name": m.FullName,
			"role":      m.Role,
			"joined_at": nullTimeString(m.JoinedAt.Time, m.JoinedAt.Valid),
		})
	}
	writeJSON(w, http.StatusOK, Ok(listPage(out, models.Pagination{Page: page, Size: size, Total: total})))
}

// RemoveMember 移除成员（自己退出也走这里）
func (h *TenantAdminHandler) RemoveMember(w http.ResponseWriter, r *http.Request, userID string) {
	tenantID, ok := boundTenant(w, r)
	if !ok {
		return
	}

	if err := h.tenants.RemoveMember(r.Context(), tenantID, userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}

// Export 导出当前租户的成员/域名/待处理邀请为 Excel 工作簿
func (h *TenantAdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := boundTenant(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	// 1. 汇总导出数据（成员和邀请都按导出上限取第一页）
	profile, err := h.tenants.GetProfile(ctx, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	members, _, err := h.tenants.ListMembers(ctx, tenantID, 1, 10000)
	if err != nil {
		writeError(w, err)
		return
	}
	invitations, _, err := h.invitations.List(ctx, tenantID, "pending", 1, 10000)
	if err != nil {
		writeError(w, err)
		return
	}

	// 2. 生成工作簿
	data, err := GenerateTenantExport(profile, members, invitations)
	if err != nil {
		h.logger.Error("Tenant export failed", zap.String("tenant_id", tenantID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to generate export"))
		return
	}

	// 3. 以附件形式返回
	filename := fmt.Sprintf("%s-export-%s.xlsx", profile.Slug, time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// nullTimeString 可空时间转字符串（零值给空串）
func nullTimeString(t time.Time, valid bool) string {
	if !valid {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
