package httpapi

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"meatchain/internal/models"
	"meatchain/internal/tenancy"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

// parsePage 解析并规范化 page/size 查询参数
func parsePage(r *http.Request) (int, int) {
	page := parseInt(r.URL.Query().Get("page"), 1)
	size := parseInt(r.URL.Query().Get("size"), 50)
	return models.Clamp(page, size, 200)
}

// listPage 列表统一响应：items + 平铺分页字段（与前端列表组件约定一致）
func listPage(items any, pg models.Pagination) map[string]any {
	return map[string]any{
		"items": items,
		"total": pg.Total,
		"page":  pg.Page,
		"size":  pg.Size,
	}
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// boundTenant 取中间件绑定的租户ID。取不到说明路由配置漏了
// TenantBinder，按内部错误处理。
func boundTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID, ok := tenancy.TenantFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusInternalServerError, Fail("tenant context missing"))
		return "", false
	}
	return tenantID, true
}

// getClientIP 反向代理后取 X-Forwarded-For 首个地址，否则剥掉 RemoteAddr 的端口
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.Index(xff, ","); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
