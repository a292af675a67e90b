package httpapi

import (
	"net/http"
	"strings"

	"meatchain/internal/domain"
	"meatchain/internal/models"
	"meatchain/internal/service"

	"go.uber.org/zap"
)

// InvoiceHandler 业务数据面 Handler。
// 发票是隔离层上的示例业务资源：租户一律来自绑定上下文，
// 请求体和路径里都不出现租户ID。
type InvoiceHandler struct {
	invoiceService service.InvoiceService
	logger         *zap.Logger
}

// NewInvoiceHandler 创建发票 Handler
func NewInvoiceHandler(invoiceService service.InvoiceService, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		logger:         logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *InvoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/data/api/v1/invoices":
		switch r.Method {
		case http.MethodGet:
			h.List(w, r)
		case http.MethodPost:
			h.Create(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	case strings.HasPrefix(r.URL.Path, "/data/api/v1/invoices/"):
		invoiceID := strings.TrimPrefix(r.URL.Path, "/data/api/v1/invoices/")
		if invoiceID == "" || strings.Contains(invoiceID, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Get(w, r, invoiceID)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// List 当前租户的发票列表
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := boundTenant(w, r)
	if !ok {
		return
	}

	page, size := parsePage(r)

	invoices, total, err := h.invoiceService.List(r.Context(), tenantID, page, size)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]any, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, invoiceJSON(inv))
	}
	writeJSON(w, http.StatusOK, Ok(listPage(out, models.Pagination{Page: page, Size: size, Total: total})))
}

// Get 查询单张发票
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request, invoiceID string) {
	tenantID, ok := boundTenant(w, r)
	if !ok {
		return
	}

	invoice, err := h.invoiceService.Get(r.Context(), tenantID, invoiceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(invoiceJSON(invoice)))
}

// Create 创建发票
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := boundTenant(w, r)
	if !ok {
		return
	}

	// 1. 参数解析
	var req service.CreateInvoiceRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	// 2. 调用 Service
	invoice, err := h.invoiceService.Create(r.Context(), tenantID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	// 3. 返回响应
	writeJSON(w, http.StatusCreated, Ok(invoiceJSON(invoice)))
}

// invoiceJSON 发票响应体
func invoiceJSON(inv *domain.Invoice) map[string]any {
	out := map[string]any{
		"invoice_id":     inv.InvoiceID,
		"invoice_number": inv.InvoiceNumber,
		"customer_name":  inv.CustomerName,
		"total_cents":    inv.TotalCents,
		"issued_on":      inv.IssuedOn.Format("2006-01-02"),
	}
	if inv.CreatedBy.Valid {
		out["created_by"] = inv.CreatedBy.String
	}
	if inv.CreatedAt.Valid {
		out["created_at"] = inv.CreatedAt.Time.Format("2006-01-02 15:04:05")
	}
	return out
}
