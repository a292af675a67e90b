package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"meatchain/internal/domain"
	"meatchain/internal/repository"

	"go.uber.org/zap"
)

// InvoiceService 发票服务接口。
// 业务数据访问的合同样板：tenantID 一律取自请求绑定的租户，
// 任何 payload 里出现的租户字段都不采信。
type InvoiceService interface {
	List(ctx context.Context, tenantID string, page, size int) ([]*domain.Invoice, int, error)
	Get(ctx context.Context, tenantID, invoiceID string) (*domain.Invoice, error)
	Create(ctx context.Context, tenantID string, req CreateInvoiceRequest) (*domain.Invoice, error)
}

// invoiceService 实现
type invoiceService struct {
	invoices    repository.InvoicesRepository
	memberships repository.MembershipsRepository
	logger      *zap.Logger
}

// NewInvoiceService 创建 InvoiceService 实例
func NewInvoiceService(
	invoices repository.InvoicesRepository,
	memberships repository.MembershipsRepository,
	logger *zap.Logger,
) InvoiceService {
	return &invoiceService{
		invoices:    invoices,
		memberships: memberships,
		logger:      logger,
	}
}

// CreateInvoiceRequest 创建发票请求
type CreateInvoiceRequest struct {
	InvoiceNumber string `json:"invoice_number"` // 必填，租户内唯一
	CustomerName  string `json:"customer_name"`  // 可选
	TotalCents    int64  `json:"total_cents"`    // 非负
	IssuedOn      string `json:"issued_on"`      // 可选，YYYY-MM-DD，缺省当天
}

// List 查询发票列表
func (s *invoiceService) List(ctx context.Context, tenantID string, page, size int) ([]*domain.Invoice, int, error) {
	if _, err := requireCapability(ctx, s.memberships, tenantID, domain.CapViewRecords); err != nil {
		return nil, 0, err
	}
	return s.invoices.ListInvoices(ctx, tenantID, page, size)
}

// Get 查询单张发票
func (s *invoiceService) Get(ctx context.Context, tenantID, invoiceID string) (*domain.Invoice, error) {
	if _, err := requireCapability(ctx, s.memberships, tenantID, domain.CapViewRecords); err != nil {
		return nil, err
	}
	return s.invoices.GetInvoice(ctx, tenantID, invoiceID)
}

// Create 创建发票（member 及以上）
func (s *invoiceService) Create(ctx context.Context, tenantID string, req CreateInvoiceRequest) (*domain.Invoice, error) {
	caller, err := requireCapability(ctx, s.memberships, tenantID, domain.CapWriteRecords)
	if err != nil {
		return nil, err
	}

	req.InvoiceNumber = strings.TrimSpace(req.InvoiceNumber)
	if req.InvoiceNumber == "" {
		return nil, fmt.Errorf("%w: invoice_number is required", ErrInvalidArgument)
	}
	if req.TotalCents < 0 {
		return nil, fmt.Errorf("%w: total_cents must not be negative", ErrInvalidArgument)
	}

	issuedOn := time.Now()
	if req.IssuedOn != "" {
		issuedOn, err = time.Parse("2006-01-02", req.IssuedOn)
		if err != nil {
			return nil, fmt.Errorf("%w: issued_on must be YYYY-MM-DD", ErrInvalidArgument)
		}
	}

	invoice := &domain.Invoice{
		InvoiceNumber: req.InvoiceNumber,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		TotalCents:    req.TotalCents,
		IssuedOn:      issuedOn,
		CreatedBy:     sql.NullString{String: caller.UserID, Valid: true},
	}

	invoiceID, err := s.invoices.CreateInvoice(ctx, tenantID, invoice)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrInvoiceExists, req.InvoiceNumber)
		}
		return nil, err
	}

	s.logger.Info("Invoice created",
		zap.String("tenant_id", tenantID),
		zap.String("invoice_id", invoiceID),
		zap.String("invoice_number", req.InvoiceNumber),
	)

	invoice.InvoiceID = invoiceID
	invoice.TenantID = tenantID
	return invoice, nil
}
