package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"

	"meatchain/internal/domain"
	"meatchain/internal/tenancy"

	"github.com/google/uuid"
)

// MemoryDirectory 内存版租户目录（tenancy.Directory 实现）。
// 解析器单测和 DB 不可用的开发模式用；未命中返回 sql.ErrNoRows，
// 与 Postgres 实现保持同一错误语义。
type MemoryDirectory struct {
	mu          sync.RWMutex
	tenants     map[string]domain.Tenant // tenantID -> Tenant
	domains     map[string]string        // domain -> tenantID
	memberships map[string][]string      // userID -> tenantIDs
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		tenants:     map[string]domain.Tenant{},
		domains:     map[string]string{},
		memberships: map[string][]string{},
	}
}

var _ tenancy.Directory = (*MemoryDirectory)(nil)

// AddTenant 预置租户，返回生成的 tenantID
func (r *MemoryDirectory) AddTenant(name, slug, status string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	r.tenants[id] = domain.Tenant{
		TenantID:   id,
		TenantName: name,
		Slug:       strings.ToLower(slug),
		Status:     status,
	}
	return id
}

// SetStatus 调整预置租户状态
func (r *MemoryDirectory) SetStatus(tenantID, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tenants[tenantID]; ok {
		t.Status = status
		r.tenants[tenantID] = t
	}
}

// AddDomain 预置域名映射
func (r *MemoryDirectory) AddDomain(domainName, tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.domains[strings.ToLower(domainName)] = tenantID
}

// RemoveDomain 摘除域名映射
func (r *MemoryDirectory) RemoveDomain(domainName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.domains, strings.ToLower(domainName))
}

// AddMembership 预置成员关系
func (r *MemoryDirectory) AddMembership(userID, tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memberships[userID] = append(r.memberships[userID], tenantID)
}

func (r *MemoryDirectory) TenantByID(_ context.Context, tenantID string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tenants[tenantID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (r *MemoryDirectory) TenantBySlug(_ context.Context, slug string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slug = strings.ToLower(slug)
	for _, t := range r.tenants {
		if t.Slug == slug {
			tenant := t
			return &tenant, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *MemoryDirectory) TenantByDomain(_ context.Context, domainName string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.domains[strings.ToLower(domainName)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	t, ok := r.tenants[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (r *MemoryDirectory) TenantIDsByUser(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := append([]string{}, r.memberships[userID]...)
	sort.Strings(ids)
	return ids, nil
}
