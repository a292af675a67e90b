package tenancy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"meatchain/internal/domain"
	"meatchain/internal/metrics"
	"meatchain/internal/store"

	"go.uber.org/zap"
)

// Directory 解析所需的最小租户目录视图
type Directory interface {
	TenantByID(ctx context.Context, tenantID string) (*domain.Tenant, error)
	TenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error)
	TenantByDomain(ctx context.Context, domainName string) (*domain.Tenant, error)
	TenantIDsByUser(ctx context.Context, userID string) ([]string, error)
}

// ResolveInput 一次请求的解析输入
type ResolveInput struct {
	TenantID string // X-Tenant-ID header（可空）
	Host     string // Host header（可空）
	UserID   string // 认证用户（可空）
}

// Resolver 租户解析器。解析顺序（命中即停，不合并）：
//  1. 显式 header：错误的 id 直接失败，不降级
//  2. Host 精确匹配 tenant_domains
//  3. Host 最左 label 匹配 slug
//  4. 认证用户唯一成员关系；多个成员关系且无 header 必须失败
//  5. 未解析
type Resolver struct {
	dir      Directory
	kv       store.KV // 可为 nil（不启用缓存）
	cacheTTL time.Duration
	logger   *zap.Logger
}

func NewResolver(dir Directory, kv store.KV, cacheTTL time.Duration, logger *zap.Logger) *Resolver {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Resolver{dir: dir, kv: kv, cacheTTL: cacheTTL, logger: logger}
}

const (
	cacheKeyDomain = "tenant:domain:"
	cacheKeySlug   = "tenant:slug:"
)

// Resolve 产出恰好一个租户，或一个明确的失败
func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) (*domain.Tenant, error) {
	// 1. 显式 header
	if in.TenantID != "" {
		tenant, err := r.dir.TenantByID(ctx, in.TenantID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				metrics.ObserveResolution("not_found")
				return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, in.TenantID)
			}
			return nil, fmt.Errorf("failed to resolve tenant header: %w", err)
		}
		if !tenant.IsActive() {
			metrics.ObserveResolution("not_found")
			return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, in.TenantID)
		}
		metrics.ObserveResolution("header")
		return tenant, nil
	}

	// 2/3. Host 匹配（domain 精确 → 最左 label 当 slug）
	if host := normalizeHost(in.Host); host != "" {
		if tenant, err := r.byDomain(ctx, host); err != nil {
			return nil, err
		} else if tenant != nil {
			metrics.ObserveResolution("domain")
			return tenant, nil
		}
		if label := subdomainLabel(host); label != "" {
			if tenant, err := r.bySlug(ctx, label); err != nil {
				return nil, err
			} else if tenant != nil {
				metrics.ObserveResolution("slug")
				return tenant, nil
			}
		}
	}

	// 4. 用户唯一成员关系
	if in.UserID != "" {
		ids, err := r.dir.TenantIDsByUser(ctx, in.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to list user memberships: %w", err)
		}
		switch {
		case len(ids) == 1:
			tenant, err := r.dir.TenantByID(ctx, ids[0])
			if err == nil && tenant.IsActive() {
				metrics.ObserveResolution("membership")
				return tenant, nil
			}
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("failed to load membership tenant: %w", err)
			}
		case len(ids) > 1:
			metrics.ObserveResolution("ambiguous")
			return nil, ErrResolutionAmbiguous
		}
	}

	// 5. 未解析
	metrics.ObserveResolution("unresolved")
	return nil, ErrTenantRequired
}

func (r *Resolver) byDomain(ctx context.Context, host string) (*domain.Tenant, error) {
	if tenant := r.cached(ctx, cacheKeyDomain+host); tenant != nil {
		return tenant, nil
	}
	tenant, err := r.dir.TenantByDomain(ctx, host)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve host domain: %w", err)
	}
	if !tenant.IsActive() {
		return nil, nil
	}
	r.cachePut(ctx, cacheKeyDomain+host, tenant.TenantID)
	return tenant, nil
}

func (r *Resolver) bySlug(ctx context.Context, label string) (*domain.Tenant, error) {
	if tenant := r.cached(ctx, cacheKeySlug+label); tenant != nil {
		return tenant, nil
	}
	tenant, err := r.dir.TenantBySlug(ctx, label)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve subdomain slug: %w", err)
	}
	if !tenant.IsActive() {
		return nil, nil
	}
	r.cachePut(ctx, cacheKeySlug+label, tenant.TenantID)
	return tenant, nil
}

// cached 缓存命中后仍回库校验租户可用；失效条目顺手清掉
func (r *Resolver) cached(ctx context.Context, key string) *domain.Tenant {
	if r.kv == nil {
		return nil
	}
	id, err := r.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrMiss) {
			r.logger.Warn("Resolver cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
	tenant, err := r.dir.TenantByID(ctx, id)
	if err != nil || !tenant.IsActive() {
		_ = r.kv.Del(ctx, key)
		return nil
	}
	return tenant
}

func (r *Resolver) cachePut(ctx context.Context, key, tenantID string) {
	if r.kv == nil {
		return
	}
	if err := r.kv.Set(ctx, key, tenantID, r.cacheTTL); err != nil {
		r.logger.Warn("Resolver cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateHost 目录变更（域名增删、租户停用）后清缓存
func (r *Resolver) InvalidateHost(ctx context.Context, domainName, slug string) {
	if r.kv == nil {
		return
	}
	keys := []string{}
	if domainName != "" {
		keys = append(keys, cacheKeyDomain+normalizeHost(domainName))
	}
	if slug != "" {
		keys = append(keys, cacheKeySlug+strings.ToLower(slug))
	}
	if len(keys) > 0 {
		if err := r.kv.Del(ctx, keys...); err != nil {
			r.logger.Warn("Resolver cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
		}
	}
}

// normalizeHost 去端口、转小写
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return strings.TrimSuffix(host, ".")
}

// subdomainLabel 至少三段（sub.example.com）才把最左 label 当 slug 用
func subdomainLabel(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) < 3 {
		return ""
	}
	return parts[0]
}
