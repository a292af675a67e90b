package tenancy_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"meatchain/internal/repository"
	"meatchain/internal/store"
	"meatchain/internal/tenancy"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func newResolver(dir tenancy.Directory, kv store.KV) *tenancy.Resolver {
	return tenancy.NewResolver(dir, kv, time.Minute, zap.NewNop())
}

// ========== header ==========

func TestResolver_HeaderWinsOverHost(t *testing.T) {
	dir := repository.NewMemoryDirectory()
	acmeID := dir.AddTenant("Acme Foods", "acme", "active")
	zetaID := dir.AddTenant("Zeta Farms", "zeta", "active")
	dir.AddDomain("orders.zeta.test", zetaID)

	tenant, err := newResolver(dir, nil).Resolve(context.Background(), tenancy.ResolveInput{
		TenantID: acmeID,
		Host:     "orders.zeta.test",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if tenant.TenantID != acmeID {
		t.Errorf("Expected header tenant %s, got %s", acmeID, tenant.TenantID)
	}
}

func TestResolver_BadHeaderDoesNotFallBack(t *testing.T) {
	dir := repository.NewMemoryDirectory()
	zetaID := dir.AddTenant("Zeta Farms", "zeta", "active")
	dir.AddDomain("orders.zeta.test", zetaID)

	// header 给错了就是失败，不能悄悄降级到 Host 匹配
	_, err := newResolver(dir, nil).Resolve(context.Background(), tenancy.ResolveInput{
		TenantID: "11111111-2222-3333-4444-555555555555",
		Host:     "orders.zeta.test",
	})
	if !errors.Is(err, tenancy.ErrTenantNotFound) {
		t.Fatalf("Expected ErrTenantNotFound, got %v", err)
	}
}

func TestResolver_SuspendedHeaderRejected(t *testing.T) {
	dir := repository.NewMemoryDirectory()
	id := dir.AddTenant("Acme Foods", "acme", "suspended")

	_, err := newResolver(dir, nil).Resolve(context.Background(), tenancy.ResolveInput{TenantID: id})
	if !errors.Is(err, tenancy.ErrTenantNotFound) {
		t.Fatalf("Expected ErrTenantNotFound for suspended tenant, got %v", err)
	}
}

// ========== Host ==========

func TestResolver_DomainMatch(t *testing.T) {
	dir := repository.NewMemoryDirectory()
	id := dir.AddTenant("Acme Foods", "acme", "active")
	dir.AddDomain("shop.acme.test", id)

	// 大小写和端口都不影响匹配
	for _, host := range []string{"shop.acme.test", "SHOP.Acme.TEST", "shop.acme.test:8443"} {
		tenant, err := newResolver(dir, nil).Resolve(context.Background(), tenancy.ResolveInput{Host: host})
		if err != nil {
			t.Fatalf("Resolve(%q) failed: %v", host, err)
		}
		if tenant.TenantID != id {
			t.Errorf("Resolve(%q): expected %s, got %s", host, id, tenant.TenantID)
		}
	}
}

func TestResolver_SlugFallback(t *testing.T) {
	dir := repository.NewMemoryDirectory()
	id := dir.AddTenant("Acme Foods", "acme", "active")

	tenant, err := newResolver(dir, nil).Resolve(context.Background(), tenancy.ResolveInput{
		Host: "acme.meatchain.app",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if tenant.TenantID != id {
		t.Errorf("Expected %s, got %s", id, tenant.TenantID)
	}

	// 两段 Host 没有子域 label，不做 slug 匹配
	if _, err := newResolver(dir, nil).Resolve(context.Background(), tenancy.ResolveInput{
		Host: "meatchain.app",
	}); !errors.Is(err, tenancy.ErrTenantRequired) {
		t.Errorf("Expected ErrTenantRequired for apex host, got %v", err)
	}
}

func TestResolver_SuspendedSkippedInHostChain(t *testing.T) {
	dir := repository.NewMemoryDirectory()
	suspendedID := dir.AddTenant("Old Acme", "old-acme", "suspended")
	dir.AddDomain("shop.acme.test", suspendedID)
	activeID := dir.AddTenant("Acme Foods", "acme", "active")
	dir.AddMembership("u-1", activeID)

	// 停用租户的域名当作未命中，继续走成员关系解析
	tenant, err := newResolver(dir, nil).Resolve(context.Background(), tenancy.ResolveInput{
		Host:   "shop.acme.test",
		UserID: "u-1",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if tenant.TenantID != activeID {
		t.Errorf("Expected membership tenant %s, got %s", activeID, tenant.TenantID)
	}
}

// ========== 成员关系 ==========

func TestResolver_SingleMembership(t *testing.T) {
	dir := repository.NewMemoryDirectory()
	id := dir.AddTenant("Acme Foods", "acme", "active")
	dir.AddMembership("u-1", id)

	tenant, err := newResolver(dir, nil).Resolve(context.Background(), tenancy.ResolveInput{
		Host:   "api.meatchain.app",
		UserID: "u-1",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if tenant.TenantID != id {
		t.Errorf("Expected %s, got %s", id, tenant.TenantID)
	}
}

func TestResolver_AmbiguousMembership(t *testing.T) {
	dir := repository.NewMemoryDirectory()
	dir.AddMembership("u-1", dir.AddTenant("Acme Foods", "acme", "active"))
	dir.AddMembership("u-1", dir.AddTenant("Zeta Farms", "zeta", "active"))

	_, err := newResolver(dir, nil).Resolve(context.Background(), tenancy.ResolveInput{UserID: "u-1"})
	if !errors.Is(err, tenancy.ErrResolutionAmbiguous) {
		t.Fatalf("Expected ErrResolutionAmbiguous, got %v", err)
	}
}

func TestResolver_Unresolved(t *testing.T) {
	dir := repository.NewMemoryDirectory()
	dir.AddTenant("Acme Foods", "acme", "active")

	_, err := newResolver(dir, nil).Resolve(context.Background(), tenancy.ResolveInput{
		Host:   "nothing.example.test",
		UserID: "stranger",
	})
	if !errors.Is(err, tenancy.ErrTenantRequired) {
		t.Fatalf("Expected ErrTenantRequired, got %v", err)
	}
}

// ========== 缓存 ==========

func newRedisKV(t *testing.T) store.KV {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return store.NewRedisKV(client)
}

func TestResolver_CacheServesDomainLookup(t *testing.T) {
	dir := repository.NewMemoryDirectory()
	id := dir.AddTenant("Acme Foods", "acme", "active")
	dir.AddDomain("shop.acme.test", id)

	resolver := newResolver(dir, newRedisKV(t))
	ctx := context.Background()
	in := tenancy.ResolveInput{Host: "shop.acme.test"}

	if _, err := resolver.Resolve(ctx, in); err != nil {
		t.Fatalf("First resolve failed: %v", err)
	}

	// 目录里的映射没了，缓存还在：第二次解析只能是缓存命中
	dir.RemoveDomain("shop.acme.test")
	tenant, err := resolver.Resolve(ctx, in)
	if err != nil {
		t.Fatalf("Cached resolve failed: %v", err)
	}
	if tenant.TenantID != id {
		t.Errorf("Expected cached tenant %s, got %s", id, tenant.TenantID)
	}
}

func TestResolver_CacheDoesNotMaskSuspension(t *testing.T) {
	dir := repository.NewMemoryDirectory()
	id := dir.AddTenant("Acme Foods", "acme", "active")
	dir.AddDomain("shop.acme.test", id)

	resolver := newResolver(dir, newRedisKV(t))
	ctx := context.Background()
	in := tenancy.ResolveInput{Host: "shop.acme.test"}

	if _, err := resolver.Resolve(ctx, in); err != nil {
		t.Fatalf("First resolve failed: %v", err)
	}

	// 缓存命中后仍回库校验状态：停用立即生效，不用等 TTL
	dir.SetStatus(id, "suspended")
	if _, err := resolver.Resolve(ctx, in); !errors.Is(err, tenancy.ErrTenantRequired) {
		t.Fatalf("Expected ErrTenantRequired after suspension, got %v", err)
	}
}

func TestResolver_InvalidateHost(t *testing.T) {
	dir := repository.NewMemoryDirectory()
	id := dir.AddTenant("Acme Foods", "acme", "active")
	dir.AddDomain("shop.acme.test", id)

	resolver := newResolver(dir, newRedisKV(t))
	ctx := context.Background()
	in := tenancy.ResolveInput{Host: "shop.acme.test"}

	if _, err := resolver.Resolve(ctx, in); err != nil {
		t.Fatalf("First resolve failed: %v", err)
	}

	dir.RemoveDomain("shop.acme.test")
	resolver.InvalidateHost(ctx, "shop.acme.test", "")

	if _, err := resolver.Resolve(ctx, in); !errors.Is(err, tenancy.ErrTenantRequired) {
		t.Fatalf("Expected ErrTenantRequired after invalidation, got %v", err)
	}
}
