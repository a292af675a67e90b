// +build integration

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"meatchain/internal/domain"

	"github.com/google/uuid"
)

// isolationDB / envOr / envOrInt 已在 isolation_integration_test.go 中定义，这里直接复用

// 清理测试租户（域名随租户级联删除）
func cleanupTenantRows(t *testing.T, db *sql.DB, tenantID string) {
	_, _ = db.Exec(`DELETE FROM tenant_domains WHERE tenant_id = $1::uuid`, tenantID)
	_, _ = db.Exec(`DELETE FROM tenants WHERE tenant_id = $1::uuid`, tenantID)
}

func TestPostgresTenantsRepository_CreateAndGet(t *testing.T) {
	db := isolationDB(t)
	defer db.Close()

	repo := NewPostgresTenantsRepository(db)
	ctx := context.Background()
	slug := "repo-cg-" + uuid.NewString()[:8]

	tenant := &domain.Tenant{
		TenantName: "Repo Create Tenant",
		Slug:       slug,
		Email:      "repo@test.local",
		Phone:      "1234567890",
		OnTrial:    true,
		Settings:   json.RawMessage(`{"key": "value"}`),
		Status:     domain.TenantStatusActive,
	}

	tenantID, err := repo.CreateTenant(ctx, tenant)
	if err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}
	defer cleanupTenantRows(t, db, tenantID)

	if tenantID == "" {
		t.Fatal("Expected non-empty tenant_id")
	}

	created, err := repo.GetTenant(ctx, tenantID)
	if err != nil {
		t.Fatalf("GetTenant failed: %v", err)
	}
	if created.TenantName != tenant.TenantName {
		t.Errorf("Expected tenant_name '%s', got '%s'", tenant.TenantName, created.TenantName)
	}
	if created.Slug != slug {
		t.Errorf("Expected slug '%s', got '%s'", slug, created.Slug)
	}
	if created.Email != tenant.Email {
		t.Errorf("Expected email '%s', got '%s'", tenant.Email, created.Email)
	}
	if !created.OnTrial {
		t.Error("Expected on_trial=true")
	}
	if created.Status != domain.TenantStatusActive {
		t.Errorf("Expected status 'active', got '%s'", created.Status)
	}

	var settings map[string]string
	if err := json.Unmarshal(created.Settings, &settings); err != nil || settings["key"] != "value" {
		t.Errorf("Expected settings to round-trip, got %s (err=%v)", created.Settings, err)
	}

	t.Logf("✅ CreateAndGet test passed: tenantID=%s", tenantID)
}

func TestPostgresTenantsRepository_GetTenantBySlug(t *testing.T) {
	db := isolationDB(t)
	defer db.Close()

	repo := NewPostgresTenantsRepository(db)
	ctx := context.Background()
	slug := "repo-slug-" + uuid.NewString()[:8]

	tenantID, err := repo.CreateTenant(ctx, &domain.Tenant{
		TenantName: "Repo Slug Tenant",
		Slug:       slug,
		Status:     domain.TenantStatusActive,
	})
	if err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}
	defer cleanupTenantRows(t, db, tenantID)

	// slug 大小写不敏感
	tenant, err := repo.GetTenantBySlug(ctx, "REPO-SLUG-"+slug[len("repo-slug-"):])
	if err != nil {
		t.Fatalf("GetTenantBySlug failed: %v", err)
	}
	if tenant.TenantID != tenantID {
		t.Errorf("Expected tenant_id '%s', got '%s'", tenantID, tenant.TenantID)
	}

	// 未知 slug 包着 sql.ErrNoRows 返回
	if _, err := repo.GetTenantBySlug(ctx, "no-such-slug-"+slug); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected sql.ErrNoRows for unknown slug, got %v", err)
	}

	t.Logf("✅ GetTenantBySlug test passed: slug=%s", slug)
}

func TestPostgresTenantsRepository_ListTenants(t *testing.T) {
	db := isolationDB(t)
	defer db.Close()

	repo := NewPostgresTenantsRepository(db)
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	name := "Repo List Tenant " + suffix

	tenantID, err := repo.CreateTenant(ctx, &domain.Tenant{
		TenantName: name,
		Slug:       "repo-list-" + suffix,
		Status:     domain.TenantStatusActive,
	})
	if err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}
	defer cleanupTenantRows(t, db, tenantID)

	// 1. 不带过滤
	tenants, total, err := repo.ListTenants(ctx, TenantFilters{}, 1, 10)
	if err != nil {
		t.Fatalf("ListTenants failed: %v", err)
	}
	if total < 1 || len(tenants) < 1 {
		t.Errorf("Expected at least 1 tenant, got total=%d len=%d", total, len(tenants))
	}

	// 2. 按 status 过滤
	tenants, _, err = repo.ListTenants(ctx, TenantFilters{Status: domain.TenantStatusActive}, 1, 10)
	if err != nil {
		t.Fatalf("ListTenants (status filter) failed: %v", err)
	}
	for _, tenant := range tenants {
		if tenant.Status != domain.TenantStatusActive {
			t.Errorf("Expected status 'active', got '%s'", tenant.Status)
		}
	}

	// 3. 按名称搜索
	tenants, _, err = repo.ListTenants(ctx, TenantFilters{Search: suffix}, 1, 10)
	if err != nil {
		t.Fatalf("ListTenants (search) failed: %v", err)
	}
	found := false
	for _, tenant := range tenants {
		if tenant.TenantID == tenantID {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("Expected to find '%s' in search results", name)
	}

	t.Logf("✅ ListTenants test passed: total=%d", total)
}

func TestPostgresTenantsRepository_UpdateTenant(t *testing.T) {
	db := isolationDB(t)
	defer db.Close()

	repo := NewPostgresTenantsRepository(db)
	ctx := context.Background()
	slug := "repo-upd-" + uuid.NewString()[:8]

	tenantID, err := repo.CreateTenant(ctx, &domain.Tenant{
		TenantName: "Repo Update Tenant",
		Slug:       slug,
		Email:      "before@test.local",
		Status:     domain.TenantStatusActive,
	})
	if err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}
	defer cleanupTenantRows(t, db, tenantID)

	// 只更新名称，空字段跳过
	err = repo.UpdateTenant(ctx, tenantID, &domain.Tenant{TenantName: "Renamed Repo Tenant"})
	if err != nil {
		t.Fatalf("UpdateTenant failed: %v", err)
	}

	tenant, err := repo.GetTenant(ctx, tenantID)
	if err != nil {
		t.Fatalf("GetTenant failed: %v", err)
	}
	if tenant.TenantName != "Renamed Repo Tenant" {
		t.Errorf("Expected renamed tenant, got '%s'", tenant.TenantName)
	}
	if tenant.Email != "before@test.local" {
		t.Errorf("Expected email untouched by partial update, got '%s'", tenant.Email)
	}
	if tenant.Slug != slug {
		t.Errorf("Expected slug immutable, got '%s'", tenant.Slug)
	}

	t.Logf("✅ UpdateTenant test passed: tenantID=%s", tenantID)
}

func TestPostgresTenantsRepository_UpdateSettings(t *testing.T) {
	db := isolationDB(t)
	defer db.Close()

	repo := NewPostgresTenantsRepository(db)
	ctx := context.Background()

	tenantID, err := repo.CreateTenant(ctx, &domain.Tenant{
		TenantName: "Repo Settings Tenant",
		Slug:       "repo-set-" + uuid.NewString()[:8],
		Status:     domain.TenantStatusActive,
	})
	if err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}
	defer cleanupTenantRows(t, db, tenantID)

	if err := repo.UpdateSettings(ctx, tenantID, json.RawMessage(`{"locale": "zh-CN"}`)); err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}

	tenant, err := repo.GetTenant(ctx, tenantID)
	if err != nil {
		t.Fatalf("GetTenant failed: %v", err)
	}
	var settings map[string]string
	if err := json.Unmarshal(tenant.Settings, &settings); err != nil || settings["locale"] != "zh-CN" {
		t.Errorf("Expected settings replaced, got %s (err=%v)", tenant.Settings, err)
	}

	t.Logf("✅ UpdateSettings test passed: tenantID=%s", tenantID)
}

func TestPostgresTenantsRepository_SetTenantStatus(t *testing.T) {
	db := isolationDB(t)
	defer db.Close()

	repo := NewPostgresTenantsRepository(db)
	ctx := context.Background()

	tenantID, err := repo.CreateTenant(ctx, &domain.Tenant{
		TenantName: "Repo Status Tenant",
		Slug:       "repo-st-" + uuid.NewString()[:8],
		Status:     domain.TenantStatusActive,
	})
	if err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}
	defer cleanupTenantRows(t, db, tenantID)

	// 停用再恢复（软下线，不做物理删除）
	if err := repo.SetTenantStatus(ctx, tenantID, domain.TenantStatusSuspended); err != nil {
		t.Fatalf("SetTenantStatus(suspended) failed: %v", err)
	}
	tenant, err := repo.GetTenant(ctx, tenantID)
	if err != nil {
		t.Fatalf("GetTenant failed: %v", err)
	}
	if tenant.Status != domain.TenantStatusSuspended {
		t.Errorf("Expected status 'suspended', got '%s'", tenant.Status)
	}

	if err := repo.SetTenantStatus(ctx, tenantID, domain.TenantStatusActive); err != nil {
		t.Fatalf("SetTenantStatus(active) failed: %v", err)
	}
	tenant, err = repo.GetTenant(ctx, tenantID)
	if err != nil {
		t.Fatalf("GetTenant failed: %v", err)
	}
	if tenant.Status != domain.TenantStatusActive {
		t.Errorf("Expected status 'active' after reactivation, got '%s'", tenant.Status)
	}

	t.Logf("✅ SetTenantStatus test passed: tenantID=%s", tenantID)
}

func TestPostgresTenantsRepository_UpsertTenantBySlug(t *testing.T) {
	db := isolationDB(t)
	defer db.Close()

	repo := NewPostgresTenantsRepository(db)
	ctx := context.Background()
	slug := "repo-ups-" + uuid.NewString()[:8]

	firstID, err := repo.UpsertTenantBySlug(ctx, &domain.Tenant{
		TenantName: "Repo Upsert Tenant",
		Slug:       slug,
		OnTrial:    true,
	})
	if err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}
	defer cleanupTenantRows(t, db, firstID)

	// 同 slug 再跑一遍，拿回同一个 ID
	secondID, err := repo.UpsertTenantBySlug(ctx, &domain.Tenant{
		TenantName: "Repo Upsert Tenant Again",
		Slug:       slug,
		OnTrial:    true,
	})
	if err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}
	if firstID != secondID {
		t.Errorf("Expected idempotent upsert, got %s then %s", firstID, secondID)
	}

	t.Logf("✅ UpsertTenantBySlug test passed: tenantID=%s", firstID)
}

func TestPostgresTenantDomainsRepository_Lifecycle(t *testing.T) {
	db := isolationDB(t)
	defer db.Close()

	tenantsRepo := NewPostgresTenantsRepository(db)
	domainsRepo := NewPostgresTenantDomainsRepository(db)
	ctx := context.Background()
	suffix := uuid.NewString()[:8]

	tenantID, err := tenantsRepo.CreateTenant(ctx, &domain.Tenant{
		TenantName: "Repo Domains Tenant",
		Slug:       "repo-dom-" + suffix,
		Status:     domain.TenantStatusActive,
	})
	if err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}
	defer cleanupTenantRows(t, db, tenantID)

	first := "first-" + suffix + ".test.local"
	second := "second-" + suffix + ".test.local"

	// 1. 挂两个域名
	if _, err := domainsRepo.AddDomain(ctx, &domain.TenantDomain{TenantID: tenantID, Domain: first}); err != nil {
		t.Fatalf("AddDomain(first) failed: %v", err)
	}
	if _, err := domainsRepo.AddDomain(ctx, &domain.TenantDomain{TenantID: tenantID, Domain: second}); err != nil {
		t.Fatalf("AddDomain(second) failed: %v", err)
	}

	// 2. 重复域名撞唯一索引
	_, err = domainsRepo.AddDomain(ctx, &domain.TenantDomain{TenantID: tenantID, Domain: first})
	if err == nil || !IsUniqueViolation(err) {
		t.Errorf("Expected unique violation for duplicate domain, got %v", err)
	}

	// 3. 切主域名，部分唯一索引保证最多一个 primary
	if err := domainsRepo.SetPrimaryDomain(ctx, tenantID, first); err != nil {
		t.Fatalf("SetPrimaryDomain(first) failed: %v", err)
	}
	if err := domainsRepo.SetPrimaryDomain(ctx, tenantID, second); err != nil {
		t.Fatalf("SetPrimaryDomain(second) failed: %v", err)
	}

	domains, err := domainsRepo.ListDomains(ctx, tenantID)
	if err != nil {
		t.Fatalf("ListDomains failed: %v", err)
	}
	if len(domains) != 2 {
		t.Fatalf("Expected 2 domains, got %d", len(domains))
	}
	primaries := 0
	for _, d := range domains {
		if d.IsPrimary {
			primaries++
			if d.Domain != second {
				t.Errorf("Expected primary '%s', got '%s'", second, d.Domain)
			}
		}
	}
	if primaries != 1 {
		t.Errorf("Expected exactly 1 primary, got %d", primaries)
	}

	// 4. 摘除
	if err := domainsRepo.DeleteDomain(ctx, tenantID, first); err != nil {
		t.Fatalf("DeleteDomain failed: %v", err)
	}
	domains, err = domainsRepo.ListDomains(ctx, tenantID)
	if err != nil {
		t.Fatalf("ListDomains after delete failed: %v", err)
	}
	if len(domains) != 1 || domains[0].Domain != second {
		t.Errorf("Expected only '%s' left, got %+v", second, domains)
	}

	t.Logf("✅ Domain lifecycle test passed: tenantID=%s", tenantID)
}
