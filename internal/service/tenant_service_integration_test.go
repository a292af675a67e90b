// +build integration

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"meatchain/internal/domain"
	"meatchain/internal/repository"
	"meatchain/internal/tenancy"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newTenantServiceForTest(db *sql.DB) TenantService {
	logger := zap.NewNop()
	directory := repository.NewPostgresDirectory(db)
	resolver := tenancy.NewResolver(directory, nil, time.Minute, logger)
	return NewTenantService(
		db,
		repository.NewPostgresTenantsRepository(db),
		repository.NewPostgresTenantDomainsRepository(db),
		repository.NewPostgresMembershipsRepository(db),
		repository.NewPostgresUsersRepository(db),
		repository.NewPostgresInvoicesRepository(db, logger),
		resolver,
		logger,
	)
}

func cleanupTenantFixtures(t *testing.T, db *sql.DB, tenantID string, emails ...string) {
	t.Helper()
	ctx := context.Background()

	_, _ = db.ExecContext(ctx, `DELETE FROM tenant_domains WHERE tenant_id = $1::uuid`, tenantID)
	_ = tenancy.RunInTx(ctx, db, func(txCtx context.Context) error {
		txCtx, err := tenancy.BindTenant(txCtx, tenantID)
		if err != nil {
			return err
		}
		q := tenancy.Querier(txCtx, db)
		_, _ = q.ExecContext(txCtx, `DELETE FROM invoices WHERE tenant_id = $1::uuid`, tenantID)
		_, _ = q.ExecContext(txCtx, `DELETE FROM tenant_users WHERE tenant_id = $1::uuid`, tenantID)
		return nil
	})
	_, _ = db.ExecContext(ctx, `DELETE FROM tenants WHERE tenant_id = $1::uuid`, tenantID)
	for _, email := range emails {
		_, _ = db.ExecContext(ctx, `DELETE FROM users WHERE lower(email) = lower($1)`, email)
	}
}

func TestTenantService_ProfileRoundTrip(t *testing.T) {
	db := serviceTestDB(t)
	defer db.Close()

	svc := newTenantServiceForTest(db)
	suffix := uuid.NewString()[:8]
	slug := "ten-" + suffix

	tenantID, ownerID := seedInviteTenant(t, db, slug, domain.RoleOwner)
	defer cleanupTenantFixtures(t, db, tenantID, slug+"-owner@test.local")

	// 1. 读资料
	ctx, tx := inviteAdminCtx(t, db, tenantID, ownerID)
	profile, err := svc.GetProfile(ctx, tenantID)
	if err != nil {
		_ = tx.Rollback()
		t.Fatalf("GetProfile failed: %v", err)
	}
	if profile.Slug != slug || profile.Status != domain.TenantStatusActive {
		t.Errorf("Unexpected profile: %+v", profile)
	}
	_ = tx.Commit()

	// 2. 改名 + 改 settings
	ctx, tx = inviteAdminCtx(t, db, tenantID, ownerID)
	if err := svc.UpdateProfile(ctx, tenantID, UpdateProfileRequest{TenantName: "Renamed Kitchen"}); err != nil {
		_ = tx.Rollback()
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if err := svc.UpdateSettings(ctx, tenantID, json.RawMessage(`{"theme":"dark","locale":"zh-CN"}`)); err != nil {
		_ = tx.Rollback()
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	ctx, tx = inviteAdminCtx(t, db, tenantID, ownerID)
	profile, err = svc.GetProfile(ctx, tenantID)
	if err != nil {
		_ = tx.Rollback()
		t.Fatalf("GetProfile after update failed: %v", err)
	}
	_ = tx.Commit()
	if profile.TenantName != "Renamed Kitchen" {
		t.Errorf("Expected renamed tenant, got %s", profile.TenantName)
	}
	var settings map[string]string
	if err := json.Unmarshal(profile.Settings, &settings); err != nil || settings["theme"] != "dark" {
		t.Errorf("Expected settings to round-trip, got %s (err=%v)", profile.Settings, err)
	}

	// 3. 非法请求
	ctx, tx = inviteAdminCtx(t, db, tenantID, ownerID)
	if err := svc.UpdateProfile(ctx, tenantID, UpdateProfileRequest{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for empty update, got %v", err)
	}
	if err := svc.UpdateSettings(ctx, tenantID, json.RawMessage(`{not json`)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for bad settings, got %v", err)
	}
	_ = tx.Rollback()
	t.Logf("✅ Profile and settings verified")
}

func TestTenantService_DomainLifecycle(t *testing.T) {
	db := serviceTestDB(t)
	defer db.Close()

	svc := newTenantServiceForTest(db)
	suffix := uuid.NewString()[:8]
	slug := "dom-" + suffix
	ordersDomain := "orders-" + suffix + ".test.local"
	shopDomain := "shop-" + suffix + ".test.local"

	tenantID, ownerID := seedInviteTenant(t, db, slug, domain.RoleOwner)
	defer cleanupTenantFixtures(t, db, tenantID, slug+"-owner@test.local")

	countPrimary := func(domains []*domain.TenantDomain) (int, string) {
		n, name := 0, ""
		for _, d := range domains {
			if d.IsPrimary {
				n++
				name = d.Domain
			}
		}
		return n, name
	}

	// 1. 挂两个域名，第二个设为主
	ctx, tx := inviteAdminCtx(t, db, tenantID, ownerID)
	if _, err := svc.AddDomain(ctx, tenantID, ordersDomain, false); err != nil {
		_ = tx.Rollback()
		t.Fatalf("AddDomain failed: %v", err)
	}
	// 大写输入要被规范化
	if _, err := svc.AddDomain(ctx, tenantID, "SHOP-"+suffix+".Test.Local", true); err != nil {
		_ = tx.Rollback()
		t.Fatalf("AddDomain primary failed: %v", err)
	}
	domains, err := svc.ListDomains(ctx, tenantID)
	if err != nil {
		_ = tx.Rollback()
		t.Fatalf("ListDomains failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if len(domains) != 2 {
		t.Fatalf("Expected 2 domains, got %d", len(domains))
	}
	if n, name := countPrimary(domains); n != 1 || name != shopDomain {
		t.Errorf("Expected exactly one primary (%s), got n=%d name=%s", shopDomain, n, name)
	}

	// 2. 换主域名，active primary 只能有一个
	ctx, tx = inviteAdminCtx(t, db, tenantID, ownerID)
	if err := svc.SetPrimaryDomain(ctx, tenantID, ordersDomain); err != nil {
		_ = tx.Rollback()
		t.Fatalf("SetPrimaryDomain failed: %v", err)
	}
	domains, err = svc.ListDomains(ctx, tenantID)
	if err != nil {
		_ = tx.Rollback()
		t.Fatalf("ListDomains failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if n, name := countPrimary(domains); n != 1 || name != ordersDomain {
		t.Errorf("Expected primary switched to %s, got n=%d name=%s", ordersDomain, n, name)
	}

	// 3. 域名全局唯一
	otherID, otherOwner := seedInviteTenant(t, db, "dom2-"+suffix, domain.RoleOwner)
	defer cleanupTenantFixtures(t, db, otherID, "dom2-"+suffix+"-owner@test.local")

	ctx, tx = inviteAdminCtx(t, db, otherID, otherOwner)
	_, err = svc.AddDomain(ctx, otherID, ordersDomain, false)
	_ = tx.Rollback()
	if !errors.Is(err, ErrDomainTaken) {
		t.Errorf("Expected ErrDomainTaken for cross-tenant duplicate, got %v", err)
	}

	// 4. 摘除
	ctx, tx = inviteAdminCtx(t, db, tenantID, ownerID)
	if err := svc.RemoveDomain(ctx, tenantID, shopDomain); err != nil {
		_ = tx.Rollback()
		t.Fatalf("RemoveDomain failed: %v", err)
	}
	domains, err = svc.ListDomains(ctx, tenantID)
	if err != nil {
		_ = tx.Rollback()
		t.Fatalf("ListDomains failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if len(domains) != 1 || domains[0].Domain != ordersDomain {
		t.Errorf("Expected only %s left, got %+v", ordersDomain, domains)
	}
	t.Logf("✅ Domain lifecycle verified, primary stays unique")
}

func TestTenantService_RemoveMemberRules(t *testing.T) {
	db := serviceTestDB(t)
	defer db.Close()

	svc := newTenantServiceForTest(db)
	suffix := uuid.NewString()[:8]
	slug := "mem-" + suffix

	tenantID, ownerID := seedInviteTenant(t, db, slug, domain.RoleOwner)
	adminID := seedInviteMember(t, db, tenantID, slug+"-admin@test.local", domain.RoleAdmin)
	memberID := seedInviteMember(t, db, tenantID, slug+"-member@test.local", domain.RoleMember)
	defer cleanupTenantFixtures(t, db, tenantID,
		slug+"-owner@test.local", slug+"-admin@test.local", slug+"-member@test.local")

	// 1. member 没有移人能力
	ctx, tx := inviteAdminCtx(t, db, tenantID, memberID)
	if err := svc.RemoveMember(ctx, tenantID, adminID); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied for member, got %v", err)
	}
	_ = tx.Rollback()

	// 2. admin 不能移除 owner（不低于自己）
	ctx, tx = inviteAdminCtx(t, db, tenantID, adminID)
	if err := svc.RemoveMember(ctx, tenantID, ownerID); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied for admin removing owner, got %v", err)
	}
	_ = tx.Rollback()

	// 3. admin 移除普通 member
	ctx, tx = inviteAdminCtx(t, db, tenantID, adminID)
	if err := svc.RemoveMember(ctx, tenantID, memberID); err != nil {
		_ = tx.Rollback()
		t.Fatalf("RemoveMember failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// 4. 最后一个 owner 移不掉（即使自己动手）
	ctx, tx = inviteAdminCtx(t, db, tenantID, ownerID)
	if err := svc.RemoveMember(ctx, tenantID, ownerID); !errors.Is(err, ErrLastOwner) {
		t.Errorf("Expected ErrLastOwner, got %v", err)
	}
	_ = tx.Rollback()
	t.Logf("✅ Member removal rules enforced")
}

func TestTenantService_EnsureGuestTenant(t *testing.T) {
	db := serviceTestDB(t)
	defer db.Close()

	svc := newTenantServiceForTest(db)
	ctx := context.Background()

	// 清掉可能残留的 guest 固件，引导必须从零重建
	var stale string
	if err := db.QueryRowContext(ctx,
		`SELECT tenant_id::text FROM tenants WHERE slug = 'guest'`,
	).Scan(&stale); err == nil {
		cleanupTenantFixtures(t, db, stale, "guest@meatchain.io")
	}

	// 跑三遍，结果必须一样
	for i := 0; i < 3; i++ {
		if err := svc.EnsureGuestTenant(ctx, "guest-demo-pw-1"); err != nil {
			t.Fatalf("EnsureGuestTenant run %d failed: %v", i+1, err)
		}
	}

	var tenantID, ephemeral string
	if err := db.QueryRowContext(ctx,
		`SELECT tenant_id::text, COALESCE(settings->>'ephemeral', '') FROM tenants WHERE slug = 'guest'`,
	).Scan(&tenantID, &ephemeral); err != nil {
		t.Fatalf("Guest tenant not found: %v", err)
	}
	if ephemeral != "true" {
		t.Errorf("Expected ephemeral settings flag, got %q", ephemeral)
	}

	// 成员关系和演示发票都不随重复引导膨胀
	err := tenancy.RunInTx(ctx, db, func(txCtx context.Context) error {
		txCtx, err := tenancy.BindTenant(txCtx, tenantID)
		if err != nil {
			return err
		}
		q := tenancy.Querier(txCtx, db)

		var members, invoices int
		var role string
		if err := q.QueryRowContext(txCtx,
			`SELECT COUNT(*) FROM tenant_users WHERE tenant_id = $1::uuid`, tenantID,
		).Scan(&members); err != nil {
			return err
		}
		if err := q.QueryRowContext(txCtx,
			`SELECT role FROM tenant_users WHERE tenant_id = $1::uuid LIMIT 1`, tenantID,
		).Scan(&role); err != nil {
			return err
		}
		if err := q.QueryRowContext(txCtx,
			`SELECT COUNT(*) FROM invoices WHERE tenant_id = $1::uuid`, tenantID,
		).Scan(&invoices); err != nil {
			return err
		}

		if members != 1 {
			t.Errorf("Expected 1 guest membership, got %d", members)
		}
		if role != "admin" {
			t.Errorf("Expected guest role admin, got %q", role)
		}
		if invoices != 2 {
			t.Errorf("Expected 2 demo invoices, got %d", invoices)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to inspect guest tenant: %v", err)
	}
	t.Logf("✅ Guest bootstrap is idempotent")
}
