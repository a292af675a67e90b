package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"meatchain/internal/config"
	"meatchain/internal/domain"
	"meatchain/internal/repository"
	"meatchain/internal/service"
	"meatchain/internal/tenancy"
	"meatchain/pkg/database"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// tenantctl 平台运维工具：租户的增查停复和 guest 租户引导。
// 走连接池直连（不经过请求事务），只碰策略外的 tenants 表；
// bootstrap-guest 例外，它复用服务层的事务流程。
func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tenantsRepo := repository.NewPostgresTenantsRepository(db)

	switch os.Args[1] {
	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		status := fs.String("status", "", "Filter by status (active/suspended)")
		search := fs.String("search", "", "Filter by tenant name substring")
		size := fs.Int("size", 100, "Page size")
		_ = fs.Parse(os.Args[2:])

		tenants, total, err := tenantsRepo.ListTenants(ctx, repository.TenantFilters{Status: *status, Search: *search}, 1, *size)
		if err != nil {
			log.Fatalf("Failed to list tenants: %v", err)
		}
		fmt.Printf("Total: %d\n\n", total)
		fmt.Println("Tenant ID                            | Slug             | Status    | Name")
		fmt.Println("-------------------------------------|------------------|-----------|-----")
		for _, t := range tenants {
			fmt.Printf("%-36s | %-16s | %-9s | %s\n", t.TenantID, t.Slug, t.Status, t.TenantName)
		}

	case "create":
		fs := flag.NewFlagSet("create", flag.ExitOnError)
		name := fs.String("name", "", "Tenant display name (required)")
		slug := fs.String("slug", "", "Tenant slug (required, globally unique)")
		email := fs.String("email", "", "Contact email")
		_ = fs.Parse(os.Args[2:])
		if *name == "" || *slug == "" {
			log.Fatalf("create requires -name and -slug")
		}

		tenantID, err := tenantsRepo.CreateTenant(ctx, &domain.Tenant{
			TenantName: *name,
			Slug:       *slug,
			Email:      *email,
			Status:     "active",
		})
		if err != nil {
			log.Fatalf("Failed to create tenant: %v", err)
		}
		fmt.Printf("✅ Created tenant %s (%s)\n", *slug, tenantID)

	case "suspend", "activate":
		status := "suspended"
		if os.Args[1] == "activate" {
			status = "active"
		}
		fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
		slug := fs.String("slug", "", "Tenant slug (required)")
		_ = fs.Parse(os.Args[2:])
		if *slug == "" {
			log.Fatalf("%s requires -slug", os.Args[1])
		}

		tenant, err := tenantsRepo.GetTenantBySlug(ctx, *slug)
		if err != nil {
			log.Fatalf("Failed to find tenant %q: %v", *slug, err)
		}
		if err := tenantsRepo.SetTenantStatus(ctx, tenant.TenantID, status); err != nil {
			log.Fatalf("Failed to set status: %v", err)
		}
		fmt.Printf("✅ Tenant %s is now %s\n", *slug, status)

	case "bootstrap-guest":
		fs := flag.NewFlagSet("bootstrap-guest", flag.ExitOnError)
		password := fs.String("password", cfg.Guest.Password, "Guest account password")
		_ = fs.Parse(os.Args[2:])

		logger, _ := zap.NewProduction()
		defer logger.Sync()

		domainsRepo := repository.NewPostgresTenantDomainsRepository(db)
		membershipsRepo := repository.NewPostgresMembershipsRepository(db)
		usersRepo := repository.NewPostgresUsersRepository(db)
		invoicesRepo := repository.NewPostgresInvoicesRepository(db, logger)
		directory := repository.NewPostgresDirectory(db)
		resolver := tenancy.NewResolver(directory, nil, cfg.Resolver.CacheTTL, logger)

		tenantService := service.NewTenantService(db, tenantsRepo, domainsRepo, membershipsRepo, usersRepo, invoicesRepo, resolver, logger)
		if err := tenantService.EnsureGuestTenant(ctx, *password); err != nil {
			log.Fatalf("Guest bootstrap failed: %v", err)
		}
		fmt.Println("✅ Guest tenant ready")

	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: tenantctl <command> [flags]

Commands:
  list              List tenants (-status, -search, -size)
  create            Create a tenant (-name, -slug, -email)
  suspend           Suspend a tenant (-slug)
  activate          Reactivate a tenant (-slug)
  bootstrap-guest   Idempotently create the guest demo tenant (-password)
`)
}
