package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meatchain/internal/config"
	httpapi "meatchain/internal/http"
	"meatchain/internal/repository"
	"meatchain/internal/service"
	"meatchain/internal/store"
	"meatchain/internal/tenancy"
	"meatchain/pkg/database"
	pkglogger "meatchain/pkg/logger"
	redispkg "meatchain/pkg/redis"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := pkglogger.NewLogger(cfg.Log.Level, cfg.Log.Format, "meatchain")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// 数据库：租户目录和行级策略都在这里，连不上就没法跑
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Redis：只做解析缓存，不可用时降级为直查
	redisClient := redispkg.NewRedisClient(&cfg.Redis)
	var kv store.KV
	{
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redispkg.Ping(pingCtx, redisClient); err != nil {
			logger.Warn("Redis unavailable, resolver cache disabled", zap.Error(err))
		} else {
			kv = store.NewRedisKV(redisClient)
		}
		cancel()
	}

	// Repository 层
	tenantsRepo := repository.NewPostgresTenantsRepository(db)
	domainsRepo := repository.NewPostgresTenantDomainsRepository(db)
	membershipsRepo := repository.NewPostgresMembershipsRepository(db)
	invitationsRepo := repository.NewPostgresInvitationsRepository(db)
	usersRepo := repository.NewPostgresUsersRepository(db)
	invoicesRepo := repository.NewPostgresInvoicesRepository(db, logger)
	directory := repository.NewPostgresDirectory(db)

	resolver := tenancy.NewResolver(directory, kv, cfg.Resolver.CacheTTL, logger)
	issuer := service.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	var mailer *service.MailClient
	if cfg.Mailer.Enabled {
		mailer = service.NewMailClient(cfg.Mailer.BaseURL, cfg.Mailer.APIKey, cfg.Mailer.FromAddr, logger)
	}

	// Service 层
	authService := service.NewAuthService(db, usersRepo, tenantsRepo, membershipsRepo, issuer, logger)
	tenantService := service.NewTenantService(db, tenantsRepo, domainsRepo, membershipsRepo, usersRepo, invoicesRepo, resolver, logger)
	invitationService := service.NewInvitationService(db, invitationsRepo, membershipsRepo, usersRepo, tenantsRepo, issuer, mailer, cfg.Invite.ExpiryDays, logger)
	invoiceService := service.NewInvoiceService(invoicesRepo, membershipsRepo, logger)

	// Guest/Demo 租户引导（幂等，失败不挡启动）
	if cfg.Guest.Enabled {
		bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := tenantService.EnsureGuestTenant(bootCtx, cfg.Guest.Password); err != nil {
			logger.Error("Guest tenant bootstrap failed", zap.Error(err))
		}
		cancel()
	}

	// 路由
	router := httpapi.NewRouter(logger)
	router.RegisterAuthRoutes(httpapi.NewAuthHandler(authService, logger))
	router.RegisterInvitationRoutes(httpapi.NewInvitationHandler(invitationService, logger))
	router.RegisterTenantAdminRoutes(httpapi.NewTenantAdminHandler(tenantService, invitationService, logger))
	router.RegisterInvitationsAdminRoutes(httpapi.NewInvitationsAdminHandler(invitationService, logger))
	router.RegisterInvoiceRoutes(httpapi.NewInvoiceHandler(invoiceService, logger))
	router.RegisterHealthRoutes(httpapi.NewHealthHandler(db, redisClient, logger))
	router.RegisterMetricsRoute()

	// 中间件链（外到内）：恢复 → 指标 → 认证 → 租户绑定
	handler := httpapi.Chain(router,
		httpapi.RecoveryMiddleware(logger),
		httpapi.MetricsMiddleware(),
		httpapi.AuthMiddleware(issuer, logger),
		httpapi.TenantBinder(db, resolver, logger),
	)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Tenant-ID"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	})

	srv := service.NewServer(cfg.HTTP.Addr, corsHandler.Handler(handler), logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server exited", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	_ = redisClient.Close()
	_ = db.Close()
}
