package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aichat-platform/aichat/internal/admin"
	"github.com/aichat-platform/aichat/internal/api"
	"github.com/aichat-platform/aichat/internal/audit"
	"github.com/aichat-platform/aichat/internal/auth"
	"github.com/aichat-platform/aichat/internal/chat"
	"github.com/aichat-platform/aichat/internal/config"
	"github.com/aichat-platform/aichat/internal/database"
	"github.com/aichat-platform/aichat/internal/history"
	"github.com/aichat-platform/aichat/internal/ledger"
	"github.com/aichat-platform/aichat/internal/llm"
	mw "github.com/aichat-platform/aichat/internal/middleware"
	inats "github.com/aichat-platform/aichat/internal/nats"
	"github.com/aichat-platform/aichat/internal/payment"
	"github.com/aichat-platform/aichat/internal/purchases"
	iredis "github.com/aichat-platform/aichat/internal/redis"
	"github.com/aichat-platform/aichat/internal/server"
	"github.com/aichat-platform/aichat/internal/users"
)

const recentHistoryTTL = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool); err != nil {
		slog.Warn("pool metrics unavailable", "error", err)
	}

	if cfg.DB.AutoMigrate {
		if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
			slog.Error("running migrations", "error", err)
			os.Exit(1)
		}
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS (optional, audit trail only)
	var (
		natsClient *inats.Client
		ledgerOpts []ledger.Option
	)
	auditRepo := audit.NewRepository(pool)
	auditCtx, stopAudit := context.WithCancel(ctx)
	defer stopAudit()

	if cfg.NATS.URL != "" {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()

		ledgerOpts = append(ledgerOpts, ledger.WithAuditPublisher(inats.NewPublisher(natsClient.JetStream())))

		consumer := audit.NewConsumer(auditRepo, inats.NewConsumerManager(natsClient.JetStream()))
		go func() {
			if err := consumer.Start(auditCtx); err != nil {
				slog.Error("audit consumer stopped", "error", err)
			}
		}()
	} else {
		slog.Warn("NATS_URL is empty, audit events are not recorded")
	}

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)
	userSvc := users.NewService(users.NewRepository(pool))
	authHandler := auth.NewHandler(authSvc, userSvc)

	// History
	var cipher history.Cipher
	if cfg.Encryption.Key != "" {
		enc, err := auth.NewEncryptor(cfg.Encryption.Key)
		if err != nil {
			slog.Error("creating message encryptor", "error", err)
			os.Exit(1)
		}
		cipher = enc
	}
	historySvc := history.NewService(
		history.NewRepository(pool),
		history.NewRecentStore(redisClient, cfg.LLM.ContextMessages, recentHistoryTTL),
		cipher,
		cfg.LLM.ContextMessages,
	)

	// Ledger
	quotaLedger := ledger.New(
		ledger.NewPostgresStore(pool),
		historySvc,
		ledger.Limits{
			GuestFree: cfg.Quota.GuestFreeLimit,
			UserFree:  cfg.Quota.UserFreeLimit,
			Window:    cfg.Quota.Window,
		},
		ledgerOpts...,
	)

	// Chat
	completer := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	})
	chatSvc := chat.NewService(quotaLedger, historySvc, completer, chat.NewBurstLimiter(redisClient), chat.Config{
		SystemPrompt:   cfg.LLM.SystemPrompt,
		BurstPerMinute: cfg.Quota.BurstPerMinute,
	})
	chatHandler := chat.NewHandler(chatSvc)

	// Payments
	var gateway payment.Gateway
	if cfg.Payment.StripeSecretKey != "" {
		gateway = payment.NewStripeGateway(payment.StripeConfig{
			SecretKey:     cfg.Payment.StripeSecretKey,
			WebhookSecret: cfg.Payment.StripeWebhookSecret,
			SuccessURL:    cfg.Payment.SuccessURL,
			CancelURL:     cfg.Payment.CancelURL,
		}, nil)
	}
	catalog := purchases.DefaultCatalog(cfg.Payment.Currency)
	purchaseHandler := purchases.NewHandler(purchases.NewService(quotaLedger, gateway, catalog))

	// Admin
	adminSvc := admin.NewService(admin.NewRepository(pool), authSvc, catalog.Currency())
	if err := adminSvc.EnsureBootstrapAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.FullName); err != nil {
		slog.Error("bootstrapping admin", "error", err)
		os.Exit(1)
	}
	adminHandler := admin.NewHandler(adminSvc)
	auditHandler := audit.NewHandler(auditRepo)

	authLimiter := mw.NewRateLimiter(redisClient, "auth", cfg.RateLimit.AuthMaxRequests, cfg.RateLimit.AuthWindowSec)

	router := api.NewRouter(
		api.Deps{DB: pool, Redis: redisClient, NATS: natsClient},
		api.RouterConfig{
			CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
			AuthRateLimiter:    authLimiter.Middleware,
			TrustedProxies:     cfg.RateLimit.TrustedProxies,
		},
		api.HandlerSet{
			Register: authHandler.Register,
			Login:    authHandler.Login,
			Refresh:  authHandler.Refresh,
			Logout:   authHandler.Logout,

			SendMessage: chatHandler.Send,
			ListHistory: chatHandler.History,
			GetQuota:    chatHandler.Quota,

			ListPackages:   purchaseHandler.Packages,
			CreatePayment:  purchaseHandler.Create,
			GetPurchase:    purchaseHandler.Get,
			PaymentWebhook: purchaseHandler.Webhook,

			AdminLogin:    adminHandler.Login,
			AdminStats:    adminHandler.Stats,
			ListAuditLogs: auditHandler.List,
			GrantPurchase: purchaseHandler.Grant,

			AuthMiddleware:     auth.Middleware(authSvc),
			IdentityMiddleware: auth.OptionalMiddleware(authSvc),
			AdminOnly:          auth.RequireRole(auth.RoleAdmin),
		},
	)

	// Start server
	srv := server.New(cfg.Server, router)
	srv.OnShutdown(stopAudit)
	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
