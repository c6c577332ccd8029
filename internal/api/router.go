package api

import (
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/aichat-platform/aichat/internal/database"
	mw "github.com/aichat-platform/aichat/internal/middleware"
	inats "github.com/aichat-platform/aichat/internal/nats"
	iredis "github.com/aichat-platform/aichat/internal/redis"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Auth handlers
	Register http.HandlerFunc
	Login    http.HandlerFunc
	Refresh  http.HandlerFunc
	Logout   http.HandlerFunc

	// Chat handlers
	SendMessage http.HandlerFunc
	ListHistory http.HandlerFunc
	GetQuota    http.HandlerFunc

	// Purchase handlers
	ListPackages   http.HandlerFunc
	CreatePayment  http.HandlerFunc
	GetPurchase    http.HandlerFunc
	PaymentWebhook http.HandlerFunc

	// Admin handlers
	AdminLogin    http.HandlerFunc
	AdminStats    http.HandlerFunc
	ListAuditLogs http.HandlerFunc
	GrantPurchase http.HandlerFunc

	// AuthMiddleware rejects requests without a valid access token.
	AuthMiddleware func(http.Handler) http.Handler
	// IdentityMiddleware attaches claims when a valid token is present and lets guests through.
	IdentityMiddleware func(http.Handler) http.Handler
	// AdminOnly must run after AuthMiddleware.
	AdminOnly func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AuthRateLimiter    func(http.Handler) http.Handler
	// TrustedProxies are the only peers whose X-Forwarded-For is honoured.
	TrustedProxies     []netip.Prefix
}

// Deps are the backing services probed by the readiness endpoint. NATS may be nil.
type Deps struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
	NATS  *inats.Client
}

func NewRouter(deps Deps, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RealIP(cfg.TrustedProxies))
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe: always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"redis":    "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), deps.DB); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if err := iredis.HealthCheck(r.Context(), deps.Redis); err != nil {
			health["redis"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		// Audit streaming is optional; a lost NATS connection degrades but does not fail readiness.
		if deps.NATS == nil {
			health["nats"] = "not configured"
		} else if !deps.NATS.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthRateLimiter != nil {
				r.Use(cfg.AuthRateLimiter)
			}
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
			})
		})

		// Guest or registered user
		r.Group(func(r chi.Router) {
			r.Use(h.IdentityMiddleware)

			r.Post("/chat", h.SendMessage)
			r.Get("/chat/history", h.ListHistory)
			r.Get("/quota", h.GetQuota)

			r.Get("/packages", h.ListPackages)
			r.Post("/payments", h.CreatePayment)
			r.Get("/payments/{purchaseID}", h.GetPurchase)
		})

		// Authenticated by signature, not by token
		r.Post("/payments/webhook", h.PaymentWebhook)

		r.Route("/admin", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if cfg.AuthRateLimiter != nil {
					r.Use(cfg.AuthRateLimiter)
				}
				r.Post("/login", h.AdminLogin)
			})

			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Use(h.AdminOnly)

				r.Get("/stats", h.AdminStats)
				r.Get("/audit", h.ListAuditLogs)
				r.Post("/purchases", h.GrantPurchase)
			})
		})
	})

	return r
}
