package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"docgate/internal/cache"
	"docgate/internal/config"
	"docgate/internal/middleware"
	"docgate/internal/queue"
	"docgate/internal/repository"
	"docgate/internal/service"
	"docgate/internal/storage"
)

type HandlerSet struct {
	log        zerolog.Logger
	cfg        *config.AppConfig
	auth       *service.AuthService
	sessions   *service.SessionService
	policy     *service.PolicyService
	documents  *service.DocumentService
	dispatch   *service.DispatchService
	duplicates *service.DuplicateService
	approvals  *service.ApprovalService
	settings   *service.SettingsService
	loginLimit *middleware.RateLimiter
	probes     []Probe
}

// Services is the service graph behind the HTTP API.
type Services struct {
	Auth       *service.AuthService
	Sessions   *service.SessionService
	Policy     *service.PolicyService
	Documents  *service.DocumentService
	Dispatch   *service.DispatchService
	Duplicates *service.DuplicateService
	Approvals  *service.ApprovalService
	Settings   *service.SettingsService
}

// NewServices wires repositories, storage and the dispatch queue into services.
func NewServices(log zerolog.Logger, db *pgxpool.Pool, rdb *redis.Client, store *storage.ObjectStore, cfg *config.AppConfig) Services {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	settingRepo := repository.NewSettingRepository(db)

	guard := cache.NewLoginGuard(rdb, cfg.Security.LoginMaxFailures, cfg.Security.LoginLockWindow)
	producer := queue.NewProducer(rdb, cfg.Redis.Stream)

	sessions := service.NewSessionService(sessionRepo, cfg.Security.SessionLifetime, log)
	settings := service.NewSettingsService(settingRepo, log)
	policy := service.NewPolicyService(subscriptionRepo, cfg.PackageCatalog(), log)
	approvals := service.NewApprovalService(documentRepo, settings, log)
	duplicates := service.NewDuplicateService(documentRepo, log)

	return Services{
		Auth:       service.NewAuthService(userRepo, sessions, guard, cfg, log),
		Sessions:   sessions,
		Policy:     policy,
		Documents:  service.NewDocumentService(documentRepo, store, policy, duplicates, approvals, log),
		Dispatch:   service.NewDispatchService(documentRepo, store, producer, log),
		Duplicates: duplicates,
		Approvals:  approvals,
		Settings:   settings,
	}
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, svc Services, probes ...Probe) HandlerSet {
	return HandlerSet{
		log:        log,
		cfg:        cfg,
		auth:       svc.Auth,
		sessions:   svc.Sessions,
		policy:     svc.Policy,
		documents:  svc.Documents,
		dispatch:   svc.Dispatch,
		duplicates: svc.Duplicates,
		approvals:  svc.Approvals,
		settings:   svc.Settings,
		loginLimit: middleware.NewRateLimiter(cfg.Security.LoginRatePerMinute, cfg.Security.LoginBurst),
		probes:     probes,
	}
}

func (h HandlerSet) Routes(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	requireAuth := middleware.Auth(h.cfg.Security.JWTAccessSecret, h.auth)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.loginLimit.Middleware(), h.Register)
		auth.POST("/login", h.loginLimit.Middleware(), h.Login)

		protected := v1.Group("/auth")
		protected.Use(requireAuth)
		protected.POST("/logout", h.Logout)
		protected.GET("/me", h.Me)
	}

	sessions := v1.Group("/sessions")
	sessions.Use(requireAuth)
	sessions.GET("", h.ListSessions)
	sessions.DELETE("", h.TerminateOtherSessions)
	sessions.DELETE("/:sessionId", h.TerminateSession)

	v1.GET("/subscription", requireAuth, h.Subscription)

	documents := v1.Group("/documents")
	documents.Use(requireAuth)
	documents.POST("", h.maintenanceGuard, h.UploadDocument)
	documents.GET("", h.ListDocuments)
	documents.GET("/stats", h.DocumentStats)
	documents.GET("/:id", h.GetDocument)
	documents.POST("/:id/process", h.maintenanceGuard, h.ProcessDocument)

	admin := v1.Group("/admin")
	admin.Use(requireAuth, middleware.RequireAdmin())
	admin.GET("/approvals", h.AdminListApprovals)
	admin.POST("/approvals/:id/approve", h.AdminApprove)
	admin.POST("/approvals/:id/reject", h.AdminReject)
	admin.GET("/settings", h.AdminListSettings)
	admin.GET("/settings/auto-approval", h.AdminGetAutoApproval)
	admin.POST("/settings/auto-approval", h.AdminSetAutoApproval)
	admin.PUT("/settings/:key", h.AdminPutSetting)
	admin.PATCH("/users/:id/status", h.AdminSetUserStatus)
	admin.GET("/documents", h.AdminListDocuments)
}
