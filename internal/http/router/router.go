package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers"
	"github.com/ignatzorin/marketplace-backend/internal/http/middleware"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	transactionHandler *handlers.TransactionHandler,
	disputeHandler *handlers.DisputeHandler,
	reportHandler *handlers.ReportHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	seedHandler *handlers.SeedHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	if seedHandler != nil && cfg.Env == "development" {
		api.POST("/seed", seedHandler.Seed)
		api.GET("/seed", seedHandler.Seed)
	}

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod))
	{
		authGroup.POST("/login", authHandler.Login)
	}

	api.GET("/ws", wsHandler.Handle)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/auth/me", authHandler.Me)

		// Покупки. Создание ограничено по частоте: каждый запрос держит
		// резервирования и ходит в платёжный шлюз.
		checkoutRateLimit := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)
		protected.POST("/transactions", checkoutRateLimit, transactionHandler.Checkout)
		protected.GET("/transactions", transactionHandler.ListMine)
		protected.GET("/transactions/:id", middleware.UUIDValidator("id"), transactionHandler.GetStatus)
		protected.GET("/transactions/:id/state", middleware.UUIDValidator("id"), transactionHandler.PollState)
		protected.POST("/transactions/:id/cancel", middleware.UUIDValidator("id"), transactionHandler.Cancel)

		// Взаиморасчёты с продавцами.
		protected.POST("/transactions/:id/lines/:productId/claim",
			middleware.UUIDValidator("id"), middleware.UUIDValidator("productId"),
			transactionHandler.RequestClaim)

		// Споры.
		protected.POST("/disputes", disputeHandler.Create)
		protected.GET("/disputes", disputeHandler.ListMine)
		protected.GET("/disputes/:id", middleware.UUIDValidator("id"), disputeHandler.Get)
		protected.PUT("/disputes/:id/status", middleware.UUIDValidator("id"), disputeHandler.SetStatus)
		protected.POST("/disputes/:id/messages", middleware.UUIDValidator("id"), disputeHandler.PostMessage)
		protected.GET("/disputes/:id/messages", middleware.UUIDValidator("id"), disputeHandler.ListMessages)
		protected.POST("/disputes/:id/read", middleware.UUIDValidator("id"), disputeHandler.MarkRead)
		protected.GET("/disputes/:id/unread", middleware.UUIDValidator("id"), disputeHandler.CountUnread)

		// Жалобы.
		reportRateLimit := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)
		protected.POST("/reports", reportRateLimit, reportHandler.File)
		protected.POST("/reports/attachments", reportRateLimit, reportHandler.UploadAttachment)
		protected.GET("/reports", reportHandler.ListMine)
		protected.GET("/reports/:id", middleware.UUIDValidator("id"), reportHandler.Get)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.AdminOnly())
	{
		admin.GET("/disputes", disputeHandler.ListOpen)
		admin.GET("/reports", reportHandler.ListAssigned)
		admin.POST("/reports/:id/conversation", middleware.UUIDValidator("id"), reportHandler.OpenConversation)
		admin.POST("/reports/:id/resolve", middleware.UUIDValidator("id"), reportHandler.Resolve)

		admin.POST("/transactions/:id/lines/:productId/settle",
			middleware.UUIDValidator("id"), middleware.UUIDValidator("productId"),
			transactionHandler.SettleClaim)
		admin.POST("/transactions/:id/lines/:productId/return",
			middleware.UUIDValidator("id"), middleware.UUIDValidator("productId"),
			transactionHandler.ReturnClaim)
		admin.POST("/deliveries/:id/tracking", middleware.UUIDValidator("id"), transactionHandler.AssignTracking)
	}

	return r
}
