package server

import (
	"context"
	"net/http"

	"offerpay/internal/auth"
	"offerpay/internal/config"
	"offerpay/internal/coupon"
	"offerpay/internal/gateway"
	"offerpay/internal/topup"
	"offerpay/internal/wallet"
	"offerpay/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type Server struct {
	router *gin.Engine
	http   *http.Server
	db     *sqlx.DB
	config *config.Config
}

func New(db *sqlx.DB, cfg *config.Config, gw gateway.Client, processor *webhook.Processor, queue webhook.Enqueuer) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(corsMiddleware())

	walletHandler := wallet.NewHandler(db)
	couponHandler := coupon.NewHandler(db)
	topupHandler := topup.NewHandler(db, gw)
	webhookHandler := webhook.NewHandler(processor, webhook.NewRepository(db), queue)

	// The provider calls this unauthenticated; the HMAC on the raw body is
	// the authentication. Rate-limited to blunt spray attacks.
	router.POST("/webhook/:provider", RateLimitMiddleware(20, 40), webhookHandler.Receive)

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/wallet", walletHandler.GetSummary)
		protected.GET("/wallet/transactions", walletHandler.ListTransactions)

		protected.GET("/topup/plans", topupHandler.ListPlans)
		protected.POST("/topup", topupHandler.Create)
		protected.POST("/topup/verify", topupHandler.Verify)
		protected.GET("/topup/history", topupHandler.ListHistory)
		protected.GET("/topup/:orderID/status", topupHandler.GetStatus)

		protected.POST("/coupons/validate", couponHandler.Validate)
		protected.GET("/coupons/available", couponHandler.ListAvailable)
		protected.GET("/coupons/history", couponHandler.History)
	}

	adminMiddleware := auth.RequireRole("admin")
	admin := router.Group("/admin")
	admin.Use(authMiddleware, adminMiddleware)
	{
		admin.POST("/coupons", couponHandler.CreateCoupon)
		admin.GET("/coupons", couponHandler.ListCoupons)
		admin.PUT("/coupons/:couponID", couponHandler.UpdateCoupon)
		admin.DELETE("/coupons/:couponID", couponHandler.DeleteCoupon)
		admin.POST("/webhooks/replay", webhookHandler.Replay)
	}

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())
	SetupSwagger(router)

	return &Server{
		router: router,
		db:     db,
		config: cfg,
	}
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{
		Addr:    ":" + port,
		Handler: s.router,
	}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Router exposes the engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
