package server

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/Aidin1998/investex/internal/catalog"
	"github.com/Aidin1998/investex/internal/config"
	"github.com/Aidin1998/investex/internal/database"
	"github.com/Aidin1998/investex/internal/deposit"
	"github.com/Aidin1998/investex/internal/identities"
	"github.com/Aidin1998/investex/internal/ledger"
	"github.com/Aidin1998/investex/internal/wallet"
	"github.com/Aidin1998/investex/pkg/models"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Purchaser executes instrument purchases
type Purchaser interface {
	Purchase(ctx context.Context, userID, instrumentID uuid.UUID, quantity int64) (*models.Wallet, error)
}

// Services bundles the domain services exposed over HTTP
type Services struct {
	Identities identities.IdentityService
	Catalog    catalog.CatalogService
	Wallets    wallet.WalletService
	Purchases  Purchaser
	Deposits   deposit.DepositService
	Ledger     ledger.Recorder
}

// Server represents the HTTP server
type Server struct {
	logger  *zap.Logger
	db      *gorm.DB
	svc     Services
	config  config.ServerConfig
	service string
}

// NewServer creates a new HTTP server
func NewServer(logger *zap.Logger, db *gorm.DB, svc Services, cfg config.ServerConfig) *Server {
	return &Server{
		logger:  logger.Named("http"),
		db:      db,
		svc:     svc,
		config:  cfg,
		service: "investex",
	}
}

// Router creates a new HTTP router
func (s *Server) Router() *gin.Engine {
	registerJSONFieldNames()

	router := gin.New()

	router.Use(ginzap.Ginzap(s.logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	router.Use(otelgin.Middleware(s.service))
	router.Use(cors.New(s.corsConfig()))

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		users := v1.Group("/users")
		{
			users.POST("/register", s.handleRegister)
			users.POST("/login", s.handleLogin)
		}

		instruments := v1.Group("/instruments", s.authMiddleware())
		{
			instruments.GET("", s.handleListInstruments)
			instruments.GET("/:id", s.handleGetInstrument)
			instruments.POST("", s.require(models.CapManageCatalog), s.handleCreateInstrument)
			instruments.PATCH("/:id", s.require(models.CapManageCatalog), s.handleUpdateInstrument)
		}

		w := v1.Group("/wallet", s.authMiddleware())
		{
			w.GET("", s.handleGetWallet)
			w.POST("/purchase", s.handlePurchase)
			w.GET("/transactions", s.handleListTransactions)
		}

		deposits := v1.Group("/deposits", s.authMiddleware())
		{
			deposits.POST("", s.handleRequestDeposit)
			deposits.GET("", s.handleListDeposits)
		}

		notifications := v1.Group("/notifications", s.authMiddleware())
		{
			notifications.GET("", s.handleListNotifications)
			notifications.POST("/:id/read", s.handleMarkRead)
		}

		admin := v1.Group("/admin", s.authMiddleware())
		{
			admin.PUT("/wallets/:user_id/limits", s.require(models.CapSetLimits), s.handleSetLimits)
			admin.GET("/deposits", s.require(models.CapDecideDeposits), s.handleListPendingDeposits)
			admin.POST("/deposits/:id/decision", s.require(models.CapDecideDeposits), s.handleDecideDeposit)
		}
	}

	return router
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	if len(s.config.AllowedOrigins) == 0 || slices.Contains(s.config.AllowedOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.config.AllowedOrigins
	}
	return cfg
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.Router(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := database.Ping(c.Request.Context(), s.db); err != nil {
		s.logger.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "up"})
}
