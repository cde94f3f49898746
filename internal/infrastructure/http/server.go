package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	handlers "github.com/lexinote/payment-service/internal/adapter/handler/http"
	"github.com/lexinote/payment-service/internal/config"
	"github.com/lexinote/payment-service/internal/middleware/auth"
	"github.com/lexinote/payment-service/internal/usecase"
)

type Server struct {
	config  *config.Config
	logger  *zap.Logger
	echo    *echo.Echo
	service *usecase.PaymentService
}

func NewServer(cfg *config.Config, logger *zap.Logger, service *usecase.PaymentService) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE},
	}))

	return &Server{
		config:  cfg,
		logger:  logger,
		echo:    e,
		service: service,
	}
}

func (s *Server) Start() error {
	// Setup routes
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": s.config.Service.Name,
		})
	})

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(s.service, s.logger)
	walletHandler := handlers.NewWalletHandler(s.service, s.logger)
	adminHandler := handlers.NewAdminHandler(s.service, s.logger)

	// JWT middleware configuration
	jwtConfig := auth.JWTConfig{
		Secret: s.config.JWT.Secret,
		Logger: s.logger,
		SkipPaths: []string{
			"/health",
		},
	}

	// API v1 routes
	v1 := s.echo.Group("/api/v1")

	// Protected routes (require JWT authentication)
	protected := v1.Group("", auth.JWTMiddleware(jwtConfig))

	// Payment routes
	payments := protected.Group("/payments")
	payments.POST("", paymentHandler.CreatePayment)
	payments.GET("", paymentHandler.ListPayments)
	payments.GET("/:id", paymentHandler.GetPayment)

	// Wallet routes
	protected.GET("/wallets", walletHandler.GetUserWallets)

	// Admin routes (require admin role on top of authentication)
	admin := protected.Group("/admin", auth.RequireAdmin(s.logger))
	admin.POST("/payments/:id/confirm", adminHandler.ConfirmPayment)
}
