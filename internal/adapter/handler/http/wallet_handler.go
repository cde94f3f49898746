package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lexinote/payment-service/internal/middleware/auth"
	"github.com/lexinote/payment-service/internal/usecase"
)

type WalletHandler struct {
	service *usecase.PaymentService
	logger  *zap.Logger
}

func NewWalletHandler(service *usecase.PaymentService, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{
		service: service,
		logger:  logger,
	}
}

// GetUserWallets lists the sender wallets remembered for the caller
func (h *WalletHandler) GetUserWallets(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if err != nil {
		return err // RequireAuth already returns the JSON error response
	}

	wallets, err := h.service.GetUserWallets(c.Request().Context(), user.UserID)
	if err != nil {
		h.logger.Error("Failed to get user wallets",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to get wallets",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"wallets": wallets,
	})
}
