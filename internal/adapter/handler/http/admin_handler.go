package http

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lexinote/payment-service/internal/domain/dto"
	domainErrors "github.com/lexinote/payment-service/internal/domain/errors"
	"github.com/lexinote/payment-service/internal/middleware/auth"
	"github.com/lexinote/payment-service/internal/usecase"
)

type AdminHandler struct {
	service  *usecase.PaymentService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewAdminHandler(service *usecase.PaymentService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// ConfirmPayment force-completes a payment that support verified out of
// band. The route is behind the admin role middleware.
func (h *AdminHandler) ConfirmPayment(c echo.Context) error {
	admin, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Payment ID must be a valid UUID",
		})
	}

	var req dto.ManualConfirmRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	h.logger.Info("Manual payment confirmation requested",
		zap.String("payment_id", paymentID.String()),
		zap.String("admin_id", admin.UserID))

	payment, err := h.service.ManualConfirm(c.Request().Context(), paymentID, admin.UserID, req.Notes)
	if err != nil {
		if errors.Is(err, domainErrors.ErrPaymentNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "Payment not found",
			})
		}
		var activationErr *domainErrors.ActivationError
		if errors.As(err, &activationErr) {
			h.logger.Error("Activation failed during manual confirmation",
				zap.String("payment_id", paymentID.String()),
				zap.Error(err))
			return c.JSON(http.StatusBadGateway, map[string]string{
				"error": "Payment confirmed but activation failed; retry the request",
			})
		}
		h.logger.Error("Failed to manually confirm payment",
			zap.String("payment_id", paymentID.String()),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to confirm payment",
		})
	}

	return c.JSON(http.StatusOK, payment)
}
