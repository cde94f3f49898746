package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lexinote/payment-service/internal/domain/dto"
	domainErrors "github.com/lexinote/payment-service/internal/domain/errors"
	"github.com/lexinote/payment-service/internal/middleware/auth"
	"github.com/lexinote/payment-service/internal/usecase"
)

type PaymentHandler struct {
	service  *usecase.PaymentService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewPaymentHandler(service *usecase.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// CreatePayment opens a new payment intent for the authenticated user
func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if err != nil {
		return err // RequireAuth already returns the JSON error response
	}

	var req dto.CreatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	if err := h.validate.Struct(&req); err != nil {
		h.logger.Warn("Payment creation validation failed",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	payment, err := h.service.CreatePayment(c.Request().Context(), user.UserID, &req)
	if err != nil {
		h.logger.Error("Failed to create payment",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to create payment",
		})
	}

	return c.JSON(http.StatusCreated, payment)
}

// GetPayment returns one of the caller's payments by its public UUID
func (h *PaymentHandler) GetPayment(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Payment ID must be a valid UUID",
		})
	}

	payment, err := h.service.GetPayment(c.Request().Context(), user.UserID, paymentID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrPaymentNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "Payment not found",
			})
		}
		h.logger.Error("Failed to get payment",
			zap.String("payment_id", paymentID.String()),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to get payment",
		})
	}

	return c.JSON(http.StatusOK, payment)
}

// ListPayments returns a page of the caller's payments
func (h *PaymentHandler) ListPayments(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	limit := 20
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "Invalid limit parameter",
			})
		}
		limit = parsed
	}

	offset := 0
	if offsetStr := c.QueryParam("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "Invalid offset parameter",
			})
		}
		offset = parsed
	}

	payments, err := h.service.ListPayments(c.Request().Context(), user.UserID, c.QueryParam("status"), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list payments",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to list payments",
		})
	}

	return c.JSON(http.StatusOK, payments)
}
