package handler

import (
	"io"
	"log"
	"net/http"

	"github.com/Eursukkul/booking-microservice/rental-service/internal/dto"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/identity"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/middleware"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/payment"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/service"
	"github.com/labstack/echo/v4"
)

const maxCallbackBody = 64 << 10

type PaymentHandler struct {
	svc service.PaymentService
}

func NewPaymentHandler(svc service.PaymentService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/v1/bookings/:id/checkout", h.CreateSession, middleware.RequireAuth)
	e.POST(service.CallbackPath, h.Callback)
}

func (h *PaymentHandler) CreateSession(c echo.Context) error {
	id, err := parseID(c, "booking")
	if err != nil {
		return err
	}

	actor := identity.FromContext(c.Request().Context())
	session, err := h.svc.CreatePaymentSession(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, dto.ToPaymentSessionResponse(session))
}

// Callback receives the gateway's asynchronous result. It always answers 200
// so the gateway does not retry; anomalies are logged instead.
func (h *PaymentHandler) Callback(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBody))
	if err != nil {
		log.Printf("[PaymentCallback] read body: %v", err)
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	cb, err := payment.ParseCallback(body)
	if err != nil {
		log.Printf("[PaymentCallback] %v", err)
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	if err := h.svc.HandlePaymentResult(c.Request().Context(), cb.ID, cb.Succeeded()); err != nil {
		log.Printf("[PaymentCallback] reference %q: %v", cb.ID, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
