package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/Eursukkul/booking-microservice/rental-service/internal/dto"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/identity"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/middleware"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/models"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/notify"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/service"
	"github.com/labstack/echo/v4"
)

type BookingHandler struct {
	svc      service.BookingService
	notifier notify.Dispatcher
}

func NewBookingHandler(svc service.BookingService, notifier notify.Dispatcher) *BookingHandler {
	return &BookingHandler{svc: svc, notifier: notifier}
}

func (h *BookingHandler) RegisterRoutes(e *echo.Echo) {
	bookings := e.Group("/api/v1/bookings", middleware.RequireAuth)
	bookings.POST("", h.CreateBooking)
	bookings.GET("", h.ListBookings)
	bookings.GET("/:id", h.GetBooking)
	bookings.POST("/:id/accept", h.AcceptBooking)
	bookings.POST("/:id/decline", h.DeclineBooking)
	bookings.POST("/:id/cancel", h.CancelBooking)
	bookings.POST("/:id/refund", h.MarkRefunded)
}

func (h *BookingHandler) CreateBooking(c echo.Context) error {
	var req dto.CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	actor := identity.FromContext(c.Request().Context())
	booking, err := h.svc.CreateBooking(c.Request().Context(), actor, service.CreateBookingInput{
		ListingID:  req.ListingID,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		TotalPrice: req.TotalPrice,
	})
	if err != nil {
		return httpError(err)
	}

	if h.notifier != nil && booking.Listing != nil {
		if err := h.notifier.Notify(c.Request().Context(), booking.Listing.OwnerID, notify.KindBookingRequested, service.Payload(booking)); err != nil {
			log.Printf("[BookingHandler] notify owner of booking %d: %v", booking.ID, err)
		}
	}

	return c.JSON(http.StatusCreated, dto.ToBookingResponse(booking))
}

func (h *BookingHandler) ListBookings(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	actor := identity.FromContext(c.Request().Context())
	result, err := h.svc.ListBookings(c.Request().Context(), actor, page, pageSize)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, dto.ToBookingListResponse(result))
}

func (h *BookingHandler) GetBooking(c echo.Context) error {
	return h.act(c, h.svc.GetBooking)
}

func (h *BookingHandler) AcceptBooking(c echo.Context) error {
	return h.act(c, h.svc.AcceptBooking)
}

func (h *BookingHandler) DeclineBooking(c echo.Context) error {
	return h.act(c, h.svc.DeclineBooking)
}

func (h *BookingHandler) CancelBooking(c echo.Context) error {
	return h.act(c, h.svc.CancelBooking)
}

func (h *BookingHandler) MarkRefunded(c echo.Context) error {
	return h.act(c, h.svc.MarkRefunded)
}

type bookingAction func(ctx context.Context, actor identity.Principal, bookingID uint) (*models.Booking, error)

// act runs a single-booking operation for the current principal.
func (h *BookingHandler) act(c echo.Context, op bookingAction) error {
	id, err := parseID(c, "booking")
	if err != nil {
		return err
	}

	actor := identity.FromContext(c.Request().Context())
	booking, err := op(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, dto.ToBookingResponse(booking))
}
