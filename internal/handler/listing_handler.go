package handler

import (
	"net/http"

	"github.com/Eursukkul/booking-microservice/rental-service/internal/dto"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/service"
	"github.com/labstack/echo/v4"
)

type ListingHandler struct {
	svc service.BookingService
}

func NewListingHandler(svc service.BookingService) *ListingHandler {
	return &ListingHandler{svc: svc}
}

func (h *ListingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/listings/:id/availability", h.GetAvailability)
}

// GetAvailability is public: it only exposes which dates are taken.
func (h *ListingHandler) GetAvailability(c echo.Context) error {
	id, err := parseID(c, "listing")
	if err != nil {
		return err
	}

	ranges, err := h.svc.GetAvailability(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, dto.AvailabilityResponse{ListingID: id, BookedRanges: ranges})
}
