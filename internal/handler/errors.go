package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Eursukkul/booking-microservice/rental-service/internal/apperror"
	"github.com/labstack/echo/v4"
)

// httpError converts a service error into the HTTP error echo renders.
// Untyped errors become a 500 that keeps the cause for logging only.
func httpError(err error) error {
	var ae *apperror.Error
	if errors.As(err, &ae) {
		return echo.NewHTTPError(apperror.HTTPStatus(ae), ae.Message).SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

func parseID(c echo.Context, what string) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+what+" id")
	}
	return uint(id), nil
}
