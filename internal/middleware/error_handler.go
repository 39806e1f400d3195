package middleware

import (
	"errors"
	"log"
	"net/http"

	"github.com/Eursukkul/booking-microservice/rental-service/internal/apperror"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/dto"
	"github.com/labstack/echo/v4"
)

// ErrorHandler renders every error as {"message": "..."}. Typed service
// errors keep their status; anything else is logged and hidden behind a 500.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)

	var he *echo.HTTPError
	var ae *apperror.Error
	switch {
	case errors.As(err, &he):
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	case errors.As(err, &ae):
		code = apperror.HTTPStatus(ae)
		msg = ae.Message
	}

	if code >= http.StatusInternalServerError {
		log.Printf("[HTTP] %s %s: %v", c.Request().Method, c.Request().RequestURI, err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, dto.ErrorResponse{Message: msg})
}
