package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Eursukkul/booking-microservice/rental-service/internal/apperror"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/dto"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/identity"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/middleware"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/models"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/notify"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock BookingService ---

type mockBookingService struct {
	createFn       func(ctx context.Context, actor identity.Principal, in service.CreateBookingInput) (*models.Booking, error)
	acceptFn       func(ctx context.Context, actor identity.Principal, id uint) (*models.Booking, error)
	declineFn      func(ctx context.Context, actor identity.Principal, id uint) (*models.Booking, error)
	cancelFn       func(ctx context.Context, actor identity.Principal, id uint) (*models.Booking, error)
	refundFn       func(ctx context.Context, actor identity.Principal, id uint) (*models.Booking, error)
	getFn          func(ctx context.Context, actor identity.Principal, id uint) (*models.Booking, error)
	listFn         func(ctx context.Context, actor identity.Principal, page, pageSize int) (*service.BookingPage, error)
	availabilityFn func(ctx context.Context, listingID uint) ([]models.DateRange, error)
}

func (m *mockBookingService) CreateBooking(ctx context.Context, actor identity.Principal, in service.CreateBookingInput) (*models.Booking, error) {
	return m.createFn(ctx, actor, in)
}
func (m *mockBookingService) AcceptBooking(ctx context.Context, actor identity.Principal, id uint) (*models.Booking, error) {
	return m.acceptFn(ctx, actor, id)
}
func (m *mockBookingService) DeclineBooking(ctx context.Context, actor identity.Principal, id uint) (*models.Booking, error) {
	return m.declineFn(ctx, actor, id)
}
func (m *mockBookingService) CancelBooking(ctx context.Context, actor identity.Principal, id uint) (*models.Booking, error) {
	return m.cancelFn(ctx, actor, id)
}
func (m *mockBookingService) MarkRefunded(ctx context.Context, actor identity.Principal, id uint) (*models.Booking, error) {
	return m.refundFn(ctx, actor, id)
}
func (m *mockBookingService) GetBooking(ctx context.Context, actor identity.Principal, id uint) (*models.Booking, error) {
	return m.getFn(ctx, actor, id)
}
func (m *mockBookingService) ListBookings(ctx context.Context, actor identity.Principal, page, pageSize int) (*service.BookingPage, error) {
	return m.listFn(ctx, actor, page, pageSize)
}
func (m *mockBookingService) GetAvailability(ctx context.Context, listingID uint) ([]models.DateRange, error) {
	return m.availabilityFn(ctx, listingID)
}

// --- Mock Dispatcher ---

type mockDispatcher struct {
	users []string
	kinds []notify.Kind
	err   error
}

func (m *mockDispatcher) Notify(ctx context.Context, userID string, kind notify.Kind, payload map[string]any) error {
	m.users = append(m.users, userID)
	m.kinds = append(m.kinds, kind)
	return m.err
}

// --- Helpers ---

func newContext(method, target, body string, p identity.Principal) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = middleware.NewValidator()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req = req.WithContext(identity.WithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func sampleBooking(id uint, status models.BookingStatus) *models.Booking {
	return &models.Booking{
		ID:            id,
		ListingID:     7,
		RenterID:      "renter-1",
		StartDate:     time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
		TotalPrice:    decimal.RequireFromString("450"),
		Status:        status,
		PaymentStatus: models.PaymentUnpaid,
		CreatedAt:     time.Now(),
		Listing: &models.Listing{
			ID:          7,
			OwnerID:     "owner-1",
			Title:       "Camping tent",
			PricePerDay: decimal.RequireFromString("90"),
			Active:      true,
		},
	}
}

func assertHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he), "expected *echo.HTTPError, got %v", err)
	assert.Equal(t, code, he.Code)
}

// --- Tests ---

func TestCreateBooking_Handler_Success(t *testing.T) {
	var got service.CreateBookingInput
	var gotActor identity.Principal
	svc := &mockBookingService{
		createFn: func(ctx context.Context, actor identity.Principal, in service.CreateBookingInput) (*models.Booking, error) {
			got, gotActor = in, actor
			return sampleBooking(1, models.StatusPending), nil
		},
	}
	notifier := &mockDispatcher{}

	body := `{"listing":7,"start_date":"2024-06-10","end_date":"2024-06-15","total_price":"450.00"}`
	c, rec := newContext(http.MethodPost, "/api/v1/bookings", body, identity.User("renter-1"))

	err := NewBookingHandler(svc, notifier).CreateBooking(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, uint(7), got.ListingID)
	assert.Equal(t, "2024-06-10", got.StartDate)
	assert.True(t, decimal.RequireFromString("450").Equal(*got.TotalPrice))
	assert.Equal(t, "renter-1", gotActor.ID)

	var resp dto.BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint(1), resp.ID)
	assert.Equal(t, models.StatusPending, resp.Status)
	assert.Equal(t, "450.00", resp.TotalPrice)
	assert.Equal(t, "2024-06-15", resp.EndDate)
	assert.Equal(t, "Camping tent", resp.Listing.Title)

	assert.Equal(t, []string{"owner-1"}, notifier.users)
	assert.Equal(t, []notify.Kind{notify.KindBookingRequested}, notifier.kinds)
}

func TestCreateBooking_Handler_NotifierFailure(t *testing.T) {
	svc := &mockBookingService{
		createFn: func(ctx context.Context, actor identity.Principal, in service.CreateBookingInput) (*models.Booking, error) {
			return sampleBooking(1, models.StatusPending), nil
		},
	}
	notifier := &mockDispatcher{err: errors.New("broker down")}

	body := `{"listing":7,"start_date":"2024-06-10","end_date":"2024-06-15","total_price":450}`
	c, rec := newContext(http.MethodPost, "/api/v1/bookings", body, identity.User("renter-1"))

	err := NewBookingHandler(svc, notifier).CreateBooking(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateBooking_Handler_MissingFields(t *testing.T) {
	c, _ := newContext(http.MethodPost, "/api/v1/bookings", `{"start_date":"2024-06-10"}`, identity.User("renter-1"))

	err := NewBookingHandler(&mockBookingService{}, nil).CreateBooking(c)

	assertHTTPError(t, err, http.StatusBadRequest)
	assert.Contains(t, err.(*echo.HTTPError).Message, "listing is required")
}

func TestCreateBooking_Handler_InvalidBody(t *testing.T) {
	c, _ := newContext(http.MethodPost, "/api/v1/bookings", `{"listing":"abc"`, identity.User("renter-1"))

	err := NewBookingHandler(&mockBookingService{}, nil).CreateBooking(c)
	assertHTTPError(t, err, http.StatusBadRequest)
}

func TestCreateBooking_Handler_ServiceErrors(t *testing.T) {
	cases := map[string]struct {
		err  error
		code int
	}{
		"validation": {apperror.Validation("end_date must be on or after start_date"), http.StatusBadRequest},
		"conflict":   {apperror.Conflict("listing is already booked"), http.StatusConflict},
		"own":        {apperror.Forbidden("you cannot book your own listing"), http.StatusForbidden},
		"missing":    {apperror.NotFound("listing not found"), http.StatusNotFound},
		"internal":   {errors.New("db connection failed"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &mockBookingService{
				createFn: func(ctx context.Context, actor identity.Principal, in service.CreateBookingInput) (*models.Booking, error) {
					return nil, tc.err
				},
			}
			notifier := &mockDispatcher{}
			body := `{"listing":7,"start_date":"2024-06-15","end_date":"2024-06-10","total_price":"1"}`
			c, _ := newContext(http.MethodPost, "/api/v1/bookings", body, identity.User("renter-1"))

			err := NewBookingHandler(svc, notifier).CreateBooking(c)

			assertHTTPError(t, err, tc.code)
			assert.Empty(t, notifier.users)
		})
	}
}

func TestCreateBooking_Handler_InternalErrorIsHidden(t *testing.T) {
	svc := &mockBookingService{
		createFn: func(ctx context.Context, actor identity.Principal, in service.CreateBookingInput) (*models.Booking, error) {
			return nil, errors.New("pq: password authentication failed")
		},
	}
	body := `{"listing":7,"start_date":"2024-06-10","end_date":"2024-06-15","total_price":"1"}`
	c, _ := newContext(http.MethodPost, "/api/v1/bookings", body, identity.User("renter-1"))

	err := NewBookingHandler(svc, nil).CreateBooking(c)

	assertHTTPError(t, err, http.StatusInternalServerError)
	assert.Equal(t, "internal server error", err.(*echo.HTTPError).Message)
}

func TestTransitions_Handler(t *testing.T) {
	type call struct {
		path   string
		invoke func(h *BookingHandler, c echo.Context) error
		status models.BookingStatus
	}
	calls := map[string]call{
		"accept":  {"/api/v1/bookings/3/accept", (*BookingHandler).AcceptBooking, models.StatusConfirmed},
		"decline": {"/api/v1/bookings/3/decline", (*BookingHandler).DeclineBooking, models.StatusDeclined},
		"cancel":  {"/api/v1/bookings/3/cancel", (*BookingHandler).CancelBooking, models.StatusCancelled},
		"refund":  {"/api/v1/bookings/3/refund", (*BookingHandler).MarkRefunded, models.StatusConfirmed},
		"get":     {"/api/v1/bookings/3", (*BookingHandler).GetBooking, models.StatusPending},
	}

	var gotID uint
	op := func(status models.BookingStatus) func(ctx context.Context, actor identity.Principal, id uint) (*models.Booking, error) {
		return func(ctx context.Context, actor identity.Principal, id uint) (*models.Booking, error) {
			gotID = id
			return sampleBooking(id, status), nil
		}
	}
	svc := &mockBookingService{
		acceptFn:  op(models.StatusConfirmed),
		declineFn: op(models.StatusDeclined),
		cancelFn:  op(models.StatusCancelled),
		refundFn:  op(models.StatusConfirmed),
		getFn:     op(models.StatusPending),
	}
	h := NewBookingHandler(svc, nil)

	for name, tc := range calls {
		t.Run(name, func(t *testing.T) {
			gotID = 0
			c, rec := newContext(http.MethodPost, tc.path, "", identity.User("owner-1"))
			c.SetParamNames("id")
			c.SetParamValues("3")

			require.NoError(t, tc.invoke(h, c))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, uint(3), gotID)

			var resp dto.BookingResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.status, resp.Status)
		})
	}
}

func TestCancelBooking_Handler_StateError(t *testing.T) {
	svc := &mockBookingService{
		cancelFn: func(ctx context.Context, actor identity.Principal, id uint) (*models.Booking, error) {
			return nil, apperror.InvalidState("cannot cancel a declined booking")
		},
	}
	c, _ := newContext(http.MethodPost, "/api/v1/bookings/3/cancel", "", identity.User("renter-1"))
	c.SetParamNames("id")
	c.SetParamValues("3")

	err := NewBookingHandler(svc, nil).CancelBooking(c)

	assertHTTPError(t, err, http.StatusConflict)
	assert.Equal(t, "cannot cancel a declined booking", err.(*echo.HTTPError).Message)
}

func TestAcceptBooking_Handler_Forbidden(t *testing.T) {
	svc := &mockBookingService{
		acceptFn: func(ctx context.Context, actor identity.Principal, id uint) (*models.Booking, error) {
			return nil, apperror.Forbidden("only the listing owner can accept a booking")
		},
	}
	c, _ := newContext(http.MethodPost, "/api/v1/bookings/3/accept", "", identity.User("renter-1"))
	c.SetParamNames("id")
	c.SetParamValues("3")

	err := NewBookingHandler(svc, nil).AcceptBooking(c)
	assertHTTPError(t, err, http.StatusForbidden)
}

func TestGetBooking_Handler_InvalidID(t *testing.T) {
	for _, id := range []string{"abc", "0", "-1"} {
		c, _ := newContext(http.MethodGet, "/api/v1/bookings/"+id, "", identity.User("renter-1"))
		c.SetParamNames("id")
		c.SetParamValues(id)

		err := NewBookingHandler(&mockBookingService{}, nil).GetBooking(c)
		assertHTTPError(t, err, http.StatusBadRequest)
	}
}

func TestGetBooking_Handler_NotFound(t *testing.T) {
	svc := &mockBookingService{
		getFn: func(ctx context.Context, actor identity.Principal, id uint) (*models.Booking, error) {
			return nil, apperror.NotFound("booking not found")
		},
	}
	c, _ := newContext(http.MethodGet, "/api/v1/bookings/999", "", identity.User("renter-1"))
	c.SetParamNames("id")
	c.SetParamValues("999")

	err := NewBookingHandler(svc, nil).GetBooking(c)
	assertHTTPError(t, err, http.StatusNotFound)
}

func TestListBookings_Handler_Success(t *testing.T) {
	var gotPage, gotSize int
	svc := &mockBookingService{
		listFn: func(ctx context.Context, actor identity.Principal, page, pageSize int) (*service.BookingPage, error) {
			gotPage, gotSize = page, pageSize
			return &service.BookingPage{
				Items:    []models.Booking{*sampleBooking(2, models.StatusPending), *sampleBooking(1, models.StatusCancelled)},
				Total:    12,
				Page:     2,
				PageSize: 10,
			}, nil
		},
	}
	c, rec := newContext(http.MethodGet, "/api/v1/bookings?page=2&page_size=10", "", identity.User("renter-1"))

	err := NewBookingHandler(svc, nil).ListBookings(c)

	require.NoError(t, err)
	assert.Equal(t, 2, gotPage)
	assert.Equal(t, 10, gotSize)

	var resp dto.BookingListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(12), resp.Count)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, uint(2), resp.Results[0].ID)
}

func TestRoutes_RequireAuthentication(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler
	NewBookingHandler(&mockBookingService{}, nil).RegisterRoutes(e)

	for _, r := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/bookings"},
		{http.MethodGet, "/api/v1/bookings"},
		{http.MethodGet, "/api/v1/bookings/1"},
		{http.MethodPost, "/api/v1/bookings/1/accept"},
		{http.MethodPost, "/api/v1/bookings/1/decline"},
		{http.MethodPost, "/api/v1/bookings/1/cancel"},
		{http.MethodPost, "/api/v1/bookings/1/refund"},
	} {
		req := httptest.NewRequest(r.method, r.path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", r.method, r.path)
	}
}
