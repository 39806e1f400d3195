package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Eursukkul/booking-microservice/rental-service/internal/apperror"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/identity"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/models"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/notify"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/repository"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// MaxTotalPrice is the largest amount the numeric(10,2) column holds.
var MaxTotalPrice = decimal.RequireFromString("99999999.99")

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

// AvailabilityCache holds the blocking date ranges of each listing.
// Implementations swallow their own errors; a miss falls through to the database.
// Get reports the listing's version, which Set must be given back; Set is
// dropped when an Invalidate happened in between.
type AvailabilityCache interface {
	Get(ctx context.Context, listingID uint) ([]models.DateRange, int64, bool)
	Set(ctx context.Context, listingID uint, version int64, ranges []models.DateRange)
	Invalidate(ctx context.Context, listingID uint)
}

type CreateBookingInput struct {
	ListingID  uint
	StartDate  string
	EndDate    string
	TotalPrice *decimal.Decimal
}

// BookingPage is one page of a participant's bookings.
type BookingPage struct {
	Items    []models.Booking
	Total    int64
	Page     int
	PageSize int
}

type BookingService interface {
	CreateBooking(ctx context.Context, actor identity.Principal, in CreateBookingInput) (*models.Booking, error)
	AcceptBooking(ctx context.Context, actor identity.Principal, bookingID uint) (*models.Booking, error)
	DeclineBooking(ctx context.Context, actor identity.Principal, bookingID uint) (*models.Booking, error)
	CancelBooking(ctx context.Context, actor identity.Principal, bookingID uint) (*models.Booking, error)
	MarkRefunded(ctx context.Context, actor identity.Principal, bookingID uint) (*models.Booking, error)
	GetBooking(ctx context.Context, actor identity.Principal, bookingID uint) (*models.Booking, error)
	ListBookings(ctx context.Context, actor identity.Principal, page, pageSize int) (*BookingPage, error)
	GetAvailability(ctx context.Context, listingID uint) ([]models.DateRange, error)
}

type bookingService struct {
	bookingRepo repository.BookingRepository
	listingRepo repository.ListingRepository
	cache       AvailabilityCache
	notifier    notify.Dispatcher
}

// NewBookingService builds the lifecycle manager. cache and notifier may be nil.
func NewBookingService(bookingRepo repository.BookingRepository, listingRepo repository.ListingRepository, cache AvailabilityCache, notifier notify.Dispatcher) BookingService {
	return &bookingService{
		bookingRepo: bookingRepo,
		listingRepo: listingRepo,
		cache:       cache,
		notifier:    notifier,
	}
}

func (s *bookingService) CreateBooking(ctx context.Context, actor identity.Principal, in CreateBookingInput) (result *models.Booking, err error) {
	ctx, span := startSpan(ctx, "BookingService.CreateBooking", attribute.Int64("listing.id", int64(in.ListingID)))
	defer func() { endSpan(span, err) }()

	if !actor.Authenticated {
		return nil, apperror.Unauthenticated("authentication required")
	}
	start, end, err := parseInterval(in.StartDate, in.EndDate)
	if err != nil {
		return nil, err
	}
	if in.ListingID == 0 {
		return nil, apperror.Validation("listing is required")
	}
	if in.TotalPrice == nil {
		return nil, apperror.Validation("total_price is required")
	}
	if in.TotalPrice.IsNegative() {
		return nil, apperror.Validation("total_price must not be negative")
	}
	if in.TotalPrice.Round(2).GreaterThan(MaxTotalPrice) {
		return nil, apperror.Validation("total_price must not exceed " + MaxTotalPrice.StringFixed(2))
	}

	listing, err := s.findListing(ctx, in.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.OwnerID == actor.ID {
		return nil, apperror.Forbidden("you cannot book your own listing")
	}

	err = s.bookingRepo.Transaction(ctx, func(tx *gorm.DB) error {
		// Lock the listing row so concurrent requests for it check and insert one at a time.
		locked, err := s.listingRepo.FindByIDForUpdate(ctx, tx, in.ListingID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("listing not found")
			}
			return fmt.Errorf("lock listing %d: %w", in.ListingID, err)
		}
		if !locked.Active {
			return apperror.Validation("listing is not available for booking")
		}
		listing = locked

		clash, err := s.bookingRepo.FindOverlapping(ctx, tx, in.ListingID, start, end)
		if err == nil {
			return apperror.Conflict(fmt.Sprintf(
				"listing is already booked from %s to %s",
				models.FormatDate(clash.StartDate), models.FormatDate(clash.EndDate),
			))
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check overlapping bookings: %w", err)
		}

		booking := &models.Booking{
			ListingID:     in.ListingID,
			RenterID:      actor.ID,
			StartDate:     start,
			EndDate:       end,
			TotalPrice:    in.TotalPrice.Round(2),
			Status:        models.StatusPending,
			PaymentStatus: models.PaymentUnpaid,
		}
		if err := s.bookingRepo.Create(ctx, tx, booking); err != nil {
			if errors.Is(err, repository.ErrOverlap) {
				return apperror.Conflict("listing is already booked for the selected dates")
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		result = booking
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Listing = listing
	s.invalidate(ctx, in.ListingID)
	return result, nil
}

func (s *bookingService) AcceptBooking(ctx context.Context, actor identity.Principal, bookingID uint) (result *models.Booking, err error) {
	ctx, span := startSpan(ctx, "BookingService.AcceptBooking", attribute.Int64("booking.id", int64(bookingID)))
	defer func() { endSpan(span, err) }()

	return s.respond(ctx, actor, bookingID, models.StatusConfirmed, notify.KindBookingAccepted)
}

func (s *bookingService) DeclineBooking(ctx context.Context, actor identity.Principal, bookingID uint) (result *models.Booking, err error) {
	ctx, span := startSpan(ctx, "BookingService.DeclineBooking", attribute.Int64("booking.id", int64(bookingID)))
	defer func() { endSpan(span, err) }()

	return s.respond(ctx, actor, bookingID, models.StatusDeclined, notify.KindBookingDeclined)
}

// respond moves a pending booking to the owner's decision.
func (s *bookingService) respond(ctx context.Context, actor identity.Principal, bookingID uint, to models.BookingStatus, kind notify.Kind) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	verb := "accept"
	if to == models.StatusDeclined {
		verb = "decline"
	}
	if booking.Listing.OwnerID != actor.ID {
		return nil, apperror.Forbidden(fmt.Sprintf("only the listing owner can %s a booking", verb))
	}
	if booking.Status != models.StatusPending {
		return nil, apperror.InvalidState(fmt.Sprintf("cannot %s a %s booking", verb, statusWord(booking.Status)))
	}

	if err := s.apply(ctx, booking, repository.Transition{
		FromStatus: models.StatusPending,
		ToStatus:   to,
	}); err != nil {
		return nil, err
	}
	booking.Status = to

	s.invalidate(ctx, booking.ListingID)
	s.notify(ctx, booking.RenterID, kind, booking)
	return booking, nil
}

func (s *bookingService) CancelBooking(ctx context.Context, actor identity.Principal, bookingID uint) (result *models.Booking, err error) {
	ctx, span := startSpan(ctx, "BookingService.CancelBooking", attribute.Int64("booking.id", int64(bookingID)))
	defer func() { endSpan(span, err) }()

	booking, err := s.loadBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	isOwner := booking.Listing.OwnerID == actor.ID
	isRenter := booking.RenterID == actor.ID
	if !isOwner && !isRenter {
		return nil, apperror.Forbidden("only the renter or the listing owner can cancel a booking")
	}
	if booking.Status.Terminal() {
		return nil, apperror.InvalidState(fmt.Sprintf("cannot cancel a %s booking", statusWord(booking.Status)))
	}

	t := repository.Transition{
		FromStatus: booking.Status,
		ToStatus:   models.StatusCancelled,
	}
	if !isOwner && booking.Status == models.StatusConfirmed {
		if booking.PaymentStatus == models.PaymentPaid {
			return nil, apperror.InvalidState("a paid booking cannot be cancelled by the renter; ask the owner for a refund")
		}
		t.FromPayments = []models.PaymentStatus{models.PaymentUnpaid, models.PaymentRefunded}
	}

	if err := s.apply(ctx, booking, t); err != nil {
		return nil, err
	}
	booking.Status = models.StatusCancelled

	s.invalidate(ctx, booking.ListingID)
	other := booking.Listing.OwnerID
	if isOwner {
		other = booking.RenterID
	}
	s.notify(ctx, other, notify.KindBookingCancelled, booking)
	return booking, nil
}

func (s *bookingService) MarkRefunded(ctx context.Context, actor identity.Principal, bookingID uint) (result *models.Booking, err error) {
	ctx, span := startSpan(ctx, "BookingService.MarkRefunded", attribute.Int64("booking.id", int64(bookingID)))
	defer func() { endSpan(span, err) }()

	booking, err := s.loadBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Listing.OwnerID != actor.ID {
		return nil, apperror.Forbidden("only the listing owner can mark a booking refunded")
	}
	if booking.PaymentStatus != models.PaymentPaid {
		return nil, apperror.InvalidState(fmt.Sprintf("cannot refund a booking whose payment is %s", statusWord(booking.PaymentStatus)))
	}

	if err := s.apply(ctx, booking, repository.Transition{
		FromPayments: []models.PaymentStatus{models.PaymentPaid},
		ToPayment:    models.PaymentRefunded,
	}); err != nil {
		return nil, err
	}
	booking.PaymentStatus = models.PaymentRefunded

	s.notify(ctx, booking.RenterID, notify.KindBookingRefunded, booking)
	return booking, nil
}

func (s *bookingService) GetBooking(ctx context.Context, actor identity.Principal, bookingID uint) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.RenterID != actor.ID && booking.Listing.OwnerID != actor.ID {
		return nil, apperror.Forbidden("you are not a participant of this booking")
	}
	return booking, nil
}

func (s *bookingService) ListBookings(ctx context.Context, actor identity.Principal, page, pageSize int) (*BookingPage, error) {
	if !actor.Authenticated {
		return nil, apperror.Unauthenticated("authentication required")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	items, total, err := s.bookingRepo.FindByParticipant(ctx, actor.ID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return &BookingPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *bookingService) GetAvailability(ctx context.Context, listingID uint) (ranges []models.DateRange, err error) {
	ctx, span := startSpan(ctx, "BookingService.GetAvailability", attribute.Int64("listing.id", int64(listingID)))
	defer func() { endSpan(span, err) }()

	var version int64
	if s.cache != nil {
		cached, v, ok := s.cache.Get(ctx, listingID)
		if ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
		version = v
	}

	if _, err := s.findListing(ctx, listingID); err != nil {
		return nil, err
	}
	bookings, err := s.bookingRepo.FindBlocking(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("load blocking bookings: %w", err)
	}

	ranges = make([]models.DateRange, 0, len(bookings))
	for i := range bookings {
		ranges = append(ranges, models.RangeOf(&bookings[i]))
	}
	if s.cache != nil {
		s.cache.Set(ctx, listingID, version, ranges)
	}
	return ranges, nil
}

func (s *bookingService) findListing(ctx context.Context, id uint) (*models.Listing, error) {
	listing, err := s.listingRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("listing not found")
		}
		return nil, fmt.Errorf("load listing %d: %w", id, err)
	}
	return listing, nil
}

// loadBooking fetches a booking together with its listing.
func (s *bookingService) loadBooking(ctx context.Context, actor identity.Principal, id uint) (*models.Booking, error) {
	return loadBooking(ctx, s.bookingRepo, s.listingRepo, actor, id)
}

func (s *bookingService) apply(ctx context.Context, booking *models.Booking, t repository.Transition) error {
	return applyTransition(ctx, s.bookingRepo, booking, t)
}

func (s *bookingService) invalidate(ctx context.Context, listingID uint) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, listingID)
	}
}

func (s *bookingService) notify(ctx context.Context, userID string, kind notify.Kind, booking *models.Booking) {
	dispatch(ctx, s.notifier, userID, kind, booking)
}

func loadBooking(ctx context.Context, bookings repository.BookingRepository, listings repository.ListingRepository, actor identity.Principal, id uint) (*models.Booking, error) {
	if !actor.Authenticated {
		return nil, apperror.Unauthenticated("authentication required")
	}
	booking, err := bookings.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("booking not found")
		}
		return nil, fmt.Errorf("load booking %d: %w", id, err)
	}
	listing, err := listings.FindByID(ctx, booking.ListingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("listing not found")
		}
		return nil, fmt.Errorf("load listing %d: %w", booking.ListingID, err)
	}
	booking.Listing = listing
	return booking, nil
}

// applyTransition writes t and turns a guard miss into a StateError.
func applyTransition(ctx context.Context, bookings repository.BookingRepository, booking *models.Booking, t repository.Transition) error {
	ok, err := bookings.Apply(ctx, booking.ID, t)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.InvalidState("booking was modified concurrently; reload it and try again")
	}
	return nil
}

// dispatch sends a notification and logs, but never returns, a delivery failure.
func dispatch(ctx context.Context, notifier notify.Dispatcher, userID string, kind notify.Kind, booking *models.Booking) {
	if notifier == nil || userID == "" {
		return
	}
	if err := notifier.Notify(ctx, userID, kind, Payload(booking)); err != nil {
		log.Printf("[BookingService] notify %s about booking %d: %v", userID, booking.ID, err)
	}
}

// Payload is the notification body describing booking.
func Payload(booking *models.Booking) map[string]any {
	payload := map[string]any{
		"booking_id":     booking.ID,
		"listing_id":     booking.ListingID,
		"start_date":     models.FormatDate(booking.StartDate),
		"end_date":       models.FormatDate(booking.EndDate),
		"status":         booking.Status,
		"payment_status": booking.PaymentStatus,
	}
	if booking.Listing != nil {
		payload["listing_title"] = booking.Listing.Title
	}
	return payload
}

func parseInterval(startDate, endDate string) (start, end time.Time, err error) {
	start, err = models.ParseDate(strings.TrimSpace(startDate))
	if err != nil {
		return start, end, apperror.Validation("start_date must be a date in YYYY-MM-DD format")
	}
	end, err = models.ParseDate(strings.TrimSpace(endDate))
	if err != nil {
		return start, end, apperror.Validation("end_date must be a date in YYYY-MM-DD format")
	}
	if end.Before(start) {
		return start, end, apperror.Validation("end_date must be on or after start_date")
	}
	return start, end, nil
}

func statusWord[S ~string](s S) string {
	return strings.ToLower(string(s))
}
