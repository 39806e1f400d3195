package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/Eursukkul/booking-microservice/rental-service/internal/apperror"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/identity"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/models"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/notify"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/payment"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// CallbackPath is where the gateway posts payment results.
const CallbackPath = "/api/v1/payments/callback"

// PaymentGateway creates hosted checkout sessions.
type PaymentGateway interface {
	CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error)
}

type PaymentSettings struct {
	Currency       string
	FrontendAppURL string
	PublicBaseURL  string
}

type PaymentSession struct {
	BookingID   uint
	ExternalID  string
	RedirectURL string
}

type PaymentService interface {
	CreatePaymentSession(ctx context.Context, actor identity.Principal, bookingID uint) (*PaymentSession, error)
	HandlePaymentResult(ctx context.Context, externalID string, succeeded bool) error
}

type paymentService struct {
	bookingRepo repository.BookingRepository
	listingRepo repository.ListingRepository
	gateway     PaymentGateway
	notifier    notify.Dispatcher
	settings    PaymentSettings
}

func NewPaymentService(bookingRepo repository.BookingRepository, listingRepo repository.ListingRepository, gateway PaymentGateway, notifier notify.Dispatcher, settings PaymentSettings) PaymentService {
	return &paymentService{
		bookingRepo: bookingRepo,
		listingRepo: listingRepo,
		gateway:     gateway,
		notifier:    notifier,
		settings:    settings,
	}
}

// unpaid are the payment states a confirmed booking may be charged from.
var unpaid = []models.PaymentStatus{models.PaymentUnpaid, models.PaymentRefunded}

func (s *paymentService) CreatePaymentSession(ctx context.Context, actor identity.Principal, bookingID uint) (result *PaymentSession, err error) {
	ctx, span := startSpan(ctx, "PaymentService.CreatePaymentSession", attribute.Int64("booking.id", int64(bookingID)))
	defer func() { endSpan(span, err) }()

	booking, err := loadBooking(ctx, s.bookingRepo, s.listingRepo, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.RenterID != actor.ID {
		return nil, apperror.Forbidden("only the renter can pay for a booking")
	}
	if booking.Status != models.StatusConfirmed {
		return nil, apperror.InvalidState(fmt.Sprintf("cannot pay for a %s booking", statusWord(booking.Status)))
	}
	if booking.PaymentStatus == models.PaymentPaid {
		return nil, apperror.InvalidState("booking is already paid")
	}

	session, err := s.gateway.CreateSession(ctx, s.sessionRequest(booking))
	if err != nil {
		if errors.Is(err, payment.ErrNotConfigured) {
			return nil, apperror.Wrap(apperror.KindGateway, "payments are not configured", err)
		}
		return nil, apperror.Wrap(apperror.KindGateway, "payment gateway unavailable, please try again", err)
	}

	ref := session.ExternalID
	if err := applyTransition(ctx, s.bookingRepo, booking, repository.Transition{
		FromStatus:   models.StatusConfirmed,
		FromPayments: unpaid,
		PaymentRef:   &ref,
	}); err != nil {
		return nil, err
	}

	return &PaymentSession{
		BookingID:   booking.ID,
		ExternalID:  session.ExternalID,
		RedirectURL: session.RedirectURL,
	}, nil
}

func (s *paymentService) sessionRequest(booking *models.Booking) payment.SessionRequest {
	frontend := strings.TrimRight(s.settings.FrontendAppURL, "/")
	id := strconv.FormatUint(uint64(booking.ID), 10)

	return payment.SessionRequest{
		Amount:   payment.MinorUnits(booking.TotalPrice),
		Currency: s.settings.Currency,
		Description: fmt.Sprintf("Rental: %s (%s to %s)",
			booking.Listing.Title, models.FormatDate(booking.StartDate), models.FormatDate(booking.EndDate)),
		CallbackURL: strings.TrimRight(s.settings.PublicBaseURL, "/") + CallbackPath,
		SuccessURL:  frontend + "/bookings?paid=1&booking_id=" + id,
		BackURL:     frontend + "/bookings?cancelled=1&booking_id=" + id,
		Metadata:    map[string]string{"booking_id": id},
	}
}

// HandlePaymentResult applies a gateway callback. The callback is untrusted:
// anything that does not match a booking awaiting payment is logged and
// acknowledged. Only persistence failures are returned.
func (s *paymentService) HandlePaymentResult(ctx context.Context, externalID string, succeeded bool) (err error) {
	ctx, span := startSpan(ctx, "PaymentService.HandlePaymentResult", attribute.Bool("payment.succeeded", succeeded))
	defer func() { endSpan(span, err) }()

	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		log.Printf("[PaymentCallback] ignoring callback without a reference")
		return nil
	}

	booking, err := s.bookingRepo.FindByPaymentRef(ctx, externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[PaymentCallback] ignoring unknown reference %q", externalID)
			return nil
		}
		return fmt.Errorf("find booking by payment reference: %w", err)
	}
	if !succeeded {
		log.Printf("[PaymentCallback] payment %q for booking %d did not succeed", externalID, booking.ID)
		return nil
	}
	if booking.PaymentStatus == models.PaymentPaid {
		return nil
	}

	ok, err := s.bookingRepo.Apply(ctx, booking.ID, repository.Transition{
		FromStatus:   models.StatusConfirmed,
		FromPayments: unpaid,
		ToPayment:    models.PaymentPaid,
	})
	if err != nil {
		return err
	}
	if !ok {
		log.Printf("[PaymentCallback] booking %d is %s/%s, not marking paid", booking.ID, booking.Status, booking.PaymentStatus)
		return nil
	}
	booking.PaymentStatus = models.PaymentPaid

	if listing, err := s.listingRepo.FindByID(ctx, booking.ListingID); err == nil {
		booking.Listing = listing
		dispatch(ctx, s.notifier, listing.OwnerID, notify.KindBookingPaid, booking)
	} else {
		log.Printf("[PaymentCallback] load listing %d for booking %d: %v", booking.ListingID, booking.ID, err)
	}
	return nil
}
