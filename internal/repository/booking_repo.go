package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Eursukkul/booking-microservice/rental-service/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrOverlap is returned by Create when the database exclusion constraint
// rejects a booking whose dates intersect a blocking booking.
var ErrOverlap = errors.New("booking dates overlap an existing booking")

const pgExclusionViolation = "23P01"

// Transition describes a guarded update. The row is only written when its
// current status equals FromStatus (if set) and its payment status is one of
// FromPayments (if set).
type Transition struct {
	FromStatus   models.BookingStatus
	FromPayments []models.PaymentStatus

	ToStatus   models.BookingStatus
	ToPayment  models.PaymentStatus
	PaymentRef *string
}

type BookingRepository interface {
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	Create(ctx context.Context, tx *gorm.DB, booking *models.Booking) error
	FindByID(ctx context.Context, id uint) (*models.Booking, error)
	FindByPaymentRef(ctx context.Context, ref string) (*models.Booking, error)
	FindOverlapping(ctx context.Context, tx *gorm.DB, listingID uint, start, end time.Time) (*models.Booking, error)
	FindBlocking(ctx context.Context, listingID uint) ([]models.Booking, error)
	FindByParticipant(ctx context.Context, userID string, offset, limit int) ([]models.Booking, int64, error)
	Apply(ctx context.Context, id uint, t Transition) (bool, error)
}

type bookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *bookingRepository) Create(ctx context.Context, tx *gorm.DB, booking *models.Booking) error {
	err := tx.WithContext(ctx).Create(booking).Error
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
		return ErrOverlap
	}
	return err
}

func (r *bookingRepository) FindByID(ctx context.Context, id uint) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).First(&booking, id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *bookingRepository) FindByPaymentRef(ctx context.Context, ref string) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).Where("payment_ref = ?", ref).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindOverlapping returns the earliest blocking booking on the listing whose
// closed date interval intersects [start, end]. Dates are bound as calendar
// dates so the comparison does not depend on the session time zone.
func (r *bookingRepository) FindOverlapping(ctx context.Context, tx *gorm.DB, listingID uint, start, end time.Time) (*models.Booking, error) {
	var booking models.Booking
	err := tx.WithContext(ctx).
		Where("listing_id = ? AND status IN ?", listingID, models.BlockingStatuses).
		Where("start_date <= CAST(? AS date) AND end_date >= CAST(? AS date)", models.FormatDate(end), models.FormatDate(start)).
		Order("start_date ASC").
		First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *bookingRepository) FindBlocking(ctx context.Context, listingID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("listing_id = ? AND status IN ?", listingID, models.BlockingStatuses).
		Order("start_date ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// FindByParticipant pages through bookings the user made or received on one of
// their listings, newest first.
func (r *bookingRepository) FindByParticipant(ctx context.Context, userID string, offset, limit int) ([]models.Booking, int64, error) {
	participant := func(db *gorm.DB) *gorm.DB {
		owned := r.db.Model(&models.Listing{}).Select("id").Where("owner_id = ?", userID)
		return db.Where("renter_id = ? OR listing_id IN (?)", userID, owned)
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Booking{}).Scopes(participant).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Scopes(participant).
		Preload("Listing").
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&bookings).Error
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// Apply performs a compare-and-set update and reports whether the row matched.
func (r *bookingRepository) Apply(ctx context.Context, id uint, t Transition) (bool, error) {
	updates := map[string]any{}
	if t.ToStatus != "" {
		updates["status"] = t.ToStatus
	}
	if t.ToPayment != "" {
		updates["payment_status"] = t.ToPayment
	}
	if t.PaymentRef != nil {
		updates["payment_ref"] = *t.PaymentRef
	}
	if len(updates) == 0 {
		return false, errors.New("transition has no updates")
	}
	updates["updated_at"] = time.Now()

	q := r.db.WithContext(ctx).Model(&models.Booking{}).Where("id = ?", id)
	if t.FromStatus != "" {
		q = q.Where("status = ?", t.FromStatus)
	}
	if len(t.FromPayments) > 0 {
		q = q.Where("payment_status IN ?", t.FromPayments)
	}

	result := q.Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("apply transition to booking %d: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}
