package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	StatusPending   BookingStatus = "PENDING"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusDeclined  BookingStatus = "DECLINED"
	StatusCancelled BookingStatus = "CANCELLED"
)

// BlockingStatuses are the statuses whose bookings hold a listing's dates.
var BlockingStatuses = []BookingStatus{StatusPending, StatusConfirmed}

// Blocks reports whether a booking in this status makes its dates unavailable.
func (s BookingStatus) Blocks() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal reports whether no further transition is possible from s.
func (s BookingStatus) Terminal() bool {
	return s == StatusDeclined || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

type Booking struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	ListingID     uint            `gorm:"not null;index:idx_bookings_listing_status,priority:1" json:"listing_id"`
	RenterID      string          `gorm:"type:varchar(64);not null;index" json:"renter_id"`
	StartDate     time.Time       `gorm:"type:date;not null" json:"start_date"`
	EndDate       time.Time       `gorm:"type:date;not null" json:"end_date"`
	TotalPrice    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"total_price"`
	Status        BookingStatus   `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_bookings_listing_status,priority:2" json:"status"`
	PaymentStatus PaymentStatus   `gorm:"type:varchar(20);not null;default:'UNPAID'" json:"payment_status"`
	PaymentRef    *string         `gorm:"type:varchar(128)" json:"payment_ref,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	Listing *Listing `gorm:"foreignKey:ListingID" json:"listing,omitempty"`
}

// Overlaps reports whether the booking's dates intersect the closed interval
// [start, end]. Touching endpoints count as an overlap.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return !b.StartDate.After(end) && !b.EndDate.Before(start)
}
