package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing is the local replica of a listing owned by the listing service.
// Only the fields the booking rules need are kept.
type Listing struct {
	ID          uint            `gorm:"primaryKey;autoIncrement:false" json:"id"`
	OwnerID     string          `gorm:"type:varchar(64);not null;index" json:"owner_id"`
	Title       string          `gorm:"type:varchar(200)" json:"title"`
	PricePerDay decimal.Decimal `gorm:"type:numeric(8,2);not null" json:"price_per_day"`
	Active      bool            `gorm:"not null" json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
