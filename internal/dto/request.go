package dto

import "github.com/shopspring/decimal"

type CreateBookingRequest struct {
	ListingID  uint             `json:"listing" validate:"required"`
	StartDate  string           `json:"start_date" validate:"required"`
	EndDate    string           `json:"end_date" validate:"required"`
	TotalPrice *decimal.Decimal `json:"total_price" validate:"required"`
}
