package dto

import (
	"time"

	"github.com/Eursukkul/booking-microservice/rental-service/internal/models"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/service"
)

type ListingSummary struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	OwnerID     string `json:"owner_id"`
	PricePerDay string `json:"price_per_day"`
}

type BookingResponse struct {
	ID            uint                 `json:"id"`
	ListingID     uint                 `json:"listing_id"`
	Listing       *ListingSummary      `json:"listing,omitempty"`
	RenterID      string               `json:"renter_id"`
	StartDate     string               `json:"start_date"`
	EndDate       string               `json:"end_date"`
	TotalPrice    string               `json:"total_price"`
	Status        models.BookingStatus `json:"status"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	CreatedAt     time.Time            `json:"created_at"`
}

type BookingListResponse struct {
	Results  []BookingResponse `json:"results"`
	Count    int64             `json:"count"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

type AvailabilityResponse struct {
	ListingID    uint               `json:"listing_id"`
	BookedRanges []models.DateRange `json:"booked_ranges"`
}

type PaymentSessionResponse struct {
	BookingID   uint   `json:"booking_id"`
	ExternalID  string `json:"external_id"`
	RedirectURL string `json:"redirect_url"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

func ToBookingResponse(b *models.Booking) BookingResponse {
	resp := BookingResponse{
		ID:            b.ID,
		ListingID:     b.ListingID,
		RenterID:      b.RenterID,
		StartDate:     models.FormatDate(b.StartDate),
		EndDate:       models.FormatDate(b.EndDate),
		TotalPrice:    b.TotalPrice.StringFixed(2),
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		CreatedAt:     b.CreatedAt,
	}
	if b.Listing != nil {
		resp.Listing = &ListingSummary{
			ID:          b.Listing.ID,
			Title:       b.Listing.Title,
			OwnerID:     b.Listing.OwnerID,
			PricePerDay: b.Listing.PricePerDay.StringFixed(2),
		}
	}
	return resp
}

func ToBookingListResponse(page *service.BookingPage) BookingListResponse {
	results := make([]BookingResponse, len(page.Items))
	for i := range page.Items {
		results[i] = ToBookingResponse(&page.Items[i])
	}
	return BookingListResponse{
		Results:  results,
		Count:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
}

func ToPaymentSessionResponse(s *service.PaymentSession) PaymentSessionResponse {
	return PaymentSessionResponse{
		BookingID:   s.BookingID,
		ExternalID:  s.ExternalID,
		RedirectURL: s.RedirectURL,
	}
}
