package models

import "time"

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FormatDate renders t as a calendar date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DateRange is a closed interval of calendar dates rendered as YYYY-MM-DD.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// RangeOf returns the booked interval of b.
func RangeOf(b *Booking) DateRange {
	return DateRange{Start: FormatDate(b.StartDate), End: FormatDate(b.EndDate)}
}
