package models

import (
	"fmt"
	"time"
)

// DateFormat is the calendar-day format used in cache keys and payloads.
const DateFormat = "2006-01-02"

// PriceQuote is one priced rate for an accommodation on a single day.
// A quote with Quantity == 0 means the rate exists but is sold out.
type PriceQuote struct {
	RateCode      string  `json:"rate_code"`
	Description   string  `json:"description,omitempty"`
	TotalPrice    float64 `json:"total_price"`
	Quantity      int64   `json:"quantity"`
	MinStayNights int64   `json:"min_stay_nights,omitempty"`
	MaxStayNights int64   `json:"max_stay_nights,omitempty"`
	Cheapest      bool    `json:"cheapest,omitempty"`
	MostExpensive bool    `json:"most_expensive,omitempty"`
}

// AccommodationAvailability is the cached availability of one accommodation
// on one calendar day. No quotes means the accommodation is unavailable
// that day.
type AccommodationAvailability struct {
	AccommodationID int64        `json:"accommodation_id"`
	Name            string       `json:"name,omitempty"`
	MaxOccupants    int64        `json:"max_occupants"`
	MaxSleeps       int64        `json:"max_sleeps"`
	Quotes          []PriceQuote `json:"quotes"`
}

// AvailabilityCacheKey builds the per-day accommodation cache key.
func AvailabilityCacheKey(companyID, destinationID int64, day time.Time) string {
	return fmt.Sprintf("availability:%d:%d:%s", companyID, destinationID, day.Format(DateFormat))
}

// PackageCacheKey builds the per-day add-on package cache key.
func PackageCacheKey(destinationID int64, day time.Time) string {
	return fmt.Sprintf("package:%d:%s", destinationID, day.Format(DateFormat))
}

// ReservationQueueKey builds the per-destination revalidation queue key.
func ReservationQueueKey(destinationID int64) string {
	return fmt.Sprintf("reservationRefresh:%d", destinationID)
}

// DaysBetween expands [start, end) into a list of calendar days.
// Returns nil when start is not strictly before end.
func DaysBetween(start, end time.Time) []time.Time {
	if !start.Before(end) {
		return nil
	}
	var days []time.Time
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
