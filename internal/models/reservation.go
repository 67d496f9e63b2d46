package models

import "time"

// Reservation statuses mirror the provider's authoritative states.
const (
	ReservationConfirmed = "confirmed"
	ReservationModified  = "modified"
	ReservationCancelled = "cancelled"
	ReservationCheckedIn = "checked_in"
	ReservationNoShow    = "no_show"
)

// Reservation is the local record of a booking held against the external
// provider. Revalidation overwrites status, price and stay dates from the
// provider's state.
type Reservation struct {
	ID              int64     `json:"id"`
	ConfirmationID  string    `json:"confirmation_id"`
	DestinationID   int64     `json:"destination_id"`
	AccommodationID int64     `json:"accommodation_id"`
	GuestName       string    `json:"guest_name"`
	Adults          int64     `json:"adults"`
	CheckIn         time.Time `json:"check_in"`
	CheckOut        time.Time `json:"check_out"`
	TotalPrice      float64   `json:"total_price"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	LastRevalidated time.Time `json:"last_revalidated"`
}
