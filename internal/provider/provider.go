package provider

import (
	"context"
	"errors"
	"time"

	"innsync/internal/models"
)

// ErrUnsupported is returned by providers that do not implement an operation.
var ErrUnsupported = errors.New("operation not supported by provider")

// ErrNotReservable means the provider refuses the destination or range
// outright. Treated as recoverable by the sync worker: log, touch, move on.
var ErrNotReservable = errors.New("destination not reservable")

// DayAvailability is one calendar day's priced inventory as reported by the
// provider. Quote min/max stay and flags are not set by providers; the
// fetcher derives flags from the whole response.
type DayAvailability struct {
	Day            time.Time
	Accommodations []models.AccommodationAvailability
}

// DayPackages is one calendar day's add-on package offers.
type DayPackages struct {
	Day      time.Time
	Packages []models.AvailablePackage
}

// ReservationState is the provider's authoritative view of one booking.
type ReservationState struct {
	ConfirmationID  string    `json:"confirmation_id"`
	AccommodationID int64     `json:"accommodation_id"`
	Status          string    `json:"status"`
	CheckIn         time.Time `json:"check_in"`
	CheckOut        time.Time `json:"check_out"`
	TotalPrice      float64   `json:"total_price"`
}

// ReservationRequest carries the fields needed to place a new booking.
type ReservationRequest struct {
	AccommodationID int64
	RateCode        string
	GuestName       string
	Adults          int64
	CheckIn         time.Time
	CheckOut        time.Time
}

// Provider is the capability set an external inventory system may implement.
// An empty (non-error) availability response means the provider has not
// released data for the range, not that the call failed. Operations a
// provider cannot perform must return ErrUnsupported.
type Provider interface {
	Name() string
	GetAvailability(ctx context.Context, destinationExternalID string, start, end time.Time) ([]DayAvailability, error)
	GetPackages(ctx context.Context, destinationExternalID string, start, end time.Time) ([]DayPackages, error)
	GetReservation(ctx context.Context, destinationExternalID, confirmationID string) (*ReservationState, error)
	VerifyAvailability(ctx context.Context, destinationExternalID string, accommodationID int64, start, end time.Time, adults int64) (bool, error)
	CreateReservation(ctx context.Context, destinationExternalID string, req ReservationRequest) (*ReservationState, error)
}

type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry { return &Registry{providers: map[string]Provider{}} }

func (r *Registry) Register(name string, p Provider) { r.providers[name] = p }

func (r *Registry) Get(name string) (Provider, bool) { p, ok := r.providers[name]; return p, ok }
