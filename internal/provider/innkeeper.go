package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"innsync/internal/config"
	"innsync/internal/metrics"
	"innsync/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Innkeeper is the HTTP adapter for the inventory provider's REST feed.
// The feed is read-only: reservations cannot be created through it.
type Innkeeper struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func NewInnkeeper(cfg config.ProviderConfig, logger *zerolog.Logger) *Innkeeper {
	return &Innkeeper{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout()},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst),
		logger:  logger.With().Str("component", "provider").Logger(),
	}
}

func (p *Innkeeper) Name() string { return "innkeeper" }

type innkeeperRate struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Total       float64 `json:"total"`
	Quantity    int64   `json:"quantity"`
	MinStay     int64   `json:"min_stay"`
	MaxStay     int64   `json:"max_stay"`
}

type innkeeperAccommodation struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	MaxOccupants int64           `json:"max_occupants"`
	MaxSleeps    int64           `json:"max_sleeps"`
	Rates        []innkeeperRate `json:"rates"`
}

type innkeeperAvailabilityResp struct {
	Days []struct {
		Date           string                   `json:"date"`
		Accommodations []innkeeperAccommodation `json:"accommodations"`
	} `json:"days"`
}

type innkeeperPackagesResp struct {
	Days []struct {
		Date     string `json:"date"`
		Packages []struct {
			ID           int64   `json:"id"`
			Code         string  `json:"code"`
			Name         string  `json:"name"`
			PricingModel string  `json:"pricing_model"`
			Quantity     int64   `json:"quantity"`
			BasePrice    float64 `json:"base_price"`
			TaxAmount    float64 `json:"tax_amount"`
			Total        float64 `json:"total"`
		} `json:"packages"`
	} `json:"days"`
}

func (p *Innkeeper) GetAvailability(ctx context.Context, destinationExternalID string, start, end time.Time) ([]DayAvailability, error) {
	metrics.IncProviderCall("availability")

	endpoint := fmt.Sprintf("/v1/properties/%s/availability", url.PathEscape(destinationExternalID))
	body, err := p.get(ctx, endpoint, start, end)
	if err != nil {
		return nil, err
	}

	var parsed innkeeperAvailabilityResp
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode availability response: %w", err)
	}

	var out []DayAvailability
	for _, day := range parsed.Days {
		d, err := time.Parse(models.DateFormat, day.Date)
		if err != nil {
			p.logger.Warn().Str("date", day.Date).Msg("provider returned unparseable date")
			continue
		}
		accommodations := make([]models.AccommodationAvailability, 0, len(day.Accommodations))
		for _, acc := range day.Accommodations {
			quotes := make([]models.PriceQuote, 0, len(acc.Rates))
			for _, r := range acc.Rates {
				quotes = append(quotes, models.PriceQuote{
					RateCode:      r.Code,
					Description:   r.Description,
					TotalPrice:    r.Total,
					Quantity:      r.Quantity,
					MinStayNights: r.MinStay,
					MaxStayNights: r.MaxStay,
				})
			}
			accommodations = append(accommodations, models.AccommodationAvailability{
				AccommodationID: acc.ID,
				Name:            acc.Name,
				MaxOccupants:    acc.MaxOccupants,
				MaxSleeps:       acc.MaxSleeps,
				Quotes:          quotes,
			})
		}
		out = append(out, DayAvailability{Day: d, Accommodations: accommodations})
	}
	return out, nil
}

func (p *Innkeeper) GetPackages(ctx context.Context, destinationExternalID string, start, end time.Time) ([]DayPackages, error) {
	metrics.IncProviderCall("packages")

	endpoint := fmt.Sprintf("/v1/properties/%s/packages", url.PathEscape(destinationExternalID))
	body, err := p.get(ctx, endpoint, start, end)
	if err != nil {
		return nil, err
	}

	var parsed innkeeperPackagesResp
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode packages response: %w", err)
	}

	var out []DayPackages
	for _, day := range parsed.Days {
		d, err := time.Parse(models.DateFormat, day.Date)
		if err != nil {
			p.logger.Warn().Str("date", day.Date).Msg("provider returned unparseable date")
			continue
		}
		packages := make([]models.AvailablePackage, 0, len(day.Packages))
		for _, pkg := range day.Packages {
			packages = append(packages, models.AvailablePackage{
				PackageID:    pkg.ID,
				Code:         pkg.Code,
				Name:         pkg.Name,
				PricingModel: pkg.PricingModel,
				Quantity:     pkg.Quantity,
				BasePrice:    pkg.BasePrice,
				TaxAmount:    pkg.TaxAmount,
				TotalPrice:   pkg.Total,
			})
		}
		out = append(out, DayPackages{Day: d, Packages: packages})
	}
	return out, nil
}

func (p *Innkeeper) GetReservation(ctx context.Context, destinationExternalID, confirmationID string) (*ReservationState, error) {
	metrics.IncProviderCall("reservation")

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/properties/%s/reservations/%s",
		p.baseURL, url.PathEscape(destinationExternalID), url.PathEscape(confirmationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reservation GET failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reservation read body failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reservation %s status %d", confirmationID, resp.StatusCode)
	}

	var state ReservationState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("decode reservation response: %w", err)
	}
	return &state, nil
}

// VerifyAvailability re-checks that an accommodation is bookable for every
// night of the stay using the live availability feed.
func (p *Innkeeper) VerifyAvailability(ctx context.Context, destinationExternalID string, accommodationID int64, start, end time.Time, adults int64) (bool, error) {
	days, err := p.GetAvailability(ctx, destinationExternalID, start, end)
	if err != nil {
		return false, err
	}

	nights := models.DaysBetween(start, end)
	available := make(map[string]bool, len(days))
	for _, day := range days {
		for _, acc := range day.Accommodations {
			if acc.AccommodationID != accommodationID || acc.MaxSleeps < adults {
				continue
			}
			for _, q := range acc.Quotes {
				if q.Quantity > 0 {
					available[day.Day.Format(models.DateFormat)] = true
					break
				}
			}
		}
	}

	for _, night := range nights {
		if !available[night.Format(models.DateFormat)] {
			return false, nil
		}
	}
	return len(nights) > 0, nil
}

func (p *Innkeeper) CreateReservation(ctx context.Context, destinationExternalID string, req ReservationRequest) (*ReservationState, error) {
	return nil, fmt.Errorf("innkeeper: create reservation: %w", ErrUnsupported)
}

// get performs a rate-limited ranged GET and returns the raw body.
// 404 and 204 mean "nothing released for this range" and yield an empty
// days payload rather than an error.
func (p *Innkeeper) get(ctx context.Context, endpoint string, start, end time.Time) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(p.baseURL + endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid provider url: %w", err)
	}
	q := u.Query()
	q.Set("from", start.Format(models.DateFormat))
	q.Set("to", end.Format(models.DateFormat))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider GET failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("provider read body failed: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNoContent, http.StatusNotFound:
		return []byte(`{"days":[]}`), nil
	case http.StatusUnprocessableEntity:
		return nil, ErrNotReservable
	default:
		return nil, fmt.Errorf("provider status %d: %s", resp.StatusCode, clipBody(body))
	}
}

func (p *Innkeeper) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-Api-Key", p.apiKey)
	}
}

func clipBody(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
