package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"innsync/internal/cache"
	"innsync/internal/config"
	"innsync/internal/metrics"
	"innsync/internal/models"

	"github.com/rs/zerolog"
)

// ErrDuplicateDestination signals a data-integrity fault: the destination
// directory resolved more than one row for a single destination id. This is
// a bug signal, never a normal runtime condition.
var ErrDuplicateDestination = errors.New("duplicate destination rows")

// ErrUnknownDestination means the requested destination id is not configured.
var ErrUnknownDestination = errors.New("unknown destination")

// Criteria describes one availability search. Zero-valued bounds are
// ignored; Page is 1-based.
type Criteria struct {
	DestinationID int64     `json:"destination_id"`
	CheckIn       time.Time `json:"check_in"`
	CheckOut      time.Time `json:"check_out"`
	Adults        int64     `json:"adults"`
	MinPrice      float64   `json:"min_price,omitempty"`
	MaxPrice      float64   `json:"max_price,omitempty"`
	SortDesc      bool      `json:"sort_desc,omitempty"`
	Page          int       `json:"page,omitempty"`
	PageSize      int       `json:"page_size,omitempty"`
}

// Result is one bookable accommodation with its cheapest consistent rate
// across the whole stay.
type Result struct {
	DestinationID   int64   `json:"destination_id"`
	AccommodationID int64   `json:"accommodation_id"`
	Name            string  `json:"name,omitempty"`
	MaxSleeps       int64   `json:"max_sleeps"`
	RateCode        string  `json:"rate_code"`
	Description     string  `json:"description,omitempty"`
	Nights          int     `json:"nights"`
	TotalPrice      float64 `json:"total_price"`
	Points          int64   `json:"points"`
}

// Page is one page of search results. Total counts all matches, not just
// the returned slice.
type Page[T any] struct {
	Data     []T `json:"data"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// AvailabilityQueryEngine answers stay searches from the per-day cache
// alone; it never calls the provider.
type AvailabilityQueryEngine struct {
	store        *cache.Store
	destinations []models.Destination
	cfg          config.QueryConfig
	logger       zerolog.Logger
}

func NewAvailabilityQueryEngine(store *cache.Store, destinations []models.Destination, cfg config.QueryConfig, logger *zerolog.Logger) *AvailabilityQueryEngine {
	return &AvailabilityQueryEngine{
		store:        store,
		destinations: destinations,
		cfg:          cfg,
		logger:       logger.With().Str("component", "availability_query").Logger(),
	}
}

// Search returns accommodations bookable for every night of the requested
// stay. A rate usable on the first night but sold out later in the stay is
// excluded entirely.
func (e *AvailabilityQueryEngine) Search(ctx context.Context, criteria Criteria) (Page[Result], error) {
	metrics.IncSearch("availability")

	dest, err := resolveDestination(e.destinations, criteria.DestinationID)
	if err != nil {
		return Page[Result]{}, err
	}

	days := models.DaysBetween(criteria.CheckIn, criteria.CheckOut)
	if len(days) == 0 {
		return emptyPage[Result](criteria.Page, e.pageSize(criteria.PageSize)), nil
	}
	nights := len(days)

	keys := make([]string, 0, nights)
	for _, day := range days {
		keys = append(keys, models.AvailabilityCacheKey(dest.CompanyID, dest.ID, day))
	}
	values, err := e.store.ReadMany(ctx, keys)
	if err != nil {
		return Page[Result]{}, fmt.Errorf("failed to read availability cache: %w", err)
	}

	// Candidate identity is (accommodation, rate); a candidate survives only
	// if it passes the per-day filters on every night of the stay.
	type candidate struct {
		accommodation models.AccommodationAvailability
		rateCode      string
		description   string
		total         float64
		daysSeen      int
	}
	candidates := make(map[string]*candidate)

	for dayIndex, key := range keys {
		raw, ok := values[key]
		if !ok {
			// An uncached day makes the whole stay unanswerable.
			return emptyPage[Result](criteria.Page, e.pageSize(criteria.PageSize)), nil
		}

		var accommodations []models.AccommodationAvailability
		if err := json.Unmarshal([]byte(raw), &accommodations); err != nil {
			return Page[Result]{}, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
		}

		for _, acc := range accommodations {
			if acc.MaxSleeps < criteria.Adults {
				continue
			}
			for _, quote := range acc.Quotes {
				if !quotePasses(quote, criteria, nights) {
					continue
				}
				id := fmt.Sprintf("%d:%s", acc.AccommodationID, quote.RateCode)
				c, ok := candidates[id]
				if !ok {
					if dayIndex > 0 {
						// Missed an earlier day, can never cover the stay.
						continue
					}
					c = &candidate{accommodation: acc, rateCode: quote.RateCode, description: quote.Description}
					candidates[id] = c
				}
				if c.daysSeen == dayIndex {
					c.daysSeen++
					c.total += quote.TotalPrice
				}
			}
		}
	}

	// Dedupe by accommodation: keep the cheapest rate that covers the stay.
	best := make(map[int64]Result)
	for _, c := range candidates {
		if c.daysSeen != nights {
			continue
		}
		result := Result{
			DestinationID:   dest.ID,
			AccommodationID: c.accommodation.AccommodationID,
			Name:            c.accommodation.Name,
			MaxSleeps:       c.accommodation.MaxSleeps,
			RateCode:        c.rateCode,
			Description:     c.description,
			Nights:          nights,
			TotalPrice:      c.total,
			Points:          pointsValue(c.total, e.cfg.RedemptionRatio),
		}
		current, ok := best[result.AccommodationID]
		if !ok || result.TotalPrice < current.TotalPrice {
			best[result.AccommodationID] = result
		}
	}

	results := make([]Result, 0, len(best))
	for _, r := range best {
		results = append(results, r)
	}
	sortResults(results, criteria.SortDesc)

	return paginate(results, criteria.Page, e.pageSize(criteria.PageSize)), nil
}

func (e *AvailabilityQueryEngine) pageSize(requested int) int {
	if requested > 0 {
		return requested
	}
	if e.cfg.PageSize > 0 {
		return e.cfg.PageSize
	}
	return models.DefaultPageSize
}

func quotePasses(quote models.PriceQuote, criteria Criteria, nights int) bool {
	if quote.Quantity <= 0 {
		return false
	}
	if criteria.MinPrice > 0 && quote.TotalPrice < criteria.MinPrice {
		return false
	}
	if criteria.MaxPrice > 0 && quote.TotalPrice > criteria.MaxPrice {
		return false
	}
	if quote.MinStayNights > 0 && int64(nights) < quote.MinStayNights {
		return false
	}
	if quote.MaxStayNights > 0 && int64(nights) > quote.MaxStayNights {
		return false
	}
	return true
}

func pointsValue(total, ratio float64) int64 {
	return int64(math.Round(total * ratio))
}

func sortResults(results []Result, desc bool) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].TotalPrice != results[j].TotalPrice {
			if desc {
				return results[i].TotalPrice > results[j].TotalPrice
			}
			return results[i].TotalPrice < results[j].TotalPrice
		}
		return results[i].AccommodationID < results[j].AccommodationID
	})
}

// resolveDestination scans the directory for the id. More than one row is a
// data-integrity fault surfaced as ErrDuplicateDestination.
func resolveDestination(destinations []models.Destination, id int64) (models.Destination, error) {
	var found []models.Destination
	for _, dest := range destinations {
		if dest.ID == id {
			found = append(found, dest)
		}
	}
	switch len(found) {
	case 0:
		return models.Destination{}, fmt.Errorf("destination %d: %w", id, ErrUnknownDestination)
	case 1:
		return found[0], nil
	default:
		return models.Destination{}, fmt.Errorf("destination %d: %w", id, ErrDuplicateDestination)
	}
}

func emptyPage[T any](page, pageSize int) Page[T] {
	if page <= 0 {
		page = 1
	}
	return Page[T]{Data: []T{}, Total: 0, Page: page, PageSize: pageSize}
}

func paginate[T any](results []T, page, pageSize int) Page[T] {
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(results) {
		start = len(results)
	}
	if end > len(results) {
		end = len(results)
	}
	return Page[T]{
		Data:     results[start:end],
		Total:    len(results),
		Page:     page,
		PageSize: pageSize,
	}
}
