package fetcher

import (
	"context"
	"errors"
	"math/bits"
	"time"

	"innsync/internal/models"
	"innsync/internal/provider"

	"github.com/rs/zerolog"
)

// Fetcher asks the external provider for a month's worth of priced
// inventory. The provider answers a ranged request all-or-nothing: either it
// has released pricing for every requested day, or it returns nothing.
// Bisection locates the release boundary in O(log n) calls instead of
// requesting day by day.
type Fetcher struct {
	provider provider.Provider
	logger   zerolog.Logger
	now      func() time.Time
}

func New(p provider.Provider, logger *zerolog.Logger) *Fetcher {
	return &Fetcher{
		provider: p,
		logger:   logger.With().Str("component", "fetcher").Logger(),
		now:      time.Now,
	}
}

// FetchBlock returns per-day accommodation availability for one
// destination-month, keyed by UTC midnight of each day. Days the provider
// has not released contribute no entry. When the block is the current
// calendar month, firstDay is clamped to today so past dates are never
// fetched or cached.
func (f *Fetcher) FetchBlock(ctx context.Context, dest models.Destination, year int, month time.Month, firstDay, lastDay int) (map[time.Time][]models.AccommodationAvailability, error) {
	now := f.now().UTC()
	if now.Year() == year && now.Month() == month && firstDay < now.Day() {
		firstDay = now.Day()
	}
	if firstDay > lastDay {
		return map[time.Time][]models.AccommodationAvailability{}, nil
	}

	// Depth bound: halving can recurse at most log2 of the range size.
	maxDepth := bits.Len(uint(lastDay - firstDay + 1))
	return f.fetchRange(ctx, dest, year, month, firstDay, lastDay, maxDepth)
}

func (f *Fetcher) fetchRange(ctx context.Context, dest models.Destination, year int, month time.Month, firstDay, lastDay, depth int) (map[time.Time][]models.AccommodationAvailability, error) {
	start := time.Date(year, month, firstDay, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, month, lastDay, 0, 0, 0, 0, time.UTC)

	days, err := f.provider.GetAvailability(ctx, dest.ExternalID, start, end)
	if err != nil {
		if errors.Is(err, provider.ErrNotReservable) {
			return nil, err
		}
		// Transient failures look like an unreleased range: bisect or give
		// up on this slice and let the next cycle retry.
		f.logger.Warn().Err(err).
			Int64("destination_id", dest.ID).
			Str("range", start.Format(models.DateFormat)+".."+end.Format(models.DateFormat)).
			Msg("provider call failed, treating range as unreleased")
		days = nil
	}

	if len(days) > 0 {
		return f.formatResponse(days, start, end), nil
	}

	if firstDay == lastDay || depth <= 0 {
		// Single unreleased day, silently absent from the result.
		return map[time.Time][]models.AccommodationAvailability{}, nil
	}

	// Lower-biased midpoint; the halves are [firstDay, split) and
	// [split, lastDay].
	split := firstDay + (lastDay-firstDay+1)/2
	lower, err := f.fetchRange(ctx, dest, year, month, firstDay, split-1, depth-1)
	if err != nil {
		return nil, err
	}
	upper, err := f.fetchRange(ctx, dest, year, month, split, lastDay, depth-1)
	if err != nil {
		return nil, err
	}

	for day, accommodations := range upper {
		lower[day] = accommodations
	}
	return lower, nil
}

// formatResponse indexes a provider response by day and marks each quote
// that carries the cheapest or most expensive price of the whole response.
func (f *Fetcher) formatResponse(days []provider.DayAvailability, start, end time.Time) map[time.Time][]models.AccommodationAvailability {
	var cheapest, dearest float64
	seen := false
	for _, day := range days {
		for _, acc := range day.Accommodations {
			for _, q := range acc.Quotes {
				if !seen || q.TotalPrice < cheapest {
					cheapest = q.TotalPrice
				}
				if !seen || q.TotalPrice > dearest {
					dearest = q.TotalPrice
				}
				seen = true
			}
		}
	}

	out := make(map[time.Time][]models.AccommodationAvailability, len(days))
	for _, day := range days {
		d := time.Date(day.Day.Year(), day.Day.Month(), day.Day.Day(), 0, 0, 0, 0, time.UTC)
		if d.Before(start) || d.After(end) {
			continue
		}
		accommodations := make([]models.AccommodationAvailability, 0, len(day.Accommodations))
		for _, acc := range day.Accommodations {
			quotes := make([]models.PriceQuote, len(acc.Quotes))
			copy(quotes, acc.Quotes)
			for i := range quotes {
				quotes[i].Cheapest = quotes[i].TotalPrice == cheapest
				quotes[i].MostExpensive = quotes[i].TotalPrice == dearest
			}
			acc.Quotes = quotes
			accommodations = append(accommodations, acc)
		}
		out[d] = accommodations
	}
	return out
}

// FetchPackageBlock returns per-day package offers for one
// destination-month. Packages have no release-boundary property, so an
// empty response is accepted as "no packages this month" without bisection.
func (f *Fetcher) FetchPackageBlock(ctx context.Context, dest models.Destination, year int, month time.Month, firstDay, lastDay int) (map[time.Time][]models.AvailablePackage, error) {
	now := f.now().UTC()
	if now.Year() == year && now.Month() == month && firstDay < now.Day() {
		firstDay = now.Day()
	}
	if firstDay > lastDay {
		return map[time.Time][]models.AvailablePackage{}, nil
	}

	start := time.Date(year, month, firstDay, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, month, lastDay, 0, 0, 0, 0, time.UTC)

	days, err := f.provider.GetPackages(ctx, dest.ExternalID, start, end)
	if err != nil {
		return nil, err
	}

	out := make(map[time.Time][]models.AvailablePackage, len(days))
	for _, day := range days {
		d := time.Date(day.Day.Year(), day.Day.Month(), day.Day.Day(), 0, 0, 0, 0, time.UTC)
		if d.Before(start) || d.After(end) {
			continue
		}
		out[d] = day.Packages
	}
	return out, nil
}

// LastDayOfMonth returns the day number of a month's final day.
func LastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1).Day()
}
