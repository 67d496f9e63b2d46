package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"innsync/internal/cache"
	"innsync/internal/config"
	"innsync/internal/metrics"
	"innsync/internal/models"

	"github.com/rs/zerolog"
)

// PackageResult is one add-on package bookable for every day of the stay.
type PackageResult struct {
	DestinationID int64   `json:"destination_id"`
	PackageID     int64   `json:"package_id"`
	Code          string  `json:"code"`
	Name          string  `json:"name,omitempty"`
	PricingModel  string  `json:"pricing_model"`
	Nights        int     `json:"nights"`
	TotalPrice    float64 `json:"total_price"`
	Points        int64   `json:"points"`
}

// PackageQueryEngine answers add-on package searches from the per-day cache.
type PackageQueryEngine struct {
	store        *cache.Store
	destinations []models.Destination
	cfg          config.QueryConfig
	logger       zerolog.Logger
}

func NewPackageQueryEngine(store *cache.Store, destinations []models.Destination, cfg config.QueryConfig, logger *zerolog.Logger) *PackageQueryEngine {
	return &PackageQueryEngine{
		store:        store,
		destinations: destinations,
		cfg:          cfg,
		logger:       logger.With().Str("component", "package_query").Logger(),
	}
}

// Search returns packages offered on every day of the requested range,
// cheapest daily offer per package, summed across the range.
func (e *PackageQueryEngine) Search(ctx context.Context, criteria Criteria) (Page[PackageResult], error) {
	metrics.IncSearch("package")

	dest, err := resolveDestination(e.destinations, criteria.DestinationID)
	if err != nil {
		return Page[PackageResult]{}, err
	}

	days := models.DaysBetween(criteria.CheckIn, criteria.CheckOut)
	if len(days) == 0 {
		return emptyPage[PackageResult](criteria.Page, e.pageSize(criteria.PageSize)), nil
	}

	keys := make([]string, 0, len(days))
	for _, day := range days {
		keys = append(keys, models.PackageCacheKey(dest.ID, day))
	}
	values, err := e.store.ReadMany(ctx, keys)
	if err != nil {
		return Page[PackageResult]{}, fmt.Errorf("failed to read package cache: %w", err)
	}

	type candidate struct {
		pkg      models.AvailablePackage
		total    float64
		daysSeen int
	}
	candidates := make(map[int64]*candidate)

	for dayIndex, key := range keys {
		raw, ok := values[key]
		if !ok {
			return emptyPage[PackageResult](criteria.Page, e.pageSize(criteria.PageSize)), nil
		}

		var packages []models.AvailablePackage
		if err := json.Unmarshal([]byte(raw), &packages); err != nil {
			return Page[PackageResult]{}, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
		}

		// Cheapest offer per package per day.
		daily := make(map[int64]models.AvailablePackage)
		for _, pkg := range packages {
			if pkg.Quantity <= 0 {
				continue
			}
			if criteria.MinPrice > 0 && pkg.TotalPrice < criteria.MinPrice {
				continue
			}
			if criteria.MaxPrice > 0 && pkg.TotalPrice > criteria.MaxPrice {
				continue
			}
			current, ok := daily[pkg.PackageID]
			if !ok || pkg.TotalPrice < current.TotalPrice {
				daily[pkg.PackageID] = pkg
			}
		}

		for id, pkg := range daily {
			c, ok := candidates[id]
			if !ok {
				if dayIndex > 0 {
					continue
				}
				c = &candidate{pkg: pkg}
				candidates[id] = c
			}
			if c.daysSeen == dayIndex {
				c.daysSeen++
				c.total += pkg.TotalPrice
			}
		}
	}

	results := make([]PackageResult, 0, len(candidates))
	for _, c := range candidates {
		if c.daysSeen != len(days) {
			continue
		}
		results = append(results, PackageResult{
			DestinationID: dest.ID,
			PackageID:     c.pkg.PackageID,
			Code:          c.pkg.Code,
			Name:          c.pkg.Name,
			PricingModel:  c.pkg.PricingModel,
			Nights:        len(days),
			TotalPrice:    c.total,
			Points:        pointsValue(c.total, e.cfg.RedemptionRatio),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].TotalPrice != results[j].TotalPrice {
			if criteria.SortDesc {
				return results[i].TotalPrice > results[j].TotalPrice
			}
			return results[i].TotalPrice < results[j].TotalPrice
		}
		return results[i].PackageID < results[j].PackageID
	})

	return paginate(results, criteria.Page, e.pageSize(criteria.PageSize)), nil
}

func (e *PackageQueryEngine) pageSize(requested int) int {
	if requested > 0 {
		return requested
	}
	if e.cfg.PageSize > 0 {
		return e.cfg.PageSize
	}
	return models.DefaultPageSize
}
