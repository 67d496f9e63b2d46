package query

import (
	"context"
	"testing"

	"innsync/internal/cache"
	"innsync/internal/config"
	"innsync/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPackageEngine(t *testing.T) (*PackageQueryEngine, *cache.Store) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	store := cache.NewStore(client)
	logger := zerolog.Nop()
	cfg := config.QueryConfig{RedemptionRatio: 100, PageSize: 20}
	return NewPackageQueryEngine(store, queryDestinations, cfg, &logger), store
}

func seedPackageDay(t *testing.T, store *cache.Store, d int, packages []models.AvailablePackage) {
	t.Helper()
	key := models.PackageCacheKey(1, day(d))
	require.NoError(t, store.Write(context.Background(), map[string]any{key: packages}))
}

func pkg(id int64, code string, price float64, qty int64) models.AvailablePackage {
	return models.AvailablePackage{
		PackageID:    id,
		Code:         code,
		PricingModel: models.PricingPerStay,
		Quantity:     qty,
		TotalPrice:   price,
	}
}

func TestPackageSearchIntersection(t *testing.T) {
	engine, store := newTestPackageEngine(t)

	// SPA offered both days, LATE only on the first.
	seedPackageDay(t, store, 1, []models.AvailablePackage{
		pkg(1, "SPA", 40, 5),
		pkg(2, "LATE", 20, 3),
	})
	seedPackageDay(t, store, 2, []models.AvailablePackage{
		pkg(1, "SPA", 45, 5),
	})

	page, err := engine.Search(context.Background(), Criteria{
		DestinationID: 1, CheckIn: day(1), CheckOut: day(3),
	})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "SPA", page.Data[0].Code)
	assert.Equal(t, 85.0, page.Data[0].TotalPrice)
	assert.Equal(t, int64(8500), page.Data[0].Points)
}

func TestPackageSearchSoldOutExcluded(t *testing.T) {
	engine, store := newTestPackageEngine(t)

	seedPackageDay(t, store, 1, []models.AvailablePackage{
		pkg(1, "SPA", 40, 0),
	})

	page, err := engine.Search(context.Background(), Criteria{
		DestinationID: 1, CheckIn: day(1), CheckOut: day(2),
	})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Zero(t, page.Total)
}

func TestPackageSearchEmptyRange(t *testing.T) {
	engine, _ := newTestPackageEngine(t)

	page, err := engine.Search(context.Background(), Criteria{
		DestinationID: 1, CheckIn: day(1), CheckOut: day(1),
	})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Zero(t, page.Total)
}

func TestPackageSearchCheapestDailyOffer(t *testing.T) {
	engine, store := newTestPackageEngine(t)

	// Two offers for the same package on one day; the cheaper one represents it.
	seedPackageDay(t, store, 1, []models.AvailablePackage{
		pkg(1, "SPA", 40, 5),
		pkg(1, "SPA", 30, 2),
	})

	page, err := engine.Search(context.Background(), Criteria{
		DestinationID: 1, CheckIn: day(1), CheckOut: day(2),
	})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, 30.0, page.Data[0].TotalPrice)
}
