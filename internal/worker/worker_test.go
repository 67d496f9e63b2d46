package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"innsync/internal/cache"
	"innsync/internal/config"
	"innsync/internal/database"
	"innsync/internal/fetcher"
	"innsync/internal/models"
	"innsync/internal/provider"
	"innsync/internal/registry"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider answers every availability request in full and serves
// reservations from a fixed map.
type stubProvider struct {
	availabilityErr error
	packages        map[string][]models.AvailablePackage
	reservations    map[string]*provider.ReservationState
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) GetAvailability(ctx context.Context, ext string, start, end time.Time) ([]provider.DayAvailability, error) {
	if p.availabilityErr != nil {
		return nil, p.availabilityErr
	}
	var out []provider.DayAvailability
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, provider.DayAvailability{
			Day: d,
			Accommodations: []models.AccommodationAvailability{
				{
					AccommodationID: 7,
					MaxSleeps:       4,
					Quotes:          []models.PriceQuote{{RateCode: "BAR", TotalPrice: 100, Quantity: 2}},
				},
			},
		})
	}
	return out, nil
}

func (p *stubProvider) GetPackages(ctx context.Context, ext string, start, end time.Time) ([]provider.DayPackages, error) {
	var out []provider.DayPackages
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if pkgs, ok := p.packages[d.Format(models.DateFormat)]; ok {
			out = append(out, provider.DayPackages{Day: d, Packages: pkgs})
		}
	}
	return out, nil
}

func (p *stubProvider) GetReservation(ctx context.Context, ext, confirmationID string) (*provider.ReservationState, error) {
	state, ok := p.reservations[confirmationID]
	if !ok {
		return nil, fmt.Errorf("reservation %s not found", confirmationID)
	}
	return state, nil
}

func (p *stubProvider) VerifyAvailability(ctx context.Context, ext string, accommodationID int64, start, end time.Time, adults int64) (bool, error) {
	return false, provider.ErrUnsupported
}

func (p *stubProvider) CreateReservation(ctx context.Context, ext string, req provider.ReservationRequest) (*provider.ReservationState, error) {
	return nil, provider.ErrUnsupported
}

func newTestWorker(t *testing.T, prov provider.Provider, destinations []models.Destination) (*SyncWorker, *miniredis.Miniredis, *database.DB) {
	t.Helper()

	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.SyncConfig{
		AvailabilityBatchSize: 4,
		PackageBatchSize:      4,
		ReservationBatchSize:  4,
		HorizonMonths:         3,
		ReservationBlockDays:  7,
	}

	w := New(
		registry.NewRefreshKeyRegistry(client, &logger),
		registry.NewReservationQueue(client, &logger),
		fetcher.New(prov, &logger),
		cache.NewStore(client),
		db,
		prov,
		destinations,
		cfg,
		&logger,
	)
	return w, s, db
}

var testDestinations = []models.Destination{
	{ID: 1, CompanyID: 10, ExternalID: "EXT-1", Name: "Pinewood Lodge", IsActive: true},
	{ID: 2, CompanyID: 10, ExternalID: "EXT-2", Name: "Seacliff Resort", IsActive: true},
	{ID: 3, CompanyID: 10, ExternalID: "EXT-3", Name: "Closed Cabin", IsActive: false},
}

func TestRunBlockSync(t *testing.T) {
	ctx := context.Background()

	// Keys a year out so neither clamping nor expiry interferes.
	year := time.Now().UTC().Year() + 1

	t.Run("WritesCacheAndRequeues", func(t *testing.T) {
		prov := &stubProvider{}
		w, s, _ := newTestWorker(t, prov, testDestinations)

		require.NoError(t, w.registry.Touch(ctx, models.RefreshAvailability, 1, year, time.June))
		require.NoError(t, w.registry.Touch(ctx, models.RefreshAvailability, 2, year, time.July))

		require.NoError(t, w.RunBlockSync(ctx))

		day := time.Date(year, time.June, 15, 0, 0, 0, 0, time.UTC)
		raw, err := s.Get(models.AvailabilityCacheKey(10, 1, day))
		require.NoError(t, err)
		assert.Contains(t, raw, `"rate_code":"BAR"`)

		day = time.Date(year, time.July, 31, 0, 0, 0, 0, time.UTC)
		_, err = s.Get(models.AvailabilityCacheKey(10, 2, day))
		require.NoError(t, err)

		// Both keys were touched back, none consumed.
		members, err := s.ZMembers(models.RefreshSetKey(models.RefreshAvailability))
		require.NoError(t, err)
		assert.Len(t, members, 2)
	})

	t.Run("UnknownDestinationIsRequeued", func(t *testing.T) {
		prov := &stubProvider{}
		w, s, _ := newTestWorker(t, prov, testDestinations)

		require.NoError(t, w.registry.Touch(ctx, models.RefreshAvailability, 99, year, time.June))
		require.NoError(t, w.RunBlockSync(ctx))

		members, err := s.ZMembers(models.RefreshSetKey(models.RefreshAvailability))
		require.NoError(t, err)
		assert.Len(t, members, 1)

		keys := s.Keys()
		for _, key := range keys {
			assert.NotContains(t, key, "availability:", "no cache entry for unknown destination")
		}
	})

	t.Run("NotReservableSkipsBlock", func(t *testing.T) {
		prov := &stubProvider{availabilityErr: provider.ErrNotReservable}
		w, s, _ := newTestWorker(t, prov, testDestinations)

		require.NoError(t, w.registry.Touch(ctx, models.RefreshAvailability, 1, year, time.June))
		require.NoError(t, w.RunBlockSync(ctx))

		// The key stays scheduled, nothing was cached.
		members, err := s.ZMembers(models.RefreshSetKey(models.RefreshAvailability))
		require.NoError(t, err)
		assert.Len(t, members, 1)
		for _, key := range s.Keys() {
			assert.NotContains(t, key, "availability:")
		}
	})
}

func TestRunPackageBlockSync(t *testing.T) {
	ctx := context.Background()
	year := time.Now().UTC().Year() + 1
	offerDay := fmt.Sprintf("%d-06-03", year)

	prov := &stubProvider{
		packages: map[string][]models.AvailablePackage{
			offerDay: {{PackageID: 3, Code: "SPA", PricingModel: models.PricingPerGuest, Quantity: 5, TotalPrice: 44}},
		},
	}
	w, s, _ := newTestWorker(t, prov, testDestinations)

	require.NoError(t, w.registry.Touch(ctx, models.RefreshPackages, 1, year, time.June))
	require.NoError(t, w.RunPackageBlockSync(ctx))

	day := time.Date(year, time.June, 3, 0, 0, 0, 0, time.UTC)
	raw, err := s.Get(models.PackageCacheKey(1, day))
	require.NoError(t, err)
	assert.Contains(t, raw, `"code":"SPA"`)
}

func TestRunReservationRevalidation(t *testing.T) {
	ctx := context.Background()

	block := registry.BlockStart(time.Now().UTC(), 7)
	checkIn := block.AddDate(0, 0, 1)

	prov := &stubProvider{
		reservations: map[string]*provider.ReservationState{
			"CNF-1": {
				ConfirmationID:  "CNF-1",
				AccommodationID: 7,
				Status:          models.ReservationCancelled,
				CheckIn:         checkIn,
				CheckOut:        checkIn.AddDate(0, 0, 2),
				TotalPrice:      0,
			},
		},
	}
	w, _, db := newTestWorker(t, prov, testDestinations[:1])

	_, err := db.CreateReservation(ctx, &models.Reservation{
		ConfirmationID:  "CNF-1",
		DestinationID:   1,
		AccommodationID: 7,
		GuestName:       "Jamie Woods",
		Adults:          2,
		CheckIn:         checkIn,
		CheckOut:        checkIn.AddDate(0, 0, 2),
		TotalPrice:      200,
		Status:          models.ReservationConfirmed,
	})
	require.NoError(t, err)

	// Coverage puts the current block at the head of the queue.
	require.NoError(t, w.queue.EnsureCoverage(ctx, 1, 3, 7))
	require.NoError(t, w.RunReservationRevalidation(ctx))

	got, err := db.GetReservationByConfirmation(ctx, "CNF-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.ReservationCancelled, got.Status)
	assert.False(t, got.LastRevalidated.IsZero())
}

func TestRunRefreshKeyHousekeeping(t *testing.T) {
	ctx := context.Background()

	prov := &stubProvider{}
	w, s, _ := newTestWorker(t, prov, testDestinations)

	require.NoError(t, w.RunRefreshKeyHousekeeping(ctx))

	// Two active destinations, three months each, both kinds; the inactive
	// destination gets nothing.
	availability, err := s.ZMembers(models.RefreshSetKey(models.RefreshAvailability))
	require.NoError(t, err)
	assert.Len(t, availability, 6)
	assert.NotContains(t, availability, models.EncodeRefreshValue(3, time.Now().UTC().Year(), time.Now().UTC().Month()))

	packages, err := s.ZMembers(models.RefreshSetKey(models.RefreshPackages))
	require.NoError(t, err)
	assert.Len(t, packages, 6)

	queue1, err := s.List(models.ReservationQueueKey(1))
	require.NoError(t, err)
	assert.NotEmpty(t, queue1)
	assert.False(t, s.Exists(models.ReservationQueueKey(3)))

	// Second pass changes nothing.
	require.NoError(t, w.RunRefreshKeyHousekeeping(ctx))
	again, err := s.ZMembers(models.RefreshSetKey(models.RefreshAvailability))
	require.NoError(t, err)
	assert.Len(t, again, 6)
}
