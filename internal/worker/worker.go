package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"innsync/internal/cache"
	"innsync/internal/config"
	"innsync/internal/database"
	"innsync/internal/fetcher"
	"innsync/internal/metrics"
	"innsync/internal/models"
	"innsync/internal/provider"
	"innsync/internal/registry"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SyncWorker drives the periodic refresh cycles: availability blocks,
// package blocks, reservation revalidation and refresh-key housekeeping.
// Each cycle is independently schedulable and safe to trigger manually
// while the tickers are running.
type SyncWorker struct {
	registry     *registry.RefreshKeyRegistry
	queue        *registry.ReservationQueue
	fetcher      *fetcher.Fetcher
	store        *cache.Store
	db           *database.DB
	provider     provider.Provider
	destinations map[int64]models.Destination
	cfg          config.SyncConfig
	logger       zerolog.Logger
}

func New(
	reg *registry.RefreshKeyRegistry,
	queue *registry.ReservationQueue,
	f *fetcher.Fetcher,
	store *cache.Store,
	db *database.DB,
	p provider.Provider,
	destinations []models.Destination,
	cfg config.SyncConfig,
	logger *zerolog.Logger,
) *SyncWorker {
	byID := make(map[int64]models.Destination, len(destinations))
	for _, dest := range destinations {
		if dest.IsActive {
			byID[dest.ID] = dest
		}
	}

	return &SyncWorker{
		registry:     reg,
		queue:        queue,
		fetcher:      f,
		store:        store,
		db:           db,
		provider:     p,
		destinations: byID,
		cfg:          cfg,
		logger:       logger.With().Str("component", "sync_worker").Logger(),
	}
}

// Start runs all cycle loops until ctx is cancelled.
func (w *SyncWorker) Start(ctx context.Context) {
	w.logger.Info().
		Int("destinations", len(w.destinations)).
		Int("horizon_months", w.cfg.HorizonMonths).
		Msg("sync worker started")
	defer w.logger.Info().Msg("sync worker stopped")

	// Housekeeping runs once up front so the first sync cycles have keys to
	// consume on a cold start.
	if err := w.RunRefreshKeyHousekeeping(ctx); err != nil {
		w.logger.Error().Err(err).Msg("initial housekeeping failed")
	}

	var wg sync.WaitGroup
	loops := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) error
	}{
		{"availability", w.cfg.AvailabilityInterval(), w.RunBlockSync},
		{"package", w.cfg.PackageInterval(), w.RunPackageBlockSync},
		{"reservation", w.cfg.ReservationInterval(), w.RunReservationRevalidation},
		{"housekeeping", w.cfg.HousekeepingInterval(), w.RunRefreshKeyHousekeeping},
	}
	for _, loop := range loops {
		wg.Add(1)
		go func(name string, interval time.Duration, run func(context.Context) error) {
			defer wg.Done()
			w.runLoop(ctx, name, interval, run)
		}(loop.name, loop.interval, loop.run)
	}
	wg.Wait()
}

func (w *SyncWorker) runLoop(ctx context.Context, name string, interval time.Duration, run func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := run(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				w.logger.Error().Err(err).Str("cycle", name).Msg("sync cycle failed")
			}
		}
	}
}

// RunBlockSync consumes a batch of availability refresh keys: the stalest
// destination-months are fetched from the provider and their per-day cache
// entries overwritten. Every processed key is touched back to the tail of
// the queue, so repeated cycles rotate fairly through all keys.
func (w *SyncWorker) RunBlockSync(ctx context.Context) error {
	runID := uuid.NewString()
	log := w.logger.With().Str("run_id", runID).Str("kind", string(models.RefreshAvailability)).Logger()

	due, err := w.registry.ListDue(ctx, models.RefreshAvailability, w.cfg.AvailabilityBatchSize)
	if err != nil {
		return fmt.Errorf("failed to list due availability keys: %w", err)
	}

	for _, key := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		dest, ok := w.destinations[key.DestinationID]
		if !ok {
			// Keys of removed destinations are touched away so they cannot
			// pin the head of the queue; housekeeping prunes them for good.
			log.Warn().Int64("destination_id", key.DestinationID).Msg("refresh key for unknown destination")
			if err := w.registry.Touch(ctx, models.RefreshAvailability, key.DestinationID, key.Year, key.Month); err != nil {
				return err
			}
			continue
		}

		days, err := w.fetcher.FetchBlock(ctx, dest, key.Year, key.Month, 1, fetcher.LastDayOfMonth(key.Year, key.Month))
		if err != nil {
			metrics.IncSyncError(string(models.RefreshAvailability))
			if errors.Is(err, provider.ErrNotReservable) {
				log.Warn().Err(err).
					Int64("destination_id", dest.ID).
					Str("block", key.Value()).
					Msg("destination not reservable, skipping block")
				if err := w.registry.Touch(ctx, models.RefreshAvailability, key.DestinationID, key.Year, key.Month); err != nil {
					return err
				}
				continue
			}
			// Keep the key at the head of the queue; the next cycle retries.
			log.Error().Err(err).Str("block", key.Value()).Msg("availability fetch failed")
			continue
		}

		entries := make(map[string]any, len(days))
		for day, accommodations := range days {
			entries[models.AvailabilityCacheKey(dest.CompanyID, dest.ID, day)] = accommodations
		}
		if err := w.store.Write(ctx, entries); err != nil {
			metrics.IncSyncError(string(models.RefreshAvailability))
			log.Error().Err(err).Str("block", key.Value()).Msg("cache write failed")
			continue
		}

		if err := w.registry.Touch(ctx, models.RefreshAvailability, key.DestinationID, key.Year, key.Month); err != nil {
			return err
		}
		metrics.IncBlockSynced(string(models.RefreshAvailability))
		log.Debug().
			Int64("destination_id", dest.ID).
			Str("block", key.Value()).
			Int("days", len(days)).
			Msg("availability block synced")
	}
	return nil
}

// RunPackageBlockSync is the package counterpart of RunBlockSync. Package
// months are fetched whole; an empty month simply clears to no entries.
func (w *SyncWorker) RunPackageBlockSync(ctx context.Context) error {
	runID := uuid.NewString()
	log := w.logger.With().Str("run_id", runID).Str("kind", string(models.RefreshPackages)).Logger()

	due, err := w.registry.ListDue(ctx, models.RefreshPackages, w.cfg.PackageBatchSize)
	if err != nil {
		return fmt.Errorf("failed to list due package keys: %w", err)
	}

	for _, key := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		dest, ok := w.destinations[key.DestinationID]
		if !ok {
			log.Warn().Int64("destination_id", key.DestinationID).Msg("refresh key for unknown destination")
			if err := w.registry.Touch(ctx, models.RefreshPackages, key.DestinationID, key.Year, key.Month); err != nil {
				return err
			}
			continue
		}

		days, err := w.fetcher.FetchPackageBlock(ctx, dest, key.Year, key.Month, 1, fetcher.LastDayOfMonth(key.Year, key.Month))
		if err != nil {
			metrics.IncSyncError(string(models.RefreshPackages))
			log.Error().Err(err).Str("block", key.Value()).Msg("package fetch failed")
			continue
		}

		entries := make(map[string]any, len(days))
		for day, packages := range days {
			entries[models.PackageCacheKey(dest.ID, day)] = packages
		}
		if err := w.store.Write(ctx, entries); err != nil {
			metrics.IncSyncError(string(models.RefreshPackages))
			log.Error().Err(err).Str("block", key.Value()).Msg("cache write failed")
			continue
		}

		if err := w.registry.Touch(ctx, models.RefreshPackages, key.DestinationID, key.Year, key.Month); err != nil {
			return err
		}
		metrics.IncBlockSynced(string(models.RefreshPackages))
	}
	return nil
}

// RunReservationRevalidation rotates one date block per destination and
// re-reads every reservation whose stay intersects it from the provider,
// overwriting the local record with the authoritative state.
func (w *SyncWorker) RunReservationRevalidation(ctx context.Context) error {
	runID := uuid.NewString()
	log := w.logger.With().Str("run_id", runID).Str("kind", "reservation").Logger()

	for _, dest := range w.destinations {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		block, ok, err := w.queue.Rotate(ctx, dest.ID)
		if err != nil {
			return fmt.Errorf("failed to rotate reservation queue for destination %d: %w", dest.ID, err)
		}
		if !ok {
			continue
		}
		if !w.queue.IsExpected(block, w.cfg.HorizonMonths, w.cfg.ReservationBlockDays) {
			// Stale block, already rotated to the tail; the next housekeeping
			// pass removes it from the queue.
			log.Debug().
				Int64("destination_id", dest.ID).
				Str("block", block.Format(models.DateFormat)).
				Msg("skipping block outside schedule")
			continue
		}

		blockEnd := block.AddDate(0, 0, w.cfg.ReservationBlockDays)
		stays, err := w.db.ListStaysIntersecting(ctx, dest.ID, block, blockEnd)
		if err != nil {
			metrics.IncSyncError("reservation")
			log.Error().Err(err).Int64("destination_id", dest.ID).Msg("failed to list stays")
			continue
		}

		for _, stay := range stays {
			state, err := w.provider.GetReservation(ctx, dest.ExternalID, stay.ConfirmationID)
			if err != nil {
				if errors.Is(err, provider.ErrUnsupported) {
					log.Debug().Str("provider", w.provider.Name()).Msg("provider does not expose reservations")
					return nil
				}
				metrics.IncSyncError("reservation")
				log.Error().Err(err).Str("confirmation_id", stay.ConfirmationID).Msg("reservation lookup failed")
				continue
			}
			if err := w.db.UpdateFromProvider(ctx, stay.ConfirmationID, state); err != nil {
				metrics.IncSyncError("reservation")
				log.Error().Err(err).Str("confirmation_id", stay.ConfirmationID).Msg("reservation update failed")
			}
		}

		metrics.IncBlockSynced("reservation")
		log.Debug().
			Int64("destination_id", dest.ID).
			Str("block", block.Format(models.DateFormat)).
			Int("reservations", len(stays)).
			Msg("reservation block revalidated")
	}
	return nil
}

// RunRefreshKeyHousekeeping keeps the queues aligned with the configured
// destinations and horizon: coverage is extended for every active
// destination and expired keys are pruned.
func (w *SyncWorker) RunRefreshKeyHousekeeping(ctx context.Context) error {
	for _, dest := range w.destinations {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.registry.EnsureCoverage(ctx, models.RefreshAvailability, dest.ID, w.cfg.HorizonMonths); err != nil {
			return fmt.Errorf("availability coverage for destination %d: %w", dest.ID, err)
		}
		if err := w.registry.EnsureCoverage(ctx, models.RefreshPackages, dest.ID, w.cfg.HorizonMonths); err != nil {
			return fmt.Errorf("package coverage for destination %d: %w", dest.ID, err)
		}
		if err := w.queue.EnsureCoverage(ctx, dest.ID, w.cfg.HorizonMonths, w.cfg.ReservationBlockDays); err != nil {
			return fmt.Errorf("reservation coverage for destination %d: %w", dest.ID, err)
		}
	}

	for _, kind := range []models.RefreshKind{models.RefreshAvailability, models.RefreshPackages} {
		removed, err := w.registry.PruneExpired(ctx, kind)
		if err != nil {
			return fmt.Errorf("failed to prune %s keys: %w", kind, err)
		}
		if removed > 0 {
			w.logger.Info().Str("kind", string(kind)).Int("removed", removed).Msg("expired refresh keys pruned")
		}
	}
	return nil
}
