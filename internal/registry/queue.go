package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"innsync/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ReservationQueue is the per-destination FIFO of date-block identifiers due
// for revalidation against the external provider. Blocks are identified by
// the YYYY-MM-DD of their first day and are aligned to a fixed epoch grid so
// the rolling schedule is stable across days.
type ReservationQueue struct {
	client *redis.Client
	logger zerolog.Logger
	now    func() time.Time
}

func NewReservationQueue(client *redis.Client, logger *zerolog.Logger) *ReservationQueue {
	return &ReservationQueue{
		client: client,
		logger: logger.With().Str("component", "reservation_queue").Logger(),
		now:    time.Now,
	}
}

// BlockStart returns the start of the epoch-aligned block containing day.
func BlockStart(day time.Time, blockDays int) time.Time {
	if blockDays <= 0 {
		blockDays = models.DefaultReservationBlockDays
	}
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	epochDays := int(d.Unix() / 86400)
	return d.AddDate(0, 0, -(epochDays % blockDays))
}

// ExpectedBlocks generates the rolling schedule: every block from the one
// containing now through now plus horizonMonths.
func ExpectedBlocks(now time.Time, horizonMonths, blockDays int) []time.Time {
	if blockDays <= 0 {
		blockDays = models.DefaultReservationBlockDays
	}
	end := now.AddDate(0, horizonMonths, 0)
	var blocks []time.Time
	for b := BlockStart(now, blockDays); b.Before(end); b = b.AddDate(0, 0, blockDays) {
		blocks = append(blocks, b)
	}
	return blocks
}

// Rotate atomically moves the head block to the tail and returns it. A
// single LMOVE means two overlapping runs can never drop or duplicate a
// block; each run simply advances the ring by one. Returns ok=false when
// the queue is empty.
func (q *ReservationQueue) Rotate(ctx context.Context, destinationID int64) (time.Time, bool, error) {
	if q.client == nil {
		return time.Time{}, false, fmt.Errorf("redis client is nil")
	}

	key := models.ReservationQueueKey(destinationID)
	value, err := q.client.LMove(ctx, key, key, "LEFT", "RIGHT").Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to rotate reservation queue: %w", err)
	}

	block, err := time.Parse(models.DateFormat, value)
	if err != nil {
		// A malformed entry would rotate forever; remove it instead.
		q.logger.Warn().Str("value", value).Int64("destination_id", destinationID).Msg("dropping malformed queue entry")
		if remErr := q.client.LRem(ctx, key, 0, value).Err(); remErr != nil {
			return time.Time{}, false, fmt.Errorf("failed to drop malformed queue entry: %w", remErr)
		}
		return time.Time{}, false, nil
	}
	return block, true, nil
}

// IsExpected reports whether a block is still part of the rolling schedule.
// Blocks rotated out of the schedule are processed as no-ops and removed by
// the next EnsureCoverage pass.
func (q *ReservationQueue) IsExpected(block time.Time, horizonMonths, blockDays int) bool {
	now := q.now()
	current := BlockStart(now, blockDays)
	return !block.Before(current) && block.Before(now.AddDate(0, horizonMonths, 0))
}

// EnsureCoverage appends schedule blocks missing from the queue and removes
// entries that fell out of the schedule. The queue is read once and the
// corrections are computed against that snapshot, never while iterating the
// live list.
func (q *ReservationQueue) EnsureCoverage(ctx context.Context, destinationID int64, horizonMonths, blockDays int) error {
	if q.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	key := models.ReservationQueueKey(destinationID)
	current, err := q.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read reservation queue: %w", err)
	}

	present := make(map[string]bool, len(current))
	for _, value := range current {
		present[value] = true
	}

	expected := make(map[string]bool)
	var missing []interface{}
	for _, block := range ExpectedBlocks(q.now(), horizonMonths, blockDays) {
		value := block.Format(models.DateFormat)
		expected[value] = true
		if !present[value] {
			missing = append(missing, value)
		}
	}

	var stale []string
	for _, value := range current {
		if !expected[value] {
			stale = append(stale, value)
		}
	}

	if len(missing) > 0 {
		if err := q.client.RPush(ctx, key, missing...).Err(); err != nil {
			return fmt.Errorf("failed to extend reservation queue: %w", err)
		}
	}
	for _, value := range stale {
		if err := q.client.LRem(ctx, key, 0, value).Err(); err != nil {
			return fmt.Errorf("failed to trim reservation queue: %w", err)
		}
	}

	if len(missing) > 0 || len(stale) > 0 {
		q.logger.Debug().
			Int64("destination_id", destinationID).
			Int("added", len(missing)).
			Int("removed", len(stale)).
			Msg("reservation queue coverage adjusted")
	}
	return nil
}
