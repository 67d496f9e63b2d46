package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"innsync/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RefreshKeyRegistry owns the sparse "needs refresh" queues, one sorted set
// per data kind. Members encode (destinationID, year, month); scores are
// synthetic strictly-increasing timestamps, so ascending score order is
// staleness priority and each value has at most one live key.
type RefreshKeyRegistry struct {
	client *redis.Client
	logger zerolog.Logger

	mu     sync.Mutex
	lastTS int64
	now    func() time.Time
}

func NewRefreshKeyRegistry(client *redis.Client, logger *zerolog.Logger) *RefreshKeyRegistry {
	return &RefreshKeyRegistry{
		client: client,
		logger: logger.With().Str("component", "refresh_registry").Logger(),
		now:    time.Now,
	}
}

// nextTimestamp returns a strictly-increasing counter seeded from the clock.
func (r *RefreshKeyRegistry) nextTimestamp() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now().UnixMicro()
	if ts <= r.lastTS {
		ts = r.lastTS + 1
	}
	r.lastTS = ts
	return ts
}

// ListDue returns up to limit keys in ascending timestamp order, oldest
// first. State is not mutated; callers commit completion via Touch.
func (r *RefreshKeyRegistry) ListDue(ctx context.Context, kind models.RefreshKind, limit int) ([]models.RefreshKey, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if limit <= 0 {
		return nil, nil
	}

	entries, err := r.client.ZRangeWithScores(ctx, models.RefreshSetKey(kind), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list due refresh keys: %w", err)
	}

	keys := make([]models.RefreshKey, 0, len(entries))
	for _, entry := range entries {
		value, ok := entry.Member.(string)
		if !ok {
			continue
		}
		destID, year, month, err := models.DecodeRefreshValue(value)
		if err != nil {
			r.logger.Warn().Str("value", value).Msg("skipping malformed refresh key")
			continue
		}
		keys = append(keys, models.RefreshKey{
			Timestamp:     int64(entry.Score),
			DestinationID: destID,
			Year:          year,
			Month:         month,
		})
	}
	return keys, nil
}

// Touch re-inserts the key for (destinationID, year, month) with a fresh
// timestamp, moving it to the back of the queue. ZADD replaces the score of
// an existing member, so touching twice leaves exactly one key.
func (r *RefreshKeyRegistry) Touch(ctx context.Context, kind models.RefreshKind, destinationID int64, year int, month time.Month) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	member := redis.Z{
		Score:  float64(r.nextTimestamp()),
		Member: models.EncodeRefreshValue(destinationID, year, month),
	}
	if err := r.client.ZAdd(ctx, models.RefreshSetKey(kind), member).Err(); err != nil {
		return fmt.Errorf("failed to touch refresh key: %w", err)
	}
	return nil
}

// EnsureCoverage guarantees exactly one key exists for the destination for
// each of the next horizonMonths months, wrapping past December. Existing
// keys keep their queue position; only missing months are inserted.
func (r *RefreshKeyRegistry) EnsureCoverage(ctx context.Context, kind models.RefreshKind, destinationID int64, horizonMonths int) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	existing, err := r.client.ZRange(ctx, models.RefreshSetKey(kind), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read refresh keys: %w", err)
	}

	covered := make(map[string]bool, len(existing))
	for _, value := range existing {
		destID, _, _, err := models.DecodeRefreshValue(value)
		if err != nil || destID != destinationID {
			continue
		}
		covered[value] = true
	}

	var missing []redis.Z
	for _, month := range models.MonthsAhead(r.now(), horizonMonths) {
		value := models.EncodeRefreshValue(destinationID, month.Year, month.Month)
		if covered[value] {
			continue
		}
		missing = append(missing, redis.Z{
			Score:  float64(r.nextTimestamp()),
			Member: value,
		})
	}
	if len(missing) == 0 {
		return nil
	}

	if err := r.client.ZAdd(ctx, models.RefreshSetKey(kind), missing...).Err(); err != nil {
		return fmt.Errorf("failed to insert refresh keys: %w", err)
	}
	r.logger.Debug().
		Str("kind", string(kind)).
		Int64("destination_id", destinationID).
		Int("inserted", len(missing)).
		Msg("refresh coverage extended")
	return nil
}

// PruneExpired removes every key whose month lies strictly before the
// current month. Expired members are collected first and removed in one
// call; the set is never mutated while being iterated.
func (r *RefreshKeyRegistry) PruneExpired(ctx context.Context, kind models.RefreshKind) (int, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	values, err := r.client.ZRange(ctx, models.RefreshSetKey(kind), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read refresh keys: %w", err)
	}

	now := r.now()
	var expired []interface{}
	for _, value := range values {
		destID, year, month, err := models.DecodeRefreshValue(value)
		if err != nil {
			// Malformed members cannot be rescheduled; drop them too.
			expired = append(expired, value)
			continue
		}
		key := models.RefreshKey{DestinationID: destID, Year: year, Month: month}
		if key.Expired(now) {
			expired = append(expired, value)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	if err := r.client.ZRem(ctx, models.RefreshSetKey(kind), expired...).Err(); err != nil {
		return 0, fmt.Errorf("failed to prune refresh keys: %w", err)
	}
	return len(expired), nil
}
