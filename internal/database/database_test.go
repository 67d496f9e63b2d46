package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"innsync/internal/models"
	"innsync/internal/provider"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleReservation(confirmation string, destID int64, checkIn time.Time, nights int) *models.Reservation {
	return &models.Reservation{
		ConfirmationID:  confirmation,
		DestinationID:   destID,
		AccommodationID: 7,
		GuestName:       "Jamie Woods",
		Adults:          2,
		CheckIn:         checkIn,
		CheckOut:        checkIn.AddDate(0, 0, nights),
		TotalPrice:      240,
		Status:          models.ReservationConfirmed,
	}
}

func TestCreateAndGetReservation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	checkIn := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	id, err := db.CreateReservation(ctx, sampleReservation("CNF-1", 1, checkIn, 2))
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := db.GetReservationByConfirmation(ctx, "CNF-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "CNF-1", got.ConfirmationID)
	assert.Equal(t, int64(1), got.DestinationID)
	assert.True(t, got.CheckIn.Equal(checkIn))
	assert.True(t, got.LastRevalidated.IsZero())

	missing, err := db.GetReservationByConfirmation(ctx, "CNF-404")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateReservationDuplicateConfirmation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	checkIn := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	_, err := db.CreateReservation(ctx, sampleReservation("CNF-1", 1, checkIn, 2))
	require.NoError(t, err)

	_, err = db.CreateReservation(ctx, sampleReservation("CNF-1", 1, checkIn, 2))
	assert.Error(t, err)
}

func TestListStaysIntersecting(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	day := func(d int) time.Time {
		return time.Date(2024, time.June, d, 0, 0, 0, 0, time.UTC)
	}

	// Stays relative to the block [10, 17): before, overlapping the start,
	// inside, overlapping the end, after, cancelled inside, other destination.
	seed := []struct {
		confirmation string
		destID       int64
		checkIn      time.Time
		nights       int
		status       string
	}{
		{"BEFORE", 1, day(5), 3, models.ReservationConfirmed},
		{"SPANS-START", 1, day(8), 4, models.ReservationConfirmed},
		{"INSIDE", 1, day(12), 2, models.ReservationConfirmed},
		{"SPANS-END", 1, day(16), 3, models.ReservationConfirmed},
		{"AFTER", 1, day(20), 2, models.ReservationConfirmed},
		{"CANCELLED", 1, day(12), 2, models.ReservationCancelled},
		{"OTHER-DEST", 2, day(12), 2, models.ReservationConfirmed},
	}
	for _, s := range seed {
		r := sampleReservation(s.confirmation, s.destID, s.checkIn, s.nights)
		r.Status = s.status
		_, err := db.CreateReservation(ctx, r)
		require.NoError(t, err)
	}

	stays, err := db.ListStaysIntersecting(ctx, 1, day(10), day(17))
	require.NoError(t, err)

	var ids []string
	for _, s := range stays {
		ids = append(ids, s.ConfirmationID)
	}
	assert.Equal(t, []string{"SPANS-START", "INSIDE", "SPANS-END"}, ids)
}

func TestUpdateFromProvider(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	checkIn := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	_, err := db.CreateReservation(ctx, sampleReservation("CNF-1", 1, checkIn, 2))
	require.NoError(t, err)

	state := &provider.ReservationState{
		ConfirmationID:  "CNF-1",
		AccommodationID: 9,
		Status:          models.ReservationModified,
		CheckIn:         checkIn.AddDate(0, 0, 1),
		CheckOut:        checkIn.AddDate(0, 0, 4),
		TotalPrice:      360,
	}
	require.NoError(t, db.UpdateFromProvider(ctx, "CNF-1", state))

	got, err := db.GetReservationByConfirmation(ctx, "CNF-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(9), got.AccommodationID)
	assert.Equal(t, models.ReservationModified, got.Status)
	assert.Equal(t, 360.0, got.TotalPrice)
	assert.False(t, got.LastRevalidated.IsZero())

	err = db.UpdateFromProvider(ctx, "CNF-404", state)
	assert.Error(t, err)
}
