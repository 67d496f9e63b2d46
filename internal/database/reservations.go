package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"innsync/internal/models"
	"innsync/internal/provider"
)

// CreateReservation inserts a local reservation record and returns its row id.
func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) (int64, error) {
	query := `INSERT INTO reservations
        (confirmation_id, destination_id, accommodation_id, guest_name, adults,
         check_in, check_out, total_price, status)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := db.db.ExecContext(ctx, query,
		r.ConfirmationID, r.DestinationID, r.AccommodationID, r.GuestName,
		r.Adults, r.CheckIn, r.CheckOut, r.TotalPrice, r.Status)
	if err != nil {
		return 0, fmt.Errorf("failed to create reservation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get reservation id: %w", err)
	}
	return id, nil
}

// GetReservationByConfirmation returns nil when no record matches.
func (db *DB) GetReservationByConfirmation(ctx context.Context, confirmationID string) (*models.Reservation, error) {
	query := `SELECT id, confirmation_id, destination_id, accommodation_id, guest_name,
        adults, check_in, check_out, total_price, status, created_at, updated_at, last_revalidated
        FROM reservations WHERE confirmation_id = ?`

	r, err := scanReservation(db.db.QueryRowContext(ctx, query, confirmationID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation %s: %w", confirmationID, err)
	}
	return r, nil
}

// ListStaysIntersecting returns every non-cancelled reservation of a
// destination whose stay overlaps the half-open interval [from, to).
func (db *DB) ListStaysIntersecting(ctx context.Context, destinationID int64, from, to time.Time) ([]models.Reservation, error) {
	query := `SELECT id, confirmation_id, destination_id, accommodation_id, guest_name,
        adults, check_in, check_out, total_price, status, created_at, updated_at, last_revalidated
        FROM reservations
        WHERE destination_id = ? AND check_in < ? AND check_out > ? AND status != ?
        ORDER BY check_in`

	rows, err := db.db.QueryContext(ctx, query, destinationID, to, from, models.ReservationCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, *r)
	}
	return reservations, rows.Err()
}

// UpdateFromProvider overwrites the local record with the provider's
// authoritative state and stamps the revalidation time.
func (db *DB) UpdateFromProvider(ctx context.Context, confirmationID string, state *provider.ReservationState) error {
	query := `UPDATE reservations
        SET accommodation_id = ?, check_in = ?, check_out = ?, total_price = ?,
            status = ?, updated_at = CURRENT_TIMESTAMP, last_revalidated = CURRENT_TIMESTAMP
        WHERE confirmation_id = ?`

	result, err := db.db.ExecContext(ctx, query,
		state.AccommodationID, state.CheckIn, state.CheckOut, state.TotalPrice,
		state.Status, confirmationID)
	if err != nil {
		return fmt.Errorf("failed to update reservation %s: %w", confirmationID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("reservation %s not found", confirmationID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	var lastRevalidated sql.NullTime
	err := row.Scan(&r.ID, &r.ConfirmationID, &r.DestinationID, &r.AccommodationID,
		&r.GuestName, &r.Adults, &r.CheckIn, &r.CheckOut, &r.TotalPrice, &r.Status,
		&r.CreatedAt, &r.UpdatedAt, &lastRevalidated)
	if err != nil {
		return nil, err
	}
	if lastRevalidated.Valid {
		r.LastRevalidated = lastRevalidated.Time
	}
	return &r, nil
}
