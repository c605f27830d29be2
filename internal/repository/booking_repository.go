package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/stayops/ota-bridge/internal/model"
)

// BookingRepo provides access to the bookings table.  Bookings embed
// their OTA amendments, amendment flags and status history as JSON
// columns; room assignments live in the booking_rooms join table.
// All timestamps are stored in UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying handle for callers that need to open a
// transaction spanning multiple repositories.
func (r *BookingRepo) DB() *sql.DB { return r.db }

const bookingColumns = `id, tenant_id, channel, channel_booking_id, status,
	   check_in, check_out, total_amount, currency,
	   guest, special_requests, ota_amendments, amendment_flags, status_history,
	   version, created_at, updated_at`

// GetByID loads a booking together with its embedded amendments and
// room assignments.  It returns ErrBookingNotFound when no row exists.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	row := r.db.QueryRowContext(ctx, q, id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	rooms, err := r.roomIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	b.RoomIDs = rooms
	return b, nil
}

// SaveVersioned persists the mutable part of the booking aggregate
// using optimistic concurrency: the UPDATE only applies when the
// stored version still matches b.Version.  On success b.Version is
// incremented to match the row; when the row moved on underneath the
// caller, ErrVersionConflict is returned and nothing is written.
func (r *BookingRepo) SaveVersioned(ctx context.Context, b *model.Booking) error {
	guest, err := json.Marshal(b.Guest)
	if err != nil {
		return err
	}
	amendments, err := json.Marshal(b.OTAAmendments)
	if err != nil {
		return err
	}
	flags, err := json.Marshal(b.Flags)
	if err != nil {
		return err
	}
	history, err := json.Marshal(b.StatusHistory)
	if err != nil {
		return err
	}
	const q = `UPDATE bookings
			   SET status = ?, check_in = ?, check_out = ?, total_amount = ?,
				   guest = ?, special_requests = ?, ota_amendments = ?, amendment_flags = ?, status_history = ?,
				   version = version + 1, updated_at = UTC_TIMESTAMP()
			   WHERE id = ? AND version = ?`
	res, err := r.db.ExecContext(ctx, q,
		b.Status, b.CheckIn.UTC(), b.CheckOut.UTC(), b.TotalAmount,
		guest, b.SpecialRequests, amendments, flags, history,
		b.ID, b.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	b.Version++
	return nil
}

// FindRoomOverlaps returns the IDs of the requested rooms that are
// already taken by another active booking overlapping the proposed
// stay interval.  The booking identified by excludeBookingID is left
// out of the check so a booking never conflicts with itself.  An empty
// result means every requested room is free for the interval.
func (r *BookingRepo) FindRoomOverlaps(ctx context.Context, excludeBookingID uint64, roomIDs []uint64, checkIn, checkOut time.Time) ([]uint64, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, 0, len(roomIDs))
	args := make([]interface{}, 0, len(roomIDs)+3)
	for _, id := range roomIDs {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	args = append(args, excludeBookingID, checkOut.UTC(), checkIn.UTC())
	q := `SELECT DISTINCT br.room_id
		  FROM booking_rooms br
		  JOIN bookings b ON b.id = br.booking_id
		  WHERE br.room_id IN (` + strings.Join(placeholders, ",") + `)
			AND b.id <> ?
			AND b.status IN ('pending','confirmed','checked_in','modified')
			AND b.check_in < ? AND b.check_out > ?`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var taken []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		taken = append(taken, id)
	}
	return taken, rows.Err()
}

// ReplaceRooms rewrites the booking_rooms rows for a booking.  It is
// called when an approved room_change amendment reassigns rooms.
func (r *BookingRepo) ReplaceRooms(ctx context.Context, bookingID uint64, roomIDs []uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_rooms WHERE booking_id = ?`, bookingID); err != nil {
		return err
	}
	if len(roomIDs) > 0 {
		q := `INSERT INTO booking_rooms (booking_id, room_id) VALUES `
		args := make([]interface{}, 0, len(roomIDs)*2)
		for i, id := range roomIDs {
			if i > 0 {
				q += ","
			}
			q += "(?, ?)"
			args = append(args, bookingID, id)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (r *BookingRepo) roomIDs(ctx context.Context, bookingID uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT room_id FROM booking_rooms WHERE booking_id = ? ORDER BY room_id`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var b model.Booking
	var guest, amendments, flags, history []byte
	err := row.Scan(
		&b.ID, &b.TenantID, &b.Channel, &b.ChannelBookingID, &b.Status,
		&b.CheckIn, &b.CheckOut, &b.TotalAmount, &b.Currency,
		&guest, &b.SpecialRequests, &amendments, &flags, &history,
		&b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(guest) > 0 {
		if err := json.Unmarshal(guest, &b.Guest); err != nil {
			return nil, err
		}
	}
	if len(amendments) > 0 {
		if err := json.Unmarshal(amendments, &b.OTAAmendments); err != nil {
			return nil, err
		}
	}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &b.Flags); err != nil {
			return nil, err
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &b.StatusHistory); err != nil {
			return nil, err
		}
	}
	return &b, nil
}
