package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ovenbook/internal/booking"
	"ovenbook/internal/model"
)

// WithTransaction runs fn inside one database transaction. SQLite takes the
// write lock at BEGIN; PostgreSQL runs at SERIALIZABLE and locks the oven and
// booking rows it reads. fn's error rolls everything back and is returned
// unchanged.
func (db *DB) WithTransaction(ctx context.Context, fn func(tx booking.Tx) error) (err error) {
	ctx, span := db.tracer.Start(ctx, "db.transaction",
		trace.WithAttributes(attribute.String("db.system", string(db.dialect))),
	)
	defer func() {
		if err != nil && !booking.IsRejection(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if booking.IsRejection(err) {
			span.SetAttributes(attribute.String("booking.rejection", string(booking.CodeOf(err))))
		}
		span.End()
	}()

	var opts *sql.TxOptions
	if db.dialect == DialectPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}

	sqlTx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&tx{db: db, tx: sqlTx}); err != nil {
		if booking.IsRejection(err) {
			return err
		}
		return classify(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

type tx struct {
	db *DB
	tx *sql.Tx
}

func (t *tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.db.rebind(query), args...)
}

func (t *tx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.db.rebind(query), args...)
}

func (t *tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.db.rebind(query), args...)
}

// forUpdate locks selected rows on PostgreSQL. SQLite already holds the
// database write lock.
func (t *tx) forUpdate() string {
	if t.db.dialect == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

const ovenColumns = `id, name, type, status, max_temp, created_at, updated_at`

func scanOven(row interface{ Scan(...any) error }) (*model.Oven, error) {
	var o model.Oven
	if err := row.Scan(&o.ID, &o.Name, &o.Type, &o.Status, &o.MaxTemp, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

func (t *tx) GetOven(ctx context.Context, id int64) (*model.Oven, error) {
	o, err := scanOven(t.queryRow(ctx, `SELECT `+ovenColumns+` FROM ovens WHERE id = ?`+t.forUpdate(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (t *tx) ListOvens(ctx context.Context) ([]*model.Oven, error) {
	rows, err := t.query(ctx, `SELECT `+ovenColumns+` FROM ovens ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Oven
	for rows.Next() {
		o, err := scanOven(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *tx) InsertOven(ctx context.Context, o *model.Oven) error {
	if t.db.dialect == DialectPostgres {
		if o.ID != 0 {
			if _, err := t.exec(ctx,
				`INSERT INTO ovens (id, name, type, status, max_temp, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				o.ID, o.Name, o.Type, o.Status, o.MaxTemp, t.db.ts(o.CreatedAt), t.db.ts(o.UpdatedAt),
			); err != nil {
				return err
			}
			// keep the sequence ahead of explicit ids
			_, err := t.exec(ctx, `SELECT setval(pg_get_serial_sequence('ovens', 'id'), (SELECT MAX(id) FROM ovens))`)
			return err
		}
		return t.queryRow(ctx,
			`INSERT INTO ovens (name, type, status, max_temp, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
			o.Name, o.Type, o.Status, o.MaxTemp, t.db.ts(o.CreatedAt), t.db.ts(o.UpdatedAt),
		).Scan(&o.ID)
	}

	var id any
	if o.ID != 0 {
		id = o.ID
	}
	res, err := t.exec(ctx,
		`INSERT INTO ovens (id, name, type, status, max_temp, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, o.Name, o.Type, o.Status, o.MaxTemp, t.db.ts(o.CreatedAt), t.db.ts(o.UpdatedAt),
	)
	if err != nil {
		return err
	}
	if o.ID == 0 {
		o.ID, err = res.LastInsertId()
	}
	return err
}

func (t *tx) UpdateOven(ctx context.Context, o *model.Oven) error {
	res, err := t.exec(ctx,
		`UPDATE ovens SET name = ?, type = ?, status = ?, max_temp = ?, updated_at = ? WHERE id = ?`,
		o.Name, o.Type, o.Status, o.MaxTemp, t.db.ts(o.UpdatedAt), o.ID,
	)
	if err != nil {
		return err
	}
	return expectOne(res, "oven", o.ID)
}

func (t *tx) DeleteOven(ctx context.Context, id int64) error {
	res, err := t.exec(ctx, `DELETE FROM ovens WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res, "oven", id)
}

func (t *tx) CountOvenBookings(ctx context.Context, ovenID int64) (int, error) {
	var n int
	err := t.queryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE oven_id = ?`, ovenID).Scan(&n)
	return n, err
}

const bookingColumns = `id, owner_id, oven_id, start_date, end_date, purpose, usage_temp, flap, status,
	created_at, updated_at, cancelled_at, cancelled_by, cancel_reason, deleted_at, deleted_by`

// activeClause selects ACTIVE, non-deleted bookings.
const activeClause = `status = 'ACTIVE' AND deleted_at IS NULL`

func scanBooking(row interface{ Scan(...any) error }) (*model.Booking, error) {
	var (
		b                         model.Booking
		cancelledAt, deletedAt    sql.NullTime
		cancelledBy, cancelReason sql.NullString
		deletedBy                 sql.NullString
	)
	err := row.Scan(
		&b.ID, &b.OwnerID, &b.OvenID, &b.StartDate, &b.EndDate, &b.Purpose, &b.UsageTemp, &b.Flap, &b.Status,
		&b.CreatedAt, &b.UpdatedAt, &cancelledAt, &cancelledBy, &cancelReason, &deletedAt, &deletedBy,
	)
	if err != nil {
		return nil, err
	}
	b.StartDate = b.StartDate.UTC()
	b.EndDate = b.EndDate.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	b.CancelledAt = nullTime(cancelledAt)
	b.CancelledBy = nullString(cancelledBy)
	b.CancelReason = nullString(cancelReason)
	b.DeletedAt = nullTime(deletedAt)
	b.DeletedBy = nullString(deletedBy)
	return &b, nil
}

func (t *tx) scanBookings(rows *sql.Rows) ([]*model.Booking, error) {
	defer rows.Close()
	var out []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (t *tx) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(t.queryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`+t.forUpdate(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (t *tx) CountActiveBookings(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := t.queryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE owner_id = ? AND `+activeClause, ownerID).Scan(&n)
	return n, err
}

func (t *tx) FindOverlapping(ctx context.Context, ovenID int64, start, end time.Time, excludeID string) (*model.Booking, error) {
	b, err := scanBooking(t.queryRow(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE oven_id = ? AND `+activeClause+`
		AND id <> ?
		AND start_date < ? AND end_date > ?
		ORDER BY start_date, id
		LIMIT 1`,
		ovenID, excludeID, t.db.ts(end), t.db.ts(start),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (t *tx) ListActiveOnOven(ctx context.Context, ovenID int64) ([]*model.Booking, error) {
	rows, err := t.query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE oven_id = ? AND `+activeClause+` ORDER BY start_date, id`+t.forUpdate(), ovenID)
	if err != nil {
		return nil, err
	}
	return t.scanBookings(rows)
}

func (t *tx) ListActiveEndedBefore(ctx context.Context, cutoff time.Time) ([]*model.Booking, error) {
	rows, err := t.query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE `+activeClause+` AND end_date < ? ORDER BY start_date, id`+t.forUpdate(), t.db.ts(cutoff))
	if err != nil {
		return nil, err
	}
	return t.scanBookings(rows)
}

func (t *tx) ListBookings(ctx context.Context, f model.BookingFilter) ([]*model.Booking, error) {
	var (
		where []string
		args  []any
	)
	if !f.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.OvenID != 0 {
		where = append(where, "oven_id = ?")
		args = append(args, f.OvenID)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.From != nil {
		where = append(where, "end_date > ?")
		args = append(args, t.db.ts(*f.From))
	}
	if f.To != nil {
		where = append(where, "start_date < ?")
		args = append(args, t.db.ts(*f.To))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_date, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return t.scanBookings(rows)
}

func (t *tx) InsertBooking(ctx context.Context, b *model.Booking) error {
	_, err := t.exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OwnerID, b.OvenID, t.db.ts(b.StartDate), t.db.ts(b.EndDate), b.Purpose, b.UsageTemp, b.Flap, b.Status,
		t.db.ts(b.CreatedAt), t.db.ts(b.UpdatedAt),
		t.db.nullTS(b.CancelledAt), b.CancelledBy, b.CancelReason, t.db.nullTS(b.DeletedAt), b.DeletedBy,
	)
	return err
}

func (t *tx) UpdateBooking(ctx context.Context, b *model.Booking) error {
	res, err := t.exec(ctx, `
		UPDATE bookings SET
			oven_id = ?, start_date = ?, end_date = ?, purpose = ?, usage_temp = ?, flap = ?, status = ?,
			updated_at = ?, cancelled_at = ?, cancelled_by = ?, cancel_reason = ?, deleted_at = ?, deleted_by = ?
		WHERE id = ?`,
		b.OvenID, t.db.ts(b.StartDate), t.db.ts(b.EndDate), b.Purpose, b.UsageTemp, b.Flap, b.Status,
		t.db.ts(b.UpdatedAt), t.db.nullTS(b.CancelledAt), b.CancelledBy, b.CancelReason,
		t.db.nullTS(b.DeletedAt), b.DeletedBy,
		b.ID,
	)
	if err != nil {
		return err
	}
	return expectOne(res, "booking", b.ID)
}

func (t *tx) AppendEvent(ctx context.Context, e *model.BookingEvent) error {
	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}
	_, err := t.exec(ctx, `
		INSERT INTO booking_events (id, booking_id, actor_id, actor_type, event_type, note, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.BookingID, e.ActorID, e.ActorType, e.EventType, e.Note, payload, t.db.ts(e.CreatedAt),
	)
	return err
}

func (t *tx) ListEvents(ctx context.Context, bookingID string) ([]*model.BookingEvent, error) {
	rows, err := t.query(ctx, `
		SELECT id, booking_id, actor_id, actor_type, event_type, note, payload, created_at
		FROM booking_events WHERE booking_id = ? ORDER BY seq`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.BookingEvent
	for rows.Next() {
		var (
			e       model.BookingEvent
			actorID sql.NullString
			payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.BookingID, &actorID, &e.ActorType, &e.EventType, &e.Note, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorID = nullString(actorID)
		if payload.Valid && payload.String != "" {
			e.Payload = json.RawMessage(payload.String)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

func expectOne(res sql.Result, kind string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%s %v: %d rows affected", kind, id, n)
	}
	return nil
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
