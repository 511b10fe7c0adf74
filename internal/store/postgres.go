package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/capitalize-ai/event-assistant/internal/model"
)

// Schema creates the tables used by Postgres.
const Schema = `
CREATE TABLE IF NOT EXISTS places (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	address TEXT NOT NULL DEFAULT '',
	aliases TEXT[] NOT NULL DEFAULT '{}',
	latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS events (
	id BIGSERIAL PRIMARY KEY,
	owner_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	event_type TEXT NOT NULL DEFAULT '',
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	place_ids BIGINT[] NOT NULL DEFAULT '{}',
	place_name TEXT NOT NULL DEFAULT '',
	outdoor BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (start_time < end_time)
);
CREATE INDEX IF NOT EXISTS events_window_idx ON events (start_time, end_time);
CREATE TABLE IF NOT EXISTS ticket_types (
	id BIGSERIAL PRIMARY KEY,
	event_id BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	price BIGINT NOT NULL,
	currency TEXT NOT NULL DEFAULT 'VND',
	remaining INTEGER NOT NULL CHECK (remaining >= 0)
);
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	event_id BIGINT NOT NULL,
	ticket_type_id BIGINT NOT NULL,
	quantity INTEGER NOT NULL,
	participant_name TEXT NOT NULL,
	email TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	amount BIGINT NOT NULL,
	currency TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS reminders (
	id TEXT PRIMARY KEY,
	event_id BIGINT NOT NULL,
	user_id TEXT NOT NULL,
	remind_at TIMESTAMPTZ NOT NULL,
	note TEXT NOT NULL DEFAULT ''
);
`

const eventColumns = "id, owner_id, title, description, event_type, start_time, end_time, place_ids, place_name, outdoor, created_at, updated_at"

// Postgres implements the repositories on PostgreSQL.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// Migrate creates missing tables.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*model.Event, error) {
	var e model.Event
	var placeIDs []int64
	err := row.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Description, &e.EventType,
		&e.StartTime, &e.EndTime, pq.Array(&placeIDs), &e.PlaceName, &e.Outdoor,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.PlaceIDs = placeIDs
	return &e, nil
}

func (s *Postgres) queryEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return out, nil
}

// CreateEvent implements EventRepository.
func (s *Postgres) CreateEvent(ctx context.Context, e *model.Event) (*model.Event, error) {
	var out *model.Event
	err := s.withSlot(ctx, e, func(tx *sql.Tx) error {
		now := s.now()
		row := tx.QueryRowContext(ctx, `
			INSERT INTO events (owner_id, title, description, event_type, start_time, end_time, place_ids, place_name, outdoor, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
			RETURNING `+eventColumns,
			e.OwnerID, e.Title, e.Description, e.EventType, e.StartTime, e.EndTime,
			pq.Array(e.PlaceIDs), e.PlaceName, e.Outdoor, now)
		var err error
		out, err = scanEvent(row)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return out, nil
}

// UpdateEvent implements EventRepository.
func (s *Postgres) UpdateEvent(ctx context.Context, e *model.Event) (*model.Event, error) {
	var out *model.Event
	err := s.withSlot(ctx, e, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			UPDATE events SET title = $2, description = $3, event_type = $4, start_time = $5, end_time = $6,
				place_ids = $7, place_name = $8, outdoor = $9, updated_at = $10
			WHERE id = $1
			RETURNING `+eventColumns,
			e.ID, e.Title, e.Description, e.EventType, e.StartTime, e.EndTime,
			pq.Array(e.PlaceIDs), e.PlaceName, e.Outdoor, s.now())
		var err error
		out, err = scanEvent(row)
		return err
	})
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case errors.Is(err, ErrSlotTaken):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	return out, nil
}

// withSlot runs write in a transaction that holds an advisory lock per
// place of e and has verified no other event overlaps e there.
func (s *Postgres) withSlot(ctx context.Context, e *model.Event, write func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if len(e.PlaceIDs) > 0 {
		if _, err := tx.ExecContext(ctx,
			"SELECT pg_advisory_xact_lock(p) FROM unnest($1::bigint[]) AS p ORDER BY p",
			pq.Array(e.PlaceIDs)); err != nil {
			return fmt.Errorf("lock places: %w", err)
		}
		var taken int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM events
			WHERE place_ids && $1::bigint[] AND start_time < $3 AND end_time > $2 AND id <> $4
			LIMIT 1`,
			pq.Array(e.PlaceIDs), e.StartTime, e.EndTime, e.ID).Scan(&taken)
		switch {
		case err == nil:
			return ErrSlotTaken
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check slot: %w", err)
		}
	}

	if err := write(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteEvent implements EventRepository.
func (s *Postgres) DeleteEvent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetEvent implements EventRepository.
func (s *Postgres) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = $1", id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// ListEventsByOwner implements EventRepository.
func (s *Postgres) ListEventsByOwner(ctx context.Context, ownerID string) ([]model.Event, error) {
	return s.queryEvents(ctx, "SELECT "+eventColumns+" FROM events WHERE owner_id = $1 ORDER BY start_time, id", ownerID)
}

// ListEventsBetween implements EventRepository.
func (s *Postgres) ListEventsBetween(ctx context.Context, start, end time.Time) ([]model.Event, error) {
	return s.queryEvents(ctx, "SELECT "+eventColumns+" FROM events WHERE start_time < $2 AND end_time > $1 ORDER BY start_time, id", start, end)
}

// ListUpcomingEvents implements EventRepository.
func (s *Postgres) ListUpcomingEvents(ctx context.Context, from time.Time, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryEvents(ctx, "SELECT "+eventColumns+" FROM events WHERE start_time >= $1 ORDER BY start_time, id LIMIT $2", from, limit)
}

// ListPlaces implements PlaceRepository.
func (s *Postgres) ListPlaces(ctx context.Context) ([]model.Place, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, address, aliases, latitude, longitude FROM places ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query places: %w", err)
	}
	defer rows.Close()

	var out []model.Place
	for rows.Next() {
		var p model.Place
		var aliases []string
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, pq.Array(&aliases), &p.Latitude, &p.Longitude); err != nil {
			return nil, fmt.Errorf("failed to scan place: %w", err)
		}
		p.Aliases = aliases
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListTicketTypes implements TicketRepository.
func (s *Postgres) ListTicketTypes(ctx context.Context, eventID int64) ([]model.TicketType, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, event_id, name, price, currency, remaining FROM ticket_types WHERE event_id = $1 ORDER BY id", eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticket types: %w", err)
	}
	defer rows.Close()

	var out []model.TicketType
	for rows.Next() {
		var t model.TicketType
		if err := rows.Scan(&t.ID, &t.EventID, &t.Name, &t.Price, &t.Currency, &t.Remaining); err != nil {
			return nil, fmt.Errorf("failed to scan ticket type: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTicketType implements TicketRepository.
func (s *Postgres) GetTicketType(ctx context.Context, id int64) (*model.TicketType, error) {
	var t model.TicketType
	err := s.db.QueryRowContext(ctx,
		"SELECT id, event_id, name, price, currency, remaining FROM ticket_types WHERE id = $1", id).
		Scan(&t.ID, &t.EventID, &t.Name, &t.Price, &t.Currency, &t.Remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket type: %w", err)
	}
	return &t, nil
}

// CreateOrder implements OrderRepository. Tickets are reserved in the same
// transaction as the insert.
func (s *Postgres) CreateOrder(ctx context.Context, o *model.Order) (*model.Order, error) {
	out := *o
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	out.CreatedAt = s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin order: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE ticket_types SET remaining = remaining - $1 WHERE id = $2 AND remaining >= $1",
		out.Quantity, out.TicketTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve tickets: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to reserve tickets: %w", err)
	} else if n == 0 {
		return nil, ErrSoldOut
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, event_id, ticket_type_id, quantity, participant_name, email, phone, amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		out.ID, out.UserID, out.EventID, out.TicketTypeID, out.Quantity, out.ParticipantName,
		out.Email, out.Phone, out.Amount, out.Currency, string(out.Status), out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}
	return &out, nil
}

// CancelOrder implements OrderRepository. The reserved tickets are
// returned in the same transaction. Cancelling twice is a no-op.
func (s *Postgres) CancelOrder(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cancel: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ticketTypeID int64
	var quantity int
	err = tx.QueryRowContext(ctx, `
		UPDATE orders SET status = $2 WHERE id = $1 AND status <> $2
		RETURNING ticket_type_id, quantity`,
		id, string(model.OrderStatusCancelled)).Scan(&ticketTypeID, &quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE ticket_types SET remaining = remaining + $1 WHERE id = $2",
		quantity, ticketTypeID); err != nil {
		return fmt.Errorf("failed to release tickets: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cancel: %w", err)
	}
	return nil
}

// ScheduleReminder implements ReminderScheduler.
func (s *Postgres) ScheduleReminder(ctx context.Context, r *model.Reminder) (*model.Reminder, error) {
	out := *r
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO reminders (id, event_id, user_id, remind_at, note) VALUES ($1, $2, $3, $4, $5)",
		out.ID, out.EventID, out.UserID, out.RemindAt, out.Note)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule reminder: %w", err)
	}
	return &out, nil
}
