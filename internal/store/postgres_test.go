package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/event-assistant/internal/model"
)

var (
	_ EventRepository   = (*Postgres)(nil)
	_ PlaceRepository   = (*Postgres)(nil)
	_ TicketRepository  = (*Postgres)(nil)
	_ OrderRepository   = (*Postgres)(nil)
	_ ReminderScheduler = (*Postgres)(nil)
)

var eventCols = []string{"id", "owner_id", "title", "description", "event_type", "start_time", "end_time", "place_ids", "place_name", "outdoor", "created_at", "updated_at"}

func newMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

func TestPostgres_GetEvent(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()
	start := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner_id, title")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow(int64(7), "u1", "Gala", "", "gala", start, start.Add(2*time.Hour), "{1,2}", "Main Hall", false, start, start))

	e, err := s.GetEvent(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Gala", e.Title)
	assert.Equal(t, []int64{1, 2}, e.PlaceIDs)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner_id, title")).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows(eventCols))

	_, err = s.GetEvent(ctx, 8)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListEventsBetween(t *testing.T) {
	s, mock := newMock(t)
	start := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE start_time < $2 AND end_time > $1")).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow(int64(1), "u1", "A", "", "", start, end, "{3}", "", false, start, start).
			AddRow(int64(2), "u2", "B", "", "", start, end, "{}", "", true, start, start))

	got, err := s.ListEventsBetween(context.Background(), start, end)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []int64{3}, got[0].PlaceIDs)
	assert.True(t, got[1].Outdoor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateEvent(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2025, 1, 14, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	start := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(p)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM events")).
		WithArgs(sqlmock.AnyArg(), start, start.Add(time.Hour), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO events")).
		WithArgs("u1", "Workshop", "", "", start, start.Add(time.Hour), sqlmock.AnyArg(), "Main Hall", false, now).
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow(int64(11), "u1", "Workshop", "", "", start, start.Add(time.Hour), "{1}", "Main Hall", false, now, now))
	mock.ExpectCommit()

	e, err := s.CreateEvent(context.Background(), &model.Event{
		OwnerID: "u1", Title: "Workshop", StartTime: start, EndTime: start.Add(time.Hour),
		PlaceIDs: []int64{1}, PlaceName: "Main Hall",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), e.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateEvent_SlotTaken(t *testing.T) {
	s, mock := newMock(t)
	start := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(p)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM events")).
		WithArgs(sqlmock.AnyArg(), start, start.Add(time.Hour), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectRollback()

	_, err := s.CreateEvent(context.Background(), &model.Event{
		OwnerID: "u2", Title: "Workshop", StartTime: start, EndTime: start.Add(time.Hour), PlaceIDs: []int64{1},
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateEvent_WithoutPlaceSkipsSlotCheck(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2025, 1, 14, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	start := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO events")).
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow(int64(12), "u1", "Gọi điện", "", "", start, start.Add(time.Hour), "{}", "", false, now, now))
	mock.ExpectCommit()

	e, err := s.CreateEvent(context.Background(), &model.Event{
		OwnerID: "u1", Title: "Gọi điện", StartTime: start, EndTime: start.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), e.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteEvent(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events WHERE id = $1")).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events WHERE id = $1")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, s.DeleteEvent(context.Background(), 1))
	assert.ErrorIs(t, s.DeleteEvent(context.Background(), 2), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListPlaces(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, address, aliases, latitude, longitude FROM places")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "address", "aliases", "latitude", "longitude"}).
			AddRow(int64(1), "Main Hall", "1 Main St", `{"Hội trường chính","Hall A"}`, 21.0, 105.8))

	got, err := s.ListPlaces(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"Hội trường chính", "Hall A"}, got[0].Aliases)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateOrder(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ticket_types SET remaining = remaining - $1")).
		WithArgs(int64(2), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).
		WithArgs(sqlmock.AnyArg(), "u1", int64(9), int64(5), int64(2), "An", "an@example.com", "", int64(400000), "VND", "awaiting_payment", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	o, err := s.CreateOrder(context.Background(), &model.Order{
		UserID: "u1", EventID: 9, TicketTypeID: 5, Quantity: 2, ParticipantName: "An",
		Email: "an@example.com", Amount: 400000, Currency: "VND", Status: model.OrderStatusAwaitingPayment,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateOrder_SoldOut(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ticket_types")).
		WithArgs(int64(3), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.CreateOrder(context.Background(), &model.Order{TicketTypeID: 5, Quantity: 3})
	assert.ErrorIs(t, err, ErrSoldOut)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CancelOrder(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE orders SET status = $2")).
		WithArgs("o1", "cancelled").
		WillReturnRows(sqlmock.NewRows([]string{"ticket_type_id", "quantity"}).AddRow(int64(5), int64(2)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ticket_types SET remaining = remaining + $1")).
		WithArgs(int64(2), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE orders SET status = $2")).
		WithArgs("o1", "cancelled").
		WillReturnRows(sqlmock.NewRows([]string{"ticket_type_id", "quantity"}))
	mock.ExpectRollback()

	require.NoError(t, s.CancelOrder(context.Background(), "o1"))
	require.NoError(t, s.CancelOrder(context.Background(), "o1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetTicketType_NotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM ticket_types WHERE id = $1")).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "name", "price", "currency", "remaining"}))

	_, err := s.GetTicketType(context.Background(), 4)
	assert.ErrorIs(t, err, ErrNotFound)
}
