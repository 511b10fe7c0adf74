package ordering

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/event-assistant/internal/model"
	"github.com/capitalize-ai/event-assistant/internal/security"
	"github.com/capitalize-ai/event-assistant/internal/store"
)

type fakeExec struct {
	calls int
	err   error
}

func (f *fakeExec) Commit(_ context.Context, o *model.PendingOrder) (*model.OrderReceipt, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &model.OrderReceipt{
		Order:   &model.Order{ID: "o-1", Quantity: o.Quantity},
		Payment: &model.PaymentLink{URL: "https://pay.example.com/checkout?order=o-1"},
	}, nil
}

var clock = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Negotiator, *fakeExec, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	start := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	ev, err := mem.CreateEvent(context.Background(), &model.Event{
		OwnerID: "org", Title: "Workshop Go", StartTime: start, EndTime: start.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	mem.AddTicketType(model.TicketType{EventID: ev.ID, Name: "Thường", Price: 200000, Currency: "VND", Remaining: 10})
	mem.AddTicketType(model.TicketType{EventID: ev.ID, Name: "VIP", Price: 500000, Currency: "VND", Remaining: 2})

	exec := &fakeExec{}
	n := NewNegotiator(mem, mem, exec, security.NewGate(nil, nil), nil,
		WithClock(func() time.Time { return clock }))
	return n, exec, mem
}

func orderAction(args model.Args) model.Action {
	return model.Action{Tool: model.ToolOrderTicket, Args: args}
}

func TestNegotiator_FullFlow(t *testing.T) {
	ctx := context.Background()
	n, exec, _ := setup(t)

	res, err := n.Start(ctx, "u1", orderAction(model.Args{}))
	require.NoError(t, err)
	assert.Equal(t, Awaiting, res.Status)
	assert.Equal(t, model.StepSelectEvent, res.Order.Step)
	assert.Contains(t, res.Prompt, "1. Workshop Go")

	res, err = n.Advance(ctx, res.Order, "1")
	require.NoError(t, err)
	assert.Equal(t, model.StepSelectTicket, res.Order.Step)
	assert.Contains(t, res.Prompt, "2. VIP")

	res, err = n.Advance(ctx, res.Order, "2 vé VIP")
	require.NoError(t, err)
	assert.Equal(t, model.StepCollectInfo, res.Order.Step)
	assert.Equal(t, 2, res.Order.Quantity)
	assert.Equal(t, "VIP", res.Order.TicketTypeName)
	assert.Equal(t, int64(500000), res.Order.UnitPrice)

	res, err = n.Advance(ctx, res.Order, "Nguyễn Văn An, an@example.com, 0901 234 567")
	require.NoError(t, err)
	assert.Equal(t, model.StepConfirmOrder, res.Order.Step)
	assert.Equal(t, "Nguyễn Văn An", res.Order.ParticipantName)
	assert.Equal(t, "an@example.com", res.Order.Email)
	assert.Equal(t, "0901234567", res.Order.Phone)
	assert.Contains(t, res.Prompt, "1000000 VND")
	assert.Zero(t, exec.calls)

	res, err = n.Advance(ctx, res.Order, "có")
	require.NoError(t, err)
	assert.Equal(t, Committed, res.Status)
	assert.Equal(t, 1, exec.calls)
	assert.Contains(t, res.Prompt, "https://pay.example.com/checkout?order=o-1")
}

func TestNegotiator_StartSkipsFilledSteps(t *testing.T) {
	n, _, _ := setup(t)

	res, err := n.Start(context.Background(), "u1", orderAction(model.Args{
		"event_title": "workshop go",
		"ticket_type": "vip",
		"name":        "Trần Bình",
		"email":       "Binh@Example.com",
	}))
	require.NoError(t, err)
	assert.Equal(t, Awaiting, res.Status)
	assert.Equal(t, model.StepConfirmOrder, res.Order.Step)
	assert.Equal(t, "binh@example.com", res.Order.Email)
	assert.Equal(t, 1, res.Order.Quantity)
	assert.Contains(t, res.Prompt, "có/không")
}

func TestNegotiator_CollectInfoAsksForMissing(t *testing.T) {
	n, _, _ := setup(t)

	res, err := n.Start(context.Background(), "u1", orderAction(model.Args{
		"event_title": "Workshop Go",
		"ticket_type": "Thường",
	}))
	require.NoError(t, err)
	assert.Equal(t, model.StepCollectInfo, res.Order.Step)

	res, err = n.Advance(context.Background(), res.Order, "tên tôi là Lê Minh")
	require.NoError(t, err)
	assert.Equal(t, model.StepCollectInfo, res.Order.Step)
	assert.Equal(t, "Lê Minh", res.Order.ParticipantName)
	assert.Contains(t, res.Prompt, "email")
	assert.NotContains(t, res.Prompt, "họ tên")

	res, err = n.Advance(context.Background(), res.Order, "email của tôi là minh@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.StepConfirmOrder, res.Order.Step)
	assert.Equal(t, "Lê Minh", res.Order.ParticipantName)
}

func TestNegotiator_NotEnoughTickets(t *testing.T) {
	n, _, _ := setup(t)

	res, err := n.Start(context.Background(), "u1", orderAction(model.Args{"event_title": "Workshop Go"}))
	require.NoError(t, err)
	require.Equal(t, model.StepSelectTicket, res.Order.Step)

	res, err = n.Advance(context.Background(), res.Order, "3 vé VIP")
	require.NoError(t, err)
	assert.Equal(t, model.StepSelectTicket, res.Order.Step)
	assert.Zero(t, res.Order.TicketTypeID)
	assert.Contains(t, res.Prompt, "chỉ còn 2 vé")
}

func TestNegotiator_Cancel(t *testing.T) {
	n, exec, _ := setup(t)

	res, err := n.Start(context.Background(), "u1", orderAction(model.Args{}))
	require.NoError(t, err)

	res, err = n.Advance(context.Background(), res.Order, "không")
	require.NoError(t, err)
	assert.Equal(t, Cancelled, res.Status)
	assert.Zero(t, exec.calls)
}

func TestNegotiator_AmbiguousConfirmationReprompts(t *testing.T) {
	n, exec, _ := setup(t)
	res, err := n.Start(context.Background(), "u1", orderAction(model.Args{
		"event_title": "Workshop Go", "ticket_type": "VIP", "name": "An", "email": "an@example.com",
	}))
	require.NoError(t, err)
	require.Equal(t, model.StepConfirmOrder, res.Order.Step)

	res, err = n.Advance(context.Background(), res.Order, "để mình nghĩ thêm")
	require.NoError(t, err)
	assert.Equal(t, Awaiting, res.Status)
	assert.Equal(t, model.StepConfirmOrder, res.Order.Step)
	assert.Zero(t, exec.calls)
}

func TestNegotiator_ConfirmIncomplete(t *testing.T) {
	n, exec, _ := setup(t)

	_, err := n.Confirm(context.Background(), &model.PendingOrder{
		UserID: "u1", EventID: 1, TicketTypeID: 3, Quantity: 1, ParticipantName: "An",
	})
	var inc *IncompleteError
	require.True(t, errors.As(err, &inc))
	assert.Equal(t, []string{model.FieldEmail}, inc.Missing)
	assert.Zero(t, exec.calls)

	_, err = n.Confirm(context.Background(), &model.PendingOrder{UserID: "u1", Quantity: 1})
	require.True(t, errors.As(err, &inc))
	assert.Equal(t, []string{model.FieldEvent, model.FieldTicketType, model.FieldName, model.FieldEmail}, inc.Missing)
	assert.Zero(t, exec.calls)
}

func TestNegotiator_CommitFailurePropagates(t *testing.T) {
	n, exec, _ := setup(t)
	exec.err = errors.New("payment down")

	order := &model.PendingOrder{
		UserID: "u1", Step: model.StepConfirmOrder, EventID: 1, TicketTypeID: 3, Quantity: 1,
		ParticipantName: "An", Email: "an@example.com",
	}
	_, err := n.Advance(context.Background(), order, "ok")
	assert.EqualError(t, err, "payment down")
	assert.Equal(t, 1, exec.calls)
}

func TestNegotiator_NoUpcomingEvents(t *testing.T) {
	exec := &fakeExec{}
	n := NewNegotiator(store.NewMemory(), store.NewMemory(), exec, security.NewGate(nil, nil), nil,
		WithClock(func() time.Time { return clock }))

	res, err := n.Start(context.Background(), "u1", orderAction(model.Args{}))
	require.NoError(t, err)
	assert.Equal(t, Cancelled, res.Status)
}

func TestChoose(t *testing.T) {
	opts := []model.Option{{ID: 10, Label: "VIP"}, {ID: 11, Label: "VIP Gold"}, {ID: 12, Label: "Thường"}}

	opt, ok := choose("cho mình vé VIP Gold", opts)
	require.True(t, ok)
	assert.Equal(t, int64(11), opt.ID)

	opt, ok = choose("thuong", opts)
	require.True(t, ok)
	assert.Equal(t, int64(12), opt.ID)

	opt, ok = choose("số 1", opts)
	require.True(t, ok)
	assert.Equal(t, int64(10), opt.ID)

	opt, ok = choose("#12", opts)
	require.True(t, ok)
	assert.Equal(t, int64(12), opt.ID)

	_, ok = choose("không biết", opts)
	assert.False(t, ok)
}
