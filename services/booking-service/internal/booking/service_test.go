package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/clients"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/limits"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/storage"
)

// Wednesday 2025-01-08, 09:00 in São Paulo.
var testNow = time.Date(2025, 1, 8, 12, 0, 0, 0, time.UTC)

type harness struct {
	store  *storage.Memory
	svc    *Service
	broker *availability.Broker
	slots  *availability.Service
}

type flakyStore struct {
	*storage.Memory
	listErr  error
	dailyErr error
}

func (f *flakyStore) GetDailySchedule(ctx context.Context, companyID string, weekday int) (model.DailySchedule, error) {
	if f.dailyErr != nil {
		return model.DailySchedule{}, f.dailyErr
	}
	return f.Memory.GetDailySchedule(ctx, companyID, weekday)
}

func (f *flakyStore) ListDayAppointments(ctx context.Context, companyID string, date time.Time) ([]model.Appointment, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Memory.ListDayAppointments(ctx, companyID, date)
}

func seed(store *storage.Memory, mutate func(*model.Settings)) {
	store.PutCompany(model.Company{ID: "c1", Name: "Barbearia", Slug: "barbearia"})
	settings := model.Settings{
		CompanyID:                   "c1",
		WorkingDays:                 []int{1, 2, 3, 4, 5},
		WorkStartMinute:             9 * 60,
		WorkEndMinute:               18 * 60,
		LunchEnabled:                true,
		LunchStartMinute:            12 * 60,
		LunchEndMinute:              13 * 60,
		SlotIntervalMinutes:         30,
		AdvanceBookingDays:          30,
		MaxSimultaneousAppointments: 1,
		SameDayBooking:              true,
		AutoConfirm:                 true,
		Timezone:                    "America/Sao_Paulo",
	}
	if mutate != nil {
		mutate(&settings)
	}
	store.PutSettings(settings)
	store.PutService(model.Service{ID: "s1", CompanyID: "c1", Name: "Corte", DurationMinutes: 30, IsActive: true})
	store.PutService(model.Service{ID: "s2", CompanyID: "c1", Name: "Barba", DurationMinutes: 60, IsActive: true})
	store.PutService(model.Service{ID: "old", CompanyID: "c1", Name: "Retired", DurationMinutes: 30})
}

func newHarness(t *testing.T, mutate func(*model.Settings)) *harness {
	t.Helper()
	clock := func() time.Time { return testNow }
	store := storage.NewMemory(clock)
	seed(store, mutate)
	return build(store, clock)
}

type bookingStore interface {
	Store
	availability.Store
	limits.Store
	clients.Store
}

func build(store bookingStore, clock func() time.Time) *harness {
	tz := model.DefaultTimezone
	resolver := schedule.NewResolver(store, nil, clock, tz)
	broker := availability.NewBroker()
	slots := availability.NewService(store, resolver, availability.NewMemoryCache(time.Minute, clock), broker, nil, nil, clock,
		availability.Config{DefaultTimezone: tz})
	svc := NewService(Deps{
		Store:        store,
		Availability: slots,
		Resolver:     resolver,
		Guard:        limits.NewGuard(store, nil, clock, tz),
		Checker:      availability.NewChecker(store, nil),
		Upserter:     clients.NewUpserter(store, nil, nil, 3, 0),
	})
	h := &harness{svc: svc, broker: broker, slots: slots}
	if m, ok := store.(*storage.Memory); ok {
		h.store = m
	}
	return h
}

func request(at, phone string) Request {
	return Request{
		CompanyID:   "c1",
		ServiceID:   "s1",
		Date:        "2025-01-10",
		Time:        at,
		ClientName:  "Ana",
		ClientPhone: phone,
	}
}

func TestSubmitThenSimultaneousLimit(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res, err := h.svc.Submit(ctx, request("10:00", "(11) 99999-1111"))
	require.NoError(t, err)
	assert.True(t, res.ClientCreated)
	assert.Equal(t, "5511999991111", res.Client.NormalizedPhone)
	assert.Equal(t, model.StatusConfirmed, res.Appointment.Status)
	assert.Equal(t, 600, res.Appointment.StartMinute)
	assert.Equal(t, "Corte", res.Appointment.ServiceName)
	assert.True(t, res.Limits.CanBook)

	_, err = h.svc.Submit(ctx, request("11:00", "11999991111"))
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.ErrorIs(t, err, ErrLimitReached)
	assert.False(t, limitErr.Decision.Simultaneous.CanBook)
	assert.Equal(t, 1, limitErr.Decision.Simultaneous.CurrentCount)
	assert.Equal(t, 1, limitErr.Decision.Simultaneous.Limit)

	events := h.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, outbox.TopicAppointmentBooked, events[0].EventType)
}

func TestSubmitMonthlyLimit(t *testing.T) {
	h := newHarness(t, func(s *model.Settings) {
		monthly := 1
		s.MaxSimultaneousAppointments = 0
		s.MonthlyAppointmentLimit = &monthly
	})
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, request("10:00", "11999991111"))
	require.NoError(t, err)

	_, err = h.svc.Submit(ctx, request("14:00", "11999991111"))
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.True(t, limitErr.Decision.Simultaneous.CanBook)
	assert.False(t, limitErr.Decision.Monthly.CanBook)
	assert.Contains(t, err.Error(), "this month")
}

func TestSubmitAdminBypassesLimits(t *testing.T) {
	h := newHarness(t, nil)
	h.store.PutCompany(model.Company{ID: "c1", Name: "Barbearia", Slug: "barbearia", IsAdmin: true})
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, request("10:00", "11999991111"))
	require.NoError(t, err)
	res, err := h.svc.Submit(ctx, request("11:00", "11999991111"))
	require.NoError(t, err)
	assert.False(t, res.ClientCreated)
	assert.Equal(t, 0, res.Limits.Simultaneous.CurrentCount)
}

func TestSubmitSlotConflict(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first := request("10:00", "11999991111")
	first.ServiceID = "s2"
	booked, err := h.svc.Submit(ctx, first)
	require.NoError(t, err)

	second := request("10:30", "11988887777")
	second.ClientName = "Bruno"
	_, err = h.svc.Submit(ctx, second)
	var conflict *SlotConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	require.NotNil(t, conflict.With)
	assert.Equal(t, booked.Appointment.ID, conflict.With.AppointmentID)
	assert.Equal(t, "10:00", conflict.With.Time)
	assert.Equal(t, "Ana", conflict.With.ClientName)

	// Touching end is not an overlap.
	second.Time = "11:00"
	_, err = h.svc.Submit(ctx, second)
	require.NoError(t, err)
}

func TestSubmitConflictCheckFailsClosed(t *testing.T) {
	clock := func() time.Time { return testNow }
	mem := storage.NewMemory(clock)
	seed(mem, nil)
	h := build(&flakyStore{Memory: mem, listErr: errors.New("db down")}, clock)

	_, err := h.svc.Submit(context.Background(), request("10:00", "11999991111"))
	require.Error(t, err)
	var conflict *SlotConflictError
	assert.False(t, errors.As(err, &conflict))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "db down")

	list, err := mem.ListClients(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubmitValidation(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*Request)
		field string
	}{
		{"missing name", func(r *Request) { r.ClientName = " " }, "client_name"},
		{"bad phone", func(r *Request) { r.ClientPhone = "123" }, "client_phone"},
		{"bad date", func(r *Request) { r.Date = "10/01/2025" }, "date"},
		{"bad time", func(r *Request) { r.Time = "25:00" }, "time"},
		{"past date", func(r *Request) { r.Date = "2025-01-07" }, "date"},
		{"beyond window", func(r *Request) { r.Date = "2025-03-10" }, "date"},
		{"weekend", func(r *Request) { r.Date = "2025-01-11" }, "date"},
		{"lunch", func(r *Request) { r.Time = "12:00" }, "time"},
		{"off grid", func(r *Request) { r.Time = "10:15" }, "time"},
		{"runs past close", func(r *Request) { r.Time = "17:30"; r.ServiceID = "s2" }, "time"},
		{"already started today", func(r *Request) { r.Date = "2025-01-08"; r.Time = "09:00" }, "time"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			req := request("10:00", "11999991111")
			tc.edit(&req)
			_, err := h.svc.Submit(context.Background(), req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.Empty(t, h.store.Events())
		})
	}
}

func TestSubmitTimeMessages(t *testing.T) {
	cases := []struct {
		name    string
		date    string
		time    string
		message string
	}{
		{"earlier today", "2025-01-08", "09:00", "time has already passed"},
		{"before opening earlier today", "2025-01-08", "08:30", "time has already passed"},
		{"lunch today", "2025-01-08", "12:00", "time is outside business hours"},
		{"after close", "2025-01-10", "18:00", "time is outside business hours"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			req := request(tc.time, "11999991111")
			req.Date = tc.date
			_, err := h.svc.Submit(context.Background(), req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "time", verr.Field)
			assert.Equal(t, tc.message, verr.Message)
		})
	}
}

func TestSubmitScheduleLoadFailureIsRetryable(t *testing.T) {
	clock := func() time.Time { return testNow }
	mem := storage.NewMemory(clock)
	seed(mem, nil)
	h := build(&flakyStore{Memory: mem, dailyErr: errors.New("db down")}, clock)

	_, err := h.svc.Submit(context.Background(), request("10:00", "11999991111"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))
	assert.Empty(t, mem.Events())
}

func TestSubmitUnknownCompanyAndService(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	req := request("10:00", "11999991111")
	req.CompanyID = ""
	req.Slug = "nope"
	_, err := h.svc.Submit(ctx, req)
	assert.ErrorIs(t, err, ErrCompanyNotFound)

	req = request("10:00", "11999991111")
	req.ServiceID = "old"
	_, err = h.svc.Submit(ctx, req)
	assert.ErrorIs(t, err, ErrServiceNotFound)

	req.CompanyID, req.Slug, req.ServiceID = "", "barbearia", "s1"
	res, err := h.svc.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "c1", res.Appointment.CompanyID)
}

func TestSubmitPendingWhenAutoConfirmOff(t *testing.T) {
	h := newHarness(t, func(s *model.Settings) { s.AutoConfirm = false })
	res, err := h.svc.Submit(context.Background(), request("10:00", "11999991111"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, res.Appointment.Status)
}

func TestSubmitIdempotencyKeyReplays(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	req := request("10:00", "11999991111")
	req.IdempotencyKey = "form-42"
	first, err := h.svc.Submit(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := h.svc.Submit(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Appointment.ID, again.Appointment.ID)
	assert.Equal(t, first.Client.ID, again.Client.ID)
	assert.Len(t, h.store.Events(), 1)
}

func TestSubmitInvalidatesAndNotifies(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	day, err := model.ParseDate("2025-01-10")
	require.NoError(t, err)
	q := availability.Query{CompanyID: "c1", ServiceID: "s1", Date: day}
	before, err := h.slots.Slots(ctx, q)
	require.NoError(t, err)
	require.Contains(t, before, "10:00")

	var got []availability.Change
	unsubscribe := h.broker.Subscribe("c1", "2025-01-10", func(c availability.Change) { got = append(got, c) })
	defer unsubscribe()

	res, err := h.svc.Submit(ctx, request("10:00", "11999991111"))
	require.NoError(t, err)

	after, err := h.slots.Slots(ctx, q)
	require.NoError(t, err)
	assert.NotContains(t, after, "10:00")
	require.Len(t, got, 1)
	assert.Equal(t, "booked", got[0].Reason)
	assert.Equal(t, res.Appointment.ID, got[0].AppointmentID)
}

func TestCancelFreesSlot(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res, err := h.svc.Submit(ctx, request("10:00", "11999991111"))
	require.NoError(t, err)

	cancelled, err := h.svc.Cancel(ctx, "c1", res.Appointment.ID, " client asked ")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, "client asked", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	// Second cancel is a no-op.
	_, err = h.svc.Cancel(ctx, "c1", res.Appointment.ID, "")
	require.NoError(t, err)

	other := request("10:00", "11988887777")
	other.ClientName = "Bruno"
	_, err = h.svc.Submit(ctx, other)
	require.NoError(t, err)

	events := h.store.Events()
	require.Len(t, events, 3)
	assert.Equal(t, outbox.TopicAppointmentCancelled, events[1].EventType)
}

func TestTransitionRules(t *testing.T) {
	h := newHarness(t, func(s *model.Settings) { s.AutoConfirm = false })
	ctx := context.Background()

	res, err := h.svc.Submit(ctx, request("10:00", "11999991111"))
	require.NoError(t, err)
	id := res.Appointment.ID

	appt, err := h.svc.Transition(ctx, "c1", id, model.StatusConfirmed, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, appt.Status)

	_, err = h.svc.Transition(ctx, "c1", id, model.StatusPending, "")
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, model.StatusConfirmed, terr.From)

	_, err = h.svc.Transition(ctx, "c1", id, model.StatusCompleted, "")
	require.NoError(t, err)

	_, err = h.svc.Cancel(ctx, "c1", id, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = h.svc.Cancel(ctx, "c1", "missing", "")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	_, err = h.svc.Cancel(ctx, "other-company", id, "")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestLimitsReport(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	d, err := h.svc.Limits(ctx, "c1", "11999991111")
	require.NoError(t, err)
	assert.True(t, d.CanBook)

	_, err = h.svc.Submit(ctx, request("10:00", "11999991111"))
	require.NoError(t, err)

	d, err = h.svc.Limits(ctx, "c1", "+55 (11) 99999-1111")
	require.NoError(t, err)
	assert.False(t, d.CanBook)
	assert.Equal(t, 1, d.Simultaneous.CurrentCount)

	_, err = h.svc.Limits(ctx, "c1", "12")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestEndToEndScenario(t *testing.T) {
	h := newHarness(t, func(s *model.Settings) { s.LunchEnabled = false })
	ctx := context.Background()

	d, err := h.svc.Limits(ctx, "c1", "11999998888")
	require.NoError(t, err)
	assert.Equal(t, 0, d.Simultaneous.CurrentCount)

	_, err = h.svc.Submit(ctx, request("10:00", "11999998888"))
	require.NoError(t, err)

	d, err = h.svc.Limits(ctx, "c1", "11999998888")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Simultaneous.CurrentCount)

	_, err = h.svc.Submit(ctx, request("11:00", "11999998888"))
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, limits.Usage{CanBook: false, CurrentCount: 1, Limit: 1}, limitErr.Decision.Simultaneous)
}
