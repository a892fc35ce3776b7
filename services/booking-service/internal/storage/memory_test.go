package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/outbox"
)

func TestMemoryEnforcesUniquePhone(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	a := &model.Client{CompanyID: "c1", Name: "Ana", NormalizedPhone: "5511999991111"}
	require.NoError(t, m.InsertClient(ctx, a))
	assert.NotEmpty(t, a.ID)

	err := m.InsertClient(ctx, &model.Client{CompanyID: "c1", NormalizedPhone: "5511999991111"})
	assert.ErrorIs(t, err, model.ErrDuplicateClient)

	// Same phone under another company is fine.
	require.NoError(t, m.InsertClient(ctx, &model.Client{CompanyID: "c2", NormalizedPhone: "5511999991111"}))
}

func TestMemoryRejectsOverlaps(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	d, _ := model.ParseDate("2025-01-10")

	first := &model.Appointment{CompanyID: "c1", Date: d, StartMinute: 600, DurationMinutes: 60, Status: model.StatusConfirmed}
	require.NoError(t, m.CreateAppointment(ctx, first, CreateOptions{IdempotencyKey: "k1", EventTypes: []string{outbox.TopicAppointmentBooked}}))

	err := m.CreateAppointment(ctx, &model.Appointment{CompanyID: "c1", Date: d, StartMinute: 630, DurationMinutes: 30, Status: model.StatusConfirmed}, CreateOptions{})
	assert.ErrorIs(t, err, model.ErrSlotTaken)

	// Touching ranges are fine.
	require.NoError(t, m.CreateAppointment(ctx, &model.Appointment{CompanyID: "c1", Date: d, StartMinute: 660, DurationMinutes: 30, Status: model.StatusConfirmed}, CreateOptions{}))

	err = m.CreateAppointment(ctx, &model.Appointment{CompanyID: "c1", Date: d, StartMinute: 800, DurationMinutes: 30, Status: model.StatusConfirmed}, CreateOptions{IdempotencyKey: "k1"})
	assert.ErrorIs(t, err, model.ErrIdempotencyConflict)

	id, err := m.FindIdempotentAppointment(ctx, "c1", "k1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)
	require.Len(t, m.Events(), 1)
	assert.Equal(t, first.ID, m.Events()[0].AggregateID)

	// Cancelling frees the range.
	cancelled := *first
	cancelled.Status = model.StatusCancelled
	require.NoError(t, m.UpdateAppointmentStatus(ctx, &cancelled, model.StatusConfirmed, nil))
	assert.NotNil(t, cancelled.CancelledAt)
	require.NoError(t, m.CreateAppointment(ctx, &model.Appointment{CompanyID: "c1", Date: d, StartMinute: 600, DurationMinutes: 60, Status: model.StatusConfirmed}, CreateOptions{}))

	assert.ErrorIs(t, m.UpdateAppointmentStatus(ctx, &cancelled, model.StatusConfirmed, nil), model.ErrStatusChanged)
}

func TestMemoryCounts(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	day := func(s string) time.Time { d, _ := model.ParseDate(s); return d }

	for _, a := range []model.Appointment{
		{CompanyID: "c1", ClientID: "cl1", Date: day("2024-12-30"), StartMinute: 600, DurationMinutes: 30, Status: model.StatusCompleted},
		{CompanyID: "c1", ClientID: "cl1", Date: day("2025-01-02"), StartMinute: 600, DurationMinutes: 30, Status: model.StatusCompleted},
		{CompanyID: "c1", ClientID: "cl1", Date: day("2025-01-10"), StartMinute: 600, DurationMinutes: 30, Status: model.StatusConfirmed},
		{CompanyID: "c1", ClientID: "cl1", Date: day("2025-01-11"), StartMinute: 600, DurationMinutes: 30, Status: model.StatusCancelled},
		{CompanyID: "c1", ClientID: "cl1", Date: day("2025-02-03"), StartMinute: 600, DurationMinutes: 30, Status: model.StatusPending},
	} {
		a := a
		require.NoError(t, m.CreateAppointment(ctx, &a, CreateOptions{}))
	}

	active, err := m.CountActiveAppointments(ctx, "c1", "cl1", day("2025-01-08"))
	require.NoError(t, err)
	assert.Equal(t, 2, active)

	monthly, err := m.CountAppointmentsBetween(ctx, "c1", "cl1", day("2025-01-01"), day("2025-02-01"))
	require.NoError(t, err)
	assert.Equal(t, 2, monthly)
}
