package consumer

import (
	"context"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/outbox"
)

type recordingInvalidator []availability.Change

func (r *recordingInvalidator) Invalidate(_ context.Context, c availability.Change) {
	*r = append(*r, c)
}

func TestInvalidationHandler(t *testing.T) {
	var got recordingInvalidator
	h := InvalidationHandler(&got, slog.Default())
	ctx := context.Background()

	require.NoError(t, h(ctx, kafka.Message{
		Topic: outbox.TopicAppointmentCancelled,
		Value: []byte(`{"appointment_id":"a1","business_id":"c1","date":"2025-01-10","time":"10:00","status":"cancelled"}`),
	}))
	require.NoError(t, h(ctx, kafka.Message{
		Topic: outbox.TopicAppointmentStatusChanged,
		Value: []byte(`{"appointment_id":"a2","business_id":"c1","date":"2025-01-11","status":"completed"}`),
	}))
	// Dropped without error.
	require.NoError(t, h(ctx, kafka.Message{Topic: outbox.TopicAppointmentBooked, Value: []byte(`not json`)}))
	require.NoError(t, h(ctx, kafka.Message{Topic: outbox.TopicAppointmentBooked, Value: []byte(`{"appointment_id":"a3"}`)}))

	assert.Equal(t, recordingInvalidator{
		{CompanyID: "c1", Date: "2025-01-10", Reason: "cancelled", AppointmentID: "a1"},
		{CompanyID: "c1", Date: "2025-01-11", Reason: "completed", AppointmentID: "a2"},
	}, got)
}
