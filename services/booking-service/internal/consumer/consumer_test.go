package consumer

import (
	"context"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

type memInbox map[string]bool

func (m memInbox) Record(_ context.Context, consumer, eventID, _ string) (bool, error) {
	key := consumer + "/" + eventID
	if m[key] {
		return false, nil
	}
	m[key] = true
	return true, nil
}

func TestHandleSkipsDuplicates(t *testing.T) {
	calls := 0
	c := &Consumer{
		logger: slog.Default(),
		inbox:  memInbox{},
		group:  "booking-a",
		handler: func(context.Context, kafka.Message) error {
			calls++
			return nil
		},
	}
	msg := kafka.Message{
		Topic:   "booking.appointment.booked.v1",
		Headers: []kafka.Header{{Key: "event_id", Value: []byte("e1")}},
	}

	assert.True(t, c.Handle(context.Background(), msg))
	assert.False(t, c.Handle(context.Background(), msg))
	assert.Equal(t, 1, calls)

	// Falls back to the message key when the header is missing.
	assert.True(t, c.Handle(context.Background(), kafka.Message{Topic: msg.Topic, Key: []byte("a9")}))
	assert.Equal(t, 2, calls)
}
