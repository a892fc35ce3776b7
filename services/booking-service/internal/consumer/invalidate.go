package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/outbox"
)

// Invalidator is satisfied by *availability.Service.
type Invalidator interface {
	Invalidate(ctx context.Context, c availability.Change)
}

// InvalidationHandler turns appointment events from any instance into local
// slot cache invalidations and stream notifications. Malformed payloads are
// logged and dropped so they do not block the partition.
func InvalidationHandler(inv Invalidator, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var p outbox.AppointmentPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if p.BusinessID == "" || p.Date == "" {
			logger.Error("missing required event fields", "topic", msg.Topic)
			return nil
		}

		reason := p.Status
		switch msg.Topic {
		case outbox.TopicAppointmentBooked:
			reason = "booked"
		case outbox.TopicAppointmentCancelled:
			reason = "cancelled"
		}
		inv.Invalidate(ctx, availability.Change{
			CompanyID:     p.BusinessID,
			Date:          p.Date,
			Reason:        reason,
			AppointmentID: p.AppointmentID,
		})
		return nil
	}
}
