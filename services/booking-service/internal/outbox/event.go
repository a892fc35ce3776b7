package outbox

import (
	"encoding/json"

	"github.com/md-rashed-zaman/zapagenda/libs/timeofday"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
)

// Topics. The Kafka topic equals the event type.
const (
	TopicAppointmentBooked        = "booking.appointment.booked.v1"
	TopicAppointmentCancelled     = "booking.appointment.cancelled.v1"
	TopicAppointmentStatusChanged = "booking.appointment.status_changed.v1"
)

// AvailabilityTopics are the events that change which slots are free.
var AvailabilityTopics = []string{TopicAppointmentBooked, TopicAppointmentCancelled, TopicAppointmentStatusChanged}

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// AppointmentPayload is the JSON body of every appointment event.
type AppointmentPayload struct {
	AppointmentID   string `json:"appointment_id"`
	BusinessID      string `json:"business_id"`
	ClientID        string `json:"client_id"`
	ServiceID       string `json:"service_id"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	PreviousStatus  string `json:"previous_status,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

func AppointmentEvent(eventType string, a model.Appointment, previous model.Status) (Event, error) {
	payload, err := json.Marshal(AppointmentPayload{
		AppointmentID:   a.ID,
		BusinessID:      a.CompanyID,
		ClientID:        a.ClientID,
		ServiceID:       a.ServiceID,
		Date:            model.FormatDate(a.Date),
		Time:            timeofday.Format(a.StartMinute),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		PreviousStatus:  string(previous),
		Reason:          a.CancelReason,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
