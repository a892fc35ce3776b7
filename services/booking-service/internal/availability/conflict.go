package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/zapagenda/libs/timeofday"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
)

// Booked is an occupied range on one date.
type Booked struct {
	AppointmentID   string `json:"appointment_id"`
	StartMinute     int    `json:"-"`
	DurationMinutes int    `json:"duration_minutes"`
	Time            string `json:"time"`
	ServiceName     string `json:"service_name,omitempty"`
	ClientName      string `json:"client_name,omitempty"`
}

func FromAppointments(appts []model.Appointment) []Booked {
	out := make([]Booked, 0, len(appts))
	for _, a := range appts {
		if !a.Status.Occupies() {
			continue
		}
		out = append(out, Booked{
			AppointmentID:   a.ID,
			StartMinute:     a.StartMinute,
			DurationMinutes: a.DurationMinutes,
			Time:            timeofday.Format(a.StartMinute),
			ServiceName:     a.ServiceName,
			ClientName:      a.ClientName,
		})
	}
	return out
}

// Overlaps reports whether [aStart, aStart+aDur) and [bStart, bStart+bDur) intersect.
// Ranges that only touch do not overlap.
func Overlaps(aStart, aDur, bStart, bDur int) bool {
	return aStart < bStart+bDur && bStart < aStart+aDur
}

// FirstConflict returns the first booked range overlapping [start, start+duration).
func FirstConflict(start, duration int, booked []Booked) (Booked, bool) {
	for _, b := range booked {
		if Overlaps(start, duration, b.StartMinute, b.DurationMinutes) {
			return b, true
		}
	}
	return Booked{}, false
}

type AppointmentLister interface {
	// ListDayAppointments returns non-cancelled appointments on date with
	// service and client names joined.
	ListDayAppointments(ctx context.Context, companyID string, date time.Time) ([]model.Appointment, error)
}

type Verdict struct {
	Conflict bool
	With     *Booked
}

// Checker answers whether a proposed range collides with stored appointments.
type Checker struct {
	store  AppointmentLister
	logger *slog.Logger
}

func NewChecker(store AppointmentLister, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{store: store, logger: logger}
}

// Check fails closed: when the store errors the verdict is a conflict and
// the error is returned so callers can report a system failure.
func (c *Checker) Check(ctx context.Context, companyID string, date time.Time, start, duration int) (Verdict, error) {
	appts, err := c.store.ListDayAppointments(ctx, companyID, date)
	if err != nil {
		c.logger.Error("conflict check failed", "business_id", companyID, "date", model.FormatDate(date), "err", err)
		return Verdict{Conflict: true}, fmt.Errorf("availability: list appointments: %w", err)
	}
	if b, hit := FirstConflict(start, duration, FromAppointments(appts)); hit {
		return Verdict{Conflict: true, With: &b}, nil
	}
	return Verdict{}, nil
}
