package limits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
)

// Usage is one limit dimension. Limit 0 means unlimited.
type Usage struct {
	CanBook      bool `json:"can_book"`
	CurrentCount int  `json:"current_count"`
	Limit        int  `json:"limit"`
}

type Decision struct {
	CanBook      bool  `json:"can_book"`
	Simultaneous Usage `json:"simultaneous"`
	Monthly      Usage `json:"monthly"`
}

func allowAll() Decision {
	return Decision{CanBook: true, Simultaneous: Usage{CanBook: true}, Monthly: Usage{CanBook: true}}
}

type Store interface {
	GetSettings(ctx context.Context, companyID string) (model.Settings, error)
	FindClientByPhone(ctx context.Context, companyID, normalizedPhone string) (model.Client, error)
	// CountActiveAppointments counts confirmed or pending appointments dated on or after from.
	CountActiveAppointments(ctx context.Context, companyID, clientID string, from time.Time) (int, error)
	// CountAppointmentsBetween counts non-cancelled appointments dated in [from, to).
	CountAppointmentsBetween(ctx context.Context, companyID, clientID string, from, to time.Time) (int, error)
}

// Guard enforces per-client booking quotas.
type Guard struct {
	store           Store
	logger          *slog.Logger
	now             func() time.Time
	defaultTimezone string
}

func NewGuard(store Store, logger *slog.Logger, now func() time.Time, defaultTimezone string) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Guard{store: store, logger: logger, now: now, defaultTimezone: defaultTimezone}
}

// Check evaluates the simultaneous and monthly limits for the client behind
// normalizedPhone. bypass skips both and reports zero counts. A phone with no
// client record has no appointments yet.
func (g *Guard) Check(ctx context.Context, companyID, normalizedPhone string, bypass bool) (Decision, error) {
	if bypass {
		return allowAll(), nil
	}

	settings, err := g.store.GetSettings(ctx, companyID)
	if errors.Is(err, model.ErrNotFound) {
		return allowAll(), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("limits: load settings: %w", err)
	}

	d := allowAll()
	d.Simultaneous.Limit = positive(settings.MaxSimultaneousAppointments)
	if settings.MonthlyAppointmentLimit != nil {
		d.Monthly.Limit = positive(*settings.MonthlyAppointmentLimit)
	}

	client, err := g.store.FindClientByPhone(ctx, companyID, normalizedPhone)
	if errors.Is(err, model.ErrNotFound) {
		return d, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("limits: find client: %w", err)
	}

	today := model.CivilDate(g.now().In(model.Location(settings.Timezone, g.defaultTimezone)))

	d.Simultaneous.CurrentCount, err = g.store.CountActiveAppointments(ctx, companyID, client.ID, today)
	if err != nil {
		return Decision{}, fmt.Errorf("limits: count active: %w", err)
	}
	monthStart, nextMonth := model.MonthBounds(today)
	d.Monthly.CurrentCount, err = g.store.CountAppointmentsBetween(ctx, companyID, client.ID, monthStart, nextMonth)
	if err != nil {
		return Decision{}, fmt.Errorf("limits: count monthly: %w", err)
	}

	d.Simultaneous.CanBook = under(d.Simultaneous)
	d.Monthly.CanBook = under(d.Monthly)
	d.CanBook = d.Simultaneous.CanBook && d.Monthly.CanBook
	if !d.CanBook {
		g.logger.Info("booking limit reached",
			"business_id", companyID,
			"client_id", client.ID,
			"active", d.Simultaneous.CurrentCount,
			"monthly", d.Monthly.CurrentCount,
		)
	}
	return d, nil
}

func under(u Usage) bool {
	return u.Limit == 0 || u.CurrentCount < u.Limit
}

func positive(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
