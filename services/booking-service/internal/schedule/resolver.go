package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
)

// Where the effective hours came from.
const (
	SourceDaily       = "daily"
	SourceSettings    = "settings"
	SourceSameDay     = "same_day_disabled"
	SourceUnavailable = "unavailable"
	// SourceLoadFailed closes a day whose schedule could not be read.
	// Unlike the others it is transient and must not be cached.
	SourceLoadFailed = "load_failed"
)

// Hours are the effective opening hours for one date, in minutes since midnight.
type Hours struct {
	IsOpen           bool
	OpenMinute       int
	CloseMinute      int
	LunchEnabled     bool
	LunchStartMinute int
	LunchEndMinute   int
	Source           string
}

func Closed(source string) Hours {
	return Hours{Source: source}
}

// InLunch reports whether minute falls inside [LunchStart, LunchEnd).
func (h Hours) InLunch(minute int) bool {
	return h.LunchEnabled && minute >= h.LunchStartMinute && minute < h.LunchEndMinute
}

type Store interface {
	GetSettings(ctx context.Context, companyID string) (model.Settings, error)
	GetDailySchedule(ctx context.Context, companyID string, weekday int) (model.DailySchedule, error)
}

type Resolver struct {
	store           Store
	logger          *slog.Logger
	now             func() time.Time
	defaultTimezone string
}

func NewResolver(store Store, logger *slog.Logger, now func() time.Time, defaultTimezone string) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Resolver{store: store, logger: logger, now: now, defaultTimezone: defaultTimezone}
}

// Resolve loads settings and the weekday override for date. Load failures
// close the day rather than erroring.
func (r *Resolver) Resolve(ctx context.Context, companyID string, date time.Time) Hours {
	settings, err := r.store.GetSettings(ctx, companyID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			r.logger.Warn("settings load failed", "business_id", companyID, "err", err)
			return Closed(SourceLoadFailed)
		}
		return r.ResolveWith(ctx, companyID, nil, date)
	}
	return r.ResolveWith(ctx, companyID, &settings, date)
}

// ResolveWith is Resolve for callers that already hold the settings.
func (r *Resolver) ResolveWith(ctx context.Context, companyID string, settings *model.Settings, date time.Time) Hours {
	var daily *model.DailySchedule
	d, err := r.store.GetDailySchedule(ctx, companyID, int(date.Weekday()))
	switch {
	case err == nil:
		daily = &d
	case errors.Is(err, model.ErrNotFound):
	default:
		r.logger.Warn("daily schedule load failed", "business_id", companyID, "weekday", int(date.Weekday()), "err", err)
		return Closed(SourceLoadFailed)
	}

	hours := Effective(settings, daily, date)
	if hours.IsOpen && settings != nil && !settings.SameDayBooking {
		loc := model.Location(settings.Timezone, r.defaultTimezone)
		if date.Equal(model.CivilDate(r.now().In(loc))) {
			return Closed(SourceSameDay)
		}
	}
	return hours
}

// Effective merges an optional daily override with company settings.
// An active daily row wins; otherwise the settings apply when date's weekday
// is a working day. With neither the day is closed.
func Effective(settings *model.Settings, daily *model.DailySchedule, date time.Time) Hours {
	if daily != nil && daily.IsActive {
		return build(SourceDaily, daily.StartMinute, daily.EndMinute,
			daily.HasLunchBreak, daily.LunchStartMinute, daily.LunchEndMinute)
	}
	if settings == nil {
		return Closed(SourceUnavailable)
	}
	if !settings.WorksOn(date.Weekday()) {
		return Closed(SourceSettings)
	}
	return build(SourceSettings, settings.WorkStartMinute, settings.WorkEndMinute,
		settings.LunchEnabled, settings.LunchStartMinute, settings.LunchEndMinute)
}

func build(source string, open, close int, lunch bool, lunchStart, lunchEnd int) Hours {
	if close <= open {
		return Closed(source)
	}
	h := Hours{IsOpen: true, OpenMinute: open, CloseMinute: close, Source: source}
	if lunch && lunchEnd > lunchStart {
		h.LunchEnabled = true
		h.LunchStartMinute = lunchStart
		h.LunchEndMinute = lunchEnd
	}
	return h
}
