package availability

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/md-rashed-zaman/zapagenda/libs/timeofday"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/schedule"
)

var ErrServiceNotFound = errors.New("service not found or inactive")

var tracer = otel.Tracer("zapagenda/availability")

type Store interface {
	schedule.Store
	AppointmentLister
	GetService(ctx context.Context, companyID, serviceID string) (model.Service, error)
}

type Config struct {
	LeadTime        time.Duration
	DefaultTimezone string
}

type Query struct {
	CompanyID string
	ServiceID string
	Date      time.Time
}

// Service answers slot queries and owns cache invalidation.
type Service struct {
	store    Store
	resolver *schedule.Resolver
	cache    Cache
	broker   *Broker
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	cfg      Config
}

func NewService(store Store, resolver *schedule.Resolver, cache Cache, broker *Broker, logger *slog.Logger, m *metrics.Metrics, now func() time.Time, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = model.DefaultTimezone
	}
	return &Service{store: store, resolver: resolver, cache: cache, broker: broker, logger: logger, metrics: m, now: now, cfg: cfg}
}

// Slots lists bookable start times. Past dates, dates beyond the advance
// window and closed days give an empty list.
func (s *Service) Slots(ctx context.Context, q Query) ([]string, error) {
	ctx, span := tracer.Start(ctx, "availability.Slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("business_id", q.CompanyID),
		attribute.String("date", model.FormatDate(q.Date)),
	)
	started := time.Now()

	var settings *model.Settings
	if st, err := s.store.GetSettings(ctx, q.CompanyID); err == nil {
		settings = &st
	} else if !errors.Is(err, model.ErrNotFound) {
		s.logger.Warn("settings load failed", "business_id", q.CompanyID, "err", err)
		s.metrics.ObserveSlotQuery(metrics.CacheBypass, time.Since(started))
		return []string{}, nil
	}

	now := s.LocalNow(settings)
	if !InBookingWindow(settings, q.Date, now) {
		return []string{}, nil
	}

	duration := 0
	if q.ServiceID != "" {
		svc, err := s.store.GetService(ctx, q.CompanyID, q.ServiceID)
		if errors.Is(err, model.ErrNotFound) || (err == nil && !svc.IsActive) {
			return nil, ErrServiceNotFound
		}
		if err != nil {
			return nil, err
		}
		duration = svc.DurationMinutes
	}

	date := model.FormatDate(q.Date)
	var (
		gen       int64
		cacheable = s.cache != nil
	)
	if cacheable {
		lk, err := s.cache.Get(ctx, q.CompanyID, date, q.ServiceID)
		if err != nil {
			// Without a generation the result cannot be stored safely.
			cacheable = false
			s.logger.Warn("slot cache read failed", "business_id", q.CompanyID, "date", date, "err", err)
		}
		if lk.Hit {
			s.metrics.ObserveSlotQuery(metrics.CacheHit, time.Since(started))
			return s.dropElapsed(lk.Slots, q.Date, now), nil
		}
		gen = lk.Generation
	}

	appts, err := s.store.ListDayAppointments(ctx, q.CompanyID, q.Date)
	if err != nil {
		return nil, err
	}
	interval := 30
	if settings != nil {
		interval = settings.Interval()
	}
	hours := s.resolver.ResolveWith(ctx, q.CompanyID, settings, q.Date)
	if hours.Source == schedule.SourceLoadFailed {
		cacheable = false
	}
	slots := Generate(Request{
		Hours:           hours,
		IntervalMinutes: interval,
		Date:            q.Date,
		Now:             now,
		LeadTime:        s.cfg.LeadTime,
		DurationMinutes: duration,
		Booked:          FromAppointments(appts),
	})

	cacheResult := metrics.CacheBypass
	if cacheable {
		cacheResult = metrics.CacheMiss
		stored, err := s.cache.Set(ctx, q.CompanyID, date, q.ServiceID, gen, slots)
		switch {
		case err != nil:
			s.logger.Warn("slot cache write failed", "business_id", q.CompanyID, "date", date, "err", err)
		case !stored:
			s.logger.Debug("slot list superseded by invalidation, not cached", "business_id", q.CompanyID, "date", date)
		}
	}
	s.metrics.ObserveSlotQuery(cacheResult, time.Since(started))
	return slots, nil
}

// Invalidate drops cached slots for the change's date and notifies subscribers.
func (s *Service) Invalidate(ctx context.Context, c Change) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, c.CompanyID, c.Date); err != nil {
			s.logger.Warn("slot cache invalidation failed", "business_id", c.CompanyID, "date", c.Date, "err", err)
		}
	}
	s.metrics.ObserveInvalidation()
	if s.broker != nil {
		s.broker.Publish(c)
	}
}

// LocalNow is the current wall clock in the company's time zone.
func (s *Service) LocalNow(settings *model.Settings) time.Time {
	tz := ""
	if settings != nil {
		tz = settings.Timezone
	}
	return s.now().In(model.Location(tz, s.cfg.DefaultTimezone))
}

func (s *Service) LeadTime() time.Duration {
	return s.cfg.LeadTime
}

// InBookingWindow rejects past dates and dates past the advance-booking limit.
func InBookingWindow(settings *model.Settings, date, now time.Time) bool {
	today := model.CivilDate(now)
	if date.Before(today) {
		return false
	}
	if settings != nil && settings.AdvanceBookingDays > 0 && date.After(today.AddDate(0, 0, settings.AdvanceBookingDays)) {
		return false
	}
	return true
}

// dropElapsed removes cached starts that passed since the list was computed.
func (s *Service) dropElapsed(slots []string, date, now time.Time) []string {
	if !date.Equal(model.CivilDate(now)) {
		return slots
	}
	cutoff := now.Hour()*60 + now.Minute() + int(s.cfg.LeadTime/time.Minute)
	out := make([]string, 0, len(slots))
	for _, slot := range slots {
		m, err := timeofday.Parse(slot)
		if err != nil || m <= cutoff {
			continue
		}
		out = append(out, slot)
	}
	return out
}
