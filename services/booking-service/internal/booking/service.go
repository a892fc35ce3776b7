package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/md-rashed-zaman/zapagenda/libs/timeofday"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/clients"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/limits"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/phone"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/storage"
)

var tracer = otel.Tracer("zapagenda/booking")

type Store interface {
	GetCompany(ctx context.Context, id string) (model.Company, error)
	GetCompanyBySlug(ctx context.Context, slug string) (model.Company, error)
	GetSettings(ctx context.Context, companyID string) (model.Settings, error)
	GetService(ctx context.Context, companyID, serviceID string) (model.Service, error)
	GetAppointment(ctx context.Context, companyID, id string) (model.Appointment, error)
	CreateAppointment(ctx context.Context, a *model.Appointment, opts storage.CreateOptions) error
	UpdateAppointmentStatus(ctx context.Context, a *model.Appointment, from model.Status, events []outbox.Event) error
	FindIdempotentAppointment(ctx context.Context, companyID, key string) (string, error)
}

type Deps struct {
	Store        Store
	Availability *availability.Service
	Resolver     *schedule.Resolver
	Guard        *limits.Guard
	Checker      *availability.Checker
	Upserter     *clients.Upserter
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Service runs booking submissions and appointment status changes.
type Service struct {
	store        Store
	availability *availability.Service
	resolver     *schedule.Resolver
	guard        *limits.Guard
	checker      *availability.Checker
	upserter     *clients.Upserter
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		store:        d.Store,
		availability: d.Availability,
		resolver:     d.Resolver,
		guard:        d.Guard,
		checker:      d.Checker,
		upserter:     d.Upserter,
		logger:       d.Logger,
		metrics:      d.Metrics,
	}
}

// Request is a public booking submission. Either CompanyID or Slug names the business.
type Request struct {
	CompanyID      string
	Slug           string
	ServiceID      string
	ProfessionalID string
	Date           string
	Time           string
	ClientName     string
	ClientPhone    string
	ClientEmail    string
	Notes          string
	IdempotencyKey string
}

type Result struct {
	Appointment   model.Appointment
	Client        model.Client
	ClientCreated bool
	Limits        limits.Decision
	Replayed      bool
}

func (r *Request) normalize() {
	for _, f := range []*string{&r.CompanyID, &r.Slug, &r.ServiceID, &r.ProfessionalID, &r.Date, &r.Time,
		&r.ClientName, &r.ClientPhone, &r.ClientEmail, &r.Notes, &r.IdempotencyKey} {
		*f = strings.TrimSpace(*f)
	}
}

func (r Request) validate() error {
	switch {
	case r.CompanyID == "" && r.Slug == "":
		return invalid("business_id", "business is required")
	case r.ServiceID == "":
		return invalid("service_id", "service is required")
	case r.Date == "":
		return invalid("date", "date is required")
	case r.Time == "":
		return invalid("time", "time is required")
	case r.ClientName == "":
		return invalid("client_name", "name is required")
	case r.ClientPhone == "":
		return invalid("client_phone", "phone is required")
	case len(r.IdempotencyKey) > 200:
		return invalid("idempotency_key", "idempotency key is too long")
	}
	return nil
}

// Submit books an appointment. The guard runs first, then the conflict
// check, then the client upsert, then the insert. The insert is backed by
// the storage overlap constraint, so a booking that races past the conflict
// check still fails with a SlotConflictError.
func (s *Service) Submit(ctx context.Context, req Request) (Result, error) {
	ctx, span := tracer.Start(ctx, "booking.Submit")
	defer span.End()

	res, err := s.submit(ctx, req)
	s.metrics.ObserveBooking(outcome(res, err))
	if err != nil {
		span.RecordError(err)
	} else {
		span.SetAttributes(attribute.String("appointment_id", res.Appointment.ID), attribute.Bool("replayed", res.Replayed))
	}
	return res, err
}

func (s *Service) submit(ctx context.Context, req Request) (Result, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	normalized := phone.Normalize(req.ClientPhone)
	if !phone.Valid(normalized) {
		return Result{}, invalid("client_phone", "phone number is invalid")
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		return Result{}, invalid("date", "date must be YYYY-MM-DD")
	}
	start, err := timeofday.Parse(req.Time)
	if err != nil || !timeofday.Valid(start) {
		return Result{}, invalid("time", "time must be HH:MM")
	}

	company, err := s.Company(ctx, req.CompanyID, req.Slug)
	if err != nil {
		return Result{}, err
	}
	if req.IdempotencyKey != "" {
		if res, ok, err := s.replay(ctx, company.ID, req.IdempotencyKey); err != nil || ok {
			return res, err
		}
	}

	var settings *model.Settings
	st, err := s.store.GetSettings(ctx, company.ID)
	switch {
	case err == nil:
		settings = &st
	case !errors.Is(err, model.ErrNotFound):
		return Result{}, fmt.Errorf("booking: load settings: %w", err)
	}

	now := s.availability.LocalNow(settings)
	if date.Before(model.CivilDate(now)) {
		return Result{}, invalid("date", "date is in the past")
	}
	if !availability.InBookingWindow(settings, date, now) {
		return Result{}, invalid("date", "date is beyond the advance booking window")
	}

	svc, err := s.store.GetService(ctx, company.ID, req.ServiceID)
	if errors.Is(err, model.ErrNotFound) || (err == nil && !svc.IsActive) {
		return Result{}, ErrServiceNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("booking: load service: %w", err)
	}

	hours := s.resolver.ResolveWith(ctx, company.ID, settings, date)
	if hours.Source == schedule.SourceLoadFailed {
		return Result{}, fmt.Errorf("%w: business hours could not be loaded", ErrUnavailable)
	}
	if !hours.IsOpen {
		return Result{}, invalid("date", "business is closed on this date")
	}
	interval := 30
	if settings != nil {
		interval = settings.Interval()
	}
	slotReq := availability.Request{
		Hours:           hours,
		IntervalMinutes: interval,
		Date:            date,
		Now:             now,
		LeadTime:        s.availability.LeadTime(),
		DurationMinutes: svc.DurationMinutes,
	}
	if !availability.Offered(slotReq, start) {
		if availability.Elapsed(slotReq, start) {
			return Result{}, invalid("time", "time has already passed")
		}
		return Result{}, invalid("time", "time is outside business hours")
	}

	decision, err := s.guard.Check(ctx, company.ID, normalized, company.IsAdmin)
	if err != nil {
		return Result{}, err
	}
	if !decision.CanBook {
		return Result{}, &LimitError{Decision: decision}
	}

	verdict, err := s.checker.Check(ctx, company.ID, date, start, svc.DurationMinutes)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if verdict.Conflict {
		return Result{}, &SlotConflictError{Time: req.Time, With: verdict.With}
	}

	client, created, err := s.upserter.Upsert(ctx, clients.Input{
		CompanyID: company.ID,
		Name:      req.ClientName,
		Phone:     req.ClientPhone,
		Email:     req.ClientEmail,
		Notes:     req.Notes,
	})
	if err != nil {
		return Result{}, err
	}

	status := model.StatusConfirmed
	if settings != nil && !settings.AutoConfirm {
		status = model.StatusPending
	}
	appt := model.Appointment{
		CompanyID:       company.ID,
		ClientID:        client.ID,
		ServiceID:       svc.ID,
		ProfessionalID:  req.ProfessionalID,
		Date:            date,
		StartMinute:     start,
		DurationMinutes: svc.DurationMinutes,
		Status:          status,
	}
	err = s.store.CreateAppointment(ctx, &appt, storage.CreateOptions{
		IdempotencyKey: req.IdempotencyKey,
		EventTypes:     []string{outbox.TopicAppointmentBooked},
	})
	switch {
	case errors.Is(err, model.ErrIdempotencyConflict), errors.Is(err, model.ErrSlotTaken) && req.IdempotencyKey != "":
		// A concurrent submission with the same key may have won.
		if res, ok, rerr := s.replay(ctx, company.ID, req.IdempotencyKey); rerr != nil || ok {
			return res, rerr
		}
		if errors.Is(err, model.ErrSlotTaken) {
			return Result{}, &SlotConflictError{Time: req.Time}
		}
		return Result{}, fmt.Errorf("booking: create appointment: %w", err)
	case errors.Is(err, model.ErrSlotTaken):
		return Result{}, &SlotConflictError{Time: req.Time}
	case err != nil:
		return Result{}, fmt.Errorf("booking: create appointment: %w", err)
	}
	appt.ServiceName = svc.Name
	appt.ClientName = client.Name
	appt.ClientPhone = client.Phone

	s.availability.Invalidate(ctx, availability.Change{
		CompanyID:     company.ID,
		Date:          req.Date,
		Reason:        "booked",
		AppointmentID: appt.ID,
	})
	s.logger.Info("appointment booked",
		"business_id", company.ID,
		"appointment_id", appt.ID,
		"client_id", client.ID,
		"client_created", created,
		"date", req.Date,
		"time", req.Time,
	)
	return Result{Appointment: appt, Client: client, ClientCreated: created, Limits: decision}, nil
}

// Company resolves a business by id, or by slug when id is empty.
func (s *Service) Company(ctx context.Context, id, slug string) (model.Company, error) {
	var (
		c   model.Company
		err error
	)
	if id != "" {
		c, err = s.store.GetCompany(ctx, id)
	} else {
		c, err = s.store.GetCompanyBySlug(ctx, slug)
	}
	if errors.Is(err, model.ErrNotFound) {
		return model.Company{}, ErrCompanyNotFound
	}
	if err != nil {
		return model.Company{}, fmt.Errorf("booking: load business: %w", err)
	}
	return c, nil
}

// Limits reports the quota snapshot for a phone number.
func (s *Service) Limits(ctx context.Context, companyID, rawPhone string) (limits.Decision, error) {
	company, err := s.Company(ctx, companyID, "")
	if err != nil {
		return limits.Decision{}, err
	}
	normalized := phone.Normalize(rawPhone)
	if !phone.Valid(normalized) {
		return limits.Decision{}, invalid("phone", "phone number is invalid")
	}
	return s.guard.Check(ctx, company.ID, normalized, company.IsAdmin)
}

func (s *Service) replay(ctx context.Context, companyID, key string) (Result, bool, error) {
	id, err := s.store.FindIdempotentAppointment(ctx, companyID, key)
	if errors.Is(err, model.ErrNotFound) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("booking: idempotency lookup: %w", err)
	}
	appt, err := s.store.GetAppointment(ctx, companyID, id)
	if err != nil {
		return Result{}, false, fmt.Errorf("booking: idempotency replay: %w", err)
	}
	return Result{
		Appointment: appt,
		Client:      model.Client{ID: appt.ClientID, CompanyID: companyID, Name: appt.ClientName, Phone: appt.ClientPhone},
		Replayed:    true,
	}, true, nil
}

// Cancel soft-cancels an appointment and frees its time. Cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, companyID, appointmentID, reason string) (model.Appointment, error) {
	return s.Transition(ctx, companyID, appointmentID, model.StatusCancelled, reason)
}

// Transition moves an appointment forward: pending to confirmed, completed
// or cancelled; confirmed to completed or cancelled.
func (s *Service) Transition(ctx context.Context, companyID, appointmentID string, to model.Status, reason string) (model.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, companyID, appointmentID)
	if errors.Is(err, model.ErrNotFound) {
		return model.Appointment{}, ErrAppointmentNotFound
	}
	if err != nil {
		return model.Appointment{}, fmt.Errorf("booking: load appointment: %w", err)
	}
	if appt.Status == to && to == model.StatusCancelled {
		return appt, nil
	}
	if !appt.Status.CanTransitionTo(to) {
		return model.Appointment{}, &TransitionError{From: appt.Status, To: to}
	}

	from := appt.Status
	appt.Status = to
	eventType := outbox.TopicAppointmentStatusChanged
	if to == model.StatusCancelled {
		appt.CancelReason = strings.TrimSpace(reason)
		eventType = outbox.TopicAppointmentCancelled
	}
	evt, err := outbox.AppointmentEvent(eventType, appt, from)
	if err != nil {
		return model.Appointment{}, err
	}
	err = s.store.UpdateAppointmentStatus(ctx, &appt, from, []outbox.Event{evt})
	if errors.Is(err, model.ErrStatusChanged) {
		return model.Appointment{}, fmt.Errorf("%w: appointment changed concurrently", ErrInvalidTransition)
	}
	if err != nil {
		return model.Appointment{}, fmt.Errorf("booking: update status: %w", err)
	}

	if !to.Occupies() {
		s.availability.Invalidate(ctx, availability.Change{
			CompanyID:     companyID,
			Date:          model.FormatDate(appt.Date),
			Reason:        string(to),
			AppointmentID: appt.ID,
		})
	}
	s.logger.Info("appointment status changed",
		"business_id", companyID,
		"appointment_id", appt.ID,
		"from", from,
		"to", to,
	)
	return appt, nil
}

func outcome(res Result, err error) string {
	var verr *ValidationError
	switch {
	case err == nil && res.Replayed:
		return metrics.OutcomeReplayed
	case err == nil:
		return metrics.OutcomeBooked
	case errors.As(err, &verr), errors.Is(err, ErrCompanyNotFound), errors.Is(err, ErrServiceNotFound):
		return metrics.OutcomeInvalid
	case errors.Is(err, ErrLimitReached):
		return metrics.OutcomeLimitReached
	case errors.Is(err, ErrSlotUnavailable):
		return metrics.OutcomeSlotConflict
	default:
		return metrics.OutcomeError
	}
}

// Now is exposed for handlers that need the business-local clock.
func (s *Service) Now(settings *model.Settings) time.Time {
	return s.availability.LocalNow(settings)
}
