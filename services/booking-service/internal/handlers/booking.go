package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/zapagenda/libs/httpx"
	"github.com/md-rashed-zaman/zapagenda/libs/timeofday"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/clients"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/storage"
)

const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeLimitReached       = "MAX_LIMIT_REACHED"
	CodeSlotUnavailable    = "SLOT_UNAVAILABLE"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"

	BusinessHeader    = "X-Business-Id"
	IdempotencyHeader = "Idempotency-Key"
)

type AppointmentLister interface {
	ListAppointments(ctx context.Context, companyID string, f storage.ListFilter) ([]model.Appointment, error)
}

type BookingHandler struct {
	booking      *booking.Service
	slots        *availability.Service
	appointments AppointmentLister
	dedup        *clients.Deduplicator
	broker       *availability.Broker
	logger       *slog.Logger
}

func NewBookingHandler(svc *booking.Service, slots *availability.Service, appointments AppointmentLister, dedup *clients.Deduplicator, broker *availability.Broker, logger *slog.Logger) *BookingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingHandler{
		booking:      svc,
		slots:        slots,
		appointments: appointments,
		dedup:        dedup,
		broker:       broker,
		logger:       logger,
	}
}

func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/public/companies", h.Company)
	mux.HandleFunc("/api/v1/public/slots", h.Slots)
	mux.HandleFunc("/api/v1/public/book", h.Create)
	mux.HandleFunc("/api/v1/public/limits", h.Limits)
	mux.HandleFunc("/api/v1/public/availability/stream", h.Stream)
	mux.HandleFunc("/api/v1/appointments", h.List)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/appointments/status", h.Status)
	mux.HandleFunc("/api/v1/clients/deduplicate", h.Deduplicate)
}

type createBookingRequest struct {
	BusinessID     string `json:"business_id"`
	Slug           string `json:"slug"`
	ServiceID      string `json:"service_id"`
	ProfessionalID string `json:"professional_id"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	ClientName     string `json:"client_name"`
	ClientPhone    string `json:"client_phone"`
	ClientEmail    string `json:"client_email"`
	Notes          string `json:"notes"`
}

type clientResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Created bool   `json:"created"`
}

type createBookingResponse struct {
	Appointment appointmentResponse `json:"appointment"`
	Client      clientResponse      `json:"client"`
	Limits      any                 `json:"limits,omitempty"`
	Replayed    bool                `json:"replayed"`
}

type appointmentResponse struct {
	ID              string `json:"id"`
	BusinessID      string `json:"business_id"`
	ClientID        string `json:"client_id"`
	ServiceID       string `json:"service_id"`
	ProfessionalID  string `json:"professional_id,omitempty"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	ServiceName     string `json:"service_name,omitempty"`
	ClientName      string `json:"client_name,omitempty"`
	ClientPhone     string `json:"client_phone,omitempty"`
	CancelReason    string `json:"cancel_reason,omitempty"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	out := appointmentResponse{
		ID:              a.ID,
		BusinessID:      a.CompanyID,
		ClientID:        a.ClientID,
		ServiceID:       a.ServiceID,
		ProfessionalID:  a.ProfessionalID,
		Date:            model.FormatDate(a.Date),
		Time:            timeofday.Format(a.StartMinute),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		ServiceName:     a.ServiceName,
		ClientName:      a.ClientName,
		ClientPhone:     a.ClientPhone,
		CancelReason:    a.CancelReason,
	}
	if a.CancelledAt != nil {
		out.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	if !a.CreatedAt.IsZero() {
		out.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	if !validID(w, "business_id", req.BusinessID) || !validID(w, "service_id", req.ServiceID) {
		return
	}

	res, err := h.booking.Submit(r.Context(), booking.Request{
		CompanyID:      req.BusinessID,
		Slug:           req.Slug,
		ServiceID:      req.ServiceID,
		ProfessionalID: req.ProfessionalID,
		Date:           req.Date,
		Time:           req.Time,
		ClientName:     req.ClientName,
		ClientPhone:    req.ClientPhone,
		ClientEmail:    req.ClientEmail,
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	resp := createBookingResponse{
		Appointment: toAppointmentResponse(res.Appointment),
		Client:      clientResponse{ID: res.Client.ID, Name: res.Client.Name, Phone: res.Client.Phone, Created: res.ClientCreated},
		Replayed:    res.Replayed,
	}
	if res.Replayed {
		status = http.StatusOK
	} else {
		resp.Limits = res.Limits
	}
	httpx.WriteJSON(w, status, resp)
}

type companyResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Phone string `json:"phone,omitempty"`
}

func (h *BookingHandler) Company(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	slug := strings.TrimSpace(r.URL.Query().Get("slug"))
	if slug == "" {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, "slug is required", nil)
		return
	}
	c, err := h.booking.Company(r.Context(), "", slug)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, companyResponse{ID: c.ID, Name: c.Name, Slug: c.Slug, Phone: c.Phone})
}

type slotsResponse struct {
	BusinessID string   `json:"business_id"`
	Date       string   `json:"date"`
	ServiceID  string   `json:"service_id,omitempty"`
	Slots      []string `json:"slots"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	date := strings.TrimSpace(q.Get("date"))
	day, err := model.ParseDate(date)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, "date must be YYYY-MM-DD", map[string]string{"field": "date"})
		return
	}
	companyID := strings.TrimSpace(q.Get("business_id"))
	slug := strings.TrimSpace(q.Get("slug"))
	if companyID == "" && slug == "" {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, "business_id or slug is required", map[string]string{"field": "business_id"})
		return
	}
	serviceID := strings.TrimSpace(q.Get("service_id"))
	if !validID(w, "business_id", companyID) || !validID(w, "service_id", serviceID) {
		return
	}
	company, err := h.booking.Company(r.Context(), companyID, slug)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	slots, err := h.slots.Slots(r.Context(), availability.Query{CompanyID: company.ID, ServiceID: serviceID, Date: day})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if slots == nil {
		slots = []string{}
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{BusinessID: company.ID, Date: date, ServiceID: serviceID, Slots: slots})
}

func (h *BookingHandler) Limits(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	companyID := strings.TrimSpace(q.Get("business_id"))
	if companyID == "" {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, "business_id is required", map[string]string{"field": "business_id"})
		return
	}
	if !validID(w, "business_id", companyID) {
		return
	}
	d, err := h.booking.Limits(r.Context(), companyID, q.Get("phone"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, d)
}

// writeError maps booking failures onto the JSON error envelope.
func (h *BookingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr     *booking.ValidationError
		limitErr *booking.LimitError
		slotErr  *booking.SlotConflictError
	)
	switch {
	case errors.As(err, &verr):
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, verr.Message, map[string]string{"field": verr.Field})
	case errors.Is(err, booking.ErrCompanyNotFound), errors.Is(err, booking.ErrServiceNotFound), errors.Is(err, booking.ErrAppointmentNotFound):
		httpx.WriteError(w, http.StatusNotFound, CodeNotFound, err.Error(), nil)
	case errors.As(err, &limitErr):
		httpx.WriteError(w, http.StatusConflict, CodeLimitReached, limitErr.Error(), limitErr.Decision)
	case errors.As(err, &slotErr):
		var details any
		if slotErr.With != nil {
			details = slotErr.With
		}
		httpx.WriteError(w, http.StatusConflict, CodeSlotUnavailable, booking.ErrSlotUnavailable.Error(), details)
	case errors.Is(err, booking.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, CodeInvalidTransition, err.Error(), nil)
	case retryable(err):
		h.logger.Warn("request failed", "path", r.URL.Path, "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, "temporarily unavailable, please retry", nil)
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, CodeInternal, "internal error", nil)
	}
}

// retryable reports store and transport failures the caller may retry.
func retryable(err error) bool {
	var netErr net.Error
	return errors.Is(err, booking.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	httpx.WriteError(w, http.StatusMethodNotAllowed, CodeValidation, "method not allowed", nil)
	return false
}

func businessID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(BusinessHeader))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, BusinessHeader+" header is required", nil)
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, BusinessHeader+" header must be a UUID", nil)
		return "", false
	}
	return id, true
}

// validID rejects a non-empty id that is not a UUID, since no row can carry
// it. Required checks stay with the caller.
func validID(w http.ResponseWriter, field, raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return true
	}
	if _, err := uuid.Parse(raw); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, field+" must be a UUID", map[string]string{"field": field})
		return false
	}
	return true
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return n, nil
}
