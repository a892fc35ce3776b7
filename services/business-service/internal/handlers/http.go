package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/zapagenda/libs/httpx"
	"github.com/md-rashed-zaman/zapagenda/libs/timeofday"
	"github.com/md-rashed-zaman/zapagenda/services/business-service/internal/storage"
)

const (
	CodeValidation = "VALIDATION_FAILED"
	CodeNotFound   = "NOT_FOUND"
	CodeConflict   = "SLUG_TAKEN"
	CodeInternal   = "INTERNAL_ERROR"

	BusinessHeader = "X-Business-Id"
)

// Store is implemented by storage.Repository.
type Store interface {
	CreateCompany(ctx context.Context, c *storage.Company) error
	GetCompany(ctx context.Context, id string) (storage.Company, error)
	UpdateCompany(ctx context.Context, c *storage.Company) error
	GetSettings(ctx context.Context, companyID string) (storage.Settings, error)
	UpdateSettings(ctx context.Context, s *storage.Settings) error
	ListDailySchedules(ctx context.Context, companyID string) ([]storage.DailySchedule, error)
	UpsertDailySchedule(ctx context.Context, d storage.DailySchedule) error
	DeleteDailySchedule(ctx context.Context, companyID string, weekday int) error
	CreateService(ctx context.Context, s *storage.Service) error
	ListServices(ctx context.Context, companyID string, includeInactive bool, limit int) ([]storage.Service, error)
	SetServiceActive(ctx context.Context, companyID, serviceID string, active bool) error
}

type Handler struct {
	repo   Store
	logger *slog.Logger
}

func New(repo Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/business/companies", h.CreateCompany)
	mux.HandleFunc("/api/v1/business/profile", methods(map[string]http.HandlerFunc{
		http.MethodGet: h.GetProfile,
		http.MethodPut: h.UpdateProfile,
	}))
	mux.HandleFunc("/api/v1/business/settings", methods(map[string]http.HandlerFunc{
		http.MethodGet: h.GetSettings,
		http.MethodPut: h.UpdateSettings,
	}))
	mux.HandleFunc("/api/v1/business/schedules", methods(map[string]http.HandlerFunc{
		http.MethodGet:    h.ListSchedules,
		http.MethodPut:    h.UpsertSchedule,
		http.MethodDelete: h.DeleteSchedule,
	}))
	mux.HandleFunc("/api/v1/business/services", methods(map[string]http.HandlerFunc{
		http.MethodGet:  h.ListServices,
		http.MethodPost: h.CreateService,
	}))
	mux.HandleFunc("/api/v1/business/services/status", h.SetServiceStatus)
}

func methods(byMethod map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fn, ok := byMethod[r.Method]; ok {
			fn(w, r)
			return
		}
		httpx.WriteError(w, http.StatusMethodNotAllowed, CodeValidation, "method not allowed", nil)
	}
}

func businessIDFromHeader(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(BusinessHeader))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, "missing "+BusinessHeader, nil)
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, BusinessHeader+" must be a uuid", nil)
		return "", false
	}
	return id, true
}

type companyPayload struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Phone   string `json:"phone"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

func toCompanyPayload(c storage.Company) companyPayload {
	return companyPayload{ID: c.ID, Name: c.Name, Slug: c.Slug, Phone: c.Phone, IsAdmin: c.IsAdmin}
}

func (p *companyPayload) normalize() *fieldError {
	p.Name = strings.TrimSpace(p.Name)
	p.Slug = strings.ToLower(strings.TrimSpace(p.Slug))
	p.Phone = strings.TrimSpace(p.Phone)
	if p.Name == "" {
		return &fieldError{"name", "is required"}
	}
	if !validSlug(p.Slug) {
		return &fieldError{"slug", "must be 3-63 lowercase letters, digits or hyphens"}
	}
	return nil
}

func (h *Handler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, CodeValidation, "method not allowed", nil)
		return
	}

	var req companyPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	if fe := req.normalize(); fe != nil {
		fe.write(w)
		return
	}

	c := storage.Company{Name: req.Name, Slug: req.Slug, Phone: req.Phone}
	if err := h.repo.CreateCompany(r.Context(), &c); err != nil {
		h.writeStoreError(w, r, "create company", err)
		return
	}
	h.logger.Info("company created", "business_id", c.ID, "slug", c.Slug)
	httpx.WriteJSON(w, http.StatusCreated, toCompanyPayload(c))
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessIDFromHeader(w, r)
	if !ok {
		return
	}

	c, err := h.repo.GetCompany(r.Context(), businessID)
	if err != nil {
		h.writeStoreError(w, r, "get company", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toCompanyPayload(c))
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessIDFromHeader(w, r)
	if !ok {
		return
	}

	var req companyPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	if fe := req.normalize(); fe != nil {
		fe.write(w)
		return
	}

	c := storage.Company{ID: businessID, Name: req.Name, Slug: req.Slug, Phone: req.Phone}
	if err := h.repo.UpdateCompany(r.Context(), &c); err != nil {
		h.writeStoreError(w, r, "update company", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toCompanyPayload(c))
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessIDFromHeader(w, r)
	if !ok {
		return
	}

	s, err := h.repo.GetSettings(r.Context(), businessID)
	if err != nil {
		h.writeStoreError(w, r, "get settings", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSettingsPayload(s))
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessIDFromHeader(w, r)
	if !ok {
		return
	}

	var req settingsPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	s, fe := req.toSettings(businessID)
	if fe != nil {
		fe.write(w)
		return
	}
	if err := h.repo.UpdateSettings(r.Context(), &s); err != nil {
		h.writeStoreError(w, r, "update settings", err)
		return
	}
	h.logger.Info("settings updated", "business_id", businessID)
	httpx.WriteJSON(w, http.StatusOK, toSettingsPayload(s))
}

func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessIDFromHeader(w, r)
	if !ok {
		return
	}

	days, err := h.repo.ListDailySchedules(r.Context(), businessID)
	if err != nil {
		h.writeStoreError(w, r, "list daily schedules", err)
		return
	}
	out := make([]schedulePayload, 0, len(days))
	for _, d := range days {
		out = append(out, toSchedulePayload(d))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"schedules": out})
}

func (h *Handler) UpsertSchedule(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessIDFromHeader(w, r)
	if !ok {
		return
	}

	var req schedulePayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	d, fe := req.toSchedule(businessID)
	if fe != nil {
		fe.write(w)
		return
	}
	if err := h.repo.UpsertDailySchedule(r.Context(), d); err != nil {
		h.writeStoreError(w, r, "upsert daily schedule", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSchedulePayload(d))
}

func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessIDFromHeader(w, r)
	if !ok {
		return
	}

	weekday, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("weekday")))
	if err != nil || weekday < 0 || weekday > 6 {
		(&fieldError{"weekday", "must be 0 (Sunday) to 6 (Saturday)"}).write(w)
		return
	}
	if err := h.repo.DeleteDailySchedule(r.Context(), businessID, weekday); err != nil {
		h.writeStoreError(w, r, "delete daily schedule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type servicePayload struct {
	ID              string `json:"id,omitempty"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	IsActive        *bool  `json:"is_active,omitempty"`
}

func toServicePayload(s storage.Service) servicePayload {
	active := s.IsActive
	return servicePayload{ID: s.ID, Name: s.Name, DurationMinutes: s.DurationMinutes, PriceCents: s.PriceCents, IsActive: &active}
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessIDFromHeader(w, r)
	if !ok {
		return
	}

	var req servicePayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	switch {
	case req.Name == "":
		(&fieldError{"name", "is required"}).write(w)
		return
	case req.DurationMinutes <= 0 || req.DurationMinutes > timeofday.EndOfDay:
		(&fieldError{"duration_minutes", "must be between 1 and 1440"}).write(w)
		return
	case req.PriceCents < 0:
		(&fieldError{"price_cents", "must not be negative"}).write(w)
		return
	}

	s := storage.Service{
		CompanyID:       businessID,
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		PriceCents:      req.PriceCents,
		IsActive:        req.IsActive == nil || *req.IsActive,
	}
	if err := h.repo.CreateService(r.Context(), &s); err != nil {
		h.writeStoreError(w, r, "create service", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toServicePayload(s))
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessIDFromHeader(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	includeInactive := q.Get("include_inactive") == "true"
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			(&fieldError{"limit", "must be a positive integer"}).write(w)
			return
		}
		limit = n
	}

	services, err := h.repo.ListServices(r.Context(), businessID, includeInactive, limit)
	if err != nil {
		h.writeStoreError(w, r, "list services", err)
		return
	}
	out := make([]servicePayload, 0, len(services))
	for _, s := range services {
		out = append(out, toServicePayload(s))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"services": out})
}

func (h *Handler) SetServiceStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, CodeValidation, "method not allowed", nil)
		return
	}
	businessID, ok := businessIDFromHeader(w, r)
	if !ok {
		return
	}

	var req struct {
		ServiceID string `json:"service_id"`
		IsActive  *bool  `json:"is_active"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	if _, err := uuid.Parse(strings.TrimSpace(req.ServiceID)); err != nil {
		(&fieldError{"service_id", "must be a uuid"}).write(w)
		return
	}
	if req.IsActive == nil {
		(&fieldError{"is_active", "is required"}).write(w)
		return
	}
	if err := h.repo.SetServiceActive(r.Context(), businessID, strings.TrimSpace(req.ServiceID), *req.IsActive); err != nil {
		h.writeStoreError(w, r, "set service active", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"service_id": strings.TrimSpace(req.ServiceID),
		"is_active":  *req.IsActive,
	})
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, CodeNotFound, "not found", nil)
	case errors.Is(err, storage.ErrSlugTaken):
		httpx.WriteError(w, http.StatusConflict, CodeConflict, "slug already taken", map[string]string{"field": "slug"})
	default:
		h.logger.ErrorContext(r.Context(), op+" failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, CodeInternal, "internal error", nil)
	}
}
