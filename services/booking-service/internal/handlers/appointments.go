package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/zapagenda/libs/httpx"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/storage"
)

type listAppointmentsResponse struct {
	Appointments []appointmentResponse `json:"appointments"`
}

// List returns a business's appointments between from and to, inclusive.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	companyID, ok := businessID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var filter storage.ListFilter
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		d, err := model.ParseDate(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, CodeValidation, p.name+" must be YYYY-MM-DD", map[string]string{"field": p.name})
			return
		}
		*p.dst = d
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, err.Error(), map[string]string{"field": "limit"})
		return
	}
	filter.Limit = limit

	appts, err := h.appointments.ListAppointments(r.Context(), companyID, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	httpx.WriteJSON(w, http.StatusOK, listAppointmentsResponse{Appointments: out})
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	companyID, ok := businessID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, "appointment_id is required", map[string]string{"field": "appointment_id"})
		return
	}
	if !validID(w, "appointment_id", req.AppointmentID) {
		return
	}

	appt, err := h.booking.Cancel(r.Context(), companyID, strings.TrimSpace(req.AppointmentID), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
}

func (h *BookingHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	companyID, ok := businessID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	to, valid := model.ParseStatus(strings.TrimSpace(req.Status))
	if !valid {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, "status must be one of pending, confirmed, completed, cancelled", map[string]string{"field": "status"})
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		httpx.WriteError(w, http.StatusBadRequest, CodeValidation, "appointment_id is required", map[string]string{"field": "appointment_id"})
		return
	}
	if !validID(w, "appointment_id", req.AppointmentID) {
		return
	}

	appt, err := h.booking.Transition(r.Context(), companyID, strings.TrimSpace(req.AppointmentID), to, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// Deduplicate merges clients sharing a normalized phone and reports what moved.
func (h *BookingHandler) Deduplicate(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	companyID, ok := businessID(w, r)
	if !ok {
		return
	}
	sum, err := h.dedup.Run(r.Context(), companyID)
	if err != nil {
		h.logger.Error("client deduplication failed", "business_id", companyID, "err", err, "partial", sum)
		httpx.WriteError(w, http.StatusInternalServerError, CodeInternal, "deduplication failed", sum)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sum)
}
