package handlers

import (
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/md-rashed-zaman/zapagenda/libs/httpx"
	"github.com/md-rashed-zaman/zapagenda/libs/timeofday"
	"github.com/md-rashed-zaman/zapagenda/services/business-service/internal/storage"
)

const defaultTimezone = "America/Sao_Paulo"

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

func validSlug(s string) bool {
	return len(s) >= 3 && len(s) <= 63 && slugPattern.MatchString(s)
}

type fieldError struct {
	Field   string
	Message string
}

func (e *fieldError) write(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusBadRequest, CodeValidation, e.Field+": "+e.Message, map[string]string{"field": e.Field})
}

type settingsPayload struct {
	WorkingDays                 []int  `json:"working_days"`
	WorkStart                   string `json:"work_start"`
	WorkEnd                     string `json:"work_end"`
	LunchEnabled                bool   `json:"lunch_enabled"`
	LunchStart                  string `json:"lunch_start"`
	LunchEnd                    string `json:"lunch_end"`
	SlotIntervalMinutes         int    `json:"slot_interval_minutes"`
	AdvanceBookingDays          int    `json:"advance_booking_days"`
	MaxSimultaneousAppointments int    `json:"max_simultaneous_appointments"`
	MonthlyAppointmentLimit     *int   `json:"monthly_appointment_limit"`
	SameDayBooking              bool   `json:"same_day_booking"`
	AutoConfirm                 bool   `json:"auto_confirm"`
	Timezone                    string `json:"timezone"`
	ThemeColor                  string `json:"theme_color"`
	LogoURL                     string `json:"logo_url"`
	UpdatedAt                   string `json:"updated_at,omitempty"`
}

func toSettingsPayload(s storage.Settings) settingsPayload {
	p := settingsPayload{
		WorkingDays:                 s.WorkingDays,
		WorkStart:                   timeofday.Format(s.WorkStartMinute),
		WorkEnd:                     timeofday.Format(s.WorkEndMinute),
		LunchEnabled:                s.LunchEnabled,
		LunchStart:                  timeofday.Format(s.LunchStartMinute),
		LunchEnd:                    timeofday.Format(s.LunchEndMinute),
		SlotIntervalMinutes:         s.SlotIntervalMinutes,
		AdvanceBookingDays:          s.AdvanceBookingDays,
		MaxSimultaneousAppointments: s.MaxSimultaneousAppointments,
		MonthlyAppointmentLimit:     s.MonthlyAppointmentLimit,
		SameDayBooking:              s.SameDayBooking,
		AutoConfirm:                 s.AutoConfirm,
		Timezone:                    s.Timezone,
		ThemeColor:                  s.ThemeColor,
		LogoURL:                     s.LogoURL,
	}
	if p.WorkingDays == nil {
		p.WorkingDays = []int{}
	}
	if !s.UpdatedAt.IsZero() {
		p.UpdatedAt = s.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return p
}

func (p settingsPayload) toSettings(companyID string) (storage.Settings, *fieldError) {
	s := storage.Settings{
		CompanyID:                   companyID,
		LunchEnabled:                p.LunchEnabled,
		SlotIntervalMinutes:         p.SlotIntervalMinutes,
		AdvanceBookingDays:          p.AdvanceBookingDays,
		MaxSimultaneousAppointments: p.MaxSimultaneousAppointments,
		MonthlyAppointmentLimit:     p.MonthlyAppointmentLimit,
		SameDayBooking:              p.SameDayBooking,
		AutoConfirm:                 p.AutoConfirm,
		Timezone:                    strings.TrimSpace(p.Timezone),
		ThemeColor:                  strings.TrimSpace(p.ThemeColor),
		LogoURL:                     strings.TrimSpace(p.LogoURL),
	}

	days := slices.Clone(p.WorkingDays)
	slices.Sort(days)
	days = slices.Compact(days)
	for _, d := range days {
		if d < 0 || d > 6 {
			return s, &fieldError{"working_days", "must contain weekdays 0 (Sunday) to 6 (Saturday)"}
		}
	}
	if days == nil {
		days = []int{}
	}
	s.WorkingDays = days

	var fe *fieldError
	if s.WorkStartMinute, s.WorkEndMinute, fe = parseWindow("work", p.WorkStart, p.WorkEnd); fe != nil {
		return s, fe
	}

	s.LunchStartMinute, s.LunchEndMinute = 12*60, 13*60
	if p.LunchEnabled || p.LunchStart != "" || p.LunchEnd != "" {
		if s.LunchStartMinute, s.LunchEndMinute, fe = parseWindow("lunch", p.LunchStart, p.LunchEnd); fe != nil {
			return s, fe
		}
	}
	if p.LunchEnabled && (s.LunchStartMinute < s.WorkStartMinute || s.LunchEndMinute > s.WorkEndMinute) {
		return s, &fieldError{"lunch_start", "lunch break must fall inside working hours"}
	}

	switch {
	case s.SlotIntervalMinutes < 5 || s.SlotIntervalMinutes > 240:
		return s, &fieldError{"slot_interval_minutes", "must be between 5 and 240"}
	case s.AdvanceBookingDays < 0 || s.AdvanceBookingDays > 365:
		return s, &fieldError{"advance_booking_days", "must be between 0 and 365"}
	case s.MaxSimultaneousAppointments < 0:
		return s, &fieldError{"max_simultaneous_appointments", "must not be negative"}
	case s.MonthlyAppointmentLimit != nil && *s.MonthlyAppointmentLimit < 0:
		return s, &fieldError{"monthly_appointment_limit", "must not be negative"}
	case s.ThemeColor != "" && !colorPattern.MatchString(s.ThemeColor):
		return s, &fieldError{"theme_color", "must look like #RRGGBB"}
	}

	if s.Timezone == "" {
		s.Timezone = defaultTimezone
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return s, &fieldError{"timezone", "unknown time zone"}
	}
	if s.LogoURL != "" {
		u, err := url.Parse(s.LogoURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return s, &fieldError{"logo_url", "must be an absolute http(s) url"}
		}
	}
	return s, nil
}

type schedulePayload struct {
	Weekday       *int   `json:"weekday"`
	Start         string `json:"start"`
	End           string `json:"end"`
	IsActive      bool   `json:"is_active"`
	HasLunchBreak bool   `json:"has_lunch_break"`
	LunchStart    string `json:"lunch_start,omitempty"`
	LunchEnd      string `json:"lunch_end,omitempty"`
}

func toSchedulePayload(d storage.DailySchedule) schedulePayload {
	weekday := d.Weekday
	p := schedulePayload{
		Weekday:       &weekday,
		Start:         timeofday.Format(d.StartMinute),
		End:           timeofday.Format(d.EndMinute),
		IsActive:      d.IsActive,
		HasLunchBreak: d.HasLunchBreak,
	}
	if d.HasLunchBreak {
		p.LunchStart = timeofday.Format(d.LunchStartMinute)
		p.LunchEnd = timeofday.Format(d.LunchEndMinute)
	}
	return p
}

// toSchedule validates hours only for active days; an inactive row closes
// the weekday regardless of its times.
func (p schedulePayload) toSchedule(companyID string) (storage.DailySchedule, *fieldError) {
	d := storage.DailySchedule{CompanyID: companyID, IsActive: p.IsActive, HasLunchBreak: p.HasLunchBreak}
	if p.Weekday == nil || *p.Weekday < 0 || *p.Weekday > 6 {
		return d, &fieldError{"weekday", "must be 0 (Sunday) to 6 (Saturday)"}
	}
	d.Weekday = *p.Weekday
	if !p.IsActive {
		d.HasLunchBreak = false
		return d, nil
	}

	var fe *fieldError
	if d.StartMinute, d.EndMinute, fe = parseWindow("", p.Start, p.End); fe != nil {
		return d, fe
	}
	if !p.HasLunchBreak {
		return d, nil
	}
	if d.LunchStartMinute, d.LunchEndMinute, fe = parseWindow("lunch", p.LunchStart, p.LunchEnd); fe != nil {
		return d, fe
	}
	if d.LunchStartMinute < d.StartMinute || d.LunchEndMinute > d.EndMinute {
		return d, &fieldError{"lunch_start", "lunch break must fall inside working hours"}
	}
	return d, nil
}

// parseWindow parses an HH:MM pair whose start must precede its end.
func parseWindow(prefix, rawStart, rawEnd string) (int, int, *fieldError) {
	startField, endField := "start", "end"
	if prefix != "" {
		startField, endField = prefix+"_start", prefix+"_end"
	}
	start, err := timeofday.Parse(rawStart)
	if err != nil || !timeofday.Valid(start) {
		return 0, 0, &fieldError{startField, "must be HH:MM"}
	}
	end, err := timeofday.Parse(rawEnd)
	if err != nil {
		return 0, 0, &fieldError{endField, "must be HH:MM"}
	}
	if end <= start {
		return 0, 0, &fieldError{endField, "must be after " + startField}
	}
	return start, end, nil
}
