package storage

import (
	"context"

	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
)

const companyColumns = `id::text, name, slug, phone, is_admin`

func (r *Repository) GetCompany(ctx context.Context, id string) (model.Company, error) {
	var c model.Company
	err := r.pool.QueryRow(ctx, `
		SELECT `+companyColumns+`
		FROM companies
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Slug, &c.Phone, &c.IsAdmin)
	return c, mapError("get company", err)
}

func (r *Repository) GetCompanyBySlug(ctx context.Context, slug string) (model.Company, error) {
	var c model.Company
	err := r.pool.QueryRow(ctx, `
		SELECT `+companyColumns+`
		FROM companies
		WHERE slug = $1
	`, slug).Scan(&c.ID, &c.Name, &c.Slug, &c.Phone, &c.IsAdmin)
	return c, mapError("get company by slug", err)
}

func (r *Repository) GetSettings(ctx context.Context, companyID string) (model.Settings, error) {
	s := model.Settings{CompanyID: companyID}
	err := r.pool.QueryRow(ctx, `
		SELECT working_days, work_start_minute, work_end_minute,
			lunch_enabled, lunch_start_minute, lunch_end_minute,
			slot_interval_minutes, advance_booking_days,
			max_simultaneous_appointments, monthly_appointment_limit,
			same_day_booking, auto_confirm, timezone, theme_color, logo_url, updated_at
		FROM company_settings
		WHERE company_id = $1
	`, companyID).Scan(
		&s.WorkingDays,
		&s.WorkStartMinute,
		&s.WorkEndMinute,
		&s.LunchEnabled,
		&s.LunchStartMinute,
		&s.LunchEndMinute,
		&s.SlotIntervalMinutes,
		&s.AdvanceBookingDays,
		&s.MaxSimultaneousAppointments,
		&s.MonthlyAppointmentLimit,
		&s.SameDayBooking,
		&s.AutoConfirm,
		&s.Timezone,
		&s.ThemeColor,
		&s.LogoURL,
		&s.UpdatedAt,
	)
	return s, mapError("get settings", err)
}

func (r *Repository) GetDailySchedule(ctx context.Context, companyID string, weekday int) (model.DailySchedule, error) {
	d := model.DailySchedule{CompanyID: companyID, Weekday: weekday}
	err := r.pool.QueryRow(ctx, `
		SELECT start_minute, end_minute, is_active, has_lunch_break, lunch_start_minute, lunch_end_minute
		FROM daily_schedules
		WHERE company_id = $1 AND weekday = $2
	`, companyID, weekday).Scan(&d.StartMinute, &d.EndMinute, &d.IsActive, &d.HasLunchBreak, &d.LunchStartMinute, &d.LunchEndMinute)
	return d, mapError("get daily schedule", err)
}

func (r *Repository) GetService(ctx context.Context, companyID, serviceID string) (model.Service, error) {
	s := model.Service{CompanyID: companyID}
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, duration_minutes, price_cents, is_active
		FROM services
		WHERE id = $1 AND company_id = $2
	`, serviceID, companyID).Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.PriceCents, &s.IsActive)
	return s, mapError("get service", err)
}
