package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/zapagenda/libs/db"
)

const constraintCompanySlug = "companies_slug_key"

var (
	ErrNotFound  = errors.New("not found")
	ErrSlugTaken = errors.New("slug already taken")
)

type Repository struct {
	pool db.Querier
}

func NewRepository(pool db.Querier) *Repository {
	return &Repository{pool: pool}
}

type Company struct {
	ID        string
	Name      string
	Slug      string
	Phone     string
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Settings mirrors company_settings. Minute fields count from midnight in
// the company timezone.
type Settings struct {
	CompanyID                   string
	WorkingDays                 []int
	WorkStartMinute             int
	WorkEndMinute               int
	LunchEnabled                bool
	LunchStartMinute            int
	LunchEndMinute              int
	SlotIntervalMinutes         int
	AdvanceBookingDays          int
	MaxSimultaneousAppointments int
	MonthlyAppointmentLimit     *int
	SameDayBooking              bool
	AutoConfirm                 bool
	Timezone                    string
	ThemeColor                  string
	LogoURL                     string
	UpdatedAt                   time.Time
}

// DailySchedule overrides Settings for one weekday (0 = Sunday).
type DailySchedule struct {
	CompanyID        string
	Weekday          int
	StartMinute      int
	EndMinute        int
	IsActive         bool
	HasLunchBreak    bool
	LunchStartMinute int
	LunchEndMinute   int
}

type Service struct {
	ID              string
	CompanyID       string
	Name            string
	DurationMinutes int
	PriceCents      int64
	IsActive        bool
	CreatedAt       time.Time
}

func mapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err), db.IsForeignKeyViolation(err):
		return ErrNotFound
	case db.IsUniqueViolation(err) && db.ConstraintName(err) == constraintCompanySlug:
		return ErrSlugTaken
	}
	return fmt.Errorf("%s: %w", op, err)
}

// CreateCompany inserts the company and its default settings row.
func (r *Repository) CreateCompany(ctx context.Context, c *Company) error {
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO companies (name, slug, phone)
			VALUES ($1, $2, $3)
			RETURNING id::text, created_at, updated_at
		`, c.Name, c.Slug, c.Phone).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO company_settings (company_id) VALUES ($1)`, c.ID)
		return err
	})
	return mapError("create company", err)
}

func (r *Repository) GetCompany(ctx context.Context, id string) (Company, error) {
	var c Company
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, slug, phone, is_admin, created_at, updated_at
		FROM companies
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Slug, &c.Phone, &c.IsAdmin, &c.CreatedAt, &c.UpdatedAt)
	return c, mapError("get company", err)
}

func (r *Repository) UpdateCompany(ctx context.Context, c *Company) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE companies
		SET name = $2, slug = $3, phone = $4, updated_at = now()
		WHERE id = $1
		RETURNING is_admin, created_at, updated_at
	`, c.ID, c.Name, c.Slug, c.Phone).Scan(&c.IsAdmin, &c.CreatedAt, &c.UpdatedAt)
	return mapError("update company", err)
}

func (r *Repository) GetSettings(ctx context.Context, companyID string) (Settings, error) {
	s := Settings{CompanyID: companyID}
	var working []int32
	err := r.pool.QueryRow(ctx, `
		SELECT working_days, work_start_minute, work_end_minute,
			lunch_enabled, lunch_start_minute, lunch_end_minute,
			slot_interval_minutes, advance_booking_days,
			max_simultaneous_appointments, monthly_appointment_limit,
			same_day_booking, auto_confirm, timezone, theme_color, logo_url, updated_at
		FROM company_settings
		WHERE company_id = $1
	`, companyID).Scan(
		&working,
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
	if err != nil {
		return s, mapError("get settings", err)
	}
	s.WorkingDays = make([]int, len(working))
	for i, d := range working {
		s.WorkingDays[i] = int(d)
	}
	return s, nil
}

// UpdateSettings replaces every editable column.
func (r *Repository) UpdateSettings(ctx context.Context, s *Settings) error {
	working := make([]int32, len(s.WorkingDays))
	for i, d := range s.WorkingDays {
		working[i] = int32(d)
	}
	err := r.pool.QueryRow(ctx, `
		UPDATE company_settings
		SET working_days = $2, work_start_minute = $3, work_end_minute = $4,
			lunch_enabled = $5, lunch_start_minute = $6, lunch_end_minute = $7,
			slot_interval_minutes = $8, advance_booking_days = $9,
			max_simultaneous_appointments = $10, monthly_appointment_limit = $11,
			same_day_booking = $12, auto_confirm = $13, timezone = $14,
			theme_color = $15, logo_url = $16, updated_at = now()
		WHERE company_id = $1
		RETURNING updated_at
	`,
		s.CompanyID,
		working,
		s.WorkStartMinute,
		s.WorkEndMinute,
		s.LunchEnabled,
		s.LunchStartMinute,
		s.LunchEndMinute,
		s.SlotIntervalMinutes,
		s.AdvanceBookingDays,
		s.MaxSimultaneousAppointments,
		s.MonthlyAppointmentLimit,
		s.SameDayBooking,
		s.AutoConfirm,
		s.Timezone,
		s.ThemeColor,
		s.LogoURL,
	).Scan(&s.UpdatedAt)
	return mapError("update settings", err)
}

func (r *Repository) ListDailySchedules(ctx context.Context, companyID string) ([]DailySchedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute, is_active, has_lunch_break, lunch_start_minute, lunch_end_minute
		FROM daily_schedules
		WHERE company_id = $1
		ORDER BY weekday
	`, companyID)
	if err != nil {
		return nil, mapError("list daily schedules", err)
	}
	defer rows.Close()

	var out []DailySchedule
	for rows.Next() {
		d := DailySchedule{CompanyID: companyID}
		if err := rows.Scan(&d.Weekday, &d.StartMinute, &d.EndMinute, &d.IsActive, &d.HasLunchBreak, &d.LunchStartMinute, &d.LunchEndMinute); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) UpsertDailySchedule(ctx context.Context, d DailySchedule) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO daily_schedules (company_id, weekday, start_minute, end_minute, is_active, has_lunch_break, lunch_start_minute, lunch_end_minute)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (company_id, weekday) DO UPDATE
		SET start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			is_active = EXCLUDED.is_active,
			has_lunch_break = EXCLUDED.has_lunch_break,
			lunch_start_minute = EXCLUDED.lunch_start_minute,
			lunch_end_minute = EXCLUDED.lunch_end_minute,
			updated_at = now()
	`, d.CompanyID, d.Weekday, d.StartMinute, d.EndMinute, d.IsActive, d.HasLunchBreak, d.LunchStartMinute, d.LunchEndMinute)
	return mapError("upsert daily schedule", err)
}

// DeleteDailySchedule removes the override so the weekday falls back to
// company settings.
func (r *Repository) DeleteDailySchedule(ctx context.Context, companyID string, weekday int) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM daily_schedules WHERE company_id = $1 AND weekday = $2
	`, companyID, weekday)
	if err != nil {
		return mapError("delete daily schedule", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) CreateService(ctx context.Context, s *Service) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO services (company_id, name, duration_minutes, price_cents, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text, created_at
	`, s.CompanyID, s.Name, s.DurationMinutes, s.PriceCents, s.IsActive).Scan(&s.ID, &s.CreatedAt)
	return mapError("create service", err)
}

func (r *Repository) ListServices(ctx context.Context, companyID string, includeInactive bool, limit int) ([]Service, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, duration_minutes, price_cents, is_active, created_at
		FROM services
		WHERE company_id = $1 AND ($2 OR is_active)
		ORDER BY name, id
		LIMIT $3
	`, companyID, includeInactive, limit)
	if err != nil {
		return nil, mapError("list services", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		s := Service{CompanyID: companyID}
		if err := rows.Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.PriceCents, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetServiceActive toggles a service. Deactivated services keep their
// appointments but no longer accept bookings.
func (r *Repository) SetServiceActive(ctx context.Context, companyID, serviceID string, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE services SET is_active = $3, updated_at = now()
		WHERE id = $1 AND company_id = $2
	`, serviceID, companyID, active)
	if err != nil {
		return mapError("set service active", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
