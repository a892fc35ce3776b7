package storage

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/zapagenda/libs/db"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/outbox"
)

const appointmentSelect = `
	SELECT a.id::text, a.company_id::text, a.client_id::text, a.service_id::text, a.professional_id,
		a.appointment_date, a.start_minute, a.duration_minutes, a.status,
		COALESCE(a.cancellation_reason, ''), a.cancelled_at, a.created_at, a.updated_at,
		s.name, c.name, c.phone
	FROM appointments a
	JOIN services s ON s.id = a.service_id
	JOIN clients c ON c.id = a.client_id
`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a      model.Appointment
		status string
	)
	err := row.Scan(
		&a.ID,
		&a.CompanyID,
		&a.ClientID,
		&a.ServiceID,
		&a.ProfessionalID,
		&a.Date,
		&a.StartMinute,
		&a.DurationMinutes,
		&status,
		&a.CancelReason,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.ServiceName,
		&a.ClientName,
		&a.ClientPhone,
	)
	a.Status = model.Status(status)
	return a, err
}

func (r *Repository) queryAppointments(ctx context.Context, op, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		out = append(out, a)
	}
	return out, mapError(op, rows.Err())
}

func (r *Repository) ListDayAppointments(ctx context.Context, companyID string, date time.Time) ([]model.Appointment, error) {
	return r.queryAppointments(ctx, "list day appointments", appointmentSelect+`
		WHERE a.company_id = $1 AND a.appointment_date = $2 AND a.status <> 'cancelled'
		ORDER BY a.start_minute
	`, companyID, date)
}

func (r *Repository) ListAppointments(ctx context.Context, companyID string, f ListFilter) ([]model.Appointment, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	var (
		where = []string{"a.company_id = $1"}
		args  = []any{companyID}
	)
	if !f.From.IsZero() {
		args = append(args, f.From)
		where = append(where, "a.appointment_date >= $"+strconv.Itoa(len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where = append(where, "a.appointment_date <= $"+strconv.Itoa(len(args)))
	}
	args = append(args, f.Limit)
	return r.queryAppointments(ctx, "list appointments", appointmentSelect+`
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY a.appointment_date, a.start_minute
		LIMIT $`+strconv.Itoa(len(args)), args...)
}

func (r *Repository) GetAppointment(ctx context.Context, companyID, id string) (model.Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, appointmentSelect+`
		WHERE a.id = $1 AND a.company_id = $2
	`, id, companyID))
	return a, mapError("get appointment", err)
}

func (r *Repository) CountActiveAppointments(ctx context.Context, companyID, clientID string, from time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE company_id = $1 AND client_id = $2
			AND status = ANY($3)
			AND appointment_date >= $4
	`, companyID, clientID, model.StatusStrings(model.ActiveStatuses), from).Scan(&n)
	return n, mapError("count active appointments", err)
}

func (r *Repository) CountAppointmentsBetween(ctx context.Context, companyID, clientID string, from, to time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE company_id = $1 AND client_id = $2
			AND status <> 'cancelled'
			AND appointment_date >= $3 AND appointment_date < $4
	`, companyID, clientID, from, to).Scan(&n)
	return n, mapError("count monthly appointments", err)
}

// CreateAppointment inserts a, its idempotency key and its events in one
// transaction. Overlaps surface as model.ErrSlotTaken and a reused key as
// model.ErrIdempotencyConflict.
func (r *Repository) CreateAppointment(ctx context.Context, a *model.Appointment, opts CreateOptions) error {
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO appointments
				(company_id, client_id, service_id, professional_id, appointment_date, start_minute, duration_minutes, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id::text, created_at, updated_at
		`, a.CompanyID, a.ClientID, a.ServiceID, a.ProfessionalID, a.Date, a.StartMinute, a.DurationMinutes, string(a.Status),
		).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return err
		}

		if opts.IdempotencyKey != "" {
			if _, err := tx.Exec(ctx, `
				INSERT INTO booking_idempotency_keys (company_id, idempotency_key, appointment_id)
				VALUES ($1, $2, $3)
			`, a.CompanyID, opts.IdempotencyKey, a.ID); err != nil {
				return err
			}
		}
		for _, eventType := range opts.EventTypes {
			evt, err := outbox.AppointmentEvent(eventType, *a, "")
			if err != nil {
				return err
			}
			if err := r.outbox.Insert(ctx, tx, evt); err != nil {
				return err
			}
		}
		return nil
	})
	return mapError("create appointment", err)
}

// UpdateAppointmentStatus moves a from status from to to. It returns
// model.ErrStatusChanged when the row is no longer in from.
func (r *Repository) UpdateAppointmentStatus(ctx context.Context, a *model.Appointment, from model.Status, events []outbox.Event) error {
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = $3,
				cancellation_reason = CASE WHEN $3 = 'cancelled' THEN NULLIF($5, '') ELSE cancellation_reason END,
				cancelled_at = CASE WHEN $3 = 'cancelled' THEN now() ELSE cancelled_at END,
				updated_at = now()
			WHERE id = $1 AND company_id = $2 AND status = $4
			RETURNING cancelled_at, updated_at
		`, a.ID, a.CompanyID, string(a.Status), string(from), a.CancelReason).Scan(&a.CancelledAt, &a.UpdatedAt)
		if db.IsNotFound(err) {
			return model.ErrStatusChanged
		}
		if err != nil {
			return err
		}
		for _, evt := range events {
			if err := r.outbox.Insert(ctx, tx, evt); err != nil {
				return err
			}
		}
		return nil
	})
	return mapError("update appointment status", err)
}

// FindIdempotentAppointment returns the appointment created under key.
func (r *Repository) FindIdempotentAppointment(ctx context.Context, companyID, key string) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		SELECT appointment_id::text
		FROM booking_idempotency_keys
		WHERE company_id = $1 AND idempotency_key = $2
	`, companyID, key).Scan(&id)
	return id, mapError("find idempotency key", err)
}
