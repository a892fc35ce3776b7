package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/zapagenda/libs/db"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/outbox"
)

// Constraint names from the migrations.
const (
	constraintClientPhone    = "clients_company_phone_key"
	constraintNoOverlap      = "appointments_no_overlap"
	constraintIdempotencyKey = "booking_idempotency_keys_pkey"
)

// Repository is the Postgres store behind every booking-service component.
type Repository struct {
	pool   db.Querier
	outbox *outbox.Repository
}

func NewRepository(pool db.Querier) *Repository {
	return &Repository{pool: pool, outbox: outbox.NewRepository(pool)}
}

// CreateOptions are written in the same transaction as the appointment.
// One outbox event per entry of EventTypes is built from the stored row.
type CreateOptions struct {
	IdempotencyKey string
	EventTypes     []string
}

// ListFilter selects appointments by date; zero bounds are open.
type ListFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

// mapError translates driver errors into model sentinels.
func mapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err), db.IsInvalidText(err):
		// A malformed id names no row.
		return model.ErrNotFound
	case db.IsExclusionViolation(err):
		return model.ErrSlotTaken
	case db.IsUniqueViolation(err):
		switch db.ConstraintName(err) {
		case constraintClientPhone:
			return model.ErrDuplicateClient
		case constraintIdempotencyKey:
			return model.ErrIdempotencyConflict
		}
	}
	if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrStatusChanged) {
		return err
	}
	return fmt.Errorf("storage: %s: %w", op, err)
}
