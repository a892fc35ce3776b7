package booking

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/limits"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
)

var (
	ErrCompanyNotFound     = errors.New("business not found")
	ErrServiceNotFound     = availability.ErrServiceNotFound
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrLimitReached        = errors.New("booking limit reached")
	ErrSlotUnavailable     = errors.New("time slot is no longer available")
	ErrInvalidTransition   = errors.New("invalid status transition")
	// ErrUnavailable marks failures the caller should retry, such as a
	// conflict check that could not reach the store.
	ErrUnavailable = errors.New("booking temporarily unavailable")
)

// ValidationError is a user-correctable problem with the request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// LimitError carries the quota snapshot that blocked the booking.
type LimitError struct {
	Decision limits.Decision
}

func (e *LimitError) Error() string {
	if !e.Decision.Simultaneous.CanBook {
		return fmt.Sprintf("client already has %d active appointments (limit %d)",
			e.Decision.Simultaneous.CurrentCount, e.Decision.Simultaneous.Limit)
	}
	return fmt.Sprintf("client already has %d appointments this month (limit %d)",
		e.Decision.Monthly.CurrentCount, e.Decision.Monthly.Limit)
}

func (e *LimitError) Unwrap() error { return ErrLimitReached }

// SlotConflictError names the appointment occupying the requested time, when known.
type SlotConflictError struct {
	Time string
	With *availability.Booked
}

func (e *SlotConflictError) Error() string {
	if e.With != nil {
		return fmt.Sprintf("%s overlaps the appointment at %s", e.Time, e.With.Time)
	}
	return ErrSlotUnavailable.Error()
}

func (e *SlotConflictError) Unwrap() error { return ErrSlotUnavailable }

type TransitionError struct {
	From model.Status
	To   model.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move appointment from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
