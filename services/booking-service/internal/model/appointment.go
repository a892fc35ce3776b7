package model

import "time"

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ActiveStatuses count toward the simultaneous limit.
var ActiveStatuses = []Status{StatusConfirmed, StatusPending}

// Active reports whether s is one of ActiveStatuses.
func (s Status) Active() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// StatusStrings converts statuses for use as a text[] query argument.
func StatusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCompleted, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusConfirmed, StatusPending, StatusCancelled, StatusCompleted:
		return st, true
	}
	return "", false
}

// CanTransitionTo reports whether s may move to next. Cancelled and completed are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Occupies reports whether an appointment in this status blocks its time range.
func (s Status) Occupies() bool {
	return s != StatusCancelled
}

type Appointment struct {
	ID              string
	CompanyID       string
	ClientID        string
	ServiceID       string
	ProfessionalID  string
	Date            time.Time // civil date, midnight UTC
	StartMinute     int
	DurationMinutes int
	Status          Status
	CancelReason    string
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Joined for display and conflict reporting.
	ServiceName string
	ClientName  string
	ClientPhone string
}

func (a Appointment) EndMinute() int {
	return a.StartMinute + a.DurationMinutes
}
