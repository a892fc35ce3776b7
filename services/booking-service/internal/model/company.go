package model

import "time"

type Company struct {
	ID      string
	Name    string
	Slug    string
	Phone   string
	IsAdmin bool
}

const DefaultTimezone = "America/Sao_Paulo"

// Settings is the company-wide booking configuration.
type Settings struct {
	CompanyID                   string
	WorkingDays                 []int // 0 = Sunday
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

func (s Settings) WorksOn(weekday time.Weekday) bool {
	for _, d := range s.WorkingDays {
		if d == int(weekday) {
			return true
		}
	}
	return false
}

// Interval returns the slot step, 30 minutes when unset.
func (s Settings) Interval() int {
	if s.SlotIntervalMinutes <= 0 {
		return 30
	}
	return s.SlotIntervalMinutes
}

// DailySchedule overrides Settings for one weekday when active.
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
}
