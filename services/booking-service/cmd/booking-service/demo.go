package main

import (
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/storage"
)

const (
	demoCompanyID = "00000000-0000-0000-0000-000000000001"
	demoServiceID = "00000000-0000-0000-0000-000000000101"
	demoSlug      = "demo"
)

// seedDemo returns an in-memory store with one business so STORAGE_DRIVER=memory is usable out of the box.
func seedDemo() *storage.Memory {
	store := storage.NewMemory(nil)
	monthly := 4
	store.PutCompany(model.Company{ID: demoCompanyID, Name: "Demo Barbershop", Slug: demoSlug, Phone: "5511999990000"})
	store.PutSettings(model.Settings{
		CompanyID:                   demoCompanyID,
		WorkingDays:                 []int{1, 2, 3, 4, 5, 6},
		WorkStartMinute:             9 * 60,
		WorkEndMinute:               18 * 60,
		LunchEnabled:                true,
		LunchStartMinute:            12 * 60,
		LunchEndMinute:              13 * 60,
		SlotIntervalMinutes:         30,
		AdvanceBookingDays:          30,
		MaxSimultaneousAppointments: 2,
		MonthlyAppointmentLimit:     &monthly,
		SameDayBooking:              true,
		AutoConfirm:                 true,
		Timezone:                    model.DefaultTimezone,
	})
	store.PutDailySchedule(model.DailySchedule{
		CompanyID:   demoCompanyID,
		Weekday:     6,
		StartMinute: 9 * 60,
		EndMinute:   13 * 60,
		IsActive:    true,
	})
	store.PutService(model.Service{ID: demoServiceID, CompanyID: demoCompanyID, Name: "Haircut", DurationMinutes: 30, PriceCents: 4500, IsActive: true})
	store.PutService(model.Service{ID: "00000000-0000-0000-0000-000000000102", CompanyID: demoCompanyID, Name: "Haircut + beard", DurationMinutes: 60, PriceCents: 7000, IsActive: true})
	return store
}
