package availability

import (
	"reflect"
	"testing"
	"time"

	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/schedule"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := model.ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func officeHours() schedule.Hours {
	return schedule.Hours{
		IsOpen:           true,
		OpenMinute:       9 * 60,
		CloseMinute:      18 * 60,
		LunchEnabled:     true,
		LunchStartMinute: 12 * 60,
		LunchEndMinute:   13 * 60,
	}
}

func contains(slots []string, s string) bool {
	for _, v := range slots {
		if v == s {
			return true
		}
	}
	return false
}

func TestGenerate_LunchExclusion(t *testing.T) {
	slots := Generate(Request{
		Hours:           officeHours(),
		IntervalMinutes: 30,
		Date:            mustDate(t, "2025-01-10"),
	})
	for _, want := range []string{"09:00", "11:30", "13:00", "17:30"} {
		if !contains(slots, want) {
			t.Fatalf("expected %s in %v", want, slots)
		}
	}
	for _, unwanted := range []string{"12:00", "12:30", "18:00"} {
		if contains(slots, unwanted) {
			t.Fatalf("did not expect %s in %v", unwanted, slots)
		}
	}
	if len(slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(slots))
	}
}

func TestGenerate_SkipsPastTimesToday(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	now := time.Date(2025, 1, 10, 14, 5, 0, 0, loc)
	slots := Generate(Request{
		Hours:           officeHours(),
		IntervalMinutes: 30,
		Date:            mustDate(t, "2025-01-10"),
		Now:             now,
	})
	if contains(slots, "14:00") {
		t.Fatalf("14:00 is in the past: %v", slots)
	}
	if len(slots) == 0 || slots[0] != "14:30" {
		t.Fatalf("expected first slot 14:30, got %v", slots)
	}
}

func TestGenerate_LeadTimeBuffer(t *testing.T) {
	now := time.Date(2025, 1, 10, 14, 5, 0, 0, time.UTC)
	slots := Generate(Request{
		Hours:           officeHours(),
		IntervalMinutes: 30,
		Date:            mustDate(t, "2025-01-10"),
		Now:             now,
		LeadTime:        time.Hour,
	})
	if slots[0] != "15:30" {
		t.Fatalf("expected first slot 15:30 with one hour lead, got %v", slots)
	}
}

func TestGenerate_FutureDateIgnoresClock(t *testing.T) {
	now := time.Date(2025, 1, 9, 23, 59, 0, 0, time.UTC)
	slots := Generate(Request{Hours: officeHours(), IntervalMinutes: 30, Date: mustDate(t, "2025-01-10"), Now: now})
	if slots[0] != "09:00" {
		t.Fatalf("expected 09:00 first, got %v", slots)
	}
	if got := Generate(Request{Hours: officeHours(), IntervalMinutes: 30, Date: mustDate(t, "2025-01-08"), Now: now}); len(got) != 0 {
		t.Fatalf("expected no slots for a past date, got %v", got)
	}
}

func TestGenerate_ServiceMustEndByClose(t *testing.T) {
	slots := Generate(Request{
		Hours:           officeHours(),
		IntervalMinutes: 30,
		Date:            mustDate(t, "2025-01-10"),
		DurationMinutes: 60,
	})
	if contains(slots, "17:30") {
		t.Fatalf("60 minute service at 17:30 runs past close: %v", slots)
	}
	if !contains(slots, "17:00") {
		t.Fatalf("expected 17:00 in %v", slots)
	}
}

func TestGenerate_SkipsBookedRanges(t *testing.T) {
	booked := []Booked{{AppointmentID: "a1", StartMinute: 10 * 60, DurationMinutes: 60}}
	slots := Generate(Request{
		Hours:           officeHours(),
		IntervalMinutes: 30,
		Date:            mustDate(t, "2025-01-10"),
		DurationMinutes: 30,
		Booked:          booked,
	})
	for _, taken := range []string{"10:00", "10:30"} {
		if contains(slots, taken) {
			t.Fatalf("%s overlaps a booking: %v", taken, slots)
		}
	}
	if !contains(slots, "09:30") || !contains(slots, "11:00") {
		t.Fatalf("adjacent slots must stay open: %v", slots)
	}

	// A 60 minute service at 09:30 would run into the 10:00 booking.
	slots = Generate(Request{
		Hours:           officeHours(),
		IntervalMinutes: 30,
		Date:            mustDate(t, "2025-01-10"),
		DurationMinutes: 60,
		Booked:          booked,
	})
	if contains(slots, "09:30") {
		t.Fatalf("09:30 + 60m overlaps 10:00: %v", slots)
	}
}

func TestGenerate_ClosedOrDegenerate(t *testing.T) {
	d := mustDate(t, "2025-01-10")
	if got := Generate(Request{Hours: schedule.Closed(schedule.SourceSettings), IntervalMinutes: 30, Date: d}); len(got) != 0 {
		t.Fatalf("closed day produced %v", got)
	}
	if got := Generate(Request{Hours: officeHours(), IntervalMinutes: 0, Date: d}); len(got) != 0 {
		t.Fatalf("zero interval produced %v", got)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	req := Request{
		Hours:           officeHours(),
		IntervalMinutes: 15,
		Date:            mustDate(t, "2025-01-10"),
		Now:             time.Date(2025, 1, 10, 10, 7, 0, 0, time.UTC),
		DurationMinutes: 45,
		Booked:          []Booked{{StartMinute: 14 * 60, DurationMinutes: 30}},
	}
	first := Generate(req)
	for i := 0; i < 5; i++ {
		if got := Generate(req); !reflect.DeepEqual(first, got) {
			t.Fatalf("run %d differs: %v vs %v", i, got, first)
		}
	}
}

func TestOffered(t *testing.T) {
	req := Request{Hours: officeHours(), IntervalMinutes: 30, Date: mustDate(t, "2025-01-10")}
	if !Offered(req, 10*60) {
		t.Fatalf("10:00 should be offered")
	}
	if Offered(req, 10*60+15) {
		t.Fatalf("10:15 is off the grid")
	}
	if Offered(req, 12*60) {
		t.Fatalf("12:00 is lunch")
	}
}

func TestElapsed(t *testing.T) {
	now := time.Date(2025, 1, 10, 14, 5, 0, 0, time.UTC)
	req := Request{Hours: officeHours(), IntervalMinutes: 30, Date: mustDate(t, "2025-01-10"), Now: now, LeadTime: 30 * time.Minute}
	if !Elapsed(req, 14*60) {
		t.Fatalf("14:00 has passed")
	}
	if !Elapsed(req, 14*60+30) {
		t.Fatalf("14:30 is inside the lead time")
	}
	if Elapsed(req, 15*60) {
		t.Fatalf("15:00 is still ahead")
	}

	req.Date = mustDate(t, "2025-01-11")
	if Elapsed(req, 8*60) {
		t.Fatalf("tomorrow has not started")
	}
	req.Date = mustDate(t, "2025-01-09")
	if !Elapsed(req, 23*60) {
		t.Fatalf("yesterday has passed")
	}
	if Elapsed(Request{Date: mustDate(t, "2025-01-09")}, 0) {
		t.Fatalf("no clock means nothing has elapsed")
	}
}
