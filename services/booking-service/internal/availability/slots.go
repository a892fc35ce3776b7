package availability

import (
	"time"

	"github.com/md-rashed-zaman/zapagenda/libs/timeofday"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/schedule"
)

// Request is everything the generator needs for one date. It does no I/O.
type Request struct {
	Hours           schedule.Hours
	IntervalMinutes int
	Date            time.Time // civil date
	Now             time.Time // wall clock in the business time zone
	LeadTime        time.Duration
	// DurationMinutes of the requested service. Zero means unknown; the
	// interval is then used as the conflict window and the closing-time
	// check is skipped.
	DurationMinutes int
	Booked          []Booked
}

// Generate returns the bookable start times for req as "HH:MM", ascending.
func Generate(req Request) []string {
	starts := Starts(req)
	out := make([]string, 0, len(starts))
	for _, m := range starts {
		out = append(out, timeofday.Format(m))
	}
	return out
}

// Starts is Generate in minutes since midnight.
func Starts(req Request) []int {
	h := req.Hours
	if !h.IsOpen || req.IntervalMinutes <= 0 || h.CloseMinute <= h.OpenMinute {
		return nil
	}

	isToday, cutoff := req.todayCutoff()
	if !req.Now.IsZero() && req.Date.Before(model.CivilDate(req.Now)) {
		return nil
	}

	window := req.DurationMinutes
	if window <= 0 {
		window = req.IntervalMinutes
	}

	var starts []int
	for cur := h.OpenMinute; cur < h.CloseMinute; cur += req.IntervalMinutes {
		if isToday && cur <= cutoff {
			continue
		}
		if h.InLunch(cur) {
			continue
		}
		if req.DurationMinutes > 0 && cur+req.DurationMinutes > h.CloseMinute {
			continue
		}
		if _, hit := FirstConflict(cur, window, req.Booked); hit {
			continue
		}
		starts = append(starts, cur)
	}
	return starts
}

// todayCutoff is the last minute of req.Date that is too close to now to
// book, when req.Date is today.
func (req Request) todayCutoff() (bool, int) {
	if req.Now.IsZero() || !req.Date.Equal(model.CivilDate(req.Now)) {
		return false, -1
	}
	return true, req.Now.Hour()*60 + req.Now.Minute() + int(req.LeadTime/time.Minute)
}

// Elapsed reports whether minute on req.Date is already past, or inside the
// lead time of now.
func Elapsed(req Request, minute int) bool {
	if req.Now.IsZero() {
		return false
	}
	if req.Date.Before(model.CivilDate(req.Now)) {
		return true
	}
	isToday, cutoff := req.todayCutoff()
	return isToday && minute <= cutoff
}

// Offered reports whether minute is one of the starts Generate would return.
func Offered(req Request, minute int) bool {
	for _, m := range Starts(req) {
		if m == minute {
			return true
		}
		if m > minute {
			return false
		}
	}
	return false
}
