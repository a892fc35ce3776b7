package storage

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/outbox"
)

// Memory is an in-process store with the same constraints as the Postgres
// schema: unique (company, normalized phone), no overlapping non-cancelled
// appointments per company and date, unique idempotency keys.
type Memory struct {
	mu           sync.Mutex
	now          func() time.Time
	companies    map[string]model.Company
	settings     map[string]model.Settings
	daily        map[string]model.DailySchedule
	services     map[string]model.Service
	clients      map[string]model.Client
	appointments map[string]model.Appointment
	idempotency  map[string]string
	events       []outbox.Event
}

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		now:          now,
		companies:    map[string]model.Company{},
		settings:     map[string]model.Settings{},
		daily:        map[string]model.DailySchedule{},
		services:     map[string]model.Service{},
		clients:      map[string]model.Client{},
		appointments: map[string]model.Appointment{},
		idempotency:  map[string]string{},
	}
}

func dailyKey(companyID string, weekday int) string {
	return companyID + "/" + strconv.Itoa(weekday)
}

func (m *Memory) PutCompany(c model.Company) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.companies[c.ID] = c
}

func (m *Memory) PutSettings(s model.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[s.CompanyID] = s
}

func (m *Memory) PutDailySchedule(d model.DailySchedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily[dailyKey(d.CompanyID, d.Weekday)] = d
}

func (m *Memory) PutService(s model.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[s.ID] = s
}

// PutClient stores c without the unique phone check, for seeding legacy duplicates.
func (m *Memory) PutClient(c model.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.clients[c.ID] = c
}

// Events returns the outbox events written so far.
func (m *Memory) Events() []outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]outbox.Event(nil), m.events...)
}

func (m *Memory) GetCompany(_ context.Context, id string) (model.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[id]
	if !ok {
		return model.Company{}, model.ErrNotFound
	}
	return c, nil
}

func (m *Memory) GetCompanyBySlug(_ context.Context, slug string) (model.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.companies {
		if c.Slug == slug {
			return c, nil
		}
	}
	return model.Company{}, model.ErrNotFound
}

func (m *Memory) GetSettings(_ context.Context, companyID string) (model.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[companyID]
	if !ok {
		return model.Settings{}, model.ErrNotFound
	}
	return s, nil
}

func (m *Memory) GetDailySchedule(_ context.Context, companyID string, weekday int) (model.DailySchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.daily[dailyKey(companyID, weekday)]
	if !ok {
		return model.DailySchedule{}, model.ErrNotFound
	}
	return d, nil
}

func (m *Memory) GetService(_ context.Context, companyID, serviceID string) (model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[serviceID]
	if !ok || s.CompanyID != companyID {
		return model.Service{}, model.ErrNotFound
	}
	return s, nil
}

func (m *Memory) FindClientByPhone(_ context.Context, companyID, normalizedPhone string) (model.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clientByPhoneLocked(companyID, normalizedPhone, ""); ok {
		return c, nil
	}
	return model.Client{}, model.ErrNotFound
}

func (m *Memory) clientByPhoneLocked(companyID, normalizedPhone, exceptID string) (model.Client, bool) {
	for _, c := range m.clients {
		if c.CompanyID == companyID && c.NormalizedPhone == normalizedPhone && c.ID != exceptID {
			return c, true
		}
	}
	return model.Client{}, false
}

func (m *Memory) InsertClient(_ context.Context, c *model.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.clientByPhoneLocked(c.CompanyID, c.NormalizedPhone, ""); taken {
		return model.ErrDuplicateClient
	}
	c.ID = uuid.NewString()
	c.CreatedAt = m.now()
	c.UpdatedAt = c.CreatedAt
	m.clients[c.ID] = *c
	return nil
}

func (m *Memory) UpdateClient(_ context.Context, c *model.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.clients[c.ID]
	if !ok || stored.CompanyID != c.CompanyID {
		return model.ErrNotFound
	}
	if _, taken := m.clientByPhoneLocked(c.CompanyID, c.NormalizedPhone, c.ID); taken {
		return model.ErrDuplicateClient
	}
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = m.now()
	m.clients[c.ID] = *c
	return nil
}

func (m *Memory) ListClients(_ context.Context, companyID string) ([]model.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Client
	for _, c := range m.clients {
		if c.CompanyID == companyID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) MergeClients(_ context.Context, keep model.Client, duplicateIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[keep.ID]; !ok {
		return 0, model.ErrNotFound
	}
	dups := map[string]bool{}
	for _, id := range duplicateIDs {
		dups[id] = true
	}

	moved := 0
	for id, a := range m.appointments {
		if a.CompanyID == keep.CompanyID && dups[a.ClientID] {
			a.ClientID = keep.ID
			m.appointments[id] = a
			moved++
		}
	}
	for id := range dups {
		if c, ok := m.clients[id]; ok && c.CompanyID == keep.CompanyID {
			delete(m.clients, id)
		}
	}
	if _, taken := m.clientByPhoneLocked(keep.CompanyID, keep.NormalizedPhone, keep.ID); taken {
		return 0, model.ErrDuplicateClient
	}
	keep.UpdatedAt = m.now()
	m.clients[keep.ID] = keep
	return moved, nil
}

func (m *Memory) withNamesLocked(a model.Appointment) model.Appointment {
	a.ServiceName = m.services[a.ServiceID].Name
	c := m.clients[a.ClientID]
	a.ClientName, a.ClientPhone = c.Name, c.Phone
	return a
}

func (m *Memory) ListDayAppointments(_ context.Context, companyID string, date time.Time) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appointments {
		if a.CompanyID == companyID && a.Date.Equal(date) && a.Status.Occupies() {
			out = append(out, m.withNamesLocked(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartMinute < out[j].StartMinute })
	return out, nil
}

func (m *Memory) ListAppointments(_ context.Context, companyID string, f ListFilter) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appointments {
		if a.CompanyID != companyID {
			continue
		}
		if !f.From.IsZero() && a.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && a.Date.After(f.To) {
			continue
		}
		out = append(out, m.withNamesLocked(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartMinute < out[j].StartMinute
	})
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetAppointment(_ context.Context, companyID, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.CompanyID != companyID {
		return model.Appointment{}, model.ErrNotFound
	}
	return m.withNamesLocked(a), nil
}

func (m *Memory) CountActiveAppointments(_ context.Context, companyID, clientID string, from time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.appointments {
		if a.CompanyID == companyID && a.ClientID == clientID &&
			a.Status.Active() && !a.Date.Before(from) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountAppointmentsBetween(_ context.Context, companyID, clientID string, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.appointments {
		if a.CompanyID == companyID && a.ClientID == clientID && a.Status != model.StatusCancelled &&
			!a.Date.Before(from) && a.Date.Before(to) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreateAppointment(_ context.Context, a *model.Appointment, opts CreateOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.appointments {
		if other.CompanyID == a.CompanyID && other.Date.Equal(a.Date) && other.Status.Occupies() &&
			a.StartMinute < other.EndMinute() && other.StartMinute < a.EndMinute() {
			return model.ErrSlotTaken
		}
	}
	idemKey := a.CompanyID + "/" + opts.IdempotencyKey
	if opts.IdempotencyKey != "" {
		if _, used := m.idempotency[idemKey]; used {
			return model.ErrIdempotencyConflict
		}
	}

	a.ID = uuid.NewString()
	a.CreatedAt = m.now()
	a.UpdatedAt = a.CreatedAt
	m.appointments[a.ID] = *a
	if opts.IdempotencyKey != "" {
		m.idempotency[idemKey] = a.ID
	}
	for _, eventType := range opts.EventTypes {
		evt, err := outbox.AppointmentEvent(eventType, *a, "")
		if err != nil {
			return err
		}
		m.events = append(m.events, evt)
	}
	return nil
}

func (m *Memory) UpdateAppointmentStatus(_ context.Context, a *model.Appointment, from model.Status, events []outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.appointments[a.ID]
	if !ok || stored.CompanyID != a.CompanyID {
		return model.ErrNotFound
	}
	if stored.Status != from {
		return model.ErrStatusChanged
	}
	now := m.now()
	stored.Status = a.Status
	if a.Status == model.StatusCancelled {
		stored.CancelReason = a.CancelReason
		stored.CancelledAt = &now
	}
	stored.UpdatedAt = now
	m.appointments[a.ID] = stored
	a.CancelledAt, a.UpdatedAt = stored.CancelledAt, stored.UpdatedAt
	m.events = append(m.events, events...)
	return nil
}

func (m *Memory) FindIdempotentAppointment(_ context.Context, companyID, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.idempotency[companyID+"/"+key]
	if !ok {
		return "", model.ErrNotFound
	}
	return id, nil
}
