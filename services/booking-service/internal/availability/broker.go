package availability

import "sync"

// Change tells subscribers that the slots of a company on a date moved.
type Change struct {
	CompanyID     string `json:"business_id"`
	Date          string `json:"date"`
	Reason        string `json:"reason"`
	AppointmentID string `json:"appointment_id,omitempty"`
}

// Broker fans availability changes out to in-process subscribers, such as
// open websocket streams.
type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(Change)
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[int]func(Change){}}
}

// Subscribe registers fn for changes to companyID on date. The returned func
// unsubscribes and is safe to call more than once.
func (b *Broker) Subscribe(companyID, date string, fn func(Change)) func() {
	key := cacheKey(companyID, date)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[key] == nil {
		b.subs[key] = map[int]func(Change){}
	}
	b.subs[key][id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[key], id)
			if len(b.subs[key]) == 0 {
				delete(b.subs, key)
			}
		})
	}
}

// Publish calls every subscriber of the change's company and date. Callbacks
// run on the caller's goroutine and must not block.
func (b *Broker) Publish(c Change) {
	b.mu.RLock()
	fns := make([]func(Change), 0, len(b.subs[cacheKey(c.CompanyID, c.Date)]))
	for _, fn := range b.subs[cacheKey(c.CompanyID, c.Date)] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

func (b *Broker) Subscribers(companyID, date string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[cacheKey(companyID, date)])
}
