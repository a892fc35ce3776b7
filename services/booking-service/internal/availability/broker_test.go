package availability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrokerDeliversToMatchingSubscribers(t *testing.T) {
	b := NewBroker()
	var got []Change
	unsubscribe := b.Subscribe("c1", "2025-01-10", func(c Change) { got = append(got, c) })
	other := 0
	b.Subscribe("c1", "2025-01-11", func(Change) { other++ })

	b.Publish(Change{CompanyID: "c1", Date: "2025-01-10", Reason: "booked", AppointmentID: "a1"})
	assert.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].AppointmentID)
	assert.Equal(t, 0, other)

	unsubscribe()
	unsubscribe()
	b.Publish(Change{CompanyID: "c1", Date: "2025-01-10"})
	assert.Len(t, got, 1)
	assert.Equal(t, 0, b.Subscribers("c1", "2025-01-10"))
	assert.Equal(t, 1, b.Subscribers("c1", "2025-01-11"))
}
