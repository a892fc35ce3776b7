package clients

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/storage"
)

// barrierStore holds the first n lookups until all n arrived, so every
// caller sees an empty table before anyone inserts.
type barrierStore struct {
	*storage.Memory
	n       int32
	calls   atomic.Int32
	arrived sync.WaitGroup
}

func newBarrierStore(n int) *barrierStore {
	s := &barrierStore{Memory: storage.NewMemory(nil), n: int32(n)}
	s.arrived.Add(n)
	return s
}

func (s *barrierStore) FindClientByPhone(ctx context.Context, companyID, normalizedPhone string) (model.Client, error) {
	c, err := s.Memory.FindClientByPhone(ctx, companyID, normalizedPhone)
	if s.calls.Add(1) <= s.n {
		s.arrived.Done()
		s.arrived.Wait()
	}
	return c, err
}

func TestUpsertConcurrentCallsConverge(t *testing.T) {
	const n = 8
	store := newBarrierStore(n)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	u := NewUpserter(store, nil, m, 3, 0)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]int{}
		created int
		errs    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, isNew, err := u.Upsert(context.Background(), Input{CompanyID: "c1", Name: "Ana", Phone: "(11) 99999-1111"})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids[c.ID]++
			if isNew {
				created++
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, ids, 1, "all callers got the same client")
	assert.Equal(t, 1, created)

	list, err := store.ListClients(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.Equal(t, float64(n-1), counterValue(t, reg, "zapagenda_clients_upsert_retries_total"))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestUpsertUpdatesExistingClient(t *testing.T) {
	store := storage.NewMemory(nil)
	u := NewUpserter(store, nil, nil, 3, 0)
	ctx := context.Background()

	first, isNew, err := u.Upsert(ctx, Input{CompanyID: "c1", Name: "Ana", Phone: "11999991111", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "5511999991111", first.NormalizedPhone)

	second, isNew, err := u.Upsert(ctx, Input{CompanyID: "c1", Name: "Ana Souza", Phone: "+55 (11) 99999-1111", Notes: "prefers mornings"})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Ana Souza", second.Name)
	assert.Equal(t, "+55 (11) 99999-1111", second.Phone)
	assert.Equal(t, "ana@example.com", second.Email, "blank email keeps the stored one")
	assert.Equal(t, "prefers mornings", second.Notes)
}

func TestUpsertRejectsInvalidPhone(t *testing.T) {
	u := NewUpserter(storage.NewMemory(nil), nil, nil, 3, 0)
	_, _, err := u.Upsert(context.Background(), Input{CompanyID: "c1", Name: "Ana", Phone: "9999"})
	assert.ErrorIs(t, err, ErrInvalidPhone)
}

type alwaysDuplicate struct{ *storage.Memory }

func (alwaysDuplicate) InsertClient(context.Context, *model.Client) error {
	return model.ErrDuplicateClient
}

func TestUpsertGivesUpAfterAttempts(t *testing.T) {
	u := NewUpserter(alwaysDuplicate{storage.NewMemory(nil)}, nil, nil, 3, 0)
	_, _, err := u.Upsert(context.Background(), Input{CompanyID: "c1", Name: "Ana", Phone: "11999991111"})
	assert.True(t, errors.Is(err, model.ErrDuplicateClient))
}
