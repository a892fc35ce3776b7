package inbox

import (
	"context"

	"github.com/md-rashed-zaman/zapagenda/libs/db"
)

// Repository remembers which events a consumer has processed.
type Repository struct {
	pool db.Querier
}

func NewRepository(pool db.Querier) *Repository {
	return &Repository{pool: pool}
}

// Record returns false when consumer already saw eventID.
func (r *Repository) Record(ctx context.Context, consumer, eventID, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (consumer, event_id, event_type)
		VALUES ($1, $2, $3)
	`, consumer, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}
