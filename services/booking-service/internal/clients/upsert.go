package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/md-rashed-zaman/zapagenda/libs/db"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/phone"
)

var ErrInvalidPhone = errors.New("phone number is invalid")

var tracer = otel.Tracer("zapagenda/clients")

type Store interface {
	FindClientByPhone(ctx context.Context, companyID, normalizedPhone string) (model.Client, error)
	// InsertClient fills ID and timestamps. It returns model.ErrDuplicateClient
	// when (company, normalized phone) already exists.
	InsertClient(ctx context.Context, c *model.Client) error
	UpdateClient(ctx context.Context, c *model.Client) error
}

type Input struct {
	CompanyID string
	Name      string
	Phone     string
	Email     string
	Notes     string
}

// Upserter finds or creates the client behind a phone number. Concurrent
// calls for the same number converge on one row: the unique index rejects
// the losing insert and the retry finds the winner.
type Upserter struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	policy  db.RetryPolicy
}

func NewUpserter(store Store, logger *slog.Logger, m *metrics.Metrics, attempts int, backoff time.Duration) *Upserter {
	if logger == nil {
		logger = slog.Default()
	}
	if attempts <= 0 {
		attempts = 3
	}
	return &Upserter{store: store, logger: logger, metrics: m, policy: db.RetryPolicy{Attempts: attempts, Backoff: backoff}}
}

// Upsert returns the client and whether it was created by this call.
func (u *Upserter) Upsert(ctx context.Context, in Input) (model.Client, bool, error) {
	ctx, span := tracer.Start(ctx, "clients.Upsert")
	defer span.End()

	normalized := phone.Normalize(in.Phone)
	if !phone.Valid(normalized) {
		return model.Client{}, false, ErrInvalidPhone
	}
	span.SetAttributes(attribute.String("business_id", in.CompanyID))

	var (
		out     model.Client
		created bool
	)
	err := db.RetryOnConflict(ctx, u.policy, isDuplicate, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			u.metrics.ObserveUpsertRetry()
			u.logger.Debug("client upsert retry", "business_id", in.CompanyID, "attempt", attempt)
		}

		existing, err := u.store.FindClientByPhone(ctx, in.CompanyID, normalized)
		switch {
		case err == nil:
			apply(&existing, in, normalized)
			if err := u.store.UpdateClient(ctx, &existing); err != nil {
				return err
			}
			out, created = existing, false
			return nil
		case !errors.Is(err, model.ErrNotFound):
			return err
		}

		c := model.Client{CompanyID: in.CompanyID}
		apply(&c, in, normalized)
		if err := u.store.InsertClient(ctx, &c); err != nil {
			return err
		}
		out, created = c, true
		return nil
	})
	if err != nil {
		return model.Client{}, false, fmt.Errorf("clients: upsert: %w", err)
	}
	span.SetAttributes(attribute.Bool("created", created))
	return out, created, nil
}

// apply copies incoming fields. Name and phone always take the latest value;
// blank email or notes never erase stored ones.
func apply(c *model.Client, in Input, normalized string) {
	if name := strings.TrimSpace(in.Name); name != "" {
		c.Name = name
	}
	c.Phone = strings.TrimSpace(in.Phone)
	c.NormalizedPhone = normalized
	if email := strings.TrimSpace(in.Email); email != "" {
		c.Email = email
	}
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		c.Notes = notes
	}
}

func isDuplicate(err error) bool {
	return errors.Is(err, model.ErrDuplicateClient)
}
