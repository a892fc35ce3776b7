package clients

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/phone"
)

type DedupStore interface {
	ListClients(ctx context.Context, companyID string) ([]model.Client, error)
	// MergeClients points every appointment of duplicateIDs at keep, deletes
	// the duplicates and saves keep, all in one transaction. It returns the
	// number of appointments moved.
	MergeClients(ctx context.Context, keep model.Client, duplicateIDs []string) (int, error)
}

type Summary struct {
	DuplicatesFound     int `json:"duplicates_found"`
	DuplicatesRemoved   int `json:"duplicates_removed"`
	ClientsConsolidated int `json:"clients_consolidated"`
	AppointmentsMoved   int `json:"appointments_moved"`
}

// Merge is one group of clients sharing a normalized phone.
type Merge struct {
	Keep       model.Client
	Duplicates []model.Client
}

func (m Merge) DuplicateIDs() []string {
	ids := make([]string, 0, len(m.Duplicates))
	for _, d := range m.Duplicates {
		ids = append(ids, d.ID)
	}
	return ids
}

type Deduplicator struct {
	store   DedupStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewDeduplicator(store DedupStore, logger *slog.Logger, m *metrics.Metrics) *Deduplicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{store: store, logger: logger, metrics: m}
}

// Run merges every group of clients of companyID that share a normalized
// phone. Running it again right after finds nothing. On a failed merge the
// summary so far is returned with the error.
func (d *Deduplicator) Run(ctx context.Context, companyID string) (Summary, error) {
	ctx, span := tracer.Start(ctx, "clients.Deduplicate")
	defer span.End()

	list, err := d.store.ListClients(ctx, companyID)
	if err != nil {
		return Summary{}, fmt.Errorf("clients: list: %w", err)
	}

	var sum Summary
	for _, m := range PlanMerges(list) {
		sum.DuplicatesFound += len(m.Duplicates)
		moved, err := d.store.MergeClients(ctx, m.Keep, m.DuplicateIDs())
		if err != nil {
			d.logger.Error("client merge failed", "business_id", companyID, "client_id", m.Keep.ID, "err", err)
			return sum, fmt.Errorf("clients: merge %s: %w", m.Keep.ID, err)
		}
		sum.DuplicatesRemoved += len(m.Duplicates)
		sum.ClientsConsolidated++
		sum.AppointmentsMoved += moved
	}
	d.metrics.ObserveDedup(sum.DuplicatesRemoved)
	d.logger.Info("client deduplication finished",
		"business_id", companyID,
		"found", sum.DuplicatesFound,
		"removed", sum.DuplicatesRemoved,
		"consolidated", sum.ClientsConsolidated,
	)
	return sum, nil
}

// PlanMerges groups clients by normalized phone and picks the oldest of each
// group as the survivor. The survivor takes the longest name among the group
// and fills a blank email or notes from the first duplicate that has one.
// Clients without a usable phone are left alone.
func PlanMerges(list []model.Client) []Merge {
	groups := map[string][]model.Client{}
	var order []string
	for _, c := range list {
		key := phone.Normalize(c.Phone)
		if !phone.Valid(key) {
			key = phone.Normalize(c.NormalizedPhone)
		}
		if !phone.Valid(key) {
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}

	var merges []Merge
	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].ID < group[j].ID
			}
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})

		keep := group[0]
		keep.NormalizedPhone = key
		for _, dup := range group[1:] {
			if len(strings.TrimSpace(dup.Name)) > len(strings.TrimSpace(keep.Name)) {
				keep.Name = strings.TrimSpace(dup.Name)
			}
			if strings.TrimSpace(keep.Email) == "" {
				keep.Email = dup.Email
			}
			if strings.TrimSpace(keep.Notes) == "" {
				keep.Notes = dup.Notes
			}
		}
		merges = append(merges, Merge{Keep: keep, Duplicates: group[1:]})
	}
	return merges
}
