package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/zapagenda/libs/db"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
)

const clientColumns = `id::text, company_id::text, name, phone, normalized_phone, email, notes, created_at, updated_at`

func scanClient(row pgx.Row) (model.Client, error) {
	var c model.Client
	err := row.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Phone, &c.NormalizedPhone, &c.Email, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *Repository) FindClientByPhone(ctx context.Context, companyID, normalizedPhone string) (model.Client, error) {
	c, err := scanClient(r.pool.QueryRow(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE company_id = $1 AND normalized_phone = $2
	`, companyID, normalizedPhone))
	return c, mapError("find client", err)
}

func (r *Repository) InsertClient(ctx context.Context, c *model.Client) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO clients (company_id, name, phone, normalized_phone, email, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text, created_at, updated_at
	`, c.CompanyID, c.Name, c.Phone, c.NormalizedPhone, c.Email, c.Notes).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return mapError("insert client", err)
}

func (r *Repository) UpdateClient(ctx context.Context, c *model.Client) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE clients
		SET name = $3, phone = $4, normalized_phone = $5, email = $6, notes = $7, updated_at = now()
		WHERE id = $1 AND company_id = $2
		RETURNING updated_at
	`, c.ID, c.CompanyID, c.Name, c.Phone, c.NormalizedPhone, c.Email, c.Notes).Scan(&c.UpdatedAt)
	return mapError("update client", err)
}

func (r *Repository) ListClients(ctx context.Context, companyID string) ([]model.Client, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE company_id = $1
		ORDER BY created_at, id
	`, companyID)
	if err != nil {
		return nil, mapError("list clients", err)
	}
	defer rows.Close()

	var out []model.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, mapError("scan client", err)
		}
		out = append(out, c)
	}
	return out, mapError("list clients", rows.Err())
}

// MergeClients deletes the duplicates before saving keep so that keep may
// take over a normalized phone one of them held.
func (r *Repository) MergeClients(ctx context.Context, keep model.Client, duplicateIDs []string) (int, error) {
	var moved int
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET client_id = $1, updated_at = now()
			WHERE company_id = $2 AND client_id::text = ANY($3)
		`, keep.ID, keep.CompanyID, duplicateIDs)
		if err != nil {
			return err
		}
		moved = int(tag.RowsAffected())

		if _, err := tx.Exec(ctx, `
			DELETE FROM clients
			WHERE company_id = $1 AND id::text = ANY($2)
		`, keep.CompanyID, duplicateIDs); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE clients
			SET name = $3, normalized_phone = $4, email = $5, notes = $6, updated_at = now()
			WHERE id = $1 AND company_id = $2
		`, keep.ID, keep.CompanyID, keep.Name, keep.NormalizedPhone, keep.Email, keep.Notes)
		return err
	})
	if err != nil {
		return 0, mapError("merge clients", err)
	}
	return moved, nil
}
