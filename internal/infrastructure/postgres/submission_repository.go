package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/domain/repository"
)

var _ repository.SubmissionRepository = (*SubmissionRepo)(nil)

// SubmissionRepo registro de envío, uno por factura.
type SubmissionRepo struct {
	q Querier
}

// NewSubmissionRepository construye el adaptador.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepo {
	return &SubmissionRepo{q: pool}
}

// Upsert crea o actualiza el registro; el track id y la fecha de envío no se sobrescriben.
func (r *SubmissionRepo) Upsert(ctx context.Context, rec *entity.SubmissionRecord) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO ecf_submissions (invoice_id, fiscal_number, track_id, submitted_at, raw_response, last_checked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (invoice_id) DO UPDATE SET
			raw_response    = EXCLUDED.raw_response,
			last_checked_at = COALESCE(EXCLUDED.last_checked_at, ecf_submissions.last_checked_at)`,
		rec.InvoiceID, rec.FiscalNumber, rec.TrackID, rec.SubmittedAt, rec.RawResponse, rec.LastCheckedAt)
	if err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	return nil
}

// GetByInvoiceID devuelve nil, nil si la factura aún no se envió.
func (r *SubmissionRepo) GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.SubmissionRecord, error) {
	var rec entity.SubmissionRecord
	err := r.q.QueryRow(ctx, `
		SELECT invoice_id, fiscal_number, track_id, submitted_at, raw_response, last_checked_at
		FROM ecf_submissions WHERE invoice_id = $1`, invoiceID).Scan(
		&rec.InvoiceID, &rec.FiscalNumber, &rec.TrackID, &rec.SubmittedAt, &rec.RawResponse, &rec.LastCheckedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return &rec, nil
}
