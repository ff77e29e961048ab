package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/ecf-api/internal/domain"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/domain/repository"
)

var _ repository.SequenceRepository = (*SequenceRepo)(nil)

// SequenceRepo contadores de e-NCF con control de concurrencia optimista.
type SequenceRepo struct {
	pool *pgxpool.Pool
	tx   *TxRunner
}

// NewSequenceRepository construye el adaptador.
func NewSequenceRepository(pool *pgxpool.Pool) *SequenceRepo {
	return &SequenceRepo{pool: pool, tx: NewTxRunner(pool)}
}

// Get lee el contador; lo crea en 1 la primera vez que se usa el tipo.
func (r *SequenceRepo) Get(ctx context.Context, documentType string) (*entity.SequenceCounter, error) {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO sequence_counters (document_type, next, version) VALUES ($1, 1, 0)
		ON CONFLICT (document_type) DO NOTHING`, documentType); err != nil {
		return nil, fmt.Errorf("init sequence counter: %w", err)
	}
	var c entity.SequenceCounter
	err := r.pool.QueryRow(ctx,
		`SELECT document_type, next, version, updated_at FROM sequence_counters WHERE document_type = $1`,
		documentType).Scan(&c.DocumentType, &c.Next, &c.Version, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get sequence counter: %w", err)
	}
	return &c, nil
}

// CompareAndSwap avanza el contador si la versión no cambió y registra el número
// entregado en fiscal_number_audit, todo en la misma transacción.
func (r *SequenceRepo) CompareAndSwap(ctx context.Context, documentType string, expectedVersion, next int64, fiscalNumber string) error {
	return r.tx.Run(ctx, func(tx pgx.Tx) error {
		var version int64
		err := tx.QueryRow(ctx, `
			UPDATE sequence_counters
			SET next = $3, version = version + 1, updated_at = now()
			WHERE document_type = $1 AND version = $2 AND next < $3
			RETURNING version`, documentType, expectedVersion, next).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("cas %s v%d: %w", documentType, expectedVersion, domain.ErrAllocationConflict)
		}
		if err != nil {
			return fmt.Errorf("update sequence counter: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO fiscal_number_audit (fiscal_number, document_type) VALUES ($1, $2)`,
			fiscalNumber, documentType); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("audit %s: %w", fiscalNumber, domain.ErrDuplicate)
			}
			return fmt.Errorf("insert fiscal number audit: %w", err)
		}
		return nil
	})
}
