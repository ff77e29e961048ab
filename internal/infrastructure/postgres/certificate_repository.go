package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/domain/repository"
)

var _ repository.CertificateRepository = (*CertificateRepo)(nil)

const certificateID = "default"

// CertificateRepo entrada única de certificate_vault. Solo guarda blobs cifrados.
type CertificateRepo struct {
	q Querier
}

// NewCertificateRepository construye el adaptador.
func NewCertificateRepository(pool *pgxpool.Pool) *CertificateRepo {
	return &CertificateRepo{q: pool}
}

// Get devuelve nil, nil si no hay certificado.
func (r *CertificateRepo) Get(ctx context.Context) (*entity.CertificateRecord, error) {
	var (
		rec        entity.CertificateRecord
		kdfTime    int32
		kdfMemory  int32
		kdfThreads int16
		validUntil *time.Time
	)
	err := r.q.QueryRow(ctx, `
		SELECT id, cert_blob, key_blob, salt, kdf_time, kdf_memory, kdf_threads,
		       alias, issuer, subject, serial_number, valid_until, created_at
		FROM certificate_vault WHERE id = $1`, certificateID).Scan(
		&rec.ID, &rec.CertBlob, &rec.KeyBlob, &rec.Salt, &kdfTime, &kdfMemory, &kdfThreads,
		&rec.Metadata.Alias, &rec.Metadata.Issuer, &rec.Metadata.Subject, &rec.Metadata.SerialNumber,
		&validUntil, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get certificate: %w", err)
	}
	rec.KDFTime = uint32(kdfTime)
	rec.KDFMemory = uint32(kdfMemory)
	rec.KDFThreads = uint8(kdfThreads)
	if validUntil != nil {
		rec.Metadata.ValidUntil = *validUntil
	}
	return &rec, nil
}

// Put reemplaza la entrada (rotación de certificado).
func (r *CertificateRepo) Put(ctx context.Context, rec *entity.CertificateRecord) error {
	var validUntil *time.Time
	if !rec.Metadata.ValidUntil.IsZero() {
		validUntil = &rec.Metadata.ValidUntil
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO certificate_vault (id, cert_blob, key_blob, salt, kdf_time, kdf_memory, kdf_threads,
		                               alias, issuer, subject, serial_number, valid_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			cert_blob     = EXCLUDED.cert_blob,
			key_blob      = EXCLUDED.key_blob,
			salt          = EXCLUDED.salt,
			kdf_time      = EXCLUDED.kdf_time,
			kdf_memory    = EXCLUDED.kdf_memory,
			kdf_threads   = EXCLUDED.kdf_threads,
			alias         = EXCLUDED.alias,
			issuer        = EXCLUDED.issuer,
			subject       = EXCLUDED.subject,
			serial_number = EXCLUDED.serial_number,
			valid_until   = EXCLUDED.valid_until,
			created_at    = EXCLUDED.created_at`,
		certificateID, rec.CertBlob, rec.KeyBlob, rec.Salt,
		int32(rec.KDFTime), int32(rec.KDFMemory), int16(rec.KDFThreads),
		rec.Metadata.Alias, rec.Metadata.Issuer, rec.Metadata.Subject, rec.Metadata.SerialNumber,
		validUntil, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put certificate: %w", err)
	}
	return nil
}

// Delete elimina la entrada; no es error si no existe.
func (r *CertificateRepo) Delete(ctx context.Context) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM certificate_vault WHERE id = $1`, certificateID); err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	return nil
}
