package repository

import (
	"context"

	"github.com/jhoicas/ecf-api/internal/domain/entity"
)

// CertificateRepository almacena la única entrada cifrada de la bóveda.
type CertificateRepository interface {
	// Get devuelve nil, nil si no hay certificado.
	Get(ctx context.Context) (*entity.CertificateRecord, error)
	// Put reemplaza la entrada existente.
	Put(ctx context.Context, rec *entity.CertificateRecord) error
	Delete(ctx context.Context) error
}
