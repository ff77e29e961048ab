package repository

import (
	"context"

	"github.com/jhoicas/ecf-api/internal/domain/entity"
)

// IssuerProvider entrega los datos del emisor (configuración de la empresa).
type IssuerProvider interface {
	GetIssuer(ctx context.Context) (entity.Party, error)
}
