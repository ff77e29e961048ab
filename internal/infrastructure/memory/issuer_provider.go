package memory

import (
	"context"

	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/domain/repository"
)

var _ repository.IssuerProvider = StaticIssuer{}

// StaticIssuer entrega el emisor cargado y validado al arrancar el proceso.
type StaticIssuer struct {
	Party entity.Party
}

// GetIssuer devuelve una copia del emisor configurado.
func (s StaticIssuer) GetIssuer(_ context.Context) (entity.Party, error) {
	return s.Party, nil
}
