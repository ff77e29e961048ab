package repository

import (
	"context"

	"github.com/jhoicas/ecf-api/internal/domain/entity"
)

// SequenceRepository almacén de contadores con compare-and-swap.
type SequenceRepository interface {
	// Get devuelve el contador; si no existe lo crea con Next = 1, Version = 0.
	Get(ctx context.Context, documentType string) (*entity.SequenceCounter, error)
	// CompareAndSwap escribe next solo si la versión almacenada sigue siendo expectedVersion.
	// Si otra escritura ganó la carrera devuelve domain.ErrAllocationConflict.
	// fiscalNumber queda registrado en la auditoría de números emitidos en la misma transacción.
	CompareAndSwap(ctx context.Context, documentType string, expectedVersion, next int64, fiscalNumber string) error
}
