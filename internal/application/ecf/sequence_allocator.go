package ecf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/jhoicas/ecf-api/internal/domain"
	"github.com/jhoicas/ecf-api/internal/domain/repository"
)

// DefaultSequenceDigits ancho del número secuencial: tipo 01 → E0100000001.
const DefaultSequenceDigits = 8

const (
	allocMaxAttempts     = 5
	allocInitialInterval = 10 * time.Millisecond
	allocMaxInterval     = 100 * time.Millisecond
)

// SequenceAllocator entrega números fiscales únicos por tipo de e-CF.
// No usa bloqueos: cada asignación es un compare-and-swap sobre el contador,
// reintentado con backoff cuando otra asignación gana la carrera.
type SequenceAllocator struct {
	repo   repository.SequenceRepository
	digits int
	log    zerolog.Logger
}

// NewSequenceAllocator crea el asignador. digits <= 0 usa DefaultSequenceDigits.
func NewSequenceAllocator(repo repository.SequenceRepository, digits int, log zerolog.Logger) *SequenceAllocator {
	if digits <= 0 {
		digits = DefaultSequenceDigits
	}
	return &SequenceAllocator{repo: repo, digits: digits, log: log}
}

// Allocate reserva el siguiente número del tipo dado y devuelve el e-NCF.
// Los contadores nunca decrecen; un número entregado y no usado queda como hueco auditado.
func (a *SequenceAllocator) Allocate(ctx context.Context, documentType string) (string, error) {
	if !isTypeCode(documentType) {
		verr := &domain.ValidationError{}
		verr.Add("documentType", "debe ser un código de dos dígitos")
		return "", verr
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(allocInitialInterval),
		backoff.WithMaxInterval(allocMaxInterval),
		backoff.WithMaxElapsedTime(0),
	), allocMaxAttempts-1), ctx)

	attempt := 0
	fiscalNumber, err := backoff.RetryWithData(func() (string, error) {
		attempt++
		counter, err := a.repo.Get(ctx, documentType)
		if err != nil {
			return "", backoff.Permanent(fmt.Errorf("leer contador %s: %w", documentType, err))
		}
		current := counter.Next
		if current < 1 || current >= a.limit() {
			return "", backoff.Permanent(fmt.Errorf("secuencia %s agotada (%d)", documentType, current))
		}
		number := a.format(documentType, current)
		err = a.repo.CompareAndSwap(ctx, documentType, counter.Version, current+1, number)
		if errors.Is(err, domain.ErrAllocationConflict) {
			a.log.Debug().Str("document_type", documentType).Int("attempt", attempt).Msg("conflicto de secuencia, reintentando")
			return "", err
		}
		if err != nil {
			return "", backoff.Permanent(fmt.Errorf("guardar contador %s: %w", documentType, err))
		}
		return number, nil
	}, bo)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAllocationFailed, err)
	}

	a.log.Info().Str("document_type", documentType).Str("fiscal_number", fiscalNumber).Msg("número fiscal asignado")
	return fiscalNumber, nil
}

func (a *SequenceAllocator) format(documentType string, n int64) string {
	return fmt.Sprintf("E%s%0*d", documentType, a.digits, n)
}

// limit primer valor que ya no cabe en el ancho configurado.
func (a *SequenceAllocator) limit() int64 {
	if a.digits >= 18 {
		return math.MaxInt64
	}
	return int64(math.Pow10(a.digits))
}

func isTypeCode(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}
