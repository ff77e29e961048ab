package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/ecf-api/internal/domain"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/domain/repository"
)

var _ repository.SequenceRepository = (*SequenceStore)(nil)

// SequenceStore contadores con compare-and-swap sobre la versión.
type SequenceStore struct {
	mu       sync.Mutex
	counters map[string]entity.SequenceCounter
	audit    []string
}

// NewSequenceStore construye el almacén vacío.
func NewSequenceStore() *SequenceStore {
	return &SequenceStore{counters: make(map[string]entity.SequenceCounter)}
}

// Get devuelve el contador, creándolo en 1 si no existe.
func (s *SequenceStore) Get(_ context.Context, documentType string) (*entity.SequenceCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[documentType]
	if !ok {
		c = entity.SequenceCounter{DocumentType: documentType, Next: 1, UpdatedAt: time.Now().UTC()}
		s.counters[documentType] = c
	}
	return &c, nil
}

// CompareAndSwap escribe next si la versión no cambió desde la lectura.
func (s *SequenceStore) CompareAndSwap(_ context.Context, documentType string, expectedVersion, next int64, fiscalNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[documentType]
	if !ok || c.Version != expectedVersion {
		return fmt.Errorf("cas %s v%d: %w", documentType, expectedVersion, domain.ErrAllocationConflict)
	}
	if next <= c.Next {
		return fmt.Errorf("cas %s: el contador no puede decrecer (%d → %d): %w", documentType, c.Next, next, domain.ErrInvalidInput)
	}
	c.Next = next
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	s.counters[documentType] = c
	s.audit = append(s.audit, fiscalNumber)
	return nil
}

// Issued devuelve los números emitidos en orden (auditoría de huecos).
func (s *SequenceStore) Issued() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.audit...)
}
