package memory

import (
	"context"
	"sync"

	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/domain/repository"
)

var _ repository.SubmissionRepository = (*SubmissionStore)(nil)

// SubmissionStore un registro por factura.
type SubmissionStore struct {
	mu      sync.RWMutex
	records map[string]entity.SubmissionRecord
}

// NewSubmissionStore construye el almacén vacío.
func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{records: make(map[string]entity.SubmissionRecord)}
}

// Upsert inserta o actualiza el registro de la factura.
func (s *SubmissionStore) Upsert(_ context.Context, rec *entity.SubmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *rec
	c.LastCheckedAt = cloneTime(rec.LastCheckedAt)
	s.records[rec.InvoiceID] = c
	return nil
}

// GetByInvoiceID devuelve nil, nil si la factura no tiene registro.
func (s *SubmissionStore) GetByInvoiceID(_ context.Context, invoiceID string) (*entity.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[invoiceID]
	if !ok {
		return nil, nil
	}
	rec.LastCheckedAt = cloneTime(rec.LastCheckedAt)
	return &rec, nil
}
