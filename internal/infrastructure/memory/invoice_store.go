// Package memory implementa los puertos de persistencia en memoria, con la misma semántica
// que los repositorios PostgreSQL. Se usa en pruebas y en desarrollo sin base de datos.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jhoicas/ecf-api/internal/domain"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceStore)(nil)

// InvoiceStore guarda copias de las facturas; nunca entrega punteros internos.
type InvoiceStore struct {
	mu       sync.RWMutex
	invoices map[string]*entity.Invoice
}

// NewInvoiceStore construye el almacén vacío.
func NewInvoiceStore() *InvoiceStore {
	return &InvoiceStore{invoices: make(map[string]*entity.Invoice)}
}

// GetInvoice devuelve una copia o nil, nil si no existe.
func (s *InvoiceStore) GetInvoice(_ context.Context, id string) (*entity.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, nil
	}
	return cloneInvoice(inv), nil
}

// SaveInvoice inserta o reemplaza. Un número fiscal ya usado por otra factura es un duplicado.
func (s *InvoiceStore) SaveInvoice(_ context.Context, invoice *entity.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if invoice.FiscalNumber != "" {
		for id, other := range s.invoices {
			if id != invoice.ID && other.FiscalNumber == invoice.FiscalNumber {
				return fmt.Errorf("save invoice %s: número fiscal %s: %w", invoice.ID, invoice.FiscalNumber, domain.ErrDuplicate)
			}
		}
	}
	s.invoices[invoice.ID] = cloneInvoice(invoice)
	return nil
}

// UpdateInvoiceStatus actualiza estado y detalle.
func (s *InvoiceStore) UpdateInvoiceStatus(_ context.Context, id string, status entity.Status, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return fmt.Errorf("update invoice status %s: %w", id, domain.ErrNotFound)
	}
	inv.Status = status
	inv.StatusDetail = detail
	inv.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateSubmission copia los campos del ciclo de envío.
func (s *InvoiceStore) UpdateSubmission(_ context.Context, invoice *entity.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[invoice.ID]
	if !ok {
		return fmt.Errorf("update submission %s: %w", invoice.ID, domain.ErrNotFound)
	}
	inv.Status = invoice.Status
	inv.StatusDetail = invoice.StatusDetail
	inv.TrackID = invoice.TrackID
	inv.Attempts = invoice.Attempts
	inv.SignedXML = invoice.SignedXML
	inv.SubmittedAt = cloneTime(invoice.SubmittedAt)
	inv.LastCheckedAt = cloneTime(invoice.LastCheckedAt)
	inv.UpdatedAt = invoice.UpdatedAt
	return nil
}

// ListByStatus lista facturas en los estados dados, más antiguas primero.
func (s *InvoiceStore) ListByStatus(_ context.Context, statuses []entity.Status, limit int) ([]*entity.Invoice, error) {
	want := make(map[entity.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	s.mu.RLock()
	out := make([]*entity.Invoice, 0)
	for _, inv := range s.invoices {
		if want[inv.Status] {
			out = append(out, cloneInvoice(inv))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneInvoice(inv *entity.Invoice) *entity.Invoice {
	c := *inv
	c.Lines = append([]entity.InvoiceLine(nil), inv.Lines...)
	c.SubmittedAt = cloneTime(inv.SubmittedAt)
	c.LastCheckedAt = cloneTime(inv.LastCheckedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
