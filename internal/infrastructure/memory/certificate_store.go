package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/domain/repository"
)

var _ repository.CertificateRepository = (*CertificateStore)(nil)

// CertificateStore entrada única de la bóveda (solo blobs cifrados).
type CertificateStore struct {
	mu  sync.RWMutex
	rec *entity.CertificateRecord
}

// NewCertificateStore construye el almacén vacío.
func NewCertificateStore() *CertificateStore {
	return &CertificateStore{}
}

// Get devuelve nil, nil si no hay certificado.
func (s *CertificateStore) Get(_ context.Context) (*entity.CertificateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rec == nil {
		return nil, nil
	}
	return cloneRecord(s.rec), nil
}

// Put reemplaza la entrada.
func (s *CertificateStore) Put(_ context.Context, rec *entity.CertificateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = cloneRecord(rec)
	return nil
}

// Delete elimina la entrada; no falla si no existe.
func (s *CertificateStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = nil
	return nil
}

func cloneRecord(r *entity.CertificateRecord) *entity.CertificateRecord {
	c := *r
	c.CertBlob = bytes.Clone(r.CertBlob)
	c.KeyBlob = bytes.Clone(r.KeyBlob)
	c.Salt = bytes.Clone(r.Salt)
	return &c
}
