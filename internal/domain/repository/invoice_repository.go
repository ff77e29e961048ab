package repository

import (
	"context"

	"github.com/jhoicas/ecf-api/internal/domain/entity"
)

// InvoiceRepository define el puerto de persistencia para los e-CF y sus líneas.
type InvoiceRepository interface {
	// GetInvoice devuelve nil, nil si no existe.
	GetInvoice(ctx context.Context, id string) (*entity.Invoice, error)
	// SaveInvoice inserta o reemplaza la factura completa (cabecera + líneas).
	SaveInvoice(ctx context.Context, invoice *entity.Invoice) error
	// UpdateInvoiceStatus actualiza solo estado y detalle (consulta ligera).
	UpdateInvoiceStatus(ctx context.Context, id string, status entity.Status, detail string) error
	// UpdateSubmission persiste los campos del ciclo de envío: estado, detalle, track id,
	// intentos, XML firmado y marcas de tiempo. Las líneas no se tocan.
	UpdateSubmission(ctx context.Context, invoice *entity.Invoice) error
	// ListByStatus lista facturas en los estados dados (para el poller), más antiguas primero.
	ListByStatus(ctx context.Context, statuses []entity.Status, limit int) ([]*entity.Invoice, error)
}

// SubmissionRepository persiste el registro de envío (uno por factura).
type SubmissionRepository interface {
	Upsert(ctx context.Context, rec *entity.SubmissionRecord) error
	GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.SubmissionRecord, error)
}
