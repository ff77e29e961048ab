package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/ecf-api/internal/domain"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

const invoiceColumns = `
	id, COALESCE(fiscal_number, ''), document_type, issue_date, currency, payment_method,
	issuer_fiscal_id, recipient_legal_name, recipient_fiscal_id, recipient_address,
	recipient_email, recipient_phone, subtotal, tax_total, total, status, status_detail,
	track_id, attempts, signed_xml, submitted_at, last_checked_at, created_at, updated_at`

// InvoiceRepo implementación de InvoiceRepository sobre ecf_invoices y ecf_invoice_lines.
type InvoiceRepo struct {
	pool *pgxpool.Pool
	tx   *TxRunner
}

// NewInvoiceRepository construye el adaptador.
func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepo {
	return &InvoiceRepo{pool: pool, tx: NewTxRunner(pool)}
}

// GetInvoice obtiene la factura con sus líneas; nil, nil si no existe.
func (r *InvoiceRepo) GetInvoice(ctx context.Context, id string) (*entity.Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM ecf_invoices WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	lines, err := r.getLines(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return inv, nil
}

// SaveInvoice inserta o reemplaza cabecera y líneas en una transacción y enlaza
// el número fiscal con su fila de auditoría.
func (r *InvoiceRepo) SaveInvoice(ctx context.Context, inv *entity.Invoice) error {
	err := r.tx.Run(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO ecf_invoices (
				id, fiscal_number, document_type, issue_date, currency, payment_method,
				issuer_fiscal_id, recipient_legal_name, recipient_fiscal_id, recipient_address,
				recipient_email, recipient_phone, subtotal, tax_total, total, status, status_detail,
				track_id, attempts, signed_xml, submitted_at, last_checked_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
			ON CONFLICT (id) DO UPDATE SET
				fiscal_number        = EXCLUDED.fiscal_number,
				document_type        = EXCLUDED.document_type,
				issue_date           = EXCLUDED.issue_date,
				currency             = EXCLUDED.currency,
				payment_method       = EXCLUDED.payment_method,
				issuer_fiscal_id     = EXCLUDED.issuer_fiscal_id,
				recipient_legal_name = EXCLUDED.recipient_legal_name,
				recipient_fiscal_id  = EXCLUDED.recipient_fiscal_id,
				recipient_address    = EXCLUDED.recipient_address,
				recipient_email      = EXCLUDED.recipient_email,
				recipient_phone      = EXCLUDED.recipient_phone,
				subtotal             = EXCLUDED.subtotal,
				tax_total            = EXCLUDED.tax_total,
				total                = EXCLUDED.total,
				status               = EXCLUDED.status,
				status_detail        = EXCLUDED.status_detail,
				track_id             = EXCLUDED.track_id,
				attempts             = EXCLUDED.attempts,
				signed_xml           = EXCLUDED.signed_xml,
				submitted_at         = EXCLUDED.submitted_at,
				last_checked_at      = EXCLUDED.last_checked_at,
				updated_at           = EXCLUDED.updated_at`,
			inv.ID, nullIfEmpty(inv.FiscalNumber), inv.DocumentType, inv.IssueDate, inv.Currency, inv.PaymentMethod,
			inv.IssuerFiscalID, inv.Recipient.LegalName, inv.Recipient.FiscalID, inv.Recipient.Address,
			inv.Recipient.Email, inv.Recipient.Phone, inv.Subtotal, inv.TaxTotal, inv.Total,
			string(inv.Status), inv.StatusDetail, nullIfEmpty(inv.TrackID), inv.Attempts,
			nullIfEmpty(inv.SignedXML), inv.SubmittedAt, inv.LastCheckedAt, inv.CreatedAt, inv.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("save invoice %s: número fiscal %s: %w", inv.ID, inv.FiscalNumber, domain.ErrDuplicate)
			}
			return fmt.Errorf("save invoice: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM ecf_invoice_lines WHERE invoice_id = $1`, inv.ID); err != nil {
			return fmt.Errorf("delete invoice lines: %w", err)
		}
		batch := &pgx.Batch{}
		for i, l := range inv.Lines {
			batch.Queue(`
				INSERT INTO ecf_invoice_lines (invoice_id, line_no, description, quantity, unit_price, tax_rate, subtotal, tax_amount)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				inv.ID, i+1, l.Description, l.Quantity, l.UnitPrice, l.TaxRate, l.Subtotal, l.TaxAmount)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("insert invoice lines: %w", err)
			}
		}

		if inv.FiscalNumber != "" {
			if _, err := tx.Exec(ctx,
				`UPDATE fiscal_number_audit SET invoice_id = $2 WHERE fiscal_number = $1 AND invoice_id IS NULL`,
				inv.FiscalNumber, inv.ID); err != nil {
				return fmt.Errorf("link fiscal number audit: %w", err)
			}
		}
		return nil
	})
	return err
}

// UpdateInvoiceStatus actualiza solo estado y detalle.
func (r *InvoiceRepo) UpdateInvoiceStatus(ctx context.Context, id string, status entity.Status, detail string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE ecf_invoices SET status = $2, status_detail = $3, updated_at = $4 WHERE id = $1`,
		id, string(status), detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update invoice status %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// UpdateSubmission persiste los campos del ciclo de envío; las líneas no se tocan.
func (r *InvoiceRepo) UpdateSubmission(ctx context.Context, inv *entity.Invoice) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ecf_invoices
		SET status          = $2,
		    status_detail   = $3,
		    track_id        = COALESCE($4, track_id),
		    attempts        = $5,
		    signed_xml      = COALESCE($6, signed_xml),
		    submitted_at    = COALESCE($7, submitted_at),
		    last_checked_at = COALESCE($8, last_checked_at),
		    updated_at      = $9
		WHERE id = $1`,
		inv.ID, string(inv.Status), inv.StatusDetail, nullIfEmpty(inv.TrackID), inv.Attempts,
		nullIfEmpty(inv.SignedXML), inv.SubmittedAt, inv.LastCheckedAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update submission %s: %w", inv.ID, domain.ErrNotFound)
	}
	return nil
}

// ListByStatus facturas en los estados dados, más antiguas primero (sin líneas).
func (r *InvoiceRepo) ListByStatus(ctx context.Context, statuses []entity.Status, limit int) ([]*entity.Invoice, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+invoiceColumns+` FROM ecf_invoices WHERE status = ANY($1) ORDER BY created_at LIMIT $2`,
		names, limit)
	if err != nil {
		return nil, fmt.Errorf("list invoices by status: %w", err)
	}
	defer rows.Close()

	var list []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

func (r *InvoiceRepo) getLines(ctx context.Context, q Querier, invoiceID string) ([]entity.InvoiceLine, error) {
	rows, err := q.Query(ctx, `
		SELECT description, quantity, unit_price, tax_rate, subtotal, tax_amount
		FROM ecf_invoice_lines WHERE invoice_id = $1 ORDER BY line_no`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice lines: %w", err)
	}
	defer rows.Close()
	var lines []entity.InvoiceLine
	for rows.Next() {
		var l entity.InvoiceLine
		if err := rows.Scan(&l.Description, &l.Quantity, &l.UnitPrice, &l.TaxRate, &l.Subtotal, &l.TaxAmount); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanInvoice(row pgx.Row) (*entity.Invoice, error) {
	var (
		inv       entity.Invoice
		status    string
		trackID   *string
		signedXML *string
	)
	err := row.Scan(
		&inv.ID, &inv.FiscalNumber, &inv.DocumentType, &inv.IssueDate, &inv.Currency, &inv.PaymentMethod,
		&inv.IssuerFiscalID, &inv.Recipient.LegalName, &inv.Recipient.FiscalID, &inv.Recipient.Address,
		&inv.Recipient.Email, &inv.Recipient.Phone, &inv.Subtotal, &inv.TaxTotal, &inv.Total, &status, &inv.StatusDetail,
		&trackID, &inv.Attempts, &signedXML, &inv.SubmittedAt, &inv.LastCheckedAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Status = entity.Status(status)
	inv.TrackID = derefStr(trackID)
	inv.SignedXML = derefStr(signedXML)
	return &inv, nil
}
