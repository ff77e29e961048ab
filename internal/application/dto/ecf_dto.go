package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateInvoiceRequest body para POST /api/ecf/invoices (borrador del e-CF).
// Los totales son opcionales: si se envían se comparan con los calculados.
type CreateInvoiceRequest struct {
	DocumentType  string               `json:"document_type" validate:"required,len=2,numeric"`
	IssueDate     *time.Time           `json:"issue_date,omitempty"`
	Currency      string               `json:"currency,omitempty" validate:"omitempty,len=3,uppercase"`
	PaymentMethod string               `json:"payment_method,omitempty"`
	Recipient     PartyRequest         `json:"recipient" validate:"required"`
	Lines         []InvoiceLineRequest `json:"lines" validate:"required,min=1,dive"`
	Totals        *TotalsRequest       `json:"totals,omitempty"`
}

// PartyRequest comprador del comprobante.
type PartyRequest struct {
	LegalName string `json:"legal_name" validate:"required"`
	FiscalID  string `json:"fiscal_id" validate:"required"`
	Address   string `json:"address,omitempty"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty"`
}

// InvoiceLineRequest línea del borrador. tax_rate va de 0 a 1 (0.18 = 18%).
type InvoiceLineRequest struct {
	Description string          `json:"description" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

// TotalsRequest totales declarados por el llamador.
type TotalsRequest struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// SubmissionResult resultado de CreateAndSubmit / SubmitInvoice.
type SubmissionResult struct {
	InvoiceID    string `json:"invoice_id"`
	FiscalNumber string `json:"fiscal_number"`
	Status       string `json:"status"`
	TrackID      string `json:"track_id,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

// StatusResponse respuesta de POST /api/ecf/invoices/:id/refresh.
type StatusResponse struct {
	InvoiceID string `json:"invoice_id"`
	Status    string `json:"status"`
}

// InvoiceResponse e-CF con su estado de envío para GET /api/ecf/invoices/:id.
type InvoiceResponse struct {
	ID            string                `json:"id"`
	FiscalNumber  string                `json:"fiscal_number"`
	DocumentType  string                `json:"document_type"`
	IssueDate     string                `json:"issue_date"`
	Currency      string                `json:"currency"`
	PaymentMethod string                `json:"payment_method,omitempty"`
	Recipient     PartyRequest          `json:"recipient"`
	Lines         []InvoiceLineResponse `json:"lines"`
	Subtotal      decimal.Decimal       `json:"subtotal"`
	TaxTotal      decimal.Decimal       `json:"tax_total"`
	Total         decimal.Decimal       `json:"total"`
	Status        string                `json:"status"`
	StatusDetail  string                `json:"status_detail,omitempty"`
	TrackID       string                `json:"track_id,omitempty"`
	Attempts      int                   `json:"attempts"`
	SubmittedAt   *time.Time            `json:"submitted_at,omitempty"`
	LastCheckedAt *time.Time            `json:"last_checked_at,omitempty"`
}

// InvoiceLineResponse línea con montos calculados.
type InvoiceLineResponse struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
}

// CertificateResponse metadatos no sensibles del certificado en la bóveda.
type CertificateResponse struct {
	Alias        string    `json:"alias,omitempty"`
	Issuer       string    `json:"issuer"`
	Subject      string    `json:"subject"`
	SerialNumber string    `json:"serial_number"`
	ValidUntil   time.Time `json:"valid_until"`
}

// SubmissionErrorResponse error posterior a la asignación del e-NCF: el número ya
// existe y se devuelve junto con el estado persistido.
type SubmissionErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Result  *SubmissionResult `json:"result,omitempty"`
}
