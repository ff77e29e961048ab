package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice representa un comprobante fiscal electrónico (e-CF) y su ciclo de envío.
type Invoice struct {
	ID             string
	FiscalNumber   string // e-NCF; vacío hasta que el asignador lo entrega
	DocumentType   string // código de tipo de e-CF (2 dígitos)
	IssueDate      time.Time
	Currency       string
	PaymentMethod  string
	IssuerFiscalID string // RNC del emisor (el emisor es configuración del proceso)
	Recipient      Party
	Lines          []InvoiceLine
	Subtotal       decimal.Decimal
	TaxTotal       decimal.Decimal
	Total          decimal.Decimal
	Status         Status
	TrackID        string // Track id devuelto por la autoridad tras la recepción
	StatusDetail   string // Mensaje de la autoridad (rechazo textual) o del último error
	Attempts       int    // Intentos de envío realizados
	SignedXML      string // Documento firmado (bytes exactos enviados)
	SubmittedAt    *time.Time
	LastCheckedAt  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InvoiceLine línea de detalle. Inmutable una vez la factura está firmada.
type InvoiceLine struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal // 0..1 (0.18 = ITBIS 18%)
	Subtotal    decimal.Decimal
	TaxAmount   decimal.Decimal
}

// HasFiscalNumber indica si el asignador ya entregó el e-NCF.
func (i *Invoice) HasFiscalNumber() bool { return i.FiscalNumber != "" }

// Signed indica si el documento ya fue firmado; a partir de aquí las líneas no cambian.
func (i *Invoice) Signed() bool { return i.SignedXML != "" }

// ComputeTotals recalcula subtotales e impuestos por línea y los totales de cabecera.
// Los montos se redondean a 2 decimales por línea (regla de la autoridad).
func (i *Invoice) ComputeTotals() {
	var sub, tax decimal.Decimal
	for idx := range i.Lines {
		l := &i.Lines[idx]
		l.Subtotal = l.Quantity.Mul(l.UnitPrice).Round(2)
		l.TaxAmount = l.Subtotal.Mul(l.TaxRate).Round(2)
		sub = sub.Add(l.Subtotal)
		tax = tax.Add(l.TaxAmount)
	}
	i.Subtotal = sub
	i.TaxTotal = tax
	i.Total = sub.Add(tax)
}
