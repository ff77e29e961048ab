// Package ecf contiene las reglas de validación de dominio de un e-CF antes de ensamblarlo.
// Usa catálogos y verificadores de pkg/ecf.
package ecf

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/ecf-api/internal/domain"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/pkg/ecf"
)

// TotalsTolerance diferencia máxima admitida entre totales declarados y calculados.
var TotalsTolerance = decimal.New(1, -2)

// AmountScale decimales admitidos en cantidad, precio y tasa (escala de las columnas NUMERIC).
const AmountScale = 4

// maxAmount cota superior de cantidad y precio (NUMERIC(18,4)).
var maxAmount = decimal.New(1, 14)

var currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

// ValidateInvoice revisa la factura completa y devuelve un *domain.ValidationError con
// todas las violaciones encontradas, o nil.
func ValidateInvoice(invoice *entity.Invoice, issuer, recipient entity.Party) error {
	return Collect(invoice, issuer, recipient).OrNil()
}

// Collect acumula las violaciones sin convertirlas en error, para que el llamador
// pueda añadir las suyas.
func Collect(invoice *entity.Invoice, issuer, recipient entity.Party) *domain.ValidationError {
	verr := &domain.ValidationError{}
	if invoice == nil {
		verr.Add("invoice", "factura nula")
		return verr
	}

	validateParty(verr, "issuer", issuer)
	validateParty(verr, "recipient", recipient)

	if !ecf.IsValidDocumentType(invoice.DocumentType) {
		verr.Add("documentType", fmt.Sprintf("tipo de comprobante %q desconocido", invoice.DocumentType))
	}
	if !currencyRe.MatchString(invoice.Currency) {
		verr.Add("currency", "debe ser un código ISO 4217 de 3 letras")
	}
	if invoice.PaymentMethod != "" && !ecf.ValidPaymentMethods[invoice.PaymentMethod] {
		verr.Add("paymentMethod", fmt.Sprintf("forma de pago %q no válida", invoice.PaymentMethod))
	}
	if invoice.IssueDate.IsZero() {
		verr.Add("issueDate", "requerida")
	}

	if len(invoice.Lines) == 0 {
		verr.Add("lines", "la factura debe tener al menos una línea")
	}
	var sub, tax decimal.Decimal
	for i, l := range invoice.Lines {
		path := fmt.Sprintf("lines[%d]", i)
		if strings.TrimSpace(l.Description) == "" {
			verr.Add(path+".description", "requerida")
		} else {
			checkText(verr, path+".description", l.Description)
		}
		if !l.Quantity.IsPositive() {
			verr.Add(path+".quantity", "debe ser mayor que 0")
		} else {
			checkAmount(verr, path+".quantity", l.Quantity)
		}
		if l.UnitPrice.IsNegative() {
			verr.Add(path+".unitPrice", "no puede ser negativo")
		} else {
			checkAmount(verr, path+".unitPrice", l.UnitPrice)
		}
		switch {
		case l.TaxRate.IsNegative() || l.TaxRate.GreaterThan(decimal.NewFromInt(1)):
			verr.Add(path+".taxRate", "debe estar entre 0 y 1")
		case !fitsScale(l.TaxRate):
			verr.Add(path+".taxRate", fmt.Sprintf("admite como máximo %d decimales", AmountScale))
		}
		lineSub := l.Quantity.Mul(l.UnitPrice).Round(2)
		sub = sub.Add(lineSub)
		tax = tax.Add(lineSub.Mul(l.TaxRate).Round(2))
	}

	// Totales declarados vs. calculados, con tolerancia de redondeo.
	checkTotal(verr, "totals.subtotal", invoice.Subtotal, sub)
	checkTotal(verr, "totals.tax", invoice.TaxTotal, tax)
	checkTotal(verr, "totals.total", invoice.Total, sub.Add(tax))

	return verr
}

func validateParty(verr *domain.ValidationError, prefix string, p entity.Party) {
	if strings.TrimSpace(p.LegalName) == "" {
		verr.Add(prefix+".legalName", "requerido")
	} else {
		checkText(verr, prefix+".legalName", p.LegalName)
	}
	checkText(verr, prefix+".address", p.Address)
	checkText(verr, prefix+".email", p.Email)
	checkText(verr, prefix+".phone", p.Phone)
	if err := ecf.ValidateFiscalID(p.FiscalID); err != nil {
		verr.Add(prefix+".fiscalId", err.Error())
	}
}

func checkTotal(verr *domain.ValidationError, field string, declared, computed decimal.Decimal) {
	if declared.Sub(computed).Abs().GreaterThan(TotalsTolerance) {
		verr.Add(field, fmt.Sprintf("declarado %s no coincide con el calculado %s", declared.StringFixed(2), computed.StringFixed(2)))
	}
}

// checkText rechaza UTF-8 inválido y caracteres que XML 1.0 no admite; el documento
// firmado debe contener exactamente el texto guardado.
func checkText(verr *domain.ValidationError, field, value string) {
	if !utf8.ValidString(value) {
		verr.Add(field, "contiene UTF-8 inválido")
		return
	}
	for _, r := range value {
		if !isXMLChar(r) {
			verr.Add(field, fmt.Sprintf("carácter no permitido U+%04X", r))
			return
		}
	}
}

// isXMLChar rango Char de XML 1.0.
func isXMLChar(r rune) bool {
	switch {
	case r == 0x09, r == 0x0A, r == 0x0D:
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	default:
		return r >= 0x10000 && r <= utf8.MaxRune
	}
}

func checkAmount(verr *domain.ValidationError, field string, d decimal.Decimal) {
	if !fitsScale(d) {
		verr.Add(field, fmt.Sprintf("admite como máximo %d decimales", AmountScale))
	}
	if d.GreaterThanOrEqual(maxAmount) {
		verr.Add(field, "excede el máximo admitido")
	}
}

func fitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountScale))
}
