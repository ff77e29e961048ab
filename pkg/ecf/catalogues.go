// Package ecf contiene catálogos y validaciones del comprobante fiscal electrónico (e-CF)
// de República Dominicana: tipos de comprobante, formas de pago y el vocabulario
// de estados que devuelve la autoridad tributaria.
package ecf

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// Tipos de comprobante
// =============================================================================

const (
	DocTypeCreditoFiscal       = "01" // Crédito fiscal (serie tradicional)
	DocTypeConsumo             = "02" // Consumo
	DocTypeNotaDebito          = "03" // Nota de débito
	DocTypeNotaCredito         = "04" // Nota de crédito
	DocTypeFacturaCreditoECF   = "31" // Factura de crédito fiscal electrónica
	DocTypeFacturaConsumoECF   = "32" // Factura de consumo electrónica
	DocTypeNotaDebitoECF       = "33" // Nota de débito electrónica
	DocTypeNotaCreditoECF      = "34" // Nota de crédito electrónica
	DocTypeComprasECF          = "41" // Compras electrónico
	DocTypeGastosMenoresECF    = "43" // Gastos menores electrónico
	DocTypeRegimenesEspeciales = "44" // Regímenes especiales electrónico
	DocTypeGubernamentalECF    = "45" // Gubernamental electrónico
	DocTypeExportacionesECF    = "46" // Exportaciones electrónico
	DocTypePagosExteriorECF    = "47" // Pagos al exterior electrónico
)

// DocumentTypeNames nombre legible por código de tipo de comprobante.
var DocumentTypeNames = map[string]string{
	DocTypeCreditoFiscal:       "Crédito Fiscal",
	DocTypeConsumo:             "Consumo",
	DocTypeNotaDebito:          "Nota de Débito",
	DocTypeNotaCredito:         "Nota de Crédito",
	DocTypeFacturaCreditoECF:   "Factura de Crédito Fiscal Electrónica",
	DocTypeFacturaConsumoECF:   "Factura de Consumo Electrónica",
	DocTypeNotaDebitoECF:       "Nota de Débito Electrónica",
	DocTypeNotaCreditoECF:      "Nota de Crédito Electrónica",
	DocTypeComprasECF:          "Compras Electrónico",
	DocTypeGastosMenoresECF:    "Gastos Menores Electrónico",
	DocTypeRegimenesEspeciales: "Regímenes Especiales Electrónico",
	DocTypeGubernamentalECF:    "Gubernamental Electrónico",
	DocTypeExportacionesECF:    "Exportaciones Electrónico",
	DocTypePagosExteriorECF:    "Pagos al Exterior Electrónico",
}

// IsValidDocumentType indica si el código pertenece al catálogo.
func IsValidDocumentType(code string) bool {
	_, ok := DocumentTypeNames[code]
	return ok
}

// =============================================================================
// Formas de pago
// =============================================================================

const (
	PaymentCash     = "1" // Contado
	PaymentCredit   = "2" // Crédito
	PaymentGratuito = "3" // Gratuito
)

// ValidPaymentMethods formas de pago aceptadas.
var ValidPaymentMethods = map[string]bool{
	PaymentCash: true, PaymentCredit: true, PaymentGratuito: true,
}

// DefaultCurrency moneda por defecto del comprobante.
const DefaultCurrency = "DOP"

// =============================================================================
// Vocabulario de estados de la autoridad
// =============================================================================

// AuthorityStatus estado canónico al que se reduce cualquier respuesta de consulta.
type AuthorityStatus string

const (
	AuthoritySubmitted AuthorityStatus = "Submitted"
	AuthorityAccepted  AuthorityStatus = "Accepted"
	AuthorityRejected  AuthorityStatus = "Rejected"
)

// StatusVocabulary traduce el texto de la autoridad (normalizado) al estado canónico.
// Lo que no aparece aquí se considera todavía en proceso.
var StatusVocabulary = map[string]AuthorityStatus{
	"aceptado":             AuthorityAccepted,
	"aceptado condicional": AuthorityAccepted,
	"rechazado":            AuthorityRejected,
	"en proceso":           AuthoritySubmitted,
	"recibido":             AuthoritySubmitted,
}

// MapAuthorityStatus normaliza mayúsculas, tildes y espacios y consulta StatusVocabulary.
func MapAuthorityStatus(raw string) AuthorityStatus {
	if s, ok := StatusVocabulary[foldStatus(raw)]; ok {
		return s
	}
	return AuthoritySubmitted
}

func foldStatus(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}
