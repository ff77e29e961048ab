// Package ecf implementa la integración con la autoridad tributaria: ensamblado del
// documento canónico e-CF y el cliente HTTP de recepción y consulta.
package ecf

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/ucarion/c14n"
	"golang.org/x/text/unicode/norm"

	domainecf "github.com/jhoicas/ecf-api/internal/domain/ecf"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
)

const (
	// RootElement elemento raíz del e-CF; el firmador inserta la firma antes de su cierre.
	RootElement = "ECF"
	// FormatVersion versión del formato emitido.
	FormatVersion = "1.0"
	// DateLayout fecha de emisión como la espera la autoridad (dd-MM-yyyy).
	DateLayout = "02-01-2006"
)

// XMLBuilderService ensambla el e-CF canónico. No guarda estado: es seguro para uso concurrente.
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// Assemble valida la factura (todas las violaciones a la vez) y produce el documento canónico.
// Dos llamadas con la misma entrada lógica producen bytes idénticos.
func (s *XMLBuilderService) Assemble(invoice *entity.Invoice, issuer, recipient entity.Party) (*domainecf.CanonicalDocument, error) {
	verr := domainecf.Collect(invoice, issuer, recipient)
	if invoice != nil && invoice.FiscalNumber == "" {
		verr.Add("fiscalNumber", "la factura no tiene número fiscal asignado")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	root := doc.CreateElement(RootElement)

	// ---- Encabezado: orden de campos fijo
	enc := root.CreateElement("Encabezado")
	addText(enc, "Version", FormatVersion)
	s.writeIdDoc(enc, invoice)
	s.writeEmisor(enc, issuer, invoice)
	s.writeComprador(enc, recipient)
	s.writeTotales(enc, invoice)

	// ---- Detalle
	s.writeItems(root, invoice.Lines)

	raw, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("ecf: serializar XML: %w", err)
	}
	canonical, err := Canonicalize(raw)
	if err != nil {
		return nil, fmt.Errorf("ecf: canonicalizar: %w", err)
	}
	return &domainecf.CanonicalDocument{
		Bytes:        canonical,
		FiscalNumber: invoice.FiscalNumber,
		Digest:       Digest(canonical),
	}, nil
}

func (s *XMLBuilderService) writeIdDoc(parent *etree.Element, inv *entity.Invoice) {
	id := parent.CreateElement("IdDoc")
	addText(id, "TipoeCF", inv.DocumentType)
	addText(id, "eNCF", inv.FiscalNumber)
	addOptional(id, "TipoPago", inv.PaymentMethod)
	addText(id, "TipoMoneda", inv.Currency)
}

func (s *XMLBuilderService) writeEmisor(parent *etree.Element, issuer entity.Party, inv *entity.Invoice) {
	em := parent.CreateElement("Emisor")
	addText(em, "RNCEmisor", normalizeID(issuer.FiscalID))
	addText(em, "RazonSocialEmisor", issuer.LegalName)
	addOptional(em, "DireccionEmisor", issuer.Address)
	addOptional(em, "CorreoEmisor", issuer.Email)
	addOptional(em, "TelefonoEmisor", issuer.Phone)
	addText(em, "FechaEmision", inv.IssueDate.Format(DateLayout))
}

func (s *XMLBuilderService) writeComprador(parent *etree.Element, recipient entity.Party) {
	c := parent.CreateElement("Comprador")
	addText(c, "RNCComprador", normalizeID(recipient.FiscalID))
	addText(c, "RazonSocialComprador", recipient.LegalName)
	addOptional(c, "DireccionComprador", recipient.Address)
	addOptional(c, "CorreoComprador", recipient.Email)
	addOptional(c, "TelefonoComprador", recipient.Phone)
}

// writeTotales separa base gravada y exenta; los montos salen siempre con 2 decimales.
func (s *XMLBuilderService) writeTotales(parent *etree.Element, inv *entity.Invoice) {
	var gravado, exento decimal.Decimal
	for _, l := range inv.Lines {
		lineSub := l.Quantity.Mul(l.UnitPrice).Round(2)
		if l.TaxRate.IsZero() {
			exento = exento.Add(lineSub)
		} else {
			gravado = gravado.Add(lineSub)
		}
	}
	t := parent.CreateElement("Totales")
	addText(t, "MontoGravadoTotal", amount(gravado))
	addText(t, "MontoExento", amount(exento))
	addText(t, "TotalITBIS", amount(inv.TaxTotal))
	addText(t, "MontoTotal", amount(inv.Total))
}

func (s *XMLBuilderService) writeItems(root *etree.Element, lines []entity.InvoiceLine) {
	items := root.CreateElement("DetallesItems")
	for i, l := range lines {
		it := items.CreateElement("Item")
		addText(it, "NumeroLinea", strconv.Itoa(i+1))
		addText(it, "NombreItem", l.Description)
		addText(it, "CantidadItem", quantity(l.Quantity))
		addText(it, "PrecioUnitarioItem", amount(l.UnitPrice))
		addText(it, "TasaITBIS", amount(l.TaxRate.Mul(decimal.NewFromInt(100))))
		lineSub := l.Quantity.Mul(l.UnitPrice).Round(2)
		addText(it, "MontoITBIS", amount(lineSub.Mul(l.TaxRate).Round(2)))
		addText(it, "MontoItem", amount(lineSub))
	}
}

// ── utilidades ───────────────────────────────────────────────────────────────

// Canonicalize aplica XML C14N (sin comentarios) a data.
func Canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	out, err := c14n.Canonicalize(dec)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("documento vacío")
	}
	return out, nil
}

// Digest SHA-256 en Base64 (formato de DigestValue).
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func addText(parent *etree.Element, tag, value string) {
	parent.CreateElement(tag).SetText(normalizeText(value))
}

// addOptional omite el elemento si el valor queda vacío tras normalizar.
func addOptional(parent *etree.Element, tag, value string) {
	if v := normalizeText(value); v != "" {
		parent.CreateElement(tag).SetText(v)
	}
}

// normalizeText NFC y espacios colapsados; evita que dos entradas equivalentes firmen distinto.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

func normalizeID(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// quantity usa 2 decimales salvo que la cantidad tenga más precisión.
func quantity(d decimal.Decimal) string {
	if d.Round(2).Equal(d) {
		return d.StringFixed(2)
	}
	return d.String()
}
