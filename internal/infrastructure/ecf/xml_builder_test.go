package ecf_test

import (
	"errors"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-api/internal/domain"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/infrastructure/ecf"
)

func testIssuer() entity.Party {
	return entity.Party{
		LegalName: "Fumigadora del Caribe SRL",
		FiscalID:  "131246796",
		Address:   "Av. Independencia 12, Santo Domingo",
	}
}

func fumigacionInvoice() *entity.Invoice {
	inv := &entity.Invoice{
		ID:            "inv-1",
		FiscalNumber:  "E0100000001",
		DocumentType:  "01",
		IssueDate:     time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
		Currency:      "DOP",
		PaymentMethod: "1",
		Recipient:     entity.Party{LegalName: "Hotel Playa Dorada", FiscalID: "101010632"},
		Lines: []entity.InvoiceLine{{
			Description: "Fumigación",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.NewFromInt(1000),
			TaxRate:     decimal.RequireFromString("0.18"),
		}},
	}
	inv.ComputeTotals()
	return inv
}

func TestAssemble_Determinista(t *testing.T) {
	b := ecf.NewXMLBuilderService()
	a1 := fumigacionInvoice()
	a2 := fumigacionInvoice()
	// misma entrada lógica con representación distinta
	a2.Lines[0].Description = "  Fumigación "
	a2.Lines[0].UnitPrice = decimal.RequireFromString("1000.000")
	a2.Recipient.LegalName = "Hotel  Playa\tDorada"
	a2.ComputeTotals()

	d1, err := b.Assemble(a1, testIssuer(), a1.Recipient)
	require.NoError(t, err)
	d2, err := b.Assemble(a2, testIssuer(), a2.Recipient)
	require.NoError(t, err)

	assert.Equal(t, string(d1.Bytes), string(d2.Bytes))
	assert.Equal(t, d1.Digest, d2.Digest)
	assert.Equal(t, "E0100000001", d1.FiscalNumber)
}

func TestAssemble_EstructuraYMontos(t *testing.T) {
	inv := fumigacionInvoice()
	d, err := ecf.NewXMLBuilderService().Assemble(inv, testIssuer(), inv.Recipient)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(d.Bytes))
	root := doc.Root()
	require.Equal(t, "ECF", root.Tag)

	children := root.ChildElements()
	require.Len(t, children, 2)
	assert.Equal(t, "Encabezado", children[0].Tag)
	assert.Equal(t, "DetallesItems", children[1].Tag)

	var order []string
	for _, e := range children[0].ChildElements() {
		order = append(order, e.Tag)
	}
	assert.Equal(t, []string{"Version", "IdDoc", "Emisor", "Comprador", "Totales"}, order)

	assert.Equal(t, "E0100000001", root.FindElement("./Encabezado/IdDoc/eNCF").Text())
	assert.Equal(t, "15-03-2024", root.FindElement("./Encabezado/Emisor/FechaEmision").Text())
	assert.Equal(t, "1000.00", root.FindElement("./Encabezado/Totales/MontoGravadoTotal").Text())
	assert.Equal(t, "180.00", root.FindElement("./Encabezado/Totales/TotalITBIS").Text())
	assert.Equal(t, "1180.00", root.FindElement("./Encabezado/Totales/MontoTotal").Text())
	assert.Equal(t, "Fumigación", root.FindElement("./DetallesItems/Item/NombreItem").Text())
	assert.Nil(t, root.FindElement("./Encabezado/Comprador/CorreoComprador"), "los opcionales vacíos se omiten")
}

func TestAssemble_CanonicoEsIdempotente(t *testing.T) {
	inv := fumigacionInvoice()
	d, err := ecf.NewXMLBuilderService().Assemble(inv, testIssuer(), inv.Recipient)
	require.NoError(t, err)

	again, err := ecf.Canonicalize(d.Bytes)
	require.NoError(t, err)
	assert.Equal(t, d.Bytes, again)
	assert.Equal(t, ecf.Digest(d.Bytes), d.Digest)
}

func TestAssemble_IssuerInvalidoDevuelveValidationError(t *testing.T) {
	inv := fumigacionInvoice()
	issuer := testIssuer()
	issuer.FiscalID = "131246795"

	d, err := ecf.NewXMLBuilderService().Assemble(inv, issuer, inv.Recipient)
	assert.Nil(t, d)
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("issuer.fiscalId"))
}

func TestAssemble_SinNumeroFiscal(t *testing.T) {
	inv := fumigacionInvoice()
	inv.FiscalNumber = ""
	inv.Lines[0].Quantity = decimal.Zero
	inv.ComputeTotals()

	_, err := ecf.NewXMLBuilderService().Assemble(inv, testIssuer(), inv.Recipient)
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("fiscalNumber"))
	assert.True(t, verr.Has("lines[0].quantity"), "reporta todas las violaciones, no solo la primera")
}

func TestAssemble_EscapaCaracteresEspeciales(t *testing.T) {
	inv := fumigacionInvoice()
	inv.Recipient.LegalName = "Hotel <Playa> & Mar"
	d, err := ecf.NewXMLBuilderService().Assemble(inv, testIssuer(), inv.Recipient)
	require.NoError(t, err)
	assert.Contains(t, string(d.Bytes), "Hotel &lt;Playa&gt; &amp; Mar")
}
