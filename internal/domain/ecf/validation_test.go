package ecf_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-api/internal/domain"
	domainecf "github.com/jhoicas/ecf-api/internal/domain/ecf"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
)

func validIssuer() entity.Party {
	return entity.Party{LegalName: "Fumigadora del Caribe SRL", FiscalID: "131246796"}
}

func validInvoice() *entity.Invoice {
	inv := &entity.Invoice{
		DocumentType:  "01",
		IssueDate:     time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
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

func TestValidateInvoice_Valida(t *testing.T) {
	inv := validInvoice()
	require.NoError(t, domainecf.ValidateInvoice(inv, validIssuer(), inv.Recipient))
	assert.Equal(t, "1180.00", inv.Total.StringFixed(2))
}

func TestValidateInvoice_RecogeTodasLasViolaciones(t *testing.T) {
	inv := validInvoice()
	inv.Recipient.FiscalID = "131246795"
	inv.Lines = append(inv.Lines, entity.InvoiceLine{
		Description: "Cebo",
		Quantity:    decimal.Zero,
		UnitPrice:   decimal.NewFromInt(-5),
		TaxRate:     decimal.RequireFromString("1.5"),
	})
	issuer := validIssuer()
	issuer.FiscalID = "131246795"

	err := domainecf.ValidateInvoice(inv, issuer, inv.Recipient)
	require.Error(t, err)

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	for _, field := range []string{
		"issuer.fiscalId", "recipient.fiscalId",
		"lines[1].quantity", "lines[1].unitPrice", "lines[1].taxRate",
	} {
		assert.True(t, verr.Has(field), "falta violación en %s", field)
	}
}

func TestValidateInvoice_ToleranciaDeTotales(t *testing.T) {
	inv := validInvoice()
	inv.Total = inv.Total.Add(decimal.RequireFromString("0.01"))
	assert.NoError(t, domainecf.ValidateInvoice(inv, validIssuer(), inv.Recipient), "0.01 está dentro de la tolerancia")

	inv.Total = inv.Total.Add(decimal.RequireFromString("0.01"))
	err := domainecf.ValidateInvoice(inv, validIssuer(), inv.Recipient)
	require.Error(t, err)
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("totals.total"))
	assert.Len(t, verr.Violations, 1)
}

func TestValidateInvoice_SinLineas(t *testing.T) {
	inv := validInvoice()
	inv.Lines = nil
	inv.ComputeTotals()
	err := domainecf.ValidateInvoice(inv, validIssuer(), inv.Recipient)
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("lines"))
}

func TestValidateInvoice_TipoYMonedaInvalidos(t *testing.T) {
	inv := validInvoice()
	inv.DocumentType = "9"
	inv.Currency = "pesos"
	err := domainecf.ValidateInvoice(inv, validIssuer(), inv.Recipient)
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("documentType"))
	assert.True(t, verr.Has("currency"))
}

func TestValidateInvoice_TextoNoRepresentableEnXML(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(inv *entity.Invoice)
		field string
	}{
		{"control en descripción", func(inv *entity.Invoice) { inv.Lines[0].Description = "Fumigación\x01" }, "lines[0].description"},
		{"latin-1 en descripción", func(inv *entity.Invoice) { inv.Lines[0].Description = "Fumigaci\xf3n" }, "lines[0].description"},
		{"nulo en razón social", func(inv *entity.Invoice) { inv.Recipient.LegalName = "Hotel\x00Playa" }, "recipient.legalName"},
		{"no-carácter en dirección", func(inv *entity.Invoice) { inv.Recipient.Address = "Calle \uFFFE" }, "recipient.address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := validInvoice()
			tt.edit(inv)
			err := domainecf.ValidateInvoice(inv, validIssuer(), inv.Recipient)
			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.True(t, verr.Has(tt.field), "falta violación en %s: %v", tt.field, err)
		})
	}

	inv := validInvoice()
	inv.Lines[0].Description = "Fumigación\tgeneral 😀"
	assert.NoError(t, domainecf.ValidateInvoice(inv, validIssuer(), inv.Recipient), "tabulador y emoji son XML válido")
}

func TestValidateInvoice_EscalaDeCantidadYPrecio(t *testing.T) {
	inv := validInvoice()
	inv.Lines[0].Quantity = decimal.NewFromInt(1000)
	inv.Lines[0].UnitPrice = decimal.RequireFromString("0.00004")
	inv.Lines = append(inv.Lines, entity.InvoiceLine{
		Description: "Cebo",
		Quantity:    decimal.RequireFromString("0.00001"),
		UnitPrice:   decimal.NewFromInt(10),
		TaxRate:     decimal.RequireFromString("0.18005"),
	})
	inv.ComputeTotals()

	err := domainecf.ValidateInvoice(inv, validIssuer(), inv.Recipient)
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	for _, field := range []string{"lines[0].unitPrice", "lines[1].quantity", "lines[1].taxRate"} {
		assert.True(t, verr.Has(field), "falta violación en %s", field)
	}
	assert.False(t, verr.Has("lines[0].quantity"))

	// ceros a la derecha no cuentan como decimales
	inv = validInvoice()
	inv.Lines[0].Quantity = decimal.RequireFromString("1.500000")
	inv.ComputeTotals()
	assert.NoError(t, domainecf.ValidateInvoice(inv, validIssuer(), inv.Recipient))
}
