package ecf_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appecf "github.com/jhoicas/ecf-api/internal/application/ecf"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
)

func TestPoller_RefrescaYRetoma(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOpts{})

	submitted, err := f.pipeline.CreateAndSubmit(ctx, fumigacion())
	require.NoError(t, err)

	// factura abandonada en PENDING hace rato (sin firmar)
	stale := &entity.Invoice{
		ID:           "inv-stale",
		FiscalNumber: "E0100000099",
		DocumentType: "01",
		IssueDate:    time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
		Currency:     "DOP",
		Recipient:    entity.Party{LegalName: "Colmado La Esquina", FiscalID: recipientRNC},
		Lines: []entity.InvoiceLine{{
			Description: "Control de plagas",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.NewFromInt(2500),
			TaxRate:     decimal.RequireFromString("0.18"),
		}},
		Status:    entity.StatusPending,
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	stale.ComputeTotals()
	require.NoError(t, f.invoices.SaveInvoice(ctx, stale))

	// recién creada: la petición original sigue a cargo
	fresh := *stale
	fresh.ID = "inv-fresh"
	fresh.FiscalNumber = "E0100000100"
	fresh.UpdatedAt = time.Now()
	require.NoError(t, f.invoices.SaveInvoice(ctx, &fresh))

	f.authority.SetStatus("Aceptado Condicional", "")
	poller := appecf.NewPoller(f.pipeline, f.invoices, appecf.PollerConfig{Workers: 2, StaleAfter: time.Minute}, zerolog.Nop())
	require.NoError(t, poller.RunOnce(ctx))

	inv, err := f.pipeline.GetInvoice(ctx, submitted.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, inv.Status)

	inv, err = f.pipeline.GetInvoice(ctx, "inv-stale")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSubmitted, inv.Status)
	assert.Equal(t, "TRK-E0100000099", inv.TrackID)

	inv, err = f.pipeline.GetInvoice(ctx, "inv-fresh")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, inv.Status)
}

func TestPoller_RunSeDetieneConElContexto(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	poller := appecf.NewPoller(f.pipeline, f.invoices, appecf.PollerConfig{Interval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run no terminó tras cancelar el contexto")
	}
}
