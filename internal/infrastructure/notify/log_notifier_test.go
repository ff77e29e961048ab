package notify_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/infrastructure/notify"
)

func TestLogNotifier_RegistraSinDocumento(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewLogNotifier(zerolog.New(&buf))

	n.NotifyInvoiceStatusChanged(context.Background(), &entity.Invoice{
		ID:           "inv-1",
		FiscalNumber: "E0100000001",
		Status:       entity.StatusRejected,
		StatusDetail: "RNC no registrado",
		SignedXML:    "<ECF>secreto</ECF>",
	})

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"fiscal_number":"E0100000001"`)
	assert.Contains(t, out, `"status":"REJECTED"`)
	assert.NotContains(t, out, "secreto")
}
