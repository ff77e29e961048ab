// Package notify implementa el despacho de avisos de cambio de estado de los e-CF.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jhoicas/ecf-api/internal/domain/entity"
)

// LogNotifier registra cada cambio de estado en el log estructurado.
// Es el notificador por defecto mientras no haya un canal externo (correo, webhook).
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier crea el notificador.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

// NotifyInvoiceStatusChanged nunca incluye el documento firmado en el log.
func (n *LogNotifier) NotifyInvoiceStatusChanged(_ context.Context, inv *entity.Invoice) {
	ev := n.log.Info()
	switch inv.Status {
	case entity.StatusRejected, entity.StatusFailedFatal:
		ev = n.log.Warn()
	}
	ev.Str("invoice_id", inv.ID).
		Str("fiscal_number", inv.FiscalNumber).
		Str("status", string(inv.Status)).
		Str("track_id", inv.TrackID).
		Str("detail", inv.StatusDetail).
		Int("attempts", inv.Attempts).
		Msg("cambio de estado de e-CF")
}
