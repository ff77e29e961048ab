package entity

import (
	"fmt"

	"github.com/jhoicas/ecf-api/internal/domain"
)

// Status estado del ciclo de envío de un e-CF.
type Status string

// Estados del envío a la autoridad tributaria.
const (
	StatusPending         Status = "PENDING"          // Firmada o por firmar, lista para enviar
	StatusSubmitting      Status = "SUBMITTING"       // Envío en curso
	StatusSubmitted       Status = "SUBMITTED"        // Recibida por la autoridad, en proceso
	StatusAccepted        Status = "ACCEPTED"         // Aceptada (final)
	StatusRejected        Status = "REJECTED"         // Rechazada (final, motivo en StatusDetail)
	StatusFailedTransient Status = "FAILED_TRANSIENT" // Error reintentable; vuelve a PENDING
	StatusFailedFatal     Status = "FAILED_FATAL"     // Requiere intervención humana
	StatusCancelled       Status = "CANCELLED"        // Retirada antes de completar el envío
)

// transitions tabla de transiciones permitidas.
var transitions = map[Status][]Status{
	StatusPending:         {StatusSubmitting, StatusFailedFatal, StatusCancelled},
	StatusSubmitting:      {StatusSubmitted, StatusFailedTransient, StatusFailedFatal},
	StatusFailedTransient: {StatusPending, StatusCancelled},
	StatusSubmitted:       {StatusSubmitted, StatusAccepted, StatusRejected},
}

// IsTerminal indica si el estado ya no admite transiciones.
func (s Status) IsTerminal() bool {
	_, ok := transitions[s]
	return !ok
}

// CanTransition indica si from → to es una transición válida.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition cambia el estado de la factura validando la tabla.
// PENDING → SUBMITTING exige número fiscal y documento firmado.
func (i *Invoice) Transition(to Status) error {
	if !CanTransition(i.Status, to) {
		return fmt.Errorf("%w: %s → %s", domain.ErrInvalidTransition, i.Status, to)
	}
	if i.Status == StatusPending && to == StatusSubmitting && (!i.HasFiscalNumber() || !i.Signed()) {
		return fmt.Errorf("%w: %s", domain.ErrInvalidTransition, domain.ErrNotSigned)
	}
	i.Status = to
	return nil
}
