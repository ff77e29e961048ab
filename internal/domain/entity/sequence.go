package entity

import "time"

// SequenceCounter siguiente número a emitir por tipo de e-CF.
// Solo el asignador de secuencias lo modifica; nunca decrece.
type SequenceCounter struct {
	DocumentType string
	Next         int64
	Version      int64 // control de concurrencia optimista
	UpdatedAt    time.Time
}

// SubmissionRecord registro único por factura del envío a la autoridad.
type SubmissionRecord struct {
	InvoiceID     string
	FiscalNumber  string
	TrackID       string
	SubmittedAt   time.Time
	RawResponse   string
	LastCheckedAt *time.Time
}
