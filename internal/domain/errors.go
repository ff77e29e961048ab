package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrDuplicate    = errors.New("recurso duplicado")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")

	// Secuencias fiscales
	ErrAllocationConflict = errors.New("conflicto de concurrencia al asignar secuencia")
	ErrAllocationFailed   = errors.New("no se pudo asignar la secuencia fiscal")

	// Bóveda de certificados y firma
	ErrInvalidPassphrase   = errors.New("frase de paso inválida")
	ErrVaultCorrupted      = errors.New("entrada de la bóveda corrupta")
	ErrCertificateNotFound = errors.New("no hay certificado almacenado")
	ErrSigning             = errors.New("error de firma digital")

	// Ciclo de envío
	ErrInvalidTransition = errors.New("transición de estado no permitida")
	ErrAlreadySubmitted  = errors.New("la factura ya fue enviada (tiene track id)")
	ErrCancelled         = errors.New("envío cancelado")
	ErrNotSigned         = errors.New("la factura no está firmada o no tiene número fiscal")
)

// FieldViolation describe un problema concreto en un campo de la factura.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError agrupa todas las violaciones encontradas (no solo la primera).
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Reason)
	}
	return "validación: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Add registra una violación.
func (e *ValidationError) Add(field, reason string) {
	e.Violations = append(e.Violations, FieldViolation{Field: field, Reason: reason})
}

// Has indica si hay una violación para el campo dado.
func (e *ValidationError) Has(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

// OrNil devuelve nil si no se registró ninguna violación.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Violations) == 0 {
		return nil
	}
	return e
}

// CryptoError error criptográfico: frase de paso, bóveda corrupta o fallo de firma.
// No es reintentable; requiere acción del operador.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string { return fmt.Sprintf("cripto %s: %v", e.Op, e.Err) }
func (e *CryptoError) Unwrap() error { return e.Err }

// SigningError construye un CryptoError de firma.
func SigningError(err error) error {
	return &CryptoError{Op: "firma", Err: fmt.Errorf("%w: %v", ErrSigning, err)}
}

// TransientError timeout, 5xx o fallo de red: reintentable con backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transitorio %s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// RejectionError rechazo de la autoridad (4xx o estado Rechazado). Terminal para el número fiscal.
type RejectionError struct {
	StatusCode int
	Reason     string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("rechazado por la autoridad (%d): %s", e.StatusCode, e.Reason)
}

// IsTransient indica si el error es reintentable.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsCrypto indica si el error es criptográfico.
func IsCrypto(err error) bool {
	var c *CryptoError
	return errors.As(err, &c)
}

// IsValidation indica si el error es de validación.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
