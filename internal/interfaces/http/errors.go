package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/ecf-api/internal/application/dto"
	"github.com/jhoicas/ecf-api/internal/domain"
)

// statusFor traduce un error de dominio a código HTTP y código de error de la API.
func statusFor(err error) (int, string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return fiber.StatusBadRequest, "VALIDATION"
	case domain.IsCrypto(err):
		return fiber.StatusUnprocessableEntity, "CRYPTO"
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrForbidden):
		return fiber.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrAlreadySubmitted):
		return fiber.StatusConflict, "ALREADY_SUBMITTED"
	case errors.Is(err, domain.ErrCancelled):
		return fiber.StatusConflict, "CANCELLED"
	case errors.Is(err, domain.ErrInvalidTransition):
		return fiber.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, domain.ErrAllocationFailed):
		return fiber.StatusServiceUnavailable, "ALLOCATION_FAILED"
	case domain.IsTransient(err):
		return fiber.StatusServiceUnavailable, "AUTHORITY_UNAVAILABLE"
	case errors.Is(err, domain.ErrInvalidInput):
		return fiber.StatusBadRequest, "INVALID_INPUT"
	default:
		return fiber.StatusInternalServerError, "INTERNAL"
	}
}

// writeError responde con el cuerpo de error adecuado. Los 500 no exponen el detalle.
func writeError(c *fiber.Ctx, log zerolog.Logger, err error) error {
	status, code := statusFor(err)

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return c.Status(status).JSON(validationResponse(verr.Violations))
	}
	if status == fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("error interno")
		return c.Status(status).JSON(dto.ErrorResponse{Code: code, Message: "error interno"})
	}
	return c.Status(status).JSON(dto.ErrorResponse{Code: code, Message: err.Error()})
}

// writeSubmissionError como writeError pero conserva el resultado ya persistido.
func writeSubmissionError(c *fiber.Ctx, log zerolog.Logger, res *dto.SubmissionResult, err error) error {
	if res == nil {
		return writeError(c, log, err)
	}
	status, code := statusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Error().Err(err).Str("invoice_id", res.InvoiceID).Msg("error interno en el envío")
		msg = "error interno"
	}
	return c.Status(status).JSON(dto.SubmissionErrorResponse{Code: code, Message: msg, Result: res})
}

func validationResponse(violations []domain.FieldViolation) dto.ValidationErrorResponse {
	out := make([]dto.FieldViolation, 0, len(violations))
	for _, v := range violations {
		out = append(out, dto.FieldViolation{Field: v.Field, Reason: v.Reason})
	}
	return dto.ValidationErrorResponse{Code: "VALIDATION", Message: "datos inválidos", Violations: out}
}
