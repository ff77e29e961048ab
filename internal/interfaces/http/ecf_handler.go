package http

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/ecf-api/internal/application/dto"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
)

// ecfService operaciones de emisión que expone el handler. Lo implementa *ecf.Pipeline.
type ecfService interface {
	CreateAndSubmit(ctx context.Context, req dto.CreateInvoiceRequest) (*dto.SubmissionResult, error)
	SubmitInvoice(ctx context.Context, invoiceID string) (*dto.SubmissionResult, error)
	RefreshStatus(ctx context.Context, invoiceID string) (entity.Status, error)
	CancelInvoice(ctx context.Context, invoiceID string) (entity.Status, error)
	InvoiceDetail(ctx context.Context, invoiceID string) (*dto.InvoiceResponse, error)
}

// ECFHandler maneja la emisión y el seguimiento de e-CF (protegido).
type ECFHandler struct {
	svc ecfService
	log zerolog.Logger
}

// NewECFHandler construye el handler.
func NewECFHandler(svc ecfService, log zerolog.Logger) *ECFHandler {
	return &ECFHandler{svc: svc, log: log}
}

// Create valida el borrador, asigna e-NCF, firma y envía.
// POST /api/ecf/invoices
//
// 201 con el resultado aunque el envío haya terminado en FAILED_*; el estado va en el cuerpo.
func (h *ECFHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateInvoiceRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if err := validateBody(in); err != nil {
		return writeError(c, h.log, err)
	}
	res, err := h.svc.CreateAndSubmit(c.UserContext(), in)
	if err != nil {
		return writeSubmissionError(c, h.log, res, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// GetByID detalle de la factura con su estado de envío.
// GET /api/ecf/invoices/:id
func (h *ECFHandler) GetByID(c *fiber.Ctx) error {
	inv, err := h.svc.InvoiceDetail(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(inv)
}

// Submit reanuda el envío de una factura PENDING o FAILED_TRANSIENT.
// POST /api/ecf/invoices/:id/submit
func (h *ECFHandler) Submit(c *fiber.Ctx) error {
	res, err := h.svc.SubmitInvoice(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeSubmissionError(c, h.log, res, err)
	}
	return c.JSON(res)
}

// Refresh consulta el estado en la autoridad.
// POST /api/ecf/invoices/:id/refresh
func (h *ECFHandler) Refresh(c *fiber.Ctx) error {
	id := c.Params("id")
	status, err := h.svc.RefreshStatus(c.UserContext(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.StatusResponse{InvoiceID: id, Status: string(status)})
}

// Cancel retira una factura que aún no llegó a la autoridad.
// POST /api/ecf/invoices/:id/cancel
func (h *ECFHandler) Cancel(c *fiber.Ctx) error {
	id := c.Params("id")
	status, err := h.svc.CancelInvoice(c.UserContext(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.StatusResponse{InvoiceID: id, Status: string(status)})
}
