package http

import (
	"context"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/ecf-api/internal/application/dto"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
)

// maxCertificateSize tope del archivo PKCS#12 subido.
const maxCertificateSize = 64 << 10

type certificateService interface {
	UploadCertificate(ctx context.Context, fileBytes []byte, unlockPassphrase, encryptionPassphrase string, meta entity.CertificateMetadata) error
	CertificateDetail(ctx context.Context) (*dto.CertificateResponse, error)
	DeleteCertificate(ctx context.Context, role string) error
}

// CertificateHandler administra el certificado de firma de la bóveda.
type CertificateHandler struct {
	svc certificateService
	log zerolog.Logger
}

// NewCertificateHandler construye el handler.
func NewCertificateHandler(svc certificateService, log zerolog.Logger) *CertificateHandler {
	return &CertificateHandler{svc: svc, log: log}
}

// Upload importa un PKCS#12 (multipart: file, unlock_passphrase, encryption_passphrase, alias).
// POST /api/ecf/certificate
func (h *CertificateHandler) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "archivo 'file' requerido"})
	}
	if fh.Size > maxCertificateSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(dto.ErrorResponse{Code: "FILE_TOO_LARGE", Message: "el certificado excede el tamaño permitido"})
	}
	f, err := fh.Open()
	if err != nil {
		return writeError(c, h.log, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxCertificateSize))
	if err != nil {
		return writeError(c, h.log, err)
	}
	defer clear(data)

	meta := entity.CertificateMetadata{Alias: c.FormValue("alias")}
	if err := h.svc.UploadCertificate(c.UserContext(), data, c.FormValue("unlock_passphrase"), c.FormValue("encryption_passphrase"), meta); err != nil {
		return writeError(c, h.log, err)
	}
	info, err := h.svc.CertificateDetail(c.UserContext())
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(info)
}

// Get metadatos del certificado almacenado.
// GET /api/ecf/certificate
func (h *CertificateHandler) Get(c *fiber.Ctx) error {
	info, err := h.svc.CertificateDetail(c.UserContext())
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(info)
}

// Delete borra el certificado (solo admin).
// DELETE /api/ecf/certificate
func (h *CertificateHandler) Delete(c *fiber.Ctx) error {
	if err := h.svc.DeleteCertificate(c.UserContext(), GetRole(c)); err != nil {
		return writeError(c, h.log, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
