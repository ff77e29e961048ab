// Package ecf orquesta la emisión de comprobantes fiscales electrónicos:
//
//	validar → asignar e-NCF → ensamblar → firmar (bóveda) → enviar → consultar estado
//
// Pipeline es el único escritor del estado de las facturas y de los registros de envío.
package ecf

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/ecf-api/internal/application/dto"
	"github.com/jhoicas/ecf-api/internal/domain"
	domainecf "github.com/jhoicas/ecf-api/internal/domain/ecf"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/domain/repository"
	"github.com/jhoicas/ecf-api/internal/infrastructure/ecf/signer"
	catalog "github.com/jhoicas/ecf-api/pkg/ecf"
	"github.com/jhoicas/ecf-api/pkg/jwt"
)

// RoleAdmin único rol autorizado a borrar el certificado de la bóveda.
const RoleAdmin = jwt.RoleAdmin

// Config políticas del pipeline.
type Config struct {
	MaxSubmitAttempts    int           // intentos de envío antes de FAILED_FATAL
	VaultPassphrase      string        // frase de paso con la que se desbloquea la bóveda al firmar
	RetryInitialInterval time.Duration // primera espera entre intentos
	RetryMaxInterval     time.Duration // tope de la espera entre intentos
}

// DefaultConfig valores por defecto (la frase de paso siempre viene de configuración).
func DefaultConfig() Config {
	return Config{
		MaxSubmitAttempts:    3,
		RetryInitialInterval: 2 * time.Second,
		RetryMaxInterval:     30 * time.Second,
	}
}

// Dependencies colaboradores del pipeline.
type Dependencies struct {
	Invoices    repository.InvoiceRepository
	Submissions repository.SubmissionRepository
	Issuer      repository.IssuerProvider
	Allocator   *SequenceAllocator
	Assembler   DocumentAssembler
	Signer      DocumentSigner
	Vault       CertificateVault
	Authority   AuthorityClient
	Locker      Locker
	Notifier    Notifier // opcional
}

// Pipeline puntos de entrada de la emisión de e-CF.
type Pipeline struct {
	invoices    repository.InvoiceRepository
	submissions repository.SubmissionRepository
	issuer      repository.IssuerProvider
	allocator   *SequenceAllocator
	assembler   DocumentAssembler
	signer      DocumentSigner
	vault       CertificateVault
	authority   AuthorityClient
	locker      Locker
	notifier    Notifier
	cfg         Config
	log         zerolog.Logger
	now         func() time.Time
}

// NewPipeline construye el pipeline con sus dependencias.
func NewPipeline(deps Dependencies, cfg Config, log zerolog.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.MaxSubmitAttempts <= 0 {
		cfg.MaxSubmitAttempts = def.MaxSubmitAttempts
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = def.RetryInitialInterval
	}
	if cfg.RetryMaxInterval < cfg.RetryInitialInterval {
		cfg.RetryMaxInterval = cfg.RetryInitialInterval
	}
	return &Pipeline{
		invoices:    deps.Invoices,
		submissions: deps.Submissions,
		issuer:      deps.Issuer,
		allocator:   deps.Allocator,
		assembler:   deps.Assembler,
		signer:      deps.Signer,
		vault:       deps.Vault,
		authority:   deps.Authority,
		locker:      deps.Locker,
		notifier:    deps.Notifier,
		cfg:         cfg,
		log:         log.With().Str("component", "ecf_pipeline").Logger(),
		now:         time.Now,
	}
}

// ── Emisión ───────────────────────────────────────────────────────────────────

// CreateAndSubmit valida el borrador, asigna el e-NCF, firma y envía.
// Errores de validación se devuelven antes de asignar número; a partir de la
// asignación el resultado siempre trae el id de factura y el e-NCF, y los fallos
// de envío quedan reflejados en el estado (FAILED_TRANSIENT, FAILED_FATAL, ...).
func (p *Pipeline) CreateAndSubmit(ctx context.Context, req dto.CreateInvoiceRequest) (*dto.SubmissionResult, error) {
	issuer, err := p.issuer.GetIssuer(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtener emisor: %w", err)
	}

	inv := p.draftToInvoice(req, issuer)
	if err := domainecf.ValidateInvoice(inv, issuer, inv.Recipient); err != nil {
		return nil, err
	}
	inv.ComputeTotals()

	fiscalNumber, err := p.allocator.Allocate(ctx, inv.DocumentType)
	if err != nil {
		return nil, err
	}
	inv.FiscalNumber = fiscalNumber
	if err := p.invoices.SaveInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("guardar factura %s: %w", fiscalNumber, err)
	}
	p.log.Info().Str("invoice_id", inv.ID).Str("fiscal_number", fiscalNumber).Msg("factura creada")

	if err := p.signLocked(ctx, inv.ID); err != nil {
		return p.resultFor(ctx, inv.ID), err
	}
	return p.submit(ctx, inv.ID)
}

// SubmitInvoice reanuda el envío de una factura existente (PENDING o FAILED_TRANSIENT).
// Si aún no está firmada la firma primero. Nunca reenvía una factura con track id;
// una factura cancelada devuelve domain.ErrCancelled.
func (p *Pipeline) SubmitInvoice(ctx context.Context, invoiceID string) (*dto.SubmissionResult, error) {
	inv, err := p.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.TrackID != "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadySubmitted, inv.FiscalNumber)
	}
	if inv.Status == entity.StatusCancelled {
		return nil, fmt.Errorf("%w: %s", domain.ErrCancelled, inv.FiscalNumber)
	}
	if inv.Status != entity.StatusPending && inv.Status != entity.StatusFailedTransient {
		return nil, fmt.Errorf("%w: no se puede enviar en estado %s", domain.ErrInvalidTransition, inv.Status)
	}
	if !inv.Signed() {
		if err := p.signLocked(ctx, invoiceID); err != nil {
			return p.resultFor(ctx, invoiceID), err
		}
	}
	return p.submit(ctx, invoiceID)
}

// RefreshStatus consulta a la autoridad el estado de una factura SUBMITTED y lo persiste.
// Estados finales se devuelven sin consultar; errores transitorios no cambian el estado.
func (p *Pipeline) RefreshStatus(ctx context.Context, invoiceID string) (entity.Status, error) {
	unlock, err := p.locker.Lock(ctx, lockKey(invoiceID))
	if err != nil {
		return "", fmt.Errorf("bloquear factura %s: %w", invoiceID, err)
	}
	defer unlock()

	inv, err := p.GetInvoice(ctx, invoiceID)
	if err != nil {
		return "", err
	}
	if inv.Status != entity.StatusSubmitted || inv.TrackID == "" {
		return inv.Status, nil
	}

	token, err := p.authority.Token(ctx)
	if err != nil {
		return inv.Status, fmt.Errorf("token de la autoridad: %w", err)
	}
	res, err := p.authority.CheckStatus(ctx, inv.TrackID, token)
	if err != nil {
		p.log.Warn().Err(err).Str("invoice_id", invoiceID).Str("track_id", inv.TrackID).Msg("consulta de estado fallida")
		return inv.Status, err
	}

	previous := inv.Status
	next := entity.StatusSubmitted
	switch res.Status {
	case catalog.AuthorityAccepted:
		next = entity.StatusAccepted
	case catalog.AuthorityRejected:
		next = entity.StatusRejected
	}
	if err := inv.Transition(next); err != nil {
		return previous, err
	}
	checked := p.now().UTC()
	inv.LastCheckedAt = &checked
	if res.Detail != "" || next != entity.StatusSubmitted {
		inv.StatusDetail = res.Detail
	}
	inv.UpdatedAt = checked

	persistCtx := context.WithoutCancel(ctx)
	if err := p.invoices.UpdateSubmission(persistCtx, inv); err != nil {
		return previous, fmt.Errorf("guardar estado de %s: %w", invoiceID, err)
	}
	if err := p.touchSubmission(persistCtx, inv, res.Raw); err != nil {
		p.log.Error().Err(err).Str("invoice_id", invoiceID).Msg("no se pudo actualizar el registro de envío")
	}

	if next != previous {
		p.log.Info().Str("invoice_id", invoiceID).Str("fiscal_number", inv.FiscalNumber).
			Str("status", string(next)).Msg("estado actualizado por la autoridad")
		p.notify(ctx, inv)
	}
	return next, nil
}

// CancelInvoice retira una factura que aún no llegó a la autoridad.
// Un envío en curso termina su intento antes de que la cancelación tome el bloqueo.
func (p *Pipeline) CancelInvoice(ctx context.Context, invoiceID string) (entity.Status, error) {
	unlock, err := p.locker.Lock(ctx, lockKey(invoiceID))
	if err != nil {
		return "", fmt.Errorf("bloquear factura %s: %w", invoiceID, err)
	}
	defer unlock()

	inv, err := p.GetInvoice(ctx, invoiceID)
	if err != nil {
		return "", err
	}
	if err := inv.Transition(entity.StatusCancelled); err != nil {
		return inv.Status, err
	}
	inv.StatusDetail = "cancelada por el usuario"
	inv.UpdatedAt = p.now().UTC()
	if err := p.invoices.UpdateSubmission(context.WithoutCancel(ctx), inv); err != nil {
		return "", fmt.Errorf("cancelar factura %s: %w", invoiceID, err)
	}
	p.log.Info().Str("invoice_id", invoiceID).Str("fiscal_number", inv.FiscalNumber).Msg("factura cancelada")
	p.notify(ctx, inv)
	return inv.Status, nil
}

// GetInvoice devuelve la factura o domain.ErrNotFound.
func (p *Pipeline) GetInvoice(ctx context.Context, invoiceID string) (*entity.Invoice, error) {
	inv, err := p.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("obtener factura %s: %w", invoiceID, err)
	}
	if inv == nil {
		return nil, fmt.Errorf("factura %s: %w", invoiceID, domain.ErrNotFound)
	}
	return inv, nil
}

// InvoiceDetail factura en forma de respuesta HTTP.
func (p *Pipeline) InvoiceDetail(ctx context.Context, invoiceID string) (*dto.InvoiceResponse, error) {
	inv, err := p.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return toInvoiceResponse(inv), nil
}

// ── Certificado ───────────────────────────────────────────────────────────────

// UploadCertificate importa un PKCS#12: lo abre con unlockPassphrase y lo guarda
// cifrado con encryptionPassphrase (si viene vacía se usa la frase de paso configurada).
func (p *Pipeline) UploadCertificate(ctx context.Context, fileBytes []byte, unlockPassphrase, encryptionPassphrase string, meta entity.CertificateMetadata) error {
	if encryptionPassphrase == "" {
		encryptionPassphrase = p.cfg.VaultPassphrase
	}
	if encryptionPassphrase == "" {
		verr := &domain.ValidationError{}
		verr.Add("encryptionPassphrase", "requerida")
		return verr
	}

	bundle, err := signer.LoadPKCS12(fileBytes, unlockPassphrase)
	if err != nil {
		return err
	}
	if !bundle.ValidAt(p.now()) {
		verr := &domain.ValidationError{}
		verr.Add("certificate", fmt.Sprintf("fuera de vigencia (%s a %s)",
			bundle.Leaf.NotBefore.Format(time.DateOnly), bundle.Leaf.NotAfter.Format(time.DateOnly)))
		return verr
	}
	keyDER, err := bundle.KeyDER()
	if err != nil {
		return fmt.Errorf("%w: llave privada: %v", domain.ErrInvalidInput, err)
	}
	defer clear(keyDER)

	if err := p.vault.Store(ctx, bundle.CertificatePEM(), keyDER, encryptionPassphrase, meta); err != nil {
		return fmt.Errorf("guardar certificado: %w", err)
	}
	p.log.Info().Str("subject", bundle.Leaf.Subject.CommonName).
		Time("valid_until", bundle.Leaf.NotAfter).Msg("certificado de firma importado")
	return nil
}

// CertificateInfo metadatos no sensibles del certificado almacenado.
func (p *Pipeline) CertificateInfo(ctx context.Context) (*entity.CertificateMetadata, error) {
	meta, err := p.vault.Info(ctx)
	if errors.Is(err, domain.ErrCertificateNotFound) || (err == nil && meta == nil) {
		return nil, fmt.Errorf("certificado: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// CertificateDetail CertificateInfo en forma de respuesta HTTP.
func (p *Pipeline) CertificateDetail(ctx context.Context) (*dto.CertificateResponse, error) {
	meta, err := p.CertificateInfo(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.CertificateResponse{
		Alias:        meta.Alias,
		Issuer:       meta.Issuer,
		Subject:      meta.Subject,
		SerialNumber: meta.SerialNumber,
		ValidUntil:   meta.ValidUntil,
	}, nil
}

// DeleteCertificate borra el certificado; solo para el rol admin.
func (p *Pipeline) DeleteCertificate(ctx context.Context, role string) error {
	if role != RoleAdmin {
		return fmt.Errorf("%w: borrar el certificado requiere rol %s", domain.ErrForbidden, RoleAdmin)
	}
	if err := p.vault.Delete(ctx); err != nil {
		return fmt.Errorf("borrar certificado: %w", err)
	}
	p.log.Warn().Msg("certificado de firma eliminado de la bóveda")
	return nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (p *Pipeline) draftToInvoice(req dto.CreateInvoiceRequest, issuer entity.Party) *entity.Invoice {
	now := p.now().UTC()
	inv := &entity.Invoice{
		ID:             uuid.New().String(),
		DocumentType:   strings.TrimSpace(req.DocumentType),
		Currency:       strings.ToUpper(strings.TrimSpace(req.Currency)),
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
		IssuerFiscalID: catalog.NormalizeFiscalID(issuer.FiscalID),
		Recipient: entity.Party{
			LegalName: req.Recipient.LegalName,
			FiscalID:  catalog.NormalizeFiscalID(req.Recipient.FiscalID),
			Address:   req.Recipient.Address,
			Email:     req.Recipient.Email,
			Phone:     req.Recipient.Phone,
		},
		Lines:     make([]entity.InvoiceLine, 0, len(req.Lines)),
		Status:    entity.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if inv.Currency == "" {
		inv.Currency = catalog.DefaultCurrency
	}
	if req.IssueDate != nil {
		inv.IssueDate = req.IssueDate.UTC()
	} else {
		inv.IssueDate = now.Truncate(24 * time.Hour)
	}
	for _, l := range req.Lines {
		inv.Lines = append(inv.Lines, entity.InvoiceLine{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			TaxRate:     l.TaxRate,
		})
	}

	inv.ComputeTotals()
	if req.Totals != nil {
		inv.Subtotal = req.Totals.Subtotal
		inv.TaxTotal = req.Totals.Tax
		inv.Total = req.Totals.Total
	}
	return inv
}

// resultFor lee el estado persistido para construir la respuesta tras un fallo.
func (p *Pipeline) resultFor(ctx context.Context, invoiceID string) *dto.SubmissionResult {
	inv, err := p.invoices.GetInvoice(context.WithoutCancel(ctx), invoiceID)
	if err != nil || inv == nil {
		return &dto.SubmissionResult{InvoiceID: invoiceID}
	}
	return toResult(inv)
}

func toResult(inv *entity.Invoice) *dto.SubmissionResult {
	return &dto.SubmissionResult{
		InvoiceID:    inv.ID,
		FiscalNumber: inv.FiscalNumber,
		Status:       string(inv.Status),
		TrackID:      inv.TrackID,
		Detail:       inv.StatusDetail,
	}
}

func toInvoiceResponse(inv *entity.Invoice) *dto.InvoiceResponse {
	lines := make([]dto.InvoiceLineResponse, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		lines = append(lines, dto.InvoiceLineResponse{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			TaxRate:     l.TaxRate,
			Subtotal:    l.Subtotal,
			TaxAmount:   l.TaxAmount,
		})
	}
	return &dto.InvoiceResponse{
		ID:            inv.ID,
		FiscalNumber:  inv.FiscalNumber,
		DocumentType:  inv.DocumentType,
		IssueDate:     inv.IssueDate.Format(time.DateOnly),
		Currency:      inv.Currency,
		PaymentMethod: inv.PaymentMethod,
		Recipient: dto.PartyRequest{
			LegalName: inv.Recipient.LegalName,
			FiscalID:  inv.Recipient.FiscalID,
			Address:   inv.Recipient.Address,
			Email:     inv.Recipient.Email,
			Phone:     inv.Recipient.Phone,
		},
		Lines:         lines,
		Subtotal:      inv.Subtotal,
		TaxTotal:      inv.TaxTotal,
		Total:         inv.Total,
		Status:        string(inv.Status),
		StatusDetail:  inv.StatusDetail,
		TrackID:       inv.TrackID,
		Attempts:      inv.Attempts,
		SubmittedAt:   inv.SubmittedAt,
		LastCheckedAt: inv.LastCheckedAt,
	}
}

func lockKey(invoiceID string) string { return "invoice:" + invoiceID }
