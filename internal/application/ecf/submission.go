package ecf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jhoicas/ecf-api/internal/application/dto"
	"github.com/jhoicas/ecf-api/internal/domain"
	domainecf "github.com/jhoicas/ecf-api/internal/domain/ecf"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/infrastructure/vault"
)

// ═══════════════════════════════════════════════════════════════════════════
// Firma
// ═══════════════════════════════════════════════════════════════════════════

// signLocked ensambla y firma la factura bajo su bloqueo y guarda el XML firmado.
// Un fallo de validación o de firma deja la factura en FAILED_FATAL: el número
// ya asignado no se reutiliza y corregir la factura exige un nuevo e-NCF.
// Cualquier otro fallo (almacén, emisor, contexto) no toca el estado y el poller
// vuelve a intentarlo.
func (p *Pipeline) signLocked(ctx context.Context, invoiceID string) error {
	unlock, err := p.locker.Lock(ctx, lockKey(invoiceID))
	if err != nil {
		return fmt.Errorf("bloquear factura %s: %w", invoiceID, err)
	}
	defer unlock()

	inv, err := p.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv.Signed() {
		return nil
	}
	if inv.Status != entity.StatusPending && inv.Status != entity.StatusFailedTransient {
		return fmt.Errorf("%w: no se firma en estado %s", domain.ErrInvalidTransition, inv.Status)
	}

	signed, err := p.sign(ctx, inv)
	if err != nil {
		if !domain.IsValidation(err) && !domain.IsCrypto(err) {
			p.log.Warn().Err(err).Str("invoice_id", invoiceID).Str("fiscal_number", inv.FiscalNumber).Msg("firma pospuesta, se reintentará")
			return err
		}
		p.log.Error().Err(err).Str("invoice_id", invoiceID).Str("fiscal_number", inv.FiscalNumber).Msg("no se pudo firmar el e-CF")
		if inv.Status == entity.StatusFailedTransient {
			_ = inv.Transition(entity.StatusPending)
		}
		p.fail(ctx, inv, err.Error())
		return err
	}

	inv.SignedXML = string(signed.Bytes)
	inv.UpdatedAt = p.now().UTC()
	if err := p.invoices.UpdateSubmission(context.WithoutCancel(ctx), inv); err != nil {
		return fmt.Errorf("guardar documento firmado %s: %w", invoiceID, err)
	}
	p.log.Debug().Str("invoice_id", invoiceID).Str("digest", signed.Digest).Msg("e-CF firmado")
	return nil
}

// sign el material descifrado solo vive dentro de WithCertificate.
func (p *Pipeline) sign(ctx context.Context, inv *entity.Invoice) (*domainecf.SignedDocument, error) {
	issuer, err := p.issuer.GetIssuer(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtener emisor: %w", err)
	}
	doc, err := p.assembler.Assemble(inv, issuer, inv.Recipient)
	if err != nil {
		return nil, err
	}

	var signed *domainecf.SignedDocument
	err = p.vault.WithCertificate(ctx, p.cfg.VaultPassphrase, func(cert *vault.UnlockedCertificate) error {
		var signErr error
		signed, signErr = p.signer.Sign(doc, cert)
		return signErr
	})
	if err != nil {
		return nil, err
	}
	return signed, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Envío
// ═══════════════════════════════════════════════════════════════════════════

// outcome resultado de un intento de envío.
type outcome int

const (
	outcomeDone  outcome = iota // estado final del envío (SUBMITTED, FAILED_FATAL, CANCELLED)
	outcomeRetry                // FAILED_TRANSIENT, se reintenta tras la espera
)

// submit ejecuta intentos hasta llegar a SUBMITTED o a un estado sin reintento.
// El bloqueo de la factura se toma por intento y se libera durante la espera, así
// una cancelación puede entrar entre intentos; cada intento relee la factura.
func (p *Pipeline) submit(ctx context.Context, invoiceID string) (*dto.SubmissionResult, error) {
	bo := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.cfg.RetryInitialInterval),
		backoff.WithMaxInterval(p.cfg.RetryMaxInterval),
		backoff.WithMaxElapsedTime(0),
	), ctx)

	for {
		out, inv, err := p.attempt(ctx, invoiceID)
		if err != nil {
			if inv != nil {
				return toResult(inv), err
			}
			return nil, err
		}
		if out == outcomeDone {
			return toResult(inv), nil
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return toResult(inv), nil
		}
		p.log.Debug().Str("invoice_id", invoiceID).Int("attempt", inv.Attempts).Dur("wait", wait).Msg("reintento programado")
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			// Queda en FAILED_TRANSIENT; el poller la retoma.
			return toResult(inv), nil
		case <-timer.C:
		}
	}
}

// attempt un intento completo bajo el bloqueo de la factura.
func (p *Pipeline) attempt(ctx context.Context, invoiceID string) (outcome, *entity.Invoice, error) {
	unlock, err := p.locker.Lock(ctx, lockKey(invoiceID))
	if err != nil {
		return outcomeDone, nil, fmt.Errorf("bloquear factura %s: %w", invoiceID, err)
	}
	defer unlock()

	inv, err := p.GetInvoice(ctx, invoiceID)
	if err != nil {
		return outcomeDone, nil, err
	}

	// Cancelación y estados ya resueltos se revisan antes de cada intento.
	switch {
	case inv.Status == entity.StatusCancelled:
		p.log.Info().Str("invoice_id", invoiceID).Msg("envío cancelado, no se reintenta")
		return outcomeDone, inv, fmt.Errorf("%w: %s", domain.ErrCancelled, inv.FiscalNumber)
	case inv.TrackID != "" || inv.Status == entity.StatusSubmitted:
		return outcomeDone, inv, nil
	case inv.Status.IsTerminal():
		return outcomeDone, inv, nil
	case inv.Status == entity.StatusFailedTransient:
		if err := inv.Transition(entity.StatusPending); err != nil {
			return outcomeDone, inv, err
		}
	case inv.Status != entity.StatusPending:
		return outcomeDone, inv, fmt.Errorf("%w: envío en estado %s", domain.ErrInvalidTransition, inv.Status)
	}
	if err := ctx.Err(); err != nil {
		return outcomeDone, inv, err
	}

	if inv.Attempts >= p.cfg.MaxSubmitAttempts {
		p.fail(ctx, inv, fmt.Sprintf("se agotaron los %d intentos de envío", p.cfg.MaxSubmitAttempts))
		return outcomeDone, inv, nil
	}

	if err := inv.Transition(entity.StatusSubmitting); err != nil {
		return outcomeDone, inv, err
	}
	inv.Attempts++
	inv.UpdatedAt = p.now().UTC()
	if err := p.invoices.UpdateSubmission(ctx, inv); err != nil {
		return outcomeDone, inv, fmt.Errorf("marcar envío de %s: %w", invoiceID, err)
	}

	signed := &domainecf.SignedDocument{Bytes: []byte(inv.SignedXML), FiscalNumber: inv.FiscalNumber}
	token, err := p.authority.Token(ctx)
	var trackID, message, raw string
	if err == nil {
		res, submitErr := p.authority.Submit(ctx, signed, token)
		if submitErr == nil {
			trackID, message, raw = res.TrackID, res.Message, res.Raw
		}
		err = submitErr
	}

	log := p.log.With().Str("invoice_id", invoiceID).Str("fiscal_number", inv.FiscalNumber).Int("attempt", inv.Attempts).Logger()
	switch {
	case err == nil:
		now := p.now().UTC()
		_ = inv.Transition(entity.StatusSubmitted)
		inv.TrackID = trackID
		inv.StatusDetail = message
		inv.SubmittedAt = &now
		inv.UpdatedAt = now
		persistCtx := context.WithoutCancel(ctx)
		if err := p.invoices.UpdateSubmission(persistCtx, inv); err != nil {
			return outcomeDone, inv, fmt.Errorf("guardar track id %s de %s: %w", trackID, invoiceID, err)
		}
		if err := p.submissions.Upsert(persistCtx, &entity.SubmissionRecord{
			InvoiceID:    inv.ID,
			FiscalNumber: inv.FiscalNumber,
			TrackID:      trackID,
			SubmittedAt:  now,
			RawResponse:  raw,
		}); err != nil {
			log.Error().Err(err).Msg("no se pudo guardar el registro de envío")
		}
		log.Info().Str("track_id", trackID).Msg("e-CF recibido por la autoridad")
		p.notify(ctx, inv)
		return outcomeDone, inv, nil

	case domain.IsTransient(err) && inv.Attempts >= p.cfg.MaxSubmitAttempts:
		log.Error().Err(err).Msg("envío fallido, intentos agotados")
		p.fail(ctx, inv, fmt.Sprintf("intentos agotados (%d): %v", inv.Attempts, err))
		return outcomeDone, inv, nil

	case domain.IsTransient(err):
		log.Warn().Err(err).Msg("envío fallido, se reintentará")
		_ = inv.Transition(entity.StatusFailedTransient)
		inv.StatusDetail = err.Error()
		inv.UpdatedAt = p.now().UTC()
		if err := p.invoices.UpdateSubmission(context.WithoutCancel(ctx), inv); err != nil {
			return outcomeDone, inv, fmt.Errorf("guardar fallo transitorio de %s: %w", invoiceID, err)
		}
		return outcomeRetry, inv, nil

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// El llamador abandonó el intento; la factura queda reintentable.
		log.Warn().Err(err).Msg("envío interrumpido por el llamador")
		_ = inv.Transition(entity.StatusFailedTransient)
		inv.StatusDetail = "envío interrumpido"
		inv.UpdatedAt = p.now().UTC()
		if perr := p.invoices.UpdateSubmission(context.WithoutCancel(ctx), inv); perr != nil {
			log.Error().Err(perr).Msg("no se pudo guardar la interrupción")
		}
		return outcomeDone, inv, err

	default:
		// Rechazo en la recepción, credenciales o error criptográfico: terminal.
		reason := err.Error()
		var rej *domain.RejectionError
		if errors.As(err, &rej) {
			reason = rej.Reason
		}
		log.Error().Err(err).Msg("envío rechazado")
		p.fail(ctx, inv, reason)
		return outcomeDone, inv, nil
	}
}

// fail lleva la factura a FAILED_FATAL y lo persiste aunque el contexto se haya cancelado.
func (p *Pipeline) fail(ctx context.Context, inv *entity.Invoice, detail string) {
	if err := inv.Transition(entity.StatusFailedFatal); err != nil {
		p.log.Error().Err(err).Str("invoice_id", inv.ID).Msg("transición a FAILED_FATAL no permitida")
		return
	}
	inv.StatusDetail = detail
	inv.UpdatedAt = p.now().UTC()
	if err := p.invoices.UpdateSubmission(context.WithoutCancel(ctx), inv); err != nil {
		p.log.Error().Err(err).Str("invoice_id", inv.ID).Msg("no se pudo guardar FAILED_FATAL")
		return
	}
	p.notify(ctx, inv)
}

// touchSubmission actualiza la última consulta del registro de envío.
func (p *Pipeline) touchSubmission(ctx context.Context, inv *entity.Invoice, raw string) error {
	rec, err := p.submissions.GetByInvoiceID(ctx, inv.ID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &entity.SubmissionRecord{
			InvoiceID:    inv.ID,
			FiscalNumber: inv.FiscalNumber,
			TrackID:      inv.TrackID,
		}
		if inv.SubmittedAt != nil {
			rec.SubmittedAt = *inv.SubmittedAt
		}
	}
	rec.LastCheckedAt = inv.LastCheckedAt
	if raw != "" {
		rec.RawResponse = raw
	}
	return p.submissions.Upsert(ctx, rec)
}

// notify despacha el aviso en su propia goroutine; un pánico del notificador no
// afecta al envío.
func (p *Pipeline) notify(ctx context.Context, inv *entity.Invoice) {
	if p.notifier == nil {
		return
	}
	snapshot := *inv
	snapshot.Lines = append([]entity.InvoiceLine(nil), inv.Lines...)
	notifyCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.Error().Interface("panic", r).Str("invoice_id", snapshot.ID).Msg("pánico en el notificador")
			}
		}()
		p.notifier.NotifyInvoiceStatusChanged(notifyCtx, &snapshot)
	}()
}
