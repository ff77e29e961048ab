package ecf

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/jhoicas/ecf-api/internal/domain"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/domain/repository"
)

// PollerConfig parámetros del ciclo en segundo plano.
type PollerConfig struct {
	Interval   time.Duration // cada cuánto se revisan las facturas pendientes
	Workers    int           // facturas procesadas en paralelo
	BatchSize  int           // facturas por estado y ciclo
	StaleAfter time.Duration // antigüedad mínima para retomar un envío PENDING/FAILED_TRANSIENT
}

// Poller consulta el estado de las facturas SUBMITTED y retoma envíos abandonados.
type Poller struct {
	pipeline *Pipeline
	invoices repository.InvoiceRepository
	cfg      PollerConfig
	log      zerolog.Logger
}

// NewPoller crea el poller con valores por defecto para los campos vacíos.
func NewPoller(p *Pipeline, invoices repository.InvoiceRepository, cfg PollerConfig, log zerolog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Minute
	}
	return &Poller{
		pipeline: p,
		invoices: invoices,
		cfg:      cfg,
		log:      log.With().Str("component", "ecf_poller").Logger(),
	}
}

// Run ejecuta ciclos hasta que ctx se cancela.
func (pl *Poller) Run(ctx context.Context) {
	pl.log.Info().Dur("interval", pl.cfg.Interval).Int("workers", pl.cfg.Workers).Msg("poller de e-CF iniciado")
	ticker := time.NewTicker(pl.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := pl.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			pl.log.Error().Err(err).Msg("ciclo del poller con errores")
		}
		select {
		case <-ctx.Done():
			pl.log.Info().Msg("poller de e-CF detenido")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce un ciclo: refresca SUBMITTED y retoma PENDING/FAILED_TRANSIENT antiguas.
// Las facturas se procesan en paralelo con un pool acotado; el error devuelto
// agrupa los fallos no transitorios.
func (pl *Poller) RunOnce(ctx context.Context) error {
	submitted, err := pl.invoices.ListByStatus(ctx, []entity.Status{entity.StatusSubmitted}, pl.cfg.BatchSize)
	if err != nil {
		return err
	}
	pending, err := pl.invoices.ListByStatus(ctx, []entity.Status{entity.StatusPending, entity.StatusFailedTransient}, pl.cfg.BatchSize)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-pl.cfg.StaleAfter)
	p := pool.New().WithMaxGoroutines(pl.cfg.Workers).WithContext(ctx)
	for _, inv := range submitted {
		id := inv.ID
		p.Go(func(ctx context.Context) error {
			_, err := pl.pipeline.RefreshStatus(ctx, id)
			return pl.filter(id, "refresh", err)
		})
	}
	for _, inv := range pending {
		if inv.UpdatedAt.After(cutoff) {
			continue // probablemente aún en manos de su petición original
		}
		id := inv.ID
		p.Go(func(ctx context.Context) error {
			_, err := pl.pipeline.SubmitInvoice(ctx, id)
			return pl.filter(id, "submit", err)
		})
	}
	return p.Wait()
}

// filter registra el fallo y descarta los que se resolverán en otro ciclo.
func (pl *Poller) filter(invoiceID, op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsTransient(err) || errors.Is(err, domain.ErrAlreadySubmitted) || errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrCancelled) {
		pl.log.Debug().Err(err).Str("invoice_id", invoiceID).Str("op", op).Msg("se reintentará en el próximo ciclo")
		return nil
	}
	pl.log.Error().Err(err).Str("invoice_id", invoiceID).Str("op", op).Msg("fallo procesando factura")
	return err
}
