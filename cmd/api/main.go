package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	appecf "github.com/jhoicas/ecf-api/internal/application/ecf"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/domain/repository"
	infraecf "github.com/jhoicas/ecf-api/internal/infrastructure/ecf"
	"github.com/jhoicas/ecf-api/internal/infrastructure/ecf/signer"
	"github.com/jhoicas/ecf-api/internal/infrastructure/lock"
	"github.com/jhoicas/ecf-api/internal/infrastructure/memory"
	"github.com/jhoicas/ecf-api/internal/infrastructure/notify"
	"github.com/jhoicas/ecf-api/internal/infrastructure/postgres"
	"github.com/jhoicas/ecf-api/internal/infrastructure/vault"
	httpRouter "github.com/jhoicas/ecf-api/internal/interfaces/http"
	"github.com/jhoicas/ecf-api/pkg/config"
	"github.com/jhoicas/ecf-api/pkg/logger"
)

const swaggerFile = "./docs/swagger.json"

// stores repositorios del proceso: PostgreSQL si hay base de datos, memoria si no.
type stores struct {
	invoices     repository.InvoiceRepository
	submissions  repository.SubmissionRepository
	sequences    repository.SequenceRepository
	certificates repository.CertificateRepository
	close        func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("ecf_env", cfg.ECF.Environment).
		Msg("iniciando aplicación")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar almacenamiento")
	}
	defer st.close()

	var locker appecf.Locker = lock.NewMemoryLocker()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("conexión a Redis")
		}
		cancel()
		locker = lock.NewRedisLocker(rdb, "", cfg.Redis.LockTTL, log.Zerolog())
		log.Info().Str("addr", cfg.Redis.Addr).Msg("bloqueo distribuido en Redis")
	}

	certVault := vault.New(st.certificates, vault.Params{
		Time:      cfg.Vault.KDFTime,
		MemoryKiB: cfg.Vault.KDFMemoryKB,
		Threads:   cfg.Vault.KDFThreads,
	}, log.Component("vault"))

	baseURL := cfg.ECF.BaseURL
	if baseURL == "" {
		baseURL = infraecf.BaseURLFor(cfg.ECF.Environment)
	}
	authority := infraecf.NewAuthorityClient(infraecf.AuthorityConfig{
		BaseURL:      baseURL,
		Username:     cfg.ECF.Username,
		Password:     cfg.ECF.Password,
		FiscalID:     cfg.Issuer.FiscalID,
		Timeout:      cfg.ECF.HTTPTimeout,
		RateLimitRPS: cfg.ECF.RateLimitRPS,
	}, log.Zerolog())

	// Pipeline: validar → e-NCF → XML → firma XMLDSig → recepción → consulta de estado
	pipeline := appecf.NewPipeline(appecf.Dependencies{
		Invoices:    st.invoices,
		Submissions: st.submissions,
		Issuer: memory.StaticIssuer{Party: entity.Party{
			LegalName: cfg.Issuer.LegalName,
			FiscalID:  cfg.Issuer.FiscalID,
			Address:   cfg.Issuer.Address,
			Email:     cfg.Issuer.Email,
			Phone:     cfg.Issuer.Phone,
		}},
		Allocator: appecf.NewSequenceAllocator(st.sequences, cfg.ECF.SequenceDigits, log.Zerolog()),
		Assembler: infraecf.NewXMLBuilderService(),
		Signer:    signer.NewDigitalSignatureService(),
		Vault:     certVault,
		Authority: authority,
		Locker:    locker,
		Notifier:  notify.NewLogNotifier(log.Zerolog()),
	}, appecf.Config{
		MaxSubmitAttempts:    cfg.ECF.MaxSubmitAttempts,
		VaultPassphrase:      cfg.Vault.Passphrase,
		RetryInitialInterval: cfg.ECF.RetryInitial,
		RetryMaxInterval:     cfg.ECF.RetryMax,
	}, log.Zerolog())

	poller := appecf.NewPoller(pipeline, st.invoices, appecf.PollerConfig{
		Interval: cfg.ECF.PollInterval,
		Workers:  cfg.ECF.Workers,
	}, log.Zerolog())
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.Run(ctx)
	}()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.ECF.HTTPTimeout*time.Duration(cfg.ECF.MaxSubmitAttempts) + cfg.ECF.RetryMax + 10*time.Second,
		IdleTimeout:  time.Second * 60,
		BodyLimit:    1 << 20,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	if _, err := os.Stat(swaggerFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/",
			FilePath: swaggerFile,
			Path:     "docs",
			Title:    "e-CF API",
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "ecf_env": cfg.ECF.Environment})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		ECF:          pipeline,
		Certificates: pipeline,
		JWTSecret:    cfg.JWT.Secret,
		JWTIssuer:    cfg.JWT.Issuer,
		Log:          log.Component("http"),
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
	select {
	case <-pollerDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("el poller no terminó a tiempo")
	}

	log.Info().Msg("aplicación detenida")
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	if !cfg.DB.Enabled() {
		log.Warn().Msg("sin base de datos: almacenes en memoria, los datos se pierden al reiniciar")
		return &stores{
			invoices:     memory.NewInvoiceStore(),
			submissions:  memory.NewSubmissionStore(),
			sequences:    memory.NewSequenceStore(),
			certificates: memory.NewCertificateStore(),
			close:        func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool, log.Component("migrate")); err != nil {
		pool.Close()
		return nil, err
	}
	return &stores{
		invoices:     postgres.NewInvoiceRepository(pool),
		submissions:  postgres.NewSubmissionRepository(pool),
		sequences:    postgres.NewSequenceRepository(pool),
		certificates: postgres.NewCertificateRepository(pool),
		close:        pool.Close,
	}, nil
}
