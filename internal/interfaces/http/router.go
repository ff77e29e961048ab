package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/ecf-api/pkg/jwt"
)

// RouterDeps dependencias para el router. ECF y Certificates los implementa *ecf.Pipeline.
type RouterDeps struct {
	ECF          ecfService
	Certificates certificateService
	JWTSecret    string
	JWTIssuer    string
	Log          zerolog.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/ecf", AuthMiddleware(deps.JWTSecret, deps.JWTIssuer))

	emitters := RequireRole(jwt.RoleAdmin, jwt.RoleEmisor)
	readers := RequireRole(jwt.RoleAdmin, jwt.RoleEmisor, jwt.RoleConsulta)

	// Comprobantes
	invoices := protected.Group("/invoices")
	ecfHandler := NewECFHandler(deps.ECF, deps.Log)
	invoices.Post("/", emitters, ecfHandler.Create)
	invoices.Get("/:id", readers, ecfHandler.GetByID)
	invoices.Post("/:id/submit", emitters, ecfHandler.Submit)
	invoices.Post("/:id/refresh", readers, ecfHandler.Refresh)
	invoices.Post("/:id/cancel", emitters, ecfHandler.Cancel)

	// Certificado de firma (solo admin; el borrado se vuelve a comprobar en el caso de uso)
	cert := protected.Group("/certificate", RequireRole(jwt.RoleAdmin))
	certHandler := NewCertificateHandler(deps.Certificates, deps.Log)
	cert.Post("/", certHandler.Upload)
	cert.Get("/", certHandler.Get)
	cert.Delete("/", certHandler.Delete)
}
