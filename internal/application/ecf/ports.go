package ecf

import (
	"context"

	domainecf "github.com/jhoicas/ecf-api/internal/domain/ecf"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
	infraecf "github.com/jhoicas/ecf-api/internal/infrastructure/ecf"
	"github.com/jhoicas/ecf-api/internal/infrastructure/ecf/signer"
	"github.com/jhoicas/ecf-api/internal/infrastructure/vault"
)

// DocumentAssembler valida y produce el documento canónico del e-CF.
type DocumentAssembler interface {
	Assemble(invoice *entity.Invoice, issuer, recipient entity.Party) (*domainecf.CanonicalDocument, error)
}

// DocumentSigner firma el documento canónico con el material desbloqueado.
type DocumentSigner interface {
	Sign(doc *domainecf.CanonicalDocument, km signer.KeyMaterial) (*domainecf.SignedDocument, error)
}

// CertificateVault custodia del certificado de firma.
// El material descifrado solo existe dentro de fn en WithCertificate.
type CertificateVault interface {
	Store(ctx context.Context, certPEM, keyDER []byte, passphrase string, meta entity.CertificateMetadata) error
	WithCertificate(ctx context.Context, passphrase string, fn func(*vault.UnlockedCertificate) error) error
	Exists(ctx context.Context) (bool, error)
	Info(ctx context.Context) (*entity.CertificateMetadata, error)
	Delete(ctx context.Context) error
}

// AuthorityClient cliente del protocolo de recepción y consulta de la autoridad.
type AuthorityClient interface {
	Token(ctx context.Context) (string, error)
	Submit(ctx context.Context, doc *domainecf.SignedDocument, token string) (*infraecf.SubmitResult, error)
	CheckStatus(ctx context.Context, trackID, token string) (*infraecf.StatusResult, error)
}

// Locker exclusión mutua por clave (una factura a la vez).
// unlock es idempotente.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Notifier recibe los cambios de estado; se invoca sin esperar resultado.
type Notifier interface {
	NotifyInvoiceStatusChanged(ctx context.Context, invoice *entity.Invoice)
}
