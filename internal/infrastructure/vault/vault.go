// Package vault custodia el certificado de firma: lo guarda cifrado en reposo
// (AES-256-GCM con llave derivada por Argon2id) y solo lo descifra en memoria
// durante el alcance de una operación de firma.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/argon2"

	"github.com/jhoicas/ecf-api/internal/domain"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/domain/repository"
)

const (
	keyLen   = 32
	saltLen  = 16
	nonceLen = 12

	// datos asociados de GCM: impiden intercambiar los blobs entre sí
	aadCert = "ecf-vault:cert"
	aadKey  = "ecf-vault:key"
)

// Params parámetros de Argon2id. Se guardan junto a la entrada para poder descifrarla
// aunque la configuración cambie después.
type Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultParams valores recomendados para Argon2id interactivo.
var DefaultParams = Params{Time: 1, MemoryKiB: 64 * 1024, Threads: 4}

// Vault bóveda de certificado única por proceso.
type Vault struct {
	repo   repository.CertificateRepository
	params Params
	log    zerolog.Logger
	rand   io.Reader
}

// New construye la bóveda sobre el repositorio dado.
func New(repo repository.CertificateRepository, params Params, log zerolog.Logger) *Vault {
	if params.Time == 0 || params.MemoryKiB == 0 || params.Threads == 0 {
		params = DefaultParams
	}
	return &Vault{
		repo:   repo,
		params: params,
		log:    log.With().Str("component", "vault").Logger(),
		rand:   rand.Reader,
	}
}

// Store cifra certPEM (cadena PEM, hoja primero) y keyDER (PKCS#8) por separado y
// reemplaza la entrada existente. La frase de paso no se persiste.
// Los campos vacíos de meta se completan con los datos del certificado.
func (v *Vault) Store(ctx context.Context, certPEM, keyDER []byte, passphrase string, meta entity.CertificateMetadata) error {
	if passphrase == "" {
		return fmt.Errorf("%w: la frase de paso de cifrado es obligatoria", domain.ErrInvalidInput)
	}
	chain, err := parseChain(certPEM)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if _, err := x509.ParsePKCS8PrivateKey(keyDER); err != nil {
		return fmt.Errorf("%w: llave privada PKCS#8 inválida: %v", domain.ErrInvalidInput, err)
	}
	fillMetadata(&meta, chain[0])

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(v.rand, salt); err != nil {
		return &domain.CryptoError{Op: "vault.store", Err: fmt.Errorf("generar sal: %w", err)}
	}
	key := v.params.derive(passphrase, salt)
	defer wipe(key)

	certBlob, err := v.seal(key, certPEM, aadCert)
	if err != nil {
		return &domain.CryptoError{Op: "vault.store", Err: err}
	}
	keyBlob, err := v.seal(key, keyDER, aadKey)
	if err != nil {
		return &domain.CryptoError{Op: "vault.store", Err: err}
	}

	rec := &entity.CertificateRecord{
		ID:         uuid.New().String(),
		CertBlob:   certBlob,
		KeyBlob:    keyBlob,
		Salt:       salt,
		KDFTime:    v.params.Time,
		KDFMemory:  v.params.MemoryKiB,
		KDFThreads: v.params.Threads,
		Metadata:   meta,
		CreatedAt:  time.Now().UTC(),
	}
	if err := v.repo.Put(ctx, rec); err != nil {
		return fmt.Errorf("guardar certificado: %w", err)
	}
	v.log.Info().
		Str("subject", meta.Subject).
		Str("serial", meta.SerialNumber).
		Time("valid_until", meta.ValidUntil).
		Msg("certificado almacenado en la bóveda")
	return nil
}

// Unlock descifra ambos blobs. Cualquier fallo de autenticación devuelve
// domain.ErrInvalidPassphrase sin material parcial. El llamador debe invocar Close.
func (v *Vault) Unlock(ctx context.Context, passphrase string) (*UnlockedCertificate, error) {
	rec, err := v.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("leer certificado: %w", err)
	}
	if rec == nil {
		return nil, &domain.CryptoError{Op: "vault.unlock", Err: domain.ErrCertificateNotFound}
	}

	params := Params{Time: rec.KDFTime, MemoryKiB: rec.KDFMemory, Threads: rec.KDFThreads}
	key := params.derive(passphrase, rec.Salt)
	defer wipe(key)

	certPEM, err := open(key, rec.CertBlob, aadCert)
	if err != nil {
		return nil, &domain.CryptoError{Op: "vault.unlock", Err: err}
	}
	keyDER, err := open(key, rec.KeyBlob, aadKey)
	if err != nil {
		wipe(certPEM)
		return nil, &domain.CryptoError{Op: "vault.unlock", Err: err}
	}

	uc, err := newUnlocked(certPEM, keyDER)
	if err != nil {
		wipe(certPEM)
		wipe(keyDER)
		return nil, &domain.CryptoError{Op: "vault.unlock", Err: fmt.Errorf("%w: %v", domain.ErrVaultCorrupted, err)}
	}
	return uc, nil
}

// WithCertificate desbloquea, ejecuta fn y limpia el material en cualquier salida,
// incluido un panic (que se relanza después de limpiar).
func (v *Vault) WithCertificate(ctx context.Context, passphrase string, fn func(*UnlockedCertificate) error) error {
	uc, err := v.Unlock(ctx, passphrase)
	if err != nil {
		return err
	}
	defer uc.Close()
	return fn(uc)
}

// Exists indica si hay un certificado almacenado.
func (v *Vault) Exists(ctx context.Context) (bool, error) {
	rec, err := v.repo.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("leer certificado: %w", err)
	}
	return rec != nil, nil
}

// Info devuelve los metadatos no sensibles o domain.ErrCertificateNotFound.
func (v *Vault) Info(ctx context.Context) (*entity.CertificateMetadata, error) {
	rec, err := v.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("leer certificado: %w", err)
	}
	if rec == nil {
		return nil, domain.ErrCertificateNotFound
	}
	meta := rec.Metadata
	return &meta, nil
}

// Delete elimina la entrada. La autorización se verifica en la capa de aplicación.
func (v *Vault) Delete(ctx context.Context) error {
	if err := v.repo.Delete(ctx); err != nil {
		return fmt.Errorf("eliminar certificado: %w", err)
	}
	v.log.Warn().Msg("certificado eliminado de la bóveda")
	return nil
}

// ── cifrado ──────────────────────────────────────────────────────────────────

func (p Params) derive(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, p.Time, p.MemoryKiB, p.Threads, keyLen)
}

// seal devuelve nonce || ciphertext || tag.
func (v *Vault) seal(key, plaintext []byte, aad string) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceLen, nonceLen+len(plaintext)+gcm.Overhead())
	if _, err := io.ReadFull(v.rand, nonce); err != nil {
		return nil, fmt.Errorf("generar nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, []byte(aad)), nil
}

func open(key, blob []byte, aad string) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < nonceLen+gcm.Overhead() {
		return nil, domain.ErrVaultCorrupted
	}
	plaintext, err := gcm.Open(nil, blob[:nonceLen], blob[nonceLen:], []byte(aad))
	if err != nil {
		return nil, domain.ErrInvalidPassphrase
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, nonceLen)
}

// ── certificados ─────────────────────────────────────────────────────────────

func parseChain(certPEM []byte) ([]*x509.Certificate, error) {
	var chain []*x509.Certificate
	rest := certPEM
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("certificado X.509 inválido: %w", err)
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, errors.New("no se encontró ningún certificado PEM")
	}
	return chain, nil
}

func fillMetadata(meta *entity.CertificateMetadata, leaf *x509.Certificate) {
	if meta.Subject == "" {
		meta.Subject = leaf.Subject.String()
	}
	if meta.Issuer == "" {
		meta.Issuer = leaf.Issuer.String()
	}
	if meta.SerialNumber == "" {
		meta.SerialNumber = leaf.SerialNumber.String()
	}
	if meta.ValidUntil.IsZero() {
		meta.ValidUntil = leaf.NotAfter.UTC()
	}
}
