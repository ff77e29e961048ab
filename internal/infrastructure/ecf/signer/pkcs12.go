package signer

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/jhoicas/ecf-api/internal/domain"
)

// Bundle contenido de un archivo PKCS#12 (.p12 / .pfx): certificado, llave y cadena.
type Bundle struct {
	Leaf  *x509.Certificate
	Key   crypto.Signer
	Chain []*x509.Certificate
}

// LoadPKCS12 abre el archivo con la contraseña de importación (distinta de la frase
// de cifrado de la bóveda) y comprueba que la llave corresponda al certificado.
func LoadPKCS12(data []byte, password string) (*Bundle, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: archivo PKCS#12 vacío", domain.ErrInvalidInput)
	}
	key, leaf, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, &domain.CryptoError{Op: "pkcs12", Err: domain.ErrInvalidPassphrase}
		}
		return nil, fmt.Errorf("%w: PKCS#12 inválido: %v", domain.ErrInvalidInput, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: tipo de llave no soportado: %T", domain.ErrInvalidInput, key)
	}
	if _, err := signatureMethod(signer); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if !publicKeysEqual(leaf.PublicKey, signer.Public()) {
		return nil, fmt.Errorf("%w: la llave privada no corresponde al certificado", domain.ErrInvalidInput)
	}
	return &Bundle{Leaf: leaf, Key: signer, Chain: chain}, nil
}

// Certificate implementa KeyMaterial.
func (b *Bundle) Certificate() *x509.Certificate { return b.Leaf }

// PrivateKey implementa KeyMaterial.
func (b *Bundle) PrivateKey() crypto.Signer { return b.Key }

// CertificatePEM cadena en PEM, hoja primero.
func (b *Bundle) CertificatePEM() []byte {
	var buf bytes.Buffer
	for _, c := range append([]*x509.Certificate{b.Leaf}, b.Chain...) {
		_ = pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})
	}
	return buf.Bytes()
}

// KeyDER llave privada en PKCS#8 DER.
func (b *Bundle) KeyDER() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(b.Key)
	if err != nil {
		return nil, fmt.Errorf("serializar llave: %w", err)
	}
	return der, nil
}

// ValidAt indica si el certificado está vigente en t.
func (b *Bundle) ValidAt(t time.Time) bool {
	return !t.Before(b.Leaf.NotBefore) && !t.After(b.Leaf.NotAfter)
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	type equaler interface{ Equal(crypto.PublicKey) bool }
	ea, ok := a.(equaler)
	return ok && ea.Equal(b)
}
