// Package testutil genera material criptográfico efímero para las pruebas.
package testutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// Certificate certificado autofirmado de prueba con su llave.
type Certificate struct {
	Cert    *x509.Certificate
	Key     crypto.Signer
	CertPEM []byte
	KeyDER  []byte
}

// NewRSACertificate genera un certificado RSA 2048 autofirmado.
func NewRSACertificate(t testing.TB) *Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return selfSigned(t, key)
}

// NewECDSACertificate genera un certificado ECDSA P-256 autofirmado.
func NewECDSACertificate(t testing.TB) *Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return selfSigned(t, key)
}

// PKCS12 empaqueta el certificado y la llave protegidos con password.
func (c *Certificate) PKCS12(t testing.TB, password string) []byte {
	t.Helper()
	pfx, err := pkcs12.Modern.Encode(c.Key, c.Cert, nil, password)
	require.NoError(t, err)
	return pfx
}

func selfSigned(t testing.TB, key crypto.Signer) *Certificate {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			CommonName:   "Fumigadora del Caribe SRL",
			Organization: []string{"Fumigadora del Caribe SRL"},
			SerialNumber: "131246796",
			Country:      []string{"DO"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return &Certificate{
		Cert:    cert,
		Key:     key,
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyDER:  keyDER,
	}
}

// Certificate devuelve el certificado (material de firma).
func (c *Certificate) Certificate() *x509.Certificate { return c.Cert }

// PrivateKey devuelve la llave (material de firma).
func (c *Certificate) PrivateKey() crypto.Signer { return c.Key }
