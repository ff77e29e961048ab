package vault

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"math/big"
	"sync"
)

// UnlockedCertificate material descifrado. Vive solo mientras dura una firma;
// Close borra los buffers y los enteros de la llave privada.
type UnlockedCertificate struct {
	Leaf  *x509.Certificate
	Chain []*x509.Certificate
	Key   crypto.Signer

	certPEM []byte
	keyDER  []byte
	once    sync.Once
}

func newUnlocked(certPEM, keyDER []byte) (*UnlockedCertificate, error) {
	chain, err := parseChain(certPEM)
	if err != nil {
		return nil, err
	}
	parsed, err := x509.ParsePKCS8PrivateKey(keyDER)
	if err != nil {
		return nil, fmt.Errorf("llave privada: %w", err)
	}
	signer, ok := parsed.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("tipo de llave no soportado: %T", parsed)
	}
	return &UnlockedCertificate{
		Leaf:    chain[0],
		Chain:   chain,
		Key:     signer,
		certPEM: certPEM,
		keyDER:  keyDER,
	}, nil
}

// CertificatePEM bytes PEM descifrados (válidos hasta Close).
func (u *UnlockedCertificate) CertificatePEM() []byte { return u.certPEM }

// KeyDER llave PKCS#8 descifrada (válida hasta Close).
func (u *UnlockedCertificate) KeyDER() []byte { return u.keyDER }

// Close borra el material descifrado. Es idempotente.
func (u *UnlockedCertificate) Close() {
	u.once.Do(func() {
		wipe(u.certPEM)
		wipe(u.keyDER)
		switch k := u.Key.(type) {
		case *rsa.PrivateKey:
			wipeInt(k.D)
			for _, p := range k.Primes {
				wipeInt(p)
			}
			wipeInt(k.Precomputed.Dp)
			wipeInt(k.Precomputed.Dq)
			wipeInt(k.Precomputed.Qinv)
		case *ecdsa.PrivateKey:
			wipeInt(k.D)
		}
		u.Key = nil
	})
}

func wipe(b []byte) {
	clear(b)
}

func wipeInt(n *big.Int) {
	if n == nil {
		return
	}
	clear(n.Bits())
	n.SetInt64(0)
}

// Certificate certificado hoja; permite pasar la bóveda desbloqueada al firmador.
func (u *UnlockedCertificate) Certificate() *x509.Certificate { return u.Leaf }

// PrivateKey llave de firma (nil después de Close).
func (u *UnlockedCertificate) PrivateKey() crypto.Signer { return u.Key }
