// Firma digital envolvente XMLDSig del e-CF canónico.
// El bloque <Signature> se inserta antes del cierre del elemento raíz sin alterar
// ningún otro byte del documento.

package signer

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/beevik/etree"

	"github.com/jhoicas/ecf-api/internal/domain"
	domainecf "github.com/jhoicas/ecf-api/internal/domain/ecf"
	"github.com/jhoicas/ecf-api/internal/infrastructure/ecf"
)

// KeyMaterial certificado y llave con los que se firma (bóveda desbloqueada o PKCS#12).
type KeyMaterial interface {
	Certificate() *x509.Certificate
	PrivateKey() crypto.Signer
}

// DigitalSignatureService firma y verifica documentos e-CF.
type DigitalSignatureService struct{}

// NewDigitalSignatureService crea el servicio.
func NewDigitalSignatureService() *DigitalSignatureService {
	return &DigitalSignatureService{}
}

// Sign firma doc con km. Ante cualquier fallo devuelve domain.SigningError y ningún documento.
func (s *DigitalSignatureService) Sign(doc *domainecf.CanonicalDocument, km KeyMaterial) (*domainecf.SignedDocument, error) {
	if doc == nil || len(doc.Bytes) == 0 {
		return nil, domain.SigningError(errors.New("documento vacío"))
	}
	if km == nil || km.Certificate() == nil || km.PrivateKey() == nil {
		return nil, domain.SigningError(errors.New("material de firma no disponible"))
	}
	closeTag := []byte("</" + ecf.RootElement + ">")
	insertAt := bytes.LastIndex(doc.Bytes, closeTag)
	if insertAt < 0 || len(bytes.TrimSpace(doc.Bytes[insertAt+len(closeTag):])) != 0 {
		return nil, domain.SigningError(fmt.Errorf("no se encontró el cierre de <%s>", ecf.RootElement))
	}

	// 1) Digest de los bytes canónicos
	digest := ecf.Digest(doc.Bytes)
	if doc.Digest != "" && doc.Digest != digest {
		return nil, domain.SigningError(errors.New("el digest no coincide con los bytes canónicos"))
	}

	// 2) SignedInfo canónico
	method, err := signatureMethod(km.PrivateKey())
	if err != nil {
		return nil, domain.SigningError(err)
	}
	signedInfo, err := ecf.Canonicalize([]byte(buildSignedInfo(method, digest)))
	if err != nil {
		return nil, domain.SigningError(fmt.Errorf("canonicalizar SignedInfo: %w", err))
	}

	// 3) Firma sobre SignedInfo
	sig, err := signDigest(km.PrivateKey(), signedInfo)
	if err != nil {
		return nil, domain.SigningError(err)
	}
	sigB64 := base64.StdEncoding.EncodeToString(sig)
	if !checkSignature(km.Certificate(), method, signedInfo, sig) {
		return nil, domain.SigningError(errors.New("la llave privada no corresponde al certificado"))
	}

	// 4) Bloque completo insertado antes del cierre del raíz
	block := buildSignature(signedInfo, sigB64, km.Certificate().Raw)
	out := make([]byte, 0, len(doc.Bytes)+len(block))
	out = append(out, doc.Bytes[:insertAt]...)
	out = append(out, block...)
	out = append(out, doc.Bytes[insertAt:]...)

	return &domainecf.SignedDocument{
		Bytes:          out,
		FiscalNumber:   doc.FiscalNumber,
		Digest:         digest,
		SignatureValue: sigB64,
	}, nil
}

// Verify es la inversa de Sign: separa el bloque de firma, recalcula el digest de los bytes
// restantes y comprueba la firma del SignedInfo con la llave pública de cert.
func (s *DigitalSignatureService) Verify(signed []byte, cert *x509.Certificate) bool {
	if cert == nil {
		return false
	}
	start := bytes.LastIndex(signed, []byte(signatureOpen))
	if start < 0 {
		return false
	}
	rel := bytes.Index(signed[start:], []byte(signatureClose))
	if rel < 0 {
		return false
	}
	end := start + rel + len(signatureClose)

	original := make([]byte, 0, len(signed)-(end-start))
	original = append(original, signed[:start]...)
	original = append(original, signed[end:]...)

	block := signed[start:end]
	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromBytes(block); err != nil {
		return false
	}
	root := sigDoc.Root()
	digestEl := root.FindElement("./SignedInfo/Reference/DigestValue")
	methodEl := root.FindElement("./SignedInfo/SignatureMethod")
	valueEl := root.FindElement("./SignatureValue")
	certEl := root.FindElement("./KeyInfo/X509Data/X509Certificate")
	if digestEl == nil || methodEl == nil || valueEl == nil || certEl == nil {
		return false
	}

	// el certificado embebido debe ser el mismo contra el que se verifica
	embedded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(certEl.Text()))
	if err != nil || !bytes.Equal(embedded, cert.Raw) {
		return false
	}
	if ecf.Digest(original) != strings.TrimSpace(digestEl.Text()) {
		return false
	}

	siStart := bytes.Index(block, []byte("<SignedInfo"))
	siEnd := bytes.Index(block, []byte("</SignedInfo>"))
	if siStart < 0 || siEnd < siStart {
		return false
	}
	signedInfo, err := ecf.Canonicalize(block[siStart : siEnd+len("</SignedInfo>")])
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(valueEl.Text()))
	if err != nil {
		return false
	}
	return checkSignature(cert, methodEl.SelectAttrValue("Algorithm", ""), signedInfo, sig)
}

// ── construcción ─────────────────────────────────────────────────────────────

func buildSignedInfo(method, digestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<SignedInfo xmlns="` + NamespaceDS + `">`)
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + method + `"/>`)
	sb.WriteString(`<Reference URI="">`)
	sb.WriteString(`<Transforms><Transform Algorithm="` + TransformEnveloped + `"/></Transforms>`)
	sb.WriteString(`<DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<DigestValue>` + digestB64 + `</DigestValue>`)
	sb.WriteString(`</Reference>`)
	sb.WriteString(`</SignedInfo>`)
	return sb.String()
}

// buildSignature arma el bloque con el SignedInfo canónico tal cual se firmó.
func buildSignature(canonicalSignedInfo []byte, sigB64 string, certDER []byte) []byte {
	var b bytes.Buffer
	b.WriteString(signatureOpen)
	b.Write(canonicalSignedInfo)
	b.WriteString(`<SignatureValue>` + sigB64 + `</SignatureValue>`)
	b.WriteString(`<KeyInfo><X509Data><X509Certificate>`)
	b.WriteString(base64.StdEncoding.EncodeToString(certDER))
	b.WriteString(`</X509Certificate></X509Data></KeyInfo>`)
	b.WriteString(signatureClose)
	return b.Bytes()
}

// ── criptografía ─────────────────────────────────────────────────────────────

func signatureMethod(key crypto.Signer) (string, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return AlgRSASHA256, nil
	case *ecdsa.PrivateKey:
		if k.Curve != elliptic.P256() {
			return "", fmt.Errorf("curva ECDSA no soportada: %s", k.Curve.Params().Name)
		}
		return AlgECDSASHA256, nil
	default:
		return "", fmt.Errorf("tipo de llave no soportado: %T", key)
	}
}

// signDigest firma SHA-256(data). ECDSA se codifica r||s (32 bytes cada uno) como pide XMLDSig.
func signDigest(key crypto.Signer, data []byte) ([]byte, error) {
	h := sha256.Sum256(data)
	switch k := key.(type) {
	case *rsa.PrivateKey:
		sig, err := rsa.SignPKCS1v15(rand.Reader, k, crypto.SHA256, h[:])
		if err != nil {
			return nil, fmt.Errorf("firmar RSA: %w", err)
		}
		return sig, nil
	case *ecdsa.PrivateKey:
		r, s, err := ecdsa.Sign(rand.Reader, k, h[:])
		if err != nil {
			return nil, fmt.Errorf("firmar ECDSA: %w", err)
		}
		sig := make([]byte, 64)
		r.FillBytes(sig[:32])
		s.FillBytes(sig[32:])
		return sig, nil
	default:
		return nil, fmt.Errorf("tipo de llave no soportado: %T", key)
	}
}

func checkSignature(cert *x509.Certificate, method string, data, sig []byte) bool {
	h := sha256.Sum256(data)
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return method == AlgRSASHA256 && rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], sig) == nil
	case *ecdsa.PublicKey:
		if method != AlgECDSASHA256 || len(sig) != 64 {
			return false
		}
		r := new(big.Int).SetBytes(sig[:32])
		s := new(big.Int).SetBytes(sig[32:])
		return ecdsa.Verify(pub, h[:], r, s)
	default:
		return false
	}
}
