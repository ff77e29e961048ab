package signer_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-api/internal/domain"
	domainecf "github.com/jhoicas/ecf-api/internal/domain/ecf"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/infrastructure/ecf"
	"github.com/jhoicas/ecf-api/internal/infrastructure/ecf/signer"
	"github.com/jhoicas/ecf-api/internal/testutil"
)

func canonicalDoc(t *testing.T) *domainecf.CanonicalDocument {
	t.Helper()
	inv := &entity.Invoice{
		FiscalNumber:  "E0100000001",
		DocumentType:  "01",
		IssueDate:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Currency:      "DOP",
		PaymentMethod: "1",
		Recipient:     entity.Party{LegalName: "Hotel Playa Dorada", FiscalID: "101010632"},
		Lines: []entity.InvoiceLine{{
			Description: "Fumigación",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.NewFromInt(1000),
			TaxRate:     decimal.RequireFromString("0.18"),
		}},
	}
	inv.ComputeTotals()
	issuer := entity.Party{LegalName: "Fumigadora del Caribe SRL", FiscalID: "131246796"}
	doc, err := ecf.NewXMLBuilderService().Assemble(inv, issuer, inv.Recipient)
	require.NoError(t, err)
	return doc
}

func TestSign_VerifyRSA(t *testing.T) {
	svc := signer.NewDigitalSignatureService()
	cert := testutil.NewRSACertificate(t)
	doc := canonicalDoc(t)

	signed, err := svc.Sign(doc, cert)
	require.NoError(t, err)
	assert.True(t, svc.Verify(signed.Bytes, cert.Cert))
	assert.Equal(t, doc.Digest, signed.Digest)
	assert.Equal(t, "E0100000001", signed.FiscalNumber)
	assert.Contains(t, string(signed.Bytes), signer.AlgRSASHA256)
}

func TestSign_VerifyECDSA(t *testing.T) {
	svc := signer.NewDigitalSignatureService()
	cert := testutil.NewECDSACertificate(t)

	signed, err := svc.Sign(canonicalDoc(t), cert)
	require.NoError(t, err)
	assert.True(t, svc.Verify(signed.Bytes, cert.Cert))
	assert.Contains(t, string(signed.Bytes), signer.AlgECDSASHA256)
}

func TestSign_NoAlteraBytesFueraDeLaFirma(t *testing.T) {
	svc := signer.NewDigitalSignatureService()
	cert := testutil.NewECDSACertificate(t)
	doc := canonicalDoc(t)

	signed, err := svc.Sign(doc, cert)
	require.NoError(t, err)

	start := bytes.Index(signed.Bytes, []byte(`<Signature xmlns="`))
	end := bytes.Index(signed.Bytes, []byte(`</Signature>`)) + len(`</Signature>`)
	require.True(t, start > 0 && end > start)

	var stripped []byte
	stripped = append(stripped, signed.Bytes[:start]...)
	stripped = append(stripped, signed.Bytes[end:]...)
	assert.Equal(t, doc.Bytes, stripped)
	assert.True(t, bytes.HasSuffix(signed.Bytes, []byte("</Signature></ECF>")))
}

func TestVerify_CualquierByteMutadoFueraDeLaFirmaFalla(t *testing.T) {
	svc := signer.NewDigitalSignatureService()
	cert := testutil.NewRSACertificate(t)
	signed, err := svc.Sign(canonicalDoc(t), cert)
	require.NoError(t, err)

	start := bytes.Index(signed.Bytes, []byte(`<Signature xmlns="`))
	end := bytes.Index(signed.Bytes, []byte(`</Signature>`)) + len(`</Signature>`)

	for i := range signed.Bytes {
		if i >= start && i < end {
			continue
		}
		mutated := bytes.Clone(signed.Bytes)
		mutated[i] ^= 0x01
		require.False(t, svc.Verify(mutated, cert.Cert), "byte %d mutado no debe verificar", i)
	}
}

func TestVerify_FirmaAlteradaFalla(t *testing.T) {
	svc := signer.NewDigitalSignatureService()
	cert := testutil.NewRSACertificate(t)
	signed, err := svc.Sign(canonicalDoc(t), cert)
	require.NoError(t, err)

	tampered := bytes.Replace(signed.Bytes, []byte(signed.SignatureValue[:8]), []byte("AAAAAAAA"), 1)
	assert.False(t, svc.Verify(tampered, cert.Cert))
}

func TestVerify_OtroCertificadoFalla(t *testing.T) {
	svc := signer.NewDigitalSignatureService()
	cert := testutil.NewECDSACertificate(t)
	other := testutil.NewECDSACertificate(t)
	signed, err := svc.Sign(canonicalDoc(t), cert)
	require.NoError(t, err)

	assert.False(t, svc.Verify(signed.Bytes, other.Cert))
	assert.False(t, svc.Verify(signed.Bytes, nil))
	assert.False(t, svc.Verify(canonicalDoc(t).Bytes, cert.Cert), "documento sin firma")
}

func TestSign_FallaCerradoConLlaveAjena(t *testing.T) {
	svc := signer.NewDigitalSignatureService()
	cert := testutil.NewECDSACertificate(t)
	other := testutil.NewECDSACertificate(t)
	mixed := &testutil.Certificate{Cert: cert.Cert, Key: other.Key}

	signed, err := svc.Sign(canonicalDoc(t), mixed)
	assert.Nil(t, signed, "nunca devuelve un documento parcialmente firmado")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSigning))
	assert.True(t, domain.IsCrypto(err))
}

func TestSign_DigestInconsistente(t *testing.T) {
	svc := signer.NewDigitalSignatureService()
	doc := canonicalDoc(t)
	doc.Bytes = bytes.Replace(doc.Bytes, []byte("1180.00"), []byte("1.00"), 1)

	signed, err := svc.Sign(doc, testutil.NewECDSACertificate(t))
	assert.Nil(t, signed)
	assert.ErrorIs(t, err, domain.ErrSigning)
}

func TestLoadPKCS12(t *testing.T) {
	cert := testutil.NewRSACertificate(t)
	pfx := cert.PKCS12(t, "import-pass")

	bundle, err := signer.LoadPKCS12(pfx, "import-pass")
	require.NoError(t, err)
	assert.True(t, bundle.Leaf.Equal(cert.Cert))
	assert.True(t, bundle.ValidAt(time.Now()))
	assert.Contains(t, string(bundle.CertificatePEM()), "BEGIN CERTIFICATE")
	der, err := bundle.KeyDER()
	require.NoError(t, err)
	assert.NotEmpty(t, der)

	signed, err := signer.NewDigitalSignatureService().Sign(canonicalDoc(t), bundle)
	require.NoError(t, err)
	assert.True(t, signer.NewDigitalSignatureService().Verify(signed.Bytes, cert.Cert))
}

func TestLoadPKCS12_ContrasenaIncorrecta(t *testing.T) {
	pfx := testutil.NewECDSACertificate(t).PKCS12(t, "import-pass")

	_, err := signer.LoadPKCS12(pfx, "otra")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidPassphrase)

	_, err = signer.LoadPKCS12([]byte("no es pkcs12"), "x")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
