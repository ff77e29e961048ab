package entity

import "time"

// CertificateMetadata datos no sensibles del certificado de firma.
type CertificateMetadata struct {
	Alias        string
	Issuer       string
	Subject      string
	SerialNumber string
	ValidUntil   time.Time
}

// CertificateRecord entrada de la bóveda. Los blobs se guardan solo cifrados
// (nonce || ciphertext || tag); la frase de paso nunca se persiste.
type CertificateRecord struct {
	ID         string
	CertBlob   []byte // cadena PEM cifrada
	KeyBlob    []byte // llave privada PKCS#8 DER cifrada
	Salt       []byte // sal de Argon2id
	KDFTime    uint32
	KDFMemory  uint32 // KiB
	KDFThreads uint8
	Metadata   CertificateMetadata
	CreatedAt  time.Time
}
