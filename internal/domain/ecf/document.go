package ecf

// CanonicalDocument bytes exactos del e-CF ensamblado (C14N) que cubre la firma.
type CanonicalDocument struct {
	Bytes        []byte
	FiscalNumber string
	Digest       string // SHA-256 en Base64 de Bytes
}

// SignedDocument documento con el bloque de firma embebido. Fuera del bloque
// los bytes son idénticos a los del CanonicalDocument de origen.
type SignedDocument struct {
	Bytes          []byte
	FiscalNumber   string
	Digest         string
	SignatureValue string
}
