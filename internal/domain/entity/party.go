package entity

// Party emisor o comprador del comprobante.
// El emisor es configuración del proceso; el comprador viaja en cada factura.
type Party struct {
	LegalName string
	FiscalID  string // RNC (9 dígitos) o cédula (11 dígitos)
	Address   string
	Email     string
	Phone     string
}
