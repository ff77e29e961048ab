// certcheck diagnostica un certificado PKCS#12 antes de subirlo a la bóveda:
// abre el archivo con la frase de paso, muestra sus datos y firma un documento de prueba.
//
// Uso: CERT_PASSWORD=... go run ./cmd/certcheck ruta/certificado.p12 [RNC]
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jhoicas/ecf-api/internal/domain"
	domainecf "github.com/jhoicas/ecf-api/internal/domain/ecf"
	infraecf "github.com/jhoicas/ecf-api/internal/infrastructure/ecf"
	"github.com/jhoicas/ecf-api/internal/infrastructure/ecf/signer"
	"github.com/jhoicas/ecf-api/pkg/ecf"
	"github.com/jhoicas/ecf-api/pkg/logger"
)

func main() {
	log := logger.New(logger.Config{Env: "development", Level: "info"})

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "uso: certcheck <archivo.p12> [RNC]")
		os.Exit(2)
	}
	certPath := os.Args[1]
	// La frase de paso solo por entorno; nunca en argumentos ni en la salida.
	certPass := os.Getenv("CERT_PASSWORD")

	data, err := os.ReadFile(certPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", certPath).Msg("no se pudo leer el archivo")
	}
	log.Info().Str("path", certPath).Int("bytes", len(data)).Msg("archivo encontrado")

	bundle, err := signer.LoadPKCS12(data, certPass)
	if err != nil {
		if domain.IsCrypto(err) {
			log.Fatal().Err(err).Msg("frase de paso incorrecta o archivo corrupto")
		}
		log.Fatal().Err(err).Msg("no se pudo abrir el PKCS#12")
	}
	defer clear(data)

	leaf := bundle.Certificate()
	log.Info().
		Str("subject", leaf.Subject.String()).
		Str("issuer", leaf.Issuer.String()).
		Str("serial", leaf.SerialNumber.String()).
		Time("not_before", leaf.NotBefore).
		Time("not_after", leaf.NotAfter).
		Msg("certificado")

	ok := true
	if !bundle.ValidAt(time.Now()) {
		log.Error().Msg("el certificado no está vigente")
		ok = false
	} else if days := int(time.Until(leaf.NotAfter).Hours() / 24); days < 30 {
		log.Warn().Int("dias", days).Msg("el certificado vence pronto")
	}

	if len(os.Args) > 2 {
		rnc := ecf.NormalizeFiscalID(os.Args[2])
		if err := ecf.ValidateFiscalID(rnc); err != nil {
			log.Error().Err(err).Str("rnc", rnc).Msg("RNC inválido")
			ok = false
		} else if !strings.Contains(leaf.Subject.String(), rnc) {
			log.Warn().Str("rnc", rnc).Msg("el RNC no aparece en el sujeto del certificado")
		}
	}

	svc := signer.NewDigitalSignatureService()
	sample := []byte("<" + infraecf.RootElement + "><Encabezado><eNCF>E3100000001</eNCF></Encabezado></" + infraecf.RootElement + ">")
	signed, err := svc.Sign(&domainecf.CanonicalDocument{Bytes: sample}, bundle)
	if err != nil {
		log.Error().Err(err).Msg("la firma de prueba falló")
		ok = false
	} else if !svc.Verify(signed.Bytes, leaf) {
		log.Error().Msg("la firma de prueba no verifica")
		ok = false
	} else {
		log.Info().Str("digest", signed.Digest).Msg("firma de prueba correcta")
	}

	if !ok {
		os.Exit(1)
	}
	log.Info().Msg("el certificado se puede importar en la bóveda")
}
