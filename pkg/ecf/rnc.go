package ecf

import (
	"fmt"
	"unicode"
)

// pesos del dígito verificador del RNC (persona jurídica, 9 dígitos).
// Se aplican a los 8 primeros dígitos, de izquierda a derecha.
var rncWeights = [8]int{7, 9, 8, 6, 5, 4, 3, 2}

// Longitudes de identificador fiscal aceptadas.
const (
	RNCLength    = 9
	CedulaLength = 11
)

// ValidateFiscalID valida un RNC (9 dígitos) o una cédula (11 dígitos), con o sin guiones.
func ValidateFiscalID(fiscalID string) error {
	digits := extractDigits(fiscalID)
	switch len(digits) {
	case RNCLength:
		return ValidateRNC(fiscalID)
	case CedulaLength:
		return ValidateCedula(fiscalID)
	default:
		return fmt.Errorf("ecf: el identificador fiscal debe tener 9 (RNC) u 11 (cédula) dígitos, se encontraron %d", len(digits))
	}
}

// ValidateRNC valida el dígito verificador del RNC según el algoritmo módulo 11.
// fiscalID puede ser "1-31-24679-6" o "131246796".
func ValidateRNC(fiscalID string) error {
	digits := extractDigits(fiscalID)
	if len(digits) != RNCLength {
		return fmt.Errorf("ecf: RNC debe tener %d dígitos, se encontraron %d", RNCLength, len(digits))
	}
	expected, err := ComputeRNCCheckDigit(string(digits[:RNCLength-1]))
	if err != nil {
		return err
	}
	if digits[RNCLength-1] != expected {
		return fmt.Errorf("ecf: dígito verificador del RNC inválido: esperado %c, recibido %c", expected, digits[RNCLength-1])
	}
	return nil
}

// ComputeRNCCheckDigit calcula el dígito verificador para los 8 primeros dígitos del RNC.
func ComputeRNCCheckDigit(base string) (byte, error) {
	digits := extractDigits(base)
	if len(digits) < RNCLength-1 {
		return 0, fmt.Errorf("ecf: se requieren %d dígitos para calcular el verificador del RNC, se encontraron %d", RNCLength-1, len(digits))
	}
	var sum int
	for i, d := range digits[:RNCLength-1] {
		sum += int(d-'0') * rncWeights[i]
	}
	switch r := sum % 11; r {
	case 0:
		return '2', nil
	case 1:
		return '1', nil
	default:
		return byte('0' + (11 - r)), nil
	}
}

// ValidateCedula valida la cédula de identidad (11 dígitos, Luhn con pesos 1,2 sobre los 10 primeros).
func ValidateCedula(fiscalID string) error {
	digits := extractDigits(fiscalID)
	if len(digits) != CedulaLength {
		return fmt.Errorf("ecf: la cédula debe tener %d dígitos, se encontraron %d", CedulaLength, len(digits))
	}
	var sum int
	for i, d := range digits[:CedulaLength-1] {
		v := int(d - '0')
		if i%2 == 1 {
			v *= 2
			if v > 9 {
				v -= 9
			}
		}
		sum += v
	}
	expected := byte('0' + (10-sum%10)%10)
	if digits[CedulaLength-1] != expected {
		return fmt.Errorf("ecf: dígito verificador de la cédula inválido: esperado %c, recibido %c", expected, digits[CedulaLength-1])
	}
	return nil
}

// NormalizeFiscalID deja solo los dígitos del identificador.
func NormalizeFiscalID(fiscalID string) string {
	return string(extractDigits(fiscalID))
}

func extractDigits(s string) []byte {
	var out []byte
	for _, r := range s {
		if unicode.IsDigit(r) && r < 0x80 {
			out = append(out, byte(r))
		}
	}
	return out
}
