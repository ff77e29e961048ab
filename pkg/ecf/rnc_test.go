package ecf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-api/pkg/ecf"
)

func TestValidateRNC_DigitoCorrecto(t *testing.T) {
	for _, rnc := range []string{"131246796", "101010632", "1-31-24679-6"} {
		assert.NoError(t, ecf.ValidateRNC(rnc), rnc)
	}
}

func TestValidateRNC_DigitoIncorrecto(t *testing.T) {
	err := ecf.ValidateRNC("131246795")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "esperado 6")
}

func TestValidateRNC_LongitudInvalida(t *testing.T) {
	assert.Error(t, ecf.ValidateRNC("1312467"))
}

func TestComputeRNCCheckDigit(t *testing.T) {
	d, err := ecf.ComputeRNCCheckDigit("13124679")
	require.NoError(t, err)
	assert.Equal(t, byte('6'), d)

	d, err = ecf.ComputeRNCCheckDigit("10101063")
	require.NoError(t, err)
	assert.Equal(t, byte('2'), d)
}

func TestValidateCedula(t *testing.T) {
	assert.NoError(t, ecf.ValidateCedula("001-1391820-5"))
	assert.Error(t, ecf.ValidateCedula("00113918206"))
}

func TestValidateFiscalID_EligeAlgoritmoPorLongitud(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"rnc válido", "131246796", false},
		{"cédula válida", "00113918205", false},
		{"rnc inválido", "131246795", true},
		{"longitud desconocida", "1234", true},
		{"vacío", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ecf.ValidateFiscalID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMapAuthorityStatus_IgnoraMayusculasYTildes(t *testing.T) {
	tests := map[string]ecf.AuthorityStatus{
		"Aceptado":              ecf.AuthorityAccepted,
		"ACEPTADO CONDICIONAL":  ecf.AuthorityAccepted,
		"  aceptado  ":          ecf.AuthorityAccepted,
		"Rechazado":             ecf.AuthorityRejected,
		"En Proceso":            ecf.AuthoritySubmitted,
		"Recibido":              ecf.AuthoritySubmitted,
		"Ácéptádo":              ecf.AuthorityAccepted,
		"estado nuevo sin mapa": ecf.AuthoritySubmitted,
	}
	for raw, want := range tests {
		assert.Equal(t, want, ecf.MapAuthorityStatus(raw), raw)
	}
}

func TestIsValidDocumentType(t *testing.T) {
	assert.True(t, ecf.IsValidDocumentType("01"))
	assert.True(t, ecf.IsValidDocumentType("31"))
	assert.False(t, ecf.IsValidDocumentType("99"))
	assert.False(t, ecf.IsValidDocumentType("1"))
}
