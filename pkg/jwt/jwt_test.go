package jwt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-api/pkg/jwt"
)

const secret = "secreto-de-pruebas-123"

func TestGenerateParse_RoundTrip(t *testing.T) {
	token, err := jwt.Generate(secret, "u-1", "c-1", jwt.RoleAdmin, "ecf-api", 5)
	require.NoError(t, err)

	claims, err := jwt.Parse(secret, "ecf-api", token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "c-1", claims.CompanyID)
	assert.Equal(t, jwt.RoleAdmin, claims.Role)
}

func TestParse_Rechaza(t *testing.T) {
	token, err := jwt.Generate(secret, "u-1", "c-1", jwt.RoleEmisor, "ecf-api", 5)
	require.NoError(t, err)

	_, err = jwt.Parse("otro-secreto-distinto", "ecf-api", token)
	assert.Error(t, err, "firma incorrecta")

	_, err = jwt.Parse(secret, "otro-emisor", token)
	assert.Error(t, err, "emisor distinto")

	expired, err := jwt.Generate(secret, "u-1", "c-1", jwt.RoleEmisor, "ecf-api", -1)
	require.NoError(t, err)
	_, err = jwt.Parse(secret, "ecf-api", expired)
	assert.Error(t, err, "expirado")
}
