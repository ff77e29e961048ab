package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-api/pkg/config"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "secreto-de-pruebas-123")
	t.Setenv("ECF_USERNAME", "usuario")
	t.Setenv("ECF_PASSWORD", "clave")
	t.Setenv("ECF_ISSUER_LEGAL_NAME", "Fumigadora del Caribe SRL")
	t.Setenv("ECF_ISSUER_RNC", "131246796")
	t.Setenv("VAULT_PASSPHRASE", "frase-larga-de-boveda")
}

func TestLoad_ValoresPorDefecto(t *testing.T) {
	setValidEnv(t)
	t.Setenv("ECF_HTTP_TIMEOUT", "15s")
	t.Setenv("ECF_POLL_INTERVAL", "45")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.ECF.Environment)
	assert.Equal(t, 3, cfg.ECF.MaxSubmitAttempts)
	assert.Equal(t, 8, cfg.ECF.SequenceDigits)
	assert.Equal(t, 15*time.Second, cfg.ECF.HTTPTimeout)
	assert.Equal(t, 45*time.Second, cfg.ECF.PollInterval)
	assert.False(t, cfg.DB.Enabled())
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
}

func TestLoad_RNCEmisorInvalido(t *testing.T) {
	setValidEnv(t)
	t.Setenv("ECF_ISSUER_RNC", "131246795")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ECF_ISSUER_RNC")
}

func TestLoad_FaltanCredenciales(t *testing.T) {
	setValidEnv(t)
	t.Setenv("ECF_PASSWORD", "")
	t.Setenv("VAULT_PASSPHRASE", "corta")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Password")
	assert.Contains(t, err.Error(), "Passphrase")
}

func TestLoad_ProduccionExigeBaseDeDatos(t *testing.T) {
	setValidEnv(t)
	t.Setenv("APP_ENV", "production")

	_, err := config.Load()
	require.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/ecf")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/ecf", cfg.DB.ConnectionString())
}
