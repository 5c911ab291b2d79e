package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "1", cfg.DefaultQty)
	assert.Equal(t, []string{"branch", "date_time", "qty", "price"}, cfg.RequiredFields)
	assert.Contains(t, cfg.KnownSizes, "regular")
	assert.Contains(t, cfg.DateTimeLayouts, "2006-01-02 15:04:05")

	assert.Equal(t, "Branch", cfg.Fields["branch"])
	assert.Equal(t, "Date/Time", cfg.Columns[0])

	assert.Equal(t, ActionRemove, cfg.PII.Actions["customer_name"])
	assert.Equal(t, ActionRemove, cfg.PII.Actions["card_number"])
	assert.Equal(t, "[REDACTED]", cfg.PII.RedactionMarker)

	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"log-level": "debug",
		"default-qty": "2",
		"pii": {
			"actions": {"customer_name": "redact"},
			"redaction-marker": "***"
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "2", cfg.DefaultQty)
	assert.Equal(t, ActionRedact, cfg.PII.Actions["customer_name"])
	assert.Equal(t, "***", cfg.PII.RedactionMarker)
	// Untouched sections keep their defaults.
	assert.NotEmpty(t, cfg.Columns)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PASSWORD", "hunter2")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_InvalidFieldMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"fields": {"branch": "No Such Column"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "No Such Column")
}

func TestLoad_InvalidPIIAction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"pii": {"actions": {"customer_name": "shred"}}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, `"shred"`)
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestPostgresConfig_DSN(t *testing.T) {
	c := PostgresConfig{
		Host:     "localhost",
		Port:     "5432",
		User:     "cafe",
		Password: "secret",
		DBName:   "cafe",
		SSLMode:  "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=cafe password=secret dbname=cafe sslmode=disable",
		c.DSN())
}

func TestPIIPolicy_IsPII(t *testing.T) {
	p := PIIPolicy{Actions: map[string]string{"customer_name": ActionRemove}}
	assert.True(t, p.IsPII("customer_name"))
	assert.False(t, p.IsPII("branch"))
}
