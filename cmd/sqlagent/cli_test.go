package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiom/sqlagent/internal/models"
	"github.com/axiom/sqlagent/internal/verification"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSanitizeCommand(t *testing.T) {
	out, err := execute(t, "", "sanitize", "--dialect", "sqlserver", "SELECT name FROM customers LIMIT 5")
	require.NoError(t, err)
	assert.Contains(t, out, "TOP 5")

	out, err = execute(t, "SELECT id FROM customers", "sanitize", "--dialect", "postgresql")
	require.NoError(t, err)
	assert.Contains(t, out, "customers")

	_, err = execute(t, "", "sanitize", "--dialect", "postgresql", "DROP TABLE customers")
	assert.Error(t, err)
}

func TestCertVerifyCommand(t *testing.T) {
	const sql = "SELECT name FROM customers"
	cert, err := verification.NewCertificateService("cli-key").Issue(uuid.New(), sql, models.CaseBSilver, models.TierAdvanced, "sqlite")
	require.NoError(t, err)

	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.json")
	f, err := os.Create(certPath)
	require.NoError(t, err)
	require.NoError(t, writeJSON(f, cert))
	require.NoError(t, f.Close())

	out, err := execute(t, "", "cert", "verify", "--cert", certPath, "--key", "cli-key", sql)
	require.NoError(t, err)
	assert.Contains(t, out, "B-SILVER")

	_, err = execute(t, "", "cert", "verify", "--cert", certPath, "--key", "cli-key", "SELECT 1")
	assert.ErrorIs(t, err, verification.ErrInvalidCertificate)
}

func TestWriteYAMLUsesJSONNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeYAML(&buf, models.Result{SQL: "SELECT 1", Case: models.CaseAGold, Tier: models.TierBasic}))
	out := buf.String()
	assert.Contains(t, out, "sql: SELECT 1")
	assert.Contains(t, out, "case: A-GOLD")
	assert.NotContains(t, out, "{")
}
