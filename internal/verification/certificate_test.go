package verification

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiom/sqlagent/internal/models"
)

const query = "SELECT name FROM customers ORDER BY name LIMIT 5"

func TestIssueCertificate(t *testing.T) {
	service := NewCertificateService("test-secret-key-123")
	service.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC) }
	runID := uuid.New()

	cert, err := service.Issue(runID, query, models.CaseAGold, models.TierBasic, "postgresql")
	require.NoError(t, err)

	assert.Equal(t, runID, cert.RunID)
	assert.Equal(t, models.CaseAGold, cert.Case)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), cert.Timestamp)

	// SHA-256 hex
	assert.Len(t, cert.SQLHash, 64)
	_, err = hex.DecodeString(cert.SQLHash)
	assert.NoError(t, err)
	assert.Equal(t, computeHashChain(cert), cert.HashChain)
	assert.Equal(t, service.sign(cert.HashChain), cert.Signature)

	assert.NoError(t, service.Verify(cert, query))
}

func TestIssueRejectsEmptySQL(t *testing.T) {
	_, err := NewCertificateService("k").Issue(uuid.New(), "  ", models.CaseASilver, models.TierBasic, "sqlite")
	assert.Error(t, err)
}

func TestVerifyDetectsTampering(t *testing.T) {
	service := NewCertificateService("test-secret-key-123")
	cert, err := service.Issue(uuid.New(), query, models.CaseBSilver, models.TierAdvanced, "oracle")
	require.NoError(t, err)

	assert.ErrorIs(t, service.Verify(cert, query+" "), ErrInvalidCertificate)

	upgraded := *cert
	upgraded.Case = models.CaseAGold
	assert.ErrorIs(t, service.Verify(&upgraded, query), ErrInvalidCertificate)

	other := NewCertificateService("another-key")
	assert.ErrorIs(t, other.Verify(cert, query), ErrInvalidCertificate)
	assert.ErrorIs(t, service.Verify(nil, query), ErrInvalidCertificate)
}
