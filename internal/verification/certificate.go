// Package verification issues and checks integrity certificates over the
// SQL selected by a run.
package verification

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/axiom/sqlagent/internal/models"
)

// ErrInvalidCertificate is returned when a certificate does not match its SQL
// or was signed with another key.
var ErrInvalidCertificate = errors.New("invalid certificate")

// CertificateService signs and verifies run certificates
type CertificateService struct {
	signingKey []byte
	now        func() time.Time
}

// NewCertificateService creates a certificate service
func NewCertificateService(signingKey string) *CertificateService {
	return &CertificateService{
		signingKey: []byte(signingKey),
		now:        time.Now,
	}
}

// Issue creates a certificate for the SQL accepted by a run.
func (s *CertificateService) Issue(runID uuid.UUID, sql string, c models.Case, tier models.Tier, dialect string) (*models.Certificate, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, fmt.Errorf("cannot certify empty SQL")
	}
	cert := &models.Certificate{
		ID:        uuid.New(),
		RunID:     runID,
		SQLHash:   computeHash([]byte(sql)),
		Case:      c,
		Tier:      tier,
		Dialect:   dialect,
		Timestamp: s.now().UTC().Truncate(time.Second),
	}
	cert.HashChain = computeHashChain(cert)
	cert.Signature = s.sign(cert.HashChain)
	return cert, nil
}

// Verify checks that cert covers sql and carries a valid signature.
func (s *CertificateService) Verify(cert *models.Certificate, sql string) error {
	if cert == nil {
		return fmt.Errorf("%w: missing", ErrInvalidCertificate)
	}
	if computeHash([]byte(sql)) != cert.SQLHash {
		return fmt.Errorf("%w: sql hash mismatch", ErrInvalidCertificate)
	}
	if computeHashChain(cert) != cert.HashChain {
		return fmt.Errorf("%w: hash chain mismatch", ErrInvalidCertificate)
	}
	if !hmac.Equal([]byte(s.sign(cert.HashChain)), []byte(cert.Signature)) {
		return fmt.Errorf("%w: bad signature", ErrInvalidCertificate)
	}
	return nil
}

// computeHash computes SHA-256 hash
func computeHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// sign creates an HMAC-SHA256 signature
func (s *CertificateService) sign(data string) string {
	h := hmac.New(sha256.New, s.signingKey)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// computeHashChain hashes the fields a certificate vouches for.
func computeHashChain(cert *models.Certificate) string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s:%s",
		cert.SQLHash,
		cert.RunID.String(),
		cert.Case,
		cert.Tier,
		cert.Dialect,
		cert.Timestamp.Format(time.RFC3339),
	)
	return computeHash([]byte(data))
}
