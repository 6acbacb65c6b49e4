package crlcache

import (
	"bytes"
	"crypto/x509"
	"time"

	"github.com/effective-security/xlog"
	"github.com/effective-security/xrevoke/pkg/crl"
	"github.com/effective-security/xrevoke/pkg/rverror"
)

// VerifyFunc verifies a CRL signature with the issuer's public key
type VerifyFunc func(c *crl.CRL, issuer *x509.Certificate) error

// Status is the outcome of a revocation lookup against a CRL
type Status struct {
	// Revoked is true when the serial is listed with an effective reason
	Revoked bool
	// ReasonCode of the revocation, RFC 5280 §5.3.1
	ReasonCode int
	// RevokedAt is the revocation date of the entry
	RevokedAt time.Time
	// Warnings collected during validation
	Warnings []string

	// Entry is the matched CRL entry, nil when the serial is not listed
	Entry *crl.Entry
}

// Validator verifies CRL authenticity and classifies certificates
type Validator struct {
	verify VerifyFunc
}

// NewValidator returns a Validator. With a nil verify func, signatures
// are verified over the exact tbsCertList bytes with the issuer key.
func NewValidator(verify VerifyFunc) *Validator {
	if verify == nil {
		verify = func(c *crl.CRL, issuer *x509.Certificate) error {
			return c.VerifySignature(issuer)
		}
	}
	return &Validator{verify: verify}
}

// Validate checks that the CRL was issued by the issuer certificate, is
// temporally in force, and carries a valid signature. Expired lists and
// missing signature material are surfaced as warnings, not failures.
func (v *Validator) Validate(c *crl.CRL, issuer *x509.Certificate) ([]string, error) {
	if !bytes.Equal(issuer.RawSubject, c.RawIssuer) {
		return nil, rverror.New(rverror.CodeProtocol,
			"issuer mismatch: CRL issued by %q, expected %q", c.Issuer, issuer.Subject.String())
	}

	var warnings []string
	now := NowFunc()

	if now.Before(c.ThisUpdate) {
		return nil, rverror.New(rverror.CodeProtocol,
			"CRL not yet valid: thisUpdate=%s", c.ThisUpdate.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if c.HasNextUpdate() && now.After(c.NextUpdate) {
		warnings = append(warnings, "CRL is expired: nextUpdate="+c.NextUpdate.UTC().Format("2006-01-02T15:04:05Z"))
	}

	if len(c.TBS()) == 0 || len(c.Signature()) == 0 {
		warnings = append(warnings, "CRL signature not verified: signature material is absent")
		logger.KV(xlog.WARNING,
			"reason", "no_signature_material",
			"issuer", c.Issuer,
		)
		return warnings, nil
	}

	if err := v.verify(c, issuer); err != nil {
		return warnings, err
	}

	return warnings, nil
}

// CheckRevocation classifies the subject certificate against the CRL.
// A serial that is not listed, or listed with reason removeFromCRL,
// yields a good status.
func (v *Validator) CheckRevocation(subject, issuer *x509.Certificate, c *crl.CRL) (*Status, error) {
	if !bytes.Equal(subject.RawIssuer, c.RawIssuer) {
		return nil, rverror.New(rverror.CodeProtocol,
			"issuer mismatch: certificate issued by %q, CRL by %q", subject.Issuer.String(), c.Issuer)
	}

	warnings, err := v.Validate(c, issuer)
	if err != nil {
		return nil, err
	}

	status := &Status{
		Warnings: warnings,
	}

	entry := c.Lookup(subject.SerialNumber)
	if entry == nil {
		return status, nil
	}
	status.Entry = entry

	reason := crl.ReasonUnspecified
	if entry.ReasonCode != nil {
		reason = *entry.ReasonCode
	}
	if reason == crl.ReasonRemoveFromCRL {
		// a prior certificateHold is lifted
		return status, nil
	}

	status.Revoked = true
	status.ReasonCode = reason
	status.RevokedAt = entry.RevocationDate
	return status, nil
}
