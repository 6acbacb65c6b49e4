// Package crl parses and represents X.509 Certificate Revocation Lists,
// RFC 5280 §5.1.
package crl

import (
	"crypto/x509"
	"math/big"
	"time"

	"github.com/effective-security/xlog"
	"github.com/effective-security/xrevoke/pkg/rverror"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xrevoke/pkg", "crl")

// Revocation reason codes, RFC 5280 §5.3.1. Value 7 is unassigned.
const (
	ReasonUnspecified          = 0
	ReasonKeyCompromise        = 1
	ReasonCACompromise         = 2
	ReasonAffiliationChanged   = 3
	ReasonSuperseded           = 4
	ReasonCessationOfOperation = 5
	ReasonCertificateHold      = 6
	ReasonRemoveFromCRL        = 8
	ReasonPrivilegeWithdrawn   = 9
	ReasonAACompromise         = 10
)

// Entry describes a single revoked certificate
type Entry struct {
	// SerialNumber is the canonical big-endian hex form of the serial
	SerialNumber string
	// RevocationDate specifies when the certificate was revoked
	RevocationDate time.Time
	// ReasonCode is set when the entry carries the Reason Code extension
	ReasonCode *int
	// InvalidityDate is set when the entry carries the Invalidity Date extension
	InvalidityDate *time.Time
}

// CRL is a parsed certificate revocation list
type CRL struct {
	// RawIssuer is the canonical DER of the issuer distinguished name
	RawIssuer []byte
	// Issuer is the displayable issuer name
	Issuer string
	// ThisUpdate specifies when the list was issued
	ThisUpdate time.Time
	// NextUpdate specifies when the next list will be issued,
	// zero when the CRL does not carry one
	NextUpdate time.Time
	// Number is the CRL Number extension value, 0 when absent
	Number *big.Int
	// Entries maps canonical serial hex to the revocation entry
	Entries map[string]*Entry
	// Raw is the original DER encoding of the CertificateList
	Raw []byte
	// Warnings collected while parsing
	Warnings []string

	list *x509.RevocationList
}

// SerialKey returns the canonical big-endian hex form of a serial number
func SerialKey(serial *big.Int) string {
	return serial.Text(16)
}

// Lookup returns the revocation entry for the serial, or nil
func (c *CRL) Lookup(serial *big.Int) *Entry {
	return c.Entries[SerialKey(serial)]
}

// HasNextUpdate returns true when the CRL carries a nextUpdate bound
func (c *CRL) HasNextUpdate() bool {
	return !c.NextUpdate.IsZero()
}

// IsExpired returns true when the CRL is no longer authoritative at now.
// A CRL without nextUpdate is considered expired: no bound means unusable
// for caching purposes.
func (c *CRL) IsExpired(now time.Time) bool {
	return !c.HasNextUpdate() || !c.NextUpdate.After(now)
}

// ExpiresWithin returns true when the CRL has no nextUpdate,
// or its nextUpdate falls within the threshold from now.
func (c *CRL) ExpiresWithin(now time.Time, threshold time.Duration) bool {
	return !c.HasNextUpdate() || !c.NextUpdate.After(now.Add(threshold))
}

// TBS returns the exact DER bytes covered by the signature,
// nil when the CRL was not parsed from DER.
func (c *CRL) TBS() []byte {
	if c.list == nil {
		return nil
	}
	return c.list.RawTBSRevocationList
}

// Signature returns the detached signature bytes
func (c *CRL) Signature() []byte {
	if c.list == nil {
		return nil
	}
	return c.list.Signature
}

// SignatureAlgorithm returns the signature algorithm of the list
func (c *CRL) SignatureAlgorithm() x509.SignatureAlgorithm {
	if c.list == nil {
		return x509.UnknownSignatureAlgorithm
	}
	return c.list.SignatureAlgorithm
}

// VerifySignature verifies the signature over the original tbsCertList
// bytes with the issuer's public key.
func (c *CRL) VerifySignature(issuer *x509.Certificate) error {
	if c.list == nil {
		return rverror.New(rverror.CodePolicy, "signature material not available")
	}
	if err := c.list.CheckSignatureFrom(issuer); err != nil {
		return rverror.New(rverror.CodeProtocol, "CRL signature verification failed").WithCause(err)
	}
	return nil
}
