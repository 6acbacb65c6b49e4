package crlcache

import (
	"context"
	"crypto/x509"

	"golang.org/x/crypto/ocsp"
)

// Verifier provides an interface to check revocation status
type Verifier interface {
	// Update refreshes the cached CRLs that are expiring
	Update(ctx context.Context) error

	// Verify returns OCSP status:
	//   ocsp.Revoked - the certificate found in CRL
	//   ocsp.Good - the certificate not found in a valid CRL
	//   ocsp.Unknown - no CRL found for the certificate
	Verify(ctx context.Context, crt *x509.Certificate, issuer *x509.Certificate) (int, error)
}

// Checker resolves a certificate's revocation status from CRLs,
// refreshing the cache as needed.
type Checker struct {
	updater   *Updater
	validator *Validator
}

// NewChecker returns a Checker over the updater and validator
func NewChecker(updater *Updater, validator *Validator) *Checker {
	return &Checker{
		updater:   updater,
		validator: validator,
	}
}

// Check ensures a current CRL for the subject's issuer and classifies
// the subject against it. A nil status is returned when no CRL source
// is available for the certificate.
func (c *Checker) Check(ctx context.Context, subject, issuer *x509.Certificate) (*Status, error) {
	list, err := c.updater.UpdateFromCertificate(ctx, subject, false)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, nil
	}
	return c.validator.CheckRevocation(subject, issuer, list)
}

// Update refreshes expiring CRLs
func (c *Checker) Update(ctx context.Context) error {
	c.updater.refreshExpiring(ctx)
	return nil
}

// Verify implements the Verifier interface
func (c *Checker) Verify(ctx context.Context, crt *x509.Certificate, issuer *x509.Certificate) (int, error) {
	status, err := c.Check(ctx, crt, issuer)
	if err != nil {
		return ocsp.Unknown, err
	}
	if status == nil {
		return ocsp.Unknown, nil
	}
	if status.Revoked {
		return ocsp.Revoked, nil
	}
	return ocsp.Good, nil
}
