package ocspclient

import (
	"crypto/x509"

	"github.com/effective-security/xrevoke/pkg/rverror"
)

// ValidateStaple parses and validates a stapled OCSP response for the
// subject certificate: signature, matching and freshness. The staple is
// checked with the default clock skew tolerance.
func ValidateStaple(staple []byte, subject, issuer *x509.Certificate) (*Response, error) {
	if len(staple) == 0 {
		return nil, rverror.New(rverror.CodePolicy, "no OCSP staple")
	}

	res, err := ParseResponse(staple, subject, issuer, nil)
	if err != nil {
		return res, err
	}

	now := NowFunc()
	if res.ThisUpdate.After(now.Add(DefaultClockSkewTolerance)) {
		return res, rverror.New(rverror.CodeProtocol, "stapled response thisUpdate is in the future")
	}
	if res.IsExpired(now) {
		return res, rverror.New(rverror.CodePolicy, "stapled response is expired")
	}
	return res, nil
}
