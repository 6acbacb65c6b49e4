package crl

import (
	"crypto/x509"

	"github.com/effective-security/xrevoke/x/urlutil"
)

// DistributionPoints returns the HTTP(S) URI distribution points of the
// certificate's cRLDistributionPoints extension, in certificate order.
// Other general name forms, such as directoryName, are skipped.
func DistributionPoints(cert *x509.Certificate) []string {
	return urlutil.FilterHTTP(cert.CRLDistributionPoints)
}
