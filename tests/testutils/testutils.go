// Package testutils provides PKI fixtures for revocation tests.
package testutils

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"time"

	"github.com/effective-security/xpki/testca"
	"golang.org/x/crypto/ocsp"
)

var oidOCSPNonce = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 2}

// NewCA mints a self-signed CA entity
func NewCA(cn string) *testca.Entity {
	return testca.NewEntity(
		testca.Authority,
		testca.Subject(pkix.Name{
			CommonName: cn,
		}),
		testca.KeyUsage(x509.KeyUsageCertSign|x509.KeyUsageCRLSign|x509.KeyUsageDigitalSignature),
	)
}

// LeafSpec describes a leaf certificate to issue
type LeafSpec struct {
	CommonName string
	Serial     int64
	OCSPURLs   []string
	CRLURLs    []string
}

// IssueLeaf issues a leaf certificate with the given revocation endpoints
func IssueLeaf(ca *testca.Entity, spec LeafSpec) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(spec.Serial),
		Subject: pkix.Name{
			CommonName: spec.CommonName,
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		OCSPServer:            spec.OCSPURLs,
		CRLDistributionPoints: spec.CRLURLs,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Certificate, &key.PublicKey, ca.PrivateKey)
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

// CRLSpec describes a CRL to sign
type CRLSpec struct {
	Number     int64
	ThisUpdate time.Time
	NextUpdate time.Time
	Entries    []x509.RevocationListEntry
}

// MakeCRL signs a DER encoded CRL for the CA
func MakeCRL(ca *testca.Entity, spec CRLSpec) ([]byte, error) {
	template := &x509.RevocationList{
		Number:                    big.NewInt(spec.Number),
		ThisUpdate:                spec.ThisUpdate,
		NextUpdate:                spec.NextUpdate,
		RevokedCertificateEntries: spec.Entries,
	}
	return x509.CreateRevocationList(rand.Reader, template, ca.Certificate, ca.PrivateKey.(crypto.Signer))
}

// RevokedEntry returns a CRL entry for the serial with the reason code
func RevokedEntry(serial int64, reason int, revokedAt time.Time) x509.RevocationListEntry {
	return x509.RevocationListEntry{
		SerialNumber:   big.NewInt(serial),
		RevocationTime: revokedAt,
		ReasonCode:     reason,
	}
}

// MakeOCSPResponse signs an OCSP response for the template, echoing the
// nonce when one is supplied.
func MakeOCSPResponse(ca *testca.Entity, template ocsp.Response, nonce []byte) ([]byte, error) {
	if len(nonce) > 0 {
		value, err := asn1.Marshal(nonce)
		if err != nil {
			return nil, err
		}
		template.ExtraExtensions = append(template.ExtraExtensions, pkix.Extension{
			Id:    oidOCSPNonce,
			Value: value,
		})
	}
	return ocsp.CreateResponse(ca.Certificate, ca.Certificate, template, ca.PrivateKey.(crypto.Signer))
}

// ErrorResponse returns the DER of an OCSPResponse bearing only an
// error status, such as tryLater.
func ErrorResponse(status byte) []byte {
	return []byte{0x30, 0x03, 0x0a, 0x01, status}
}
