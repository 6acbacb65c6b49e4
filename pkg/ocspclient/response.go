package ocspclient

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"time"

	"github.com/effective-security/xrevoke/pkg/certid"
	"github.com/effective-security/xrevoke/pkg/rverror"
	"golang.org/x/crypto/ocsp"
)

var idPKIXOCSPBasic = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 1}

// OCSP response statuses, RFC 6960 §4.2.1. Value 4 is reserved.
const (
	StatusSuccessful       = 0
	StatusMalformedRequest = 1
	StatusInternalError    = 2
	StatusTryLater         = 3
	StatusSigRequired      = 5
	StatusUnauthorized     = 6
)

// ResponseStatusName returns the textual name of a response status
func ResponseStatusName(status int) string {
	switch status {
	case StatusSuccessful:
		return "successful"
	case StatusMalformedRequest:
		return "malformedRequest"
	case StatusInternalError:
		return "internalError"
	case StatusTryLater:
		return "tryLater"
	case StatusSigRequired:
		return "sigRequired"
	case StatusUnauthorized:
		return "unauthorized"
	}
	return "unknown"
}

// ASN.1 structures of an OCSP response, RFC 6960 §4.2.1
type responseASN1 struct {
	Status   asn1.Enumerated
	Response responseBytes `asn1:"explicit,tag:0,optional"`
}

type responseBytes struct {
	ResponseType asn1.ObjectIdentifier
	Response     []byte
}

type basicResponse struct {
	TBSResponseData    responseData
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          asn1.BitString
	Certificates       []asn1.RawValue `asn1:"explicit,tag:0,optional"`
}

type responseData struct {
	Raw                asn1.RawContent
	Version            int `asn1:"optional,default:0,explicit,tag:0"`
	RawResponderID     asn1.RawValue
	ProducedAt         time.Time `asn1:"generalized"`
	Responses          []singleResponseASN1
	ResponseExtensions []pkix.Extension `asn1:"explicit,tag:1,optional"`
}

type singleResponseASN1 struct {
	CertID           certIDASN
	Good             asn1.Flag        `asn1:"tag:0,optional"`
	Revoked          revokedInfo      `asn1:"tag:1,optional"`
	Unknown          asn1.Flag        `asn1:"tag:2,optional"`
	ThisUpdate       time.Time        `asn1:"generalized"`
	NextUpdate       time.Time        `asn1:"generalized,explicit,tag:0,optional"`
	SingleExtensions []pkix.Extension `asn1:"explicit,tag:1,optional"`
}

type revokedInfo struct {
	RevocationTime time.Time       `asn1:"generalized"`
	Reason         asn1.Enumerated `asn1:"explicit,tag:0,optional"`
}

// Response is a parsed and matched OCSP response
type Response struct {
	// ResponseStatus of the exchange, 0 when successful
	ResponseStatus int
	// Status of the certificate: ocsp.Good, ocsp.Revoked or ocsp.Unknown
	Status int
	// ProducedAt is when the responder signed the response
	ProducedAt time.Time
	// ThisUpdate is the time at which the status is known to be correct
	ThisUpdate time.Time
	// NextUpdate bounds the validity of the response, zero when absent
	NextUpdate time.Time
	// RevokedAt is set when Status is ocsp.Revoked
	RevokedAt time.Time
	// RevocationReason of a revoked certificate, RFC 5280 §5.3.1
	RevocationReason int
	// Nonce echoed by the responder, nil when absent
	Nonce []byte
	// CertID the response was matched against
	CertID *certid.CertID
	// TBS is the exact DER of the signed responseData
	TBS []byte
	// Signature over TBS
	Signature []byte
	// SignatureAlgorithm of the signature
	SignatureAlgorithm x509.SignatureAlgorithm
	// Raw is the DER encoding of the response
	Raw []byte
}

// IsExpired returns true when the response carries a nextUpdate bound
// in the past
func (r *Response) IsExpired(now time.Time) bool {
	return !r.NextUpdate.IsZero() && now.After(r.NextUpdate)
}

// ParseResponse decodes an OCSP response and matches it against the
// requested CertID. The signature is verified with the issuer's key, or
// with a delegated responder certificate that the issuer signed.
func ParseResponse(der []byte, subject, issuer *x509.Certificate, want *certid.CertID) (*Response, error) {
	var raw responseASN1
	rest, err := asn1.Unmarshal(der, &raw)
	if err != nil {
		return nil, rverror.New(rverror.CodeParse, "failed to parse OCSP response").WithCause(err)
	}
	if len(rest) > 0 {
		return nil, rverror.New(rverror.CodeParse, "trailing data after OCSP response")
	}

	res := &Response{
		ResponseStatus: int(raw.Status),
		Raw:            der,
	}
	if res.ResponseStatus != StatusSuccessful {
		return res, rverror.New(rverror.CodeProtocol,
			"responder returned status: %s", ResponseStatusName(res.ResponseStatus))
	}

	if !raw.Response.ResponseType.Equal(idPKIXOCSPBasic) {
		return res, rverror.New(rverror.CodeProtocol,
			"unsupported response type: %v", raw.Response.ResponseType)
	}

	var basic basicResponse
	if _, err := asn1.Unmarshal(raw.Response.Response, &basic); err != nil {
		return nil, rverror.New(rverror.CodeParse, "failed to parse basic OCSP response").WithCause(err)
	}

	single, matched, err := selectSingleResponse(basic.TBSResponseData.Responses, want)
	if err != nil {
		return nil, err
	}
	res.CertID = matched

	// signature verification and status decoding, including delegated
	// responders signed by the issuer
	parsed, err := ocsp.ParseResponseForCert(der, subject, issuer)
	if err != nil {
		return nil, rverror.New(rverror.CodeProtocol, "OCSP response verification failed").WithCause(err)
	}

	res.Status = parsed.Status
	res.ProducedAt = parsed.ProducedAt
	res.ThisUpdate = parsed.ThisUpdate
	res.NextUpdate = parsed.NextUpdate
	res.RevokedAt = parsed.RevokedAt
	res.RevocationReason = parsed.RevocationReason
	res.TBS = parsed.TBSResponseData
	res.Signature = parsed.Signature
	res.SignatureAlgorithm = parsed.SignatureAlgorithm

	res.Nonce = findNonce(basic.TBSResponseData.ResponseExtensions)
	if res.Nonce == nil {
		res.Nonce = findNonce(single.SingleExtensions)
	}

	return res, nil
}

// selectSingleResponse returns the single response matching the wanted
// CertID. With a nil want, a sole single response is accepted.
func selectSingleResponse(responses []singleResponseASN1, want *certid.CertID) (*singleResponseASN1, *certid.CertID, error) {
	if len(responses) == 0 {
		return nil, nil, rverror.New(rverror.CodeProtocol, "no single responses in OCSP response")
	}

	if want == nil {
		if len(responses) > 1 {
			return nil, nil, rverror.New(rverror.CodeProtocol, "ambiguous OCSP response: %d single responses", len(responses))
		}
		id, err := toCertID(&responses[0].CertID)
		if err != nil {
			return nil, nil, err
		}
		return &responses[0], id, nil
	}

	for i := range responses {
		id, err := toCertID(&responses[i].CertID)
		if err != nil {
			continue
		}
		if id.Equal(want) {
			return &responses[i], id, nil
		}
	}
	return nil, nil, rverror.New(rverror.CodeProtocol, "no single response matches the requested certificate")
}

func toCertID(cert *certIDASN) (*certid.CertID, error) {
	hash, err := certid.HashFromOID(cert.HashAlgorithm.Algorithm)
	if err != nil {
		return nil, err
	}
	return &certid.CertID{
		HashAlgorithm:  hash,
		IssuerNameHash: cert.NameHash,
		IssuerKeyHash:  cert.IssuerKeyHash,
		SerialNumber:   cert.SerialNumber,
	}, nil
}

func findNonce(exts []pkix.Extension) []byte {
	for _, ext := range exts {
		if ext.Id.Equal(oidOCSPNonce) {
			var nonce []byte
			if _, err := asn1.Unmarshal(ext.Value, &nonce); err == nil {
				return nonce
			}
			// some responders echo the raw value without the octet wrapper
			return ext.Value
		}
	}
	return nil
}
