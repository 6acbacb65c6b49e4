// Package ocspclient implements the client side of OCSP, RFC 6960:
// request construction, response matching, freshness and nonce checks.
package ocspclient

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"net/url"

	"github.com/effective-security/xrevoke/pkg/certid"
	"github.com/effective-security/xrevoke/pkg/rverror"
	"github.com/effective-security/xrevoke/x/urlutil"
	"github.com/pkg/errors"
)

// NonceSize is the size of the request nonce in bytes
const NonceSize = 16

var (
	oidOCSPNonce = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 2}
)

// ASN.1 structures of an OCSP request, RFC 6960 §4.1.1
type certIDASN struct {
	HashAlgorithm pkix.AlgorithmIdentifier
	NameHash      []byte
	IssuerKeyHash []byte
	SerialNumber  *big.Int
}

type singleRequest struct {
	Cert certIDASN
}

type tbsRequest struct {
	Version           int `asn1:"explicit,tag:0,default:0,optional"`
	RequestList       []singleRequest
	RequestExtensions []pkix.Extension `asn1:"explicit,tag:2,optional,omitempty"`
}

type ocspRequest struct {
	TBSRequest tbsRequest
}

// Request is a constructed OCSP request. Requests are disposable:
// one is built per check.
type Request struct {
	// CertID identifies the certificate being queried
	CertID *certid.CertID
	// Nonce is the random request nonce, nil when disabled
	Nonce []byte
	// Raw is the DER encoding of the request
	Raw []byte
}

// RequestOptions control request construction
type RequestOptions struct {
	// Hash to use for the CertID, SHA-1 by default
	Hash crypto.Hash
	// DisableNonce omits the nonce extension
	DisableNonce bool
}

// CreateRequest builds a DER encoded OCSP request for the subject
// certificate issued by issuer.
func CreateRequest(subject, issuer *x509.Certificate, opts RequestOptions) (*Request, error) {
	hash := opts.Hash
	if hash == 0 {
		hash = crypto.SHA1
	}

	id, err := certid.New(subject, issuer, hash)
	if err != nil {
		return nil, err
	}

	req := &Request{
		CertID: id,
	}
	if !opts.DisableNonce {
		nonce := make([]byte, NonceSize)
		if _, err := rand.Read(nonce); err != nil {
			return nil, errors.WithStack(err)
		}
		req.Nonce = nonce
	}

	req.Raw, err = encodeRequest(id, req.Nonce)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func encodeRequest(id *certid.CertID, nonce []byte) ([]byte, error) {
	hashOID, err := certid.HashOID(id.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	tbs := tbsRequest{
		RequestList: []singleRequest{
			{
				Cert: certIDASN{
					HashAlgorithm: pkix.AlgorithmIdentifier{
						Algorithm:  hashOID,
						Parameters: asn1.NullRawValue,
					},
					NameHash:      id.IssuerNameHash,
					IssuerKeyHash: id.IssuerKeyHash,
					SerialNumber:  id.SerialNumber,
				},
			},
		},
	}

	if len(nonce) > 0 {
		value, err := asn1.Marshal(nonce)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		tbs.RequestExtensions = []pkix.Extension{
			{
				Id:    oidOCSPNonce,
				Value: value,
			},
		}
	}

	der, err := asn1.Marshal(ocspRequest{TBSRequest: tbs})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return der, nil
}

// ParseRequest decodes a DER encoded OCSP request
func ParseRequest(der []byte) (*Request, error) {
	var req ocspRequest
	rest, err := asn1.Unmarshal(der, &req)
	if err != nil {
		return nil, rverror.New(rverror.CodeParse, "failed to parse OCSP request").WithCause(err)
	}
	if len(rest) > 0 {
		return nil, rverror.New(rverror.CodeParse, "trailing data after OCSP request")
	}
	if len(req.TBSRequest.RequestList) != 1 {
		return nil, rverror.New(rverror.CodeParse, "expected one request, got %d", len(req.TBSRequest.RequestList))
	}

	cert := req.TBSRequest.RequestList[0].Cert
	hash, err := certid.HashFromOID(cert.HashAlgorithm.Algorithm)
	if err != nil {
		return nil, err
	}

	out := &Request{
		CertID: &certid.CertID{
			HashAlgorithm:  hash,
			IssuerNameHash: cert.NameHash,
			IssuerKeyHash:  cert.IssuerKeyHash,
			SerialNumber:   cert.SerialNumber,
		},
		Raw: der,
	}

	for _, ext := range req.TBSRequest.RequestExtensions {
		if ext.Id.Equal(oidOCSPNonce) {
			var nonce []byte
			if _, err := asn1.Unmarshal(ext.Value, &nonce); err != nil {
				return nil, rverror.New(rverror.CodeParse, "invalid nonce extension").WithCause(err)
			}
			out.Nonce = nonce
		}
	}

	return out, nil
}

// NonceHex returns the hex form of the nonce for transport-agnostic storage
func (r *Request) NonceHex() string {
	return hex.EncodeToString(r.Nonce)
}

// Base64 returns the base64 form of the DER request
func (r *Request) Base64() string {
	return base64.StdEncoding.EncodeToString(r.Raw)
}

// GetURL returns the HTTP GET form of the request against the base URL
func (r *Request) GetURL(base string) string {
	return urlutil.JoinPath(base, url.PathEscape(r.Base64()))
}
