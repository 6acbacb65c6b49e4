// Package certid computes the OCSP CertID tuple identifying a certificate
// to a responder, per RFC 6960 §4.1.1.
package certid

import (
	"bytes"
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/effective-security/xrevoke/pkg/rverror"
)

// CertID identifies a certificate by the issuer name hash, the issuer key
// hash and the serial number. The hash algorithm bound to a CertID is the
// algorithm used to produce its hashes.
type CertID struct {
	HashAlgorithm  crypto.Hash
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	SerialNumber   *big.Int
}

// New computes the CertID of subject, issued by issuer.
// The name hash is over the issuer's canonical DER-encoded subject name;
// the key hash is over the raw subject public key bits, not the full
// SPKI structure.
func New(subject, issuer *x509.Certificate, hash crypto.Hash) (*CertID, error) {
	if subject == nil || issuer == nil {
		return nil, rverror.New(rverror.CodePolicy, "subject and issuer certificates are required")
	}

	nameHash, err := Hash(hash, issuer.RawSubject)
	if err != nil {
		return nil, err
	}

	keyBits, err := IssuerKeyBits(issuer)
	if err != nil {
		return nil, err
	}
	keyHash, err := Hash(hash, keyBits)
	if err != nil {
		return nil, err
	}

	return &CertID{
		HashAlgorithm:  hash,
		IssuerNameHash: nameHash,
		IssuerKeyHash:  keyHash,
		SerialNumber:   subject.SerialNumber,
	}, nil
}

// Equal returns true if both CertID have the same hash algorithm,
// name hash, key hash and serial number.
func (id *CertID) Equal(other *CertID) bool {
	if id == nil || other == nil {
		return id == other
	}
	return id.HashAlgorithm == other.HashAlgorithm &&
		bytes.Equal(id.IssuerNameHash, other.IssuerNameHash) &&
		bytes.Equal(id.IssuerKeyHash, other.IssuerKeyHash) &&
		id.SerialNumber.Cmp(other.SerialNumber) == 0
}

// Key returns a stable string form, suitable as a cache key.
func (id *CertID) Key() string {
	return fmt.Sprintf("%d/%s/%s/%s",
		id.HashAlgorithm,
		hex.EncodeToString(id.IssuerNameHash),
		hex.EncodeToString(id.IssuerKeyHash),
		id.SerialNumber.Text(16))
}

// String returns a loggable form
func (id *CertID) String() string {
	return fmt.Sprintf("certid: serial=%s, name_hash=%s",
		id.SerialNumber.Text(16), hex.EncodeToString(id.IssuerNameHash))
}

// publicKeyInfo mirrors the SubjectPublicKeyInfo structure,
// to access the raw key bits.
type publicKeyInfo struct {
	Raw       asn1.RawContent
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

// IssuerKeyBits returns the raw bits of the issuer's subject public key,
// with the algorithm identifier stripped.
func IssuerKeyBits(issuer *x509.Certificate) ([]byte, error) {
	var spki publicKeyInfo
	if _, err := asn1.Unmarshal(issuer.RawSubjectPublicKeyInfo, &spki); err != nil {
		return nil, rverror.New(rverror.CodeParse, "failed to decode SubjectPublicKeyInfo").WithCause(err)
	}
	return spki.PublicKey.RightAlign(), nil
}

// Hash returns the digest of data under the given algorithm.
func Hash(hash crypto.Hash, data []byte) ([]byte, error) {
	if !hash.Available() {
		return nil, rverror.New(rverror.CodePolicy, "hash algorithm not available: %d", hash)
	}
	h := hash.New()
	h.Write(data)
	return h.Sum(nil), nil
}

var hashOIDs = map[crypto.Hash]asn1.ObjectIdentifier{
	crypto.SHA1:   asn1.ObjectIdentifier([]int{1, 3, 14, 3, 2, 26}),
	crypto.SHA256: asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 1}),
	crypto.SHA384: asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 2}),
	crypto.SHA512: asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 3}),
}

// HashOID returns the ASN.1 object identifier of the hash algorithm.
func HashOID(hash crypto.Hash) (asn1.ObjectIdentifier, error) {
	oid, ok := hashOIDs[hash]
	if !ok {
		return nil, rverror.New(rverror.CodePolicy, "unsupported hash algorithm: %d", hash)
	}
	return oid, nil
}

// HashFromOID returns the hash algorithm for the given object identifier.
func HashFromOID(oid asn1.ObjectIdentifier) (crypto.Hash, error) {
	for h, o := range hashOIDs {
		if o.Equal(oid) {
			return h, nil
		}
	}
	return 0, rverror.New(rverror.CodeParse, "unsupported hash algorithm: %v", oid)
}

// HashByName returns the hash algorithm for its configuration name.
func HashByName(name string) (crypto.Hash, error) {
	switch name {
	case "", "SHA1", "sha1":
		return crypto.SHA1, nil
	case "SHA256", "sha256":
		return crypto.SHA256, nil
	case "SHA384", "sha384":
		return crypto.SHA384, nil
	case "SHA512", "sha512":
		return crypto.SHA512, nil
	}
	return 0, rverror.New(rverror.CodePolicy, "unsupported hash algorithm: %q", name)
}
