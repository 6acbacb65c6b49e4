package crl

import (
	"bytes"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"time"

	"github.com/effective-security/xlog"
	"github.com/effective-security/xrevoke/pkg/rverror"
)

// PEMLabel is the envelope label of a PEM encoded CRL
const PEMLabel = "X509 CRL"

var (
	oidExtensionReasonCode     = asn1.ObjectIdentifier{2, 5, 29, 21}
	oidExtensionInvalidityDate = asn1.ObjectIdentifier{2, 5, 29, 24}
)

var pemPrefix = []byte("-----BEGIN")

// Parse decodes a PEM or DER encoded CRL, sniffing the input
func Parse(data []byte) (*CRL, error) {
	if bytes.HasPrefix(bytes.TrimSpace(data), pemPrefix) {
		return ParsePEM(data)
	}
	return ParseDER(data)
}

// ParsePEM decodes a CRL from a PEM envelope with the "X509 CRL" label
func ParsePEM(data []byte) (*CRL, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != PEMLabel {
		return nil, rverror.New(rverror.CodeParse, "invalid PEM envelope")
	}
	return ParseDER(block.Bytes)
}

// ToPEM returns the PEM encoding of a DER CertificateList
func ToPEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  PEMLabel,
		Bytes: der,
	})
}

// ParseDER decodes a DER encoded CertificateList.
// The exact bytes of tbsCertList are preserved for signature verification.
func ParseDER(der []byte) (*CRL, error) {
	list, err := x509.ParseRevocationList(der)
	if err != nil {
		return nil, rverror.New(rverror.CodeParse, "failed to parse CRL").WithCause(err)
	}

	c := &CRL{
		RawIssuer:  list.RawIssuer,
		Issuer:     list.Issuer.String(),
		ThisUpdate: list.ThisUpdate,
		NextUpdate: list.NextUpdate,
		Number:     list.Number,
		Entries:    make(map[string]*Entry, len(list.RevokedCertificateEntries)),
		Raw:        der,
		list:       list,
	}

	if c.Number == nil {
		c.Number = big.NewInt(0)
		c.Warnings = append(c.Warnings, "CRL Number extension is absent")
		logger.KV(xlog.WARNING,
			"reason", "no_crl_number",
			"issuer", c.Issuer,
		)
	}
	if c.Number.Sign() < 0 {
		return nil, rverror.New(rverror.CodeParse, "negative CRL number: %s", c.Number.String())
	}

	for _, rc := range list.RevokedCertificateEntries {
		if rc.SerialNumber.Sign() < 0 {
			return nil, rverror.New(rverror.CodeParse, "negative serial number: %s", rc.SerialNumber.String())
		}
		entry := &Entry{
			SerialNumber:   SerialKey(rc.SerialNumber),
			RevocationDate: rc.RevocationTime,
		}
		if err := parseEntryExtensions(entry, rc.Extensions); err != nil {
			return nil, err
		}
		if _, ok := c.Entries[entry.SerialNumber]; ok {
			return nil, rverror.New(rverror.CodeParse, "duplicate serial number: %s", entry.SerialNumber)
		}
		c.Entries[entry.SerialNumber] = entry
	}

	return c, nil
}

func parseEntryExtensions(entry *Entry, exts []pkix.Extension) error {
	for _, ext := range exts {
		switch {
		case ext.Id.Equal(oidExtensionReasonCode):
			var reason asn1.Enumerated
			if _, err := asn1.Unmarshal(ext.Value, &reason); err != nil {
				return rverror.New(rverror.CodeParse, "invalid Reason Code extension").WithCause(err)
			}
			code := int(reason)
			entry.ReasonCode = &code
		case ext.Id.Equal(oidExtensionInvalidityDate):
			var invalidity time.Time
			if _, err := asn1.Unmarshal(ext.Value, &invalidity); err != nil {
				return rverror.New(rverror.CodeParse, "invalid Invalidity Date extension").WithCause(err)
			}
			entry.InvalidityDate = &invalidity
		}
	}
	return nil
}
