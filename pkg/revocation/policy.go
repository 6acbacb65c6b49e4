// Package revocation decides whether a certificate is currently revoked,
// combining OCSP and CRL verdicts under a configurable policy.
package revocation

import (
	"github.com/effective-security/xrevoke/pkg/rverror"
	"gopkg.in/yaml.v3"
)

// Policy selects the revocation sources and the failure handling
type Policy uint8

const (
	// OCSPPreferred checks OCSP and falls back to CRL on failure.
	// It is the zero value: an unconfigured policy prefers OCSP.
	OCSPPreferred Policy = iota
	// Disabled never checks revocation
	Disabled
	// OCSPOnly checks OCSP, failures propagate
	OCSPOnly
	// CRLOnly checks CRL, failures propagate
	CRLOnly
	// CRLPreferred checks CRL and falls back to OCSP on failure
	CRLPreferred
	// SoftFail tries both sources and accepts the certificate
	// when neither is conclusive
	SoftFail
	// HardFail tries both sources and rejects the certificate
	// unless the sources conclusively clear it
	HardFail
)

// DefaultPolicy is used when the configuration does not name one
const DefaultPolicy = OCSPPreferred

func (p Policy) String() string {
	switch p {
	case Disabled:
		return "disabled"
	case OCSPOnly:
		return "ocsp_only"
	case CRLOnly:
		return "crl_only"
	case OCSPPreferred:
		return "ocsp_preferred"
	case CRLPreferred:
		return "crl_preferred"
	case SoftFail:
		return "soft_fail"
	case HardFail:
		return "hard_fail"
	}
	return "unknown"
}

// ParsePolicy returns the policy for its configuration name
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "ocsp_preferred":
		return OCSPPreferred, nil
	case "disabled":
		return Disabled, nil
	case "ocsp_only":
		return OCSPOnly, nil
	case "crl_only":
		return CRLOnly, nil
	case "crl_preferred":
		return CRLPreferred, nil
	case "soft_fail":
		return SoftFail, nil
	case "hard_fail":
		return HardFail, nil
	}
	return 0, rverror.New(rverror.CodePolicy, "unsupported policy: %q", name)
}

// MarshalYAML implements yaml.Marshaler
func (p Policy) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (p *Policy) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	parsed, err := ParsePolicy(name)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
