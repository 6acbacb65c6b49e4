package revocation

import (
	"os"
	"time"

	"github.com/effective-security/xrevoke/pkg/httpfetch"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config provides configuration of the revocation subsystem.
// All fields are optional with stated defaults.
type Config struct {
	// Policy selects the revocation sources, ocsp_preferred by default
	Policy Policy `json:"policy,omitempty" yaml:"policy,omitempty"`

	// ConnectTimeout to establish a connection, 5s by default
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`

	// ResponseTimeout for a complete OCSP exchange, 10s by default
	ResponseTimeout time.Duration `json:"response_timeout,omitempty" yaml:"response_timeout,omitempty"`

	// CRLFetchTimeout for a complete CRL download, 30s by default
	CRLFetchTimeout time.Duration `json:"crl_fetch_timeout,omitempty" yaml:"crl_fetch_timeout,omitempty"`

	// UseOCSPNonce includes a nonce in OCSP requests, true by default
	UseOCSPNonce *bool `json:"use_ocsp_nonce,omitempty" yaml:"use_ocsp_nonce,omitempty"`

	// HashAlgorithm for the OCSP CertID: SHA1 (default) or SHA256
	HashAlgorithm string `json:"hash_algorithm,omitempty" yaml:"hash_algorithm,omitempty"`

	// ClockSkewTolerance for OCSP freshness checks, 5m by default
	ClockSkewTolerance time.Duration `json:"clock_skew_tolerance,omitempty" yaml:"clock_skew_tolerance,omitempty"`

	// CRLCacheMaxEntries bounds the CRL cache, 100 by default
	CRLCacheMaxEntries int `json:"crl_cache_max_entries,omitempty" yaml:"crl_cache_max_entries,omitempty"`

	// CRLCacheSoftTTL forces a CRL refresh even before nextUpdate, 1h by default
	CRLCacheSoftTTL time.Duration `json:"crl_cache_soft_ttl,omitempty" yaml:"crl_cache_soft_ttl,omitempty"`

	// CRLRefreshThreshold skips refresh when the cached CRL is not
	// expiring within this window, 1h by default
	CRLRefreshThreshold time.Duration `json:"crl_refresh_threshold,omitempty" yaml:"crl_refresh_threshold,omitempty"`

	// OCSPCacheEnabled caches responses per CertID, true by default
	OCSPCacheEnabled *bool `json:"ocsp_cache_enabled,omitempty" yaml:"ocsp_cache_enabled,omitempty"`

	// TLS provides TLS config for outbound fetches
	TLS *httpfetch.TLSInfo `json:"tls,omitempty" yaml:"tls,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = httpfetch.DefaultConnectTimeout
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = httpfetch.DefaultResponseTimeout
	}
	if c.CRLFetchTimeout == 0 {
		c.CRLFetchTimeout = 30 * time.Second
	}
	if c.ClockSkewTolerance == 0 {
		c.ClockSkewTolerance = 5 * time.Minute
	}
	if c.CRLCacheSoftTTL == 0 {
		c.CRLCacheSoftTTL = time.Hour
	}
	if c.CRLRefreshThreshold == 0 {
		c.CRLRefreshThreshold = time.Hour
	}
}

// UseNonce returns the effective use_ocsp_nonce setting
func (c *Config) UseNonce() bool {
	return c.UseOCSPNonce == nil || *c.UseOCSPNonce
}

// CacheEnabled returns the effective ocsp_cache_enabled setting
func (c *Config) CacheEnabled() bool {
	return c.OCSPCacheEnabled == nil || *c.OCSPCacheEnabled
}

// LoadConfig reads the configuration from a YAML file,
// expanding ~ in the location.
func LoadConfig(file string) (*Config, error) {
	file, err := homedir.Expand(file)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WithMessagef(err, "failed to parse configuration: %s", file)
	}
	return &cfg, nil
}
