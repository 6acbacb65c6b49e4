package httpfetch

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

const (
	// DefaultConnectTimeout specifies the timeout to establish a connection
	DefaultConnectTimeout = 5 * time.Second
	// DefaultResponseTimeout specifies the total request timeout
	DefaultResponseTimeout = 10 * time.Second
)

// TLSInfo contains configuration info for the client TLS
type TLSInfo struct {
	// CertFile specifies location of the cert
	CertFile string `json:"cert,omitempty" yaml:"cert,omitempty"`

	// KeyFile specifies location of the key
	KeyFile string `json:"key,omitempty" yaml:"key,omitempty"`

	// TrustedCAFile specifies location of the trusted Root file
	TrustedCAFile string `json:"trusted_ca,omitempty" yaml:"trusted_ca,omitempty"`
}

// Config provides client configuration
type Config struct {
	// ConnectTimeout specifies the timeout to establish a connection, 5s by default
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`

	// ResponseTimeout specifies the total request timeout, 10s by default
	ResponseTimeout time.Duration `json:"response_timeout,omitempty" yaml:"response_timeout,omitempty"`

	// UserAgent to send with each request
	UserAgent string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`

	// TLS provides TLS config for the client
	TLS *TLSInfo `json:"tls,omitempty" yaml:"tls,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
}

// tlsConfig builds tls.Config from TLSInfo, expanding ~ in file locations
func (t *TLSInfo) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if t.TrustedCAFile != "" {
		file, err := homedir.Expand(t.TrustedCAFile)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		pem, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Errorf("failed to parse trusted CA: %s", file)
		}
		cfg.RootCAs = pool
	}

	if t.CertFile != "" {
		certFile, err := homedir.Expand(t.CertFile)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		keyFile, err := homedir.Expand(t.KeyFile)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
