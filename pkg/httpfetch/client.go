// Package httpfetch provides a small HTTP client for fetching DER payloads:
// CRL downloads and OCSP exchanges.
package httpfetch

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/effective-security/xlog"
	"github.com/effective-security/xrevoke/pkg/rverror"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xrevoke/pkg", "httpfetch")

// DefaultUserAgent is sent with each request
const DefaultUserAgent = "xrevoke/1.0"

// maxResponseBytes bounds a single fetched payload
const maxResponseBytes = 16 << 20

// Client fetches binary payloads over HTTP(S)
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// New creates a Client from the config
func New(cfg Config) (*Client, error) {
	cfg.applyDefaults()

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{
		Timeout: cfg.ConnectTimeout,
	}).DialContext
	tr.TLSHandshakeTimeout = cfg.ConnectTimeout
	tr.DisableKeepAlives = true

	if cfg.TLS != nil {
		tlsCfg, err := cfg.TLS.tlsConfig()
		if err != nil {
			return nil, err
		}
		tr.TLSClientConfig = tlsCfg
	}

	return &Client{
		httpClient: &http.Client{
			Transport: tr,
			Timeout:   cfg.ResponseTimeout,
		},
		userAgent: cfg.UserAgent,
	}, nil
}

// WithTimeout returns a shallow copy of the client with a different
// total request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	cp := *c
	hc := *c.httpClient
	hc.Timeout = timeout
	cp.httpClient = &hc
	return &cp
}

// Get fetches the URL and returns the response body
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, rverror.New(rverror.CodeTransport, "invalid URL: %s", rawURL).WithCause(err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	return c.do(req)
}

// Post sends body to the URL with the given content type
// and returns the response body
func (c *Client) Post(ctx context.Context, rawURL, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, rverror.New(rverror.CodeTransport, "invalid URL: %s", rawURL).WithCause(err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	req.Header.Set("Connection", "close")

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	started := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		logger.KV(xlog.WARNING,
			"method", req.Method,
			"url", req.URL.String(),
			"err", err.Error(),
		)
		return nil, rverror.New(rverror.CodeTransport, "request failed: %s", req.URL.String()).WithCause(err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, rverror.New(rverror.CodeTransport, "failed to read response: %s", req.URL.String()).WithCause(err)
	}

	logger.KV(xlog.DEBUG,
		"method", req.Method,
		"url", req.URL.String(),
		"status", res.StatusCode,
		"size", len(body),
		"elapsed", time.Since(started).String(),
	)

	switch {
	case res.StatusCode == http.StatusNotFound:
		return nil, rverror.New(rverror.CodeNotFound, "not found: %s", req.URL.String())
	case res.StatusCode >= 300:
		return nil, rverror.New(rverror.CodeTransport, "unexpected status %d: %s", res.StatusCode, req.URL.String())
	}

	return body, nil
}
