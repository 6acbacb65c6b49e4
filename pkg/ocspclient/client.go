package ocspclient

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"time"

	"github.com/effective-security/metrics"
	"github.com/effective-security/xlog"
	"github.com/effective-security/xrevoke/pkg/httpfetch"
	"github.com/effective-security/xrevoke/pkg/rverror"
	"github.com/effective-security/xrevoke/x/urlutil"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xrevoke/pkg", "ocspclient")

var (
	keyForOCSPReqPerf   = "ocsp_request_perf"
	keyForOCSPCacheHit  = "ocsp_cache_hit"
	keyForOCSPCacheMiss = "ocsp_cache_miss"
)

// ContentTypeRequest is the media type of an OCSP request
const ContentTypeRequest = "application/ocsp-request"

// DefaultClockSkewTolerance allows for responder clock drift
const DefaultClockSkewTolerance = 5 * time.Minute

// Config provides client configuration
type Config struct {
	// Hash to use for the CertID, SHA-1 by default
	Hash crypto.Hash

	// DisableNonce omits the request nonce
	DisableNonce bool

	// DisableCache turns off the per-CertID response cache
	DisableCache bool

	// ClockSkewTolerance allows for responder clock drift, 5m by default
	ClockSkewTolerance time.Duration

	// CacheEntries bounds the response cache
	CacheEntries int
}

// Client queries OCSP responders
type Client struct {
	http     *httpfetch.Client
	cfg      Config
	cache    *responseCache
	inflight flightGroup
}

// New creates a Client on the given HTTP client
func New(http *httpfetch.Client, cfg Config) (*Client, error) {
	if cfg.Hash == 0 {
		cfg.Hash = crypto.SHA1
	}
	if cfg.ClockSkewTolerance == 0 {
		cfg.ClockSkewTolerance = DefaultClockSkewTolerance
	}

	c := &Client{
		http: http,
		cfg:  cfg,
	}
	if !cfg.DisableCache {
		cache, err := newResponseCache(cfg.CacheEntries)
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	return c, nil
}

// ResponderURL resolves the responder endpoint: the explicit URL when
// provided, else the first HTTP(S) OCSP entry of the subject's AIA
// extension.
func ResponderURL(subject *x509.Certificate, explicitURL string) string {
	if explicitURL != "" {
		return explicitURL
	}
	for _, u := range subject.OCSPServer {
		if urlutil.IsHTTP(u) {
			return u
		}
	}
	return ""
}

// Check queries the revocation status of subject. Concurrent checks for
// the same CertID coalesce onto a single responder exchange.
func (c *Client) Check(ctx context.Context, subject, issuer *x509.Certificate, explicitURL string) (*Response, error) {
	req, err := CreateRequest(subject, issuer, RequestOptions{
		Hash:         c.cfg.Hash,
		DisableNonce: c.cfg.DisableNonce,
	})
	if err != nil {
		return nil, err
	}

	key := req.CertID.Key()
	if c.cache != nil {
		if cached := c.cache.Get(key); cached != nil {
			metrics.IncrCounter(keyForOCSPCacheHit, 1)
			return cached, nil
		}
		metrics.IncrCounter(keyForOCSPCacheMiss, 1)
	}

	url := ResponderURL(subject, explicitURL)
	if url == "" {
		logger.KV(xlog.WARNING,
			"reason", "no_responder_url",
			"subject", subject.Subject.String(),
		)
		return nil, rverror.New(rverror.CodePolicy, "no OCSP responder URL")
	}

	return c.inflight.Do(key, func() (*Response, error) {
		res, err := c.query(ctx, req, subject, issuer, url)
		if err != nil {
			return res, err
		}
		if c.cache != nil {
			c.cache.Put(key, res)
		}
		return res, nil
	})
}

func (c *Client) query(ctx context.Context, req *Request, subject, issuer *x509.Certificate, url string) (*Response, error) {
	started := time.Now()
	body, err := c.http.Post(ctx, url, ContentTypeRequest, req.Raw)
	if err != nil {
		return nil, err
	}
	metrics.MeasureSince(keyForOCSPReqPerf, started, metrics.Tag{Name: "url", Value: url})

	res, err := ParseResponse(body, subject, issuer, req.CertID)
	if err != nil {
		return res, err
	}

	if err := c.checkNonce(req, res); err != nil {
		return res, err
	}
	if err := c.checkFreshness(res); err != nil {
		return res, err
	}

	logger.KV(xlog.DEBUG,
		"status", res.Status,
		"url", url,
		"serial", req.CertID.SerialNumber.Text(16),
		"this_update", res.ThisUpdate,
		"next_update", res.NextUpdate,
	)

	return res, nil
}

// checkNonce requires nonce equality when both sides included one;
// a nonce missing on one side is a warning, not fatal.
func (c *Client) checkNonce(req *Request, res *Response) error {
	switch {
	case len(req.Nonce) > 0 && len(res.Nonce) > 0:
		if !bytes.Equal(req.Nonce, res.Nonce) {
			return rverror.New(rverror.CodeProtocol, "nonce mismatch")
		}
	case len(req.Nonce) > 0:
		logger.KV(xlog.WARNING,
			"reason", "nonce_not_echoed",
			"serial", req.CertID.SerialNumber.Text(16),
		)
	case len(res.Nonce) > 0:
		logger.KV(xlog.WARNING,
			"reason", "unsolicited_nonce",
			"serial", req.CertID.SerialNumber.Text(16),
		)
	}
	return nil
}

func (c *Client) checkFreshness(res *Response) error {
	now := NowFunc()
	if res.ThisUpdate.After(now.Add(c.cfg.ClockSkewTolerance)) {
		return rverror.New(rverror.CodeProtocol,
			"OCSP response thisUpdate is in the future: %s", res.ThisUpdate.UTC().Format(time.RFC3339))
	}
	if res.IsExpired(now) {
		return rverror.New(rverror.CodePolicy,
			"OCSP response is stale: nextUpdate=%s", res.NextUpdate.UTC().Format(time.RFC3339))
	}
	return nil
}
