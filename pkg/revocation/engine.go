package revocation

import (
	"context"
	"crypto/x509"
	"sync"
	"time"

	"github.com/effective-security/metrics"
	"github.com/effective-security/x/guid"
	"github.com/effective-security/xlog"
	"github.com/effective-security/xrevoke/pkg/certid"
	"github.com/effective-security/xrevoke/pkg/crl"
	"github.com/effective-security/xrevoke/pkg/crlcache"
	"github.com/effective-security/xrevoke/pkg/httpfetch"
	"github.com/effective-security/xrevoke/pkg/ocspclient"
	"github.com/effective-security/xrevoke/pkg/rverror"
	"golang.org/x/crypto/ocsp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xrevoke/pkg", "revocation")

var keyForCheck = "revocation_check"

// OCSPSource queries an OCSP responder for the subject's status
type OCSPSource interface {
	Check(ctx context.Context, subject, issuer *x509.Certificate, explicitURL string) (*ocspclient.Response, error)
}

// CRLSource resolves the subject's status from CRLs.
// A nil status means no CRL source is available for the certificate.
type CRLSource interface {
	Check(ctx context.Context, subject, issuer *x509.Certificate) (*crlcache.Status, error)
}

// Checker is the revocation decision engine
type Checker struct {
	policy  Policy
	ocsp    OCSPSource
	crl     CRLSource
	ocspURL string

	mu   sync.Mutex
	last *Report
}

// NewChecker returns a Checker over the given sources
func NewChecker(policy Policy, ocspSource OCSPSource, crlSource CRLSource) *Checker {
	return &Checker{
		policy: policy,
		ocsp:   ocspSource,
		crl:    crlSource,
	}
}

// WithOCSPURL sets an explicit responder URL overriding the AIA extension
func (c *Checker) WithOCSPURL(url string) *Checker {
	c.ocspURL = url
	return c
}

// New builds the full revocation stack from the config
func New(cfg *Config) (*Checker, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.applyDefaults()

	httpClient, err := httpfetch.New(httpfetch.Config{
		ConnectTimeout:  cfg.ConnectTimeout,
		ResponseTimeout: cfg.ResponseTimeout,
		TLS:             cfg.TLS,
	})
	if err != nil {
		return nil, err
	}

	hash, err := certid.HashByName(cfg.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	ocspClient, err := ocspclient.New(httpClient, ocspclient.Config{
		Hash:               hash,
		DisableNonce:       !cfg.UseNonce(),
		DisableCache:       !cfg.CacheEnabled(),
		ClockSkewTolerance: cfg.ClockSkewTolerance,
	})
	if err != nil {
		return nil, err
	}

	cache, err := crlcache.NewCache(cfg.CRLCacheMaxEntries, cfg.CRLCacheSoftTTL)
	if err != nil {
		return nil, err
	}
	fetcher := crl.NewFetcher(httpClient, cfg.CRLFetchTimeout)
	updater := crlcache.NewUpdater(cache, fetcher, cfg.CRLRefreshThreshold)
	crlChecker := crlcache.NewChecker(updater, crlcache.NewValidator(nil))

	return NewChecker(cfg.Policy, ocspClient, crlChecker), nil
}

// outcome is the classified result of one source attempt
type outcome struct {
	status    SourceStatus
	reason    int
	revokedAt time.Time
	err       error
}

// Check resolves the revocation status of subject under the policy.
// The returned bool is true when the certificate is currently believed
// valid. A Revoked verdict is reported as false with a nil error; an
// error is returned only when the policy demands hard failure and every
// source failed.
func (c *Checker) Check(ctx context.Context, subject, issuer *x509.Certificate) (bool, *Report, error) {
	report := &Report{
		ID:           guid.MustCreate(),
		Policy:       c.policy.String(),
		Subject:      subject.Subject.String(),
		SerialNumber: subject.SerialNumber.Text(16),
	}

	result, err := c.evaluate(ctx, subject, issuer, report)

	report.Result = result
	report.CheckedAt = time.Now()

	c.mu.Lock()
	c.last = report
	c.mu.Unlock()

	metrics.IncrCounter(keyForCheck, 1,
		metrics.Tag{Name: "policy", Value: report.Policy},
		metrics.Tag{Name: "result", Value: resultTag(result)},
	)

	return result, report, err
}

func resultTag(result bool) string {
	if result {
		return "valid"
	}
	return "rejected"
}

func (c *Checker) evaluate(ctx context.Context, subject, issuer *x509.Certificate, report *Report) (bool, error) {
	switch c.policy {
	case Disabled:
		return true, nil

	case OCSPOnly:
		o := c.tryOCSP(ctx, subject, issuer, report)
		return concludeSingle(o)

	case CRLOnly:
		o := c.tryCRL(ctx, subject, issuer, report)
		return concludeSingle(o)

	case OCSPPreferred:
		o := c.tryOCSP(ctx, subject, issuer, report)
		if o.status.Conclusive() {
			return o.status == StatusGood, nil
		}
		fallback := c.tryCRL(ctx, subject, issuer, report)
		if fallback.status.Conclusive() {
			return fallback.status == StatusGood, nil
		}
		return false, combineErrors(o, fallback)

	case CRLPreferred:
		o := c.tryCRL(ctx, subject, issuer, report)
		if o.status.Conclusive() {
			return o.status == StatusGood, nil
		}
		fallback := c.tryOCSP(ctx, subject, issuer, report)
		if fallback.status.Conclusive() {
			return fallback.status == StatusGood, nil
		}
		return false, combineErrors(o, fallback)

	case SoftFail:
		// both sources are attempted: a Revoked verdict from the second
		// source overrides a Good from the first
		o := c.tryOCSP(ctx, subject, issuer, report)
		cr := c.tryCRL(ctx, subject, issuer, report)
		if o.status == StatusRevoked || cr.status == StatusRevoked {
			return false, nil
		}
		return true, nil

	case HardFail:
		o := c.tryOCSP(ctx, subject, issuer, report)
		cr := c.tryCRL(ctx, subject, issuer, report)
		if o.status == StatusRevoked || cr.status == StatusRevoked {
			return false, nil
		}
		if o.status == StatusGood && cr.status == StatusGood {
			return true, nil
		}
		if o.status == StatusGood || cr.status == StatusGood {
			// one source cleared the certificate: rejected, with the
			// other source's failure recorded in the report
			return false, nil
		}
		return false, combineErrors(o, cr)
	}

	return false, rverror.New(rverror.CodePolicy, "unsupported policy: %d", c.policy)
}

// concludeSingle resolves a single-source policy
func concludeSingle(o outcome) (bool, error) {
	switch o.status {
	case StatusGood:
		return true, nil
	case StatusRevoked:
		return false, nil
	}
	err := o.err
	if err == nil {
		err = rverror.New(rverror.CodePolicy, "revocation status unknown")
	}
	return false, err
}

func combineErrors(outcomes ...outcome) error {
	for _, o := range outcomes {
		if o.err != nil {
			return o.err
		}
	}
	return rverror.New(rverror.CodePolicy, "revocation status unknown")
}

func (c *Checker) tryOCSP(ctx context.Context, subject, issuer *x509.Certificate, report *Report) outcome {
	o := c.ocspOutcome(ctx, subject, issuer)
	report.recordAttempt(MethodOCSP, o)
	return o
}

func (c *Checker) ocspOutcome(ctx context.Context, subject, issuer *x509.Certificate) outcome {
	res, err := c.ocsp.Check(ctx, subject, issuer, c.ocspURL)
	if err != nil {
		logger.KV(xlog.WARNING,
			"method", MethodOCSP,
			"serial", subject.SerialNumber.Text(16),
			"err", err.Error(),
		)
		return outcome{status: StatusError, err: err}
	}

	switch res.Status {
	case ocsp.Good:
		return outcome{status: StatusGood}
	case ocsp.Revoked:
		return outcome{
			status:    StatusRevoked,
			reason:    res.RevocationReason,
			revokedAt: res.RevokedAt,
		}
	}
	return outcome{status: StatusUnknown}
}

func (c *Checker) tryCRL(ctx context.Context, subject, issuer *x509.Certificate, report *Report) outcome {
	o := c.crlOutcome(ctx, subject, issuer)
	report.recordAttempt(MethodCRL, o)
	return o
}

func (c *Checker) crlOutcome(ctx context.Context, subject, issuer *x509.Certificate) outcome {
	status, err := c.crl.Check(ctx, subject, issuer)
	if err != nil {
		logger.KV(xlog.WARNING,
			"method", MethodCRL,
			"serial", subject.SerialNumber.Text(16),
			"err", err.Error(),
		)
		return outcome{status: StatusError, err: err}
	}
	if status == nil {
		return outcome{status: StatusUnknown}
	}
	if status.Revoked {
		return outcome{
			status:    StatusRevoked,
			reason:    status.ReasonCode,
			revokedAt: status.RevokedAt,
		}
	}
	return outcome{status: StatusGood}
}

// Report returns a snapshot of the last check report, nil before the
// first check.
func (c *Checker) Report() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	snapshot := *c.last
	snapshot.MethodsTried = append([]string(nil), c.last.MethodsTried...)
	return &snapshot
}
