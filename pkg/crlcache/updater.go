package crlcache

import (
	"bytes"
	"context"
	"crypto/x509"
	"sync"
	"time"

	"github.com/effective-security/xlog"
	"github.com/effective-security/xrevoke/pkg/crl"
	"github.com/effective-security/xrevoke/pkg/rverror"
)

// DefaultRefreshThreshold skips network I/O when the cached CRL
// is not expiring within this window.
const DefaultRefreshThreshold = time.Hour

// Updater drives refresh of cached CRLs
type Updater struct {
	cache            *Cache
	fetcher          *crl.Fetcher
	refreshThreshold time.Duration

	mu      sync.Mutex
	issuers map[string]*issuerState
}

type issuerState struct {
	mu      sync.Mutex
	lastURL string
}

// NewUpdater returns an Updater over the cache and fetcher
func NewUpdater(cache *Cache, fetcher *crl.Fetcher, refreshThreshold time.Duration) *Updater {
	if refreshThreshold == 0 {
		refreshThreshold = DefaultRefreshThreshold
	}
	return &Updater{
		cache:            cache,
		fetcher:          fetcher,
		refreshThreshold: refreshThreshold,
		issuers:          map[string]*issuerState{},
	}
}

// Cache returns the underlying cache
func (u *Updater) Cache() *Cache {
	return u.cache
}

func (u *Updater) issuerState(key string) *issuerState {
	u.mu.Lock()
	defer u.mu.Unlock()
	st, ok := u.issuers[key]
	if !ok {
		st = &issuerState{}
		u.issuers[key] = st
	}
	return st
}

// UpdateFromCertificate refreshes the CRL for the subject's issuer from
// the subject's distribution points, trying each URL in order. On fetch
// failure the cached CRL, if any, is returned as a fallback.
func (u *Updater) UpdateFromCertificate(ctx context.Context, subject *x509.Certificate, silent bool) (*crl.CRL, error) {
	issuerDER := subject.RawIssuer

	urls := crl.DistributionPoints(subject)
	if len(urls) == 0 {
		logger.KV(xlog.WARNING,
			"reason", "no_distribution_points",
			"subject", subject.Subject.String(),
		)
		return nil, nil
	}

	var lastErr error
	for _, url := range urls {
		ok, err := u.Update(ctx, issuerDER, url, false)
		if ok {
			return u.cache.Get(issuerDER), nil
		}
		if err != nil {
			logger.KV(xlog.WARNING,
				"reason", "update_failed",
				"url", url,
				"err", err.Error(),
			)
			lastErr = err
		}
	}

	if cached := u.cache.Get(issuerDER); cached != nil {
		logger.KV(xlog.WARNING,
			"reason", "refresh_failed_using_cached",
			"issuer", cached.Issuer,
		)
		return cached, nil
	}

	if lastErr == nil {
		lastErr = rverror.New(rverror.CodeTransport, "all distribution points failed")
	}
	if silent {
		logger.KV(xlog.WARNING,
			"reason", "update_failed",
			"subject", subject.Subject.String(),
			"err", lastErr.Error(),
		)
		return nil, nil
	}
	return nil, lastErr
}

// Update refreshes the CRL for the issuer DN from the URL. It returns
// true when the cache holds a current CRL on return, without network I/O
// when the cached CRL is not expiring within the refresh threshold.
// With silent set, failures are logged and surfaced as false.
func (u *Updater) Update(ctx context.Context, issuerDER []byte, url string, silent bool) (bool, error) {
	st := u.issuerState(string(issuerDER))

	// serialize updates per issuer so that concurrent checks
	// coalesce on a single fetch
	st.mu.Lock()
	defer st.mu.Unlock()

	ok, err := u.update(ctx, issuerDER, url)
	if err != nil {
		if silent {
			logger.KV(xlog.WARNING,
				"reason", "update_failed",
				"url", url,
				"err", err.Error(),
			)
			return false, nil
		}
		return false, err
	}
	if ok {
		st.lastURL = url
	}
	return ok, nil
}

func (u *Updater) update(ctx context.Context, issuerDER []byte, url string) (bool, error) {
	cached := u.cache.Get(issuerDER)
	if cached != nil && !cached.ExpiresWithin(NowFunc(), u.refreshThreshold) {
		return true, nil
	}

	fetched, err := u.fetcher.Fetch(ctx, url)
	if err != nil {
		return false, err
	}

	if !bytes.Equal(fetched.RawIssuer, issuerDER) {
		return false, rverror.New(rverror.CodeProtocol,
			"issuer mismatch: CRL from %s issued by %q", url, fetched.Issuer)
	}

	if cached != nil {
		switch cmp := fetched.Number.Cmp(cached.Number); {
		case cmp < 0:
			// possible rollback attack
			logger.KV(xlog.WARNING,
				"reason", "crl_number_rollback",
				"issuer", cached.Issuer,
				"cached", cached.Number.String(),
				"fetched", fetched.Number.String(),
			)
			return false, rverror.New(rverror.CodeProtocol,
				"CRL number went backward: %s < %s", fetched.Number.String(), cached.Number.String())
		case cmp == 0 && !fetched.ThisUpdate.After(cached.ThisUpdate):
			// already up to date
			return true, nil
		}
	}

	u.cache.Put(issuerDER, fetched)
	logger.KV(xlog.INFO,
		"status", "updated",
		"issuer", fetched.Issuer,
		"number", fetched.Number.String(),
		"entries", len(fetched.Entries),
	)
	return true, nil
}

// CleanupExpired evicts expired CRLs and returns the count
func (u *Updater) CleanupExpired() int {
	return u.cache.RemoveExpired()
}

// refreshExpiring re-fetches cached CRLs that are expiring within the
// refresh threshold, using the last known URL for each issuer.
func (u *Updater) refreshExpiring(ctx context.Context) int {
	refreshed := 0
	for _, key := range u.cache.issuerKeys() {
		if !u.cache.ExpiringSoon([]byte(key), u.refreshThreshold) {
			continue
		}
		u.mu.Lock()
		st := u.issuers[key]
		u.mu.Unlock()
		if st == nil || st.lastURL == "" {
			continue
		}
		if ok, _ := u.Update(ctx, []byte(key), st.lastURL, true); ok {
			refreshed++
		}
	}
	return refreshed
}
