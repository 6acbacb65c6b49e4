package metricskey

import "github.com/effective-security/metrics"

// Descriptions of emited metrics keys
var (
	RevocationCheck = metrics.Describe{
		Name:         "revocation_check",
		Type:         "counter",
		RequiredTags: []string{"policy", "result"},
		Help:         "revocation_check provides counts of revocation checks by policy and result.",
	}
	OCSPReqPerf = metrics.Describe{
		Name:         "ocsp_request_perf",
		Type:         "summary",
		RequiredTags: []string{"url"},
		Help:         "ocsp_request_perf provides quantiles for OCSP responder exchanges.",
	}
	OCSPCacheHit = metrics.Describe{
		Name:         "ocsp_cache_hit",
		Type:         "counter",
		Help:         "ocsp_cache_hit provides counts of OCSP responses served from cache.",
	}
	OCSPCacheMiss = metrics.Describe{
		Name:         "ocsp_cache_miss",
		Type:         "counter",
		Help:         "ocsp_cache_miss provides counts of OCSP cache misses.",
	}
	CRLFetchPerf = metrics.Describe{
		Name:         "crl_fetch_perf",
		Type:         "summary",
		RequiredTags: []string{"url"},
		Help:         "crl_fetch_perf provides quantiles for CRL downloads.",
	}
)
