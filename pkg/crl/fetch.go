package crl

import (
	"context"
	"time"

	"github.com/effective-security/metrics"
	"github.com/effective-security/xrevoke/pkg/httpfetch"
)

// DefaultFetchTimeout bounds a single CRL download
const DefaultFetchTimeout = 30 * time.Second

var keyForCRLFetchPerf = "crl_fetch_perf"

// Fetcher downloads and parses CRLs
type Fetcher struct {
	client *httpfetch.Client
}

// NewFetcher returns a Fetcher on the given client.
// The fetch timeout is applied on top of the client's settings.
func NewFetcher(client *httpfetch.Client, timeout time.Duration) *Fetcher {
	if timeout == 0 {
		timeout = DefaultFetchTimeout
	}
	return &Fetcher{
		client: client.WithTimeout(timeout),
	}
}

// Fetch downloads the CRL from the URL and parses it,
// sniffing PEM versus DER.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*CRL, error) {
	started := time.Now()
	body, err := f.client.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	metrics.MeasureSince(keyForCRLFetchPerf, started, metrics.Tag{Name: "url", Value: url})

	return Parse(body)
}
