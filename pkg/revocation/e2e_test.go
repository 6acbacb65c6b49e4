package revocation_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/effective-security/xrevoke/pkg/ocspclient"
	"github.com/effective-security/xrevoke/pkg/revocation"
	"github.com/effective-security/xrevoke/tests/testutils"
	"github.com/effective-security/xpki/testca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"
)

func startResponder(t *testing.T, ca *testca.Entity, status, reason int) *httptest.Server {
	t.Helper()

	h := func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		req, err := ocspclient.ParseRequest(body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		now := time.Now().UTC().Truncate(time.Second)
		template := ocsp.Response{
			Status:       status,
			SerialNumber: req.CertID.SerialNumber,
			ThisUpdate:   now.Add(-time.Minute),
			NextUpdate:   now.Add(time.Hour),
		}
		if status == ocsp.Revoked {
			template.RevokedAt = now.Add(-time.Hour)
			template.RevocationReason = reason
		}
		res, err := testutils.MakeOCSPResponse(ca, template, req.Nonce)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/ocsp-response")
		_, _ = w.Write(res)
	}

	ts := httptest.NewServer(http.HandlerFunc(h))
	t.Cleanup(ts.Close)
	return ts
}

func startCRLServer(t *testing.T, ca *testca.Entity, number int64) *httptest.Server {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	der, err := testutils.MakeCRL(ca, testutils.CRLSpec{
		Number:     number,
		ThisUpdate: now.Add(-time.Hour),
		NextUpdate: now.Add(time.Hour),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(der)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestEndToEndOCSPGood(t *testing.T) {
	ca := testutils.NewCA("[TEST] Root CA")
	responder := startResponder(t, ca, ocsp.Good, 0)

	leaf, _, err := testutils.IssueLeaf(ca, testutils.LeafSpec{
		CommonName: "leaf",
		Serial:     0x1a,
		OCSPURLs:   []string{responder.URL},
	})
	require.NoError(t, err)

	checker, err := revocation.New(&revocation.Config{
		Policy: revocation.OCSPOnly,
	})
	require.NoError(t, err)

	valid, report, err := checker.Check(context.Background(), leaf, ca.Certificate)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, []string{revocation.MethodOCSP}, report.MethodsTried)
	assert.Equal(t, revocation.StatusGood, report.OCSP.Status)
	assert.True(t, report.Result)
}

func TestEndToEndOCSPRevoked(t *testing.T) {
	ca := testutils.NewCA("[TEST] Root CA")
	responder := startResponder(t, ca, ocsp.Revoked, ocsp.KeyCompromise)

	leaf, _, err := testutils.IssueLeaf(ca, testutils.LeafSpec{
		CommonName: "leaf",
		Serial:     0x1a,
		OCSPURLs:   []string{responder.URL},
	})
	require.NoError(t, err)

	checker, err := revocation.New(&revocation.Config{
		Policy: revocation.OCSPOnly,
	})
	require.NoError(t, err)

	valid, report, err := checker.Check(context.Background(), leaf, ca.Certificate)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, revocation.StatusRevoked, report.OCSP.Status)
	assert.Equal(t, ocsp.KeyCompromise, report.RevocationReason)
}

func TestEndToEndOCSPPreferredCRLFallback(t *testing.T) {
	ca := testutils.NewCA("[TEST] Root CA")
	crlServer := startCRLServer(t, ca, 5)

	// the OCSP responder is unreachable: the CRL clears the certificate
	leaf, _, err := testutils.IssueLeaf(ca, testutils.LeafSpec{
		CommonName: "leaf",
		Serial:     0x1a,
		OCSPURLs:   []string{"http://127.0.0.1:1"},
		CRLURLs:    []string{crlServer.URL + "/ca.crl"},
	})
	require.NoError(t, err)

	checker, err := revocation.New(&revocation.Config{
		Policy:          revocation.OCSPPreferred,
		ConnectTimeout:  200 * time.Millisecond,
		ResponseTimeout: 500 * time.Millisecond,
	})
	require.NoError(t, err)

	valid, report, err := checker.Check(context.Background(), leaf, ca.Certificate)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, []string{revocation.MethodOCSP, revocation.MethodCRL}, report.MethodsTried)
	assert.NotEmpty(t, report.OCSP.Error)
	assert.Equal(t, revocation.StatusGood, report.CRL.Status)
}

func TestEndToEndHardFailBothDown(t *testing.T) {
	ca := testutils.NewCA("[TEST] Root CA")

	notFound := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(notFound.Close)

	leaf, _, err := testutils.IssueLeaf(ca, testutils.LeafSpec{
		CommonName: "leaf",
		Serial:     0x1a,
		OCSPURLs:   []string{"http://127.0.0.1:1"},
		CRLURLs:    []string{notFound.URL + "/ca.crl"},
	})
	require.NoError(t, err)

	checker, err := revocation.New(&revocation.Config{
		Policy:          revocation.HardFail,
		ConnectTimeout:  200 * time.Millisecond,
		ResponseTimeout: 500 * time.Millisecond,
	})
	require.NoError(t, err)

	valid, report, err := checker.Check(context.Background(), leaf, ca.Certificate)
	require.Error(t, err)
	assert.False(t, valid)
	assert.NotEmpty(t, report.OCSP.Error)
	assert.NotEmpty(t, report.CRL.Error)

	// the same failures under soft_fail are accepted
	soft, err := revocation.New(&revocation.Config{
		Policy:          revocation.SoftFail,
		ConnectTimeout:  200 * time.Millisecond,
		ResponseTimeout: 500 * time.Millisecond,
	})
	require.NoError(t, err)

	valid, report, err = soft.Check(context.Background(), leaf, ca.Certificate)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.NotEmpty(t, report.OCSP.Error)
	assert.NotEmpty(t, report.CRL.Error)
}
