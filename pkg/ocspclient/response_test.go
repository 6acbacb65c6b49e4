package ocspclient_test

import (
	"crypto"
	"testing"
	"time"

	"github.com/effective-security/xrevoke/pkg/certid"
	"github.com/effective-security/xrevoke/pkg/ocspclient"
	"github.com/effective-security/xrevoke/pkg/rverror"
	"github.com/effective-security/xrevoke/tests/testutils"
	"github.com/effective-security/xpki/testca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"
)

func respondGood(t *testing.T, ca *testca.Entity, leafSerial int64, nonce []byte) []byte {
	t.Helper()

	leaf, _, err := testutils.IssueLeaf(ca, testutils.LeafSpec{
		CommonName: "leaf",
		Serial:     leafSerial,
	})
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	der, err := testutils.MakeOCSPResponse(ca, ocsp.Response{
		Status:       ocsp.Good,
		SerialNumber: leaf.SerialNumber,
		ThisUpdate:   now.Add(-time.Minute),
		NextUpdate:   now.Add(time.Hour),
	}, nonce)
	require.NoError(t, err)
	return der
}

func TestParseResponseGood(t *testing.T) {
	ca := testutils.NewCA("[TEST] Issuing CA")
	leaf, _, err := testutils.IssueLeaf(ca, testutils.LeafSpec{
		CommonName: "leaf",
		Serial:     0x1a,
	})
	require.NoError(t, err)

	nonce := []byte("0123456789abcdef")
	der := respondGood(t, ca, 0x1a, nonce)

	want, err := certid.New(leaf, ca.Certificate, crypto.SHA1)
	require.NoError(t, err)

	res, err := ocspclient.ParseResponse(der, leaf, ca.Certificate, want)
	require.NoError(t, err)
	assert.Equal(t, ocspclient.StatusSuccessful, res.ResponseStatus)
	assert.Equal(t, ocsp.Good, res.Status)
	assert.Equal(t, nonce, res.Nonce)
	assert.True(t, res.CertID.Equal(want))
	assert.NotEmpty(t, res.TBS)
	assert.NotEmpty(t, res.Signature)
	assert.False(t, res.IsExpired(time.Now()))
	assert.True(t, res.IsExpired(time.Now().Add(2*time.Hour)))
}

func TestParseResponseRevoked(t *testing.T) {
	ca := testutils.NewCA("[TEST] Issuing CA")
	leaf, _, err := testutils.IssueLeaf(ca, testutils.LeafSpec{
		CommonName: "leaf",
		Serial:     0x1a,
	})
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	der, err := testutils.MakeOCSPResponse(ca, ocsp.Response{
		Status:           ocsp.Revoked,
		SerialNumber:     leaf.SerialNumber,
		ThisUpdate:       now.Add(-time.Minute),
		NextUpdate:       now.Add(time.Hour),
		RevokedAt:        now.Add(-time.Hour),
		RevocationReason: ocsp.KeyCompromise,
	}, nil)
	require.NoError(t, err)

	res, err := ocspclient.ParseResponse(der, leaf, ca.Certificate, nil)
	require.NoError(t, err)
	assert.Equal(t, ocsp.Revoked, res.Status)
	assert.Equal(t, ocsp.KeyCompromise, res.RevocationReason)
	assert.WithinDuration(t, now.Add(-time.Hour), res.RevokedAt, time.Second)
	assert.Nil(t, res.Nonce)
}

func TestParseResponseErrorStatus(t *testing.T) {
	ca := testutils.NewCA("[TEST] Issuing CA")
	leaf, _, err := testutils.IssueLeaf(ca, testutils.LeafSpec{
		CommonName: "leaf",
		Serial:     0x1a,
	})
	require.NoError(t, err)

	der := testutils.ErrorResponse(3) // tryLater
	res, err := ocspclient.ParseResponse(der, leaf, ca.Certificate, nil)
	require.Error(t, err)
	assert.True(t, rverror.IsProtocol(err))
	assert.Contains(t, err.Error(), "tryLater")
	require.NotNil(t, res)
	assert.Equal(t, ocspclient.StatusTryLater, res.ResponseStatus)
}

func TestParseResponseCertIDMismatch(t *testing.T) {
	ca := testutils.NewCA("[TEST] Issuing CA")
	leaf, _, err := testutils.IssueLeaf(ca, testutils.LeafSpec{
		CommonName: "leaf",
		Serial:     0x1a,
	})
	require.NoError(t, err)
	other, _, err := testutils.IssueLeaf(ca, testutils.LeafSpec{
		CommonName: "other",
		Serial:     0x1b,
	})
	require.NoError(t, err)

	der := respondGood(t, ca, 0x1a, nil)

	// response is for serial 0x1a, the request was for 0x1b
	want, err := certid.New(other, ca.Certificate, crypto.SHA1)
	require.NoError(t, err)

	_, err = ocspclient.ParseResponse(der, leaf, ca.Certificate, want)
	require.Error(t, err)
	assert.True(t, rverror.IsProtocol(err))
	assert.Contains(t, err.Error(), "no single response matches")
}

func TestParseResponseBadSignature(t *testing.T) {
	ca := testutils.NewCA("[TEST] Issuing CA")
	impostor := testutils.NewCA("[TEST] Issuing CA")
	leaf, _, err := testutils.IssueLeaf(ca, testutils.LeafSpec{
		CommonName: "leaf",
		Serial:     0x1a,
	})
	require.NoError(t, err)

	// response signed by a different key than the issuer's
	der := respondGood(t, impostor, 0x1a, nil)

	_, err = ocspclient.ParseResponse(der, leaf, ca.Certificate, nil)
	require.Error(t, err)
	assert.True(t, rverror.IsProtocol(err))
}

func TestParseResponseMalformed(t *testing.T) {
	ca := testutils.NewCA("[TEST] Issuing CA")
	leaf, _, err := testutils.IssueLeaf(ca, testutils.LeafSpec{
		CommonName: "leaf",
		Serial:     0x1a,
	})
	require.NoError(t, err)

	_, err = ocspclient.ParseResponse([]byte{0x01, 0x02}, leaf, ca.Certificate, nil)
	require.Error(t, err)
	assert.True(t, rverror.IsParse(err))
}

func TestResponseStatusName(t *testing.T) {
	assert.Equal(t, "successful", ocspclient.ResponseStatusName(0))
	assert.Equal(t, "malformedRequest", ocspclient.ResponseStatusName(1))
	assert.Equal(t, "internalError", ocspclient.ResponseStatusName(2))
	assert.Equal(t, "tryLater", ocspclient.ResponseStatusName(3))
	assert.Equal(t, "sigRequired", ocspclient.ResponseStatusName(5))
	assert.Equal(t, "unauthorized", ocspclient.ResponseStatusName(6))
	assert.Equal(t, "unknown", ocspclient.ResponseStatusName(4))
}
