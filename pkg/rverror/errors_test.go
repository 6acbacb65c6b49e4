package rverror_test

import (
	"testing"

	"github.com/effective-security/xrevoke/pkg/rverror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	err := rverror.New(rverror.CodeParse, "invalid PEM envelope")
	assert.Equal(t, "parse_error: invalid PEM envelope", err.Error())
	assert.True(t, rverror.IsParse(err))
	assert.False(t, rverror.IsProtocol(err))
	assert.Nil(t, err.Cause())

	cause := errors.New("unexpected EOF")
	err = rverror.New(rverror.CodeTransport, "request failed: %s", "http://crl.example.com").WithCause(cause)
	assert.Equal(t, cause, err.Cause())
	assert.True(t, rverror.IsTransport(err))
	assert.Equal(t, rverror.CodeTransport, rverror.Kind(err))
}

func TestKindWrapped(t *testing.T) {
	inner := rverror.New(rverror.CodeNotFound, "not found: %s", "http://crl.example.com/ca.crl")
	wrapped := errors.WithMessage(inner, "update failed")
	assert.Equal(t, rverror.CodeNotFound, rverror.Kind(wrapped))
	assert.True(t, rverror.IsNotFound(wrapped))

	assert.Equal(t, "", rverror.Kind(errors.New("plain")))
	assert.False(t, rverror.IsPolicy(nil))
}
