package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAndError(t *testing.T) {
	err := New(CodeInvalidInput, "bad price")
	assert.Equal(t, "VALIDATION_INVALID_INPUT: bad price", err.Error())
	assert.Nil(t, err.Cause)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeStoreUnavailable, "should not happen"))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeStoreUnavailable, "list active contracts")
	assert.Same(t, cause, err.Cause)
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
}

func TestWithDetail(t *testing.T) {
	err := New(CodeLimitExceeded, "too many orders").WithDetail("owner", "u1").WithDetail("cap", 50)
	assert.Equal(t, "u1", err.Details["owner"])
	assert.Equal(t, 50, err.Details["cap"])
}

func TestIsAndGetErrorCode(t *testing.T) {
	err := New(CodeNotOwner, "not your order")
	assert.True(t, Is(err, CodeNotOwner))
	assert.False(t, Is(err, CodeNotFound))
	assert.Equal(t, CodeNotOwner, GetErrorCode(err))
	assert.Equal(t, Code(""), GetErrorCode(errors.New("plain error")))
}

func TestGetTaxonomy(t *testing.T) {
	cases := []struct {
		code Code
		want Taxonomy
	}{
		{CodeInvalidInput, TaxonomyValidation},
		{CodeNotOwner, TaxonomyAuthorization},
		{CodeImmutable, TaxonomyState},
		{CodeLimitExceeded, TaxonomyConflict},
		{CodeStoreUnavailable, TaxonomyTransient},
		{CodeConfirmationExpired, TaxonomyProtocol},
		{CodeInternal, ""},
	}
	for _, tc := range cases {
		got := GetTaxonomy(New(tc.code, "x"))
		assert.Equal(t, tc.want, got, "code %s", tc.code)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(CodeStoreUnavailable, "db down")))
	assert.True(t, IsRetryable(New(CodeCacheUnavailable, "redis down")))
	assert.False(t, IsRetryable(New(CodeInvalidInput, "bad input")))
}

func TestIsClientVisible(t *testing.T) {
	assert.True(t, IsClientVisible(New(CodeInvalidInput, "x")))
	assert.True(t, IsClientVisible(New(CodeNotOwner, "x")))
	assert.True(t, IsClientVisible(New(CodePairDeclined, "x")))
	assert.True(t, IsClientVisible(New(CodeConfirmationUnknown, "x")))
	assert.False(t, IsClientVisible(New(CodeStoreUnavailable, "x")))
	assert.False(t, IsClientVisible(New(CodeInternal, "x")))
}
