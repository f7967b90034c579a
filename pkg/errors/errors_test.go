package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeSurvivesWrapping(t *testing.T) {
	base := NotFound("alert %s not found", "a1")
	wrapped := fmt.Errorf("acknowledge: %w", base)

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsConflict(wrapped))
	assert.Equal(t, "alert a1 not found", GetMessage(base))

	rewrapped := Wrap(wrapped, "handler failed")
	assert.Equal(t, CodeNotFound, GetCode(rewrapped))
}

func TestSentinelMatching(t *testing.T) {
	errExpired := Sentinel(CodeUnauthorized, "code expired")
	err := Wrap(errExpired, "verify")

	assert.True(t, Is(err, errExpired))
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, errExpired, Cause(err))
}

func TestTransientKeepsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Transient(cause, "save alert")

	assert.True(t, IsTransient(err))
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "save alert", err.Error())
}

func TestWithContextCopies(t *testing.T) {
	base := Validation("bad latitude")
	withCtx := base.WithContext("field", "latitude")

	assert.Empty(t, base.Context)
	assert.Len(t, withCtx.Context, 1)
	assert.Equal(t, CodeValidation, withCtx.Code)
}

func TestUnknownCode(t *testing.T) {
	assert.Equal(t, CodeUnknown, GetCode(stderrors.New("plain")))
	assert.Equal(t, CodeUnknown, GetCode(nil))
}
