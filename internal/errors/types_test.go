package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := New(ErrCodeSessionStart, "failed to start session")
	assert.Equal(t, "SESSION_START: failed to start session", err.Error())

	cause := stderrors.New("dial refused")
	wrapped := Wrap(cause, ErrCodeEngineTransport, "engine unreachable")
	assert.Equal(t, "ENGINE_TRANSPORT: engine unreachable: dial refused", wrapped.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("underlying")
	wrapped := Wrap(cause, ErrCodeDatabaseQuery, "query failed")

	assert.True(t, stderrors.Is(wrapped, cause))
}

func TestAppError_WithContext(t *testing.T) {
	err := New(ErrCodeAuthState, "credential missing").
		WithContext("session", "default").
		WithContext("credential", "creds")

	assert.Equal(t, "default", err.Context["session"])
	assert.Equal(t, "creds", err.Context["credential"])
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(WrapRetryable(stderrors.New("x"), ErrCodeChatBotAPI, "transient")))
	assert.False(t, IsRetryable(New(ErrCodeInvalidConfig, "bad config")))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeTimeout, GetCode(New(ErrCodeTimeout, "deadline")))
	assert.Equal(t, ErrCodeInternalError, GetCode(stderrors.New("plain")))
}

func TestGetUserMessage(t *testing.T) {
	err := New(ErrCodePairingPending, "no QR yet").WithUserMessage("Pairing is still in progress")
	assert.Equal(t, "Pairing is still in progress", GetUserMessage(err))

	assert.Equal(t, "An internal error occurred", GetUserMessage(stderrors.New("plain")))
	assert.Equal(t, "An internal error occurred", GetUserMessage(New(ErrCodeNotFound, "missing")))
}
