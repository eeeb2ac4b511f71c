package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("formats code and message", func(t *testing.T) {
		err := New(ErrCodeNotFound, "Account not found")
		assert.Equal(t, "NOT_FOUND: Account not found", err.Error())
	})

	t.Run("includes cause in message", func(t *testing.T) {
		cause := stderrors.New("connection refused")
		err := Storage(cause)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("unwraps through fmt wrapping", func(t *testing.T) {
		appErr := LinkInvalid()
		wrapped := fmt.Errorf("handler: %w", appErr)

		got, ok := AsAppError(wrapped)
		assert.True(t, ok)
		assert.Equal(t, ErrCodeLinkInvalid, got.Code)
	})

	t.Run("WithDetails attaches details", func(t *testing.T) {
		err := InvalidInput("username", "too long").WithDetails(map[string]int{"max": 64})
		assert.NotNil(t, err.Details)
	})
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name    string
		err     *AppError
		code    ErrorCode
		message string
	}{
		{"not found", NotFound("Account"), ErrCodeNotFound, "Account not found"},
		{"already exists", AlreadyExists("Account"), ErrCodeAlreadyExists, "Account already exists"},
		{"missing required", MissingRequired("username"), ErrCodeMissingRequired, "username is required"},
		{"invalid input", InvalidInput("body", "malformed JSON"), ErrCodeInvalidInput, "Invalid body: malformed JSON"},
		{"link invalid", LinkInvalid(), ErrCodeLinkInvalid, "Link invalid or expired"},
		{"unauthorized", Unauthorized("Invalid credentials"), ErrCodeUnauthorized, "Invalid credentials"},
		{"rate limit", RateLimitExceeded(), ErrCodeRateLimitExceeded, "Rate limit exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.message, tt.err.Message)
		})
	}
}

func TestGetCode(t *testing.T) {
	t.Run("returns code for app errors", func(t *testing.T) {
		assert.Equal(t, ErrCodeLinkInvalid, GetCode(LinkInvalid()))
	})

	t.Run("defaults to internal for plain errors", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, GetCode(stderrors.New("boom")))
	})
}
