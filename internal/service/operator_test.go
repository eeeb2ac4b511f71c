package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/twoao/selfie-server-go/internal/errors"
)

func newTestOperator(t *testing.T, ttl time.Duration) *Operator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewOperator("admin", string(hash), ttl)
}

func TestOperatorLogin(t *testing.T) {
	t.Run("valid credentials issue a token", func(t *testing.T) {
		op := newTestOperator(t, time.Hour)

		token, err := op.Login("admin", "hunter2")
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		session := op.Validate(token)
		require.NotNil(t, session)
		assert.Equal(t, "admin", session.Username)
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		op := newTestOperator(t, time.Hour)

		_, err := op.Login("admin", "wrong")
		assert.Equal(t, apperrors.ErrCodeUnauthorized, apperrors.GetCode(err))
	})

	t.Run("wrong username is rejected", func(t *testing.T) {
		op := newTestOperator(t, time.Hour)

		_, err := op.Login("root", "hunter2")
		assert.Equal(t, apperrors.ErrCodeUnauthorized, apperrors.GetCode(err))
	})

	t.Run("login disabled when no hash is configured", func(t *testing.T) {
		op := NewOperator("admin", "", time.Hour)

		_, err := op.Login("admin", "anything")
		assert.Equal(t, apperrors.ErrCodeInternal, apperrors.GetCode(err))
	})
}

func TestOperatorValidate(t *testing.T) {
	t.Run("unknown token resolves to nil", func(t *testing.T) {
		op := newTestOperator(t, time.Hour)

		assert.Nil(t, op.Validate("bogus"))
		assert.Nil(t, op.Validate(""))
	})

	t.Run("expired session is dropped", func(t *testing.T) {
		op := newTestOperator(t, time.Millisecond)

		token, err := op.Login("admin", "hunter2")
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		assert.Nil(t, op.Validate(token))
	})

	t.Run("logout revokes the token", func(t *testing.T) {
		op := newTestOperator(t, time.Hour)

		token, err := op.Login("admin", "hunter2")
		require.NoError(t, err)

		op.Logout(token)
		assert.Nil(t, op.Validate(token))
	})
}

func TestOperatorSweepExpired(t *testing.T) {
	op := newTestOperator(t, time.Minute)

	_, err := op.Login("admin", "hunter2")
	require.NoError(t, err)
	_, err = op.Login("admin", "hunter2")
	require.NoError(t, err)

	assert.Zero(t, op.SweepExpired(time.Now()))
	assert.Equal(t, 2, op.SweepExpired(time.Now().Add(2*time.Minute)))
}
