package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/twoao/selfie-server-go/internal/service"
)

func newAuthedOperator(t *testing.T) (*service.Operator, string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	op := service.NewOperator("admin", string(hash), time.Hour)
	token, err := op.Login("admin", "hunter2")
	require.NoError(t, err)
	return op, token
}

func authedHandler(t *testing.T, op *service.Operator) http.Handler {
	t.Helper()
	m := NewAuthMiddleware(op)
	return m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := GetOperator(r.Context())
		require.NotNil(t, session)
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("valid X-Auth-Token passes", func(t *testing.T) {
		op, token := newAuthedOperator(t)

		req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
		req.Header.Set("X-Auth-Token", token)
		rec := httptest.NewRecorder()
		authedHandler(t, op).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bearer header passes", func(t *testing.T) {
		op, token := newAuthedOperator(t)

		req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		authedHandler(t, op).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("query token passes", func(t *testing.T) {
		op, token := newAuthedOperator(t)

		req := httptest.NewRequest(http.MethodGet, "/api/accounts?token="+token, nil)
		rec := httptest.NewRecorder()
		authedHandler(t, op).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token is 401", func(t *testing.T) {
		op, _ := newAuthedOperator(t)

		req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
		rec := httptest.NewRecorder()
		authedHandler(t, op).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Missing authentication token")
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	})

	t.Run("invalid token is 401", func(t *testing.T) {
		op, _ := newAuthedOperator(t)

		req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
		req.Header.Set("X-Auth-Token", "bogus")
		rec := httptest.NewRecorder()
		authedHandler(t, op).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid token")
		assert.Contains(t, rec.Body.String(), "INVALID_TOKEN")
	})

	t.Run("logged out token is 401", func(t *testing.T) {
		op, token := newAuthedOperator(t)
		op.Logout(token)

		req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
		req.Header.Set("X-Auth-Token", token)
		rec := httptest.NewRecorder()
		authedHandler(t, op).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestExtractToken(t *testing.T) {
	t.Run("header takes priority over query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?token=query-token", nil)
		req.Header.Set("X-Auth-Token", "header-token")
		assert.Equal(t, "header-token", ExtractToken(req))
	})

	t.Run("empty request yields empty token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		assert.Empty(t, ExtractToken(req))
	})
}
