package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/twoao/selfie-server-go/internal/service"
)

func newAuthRouter(t *testing.T) (chi.Router, *service.Operator) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	operator := service.NewOperator("admin", string(hash), time.Hour)

	h := NewAuthHandler(operator)
	r := chi.NewRouter()
	r.Post("/api/login", h.Login)
	r.Post("/api/logout", h.Logout)
	return r, operator
}

func TestLogin(t *testing.T) {
	t.Run("valid credentials return a token", func(t *testing.T) {
		r, operator := newAuthRouter(t)

		rec, body := doJSON(t, r, http.MethodPost, "/api/login", map[string]string{
			"username": "admin",
			"password": "hunter2",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["ok"])

		token, ok := body["token"].(string)
		require.True(t, ok)
		assert.NotNil(t, operator.Validate(token))
	})

	t.Run("bad credentials are 401", func(t *testing.T) {
		r, _ := newAuthRouter(t)

		rec, body := doJSON(t, r, http.MethodPost, "/api/login", map[string]string{
			"username": "admin",
			"password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, false, body["ok"])
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		r, _ := newAuthRouter(t)

		req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogout(t *testing.T) {
	t.Run("revokes the session", func(t *testing.T) {
		r, operator := newAuthRouter(t)

		token, err := operator.Login("admin", "hunter2")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
		req.Header.Set("X-Auth-Token", token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, operator.Validate(token))
	})

	t.Run("logout without a token still succeeds", func(t *testing.T) {
		r, _ := newAuthRouter(t)

		rec, body := doJSON(t, r, http.MethodPost, "/api/logout", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["ok"])
	})
}
