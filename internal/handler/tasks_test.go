package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putTask(t *testing.T, r chi.Router, code, secret string) {
	t.Helper()

	rec, body := doJSON(t, r, http.MethodPost, "/task/"+code, map[string]any{
		"secret":        secret,
		"userId":        "user-1",
		"transactionId": "tx-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["ok"])
}

func TestPutTask(t *testing.T) {
	t.Run("implicitly creates a record for a new code", func(t *testing.T) {
		r, _ := newTestRouter(t)

		putTask(t, r, "agent001", "agent-secret")

		rec, body := doJSON(t, r, http.MethodGet, "/task/agent001?secret=agent-secret", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		task := body["task"].(map[string]any)
		assert.Equal(t, "user-1", task["userId"])
		assert.Equal(t, "tx-1", task["transactionId"])
	})

	t.Run("requires a secret", func(t *testing.T) {
		r, _ := newTestRouter(t)

		rec, _ := doJSON(t, r, http.MethodPost, "/task/agent001", map[string]any{
			"userId":        "user-1",
			"transactionId": "tx-1",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a wrong secret on an existing record", func(t *testing.T) {
		r, _ := newTestRouter(t)
		putTask(t, r, "agent001", "agent-secret")

		rec, _ := doJSON(t, r, http.MethodPost, "/task/agent001", map[string]any{
			"secret":        "wrong",
			"userId":        "user-2",
			"transactionId": "tx-2",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("accepts the secret from the header", func(t *testing.T) {
		r, _ := newTestRouter(t)
		putTask(t, r, "agent001", "agent-secret")

		req := httptest.NewRequest(http.MethodGet, "/task/agent001", nil)
		req.Header.Set("X-Account-Secret", "agent-secret")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestGetTask(t *testing.T) {
	t.Run("record without a task polls ok false", func(t *testing.T) {
		r, _ := newTestRouter(t)
		account := createAccount(t, r, "alice")
		code := account["selfieCode"].(string)

		rec, body := doJSON(t, r, http.MethodGet, "/task/"+code+"?secret=s-alice", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, body["ok"])
		assert.Nil(t, body["task"])
	})

	t.Run("unknown code 404s", func(t *testing.T) {
		r, _ := newTestRouter(t)

		rec, _ := doJSON(t, r, http.MethodGet, "/task/deadbeef?secret=x", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestResultRoutes(t *testing.T) {
	t.Run("result is withheld until terminal", func(t *testing.T) {
		r, _ := newTestRouter(t)
		putTask(t, r, "agent001", "agent-secret")

		rec, body := doJSON(t, r, http.MethodGet, "/result/agent001?secret=agent-secret", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, body["ok"])
		assert.Nil(t, body["result"])
	})

	t.Run("posted result becomes readable", func(t *testing.T) {
		r, _ := newTestRouter(t)
		putTask(t, r, "agent001", "agent-secret")

		rec, _ := doJSON(t, r, http.MethodPost, "/result/agent001", map[string]any{
			"secret":           "agent-secret",
			"event_session_id": "sess-9",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		rec, body := doJSON(t, r, http.MethodGet, "/result/agent001?secret=agent-secret", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["ok"])
		result := body["result"].(map[string]any)
		assert.Equal(t, "accepted", result["status"])
		assert.Equal(t, "sess-9", result["event_session_id"])
	})

	t.Run("posting an empty session id fails", func(t *testing.T) {
		r, _ := newTestRouter(t)
		putTask(t, r, "agent001", "agent-secret")

		rec, _ := doJSON(t, r, http.MethodPost, "/result/agent001", map[string]any{
			"secret": "agent-secret",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestClearRoute(t *testing.T) {
	t.Run("clears the record", func(t *testing.T) {
		r, _ := newTestRouter(t)
		putTask(t, r, "agent001", "agent-secret")

		rec, body := doJSON(t, r, http.MethodDelete, "/clear/agent001?secret=agent-secret", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["ok"])

		rec, _ = doJSON(t, r, http.MethodGet, "/task/agent001?secret=agent-secret", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		r, _ := newTestRouter(t)
		putTask(t, r, "agent001", "agent-secret")

		rec, _ := doJSON(t, r, http.MethodDelete, "/clear/agent001?secret=wrong", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
