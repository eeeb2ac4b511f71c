package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/twoao/selfie-server-go/internal/errors"
	"github.com/twoao/selfie-server-go/internal/service"
)

type contextKey string

const OperatorContextKey contextKey = "operatorSession"

func GetOperator(ctx context.Context) *service.OperatorSession {
	if session, ok := ctx.Value(OperatorContextKey).(*service.OperatorSession); ok {
		return session
	}
	return nil
}

// AuthMiddleware gates the operator API behind a bearer session token.
type AuthMiddleware struct {
	operator *service.Operator
}

func NewAuthMiddleware(operator *service.Operator) *AuthMiddleware {
	return &AuthMiddleware{operator: operator}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractToken(r)
		if token == "" {
			writeError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		session := m.operator.Validate(token)
		if session == nil {
			log.Warn().Msg("auth middleware: invalid token attempt")
			writeError(w, apperrors.InvalidToken("Invalid token"))
			return
		}

		ctx := context.WithValue(r.Context(), OperatorContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractToken accepts the dashboard's X-Auth-Token header, a bearer
// Authorization header, or a token query parameter.
func ExtractToken(r *http.Request) string {
	if token := r.Header.Get("X-Auth-Token"); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	return ""
}
