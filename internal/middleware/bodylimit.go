package middleware

import (
	"net/http"

	"github.com/twoao/selfie-server-go/internal/config"
)

// BodyLimitMiddleware caps request bodies. The JSON API never needs more
// than a couple of megabytes; the evidence upload route installs its own
// larger cap.
type BodyLimitMiddleware struct {
	maxBytes int64
}

func NewBodyLimitMiddleware(maxBytes int64) *BodyLimitMiddleware {
	if maxBytes <= 0 {
		maxBytes = config.MaxBodyBytes
	}
	return &BodyLimitMiddleware{maxBytes: maxBytes}
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, m.maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}
