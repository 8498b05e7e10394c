package middleware

import (
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/dskvich/perplexed/pkg/api/response"
	"github.com/dskvich/perplexed/pkg/auth"
	"github.com/dskvich/perplexed/pkg/logger"
)

// Identifier resolves a bearer token to a user identity.
type Identifier interface {
	Identify(token string) (string, bool)
}

// Auth resolves the Authorization header into a user identity on the request
// context. Requests without the header pass through anonymously; a header
// with an unknown token is rejected.
func Auth(identifier Identifier) func(http.Handler) http.Handler {
	writer := response.JSONResponseWriter{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writer.WriteErrorResponse(w, http.StatusUnauthorized, "Authorization header must use the Bearer scheme.")
				return
			}

			userID, ok := identifier.Identify(strings.TrimSpace(token))
			if !ok {
				writer.WriteErrorResponse(w, http.StatusUnauthorized, "Unknown token.")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.ContextWithUserID(r.Context(), userID)))
		})
	}
}

// RequestID stamps each request context with a process-unique id that the
// log handler prints alongside every record of the request.
func RequestID() func(http.Handler) http.Handler {
	var counter atomic.Int64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logger.ContextWithRequestID(r.Context(), counter.Add(1))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
