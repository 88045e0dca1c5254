package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"pipewatch/internal/auth"
	"pipewatch/internal/logging"
)

type contextKey string

const (
	identityKey  contextKey = "identity"
	requestIDKey contextKey = "request_id"
)

// identityFrom returns the authenticated identity attached by requireAuth.
func identityFrom(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(auth.Identity)
	return identity, ok
}

// requireAuth enforces the bearer access token on protected routes. A missing
// token is a 401; a present but unverifiable token is a 403.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}

		identity, err := s.tokens.Verify(token, auth.DomainAccess)
		if err != nil {
			writeError(w, http.StatusForbidden, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// requestLogger tags each request with a correlation id and logs its outcome.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		started := time.Now()
		next.ServeHTTP(recorder, r.WithContext(ctx))

		s.logger.Info("request handled",
			logging.String(logging.FieldRequestID, requestID),
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", recorder.status),
			logging.Duration("elapsed", time.Since(started)))
	})
}
