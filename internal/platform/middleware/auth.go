package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	id "helixpass/pkg/domain"
	"helixpass/pkg/requestcontext"
)

// JWTValidator validates bearer tokens and extracts the subject claims.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims are the claims this service relies on. SubjectID is the subject's
// ledger account identifier.
type JWTClaims struct {
	SubjectID string
}

// RequireAuth rejects requests without a valid bearer token and injects the
// authenticated subject into the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				logger.WarnContext(r.Context(), "unauthorized access - missing bearer token",
					"request_id", requestcontext.RequestID(r.Context()),
				)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			subjectID, err := id.ParseSubjectID(claims.SubjectID)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := requestcontext.WithSubjectID(r.Context(), subjectID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
