package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"example.com/socialfeed/internal/logger"
)

type contextKey string

const UserCtxKey = contextKey("user_id")

// TokenHeader carries the raw signed token. Clients send it as-is, no Bearer scheme.
const TokenHeader = "x-auth-token"

var logg = logger.New()

// Verifier resolves a token to a user id.
type Verifier interface {
	Verify(token string) (string, error)
}

// TokenAuth rejects requests without a valid token and stores the
// authenticated user id in the request context.
func TokenAuth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := r.Header.Get(TokenHeader)
			if tok == "" {
				writeMsg(w, http.StatusUnauthorized, "No token, authorization denied")
				return
			}

			userID, err := v.Verify(tok)
			if err != nil {
				logg.Info("middleware/auth", "Rejected token on "+r.Method+" "+r.URL.Path+": "+err.Error())
				writeMsg(w, http.StatusUnauthorized, "Token is not valid")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserCtxKey, userID)
}

// Extracting user_id in handler
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserCtxKey).(string)
	return id, ok && id != ""
}

func writeMsg(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"msg": msg})
}
