package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"groupchat/internal/auth"
	"groupchat/internal/domain"
	"groupchat/internal/observability"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// Auth requires a bearer token and stores the verified user id in the request context.
func Auth(verifier auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, string(domain.KindAuth), "missing bearer token")
				return
			}

			userID, err := verifier.Verify(r.Context(), token)
			if err != nil {
				observability.FromContext(r.Context()).Debug("token rejected",
					slog.String("error", err.Error()))
				writeError(w, http.StatusUnauthorized, string(domain.KindAuth), domain.PublicMessage(err))
				return
			}

			ctx := WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// WithUserID also tags the context logger with the user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return observability.WithUserID(ctx, userID)
}
