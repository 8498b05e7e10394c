package auth

import (
	"context"
	"log/slog"
	"strings"
)

type contextKey string

const userIDKey contextKey = "user_id"

type authenticator struct {
	users map[string]string
}

// NewAuthenticator builds a token resolver from "token:userID" pairs.
// Malformed pairs are skipped.
func NewAuthenticator(tokenPairs []string) *authenticator {
	users := make(map[string]string, len(tokenPairs))
	for _, pair := range tokenPairs {
		token, userID, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || token == "" || userID == "" {
			slog.Warn("skipping malformed API token pair")
			continue
		}
		users[token] = userID
	}

	slog.Info("configured API tokens", "count", len(users))

	return &authenticator{users: users}
}

func (a *authenticator) Identify(token string) (string, bool) {
	userID, ok := a.users[token]
	return userID, ok
}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}
