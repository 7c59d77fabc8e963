package auth

import (
	"context"
	"net/http"
)

// contextKey is an unexported type for context keys in this package. Using a
// package-private type means only this package can read or write the
// accountID value — a plain string key could be shadowed by any package.
type contextKey string

const accountIDKey contextKey = "accountID"

// RequireAuth is a middleware that enforces authentication on protected
// routes. It reads the JWT from the "token" HttpOnly cookie, validates it,
// and stores the accountID in the request context. If the token is missing
// or invalid, it returns 401 Unauthorized and stops the chain.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, err := extractAccountID(r, tokens)
			if err != nil {
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), accountIDKey, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth extracts the account identity if a valid token is present but
// does NOT block the request when it's missing or invalid. Use on public
// routes where logged-in users see extra data.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if accountID, err := extractAccountID(r, tokens); err == nil && accountID > 0 {
				ctx := context.WithValue(r.Context(), accountIDKey, accountID)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccountIDFromContext retrieves the authenticated account's ID from the
// request context. Returns (0, false) for anonymous requests.
func AccountIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(accountIDKey).(int64)
	return id, ok && id > 0
}

// extractAccountID reads the JWT cookie and validates it. Shared by
// RequireAuth and OptionalAuth.
func extractAccountID(r *http.Request, tokens *TokenService) (int64, error) {
	cookie, err := r.Cookie("token")
	if err != nil {
		// http.ErrNoCookie — not an error as such, just anonymous
		return 0, err
	}

	return tokens.Validate(cookie.Value)
}
