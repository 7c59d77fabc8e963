package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/xdest/devboard/internal/auth"
	"github.com/xdest/devboard/internal/service"
)

const sessionCookieAge = 24 * time.Hour

// oauthProvider is what the handler needs from an identity provider: a URL
// to send the browser to and a code exchange. Both auth.GitHubProvider and
// auth.GoogleProvider satisfy it.
type oauthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.Profile, error)
}

// AuthHandler manages the OAuth login flows and session management.
//
// Two providers share one callback implementation; the provider determines
// the role the identity resolver assigns (GitHub → developer, Google →
// tester). All reconciliation rules live in the IdentityService — the
// handler only moves cookies and redirects.
type AuthHandler struct {
	github   oauthProvider
	google   oauthProvider
	identity *service.IdentityService
	logger   *slog.Logger
}

func NewAuthHandler(
	github oauthProvider,
	google oauthProvider,
	identity *service.IdentityService,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		github:   github,
		google:   google,
		identity: identity,
		logger:   logger,
	}
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// A random state value goes into a short-lived HttpOnly cookie; the callback
// verifies it to prove the flow started here and not on an attacker's page.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	h.startFlow(w, r, h.github)
}

// HandleGoogleLogin redirects the browser to Google's authorization page.
//
// HTTP: GET /auth/google/login
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	h.startFlow(w, r, h.google)
}

func (h *AuthHandler) startFlow(w http.ResponseWriter, r *http.Request, provider oauthProvider) {
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the GitHub flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	h.finishFlow(w, r, h.github, "github")
}

// HandleGoogleCallback completes the Google flow.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	h.finishFlow(w, r, h.google, "google")
}

// finishFlow is the shared callback: verify the CSRF state, exchange the
// code for a profile, resolve the profile to an account, set the session
// cookie, redirect home.
func (h *AuthHandler) finishFlow(w http.ResponseWriter, r *http.Request, provider oauthProvider, name string) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state check failed", slog.String("provider", name))
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// Single-use.
	http.SetCookie(w, &http.Cookie{Name: "oauth_state", Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: authorization denied",
			slog.String("provider", name),
			slog.String("error", errParam),
		)
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	profile, err := provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: code exchange failed",
			slog.String("provider", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	result, err := h.identity.Resolve(r.Context(), profile)
	if err != nil {
		h.logger.Error("auth callback: identity resolution failed",
			slog.String("provider", name),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	// HttpOnly: invisible to scripts. SameSite=Lax: not sent on cross-site
	// POSTs. Secure belongs on in production behind HTTPS.
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    result.Token,
		Path:     "/",
		MaxAge:   int(sessionCookieAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Stateless sessions: "logout" deletes the client-side cookie; the token
// itself stays valid until expiry.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the authenticated account with its linked identities.
//
// HTTP: GET /api/me
// Auth: required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	account, err := h.identity.GetAccountByID(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// HandleDeleteMe erases the authenticated account and ends the session.
//
// HTTP: DELETE /api/me
// Auth: required
func (h *AuthHandler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.identity.DeleteAccount(r.Context(), accountID); err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
