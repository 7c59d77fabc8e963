package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/xdest/devboard/internal/model"
)

// Profile is the normalized result of an OAuth callback, independent of which
// provider produced it. The identity resolver consumes exactly this.
//
// AccessToken is the provider access token in plaintext. It exists only in
// memory for the duration of the callback request — the resolver vaults it
// (GitHub) or discards it (Google) before anything is persisted.
type Profile struct {
	Provider    model.Provider
	ProviderID  string // provider-assigned ID, stable for the life of the remote account
	Email       string
	Username    string
	AvatarURL   string
	Bio         string
	AccessToken string
}

// GitHubProvider wraps golang.org/x/oauth2 for the GitHub Authorization Code
// flow.
//
// The flow: redirect the user to GitHub with our ClientID and scopes; GitHub
// redirects back to CallbackURL with a short-lived code; we exchange the code
// for an access token server-to-server (the token never touches the browser)
// and use it to fetch the user's profile.
//
// Scopes:
//   - "read:user"   — public profile (ID, login, avatar, bio)
//   - "user:email"  — email addresses (the primary one may be hidden from /user)
//   - "public_repo" — create mirrored issues on the developer's repositories
type GitHubProvider struct {
	config *oauth2.Config
}

// NewGitHubProvider creates a GitHubProvider with the given OAuth App
// credentials. callbackURL must match the app's configured callback exactly.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email", "public_repo"},
			Endpoint:     github.Endpoint,
		},
	}
}

// AuthURL returns the GitHub authorization URL for the given CSRF state.
// The state is verified against a cookie when GitHub calls back.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// githubUser is the portion of the GitHub /user response we care about.
type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"` // empty if the user hides it
	AvatarURL string `json:"avatar_url"`
	Bio       string `json:"bio"`
}

// githubEmail is one entry of the GitHub /user/emails response.
type githubEmail struct {
	Email   string `json:"email"`
	Primary bool   `json:"primary"`
}

// Exchange completes the GitHub flow: trades the authorization code for a
// normalized Profile.
//
// GitHub's /user endpoint omits the email when the user hides it, so we also
// call /user/emails and take the primary address. An account MUST have an
// email (it is the reconciliation key), so as a last resort we synthesize
// "{id}@github.local".
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging GitHub OAuth code: %w", err)
	}

	// oauth2.Config.Client returns an *http.Client that attaches the
	// Authorization header to every request.
	client := p.config.Client(ctx, oauthToken)

	var ghUser githubUser
	if err := getJSON(ctx, client, "https://api.github.com/user", &ghUser); err != nil {
		return nil, fmt.Errorf("auth: fetching GitHub /user: %w", err)
	}
	if ghUser.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	email := ghUser.Email
	if email == "" {
		var emails []githubEmail
		if err := getJSON(ctx, client, "https://api.github.com/user/emails", &emails); err == nil {
			for _, e := range emails {
				if e.Primary {
					email = e.Email
					break
				}
			}
		}
	}
	if email == "" {
		email = fmt.Sprintf("%d@github.local", ghUser.ID)
	}

	return &Profile{
		Provider:    model.ProviderGitHub,
		ProviderID:  fmt.Sprintf("%d", ghUser.ID),
		Email:       email,
		Username:    ghUser.Login,
		AvatarURL:   ghUser.AvatarURL,
		Bio:         ghUser.Bio,
		AccessToken: oauthToken.AccessToken,
	}, nil
}

// GoogleProvider wraps the Google Authorization Code flow. Google logins
// create tester accounts; the Google access token is not kept after the
// callback (we only need the profile).
type GoogleProvider struct {
	config *oauth2.Config
}

// NewGoogleProvider creates a GoogleProvider with the given credentials.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
	}
}

// AuthURL returns the Google authorization URL for the given CSRF state.
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// googleUserinfo is the portion of Google's userinfo response we care about.
// "sub" is the stable Google subject identifier.
type googleUserinfo struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Exchange completes the Google flow and returns a normalized Profile.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging Google OAuth code: %w", err)
	}

	client := p.config.Client(ctx, oauthToken)

	var info googleUserinfo
	if err := getJSON(ctx, client, "https://openidconnect.googleapis.com/v1/userinfo", &info); err != nil {
		return nil, fmt.Errorf("auth: fetching Google userinfo: %w", err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("auth: Google returned an invalid userinfo (empty sub)")
	}
	if info.Email == "" {
		return nil, fmt.Errorf("auth: Google userinfo has no email")
	}

	return &Profile{
		Provider:   model.ProviderGoogle,
		ProviderID: info.Sub,
		Email:      info.Email,
		Username:   info.Name,
		AvatarURL:  info.Picture,
		// AccessToken deliberately left empty — we never store Google tokens.
	}, nil
}

// getJSON performs an authenticated GET and decodes the JSON body into out.
func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
