// Package model defines the data structures used throughout the application.
package model

import "time"

// Provider names the OAuth providers we accept. There are exactly two — the
// platform is a consumer of these fixed providers, not a general OAuth server.
type Provider string

const (
	ProviderGitHub Provider = "github" // developers sign in with GitHub
	ProviderGoogle Provider = "google" // testers sign in with Google
)

// Role is the account's platform role.
//
// The role is derived, not chosen: an account is a developer iff it has a
// linked GitHub identity, otherwise it is a tester. The only transition is
// tester → developer (the "upgrade path" when a tester links GitHub), and it
// is one-way.
type Role string

const (
	RoleDeveloper Role = "developer"
	RoleTester    Role = "tester"
)

// DeletedUsername is the sentinel display name for content whose author
// account was erased. Authored rows keep a NULL author foreign key; the
// presentation layer resolves that to this name.
const DeletedUsername = "Deleted User"

// Account is the canonical identity record — exactly one per email address.
//
// A single human may hold both a Google ("tester") and a GitHub ("developer")
// identity; when the emails match they reconcile into one Account. The linked
// identities live in their own table (ProviderIdentity) keyed by
// (provider, provider_id), because a provider's numbering scheme is not ours.
//
// WHY int64 ID?
// Accounts use a numeric AUTOINCREMENT primary key. Creation order is
// meaningful here: the leaderboard breaks score ties by earliest CreatedAt,
// and a monotonic key keeps that ordering cheap and stable.
//
// EncryptedToken holds the vault ciphertext of the GitHub access token. It is
// empty until a GitHub identity is linked, and it is NEVER the plaintext —
// every token passes through the vault before it reaches this struct.
type Account struct {
	ID             int64     `json:"id"        db:"id"`
	Username       string    `json:"username"  db:"username"`
	Email          string    `json:"email"     db:"email"`
	Role           Role      `json:"role"      db:"role"`
	AvatarURL      string    `json:"avatarUrl" db:"avatar_url"`
	Bio            string    `json:"bio"       db:"bio"`
	EncryptedToken string    `json:"-"         db:"encrypted_token"` // vault ciphertext, never serialized
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`

	// Identities are the linked provider identities, loaded on demand.
	Identities []ProviderIdentity `json:"identities,omitempty" db:"-"`
}

// ProviderIdentity links an Account to one (provider, provider-assigned id)
// pair. The pair is UNIQUE at the schema level — a provider identity belongs
// to at most one Account, and that constraint is load-bearing for the
// identity resolver's conflict detection.
type ProviderIdentity struct {
	ID         int64     `json:"id"         db:"id"`
	AccountID  int64     `json:"accountId"  db:"account_id"`
	Provider   Provider  `json:"provider"   db:"provider"`
	ProviderID string    `json:"providerId" db:"provider_id"` // provider-assigned ID, kept as string
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
}
