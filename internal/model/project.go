package model

import (
	"regexp"
	"time"
)

// Project is a published project owned by a developer account.
//
// RepoURL is the linked GitHub repository ("https://github.com/owner/repo").
// It is optional — a project without a repo simply has no GitHub mirror for
// its issues. OwnerID is nullable-in-spirit: when the owner account is
// erased the project is removed outright, so no sentinel is needed here.
type Project struct {
	ID          int64     `json:"id"          db:"id"`
	OwnerID     int64     `json:"ownerId"     db:"owner_id"`
	Name        string    `json:"name"        db:"name"`
	Description string    `json:"description" db:"description"`
	RepoURL     string    `json:"repoUrl"     db:"repo_url"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt"   db:"updated_at"`
}

// repoURLPattern accepts "https://github.com/owner/repo", "github.com/owner/repo",
// an optional ".git" suffix, and trailing path segments.
var repoURLPattern = regexp.MustCompile(`github\.com/([^/]+)/([^/]+?)(?:\.git)?(?:/.*)?$`)

// ParseRepoURL extracts the (owner, repo) coordinates from a GitHub
// repository URL. Returns ok=false if the URL is empty or not a GitHub repo.
func ParseRepoURL(url string) (owner, repo string, ok bool) {
	if url == "" {
		return "", "", false
	}
	m := repoURLPattern.FindStringSubmatch(url)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
