package ghsync

import (
	"context"
	"net/http"

	"github.com/google/go-github/v42/github"
	"golang.org/x/oauth2"
)

func oauth2StaticClient(ctx context.Context, token string) *http.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return oauth2.NewClient(ctx, ts)
}

// remoteGitHub adapts go-github to the RemoteClient interface.
type remoteGitHub struct {
	client *github.Client
}

func (r *remoteGitHub) CreateIssue(ctx context.Context, owner, repo string, req *github.IssueRequest) (*github.Issue, error) {
	issue, _, err := r.client.Issues.Create(ctx, owner, repo, req)
	return issue, err
}

func (r *remoteGitHub) GetIssue(ctx context.Context, owner, repo string, number int) (*github.Issue, error) {
	issue, _, err := r.client.Issues.Get(ctx, owner, repo, number)
	return issue, err
}

// EnsureLabel creates the app label on the repository. GitHub answers 422
// when the label already exists, which callers treat as success anyway.
func (r *remoteGitHub) EnsureLabel(ctx context.Context, owner, repo string) error {
	_, _, err := r.client.Issues.CreateLabel(ctx, owner, repo, &github.Label{
		Name:  github.String(appLabel),
		Color: github.String("5319e7"),
	})
	return err
}

func (r *remoteGitHub) ListReactions(ctx context.Context, owner, repo string, number int) ([]*github.Reaction, error) {
	opts := &github.ListOptions{PerPage: 100}
	var all []*github.Reaction
	for {
		reactions, resp, err := r.client.Reactions.ListIssueReactions(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, reactions...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}
