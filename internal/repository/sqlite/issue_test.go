package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/xdest/devboard/internal/apperror"
	"github.com/xdest/devboard/internal/model"
	"github.com/xdest/devboard/internal/repository"
)

func createTestIssue(t *testing.T, db *DB, projectID, reporterID int64) *model.Issue {
	t.Helper()
	issue := &model.Issue{
		ProjectID:  &projectID,
		ReporterID: &reporterID,
		Title:      "save button does nothing",
		Body:       "clicked save, nothing happened",
	}
	if err := db.CreateIssue(context.Background(), issue); err != nil {
		t.Fatalf("CreateIssue() error = %v", err)
	}
	return issue
}

func TestCreateIssue_Defaults(t *testing.T) {
	db := newTestDB(t)
	owner := createTestAccount(t, db, "dev", "dev@example.com", model.ProviderGitHub, "gh-1")
	reporter := createTestAccount(t, db, "tester", "t@example.com", model.ProviderGoogle, "g-1")
	project := &model.Project{OwnerID: owner.ID, Name: "proj", RepoURL: "https://github.com/o/r"}
	if err := db.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	issue := createTestIssue(t, db, project.ID, reporter.ID)

	if issue.Status != model.StatusOpen {
		t.Errorf("Status = %q, want %q", issue.Status, model.StatusOpen)
	}
	if issue.Type != model.IssueBug {
		t.Errorf("Type = %q, want %q", issue.Type, model.IssueBug)
	}
}

func TestUpdateIssueStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestAccount(t, db, "dev", "dev@example.com", model.ProviderGitHub, "gh-1")
	reporter := createTestAccount(t, db, "tester", "t@example.com", model.ProviderGoogle, "g-1")
	project := &model.Project{OwnerID: owner.ID, Name: "proj", RepoURL: "https://github.com/o/r"}
	if err := db.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	issue := createTestIssue(t, db, project.ID, reporter.ID)

	if err := db.UpdateIssueStatus(ctx, issue.ID, model.StatusResolved); err != nil {
		t.Fatalf("UpdateIssueStatus() error = %v", err)
	}
	got, _ := db.GetIssueByID(ctx, issue.ID)
	if got.Status != model.StatusResolved {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusResolved)
	}

	if err := db.UpdateIssueStatus(ctx, 9999, model.StatusClosed); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateIssueStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListIssuesByProject_Pagination(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestAccount(t, db, "dev", "dev@example.com", model.ProviderGitHub, "gh-1")
	reporter := createTestAccount(t, db, "tester", "t@example.com", model.ProviderGoogle, "g-1")
	project := &model.Project{OwnerID: owner.ID, Name: "proj", RepoURL: "https://github.com/o/r"}
	if err := db.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		createTestIssue(t, db, project.ID, reporter.ID)
	}

	page, err := db.ListIssuesByProject(ctx, project.ID, repository.ListOptions{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListIssuesByProject() error = %v", err)
	}
	if len(page) != 2 {
		t.Errorf("len(page) = %d, want 2", len(page))
	}
}

func TestMarkSolution(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestAccount(t, db, "dev", "dev@example.com", model.ProviderGitHub, "gh-1")
	reporter := createTestAccount(t, db, "tester", "t@example.com", model.ProviderGoogle, "g-1")
	project := &model.Project{OwnerID: owner.ID, Name: "proj", RepoURL: "https://github.com/o/r"}
	if err := db.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	issue := createTestIssue(t, db, project.ID, reporter.ID)

	first := &model.IssueResponse{IssueID: issue.ID, AuthorID: &owner.ID, Body: "try clearing cache"}
	second := &model.IssueResponse{IssueID: issue.ID, AuthorID: &owner.ID, Body: "fixed in v2"}
	for _, r := range []*model.IssueResponse{first, second} {
		if err := db.CreateResponse(ctx, r); err != nil {
			t.Fatalf("CreateResponse() error = %v", err)
		}
	}

	if err := db.MarkSolution(ctx, issue.ID, second.ID); err != nil {
		t.Fatalf("MarkSolution() error = %v", err)
	}

	got, _ := db.GetResponseByID(ctx, second.ID)
	if !got.IsSolution {
		t.Error("marked response is not flagged as solution")
	}

	// An issue can have at most one solution.
	if err := db.MarkSolution(ctx, issue.ID, first.ID); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("MarkSolution() second time error = %v, want ErrConflict", err)
	}

	if err := db.MarkSolution(ctx, issue.ID, 9999); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("MarkSolution(missing response) error = %v, want ErrNotFound", err)
	}
}

func TestVotesAreUniquePerVoter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestAccount(t, db, "dev", "dev@example.com", model.ProviderGitHub, "gh-1")
	voter := createTestAccount(t, db, "tester", "t@example.com", model.ProviderGoogle, "g-1")
	project := &model.Project{OwnerID: owner.ID, Name: "proj", RepoURL: "https://github.com/o/r"}
	if err := db.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	issue := createTestIssue(t, db, project.ID, voter.ID)

	if err := db.AddIssueVote(ctx, issue.ID, voter.ID); err != nil {
		t.Fatalf("AddIssueVote() error = %v", err)
	}
	if err := db.AddIssueVote(ctx, issue.ID, voter.ID); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("AddIssueVote() duplicate error = %v, want ErrConflict", err)
	}
}

func TestAddRating_OncePerPair(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	rater := createTestAccount(t, db, "tester", "t@example.com", model.ProviderGoogle, "g-1")
	rated := createTestAccount(t, db, "dev", "dev@example.com", model.ProviderGitHub, "gh-1")

	if err := db.AddRating(ctx, rater.ID, rated.ID, 5); err != nil {
		t.Fatalf("AddRating() error = %v", err)
	}
	if err := db.AddRating(ctx, rater.ID, rated.ID, 3); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("AddRating() duplicate error = %v, want ErrConflict", err)
	}
}
