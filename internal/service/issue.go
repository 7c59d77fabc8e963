package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xdest/devboard/internal/apperror"
	"github.com/xdest/devboard/internal/model"
	"github.com/xdest/devboard/internal/repository"
)

const (
	MaxIssueTitleLength = 200
	MaxIssueBodyLength  = 20000
)

// Pusher mirrors a local issue to its linked GitHub repository. Implemented
// by the sync engine; the service only ever fires it after the link row is
// committed, so a crash between the two leaves a pending-push link the
// poller recovers.
type Pusher interface {
	Push(ctx context.Context, issueID int64) error
}

// IssueService handles business logic for issues, responses, helpful votes,
// and star ratings. It is also where point-earning actions turn into ledger
// events: one action, one Record call, same request.
type IssueService struct {
	issues   repository.IssueRepository
	projects repository.ProjectRepository
	links    repository.LinkRepository
	ledger   *LedgerService
	pusher   Pusher
	logger   *slog.Logger
}

func NewIssueService(
	issues repository.IssueRepository,
	projects repository.ProjectRepository,
	links repository.LinkRepository,
	ledger *LedgerService,
	pusher Pusher,
	logger *slog.Logger,
) *IssueService {
	return &IssueService{
		issues:   issues,
		projects: projects,
		links:    links,
		ledger:   ledger,
		pusher:   pusher,
		logger:   logger,
	}
}

// Create validates and files a new issue against a project, records the
// issue_given / issue_received events, and — when the reporter asked for it
// and the project has a linked repository — creates the sync link and kicks
// off the push.
//
// The push itself runs in the background: mirroring can take several retry
// rounds and must not hold the reporter's request hostage. The link row is
// committed first, so an interrupted push is retried by the recovery poller.
func (s *IssueService) Create(ctx context.Context, reporterID, projectID int64, title, body string, issueType model.IssueType, syncToGitHub bool) (*model.Issue, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "issue title is required")
	}
	if len(title) > MaxIssueTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("issue title must be %d characters or less", MaxIssueTitleLength))
	}
	if len(body) > MaxIssueBodyLength {
		return nil, apperror.ValidationFailed("body",
			fmt.Sprintf("issue body must be %d characters or less", MaxIssueBodyLength))
	}
	if issueType == "" {
		issueType = model.IssueBug
	}
	if !model.ValidIssueType(issueType) {
		return nil, apperror.ValidationFailed("type", fmt.Sprintf("unknown issue type %q", issueType))
	}

	project, err := s.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	issue := &model.Issue{
		ProjectID:  &projectID,
		ReporterID: &reporterID,
		Title:      title,
		Body:       strings.TrimSpace(body),
		Type:       issueType,
	}
	if err := s.issues.CreateIssue(ctx, issue); err != nil {
		s.logger.Error("failed to create issue",
			slog.Int64("projectID", projectID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/issue: creating issue: %w", err)
	}

	// Reporting earns a point for both sides of the exchange. Local
	// events, so failures are real errors, not dedup no-ops.
	if _, err := s.ledger.Record(ctx, reporterID, model.EventIssueGiven, model.SourceLocal, ""); err != nil {
		s.logger.Error("failed to record issue_given", slog.String("error", err.Error()))
	}
	if _, err := s.ledger.Record(ctx, project.OwnerID, model.EventIssueReceived, model.SourceLocal, ""); err != nil {
		s.logger.Error("failed to record issue_received", slog.String("error", err.Error()))
	}

	if syncToGitHub {
		if err := s.startSync(ctx, issue, project); err != nil {
			// The issue exists either way; mirroring is best-effort.
			s.logger.Warn("issue created but sync not started",
				slog.Int64("issueID", issue.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("issue filed",
		slog.Int64("issueID", issue.ID),
		slog.Int64("projectID", projectID),
		slog.String("type", string(issue.Type)),
	)
	return issue, nil
}

func (s *IssueService) startSync(ctx context.Context, issue *model.Issue, project *model.Project) error {
	owner, repo, ok := model.ParseRepoURL(project.RepoURL)
	if !ok {
		return fmt.Errorf("project %d has no usable repository URL", project.ID)
	}

	link := &model.ExternalIssueLink{
		IssueID:   issue.ID,
		RepoOwner: owner,
		RepoName:  repo,
	}
	if err := s.links.CreateLink(ctx, link); err != nil {
		return fmt.Errorf("creating sync link: %w", err)
	}

	if s.pusher != nil {
		go func() {
			// Detached from the request: the reporter's response must
			// not wait out the retry schedule.
			if err := s.pusher.Push(context.WithoutCancel(ctx), issue.ID); err != nil {
				s.logger.Warn("background push failed",
					slog.Int64("issueID", issue.ID),
					slog.String("error", err.Error()),
				)
			}
		}()
	}
	return nil
}

// GetByID returns an issue. Returns apperror.ErrNotFound if it doesn't exist.
func (s *IssueService) GetByID(ctx context.Context, id int64) (*model.Issue, error) {
	return s.issues.GetIssueByID(ctx, id)
}

// ListByProject returns a project's issues newest-first with pagination.
func (s *IssueService) ListByProject(ctx context.Context, projectID int64, limit, offset int) ([]model.Issue, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.issues.ListIssuesByProject(ctx, projectID, repository.ListOptions{Limit: limit, Offset: offset})
}

// UpdateStatus moves an issue through its workflow. Only the owner of the
// issue's project may change status.
func (s *IssueService) UpdateStatus(ctx context.Context, issueID, callerID int64, status model.IssueStatus) (*model.Issue, error) {
	if !model.ValidIssueStatus(status) {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", status))
	}

	issue, err := s.issues.GetIssueByID(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if err := s.requireProjectOwner(ctx, issue, callerID); err != nil {
		return nil, err
	}

	if err := s.issues.UpdateIssueStatus(ctx, issueID, status); err != nil {
		return nil, fmt.Errorf("service/issue: updating status of issue %d: %w", issueID, err)
	}
	issue.Status = status
	return issue, nil
}

// Respond adds a response to an issue.
func (s *IssueService) Respond(ctx context.Context, issueID, authorID int64, body string) (*model.IssueResponse, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperror.ValidationFailed("body", "response body is required")
	}
	if len(body) > MaxIssueBodyLength {
		return nil, apperror.ValidationFailed("body",
			fmt.Sprintf("response body must be %d characters or less", MaxIssueBodyLength))
	}

	if _, err := s.issues.GetIssueByID(ctx, issueID); err != nil {
		return nil, err
	}

	response := &model.IssueResponse{
		IssueID:  issueID,
		AuthorID: &authorID,
		Body:     body,
	}
	if err := s.issues.CreateResponse(ctx, response); err != nil {
		return nil, fmt.Errorf("service/issue: creating response on issue %d: %w", issueID, err)
	}
	return response, nil
}

// ListResponses returns an issue's responses oldest-first.
func (s *IssueService) ListResponses(ctx context.Context, issueID int64) ([]model.IssueResponse, error) {
	return s.issues.ListResponses(ctx, issueID)
}

// MarkSolution flags a response as the issue's accepted solution and awards
// the response author a point. Only the issue's reporter may accept, and an
// issue can have at most one solution.
func (s *IssueService) MarkSolution(ctx context.Context, issueID, responseID, callerID int64) error {
	issue, err := s.issues.GetIssueByID(ctx, issueID)
	if err != nil {
		return err
	}
	if issue.ReporterID == nil || *issue.ReporterID != callerID {
		return apperror.Forbidden("only the issue reporter can accept a solution")
	}

	response, err := s.issues.GetResponseByID(ctx, responseID)
	if err != nil {
		return err
	}
	if response.IssueID != issueID {
		return apperror.ValidationFailed("responseId", "response does not belong to this issue")
	}

	if err := s.issues.MarkSolution(ctx, issueID, responseID); err != nil {
		return err
	}

	if response.AuthorID != nil {
		if _, err := s.ledger.Record(ctx, *response.AuthorID, model.EventSolutionMarked, model.SourceLocal, ""); err != nil {
			s.logger.Error("failed to record solution_marked", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("solution accepted",
		slog.Int64("issueID", issueID),
		slog.Int64("responseID", responseID),
	)
	return nil
}

// VoteIssueHelpful records a helpful vote on an issue and awards its
// reporter a point. One vote per (voter, issue); voting twice is a conflict.
func (s *IssueService) VoteIssueHelpful(ctx context.Context, issueID, voterID int64) error {
	issue, err := s.issues.GetIssueByID(ctx, issueID)
	if err != nil {
		return err
	}
	if issue.ReporterID != nil && *issue.ReporterID == voterID {
		return apperror.ValidationFailed("issueId", "cannot vote for your own issue")
	}

	if err := s.issues.AddIssueVote(ctx, issueID, voterID); err != nil {
		return err
	}
	if issue.ReporterID != nil {
		if _, err := s.ledger.Record(ctx, *issue.ReporterID, model.EventHelpfulVoteGiven, model.SourceLocal, ""); err != nil {
			s.logger.Error("failed to record helpful_vote_given", slog.String("error", err.Error()))
		}
	}
	return nil
}

// VoteResponseHelpful records a helpful vote on a response and awards its
// author a point.
func (s *IssueService) VoteResponseHelpful(ctx context.Context, responseID, voterID int64) error {
	response, err := s.issues.GetResponseByID(ctx, responseID)
	if err != nil {
		return err
	}
	if response.AuthorID != nil && *response.AuthorID == voterID {
		return apperror.ValidationFailed("responseId", "cannot vote for your own response")
	}

	if err := s.issues.AddResponseVote(ctx, responseID, voterID); err != nil {
		return err
	}
	if response.AuthorID != nil {
		if _, err := s.ledger.Record(ctx, *response.AuthorID, model.EventHelpfulVoteGiven, model.SourceLocal, ""); err != nil {
			s.logger.Error("failed to record helpful_vote_given", slog.String("error", err.Error()))
		}
	}
	return nil
}

// RateAccount records a star rating of one account by another. A 5-star
// rating earns the rated account a point; lower ratings are stored but earn
// nothing. One rating per (rater, rated) pair.
func (s *IssueService) RateAccount(ctx context.Context, raterID, ratedID int64, stars int) error {
	if raterID == ratedID {
		return apperror.ValidationFailed("ratedId", "cannot rate yourself")
	}
	if stars < 1 || stars > 5 {
		return apperror.ValidationFailed("stars", "stars must be between 1 and 5")
	}

	if err := s.issues.AddRating(ctx, raterID, ratedID, stars); err != nil {
		return err
	}
	if stars == 5 {
		if _, err := s.ledger.Record(ctx, ratedID, model.EventFiveStarRating, model.SourceLocal, ""); err != nil {
			s.logger.Error("failed to record five_star_rating", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (s *IssueService) requireProjectOwner(ctx context.Context, issue *model.Issue, callerID int64) error {
	if issue.ProjectID == nil {
		return apperror.Forbidden("issue is not attached to a project")
	}
	project, err := s.projects.GetProjectByID(ctx, *issue.ProjectID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.Forbidden("issue is not attached to a project")
		}
		return err
	}
	if project.OwnerID != callerID {
		return apperror.Forbidden("only the project owner can change issue status")
	}
	return nil
}
