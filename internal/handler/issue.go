package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/xdest/devboard/internal/auth"
	"github.com/xdest/devboard/internal/model"
	"github.com/xdest/devboard/internal/service"
)

// IssueHandler manages issues, responses, votes, and ratings.
type IssueHandler struct {
	issues *service.IssueService
	logger *slog.Logger
}

func NewIssueHandler(issues *service.IssueService, logger *slog.Logger) *IssueHandler {
	return &IssueHandler{issues: issues, logger: logger}
}

// HandleCreate files an issue against a project.
//
// HTTP: POST /api/projects/{id}/issues
// Body: {"title": "...", "body": "...", "type": "bug", "syncToGitHub": true}
// Auth: required
//
// With syncToGitHub set the response does not wait for the mirror: the
// issue returns immediately and the push happens in the background.
func (h *IssueHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	projectID := pathID(w, r, "id")
	if projectID == 0 {
		return
	}

	var req struct {
		Title        string          `json:"title"`
		Body         string          `json:"body"`
		Type         model.IssueType `json:"type"`
		SyncToGitHub bool            `json:"syncToGitHub"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid JSON body"})
		return
	}

	issue, err := h.issues.Create(r.Context(), accountID, projectID, req.Title, req.Body, req.Type, req.SyncToGitHub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

// HandleListByProject returns a project's issues.
//
// HTTP: GET /api/projects/{id}/issues?limit=20&offset=0
func (h *IssueHandler) HandleListByProject(w http.ResponseWriter, r *http.Request) {
	projectID := pathID(w, r, "id")
	if projectID == 0 {
		return
	}
	limit, offset := listParams(r)
	issues, err := h.issues.ListByProject(r.Context(), projectID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

// HandleGet returns one issue.
//
// HTTP: GET /api/issues/{id}
func (h *IssueHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := pathID(w, r, "id")
	if id == 0 {
		return
	}
	issue, err := h.issues.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// HandleUpdateStatus moves an issue through its workflow.
//
// HTTP: PATCH /api/issues/{id}/status
// Body: {"status": "resolved"}
// Auth: required (project owner)
func (h *IssueHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	id := pathID(w, r, "id")
	if id == 0 {
		return
	}

	var req struct {
		Status model.IssueStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid JSON body"})
		return
	}

	issue, err := h.issues.UpdateStatus(r.Context(), id, accountID, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// HandleRespond adds a response to an issue.
//
// HTTP: POST /api/issues/{id}/responses
// Body: {"body": "..."}
// Auth: required
func (h *IssueHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	id := pathID(w, r, "id")
	if id == 0 {
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid JSON body"})
		return
	}

	response, err := h.issues.Respond(r.Context(), id, accountID, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, response)
}

// HandleListResponses returns an issue's responses oldest-first.
//
// HTTP: GET /api/issues/{id}/responses
func (h *IssueHandler) HandleListResponses(w http.ResponseWriter, r *http.Request) {
	id := pathID(w, r, "id")
	if id == 0 {
		return
	}
	responses, err := h.issues.ListResponses(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, responses)
}

// HandleMarkSolution accepts a response as the issue's solution.
//
// HTTP: POST /api/issues/{id}/responses/{responseId}/solution
// Auth: required (issue reporter)
func (h *IssueHandler) HandleMarkSolution(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	issueID := pathID(w, r, "id")
	if issueID == 0 {
		return
	}
	responseID := pathID(w, r, "responseId")
	if responseID == 0 {
		return
	}

	if err := h.issues.MarkSolution(r.Context(), issueID, responseID, accountID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleVoteIssue records a helpful vote on an issue.
//
// HTTP: POST /api/issues/{id}/vote
// Auth: required
func (h *IssueHandler) HandleVoteIssue(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	id := pathID(w, r, "id")
	if id == 0 {
		return
	}
	if err := h.issues.VoteIssueHelpful(r.Context(), id, accountID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleVoteResponse records a helpful vote on a response.
//
// HTTP: POST /api/responses/{id}/vote
// Auth: required
func (h *IssueHandler) HandleVoteResponse(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	id := pathID(w, r, "id")
	if id == 0 {
		return
	}
	if err := h.issues.VoteResponseHelpful(r.Context(), id, accountID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRateAccount records a star rating of another account.
//
// HTTP: POST /api/accounts/{id}/rating
// Body: {"stars": 5}
// Auth: required
func (h *IssueHandler) HandleRateAccount(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	ratedID := pathID(w, r, "id")
	if ratedID == 0 {
		return
	}

	var req struct {
		Stars int `json:"stars"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid JSON body"})
		return
	}

	if err := h.issues.RateAccount(r.Context(), accountID, ratedID, req.Stars); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
