package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/xdest/devboard/internal/auth"
	"github.com/xdest/devboard/internal/service"
)

// ProjectHandler manages the project CRUD endpoints.
type ProjectHandler struct {
	projects *service.ProjectService
	logger   *slog.Logger
}

func NewProjectHandler(projects *service.ProjectService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logger}
}

// pathID extracts a numeric {id} URL parameter. A zero return means the
// error response was already written.
func pathID(w http.ResponseWriter, r *http.Request, name string) int64 {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: name + " must be a positive integer",
		})
		return 0
	}
	return id
}

// listParams reads limit/offset query parameters, leaving clamping to the
// service layer.
func listParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

// HandleCreate publishes a project owned by the caller.
//
// HTTP: POST /api/projects
// Body: {"name": "...", "description": "...", "repoUrl": "github.com/o/r"}
// Auth: required
func (h *ProjectHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		RepoURL     string `json:"repoUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid JSON body"})
		return
	}

	project, err := h.projects.Create(r.Context(), accountID, req.Name, req.Description, req.RepoURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// HandleList returns projects newest-first.
//
// HTTP: GET /api/projects?limit=20&offset=0
func (h *ProjectHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset := listParams(r)
	projects, err := h.projects.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// HandleGet returns one project.
//
// HTTP: GET /api/projects/{id}
func (h *ProjectHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := pathID(w, r, "id")
	if id == 0 {
		return
	}
	project, err := h.projects.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// HandleDelete removes a project the caller owns.
//
// HTTP: DELETE /api/projects/{id}
// Auth: required
func (h *ProjectHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	id := pathID(w, r, "id")
	if id == 0 {
		return
	}
	if err := h.projects.Delete(r.Context(), id, accountID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
