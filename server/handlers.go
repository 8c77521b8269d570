package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/wrx861/agentai/agent"
	"github.com/wrx861/agentai/orchestrator"
	"github.com/wrx861/agentai/storage"
)

// CreateProjectRequest is the request body for POST /api/projects.
type CreateProjectRequest struct {
	Prompt string `json:"prompt"`
	Name   string `json:"name"`
}

// AcceptedResponse acknowledges an asynchronous run trigger.
type AcceptedResponse struct {
	ProjectID string `json:"project_id"`
	Status    string `json:"status"`
}

// UpdateFileRequest is the request body for PUT /api/files/{id}.
type UpdateFileRequest struct {
	Content string `json:"content"`
}

// CreateFileRequest is the request body for POST /api/projects/{id}/files.
type CreateFileRequest struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// CreateVersionRequest is the request body for POST /api/projects/{id}/versions.
type CreateVersionRequest struct {
	Message string         `json:"message"`
	Changes map[string]any `json:"changes"`
}

// RollbackResponse is the response body for a version rollback.
type RollbackResponse struct {
	Status  string           `json:"status"`
	Version *storage.Version `json:"version"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "prompt is required")
		return
	}

	name := req.Name
	if name == "" {
		name = "New Project"
	}
	project := &storage.Project{
		Name:        name,
		Description: req.Prompt,
		Prompt:      req.Prompt,
		Status: storage.Status{
			Phase:    string(orchestrator.PhaseCreating),
			Progress: 0,
			Message:  "Project queued for generation",
		},
	}
	if err := s.store.CreateProject(r.Context(), project); err != nil {
		s.logger.Error("Failed to create project", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "store_error", "failed to create project")
		return
	}

	if err := s.runner.StartGeneration(project.ID, req.Prompt); err != nil {
		// The record exists; surface the trigger failure but keep it
		s.writeRunError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		s.logger.Error("Failed to list projects", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "store_error", "failed to list projects")
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.store.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err, "project")
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteProject(r.Context(), r.PathValue("id")); err != nil {
		s.writeStoreError(w, err, "project")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	project, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, "project")
		return
	}

	if err := s.runner.StartGeneration(id, project.Prompt); err != nil {
		s.writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{ProjectID: id, Status: "regeneration started"})
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetProject(r.Context(), id); err != nil {
		s.writeStoreError(w, err, "project")
		return
	}

	if err := s.runner.StartTestFix(id); err != nil {
		s.writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{ProjectID: id, Status: "testing started"})
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.runner.StartDeploy(r.Context(), id); err != nil {
		s.writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{ProjectID: id, Status: "deployment started"})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.store.ListFilesByProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("Failed to list files", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "store_error", "failed to list files")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var req CreateFileRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "path is required")
		return
	}

	projectID := r.PathValue("id")
	if _, err := s.store.GetProject(r.Context(), projectID); err != nil {
		s.writeStoreError(w, err, "project")
		return
	}

	file := &storage.FileItem{
		ProjectID: projectID,
		Path:      req.Path,
		Content:   req.Content,
		Language:  req.Language,
	}
	if err := s.store.CreateFile(r.Context(), file); err != nil {
		s.writeStoreError(w, err, "file")
		return
	}
	if err := s.store.IncrementFilesCount(r.Context(), projectID, 1); err != nil {
		s.logger.Warn("Failed to increment files count",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusCreated, file)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	logs, err := s.store.ListLogsByProject(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.logger.Error("Failed to list logs", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "store_error", "failed to list logs")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleListTestResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.store.ListTestResultsByProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("Failed to list test results", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "store_error", "failed to list test results")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.store.ListVersionsByProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("Failed to list versions", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "store_error", "failed to list versions")
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	var req CreateVersionRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	projectID := r.PathValue("id")
	if _, err := s.store.GetProject(r.Context(), projectID); err != nil {
		s.writeStoreError(w, err, "project")
		return
	}

	version := &storage.Version{
		ProjectID: projectID,
		Message:   req.Message,
		Changes:   req.Changes,
		CreatedBy: "user",
	}
	if err := s.store.CreateVersion(r.Context(), version); err != nil {
		s.writeStoreError(w, err, "version")
		return
	}
	s.appendSystemLog(r, projectID, fmt.Sprintf("Created version: %s", req.Message))
	writeJSON(w, http.StatusCreated, version)
}

// handleRollback records a rollback as a log entry. File contents are not
// mutated; the history record is the unit of rollback.
func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	version, err := s.store.GetVersion(r.Context(), r.PathValue("version_id"))
	if err != nil {
		s.writeStoreError(w, err, "version")
		return
	}
	if version.ProjectID != projectID {
		writeJSONError(w, http.StatusNotFound, "not_found", "version not found")
		return
	}

	s.appendSystemLog(r, projectID, fmt.Sprintf("Rolled back to version: %s", version.Message))
	writeJSON(w, http.StatusOK, RollbackResponse{Status: "rolled back", Version: version})
}

func (s *Server) appendSystemLog(r *http.Request, projectID, message string) {
	err := s.store.AppendLog(r.Context(), &storage.LogEntry{
		ProjectID: projectID,
		Agent:     agent.System,
		Level:     storage.LevelInfo,
		Message:   message,
	})
	if err != nil {
		s.logger.Warn("Failed to append project log",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()))
	}
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	file, err := s.store.GetFile(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err, "file")
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (s *Server) handleUpdateFile(w http.ResponseWriter, r *http.Request) {
	var req UpdateFileRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	id := r.PathValue("id")
	if err := s.store.UpdateFileContent(r.Context(), id, req.Content); err != nil {
		s.writeStoreError(w, err, "file")
		return
	}
	file, err := s.store.GetFile(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, "file")
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	file, err := s.store.DeleteFile(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err, "file")
		return
	}
	if err := s.store.IncrementFilesCount(r.Context(), file.ProjectID, -1); err != nil {
		s.logger.Warn("Failed to decrement files count",
			slog.String("project_id", file.ProjectID),
			slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings(r.Context())
	if err != nil {
		s.logger.Error("Failed to load settings", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "store_error", "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, redactSettings(settings))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch storage.SettingsPatch
	if err := decodeBody(r, &patch); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	settings, err := s.store.UpdateSettings(r.Context(), patch)
	if err != nil {
		s.logger.Error("Failed to update settings", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "store_error", "failed to update settings")
		return
	}
	writeJSON(w, http.StatusOK, redactSettings(settings))
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents(r.Context())
	if err != nil {
		s.logger.Error("Failed to list agents", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "store_error", "failed to list agents")
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

// redactSettings masks credentials in API responses; presence is signalled
// without echoing the secret.
func redactSettings(s *storage.Settings) map[string]any {
	return map[string]any{
		"github_token_set": s.GithubToken != "",
		"llm_api_key_set":  s.LLMAPIKey != "",
		"use_platform_key": s.UsePlatformKey,
		"default_model":    s.DefaultModel,
		"updated_at":       s.UpdatedAt,
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBodySize))
	if err := dec.Decode(v); err != nil {
		return errors.New("malformed JSON body")
	}
	return nil
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error, kind string) {
	if errors.Is(err, storage.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "not_found", kind+" not found")
		return
	}
	s.logger.Error("Store operation failed", slog.String("error", err.Error()))
	writeJSONError(w, http.StatusInternalServerError, "store_error", "storage operation failed")
}

func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrRunInFlight):
		writeJSONError(w, http.StatusConflict, "run_in_flight", err.Error())
	case orchestrator.IsValidationError(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", "project not found")
	default:
		s.logger.Error("Failed to start run", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "run_error", "failed to start run")
	}
}
