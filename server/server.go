// Package server exposes the HTTP surface: project CRUD, run triggers, read
// endpoints for files/logs/results/versions, settings, and a per-project SSE
// event stream.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wrx861/agentai/notify"
	"github.com/wrx861/agentai/storage"
)

// maxRequestBodySize limits POST/PUT body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// Store is the persistence surface the HTTP layer reads and writes.
// *storage.Store satisfies it.
type Store interface {
	CreateProject(ctx context.Context, p *storage.Project) error
	GetProject(ctx context.Context, id string) (*storage.Project, error)
	ListProjects(ctx context.Context) ([]*storage.Project, error)
	DeleteProject(ctx context.Context, id string) error

	CreateFile(ctx context.Context, f *storage.FileItem) error
	ListFilesByProject(ctx context.Context, projectID string) ([]*storage.FileItem, error)
	GetFile(ctx context.Context, id string) (*storage.FileItem, error)
	UpdateFileContent(ctx context.Context, id, content string) error
	DeleteFile(ctx context.Context, id string) (*storage.FileItem, error)
	IncrementFilesCount(ctx context.Context, id string, delta int) error

	AppendLog(ctx context.Context, l *storage.LogEntry) error
	ListLogsByProject(ctx context.Context, projectID string, limit int) ([]*storage.LogEntry, error)
	ListTestResultsByProject(ctx context.Context, projectID string) ([]*storage.TestResult, error)

	CreateVersion(ctx context.Context, v *storage.Version) error
	GetVersion(ctx context.Context, id string) (*storage.Version, error)
	ListVersionsByProject(ctx context.Context, projectID string) ([]*storage.Version, error)

	GetSettings(ctx context.Context) (*storage.Settings, error)
	UpdateSettings(ctx context.Context, patch storage.SettingsPatch) (*storage.Settings, error)
	ListAgents(ctx context.Context) ([]*storage.AgentConfig, error)
}

// Runner triggers orchestration runs. *orchestrator.Engine satisfies it.
type Runner interface {
	StartGeneration(projectID, prompt string) error
	StartTestFix(projectID string) error
	StartDeploy(ctx context.Context, projectID string) error
}

// Streamer subscribes to a project's event stream. *notify.Notifier
// satisfies it.
type Streamer interface {
	Join(projectID string, handler func(notify.Event)) (func(), error)
}

// Server is the HTTP API.
type Server struct {
	store    Store
	runner   Runner
	streamer Streamer
	logger   *slog.Logger
}

// NewServer creates a Server.
func NewServer(store Store, runner Runner, streamer Streamer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, runner: runner, streamer: streamer, logger: logger}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)

	mux.HandleFunc("POST /api/projects/{id}/regenerate", s.handleRegenerate)
	mux.HandleFunc("POST /api/projects/{id}/test", s.handleTest)
	mux.HandleFunc("POST /api/projects/{id}/deploy", s.handleDeploy)

	mux.HandleFunc("GET /api/projects/{id}/files", s.handleListFiles)
	mux.HandleFunc("POST /api/projects/{id}/files", s.handleCreateFile)
	mux.HandleFunc("GET /api/projects/{id}/logs", s.handleListLogs)
	mux.HandleFunc("GET /api/projects/{id}/test-results", s.handleListTestResults)
	mux.HandleFunc("GET /api/projects/{id}/versions", s.handleListVersions)
	mux.HandleFunc("POST /api/projects/{id}/versions", s.handleCreateVersion)
	mux.HandleFunc("POST /api/projects/{id}/versions/{version_id}/rollback", s.handleRollback)
	mux.HandleFunc("GET /api/projects/{id}/stream", s.handleStream)

	mux.HandleFunc("GET /api/files/{id}", s.handleGetFile)
	mux.HandleFunc("PUT /api/files/{id}", s.handleUpdateFile)
	mux.HandleFunc("DELETE /api/files/{id}", s.handleDeleteFile)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handleUpdateSettings)
	mux.HandleFunc("GET /api/agents", s.handleListAgents)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
