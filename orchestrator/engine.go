package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wrx861/agentai/agent"
	"github.com/wrx861/agentai/llm"
	"github.com/wrx861/agentai/notify"
	"github.com/wrx861/agentai/storage"
)

// defaultPacing is the delay inserted between incremental progress steps so
// subscribers can observe them.
const defaultPacing = 100 * time.Millisecond

// Store is the persistence surface the orchestrators depend on.
// *storage.Store satisfies it.
type Store interface {
	GetProject(ctx context.Context, id string) (*storage.Project, error)
	UpdateProjectStatus(ctx context.Context, id string, status storage.Status) error
	UpdateProjectMeta(ctx context.Context, id, name, description string) error
	SetFilesCount(ctx context.Context, id string, count int) error
	SetGithubURL(ctx context.Context, id, url string) error
	CreateFile(ctx context.Context, f *storage.FileItem) error
	ListFilesByProject(ctx context.Context, projectID string) ([]*storage.FileItem, error)
	UpdateFileContent(ctx context.Context, id, content string) error
	AppendLog(ctx context.Context, l *storage.LogEntry) error
	InsertTestResult(ctx context.Context, r *storage.TestResult) error
	CreateVersion(ctx context.Context, v *storage.Version) error
	GetSettings(ctx context.Context) (*storage.Settings, error)
}

// Notifier publishes project events. *notify.Notifier satisfies it.
type Notifier interface {
	Publish(projectID, eventType string, payload map[string]any)
}

// Templates resolves agent prompt templates. *agent.Registry satisfies it.
type Templates interface {
	Template(name string) string
}

// ModelConfig carries the engine's default model selection. Per-call model
// and API key may be overridden by the stored settings record.
type ModelConfig struct {
	Provider    string
	Model       string
	Endpoint    string
	APIKey      string
	Temperature float64
}

// Engine owns the three orchestration workflows and the per-project run
// guard. Start* methods reject a trigger when a run is already in flight and
// otherwise launch the run on a detached goroutine.
type Engine struct {
	store     Store
	notifier  Notifier
	completer llm.Completer
	templates Templates
	reporter  *Reporter
	cfg       ModelConfig
	logger    *slog.Logger
	guard     *runGuard
	pacing    time.Duration
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithPacing overrides the inter-step pacing delay. Tests use zero.
func WithPacing(d time.Duration) EngineOption {
	return func(e *Engine) { e.pacing = d }
}

// NewEngine wires an Engine from its collaborators.
func NewEngine(store Store, notifier Notifier, completer llm.Completer, templates Templates, cfg ModelConfig, logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:     store,
		notifier:  notifier,
		completer: completer,
		templates: templates,
		reporter:  NewReporter(store, notifier, logger),
		cfg:       cfg,
		logger:    logger,
		guard:     newRunGuard(),
		pacing:    defaultPacing,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// complete issues a single model call for the named agent. The stored
// settings record may override the default model and API key; a failed
// settings read aborts the call so the run's terminal error path handles it.
// The call is one round trip; a failed call is returned to the caller
// unretried.
func (e *Engine) complete(ctx context.Context, agentName, userPrompt string) (string, error) {
	settings, err := e.store.GetSettings(ctx)
	if err != nil {
		return "", fmt.Errorf("load settings: %w", err)
	}

	model := e.cfg.Model
	apiKey := e.cfg.APIKey
	if settings.DefaultModel != "" {
		model = settings.DefaultModel
	}
	if !settings.UsePlatformKey && settings.LLMAPIKey != "" {
		apiKey = settings.LLMAPIKey
	}

	temperature := e.cfg.Temperature
	resp, err := e.completer.Complete(ctx, llm.Request{
		Provider: e.cfg.Provider,
		Model:    model,
		APIKey:   apiKey,
		Endpoint: e.cfg.Endpoint,
		Messages: []llm.Message{
			{Role: "system", Content: agent.SystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: &temperature,
	})
	observeModelCall(agentName, err)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// log appends an audit record and mirrors it to subscribers; append failures
// are logged and swallowed so auditing never breaks a run.
func (e *Engine) log(ctx context.Context, projectID, agentName, level, message string, details map[string]any) {
	err := e.store.AppendLog(ctx, &storage.LogEntry{
		ProjectID: projectID,
		Agent:     agentName,
		Level:     level,
		Message:   message,
		Details:   details,
	})
	if err != nil {
		e.logger.Warn("Failed to append project log",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()))
	}

	e.notifier.Publish(projectID, notify.TypeLogEntry, map[string]any{
		"agent":   agentName,
		"level":   level,
		"message": message,
	})
}

func (e *Engine) pause() {
	if e.pacing > 0 {
		time.Sleep(e.pacing)
	}
}
