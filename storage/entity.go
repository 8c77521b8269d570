// Package storage provides entity storage for agentai using NATS KV.
package storage

import (
	"time"
)

// Bucket names for each entity type.
const (
	BucketProjects    = "AGENTAI_PROJECTS"
	BucketFiles       = "AGENTAI_FILES"
	BucketLogs        = "AGENTAI_LOGS"
	BucketTestResults = "AGENTAI_TEST_RESULTS"
	BucketVersions    = "AGENTAI_VERSIONS"
	BucketSettings    = "AGENTAI_SETTINGS"
	BucketAgents      = "AGENTAI_AGENTS"
)

// Log levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// settingsKey is the fixed key of the singleton settings record.
const settingsKey = "settings"

// Status is a project's current lifecycle state. Each write overwrites the
// previous value; status is not persisted as history.
type Status struct {
	Phase       string `json:"phase"`
	Progress    int    `json:"progress"`
	Message     string `json:"message"`
	CurrentStep string `json:"current_step,omitempty"`
}

// Project represents a generated project.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Prompt      string    `json:"prompt"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	FilesCount  int       `json:"files_count"`
	GithubURL   string    `json:"github_url,omitempty"`
}

// FileItem represents one generated source file. Duplicate paths are allowed:
// every insert is a fresh record, never an upsert by path.
type FileItem struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Path      string    `json:"path"`
	Content   string    `json:"content"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LogEntry is one append-only audit record. Entries are never mutated;
// they are only removed by project cascade delete.
type LogEntry struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Agent     string         `json:"agent"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TestResult is one test iteration's snapshot. Iterations are independent;
// results are never merged.
type TestResult struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	TestsPassed int       `json:"tests_passed"`
	TestsFailed int       `json:"tests_failed"`
	Errors      []string  `json:"errors"`
	Warnings    []string  `json:"warnings"`
	CreatedAt   time.Time `json:"created_at"`
}

// Version is a commit-style history record.
type Version struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Message   string         `json:"message"`
	Changes   map[string]any `json:"changes"`
	CreatedAt time.Time      `json:"created_at"`
	CreatedBy string         `json:"created_by"`
}

// Settings is the singleton configuration record.
type Settings struct {
	ID             string    `json:"id"`
	GithubToken    string    `json:"github_token,omitempty"`
	LLMAPIKey      string    `json:"llm_api_key,omitempty"`
	UsePlatformKey bool      `json:"use_platform_key"`
	DefaultModel   string    `json:"default_model"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SettingsPatch is a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	GithubToken    *string `json:"github_token"`
	LLMAPIKey      *string `json:"llm_api_key"`
	UsePlatformKey *bool   `json:"use_platform_key"`
	DefaultModel   *string `json:"default_model"`
}

// AgentConfig stores a named agent's prompt template and model selection.
type AgentConfig struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	PromptTemplate string    `json:"prompt_template"`
	ModelProvider  string    `json:"model_provider"`
	ModelName      string    `json:"model_name"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
}

// DefaultSettings returns the settings record seeded on first read.
func DefaultSettings() *Settings {
	return &Settings{
		ID:             settingsKey,
		UsePlatformKey: true,
		DefaultModel:   "gpt-4o",
		UpdatedAt:      time.Now().UTC(),
	}
}
