package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// Store provides entity storage operations backed by NATS KV.
type Store struct {
	projects    jetstream.KeyValue
	files       jetstream.KeyValue
	logs        jetstream.KeyValue
	testResults jetstream.KeyValue
	versions    jetstream.KeyValue
	settings    jetstream.KeyValue
	agents      jetstream.KeyValue
}

// NewStore creates a new Store with the given JetStream context.
// It creates the necessary KV buckets if they don't exist.
func NewStore(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	s := &Store{}
	buckets := []struct {
		name string
		kv   *jetstream.KeyValue
	}{
		{BucketProjects, &s.projects},
		{BucketFiles, &s.files},
		{BucketLogs, &s.logs},
		{BucketTestResults, &s.testResults},
		{BucketVersions, &s.versions},
		{BucketSettings, &s.settings},
		{BucketAgents, &s.agents},
	}

	for _, b := range buckets {
		kv, err := getOrCreateBucket(ctx, js, b.name)
		if err != nil {
			return nil, fmt.Errorf("create %s bucket: %w", strings.ToLower(b.name), err)
		}
		*b.kv = kv
	}

	return s, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("agentai %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// --- Projects ---

// CreateProject stores a new project, assigning its ID and timestamps.
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	if _, err := s.projects.Create(ctx, p.ID, data); err != nil {
		return fmt.Errorf("store project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	entry, err := s.projects.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}

	var p Project
	if err := json.Unmarshal(entry.Value(), &p); err != nil {
		return nil, fmt.Errorf("unmarshal project: %w", err)
	}
	return &p, nil
}

// ListProjects returns all projects, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	keys, err := s.listKeys(ctx, s.projects)
	if err != nil {
		return nil, fmt.Errorf("list project keys: %w", err)
	}

	projects := make([]*Project, 0, len(keys))
	for _, key := range keys {
		entry, err := s.projects.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var p Project
		if err := json.Unmarshal(entry.Value(), &p); err != nil {
			continue
		}
		projects = append(projects, &p)
	}

	sort.Slice(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return projects, nil
}

// UpdateProjectStatus overwrites the project's status and bumps UpdatedAt.
func (s *Store) UpdateProjectStatus(ctx context.Context, id string, status Status) error {
	return s.mutateProject(ctx, id, func(p *Project) {
		p.Status = status
	})
}

// UpdateProjectMeta sets the project's name and description.
func (s *Store) UpdateProjectMeta(ctx context.Context, id, name, description string) error {
	return s.mutateProject(ctx, id, func(p *Project) {
		p.Name = name
		p.Description = description
	})
}

// SetFilesCount sets the project's file counter to an absolute value.
func (s *Store) SetFilesCount(ctx context.Context, id string, count int) error {
	return s.mutateProject(ctx, id, func(p *Project) {
		p.FilesCount = count
	})
}

// IncrementFilesCount adjusts the project's file counter by delta.
func (s *Store) IncrementFilesCount(ctx context.Context, id string, delta int) error {
	return s.mutateProject(ctx, id, func(p *Project) {
		p.FilesCount += delta
		if p.FilesCount < 0 {
			p.FilesCount = 0
		}
	})
}

// SetGithubURL records the repository URL assigned on deploy.
func (s *Store) SetGithubURL(ctx context.Context, id, url string) error {
	return s.mutateProject(ctx, id, func(p *Project) {
		p.GithubURL = url
	})
}

func (s *Store) mutateProject(ctx context.Context, id string, mutate func(*Project)) error {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return err
	}

	mutate(p)
	p.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	if _, err := s.projects.Put(ctx, id, data); err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

// DeleteProject removes a project and all records tied to it: files, logs,
// test results, and versions.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	if _, err := s.GetProject(ctx, id); err != nil {
		return err
	}

	s.deleteByProject(ctx, s.files, id, func(data []byte) string {
		var f FileItem
		if json.Unmarshal(data, &f) != nil {
			return ""
		}
		return f.ProjectID
	})
	s.deleteByProject(ctx, s.logs, id, func(data []byte) string {
		var l LogEntry
		if json.Unmarshal(data, &l) != nil {
			return ""
		}
		return l.ProjectID
	})
	s.deleteByProject(ctx, s.testResults, id, func(data []byte) string {
		var r TestResult
		if json.Unmarshal(data, &r) != nil {
			return ""
		}
		return r.ProjectID
	})
	s.deleteByProject(ctx, s.versions, id, func(data []byte) string {
		var v Version
		if json.Unmarshal(data, &v) != nil {
			return ""
		}
		return v.ProjectID
	})

	if err := s.projects.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

func (s *Store) deleteByProject(ctx context.Context, kv jetstream.KeyValue, projectID string, owner func([]byte) string) {
	keys, err := s.listKeys(ctx, kv)
	if err != nil {
		return
	}
	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			continue
		}
		if owner(entry.Value()) == projectID {
			_ = kv.Delete(ctx, key)
		}
	}
}

// --- Files ---

// CreateFile stores a new file record. Every call inserts a fresh record;
// an existing record with the same path is not replaced.
func (s *Store) CreateFile(ctx context.Context, f *FileItem) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal file: %w", err)
	}
	if _, err := s.files.Create(ctx, f.ID, data); err != nil {
		return fmt.Errorf("store file: %w", err)
	}
	return nil
}

// GetFile retrieves a file record by ID.
func (s *Store) GetFile(ctx context.Context, id string) (*FileItem, error) {
	entry, err := s.files.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get file: %w", err)
	}

	var f FileItem
	if err := json.Unmarshal(entry.Value(), &f); err != nil {
		return nil, fmt.Errorf("unmarshal file: %w", err)
	}
	return &f, nil
}

// ListFilesByProject returns a project's files in insertion order.
func (s *Store) ListFilesByProject(ctx context.Context, projectID string) ([]*FileItem, error) {
	keys, err := s.listKeys(ctx, s.files)
	if err != nil {
		return nil, fmt.Errorf("list file keys: %w", err)
	}

	files := make([]*FileItem, 0)
	for _, key := range keys {
		entry, err := s.files.Get(ctx, key)
		if err != nil {
			continue
		}
		var f FileItem
		if err := json.Unmarshal(entry.Value(), &f); err != nil {
			continue
		}
		if f.ProjectID == projectID {
			files = append(files, &f)
		}
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].CreatedAt.Equal(files[j].CreatedAt) {
			return files[i].CreatedAt.Before(files[j].CreatedAt)
		}
		return files[i].ID < files[j].ID
	})
	return files, nil
}

// UpdateFileContent replaces a file's content and bumps UpdatedAt.
func (s *Store) UpdateFileContent(ctx context.Context, id, content string) error {
	f, err := s.GetFile(ctx, id)
	if err != nil {
		return err
	}

	f.Content = content
	f.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal file: %w", err)
	}
	if _, err := s.files.Put(ctx, id, data); err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	return nil
}

// DeleteFile removes a single file record and returns it, so callers can
// adjust the owning project's counter.
func (s *Store) DeleteFile(ctx context.Context, id string) (*FileItem, error) {
	f, err := s.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.files.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("delete file: %w", err)
	}
	return f, nil
}

// --- Logs ---

// AppendLog stores a new log entry. Entries are append-only.
func (s *Store) AppendLog(ctx context.Context, l *LogEntry) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.CreatedAt = time.Now().UTC()
	if l.Level == "" {
		l.Level = LevelInfo
	}

	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	if _, err := s.logs.Create(ctx, l.ID, data); err != nil {
		return fmt.Errorf("store log entry: %w", err)
	}
	return nil
}

// ListLogsByProject returns a project's log entries, newest first,
// capped at limit when limit > 0.
func (s *Store) ListLogsByProject(ctx context.Context, projectID string, limit int) ([]*LogEntry, error) {
	keys, err := s.listKeys(ctx, s.logs)
	if err != nil {
		return nil, fmt.Errorf("list log keys: %w", err)
	}

	entries := make([]*LogEntry, 0)
	for _, key := range keys {
		entry, err := s.logs.Get(ctx, key)
		if err != nil {
			continue
		}
		var l LogEntry
		if err := json.Unmarshal(entry.Value(), &l); err != nil {
			continue
		}
		if l.ProjectID == projectID {
			entries = append(entries, &l)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// --- Test results ---

// InsertTestResult stores one iteration's test snapshot.
func (s *Store) InsertTestResult(ctx context.Context, r *TestResult) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.CreatedAt = time.Now().UTC()
	if r.Errors == nil {
		r.Errors = []string{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal test result: %w", err)
	}
	if _, err := s.testResults.Create(ctx, r.ID, data); err != nil {
		return fmt.Errorf("store test result: %w", err)
	}
	return nil
}

// ListTestResultsByProject returns a project's test results, newest first.
func (s *Store) ListTestResultsByProject(ctx context.Context, projectID string) ([]*TestResult, error) {
	keys, err := s.listKeys(ctx, s.testResults)
	if err != nil {
		return nil, fmt.Errorf("list test result keys: %w", err)
	}

	results := make([]*TestResult, 0)
	for _, key := range keys {
		entry, err := s.testResults.Get(ctx, key)
		if err != nil {
			continue
		}
		var r TestResult
		if err := json.Unmarshal(entry.Value(), &r); err != nil {
			continue
		}
		if r.ProjectID == projectID {
			results = append(results, &r)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

// --- Versions ---

// CreateVersion stores a history record for a project.
func (s *Store) CreateVersion(ctx context.Context, v *Version) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.CreatedAt = time.Now().UTC()
	if v.CreatedBy == "" {
		v.CreatedBy = "ai_agent"
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal version: %w", err)
	}
	if _, err := s.versions.Create(ctx, v.ID, data); err != nil {
		return fmt.Errorf("store version: %w", err)
	}
	return nil
}

// GetVersion retrieves a version record by ID.
func (s *Store) GetVersion(ctx context.Context, id string) (*Version, error) {
	entry, err := s.versions.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get version: %w", err)
	}

	var v Version
	if err := json.Unmarshal(entry.Value(), &v); err != nil {
		return nil, fmt.Errorf("unmarshal version: %w", err)
	}
	return &v, nil
}

// ListVersionsByProject returns a project's versions, newest first.
func (s *Store) ListVersionsByProject(ctx context.Context, projectID string) ([]*Version, error) {
	keys, err := s.listKeys(ctx, s.versions)
	if err != nil {
		return nil, fmt.Errorf("list version keys: %w", err)
	}

	versions := make([]*Version, 0)
	for _, key := range keys {
		entry, err := s.versions.Get(ctx, key)
		if err != nil {
			continue
		}
		var v Version
		if err := json.Unmarshal(entry.Value(), &v); err != nil {
			continue
		}
		if v.ProjectID == projectID {
			versions = append(versions, &v)
		}
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].CreatedAt.After(versions[j].CreatedAt)
	})
	return versions, nil
}

// --- Settings ---

// GetSettings returns the singleton settings record, seeding defaults on
// first read.
func (s *Store) GetSettings(ctx context.Context) (*Settings, error) {
	entry, err := s.settings.Get(ctx, settingsKey)
	if err != nil {
		if isNotFound(err) {
			def := DefaultSettings()
			if err := s.putSettings(ctx, def); err != nil {
				return nil, err
			}
			return def, nil
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}

	var cfg Settings
	if err := json.Unmarshal(entry.Value(), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return &cfg, nil
}

// UpdateSettings applies a partial update and returns the merged record.
func (s *Store) UpdateSettings(ctx context.Context, patch SettingsPatch) (*Settings, error) {
	cfg, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	if patch.GithubToken != nil {
		cfg.GithubToken = *patch.GithubToken
	}
	if patch.LLMAPIKey != nil {
		cfg.LLMAPIKey = *patch.LLMAPIKey
	}
	if patch.UsePlatformKey != nil {
		cfg.UsePlatformKey = *patch.UsePlatformKey
	}
	if patch.DefaultModel != nil {
		cfg.DefaultModel = *patch.DefaultModel
	}
	cfg.UpdatedAt = time.Now().UTC()

	if err := s.putSettings(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Store) putSettings(ctx context.Context, cfg *Settings) error {
	cfg.ID = settingsKey
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if _, err := s.settings.Put(ctx, settingsKey, data); err != nil {
		return fmt.Errorf("store settings: %w", err)
	}
	return nil
}

// --- Agents ---

// EnsureAgents seeds agent configs that don't exist yet, keyed by name.
// Existing configs are left untouched.
func (s *Store) EnsureAgents(ctx context.Context, defaults []AgentConfig) error {
	for _, a := range defaults {
		if _, err := s.agents.Get(ctx, a.Name); err == nil {
			continue
		}
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		a.CreatedAt = time.Now().UTC()

		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal agent config: %w", err)
		}
		if _, err := s.agents.Put(ctx, a.Name, data); err != nil {
			return fmt.Errorf("store agent config: %w", err)
		}
	}
	return nil
}

// ListAgents returns all agent configs, sorted by name.
func (s *Store) ListAgents(ctx context.Context) ([]*AgentConfig, error) {
	keys, err := s.listKeys(ctx, s.agents)
	if err != nil {
		return nil, fmt.Errorf("list agent keys: %w", err)
	}

	agents := make([]*AgentConfig, 0, len(keys))
	for _, key := range keys {
		entry, err := s.agents.Get(ctx, key)
		if err != nil {
			continue
		}
		var a AgentConfig
		if err := json.Unmarshal(entry.Value(), &a); err != nil {
			continue
		}
		agents = append(agents, &a)
	}

	sort.Slice(agents, func(i, j int) bool {
		return agents[i].Name < agents[j].Name
	})
	return agents, nil
}

func (s *Store) listKeys(ctx context.Context, kv jetstream.KeyValue) ([]string, error) {
	keys, err := kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, err
	}
	return keys, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound)
}
