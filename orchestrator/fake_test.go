package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wrx861/agentai/storage"
)

// fakeStore is an in-memory Store that records every status write so tests
// can assert transition order.
type fakeStore struct {
	mu       sync.Mutex
	projects map[string]*storage.Project
	files    []*storage.FileItem
	logs     []*storage.LogEntry
	results  []*storage.TestResult
	versions []*storage.Version
	settings *storage.Settings
	statuses map[string][]storage.Status

	failGithubURL error // when set, SetGithubURL returns it
	failSettings  error // when set, GetSettings returns it
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects: make(map[string]*storage.Project),
		settings: storage.DefaultSettings(),
		statuses: make(map[string][]storage.Status),
	}
}

func (s *fakeStore) addProject(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New().String()
	s.projects[id] = &storage.Project{
		ID:        id,
		Name:      name,
		Status:    storage.Status{Phase: "creating"},
		CreatedAt: time.Now().UTC(),
	}
	return id
}

func (s *fakeStore) addFile(projectID, path, content string) *storage.FileItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := &storage.FileItem{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Path:      path,
		Content:   content,
		Language:  "python",
		CreatedAt: time.Now().UTC(),
	}
	s.files = append(s.files, f)
	return f
}

func (s *fakeStore) statusHistory(projectID string) []storage.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.Status, len(s.statuses[projectID]))
	copy(out, s.statuses[projectID])
	return out
}

func (s *fakeStore) GetProject(_ context.Context, id string) (*storage.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) UpdateProjectStatus(_ context.Context, id string, status storage.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return storage.ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	s.statuses[id] = append(s.statuses[id], status)
	return nil
}

func (s *fakeStore) UpdateProjectMeta(_ context.Context, id, name, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return storage.ErrNotFound
	}
	p.Name = name
	p.Description = description
	return nil
}

func (s *fakeStore) SetFilesCount(_ context.Context, id string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return storage.ErrNotFound
	}
	p.FilesCount = count
	return nil
}

func (s *fakeStore) SetGithubURL(_ context.Context, id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGithubURL != nil {
		return s.failGithubURL
	}
	p, ok := s.projects[id]
	if !ok {
		return storage.ErrNotFound
	}
	p.GithubURL = url
	return nil
}

func (s *fakeStore) CreateFile(_ context.Context, f *storage.FileItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	f.CreatedAt = time.Now().UTC()
	cp := *f
	s.files = append(s.files, &cp)
	return nil
}

func (s *fakeStore) ListFilesByProject(_ context.Context, projectID string) ([]*storage.FileItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*storage.FileItem, 0)
	for _, f := range s.files {
		if f.ProjectID == projectID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateFileContent(_ context.Context, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f.ID == id {
			f.Content = content
			f.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *fakeStore) AppendLog(_ context.Context, l *storage.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	cp.CreatedAt = time.Now().UTC()
	s.logs = append(s.logs, &cp)
	return nil
}

func (s *fakeStore) InsertTestResult(_ context.Context, r *storage.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	cp.CreatedAt = time.Now().UTC()
	s.results = append(s.results, &cp)
	return nil
}

func (s *fakeStore) CreateVersion(_ context.Context, v *storage.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.versions = append(s.versions, &cp)
	return nil
}

func (s *fakeStore) GetSettings(_ context.Context) (*storage.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSettings != nil {
		return nil, s.failSettings
	}
	cp := *s.settings
	return &cp, nil
}

// fakeEvent is one recorded notification.
type fakeEvent struct {
	ProjectID string
	Type      string
	Payload   map[string]any
}

// fakeNotifier records events; onPublish, when set, runs inside Publish so
// tests can observe store state at notification time.
type fakeNotifier struct {
	mu        sync.Mutex
	events    []fakeEvent
	onPublish func(projectID, eventType string)
}

func (n *fakeNotifier) Publish(projectID, eventType string, payload map[string]any) {
	n.mu.Lock()
	n.events = append(n.events, fakeEvent{ProjectID: projectID, Type: eventType, Payload: payload})
	cb := n.onPublish
	n.mu.Unlock()
	if cb != nil {
		cb(projectID, eventType)
	}
}

func (n *fakeNotifier) eventsOfType(eventType string) []fakeEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]fakeEvent, 0)
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
